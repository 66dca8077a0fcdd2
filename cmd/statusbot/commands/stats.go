package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/bigbes/status-engage-bot/internal/bot"
	"github.com/bigbes/status-engage-bot/internal/state"
	"github.com/bigbes/status-engage-bot/internal/throttle"
)

func Stats(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print persisted statistics and quota counters",
		Action: func(cctx *cli.Context) error {
			cfg, err := loadConfig(cctx)
			if err != nil {
				return err
			}

			st, err := state.ReadStats(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}
			counters, ok := throttle.NewCounterStore(filepath.Join(cfg.DataDir, bot.CountersFile), logger).Load()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Viewed:\t%s\n", humanize.Comma(int64(st.Viewed)))
			fmt.Fprintf(w, "Liked:\t%s\n", humanize.Comma(int64(st.Liked)))
			fmt.Fprintf(w, "Replied:\t%s\n", humanize.Comma(int64(st.Replied)))
			fmt.Fprintf(w, "Skipped:\t%s\n", humanize.Comma(int64(st.Skipped)))
			fmt.Fprintf(w, "Errors:\t%s\n", humanize.Comma(int64(st.Errors)))
			fmt.Fprintf(w, "Downloaded:\t%s\n", humanize.Comma(int64(st.Downloaded)))
			if st.LastActivity != nil {
				fmt.Fprintf(w, "Last activity:\t%s\n", humanize.Time(*st.LastActivity))
			}
			if ok {
				fmt.Fprintf(w, "Actions today:\t%d/%d\n", counters.ActionsToday, cfg.BanProtection.MaxActionsPerDay)
				if counters.DailyResetTime > 0 {
					fmt.Fprintf(w, "Daily reset:\t%s\n", time.UnixMilli(counters.DailyResetTime).Format(time.DateTime))
				}
			}
			return w.Flush()
		},
	}
}
