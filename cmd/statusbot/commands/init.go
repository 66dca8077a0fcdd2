package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bigbes/status-engage-bot/internal/config"
)

func Init(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "write a default config file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "gateway", Value: "http://127.0.0.1:8085", Usage: "messaging gateway URL"},
			&cli.StringFlag{Name: "self-jid", Usage: "the bot account JID, e.g. 15551234567@s.whatsapp.net"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing config"},
		},
		Action: func(cctx *cli.Context) error {
			path := cctx.String("config")
			if _, err := os.Stat(path); err == nil && !cctx.Bool("force") {
				return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("checking config: %w", err)
			}

			cfg := config.Default()
			cfg.Gateway.URL = cctx.String("gateway")
			cfg.Gateway.SelfJID = cctx.String("self-jid")
			cfg.AvailableEmojis = append([]string(nil), cfg.Reactions...)
			if err := cfg.Save(path); err != nil {
				return err
			}
			logger.Debug("config written", "path", path)

			fmt.Println("=== Config initialized ===")
			fmt.Printf("Config:    %s\n", path)
			fmt.Printf("Gateway:   %s\n", cfg.Gateway.URL)
			fmt.Printf("Dashboard: %s (password %q, change it!)\n", cfg.Dashboard.Listen, cfg.Dashboard.Password)
			fmt.Println()
			fmt.Println("Run 'statusbot run' to start.")
			return nil
		},
	}
}
