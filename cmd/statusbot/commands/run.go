package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/bigbes/status-engage-bot/internal/bot"
	"github.com/bigbes/status-engage-bot/internal/config"
)

const logo = `
  ___ _        _             ___      _   
 / __| |_ __ _| |_ _  _ ___ | _ ) ___| |_ 
 \__ \  _/ _' |  _| || (_-< | _ \/ _ \  _|
 |___/\__\__,_|\__|\_,_/__/ |___/\___/\__|
   ~~ view / react / reply, politely ~~`

func Run(logger *slog.Logger, version string) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "start the bot",
		Action: func(cctx *cli.Context) error {
			cfg, err := loadConfig(cctx)
			if err != nil {
				return err
			}

			logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.ParseLogLevel()}))

			fmt.Println(logo)
			logger.Info("starting statusbot", "version", version)
			if bi, ok := debug.ReadBuildInfo(); ok {
				var buildAttrs []any
				for _, s := range bi.Settings {
					switch s.Key {
					case "vcs", "vcs.revision", "vcs.time", "vcs.modified":
						buildAttrs = append(buildAttrs, s.Key, s.Value)
					}
				}
				if len(buildAttrs) > 0 {
					logger.Info("build info", buildAttrs...)
				}
			}

			startObservability(cfg.ObservabilityHTTP, logger)

			b, err := bot.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating bot: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return b.Run(ctx)
		},
	}
}

func startObservability(obs config.ObservabilityHTTPConfig, logger *slog.Logger) {
	if obs.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	if obs.Pprof {
		// Re-register pprof handlers on our mux (net/http/pprof init registers on DefaultServeMux).
		mux.HandleFunc("/debug/pprof/", http.DefaultServeMux.ServeHTTP)
	}
	if obs.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	go func() {
		logger.Info("starting observability server", "addr", obs.Addr, "pprof", obs.Pprof, "metrics", obs.Metrics)
		if err := http.ListenAndServe(obs.Addr, mux); err != nil {
			logger.Error("observability server failed", "err", err)
		}
	}()
}
