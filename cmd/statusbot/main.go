package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bigbes/status-engage-bot/cmd/statusbot/commands"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	app := cli.App{
		Name:    "statusbot",
		Usage:   "automatically view, react to and reply to contacts' status updates",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/statusbot.yaml",
				Usage:   "path to config file",
				EnvVars: []string{"STATUSBOT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "optional .env file with secret overrides",
				EnvVars: []string{"STATUSBOT_ENV_FILE"},
			},
		},
		Commands: []*cli.Command{
			commands.Run(logger, version),
			commands.Init(logger),
			commands.ShowConf(logger),
			commands.Stats(logger),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}
