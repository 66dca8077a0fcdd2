package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/bigbes/status-engage-bot/internal/config"
)

// loadConfig reads the .env overrides and then the YAML config named by the
// global flags.
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	if err := config.LoadEnv(cctx.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
