package commands

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func ShowConf(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "showconf",
		Usage: "print the effective config with secrets redacted",
		Action: func(cctx *cli.Context) error {
			cfg, err := loadConfig(cctx)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			logger.Debug("effective config", "path", cctx.String("config"))
			fmt.Print(string(data))
			return nil
		},
	}
}
