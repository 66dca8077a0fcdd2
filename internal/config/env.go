package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the YAML file.
const (
	EnvGatewayToken      = "STATUSBOT_GATEWAY_TOKEN"
	EnvTelegramToken     = "STATUSBOT_TELEGRAM_TOKEN"
	EnvDashboardPassword = "STATUSBOT_DASHBOARD_PASSWORD"
	EnvPhoneNumber       = "STATUSBOT_PHONE_NUMBER"
)

// LoadEnv loads a .env file into the process environment. Variables that are
// already set are not overwritten. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("loading env file %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvGatewayToken); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(EnvDashboardPassword); v != "" {
		cfg.Dashboard.Password = v
	}
	if v := os.Getenv(EnvPhoneNumber); v != "" {
		cfg.Gateway.PhoneNumber = v
	}
}
