package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "statusbot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "gateway:\n  url: http://gw:8085\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bp := cfg.BanProtection
	if !bp.Enabled || bp.MaxActionsPerHour != 30 || bp.MaxActionsPerDay != 200 {
		t.Errorf("unexpected ban protection defaults: %+v", bp)
	}
	if bp.ActiveHours.Start != 7 || bp.ActiveHours.End != 23 {
		t.Errorf("unexpected active hours: %+v", bp.ActiveHours)
	}
	if cfg.DataDir != filepath.Join(filepath.Dir(path), "data") {
		t.Errorf("data dir not resolved against config dir: %q", cfg.DataDir)
	}
	if cfg.Logging.MaxLogs != 500 {
		t.Errorf("expected max_logs 500, got %d", cfg.Logging.MaxLogs)
	}
	if len(cfg.Reactions) != len(DefaultReactions) {
		t.Errorf("expected default reactions, got %v", cfg.Reactions)
	}
	if !cfg.Features.AutoViewStatus || !cfg.Features.AutoLikeStatus || cfg.Features.AutoReplyStatus {
		t.Errorf("unexpected feature defaults: %+v", cfg.Features)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: http://gw:8085
features:
  auto_like_status: false
ban_protection:
  max_actions_per_hour: 5
  skip_chance: 0
  active_hours_only: false
reactions: ["🔥"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Features.AutoLikeStatus {
		t.Error("expected auto_like_status to be disabled")
	}
	if cfg.BanProtection.MaxActionsPerHour != 5 {
		t.Errorf("expected 5 actions per hour, got %d", cfg.BanProtection.MaxActionsPerHour)
	}
	if cfg.BanProtection.MaxActionsPerDay != 200 {
		t.Errorf("expected default daily limit to survive partial override, got %d", cfg.BanProtection.MaxActionsPerDay)
	}
	if len(cfg.Reactions) != 1 || cfg.Reactions[0] != "🔥" {
		t.Errorf("unexpected reactions: %v", cfg.Reactions)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"skip chance", "ban_protection:\n  skip_chance: 1.5\n", "skip_chance"},
		{"hour", "ban_protection:\n  daily_reset_hour: 24\n", "daily_reset_hour"},
		{"delay range", "ban_protection:\n  delays:\n    view_min: 9000\n    view_max: 10\n", "delays.view"},
		{"telegram token", "telegram:\n  enabled: true\n", "telegram: token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv(EnvGatewayToken, "from-env")
	t.Setenv(EnvDashboardPassword, "s3cret")

	cfg, err := Load(writeConfig(t, "gateway:\n  token: from-file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Token != "from-env" {
		t.Errorf("expected env token, got %q", cfg.Gateway.Token)
	}
	if cfg.Dashboard.Password != "s3cret" {
		t.Errorf("expected env password, got %q", cfg.Dashboard.Password)
	}

	red := cfg.Redacted()
	if red.Gateway.Token != "***" || red.Dashboard.Password != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Gateway.Token != "from-env" {
		t.Error("Redacted must not modify the original")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.BanProtection.DailyResetHour = 4
	path := filepath.Join(t.TempDir(), "out", "statusbot.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.BanProtection.DailyResetHour != 4 {
		t.Errorf("expected reset hour 4, got %d", loaded.BanProtection.DailyResetHour)
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "WARNING": "WARN", "": "INFO", "bogus": "INFO"} {
		c := &Config{LogLevel: in}
		if got := c.ParseLogLevel().String(); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
