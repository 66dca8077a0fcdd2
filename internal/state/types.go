package state

import (
	"fmt"
	"time"

	"github.com/bigbes/status-engage-bot/internal/throttle"
)

// Stats are the aggregate engagement counters.
type Stats struct {
	Viewed       int        `json:"viewed"`
	Liked        int        `json:"liked"`
	Replied      int        `json:"replied"`
	Skipped      int        `json:"skipped"`
	Errors       int        `json:"errors"`
	Downloaded   int        `json:"downloaded"`
	StartTime    time.Time  `json:"startTime"`
	LastActivity *time.Time `json:"lastActivity"`
}

// Toggles are the operator-controlled feature switches.
type Toggles struct {
	BotEnabled bool `json:"botEnabled"`
	AutoView   bool `json:"autoView"`
	AutoLike   bool `json:"autoLike"`
	AutoReply  bool `json:"autoReply"`
}

// TogglesPatch is a partial update; nil fields are left unchanged.
type TogglesPatch struct {
	BotEnabled *bool `json:"botEnabled,omitempty"`
	AutoView   *bool `json:"autoView,omitempty"`
	AutoLike   *bool `json:"autoLike,omitempty"`
	AutoReply  *bool `json:"autoReply,omitempty"`
}

func (t Toggles) apply(p TogglesPatch) Toggles {
	if p.BotEnabled != nil {
		t.BotEnabled = *p.BotEnabled
	}
	if p.AutoView != nil {
		t.AutoView = *p.AutoView
	}
	if p.AutoLike != nil {
		t.AutoLike = *p.AutoLike
	}
	if p.AutoReply != nil {
		t.AutoReply = *p.AutoReply
	}
	return t
}

// FullStats is the aggregate view served to observers.
type FullStats struct {
	Stats
	Toggles
	Uptime          string          `json:"uptime"`
	BanProtection   throttle.Status `json:"banProtection"`
	Connected       bool            `json:"connected"`
	SelectedEmojis  []string        `json:"selectedEmojis"`
	DownloadEnabled bool            `json:"downloadEnabled"`
}

// FormatUptime renders d as "Xh Ym".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}

// LogKind classifies a human-facing log entry.
type LogKind string

const (
	LogInfo    LogKind = "INFO"
	LogSuccess LogKind = "SUCCESS"
	LogError   LogKind = "ERROR"
	LogWarn    LogKind = "WARN"
	LogSkip    LogKind = "SKIP"
)

// LogEntry is one entry of the activity log.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Time      string            `json:"time"`
	Message   string            `json:"message"`
	Type      LogKind           `json:"type"`
	Details   map[string]string `json:"details,omitempty"`
}
