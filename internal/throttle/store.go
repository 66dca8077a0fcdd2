package throttle

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/bigbes/status-engage-bot/internal/jsonfile"
)

// Counters is the durable part of the quota state.
type Counters struct {
	ActionsToday   int   `json:"actionsToday"`
	DailyResetTime int64 `json:"dailyResetTime"` // unix milliseconds
}

// CounterStore persists Counters as a single JSON document. An empty path
// keeps everything in memory.
type CounterStore struct {
	path   string
	logger *slog.Logger
}

func NewCounterStore(path string, logger *slog.Logger) *CounterStore {
	return &CounterStore{path: path, logger: logger}
}

// Load returns the stored counters. ok is false when the document is
// missing or unreadable; callers then start from defaults.
func (s *CounterStore) Load() (c Counters, ok bool) {
	if s.path == "" {
		return Counters{}, false
	}
	if err := jsonfile.Read(s.path, &c); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("throttle: no saved counters, starting fresh", "path", s.path)
		} else {
			s.logger.Warn("throttle: ignoring unreadable counters", "path", s.path, "err", err)
		}
		return Counters{}, false
	}
	if c.ActionsToday < 0 {
		c.ActionsToday = 0
	}
	return c, true
}

// Save rewrites the document. Failures are logged and swallowed; the next
// successful write heals the on-disk state.
func (s *CounterStore) Save(c Counters) {
	if s.path == "" {
		return
	}
	if err := jsonfile.Write(s.path, c); err != nil {
		s.logger.Error("throttle: failed to persist counters", "path", s.path, "err", err)
	}
}

func unixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
