// Package state holds the aggregate stats, feature toggles, reaction pool
// and activity log, persists them as JSON documents and publishes changes
// to observers.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bigbes/status-engage-bot/internal/jsonfile"
	"github.com/bigbes/status-engage-bot/internal/throttle"
)

const (
	statsFile  = "stats.json"
	stateFile  = "state.json"
	emojisFile = "emojis.json"
	logsFile   = "logs.json"

	// DefaultEmoji is used when the reaction pool is empty.
	DefaultEmoji = "❤️"

	defaultMaxLogs = 500
)

// ErrNotAList is returned by SetEmojis for anything but a list of strings.
var ErrNotAList = errors.New("state: emojis must be a list of strings")

// StatusSource reports the admission controller status.
type StatusSource interface {
	Status(now time.Time) throttle.Status
}

// Options configure a Store.
type Options struct {
	// Dir holds the JSON documents. Empty keeps everything in memory.
	Dir             string
	MaxLogs         int
	Toggles         Toggles
	Emojis          []string
	DownloadEnabled bool
	Throttle        StatusSource
	Connected       func() bool
	Now             func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	opts   Options
	hub    *Hub
	logger *slog.Logger
	now    func() time.Time

	mu              sync.Mutex
	stats           Stats
	toggles         Toggles
	emojis          []string
	logs            []LogEntry
	downloadEnabled bool
}

// Open loads the persisted documents from opts.Dir. Missing or corrupt
// documents fall back to the defaults in opts; Open never fails.
func Open(opts Options, hub *Hub, logger *slog.Logger) *Store {
	if opts.MaxLogs <= 0 {
		opts.MaxLogs = defaultMaxLogs
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if hub == nil {
		hub = NewHub()
	}
	s := &Store{
		opts:            opts,
		hub:             hub,
		logger:          logger,
		now:             opts.Now,
		toggles:         opts.Toggles,
		emojis:          slices.Clone(opts.Emojis),
		downloadEnabled: opts.DownloadEnabled,
	}

	s.load(statsFile, &s.stats)
	s.stats.StartTime = s.now()

	s.load(stateFile, &s.toggles)

	var emojis []string
	if s.load(emojisFile, &emojis) && len(emojis) > 0 {
		s.emojis = emojis
	}

	var logs []LogEntry
	if s.load(logsFile, &logs) {
		if len(logs) > opts.MaxLogs {
			logs = logs[:opts.MaxLogs]
		}
		s.logs = logs
	}
	return s
}

func (s *Store) load(name string, v any) bool {
	if s.opts.Dir == "" {
		return false
	}
	path := filepath.Join(s.opts.Dir, name)
	if err := jsonfile.Read(path, v); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("state: ignoring unreadable document", "path", path, "err", err)
		}
		return false
	}
	return true
}

func (s *Store) save(name string, v any) error {
	if s.opts.Dir == "" {
		return nil
	}
	path := filepath.Join(s.opts.Dir, name)
	if err := jsonfile.Write(path, v); err != nil {
		s.logger.Error("state: failed to persist document", "path", path, "err", err)
		return fmt.Errorf("state: saving %s: %w", name, err)
	}
	return nil
}

// Hub returns the update hub.
func (s *Store) Hub() *Hub {
	return s.hub
}

// Stats returns a copy of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Count applies f to the counters and persists them.
func (s *Store) Count(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	snap := s.stats
	s.mu.Unlock()
	s.save(statsFile, snap)
}

// Toggles returns the current feature switches.
func (s *Store) Toggles() Toggles {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggles
}

// SetToggles merges p into the switches, persists and publishes them.
func (s *Store) SetToggles(p TogglesPatch) Toggles {
	s.mu.Lock()
	s.toggles = s.toggles.apply(p)
	t := s.toggles
	s.mu.Unlock()

	s.save(stateFile, t)
	s.Publish()
	return t
}

// SelectedEmojis returns a copy of the reaction pool.
func (s *Store) SelectedEmojis() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.emojis)
}

// SetEmojis replaces the reaction pool. v may be a []string or a decoded
// JSON array of strings; anything else is rejected with ErrNotAList.
func (s *Store) SetEmojis(v any) error {
	var list []string
	switch vv := v.(type) {
	case []string:
		list = slices.Clone(vv)
	case []any:
		list = make([]string, 0, len(vv))
		for _, e := range vv {
			str, ok := e.(string)
			if !ok {
				return ErrNotAList
			}
			list = append(list, str)
		}
	default:
		return ErrNotAList
	}

	s.mu.Lock()
	s.emojis = list
	s.mu.Unlock()

	s.save(emojisFile, list)
	s.Publish()
	return nil
}

// RandomEmoji picks one emoji uniformly from the pool.
func (s *Store) RandomEmoji(r *rand.Rand) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.emojis) == 0 {
		return DefaultEmoji
	}
	return s.emojis[r.IntN(len(s.emojis))]
}

// DownloadEnabled reports whether status payloads are archived.
func (s *Store) DownloadEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloadEnabled
}

func (s *Store) SetDownloadEnabled(enabled bool) {
	s.mu.Lock()
	s.downloadEnabled = enabled
	s.mu.Unlock()
}

// AddLog prepends an entry to the activity log, persists the log and
// streams the entry to observers.
func (s *Store) AddLog(kind LogKind, msg string, details map[string]string) LogEntry {
	now := s.now()
	entry := LogEntry{
		Timestamp: now,
		Time:      now.Format(time.TimeOnly),
		Message:   msg,
		Type:      kind,
		Details:   details,
	}

	s.mu.Lock()
	s.logs = append([]LogEntry{entry}, s.logs...)
	if len(s.logs) > s.opts.MaxLogs {
		s.logs = s.logs[:s.opts.MaxLogs]
	}
	logs := slices.Clone(s.logs)
	s.mu.Unlock()

	s.save(logsFile, logs)
	s.hub.Broadcast(Update{Type: UpdateLog, Payload: entry})

	attrs := []any{"kind", string(kind)}
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	switch kind {
	case LogError:
		s.logger.Error(msg, attrs...)
	case LogWarn:
		s.logger.Warn(msg, attrs...)
	default:
		s.logger.Info(msg, attrs...)
	}
	return entry
}

// Logs returns the activity log, most recent first.
func (s *Store) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.logs)
}

// Snapshot assembles the aggregate view.
func (s *Store) Snapshot() FullStats {
	now := s.now()
	var ts throttle.Status
	if s.opts.Throttle != nil {
		ts = s.opts.Throttle.Status(now)
	}
	connected := false
	if s.opts.Connected != nil {
		connected = s.opts.Connected()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return FullStats{
		Stats:           s.stats,
		Toggles:         s.toggles,
		Uptime:          FormatUptime(now.Sub(s.stats.StartTime)),
		BanProtection:   ts,
		Connected:       connected,
		SelectedEmojis:  slices.Clone(s.emojis),
		DownloadEnabled: s.downloadEnabled,
	}
}

// Publish pushes the aggregate stats, the toggles and the reaction pool.
func (s *Store) Publish() {
	snap := s.Snapshot()
	s.hub.Broadcast(Update{Type: UpdateStats, Payload: snap})
	s.hub.Broadcast(Update{Type: UpdateState, Payload: snap.Toggles})
	s.hub.Broadcast(Update{Type: UpdateEmojis, Payload: snap.SelectedEmojis})
}

// Broadcast pushes an arbitrary update to observers.
func (s *Store) Broadcast(typ string, payload any) {
	s.hub.Broadcast(Update{Type: typ, Payload: payload})
}

// Flush persists every document.
func (s *Store) Flush() error {
	s.mu.Lock()
	stats, toggles := s.stats, s.toggles
	emojis := slices.Clone(s.emojis)
	logs := slices.Clone(s.logs)
	s.mu.Unlock()

	return errors.Join(
		s.save(statsFile, stats),
		s.save(stateFile, toggles),
		s.save(emojisFile, emojis),
		s.save(logsFile, logs),
	)
}

// ReadStats loads stats.json from dir without opening a Store.
func ReadStats(dir string) (Stats, error) {
	var st Stats
	if err := jsonfile.Read(filepath.Join(dir, statsFile), &st); err != nil {
		return Stats{}, fmt.Errorf("state: reading stats: %w", err)
	}
	return st, nil
}
