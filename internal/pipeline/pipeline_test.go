package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbes/status-engage-bot/internal/action"
	"github.com/bigbes/status-engage-bot/internal/archive"
	"github.com/bigbes/status-engage-bot/internal/message"
	"github.com/bigbes/status-engage-bot/internal/state"
	"github.com/bigbes/status-engage-bot/internal/throttle"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAdmitter struct {
	mu       sync.Mutex
	decision throttle.Decision
	checks   int
	records  int
	panics   bool
}

func (f *fakeAdmitter) CanPerformAction(time.Time) throttle.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.panics {
		panic("admission exploded")
	}
	return f.decision
}

func (f *fakeAdmitter) RecordAction() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
}

func (f *fakeAdmitter) RandomDelay(kind throttle.Kind) time.Duration {
	return time.Duration(kind+1) * time.Second
}

type fakePerformer struct {
	mu      sync.Mutex
	fail    map[action.Kind]bool
	panicOn map[action.Kind]bool
	calls   []string
	emojis  []string
	replies []string
	block   chan struct{}
}

func (f *fakePerformer) do(kind action.Kind, ev *message.Event) action.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, kind.String()+":"+ev.Key.ID)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.panicOn[kind] {
		panic("transport exploded")
	}
	if f.fail[kind] {
		return action.Outcome{Kind: kind, Err: errors.New("all methods failed")}
	}
	return action.Outcome{Kind: kind, Success: true, Method: 1}
}

func (f *fakePerformer) View(_ context.Context, ev *message.Event) action.Outcome {
	return f.do(action.View, ev)
}

func (f *fakePerformer) React(_ context.Context, ev *message.Event, emoji string) action.Outcome {
	f.mu.Lock()
	f.emojis = append(f.emojis, emoji)
	f.mu.Unlock()
	return f.do(action.React, ev)
}

func (f *fakePerformer) Reply(_ context.Context, ev *message.Event, text string) action.Outcome {
	f.mu.Lock()
	f.replies = append(f.replies, text)
	f.mu.Unlock()
	return f.do(action.Reply, ev)
}

func (f *fakePerformer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeArchiver struct {
	err   error
	calls int
}

func (f *fakeArchiver) Archive(_ context.Context, ev *message.Event) (*archive.Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &archive.Entry{ID: "e1", Type: "image", Sender: ev.SenderName()}, nil
}

type harness struct {
	p       *Pipeline
	admit   *fakeAdmitter
	perform *fakePerformer
	state   *state.Store
	sleeps  []time.Duration
}

func newHarness(t *testing.T, cfg Config, toggles state.Toggles, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		admit:   &fakeAdmitter{decision: throttle.Decision{Allowed: true}},
		perform: &fakePerformer{},
	}
	h.state = state.Open(state.Options{
		Toggles:         toggles,
		Emojis:          []string{"🔥"},
		DownloadEnabled: true,
	}, nil, testLogger)

	if cfg.ReplyMessage == "" {
		cfg.ReplyMessage = "Nice status! 🔥"
	}
	opts = append([]Option{
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}, opts...)
	h.p = New(cfg, h.admit, h.perform, h.state, testLogger, opts...)
	return h
}

var allOn = state.Toggles{BotEnabled: true, AutoView: true, AutoLike: true, AutoReply: true}

func statusFrom(number string) *message.Event {
	return &message.Event{
		Key: message.Key{
			RemoteJID:   message.StatusBroadcast,
			ID:          "ID" + number,
			Participant: message.JID(number + "@s.whatsapp.net"),
		},
		PushName: "User " + number,
		Kind:     message.KindImage,
	}
}

func TestHandle_AllStagesSucceed(t *testing.T) {
	h := newHarness(t, Config{}, allOn)

	res := h.p.Handle(context.Background(), statusFrom("111"))

	assert.Equal(t, ResultCompleted, res)
	assert.Equal(t, 1, h.admit.checks, "one admission check per event")
	assert.Equal(t, 3, h.admit.records, "one record per successful action")
	assert.Equal(t, []string{"view:ID111", "react:ID111", "reply:ID111"}, h.perform.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, h.sleeps)
	assert.Equal(t, []string{"🔥"}, h.perform.emojis)
	assert.Equal(t, []string{"Nice status! 🔥"}, h.perform.replies)

	st := h.state.Stats()
	assert.Equal(t, 1, st.Viewed)
	assert.Equal(t, 1, st.Liked)
	assert.Equal(t, 1, st.Replied)
	assert.Zero(t, st.Errors)
	assert.NotNil(t, st.LastActivity)
}

func TestHandle_PublishesOncePerStage(t *testing.T) {
	h := newHarness(t, Config{}, state.Toggles{BotEnabled: true, AutoView: true, AutoLike: true})
	updates, cancel := h.state.Hub().Subscribe(64)
	defer cancel()

	h.p.Handle(context.Background(), statusFrom("111"))

	stats := 0
	for len(updates) > 0 {
		if (<-updates).Type == state.UpdateStats {
			stats++
		}
	}
	assert.Equal(t, 2, stats)
}

// A View whose whole fallback chain failed counts as exactly one error.
func TestHandle_ViewChainExhausted(t *testing.T) {
	h := newHarness(t, Config{}, state.Toggles{BotEnabled: true, AutoView: true})
	h.perform.fail = map[action.Kind]bool{action.View: true}

	res := h.p.Handle(context.Background(), statusFrom("111"))

	assert.Equal(t, ResultCompleted, res)
	assert.Equal(t, 1, h.state.Stats().Errors)
	assert.Zero(t, h.state.Stats().Viewed)
	assert.Zero(t, h.admit.records, "failed actions are not recorded")
	assert.Equal(t, state.LogError, h.state.Logs()[0].Type)
}

func TestHandle_FailureDoesNotAbortLaterStages(t *testing.T) {
	h := newHarness(t, Config{}, allOn)
	h.perform.fail = map[action.Kind]bool{action.View: true, action.React: true}

	h.p.Handle(context.Background(), statusFrom("111"))

	assert.Len(t, h.perform.Calls(), 3)
	st := h.state.Stats()
	assert.Equal(t, 2, st.Errors)
	assert.Equal(t, 1, st.Replied)
	assert.Equal(t, 1, h.admit.records)
}

func TestHandle_Denied(t *testing.T) {
	h := newHarness(t, Config{}, allOn)
	h.admit.decision = throttle.Decision{Reason: throttle.ReasonHourlyLimit, Wait: time.Minute}

	res := h.p.Handle(context.Background(), statusFrom("111"))

	assert.Equal(t, ResultDenied, res)
	assert.Empty(t, h.perform.Calls())
	assert.Empty(t, h.sleeps)
	assert.Equal(t, 1, h.state.Stats().Skipped)
	logs := h.state.Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, state.LogSkip, logs[0].Type)
	assert.Equal(t, "Skipped: Hourly limit reached", logs[0].Message)
	assert.Equal(t, "User 111", logs[0].Details["sender"])
}

func TestHandle_Filters(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		toggles     state.Toggles
		ev          func() *message.Event
		wantSkipped int
		wantLog     bool
	}{
		{
			name:    "bot disabled",
			toggles: state.Toggles{AutoView: true},
			ev:      func() *message.Event { return statusFrom("111") },
		},
		{
			name:    "missing participant",
			toggles: allOn,
			ev: func() *message.Event {
				ev := statusFrom("111")
				ev.Key.Participant = ""
				return ev
			},
			wantSkipped: 1,
		},
		{
			name:    "own status",
			toggles: allOn,
			ev: func() *message.Event {
				ev := statusFrom("111")
				ev.Key.FromMe = true
				return ev
			},
		},
		{
			name:    "own identity",
			cfg:     Config{SelfJID: "111@s.whatsapp.net"},
			toggles: allOn,
			ev:      func() *message.Event { return statusFrom("111") },
		},
		{
			name:        "excluded",
			cfg:         Config{ExcludeNumbers: []string{"111"}},
			toggles:     allOn,
			ev:          func() *message.Event { return statusFrom("111") },
			wantSkipped: 1,
			wantLog:     true,
		},
		{
			name:        "not in allow list",
			cfg:         Config{OnlyTheseNumbers: []string{"222"}},
			toggles:     allOn,
			ev:          func() *message.Event { return statusFrom("111") },
			wantSkipped: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, tt.toggles)

			res := h.p.Handle(context.Background(), tt.ev())

			assert.Equal(t, ResultFiltered, res)
			assert.Zero(t, h.admit.checks, "filtered events never reach admission")
			assert.Empty(t, h.perform.Calls())
			assert.Equal(t, tt.wantSkipped, h.state.Stats().Skipped)
			assert.Equal(t, tt.wantLog, len(h.state.Logs()) > 0)
		})
	}
}

func TestHandle_AllowListMatch(t *testing.T) {
	h := newHarness(t, Config{OnlyTheseNumbers: []string{"111"}}, state.Toggles{BotEnabled: true, AutoView: true})
	assert.Equal(t, ResultCompleted, h.p.Handle(context.Background(), statusFrom("111")))
	assert.Equal(t, 1, h.state.Stats().Viewed)
}

func TestHandle_TogglesReadPerStage(t *testing.T) {
	h := newHarness(t, Config{}, state.Toggles{BotEnabled: true, AutoView: true, AutoLike: true})
	off := false
	h.p.sleep = func(_ context.Context, d time.Duration) error {
		h.state.SetToggles(state.TogglesPatch{AutoLike: &off})
		return nil
	}

	h.p.Handle(context.Background(), statusFrom("111"))
	assert.Equal(t, []string{"view:ID111"}, h.perform.Calls())
}

func TestHandle_Download(t *testing.T) {
	t.Run("archived before actions", func(t *testing.T) {
		arch := &fakeArchiver{}
		h := newHarness(t, Config{}, state.Toggles{BotEnabled: true}, WithArchiver(arch))

		h.p.Handle(context.Background(), statusFrom("111"))
		assert.Equal(t, 1, arch.calls)
		assert.Equal(t, 1, h.state.Stats().Downloaded)
	})

	t.Run("failure does not abort", func(t *testing.T) {
		arch := &fakeArchiver{err: errors.New("disk full")}
		h := newHarness(t, Config{}, state.Toggles{BotEnabled: true, AutoView: true}, WithArchiver(arch))

		res := h.p.Handle(context.Background(), statusFrom("111"))
		assert.Equal(t, ResultCompleted, res)
		assert.Zero(t, h.state.Stats().Downloaded)
		assert.Zero(t, h.state.Stats().Errors)
		assert.Equal(t, 1, h.state.Stats().Viewed)
	})

	t.Run("download toggle off", func(t *testing.T) {
		arch := &fakeArchiver{}
		h := newHarness(t, Config{}, allOn, WithArchiver(arch))
		h.state.SetDownloadEnabled(false)

		h.p.Handle(context.Background(), statusFrom("111"))
		assert.Zero(t, arch.calls)
	})
}

func TestHandle_StagePanicDoesNotAbortLaterStages(t *testing.T) {
	h := newHarness(t, Config{}, allOn)
	h.perform.panicOn = map[action.Kind]bool{action.React: true}
	updates, cancel := h.state.Hub().Subscribe(64)
	defer cancel()

	res := h.p.Handle(context.Background(), statusFrom("111"))

	assert.Equal(t, ResultCompleted, res)
	assert.Equal(t, []string{"view:ID111", "react:ID111", "reply:ID111"}, h.perform.Calls())
	st := h.state.Stats()
	assert.Equal(t, 1, st.Viewed)
	assert.Zero(t, st.Liked)
	assert.Equal(t, 1, st.Replied)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 2, h.admit.records)

	var found bool
	for _, l := range h.state.Logs() {
		if l.Type == state.LogError && l.Message == "React error: transport exploded" {
			found = true
		}
	}
	assert.True(t, found)

	stats := 0
	for len(updates) > 0 {
		if (<-updates).Type == state.UpdateStats {
			stats++
		}
	}
	assert.Equal(t, 3, stats, "one publish per stage, the panicking one included")
}

func TestHandle_RecoversPanicOutsideStages(t *testing.T) {
	h := newHarness(t, Config{}, allOn)
	h.admit.panics = true
	updates, cancel := h.state.Hub().Subscribe(64)
	defer cancel()

	res := h.p.Handle(context.Background(), statusFrom("111"))
	assert.Equal(t, ResultPanic, res)
	assert.Empty(t, h.perform.Calls())
	assert.Equal(t, 1, h.state.Stats().Errors)

	var published bool
	for len(updates) > 0 {
		if u := <-updates; u.Type == state.UpdateStats {
			published = true
		}
	}
	assert.True(t, published)

	h.admit.panics = false
	assert.Equal(t, ResultCompleted, h.p.Handle(context.Background(), statusFrom("222")))
}

func TestHandle_CancelledDelayAbandonsEvent(t *testing.T) {
	h := newHarness(t, Config{}, allOn)
	h.p.sleep = sleepCtx
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.p.Handle(ctx, statusFrom("111"))
	assert.Equal(t, ResultAbandoned, res)
	assert.Empty(t, h.perform.Calls())
}

func TestRun_FIFOSingleWorker(t *testing.T) {
	h := newHarness(t, Config{}, state.Toggles{BotEnabled: true, AutoView: true})
	h.perform.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.p.Run(ctx)
		close(done)
	}()

	for _, n := range []string{"1", "2", "3"} {
		require.NoError(t, h.p.Enqueue(ctx, statusFrom(n)))
	}

	// Only one action may be in flight at a time.
	for i, want := range []string{"view:ID1", "view:ID2", "view:ID3"} {
		require.Eventually(t, func() bool { return len(h.perform.Calls()) == i+1 }, time.Second, time.Millisecond)
		assert.Equal(t, want, h.perform.Calls()[i])
		h.perform.block <- struct{}{}
	}

	require.Eventually(t, func() bool { return h.state.Stats().Viewed == 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestEnqueue_RespectsContext(t *testing.T) {
	h := newHarness(t, Config{QueueSize: 1}, allOn)
	require.NoError(t, h.p.Enqueue(context.Background(), statusFrom("1")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.p.Enqueue(ctx, statusFrom("2")), context.DeadlineExceeded)
}

// Admission is checked once per event while every successful action is
// recorded, so a single admitted event can overshoot the hourly limit by two.
func TestHandle_AdmissionPerEventOvershoot(t *testing.T) {
	ctrl := throttle.New(throttle.Policy{
		Enabled:    true,
		MaxPerHour: 1,
		MaxPerDay:  100,
	}, throttle.NewCounterStore(filepath.Join(t.TempDir(), "banprotection.json"), testLogger), testLogger)
	st := state.Open(state.Options{Toggles: allOn, Emojis: []string{"🔥"}}, nil, testLogger)
	perform := &fakePerformer{}
	p := New(Config{ReplyMessage: "hi"}, ctrl, perform, st, testLogger,
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	)

	assert.Equal(t, ResultCompleted, p.Handle(context.Background(), statusFrom("111")))
	assert.Equal(t, 3, ctrl.Status(time.Now()).ActionsThisHour)

	assert.Equal(t, ResultDenied, p.Handle(context.Background(), statusFrom("222")))
	assert.Len(t, perform.Calls(), 3)
	assert.Equal(t, 1, st.Stats().Skipped)
}
