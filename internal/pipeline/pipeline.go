// Package pipeline runs status events through filtering, admission and the
// paced view, react and reply stages. Events are handled one at a time in
// arrival order by a single worker.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"time"

	"github.com/bigbes/status-engage-bot/internal/action"
	"github.com/bigbes/status-engage-bot/internal/archive"
	"github.com/bigbes/status-engage-bot/internal/message"
	"github.com/bigbes/status-engage-bot/internal/metrics"
	"github.com/bigbes/status-engage-bot/internal/state"
	"github.com/bigbes/status-engage-bot/internal/throttle"
)

const defaultQueueSize = 256

// Admitter gates and paces actions.
type Admitter interface {
	CanPerformAction(now time.Time) throttle.Decision
	RecordAction()
	RandomDelay(kind throttle.Kind) time.Duration
}

// Performer executes engagement actions.
type Performer interface {
	View(ctx context.Context, ev *message.Event) action.Outcome
	React(ctx context.Context, ev *message.Event, emoji string) action.Outcome
	Reply(ctx context.Context, ev *message.Event, text string) action.Outcome
}

// Archiver stores the payload of a status.
type Archiver interface {
	Archive(ctx context.Context, ev *message.Event) (*archive.Entry, error)
}

// Result is the terminal state of one event.
type Result int

const (
	ResultFiltered Result = iota
	ResultDenied
	ResultCompleted
	ResultAbandoned
	ResultPanic
)

func (r Result) String() string {
	switch r {
	case ResultFiltered:
		return "filtered"
	case ResultDenied:
		return "denied"
	case ResultCompleted:
		return "completed"
	case ResultAbandoned:
		return "abandoned"
	case ResultPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Config is the static pipeline configuration.
type Config struct {
	SelfJID          message.JID
	ExcludeNumbers   []string
	OnlyTheseNumbers []string
	ReplyMessage     string
	QueueSize        int
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithArchiver enables the download stage.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

func WithSleep(f SleepFunc) Option {
	return func(p *Pipeline) { p.sleep = f }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithRand(r *rand.Rand) Option {
	return func(p *Pipeline) { p.rnd = r }
}

type Pipeline struct {
	cfg      Config
	admit    Admitter
	perform  Performer
	archiver Archiver
	state    *state.Store
	logger   *slog.Logger
	sleep    SleepFunc
	now      func() time.Time
	rnd      *rand.Rand
	queue    chan *message.Event
}

func New(cfg Config, admit Admitter, perform Performer, st *state.Store, logger *slog.Logger, opts ...Option) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	p := &Pipeline{
		cfg:     cfg,
		admit:   admit,
		perform: perform,
		state:   st,
		logger:  logger,
		sleep:   sleepCtx,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p.queue = make(chan *message.Event, cfg.QueueSize)
	return p
}

// Enqueue appends ev to the work queue. It blocks while the queue is full.
func (p *Pipeline) Enqueue(ctx context.Context, ev *message.Event) error {
	select {
	case p.queue <- ev:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles queued events until ctx is cancelled. Event N+1 starts only
// after event N has settled.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("pipeline: worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline: worker stopped", "pending", len(p.queue))
			return
		case ev := <-p.queue:
			metrics.QueueDepth.Set(float64(len(p.queue)))
			p.Handle(ctx, ev)
		}
	}
}

// Handle processes one event to completion. A panic is recovered here,
// counted as an error and never reaches the caller.
func (p *Pipeline) Handle(ctx context.Context, ev *message.Event) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline: panic while handling status", "panic", r, "stack", string(debug.Stack()))
			p.state.Count(func(s *state.Stats) { s.Errors++ })
			p.state.AddLog(state.LogError, fmt.Sprintf("Error: %v", r), nil)
			p.state.Publish()
			res = ResultPanic
		}
		metrics.EventsTotal.WithLabelValues(res.String()).Inc()
	}()
	return p.handle(ctx, ev)
}

func (p *Pipeline) handle(ctx context.Context, ev *message.Event) Result {
	if !p.state.Toggles().BotEnabled {
		return ResultFiltered
	}

	if ev.Sender() == "" {
		p.logger.Warn("pipeline: status without participant", "id", ev.Key.ID)
		p.state.Count(func(s *state.Stats) { s.Skipped++ })
		return ResultFiltered
	}
	if p.isSelf(ev) {
		return ResultFiltered
	}

	number := ev.SenderNumber()
	name := ev.SenderName()
	if slices.Contains(p.cfg.ExcludeNumbers, number) {
		p.state.AddLog(state.LogSkip, fmt.Sprintf("Skipped %s (excluded)", name), nil)
		p.state.Count(func(s *state.Stats) { s.Skipped++ })
		return ResultFiltered
	}
	if len(p.cfg.OnlyTheseNumbers) > 0 && !slices.Contains(p.cfg.OnlyTheseNumbers, number) {
		p.state.Count(func(s *state.Stats) { s.Skipped++ })
		return ResultFiltered
	}

	d := p.admit.CanPerformAction(p.now())
	if !d.Allowed {
		p.state.AddLog(state.LogSkip, "Skipped: "+d.Reason.String(), map[string]string{"sender": name})
		p.state.Count(func(s *state.Stats) { s.Skipped++ })
		p.state.Publish()
		return ResultDenied
	}

	p.logger.Info("pipeline: new status", "sender", name, "number", number, "type", ev.Kind, "id", ev.Key.ID)
	p.state.AddLog(state.LogInfo, fmt.Sprintf("New status from %s (%s)", name, ev.Kind), nil)

	p.download(ctx, ev, name)

	for _, st := range p.stages(ev, name) {
		if !st.enabled(p.state.Toggles()) {
			continue
		}
		if err := p.runStage(ctx, st); err != nil {
			p.logger.Info("pipeline: abandoning status", "sender", name, "err", err)
			return ResultAbandoned
		}
	}
	return ResultCompleted
}

func (p *Pipeline) isSelf(ev *message.Event) bool {
	if ev.Key.FromMe {
		return true
	}
	return p.cfg.SelfJID != "" && ev.SenderNumber() == p.cfg.SelfJID.User()
}

func (p *Pipeline) download(ctx context.Context, ev *message.Event, name string) {
	if p.archiver == nil || !p.state.DownloadEnabled() {
		return
	}
	entry, err := p.archiver.Archive(ctx, ev)
	if err != nil {
		p.logger.Warn("pipeline: download failed", "sender", name, "err", err)
		return
	}
	p.state.Count(func(s *state.Stats) { s.Downloaded++ })
	p.state.AddLog(state.LogSuccess, fmt.Sprintf("📥 Downloaded %s from %s", entry.Type, name), nil)
	p.state.Broadcast(state.UpdateDownload, entry)
}

type stage struct {
	kind    throttle.Kind
	label   string
	enabled func(state.Toggles) bool
	run     func(ctx context.Context) action.Outcome
	count   func(*state.Stats)
	success func() string
	failure string
}

func (p *Pipeline) stages(ev *message.Event, name string) []stage {
	var emoji string
	return []stage{
		{
			kind:    throttle.KindView,
			label:   "View",
			enabled: func(t state.Toggles) bool { return t.AutoView },
			run:     func(ctx context.Context) action.Outcome { return p.perform.View(ctx, ev) },
			count:   func(s *state.Stats) { s.Viewed++ },
			success: func() string { return "✅ Viewed status from " + name },
			failure: "Failed to view status from " + name,
		},
		{
			kind:    throttle.KindReact,
			label:   "React",
			enabled: func(t state.Toggles) bool { return t.AutoLike },
			run: func(ctx context.Context) action.Outcome {
				emoji = p.state.RandomEmoji(p.rnd)
				return p.perform.React(ctx, ev, emoji)
			},
			count:   func(s *state.Stats) { s.Liked++ },
			success: func() string { return fmt.Sprintf("%s Reacted to %s's status", emoji, name) },
			failure: fmt.Sprintf("Failed to react to %s's status", name),
		},
		{
			kind:    throttle.KindReply,
			label:   "Reply",
			enabled: func(t state.Toggles) bool { return t.AutoReply },
			run:     func(ctx context.Context) action.Outcome { return p.perform.Reply(ctx, ev, p.cfg.ReplyMessage) },
			count:   func(s *state.Stats) { s.Replied++ },
			success: func() string { return "💬 Replied to " + name },
			failure: "Failed to reply to " + name,
		},
	}
}

// runStage sleeps for the pacing delay, then executes the action. Stats are
// persisted and published once per stage. The only error it returns is a
// cancelled pacing delay.
func (p *Pipeline) runStage(ctx context.Context, st stage) error {
	delay := p.admit.RandomDelay(st.kind)
	metrics.PacingDelaySeconds.WithLabelValues(st.kind.String()).Observe(delay.Seconds())
	p.logger.Debug("pipeline: pacing", "kind", st.kind, "delay", delay)
	if err := p.sleep(ctx, delay); err != nil {
		return err
	}

	p.execute(ctx, st)
	p.state.Publish()
	return nil
}

// execute runs one stage action and accounts for its outcome. A panic is
// contained to the stage so later stages still run.
func (p *Pipeline) execute(ctx context.Context, st stage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline: panic in stage", "kind", st.kind, "panic", r, "stack", string(debug.Stack()))
			p.state.Count(func(s *state.Stats) { s.Errors++ })
			p.state.AddLog(state.LogError, fmt.Sprintf("%s error: %v", st.label, r), nil)
		}
	}()

	out := st.run(ctx)
	if out.Success {
		now := p.now()
		p.state.Count(func(s *state.Stats) {
			st.count(s)
			s.LastActivity = &now
		})
		p.admit.RecordAction()
		p.state.AddLog(state.LogSuccess, st.success(), nil)
	} else {
		p.state.Count(func(s *state.Stats) { s.Errors++ })
		var details map[string]string
		if out.Err != nil {
			details = map[string]string{"error": out.Err.Error()}
		}
		p.state.AddLog(state.LogError, st.failure, details)
	}
}
