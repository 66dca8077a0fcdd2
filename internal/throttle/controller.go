// Package throttle decides whether an engagement action may run now and
// keeps the hourly, daily and cooldown counters that drive the decision.
package throttle

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bigbes/status-engage-bot/internal/metrics"
)

const (
	hourlyWindow      = time.Hour
	dailyCheckPeriod  = time.Minute
	dailyResetMinimum = 23 * time.Hour
)

// Reason explains a denied admission.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonOutsideActiveHours
	ReasonHourlyLimit
	ReasonDailyLimit
	ReasonInCooldown
	ReasonRandomSkip
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonOutsideActiveHours:
		return "Outside active hours"
	case ReasonHourlyLimit:
		return "Hourly limit reached"
	case ReasonDailyLimit:
		return "Daily limit reached"
	case ReasonInCooldown:
		return "In cooldown period"
	case ReasonRandomSkip:
		return "Random skip (human-like behavior)"
	default:
		return "unknown"
	}
}

// Label is the metric label for the reason.
func (r Reason) Label() string {
	switch r {
	case ReasonOutsideActiveHours:
		return "outside_active_hours"
	case ReasonHourlyLimit:
		return "hourly_limit"
	case ReasonDailyLimit:
		return "daily_limit"
	case ReasonInCooldown:
		return "in_cooldown"
	case ReasonRandomSkip:
		return "random_skip"
	default:
		return "none"
	}
}

// Decision is the verdict of one admission check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Wait    time.Duration
}

// Status is a point-in-time view for observers.
type Status struct {
	Enabled              bool `json:"enabled"`
	ActionsThisHour      int  `json:"actionsThisHour"`
	ActionsToday         int  `json:"actionsToday"`
	MaxPerHour           int  `json:"maxPerHour"`
	MaxPerDay            int  `json:"maxPerDay"`
	IsInCooldown         bool `json:"isInCooldown"`
	IsWithinActiveHours  bool `json:"isWithinActiveHours"`
	ActionsSinceCooldown int  `json:"actionsSinceLastCooldown"`
}

// TimerFunc schedules f after d and returns a function that cancels it.
// f must run asynchronously: it takes the controller lock.
type TimerFunc func(d time.Duration, f func()) (stop func() bool)

func realTimer(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRand overrides the random source used for skips and delays.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rnd = r }
}

// WithTimer overrides how the cooldown timer is scheduled.
func WithTimer(t TimerFunc) Option {
	return func(c *Controller) { c.timer = t }
}

// Controller is the admission controller. It is safe for concurrent use:
// the reset timers run on their own goroutines.
type Controller struct {
	policy Policy
	store  *CounterStore
	logger *slog.Logger
	now    func() time.Time
	rnd    *rand.Rand
	timer  TimerFunc

	mu                   sync.Mutex
	actionsThisHour      int
	actionsToday         int
	actionsSinceCooldown int
	hourlyResetAt        time.Time
	dailyResetAt         time.Time
	lastActionAt         time.Time
	inCooldown           bool
	cooldownGen          uint64
	stopCooldown         func() bool
}

// New builds a Controller and loads the durable daily counter from store.
func New(policy Policy, store *CounterStore, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		policy: policy,
		store:  store,
		logger: logger,
		now:    time.Now,
		timer:  realTimer,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.store == nil {
		c.store = NewCounterStore("", logger)
	}

	now := c.now()
	c.hourlyResetAt = now
	c.dailyResetAt = now
	if saved, ok := c.store.Load(); ok {
		c.actionsToday = saved.ActionsToday
		if t := unixMilli(saved.DailyResetTime); !t.IsZero() {
			c.dailyResetAt = t
		}
	}
	c.updateGauges()
	return c
}

// Policy returns the active policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// CanPerformAction evaluates the admission checks in priority order; the
// first failing check wins. The random skip is drawn last and afresh on
// every call.
func (c *Controller) CanPerformAction(now time.Time) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.policy
	if !p.Enabled {
		return Decision{Allowed: true}
	}

	if p.ActiveHoursOnly && !inActiveHours(now.Hour(), p.ActiveStart, p.ActiveEnd) {
		return c.deny(ReasonOutsideActiveHours, nextHour(now, p.ActiveStart).Sub(now))
	}

	if c.actionsThisHour >= p.MaxPerHour {
		wait := c.hourlyResetAt.Add(hourlyWindow).Sub(now)
		if wait < 0 {
			wait = 0
		}
		return c.deny(ReasonHourlyLimit, wait)
	}

	if c.actionsToday >= p.MaxPerDay {
		return c.deny(ReasonDailyLimit, nextHour(now, p.DailyResetHour).Sub(now))
	}

	if c.inCooldown {
		return c.deny(ReasonInCooldown, p.CooldownDuration)
	}

	if c.rnd.Float64() < p.SkipChance {
		return c.deny(ReasonRandomSkip, 0)
	}

	return Decision{Allowed: true}
}

func (c *Controller) deny(reason Reason, wait time.Duration) Decision {
	metrics.AdmissionDeniedTotal.WithLabelValues(reason.Label()).Inc()
	return Decision{Reason: reason, Wait: wait}
}

// RecordAction accounts for one performed action. It is the only place
// where the cooldown gets armed.
func (c *Controller) RecordAction() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.actionsThisHour++
	c.actionsToday++
	c.actionsSinceCooldown++
	c.lastActionAt = c.now()
	c.persistLocked()

	if c.policy.CooldownAfter > 0 && c.actionsSinceCooldown >= c.policy.CooldownAfter {
		c.startCooldownLocked()
	}
	c.updateGauges()
}

func (c *Controller) startCooldownLocked() {
	if c.stopCooldown != nil {
		c.stopCooldown()
	}
	c.inCooldown = true
	c.actionsSinceCooldown = 0
	c.cooldownGen++
	gen := c.cooldownGen

	c.logger.Info("throttle: entering cooldown", "duration", c.policy.CooldownDuration)
	c.stopCooldown = c.timer(c.policy.CooldownDuration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.cooldownGen {
			return
		}
		c.inCooldown = false
		c.stopCooldown = nil
		c.updateGauges()
		c.logger.Info("throttle: cooldown ended")
	})
}

// RandomDelay returns a pacing delay drawn uniformly from the configured
// range for kind, in whole milliseconds, bounds inclusive.
func (c *Controller) RandomDelay(kind Kind) time.Duration {
	r, ok := c.policy.Delays[kind]
	if !ok {
		r = defaultRange
	}
	lo, hi := r.Min.Milliseconds(), r.Max.Milliseconds()
	if hi < lo {
		hi = lo
	}

	c.mu.Lock()
	ms := lo + c.rnd.Int64N(hi-lo+1)
	c.mu.Unlock()
	return time.Duration(ms) * time.Millisecond
}

// ResetHourly zeroes the hourly counter and starts a new hourly window.
func (c *Controller) ResetHourly(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actionsThisHour = 0
	c.hourlyResetAt = now
	c.updateGauges()
	c.logger.Info("throttle: hourly action counter reset")
}

// CheckDailyReset zeroes the daily counter when the local hour is the
// configured reset hour and at least 23h passed since the previous reset.
// It reports whether a reset happened.
func (c *Controller) CheckDailyReset(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Hour() != c.policy.DailyResetHour {
		return false
	}
	if now.Sub(c.dailyResetAt) < dailyResetMinimum {
		return false
	}
	c.actionsToday = 0
	c.dailyResetAt = now
	c.persistLocked()
	c.updateGauges()
	c.logger.Info("throttle: daily action counter reset")
	return true
}

// Run drives the hourly and daily reset timers until ctx is cancelled. The
// hourly window counts from process start, not from the top of the hour.
func (c *Controller) Run(ctx context.Context) {
	hourly := time.NewTicker(hourlyWindow)
	defer hourly.Stop()
	daily := time.NewTicker(dailyCheckPeriod)
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-hourly.C:
			c.ResetHourly(c.now())
		case <-daily.C:
			c.CheckDailyReset(c.now())
		}
	}
}

// Stop cancels a pending cooldown timer and flushes the durable counters.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCooldown != nil {
		c.stopCooldown()
		c.stopCooldown = nil
	}
	c.persistLocked()
}

// WithinActiveHours reports whether now is inside the active-hours window.
// It is always true when the restriction is off.
func (c *Controller) WithinActiveHours(now time.Time) bool {
	if !c.policy.ActiveHoursOnly {
		return true
	}
	return inActiveHours(now.Hour(), c.policy.ActiveStart, c.policy.ActiveEnd)
}

// Status snapshots the counters.
func (c *Controller) Status(now time.Time) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Enabled:              c.policy.Enabled,
		ActionsThisHour:      c.actionsThisHour,
		ActionsToday:         c.actionsToday,
		MaxPerHour:           c.policy.MaxPerHour,
		MaxPerDay:            c.policy.MaxPerDay,
		IsInCooldown:         c.inCooldown,
		IsWithinActiveHours:  c.WithinActiveHours(now),
		ActionsSinceCooldown: c.actionsSinceCooldown,
	}
}

// LastActionAt returns the time of the most recent recorded action.
func (c *Controller) LastActionAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActionAt
}

func (c *Controller) persistLocked() {
	c.store.Save(Counters{
		ActionsToday:   c.actionsToday,
		DailyResetTime: c.dailyResetAt.UnixMilli(),
	})
}

func (c *Controller) updateGauges() {
	metrics.ActionsThisHour.Set(float64(c.actionsThisHour))
	metrics.ActionsToday.Set(float64(c.actionsToday))
	metrics.InCooldown.Set(metrics.BoolGauge(c.inCooldown))
}
