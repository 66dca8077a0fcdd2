package throttle

import (
	"time"

	"github.com/bigbes/status-engage-bot/internal/config"
)

// Kind selects a pacing delay range.
type Kind int

const (
	KindView Kind = iota
	KindReact
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindReact:
		return "react"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Range is an inclusive delay range.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// defaultRange applies to kinds without a configured range.
var defaultRange = Range{Min: 2 * time.Second, Max: 5 * time.Second}

// Policy is the static throttling configuration.
type Policy struct {
	Enabled          bool
	MaxPerHour       int
	MaxPerDay        int
	Delays           map[Kind]Range
	SkipChance       float64
	ActiveHoursOnly  bool
	ActiveStart      int
	ActiveEnd        int
	CooldownAfter    int
	CooldownDuration time.Duration
	DailyResetHour   int
}

// PolicyFromConfig converts the ban_protection config section.
func PolicyFromConfig(bp config.BanProtectionConfig) Policy {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Policy{
		Enabled:    bp.Enabled,
		MaxPerHour: bp.MaxActionsPerHour,
		MaxPerDay:  bp.MaxActionsPerDay,
		Delays: map[Kind]Range{
			KindView:  {Min: ms(bp.Delays.ViewMin), Max: ms(bp.Delays.ViewMax)},
			KindReact: {Min: ms(bp.Delays.LikeMin), Max: ms(bp.Delays.LikeMax)},
			KindReply: {Min: ms(bp.Delays.ReplyMin), Max: ms(bp.Delays.ReplyMax)},
		},
		SkipChance:       bp.SkipChance,
		ActiveHoursOnly:  bp.ActiveHoursOnly,
		ActiveStart:      bp.ActiveHours.Start,
		ActiveEnd:        bp.ActiveHours.End,
		CooldownAfter:    bp.CooldownAfterActions,
		CooldownDuration: bp.Cooldown(),
		DailyResetHour:   bp.DailyResetHour,
	}
}

// inActiveHours reports whether hour lies in [start, end]. A window with
// start > end wraps past midnight.
func inActiveHours(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// nextHour returns the first instant strictly after now whose local clock
// reads hour:00:00.
func nextHour(now time.Time, hour int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
