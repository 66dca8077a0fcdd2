package command

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bigbes/status-engage-bot/internal/state"
)

const rule = "━━━━━━━━━━━━━━━━"

type toggleSpec struct {
	label string
	on    bool
	set   func(p *state.TogglesPatch, v *bool)
}

func setView(p *state.TogglesPatch, v *bool)  { p.AutoView = v }
func setLike(p *state.TogglesPatch, v *bool)  { p.AutoLike = v }
func setReply(p *state.TogglesPatch, v *bool) { p.AutoReply = v }
func setBot(p *state.TogglesPatch, v *bool)   { p.BotEnabled = v }

var toggles = map[Command]toggleSpec{
	ViewOn:   {"Auto View", true, setView},
	ViewOff:  {"Auto View", false, setView},
	LikeOn:   {"Auto Like", true, setLike},
	LikeOff:  {"Auto Like", false, setLike},
	ReplyOn:  {"Auto Reply", true, setReply},
	ReplyOff: {"Auto Reply", false, setReply},
	BotOn:    {"Bot", true, setBot},
	BotOff:   {"Bot", false, setBot},
}

// Dispatcher executes commands against the shared state.
type Dispatcher struct {
	state        *state.Store
	dashboardURL string
}

func NewDispatcher(st *state.Store, dashboardURL string) *Dispatcher {
	return &Dispatcher{state: st, dashboardURL: dashboardURL}
}

// Execute applies cmd and returns the reply text for the operator.
func (d *Dispatcher) Execute(cmd Command) (string, error) {
	if spec, ok := toggles[cmd]; ok {
		return d.toggle(spec), nil
	}
	switch cmd {
	case Status:
		return d.statusText(), nil
	case Stats:
		return d.statsText(), nil
	case Emojis:
		return d.emojisText(), nil
	case Help:
		return d.helpText(), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

// ExecuteText parses and executes text.
func (d *Dispatcher) ExecuteText(text string) (string, error) {
	cmd, err := Parse(text)
	if err != nil {
		return "", err
	}
	return d.Execute(cmd)
}

func (d *Dispatcher) toggle(spec toggleSpec) string {
	v := spec.on
	var patch state.TogglesPatch
	spec.set(&patch, &v)
	d.state.SetToggles(patch)

	if spec.on {
		msg := spec.label + ": ON ✅"
		d.state.AddLog(state.LogSuccess, msg, nil)
		return msg
	}
	msg := spec.label + ": OFF ❌"
	d.state.AddLog(state.LogWarn, msg, nil)
	return msg
}

func onOff(b bool) string {
	if b {
		return "✅ ON"
	}
	return "❌ OFF"
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

func (d *Dispatcher) statusText() string {
	snap := d.state.Snapshot()
	emojis := snap.SelectedEmojis
	if len(emojis) > 5 {
		emojis = emojis[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 BOT STATUS\n%s\n", rule)
	fmt.Fprintf(&b, "⚡ Bot: %s\n", onOff(snap.BotEnabled))
	fmt.Fprintf(&b, "👁️ Auto View: %s\n", onOff(snap.AutoView))
	fmt.Fprintf(&b, "❤️ Auto Like: %s\n", onOff(snap.AutoLike))
	fmt.Fprintf(&b, "💬 Auto Reply: %s\n\n", onOff(snap.AutoReply))
	fmt.Fprintf(&b, "📊 STATS\n%s\n", rule)
	fmt.Fprintf(&b, "👁️ Viewed: %s\n", count(snap.Viewed))
	fmt.Fprintf(&b, "❤️ Liked: %s\n", count(snap.Liked))
	fmt.Fprintf(&b, "💬 Replied: %s\n", count(snap.Replied))
	fmt.Fprintf(&b, "📥 Downloaded: %s\n\n", count(snap.Downloaded))
	bp := snap.BanProtection
	if bp.Enabled {
		fmt.Fprintf(&b, "🛡️ Limits: %d/%d this hour, %d/%d today", bp.ActionsThisHour, bp.MaxPerHour, bp.ActionsToday, bp.MaxPerDay)
		if bp.IsInCooldown {
			b.WriteString(", cooling down")
		}
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "🎭 EMOJIS: %s", strings.Join(emojis, " "))
	return b.String()
}

func (d *Dispatcher) statsText() string {
	snap := d.state.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "📊 STATISTICS\n%s\n", rule)
	fmt.Fprintf(&b, "👁️ Viewed: %s\n", count(snap.Viewed))
	fmt.Fprintf(&b, "❤️ Liked: %s\n", count(snap.Liked))
	fmt.Fprintf(&b, "💬 Replied: %s\n", count(snap.Replied))
	fmt.Fprintf(&b, "⏭️ Skipped: %s\n", count(snap.Skipped))
	fmt.Fprintf(&b, "❌ Errors: %s\n", count(snap.Errors))
	fmt.Fprintf(&b, "📥 Downloaded: %s\n", count(snap.Downloaded))
	fmt.Fprintf(&b, "⏱️ Uptime: %s", snap.Uptime)
	return b.String()
}

func (d *Dispatcher) emojisText() string {
	return fmt.Sprintf("🎭 SELECTED EMOJIS\n%s\n%s\n\nUse the dashboard to change emojis.",
		rule, strings.Join(d.state.SelectedEmojis(), " "))
}

func (d *Dispatcher) helpText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📖 COMMANDS\n%s\n", rule)
	b.WriteString(".view on/off - Toggle auto view\n")
	b.WriteString(".like on/off - Toggle auto like\n")
	b.WriteString(".reply on/off - Toggle auto reply\n")
	b.WriteString(".bot on/off - Enable/disable bot\n")
	b.WriteString(".status - Show status\n")
	b.WriteString(".stats - Show statistics\n")
	b.WriteString(".emojis - Show emojis\n")
	b.WriteString(".help - Show help")
	if d.dashboardURL != "" {
		fmt.Fprintf(&b, "\n\n🌐 Dashboard: %s", d.dashboardURL)
	}
	return b.String()
}
