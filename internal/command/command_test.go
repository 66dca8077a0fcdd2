package command

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbes/status-engage-bot/internal/state"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{".view on", ViewOn},
		{".VIEW OFF", ViewOff},
		{"/like on", LikeOn},
		{"  .like   off ", LikeOff},
		{"/reply on", ReplyOn},
		{".reply off", ReplyOff},
		{".bot on", BotOn},
		{"/bot off", BotOff},
		{".status", Status},
		{"/status@StatusBot", Status},
		{".stats", Stats},
		{"/emojis", Emojis},
		{".help", Help},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	for _, in := range []string{"", "   ", ".", ".view", ".view maybe", "view on", ".dance", "/start", ".status now"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrUnknownCommand, "input %q", in)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "view on", ViewOn.String())
	assert.Equal(t, "help", Help.String())
	assert.Equal(t, "command(99)", Command(99).String())
	assert.True(t, BotOff.IsToggle())
	assert.False(t, Status.IsToggle())
}

func newTestDispatcher() (*Dispatcher, *state.Store) {
	st := state.Open(state.Options{
		Toggles: state.Toggles{BotEnabled: true, AutoView: true, AutoLike: true},
		Emojis:  []string{"🔥", "😍"},
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewDispatcher(st, "http://localhost:3000"), st
}

func TestExecute_Toggles(t *testing.T) {
	d, st := newTestDispatcher()

	reply, err := d.Execute(ReplyOn)
	require.NoError(t, err)
	assert.Equal(t, "Auto Reply: ON ✅", reply)
	assert.True(t, st.Toggles().AutoReply)
	assert.Equal(t, state.LogSuccess, st.Logs()[0].Type)

	reply, err = d.Execute(BotOff)
	require.NoError(t, err)
	assert.Equal(t, "Bot: OFF ❌", reply)
	assert.False(t, st.Toggles().BotEnabled)
	assert.True(t, st.Toggles().AutoView, "other toggles untouched")
	assert.Equal(t, state.LogWarn, st.Logs()[0].Type)
}

func TestExecute_TogglePublishes(t *testing.T) {
	d, st := newTestDispatcher()
	updates, cancel := st.Hub().Subscribe(16)
	defer cancel()

	_, err := d.Execute(LikeOff)
	require.NoError(t, err)

	var sawState bool
	for len(updates) > 0 {
		u := <-updates
		if u.Type == state.UpdateState {
			sawState = true
			assert.False(t, u.Payload.(state.Toggles).AutoLike)
		}
	}
	assert.True(t, sawState)
}

func TestExecute_InfoCommands(t *testing.T) {
	d, st := newTestDispatcher()
	st.Count(func(s *state.Stats) {
		s.Viewed = 1234
		s.Skipped = 7
	})

	status, err := d.Execute(Status)
	require.NoError(t, err)
	assert.Contains(t, status, "⚡ Bot: ✅ ON")
	assert.Contains(t, status, "💬 Auto Reply: ❌ OFF")
	assert.Contains(t, status, "👁️ Viewed: 1,234")
	assert.Contains(t, status, "🔥 😍")

	stats, err := d.Execute(Stats)
	require.NoError(t, err)
	assert.Contains(t, stats, "⏭️ Skipped: 7")
	assert.Contains(t, stats, "⏱️ Uptime: 0h 0m")

	emojis, err := d.Execute(Emojis)
	require.NoError(t, err)
	assert.Contains(t, emojis, "🔥 😍")

	help, err := d.Execute(Help)
	require.NoError(t, err)
	assert.Contains(t, help, ".bot on/off")
	assert.Contains(t, help, "http://localhost:3000")

	assert.Empty(t, st.Logs(), "info commands do not log")
}

func TestExecute_Unknown(t *testing.T) {
	d, _ := newTestDispatcher()
	_, err := d.Execute(Command(0))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = d.ExecuteText(".selfdestruct")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	reply, err := d.ExecuteText(".view off")
	require.NoError(t, err)
	assert.Equal(t, "Auto View: OFF ❌", reply)
}
