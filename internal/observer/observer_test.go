package observer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbes/status-engage-bot/internal/command"
	"github.com/bigbes/status-engage-bot/internal/config"
	"github.com/bigbes/status-engage-bot/internal/gateway"
	"github.com/bigbes/status-engage-bot/internal/state"
	"github.com/bigbes/status-engage-bot/internal/telegram"
)

type call struct {
	method string
	body   map[string]any
}

type fakeTelegram struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	c := call{method: method}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &c.body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if method == "getUpdates" {
		// Block like a long poll so the test controls the pace.
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
		}
		w.Write([]byte(`{"ok":true,"result":[]}`))
		return
	}
	w.Write([]byte(`{"ok":true}`))
}

func (f *fakeTelegram) Calls(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

type fakeSessions struct{ s gateway.Session }

func (f fakeSessions) CurrentSession() gateway.Session { return f.s }

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newObserver(t *testing.T, chatID int64, sess gateway.Session, allowed ...int64) (*Observer, *fakeTelegram, *state.Store) {
	t.Helper()
	f := &fakeTelegram{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.ApplyDefaults(t.TempDir())
	cfg.Telegram.AllowedUsers = allowed

	st := state.Open(state.Options{Toggles: state.Toggles{BotEnabled: true}}, nil, testLogger)
	bot := telegram.NewBotWithURL(srv.URL, "tok", chatID)
	return New(bot, command.NewDispatcher(st, ""), fakeSessions{sess}, cfg, testLogger), f, st
}

func privateMsg(userID int64, text string) *telegram.Message {
	return &telegram.Message{
		From: &telegram.User{ID: userID},
		Chat: telegram.Chat{ID: userID, Type: "private"},
		Text: text,
	}
}

func TestHandleCommand_Toggle(t *testing.T) {
	o, f, st := newObserver(t, 0, gateway.Session{})

	o.handleCommand(context.Background(), privateMsg(1, "/like@statusbot off"))

	assert.False(t, st.Toggles().AutoLike)
	sent := f.Calls("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, float64(1), sent[0].body["chat_id"])
	assert.Equal(t, "Auto Like: OFF ❌", sent[0].body["text"])
}

func TestHandleCommand_StartAndUnknown(t *testing.T) {
	o, f, _ := newObserver(t, 0, gateway.Session{})

	o.handleCommand(context.Background(), privateMsg(1, "/start"))
	o.handleCommand(context.Background(), privateMsg(1, "/dance"))
	o.handleCommand(context.Background(), privateMsg(1, "hello there"))

	sent := f.Calls("sendMessage")
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].body["text"], "COMMANDS")
	assert.Contains(t, sent[1].body["text"], "Unknown command")
}

func TestHandleCommand_AllowedUsers(t *testing.T) {
	o, f, st := newObserver(t, 0, gateway.Session{}, 7)

	o.handleCommand(context.Background(), privateMsg(8, "/bot off"))
	assert.True(t, st.Toggles().BotEnabled)
	assert.Empty(t, f.Calls("sendMessage"))

	o.handleCommand(context.Background(), &telegram.Message{Chat: telegram.Chat{ID: 1, Type: "private"}, Text: "/bot off"})
	assert.True(t, st.Toggles().BotEnabled, "message without sender is rejected")

	group := &telegram.Message{From: &telegram.User{ID: 8}, Chat: telegram.Chat{ID: -100, Type: "group"}, Text: "/status"}
	o.handleCommand(context.Background(), group)
	require.Len(t, f.Calls("sendMessage"), 1)

	o.handleCommand(context.Background(), privateMsg(7, "/bot off"))
	assert.False(t, st.Toggles().BotEnabled)
}

func TestHandleCommand_QR(t *testing.T) {
	t.Run("photo", func(t *testing.T) {
		o, f, _ := newObserver(t, 0, gateway.Session{QR: "2@abcdef"})
		o.handleCommand(context.Background(), privateMsg(1, "/qr"))
		assert.Len(t, f.Calls("sendPhoto"), 1)
		assert.Empty(t, f.Calls("sendMessage"))
	})
	t.Run("pairing code", func(t *testing.T) {
		o, f, _ := newObserver(t, 0, gateway.Session{PairingCode: "ABCD-EFGH"})
		o.handleCommand(context.Background(), privateMsg(1, "/qr"))
		sent := f.Calls("sendMessage")
		require.Len(t, sent, 1)
		assert.Equal(t, "HTML", sent[0].body["parse_mode"])
		assert.Contains(t, sent[0].body["text"], "ABCD-EFGH")
	})
	t.Run("connected", func(t *testing.T) {
		o, f, _ := newObserver(t, 0, gateway.Session{Connected: true, QR: "stale"})
		o.handleCommand(context.Background(), privateMsg(1, "/qr"))
		assert.Empty(t, f.Calls("sendPhoto"))
		require.Len(t, f.Calls("sendMessage"), 1)
	})
}

func TestRun_PushesNotices(t *testing.T) {
	o, f, _ := newObserver(t, 42, gateway.Session{})
	o.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.Calls("sendMessage")) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Len(t, f.Calls("setMyCommands"), 1)
	require.Eventually(t, func() bool {
		sent := f.Calls("sendMessage")
		return strings.Contains(sent[len(sent)-1].body["text"].(string), "stopped")
	}, 2*time.Second, 5*time.Millisecond)

	sent := f.Calls("sendMessage")
	assert.Equal(t, "🟢 Status Bot started", sent[0].body["text"])
	assert.Contains(t, sent[1].body["text"], "STATISTICS")
	assert.Equal(t, float64(42), sent[1].body["chat_id"])
}
