package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigbes/status-engage-bot/internal/command"
	"github.com/bigbes/status-engage-bot/internal/message"
	"github.com/bigbes/status-engage-bot/internal/state"
)

const (
	dedupeSize = 4096
	dedupeTTL  = 10 * time.Minute
	retryDelay = 5 * time.Second
)

// Enqueuer accepts status events for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev *message.Event) error
}

// CommandRunner executes operator commands written in the self chat.
type CommandRunner interface {
	ExecuteText(text string) (string, error)
}

// Poller pulls updates from the gateway and routes them: status broadcasts
// go to the pipeline, dot-commands the account sends itself go to the
// command dispatcher, everything else is ignored.
type Poller struct {
	client   *Client
	events   Enqueuer
	commands CommandRunner
	state    *state.Store
	logger   *slog.Logger
	timeout  int
	seen     *expirable.LRU[string, struct{}]
}

func NewPoller(client *Client, events Enqueuer, commands CommandRunner, st *state.Store, timeout int, logger *slog.Logger) *Poller {
	return &Poller{
		client:   client,
		events:   events,
		commands: commands,
		state:    st,
		logger:   logger,
		timeout:  timeout,
		seen:     expirable.NewLRU[string, struct{}](dedupeSize, nil, dedupeTTL),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("gateway: polling started", "url", p.client.baseURL)

	if s, err := p.client.Session(ctx); err != nil {
		p.logger.Warn("gateway: initial session fetch failed", "err", err)
	} else {
		p.publishSession(*s)
	}

	var offset int64
	for {
		updates, err := p.client.Poll(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("gateway: poll failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if err := p.dispatch(ctx, u); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("gateway: update handling failed", "update_id", u.UpdateID, "err", err)
			}
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, u Update) error {
	switch {
	case u.Session != nil:
		p.handleSession(*u.Session)
		return nil
	case u.Message != nil:
		return p.handleMessage(ctx, u.Message)
	default:
		return nil
	}
}

func (p *Poller) handleSession(s Session) {
	was := p.client.Connected()
	p.client.SetSession(s)
	switch {
	case s.Connected && !was:
		p.state.AddLog(state.LogSuccess, "✅ Connected successfully!", nil)
	case !s.Connected && was:
		msg := "Disconnected"
		if s.Reason != "" {
			msg = fmt.Sprintf("Disconnected (%s)", s.Reason)
		}
		p.state.AddLog(state.LogWarn, msg, nil)
	}
	p.publishSession(s)
}

func (p *Poller) publishSession(s Session) {
	p.state.Broadcast(state.UpdateConnection, map[string]bool{"connected": s.Connected})
	if s.QR != "" {
		p.state.Broadcast(state.UpdateQR, s.QR)
	}
	if s.PairingCode != "" {
		p.state.Broadcast(state.UpdatePairingCode, FormatPairingCode(s.PairingCode))
	}
	if s.Connected {
		p.state.Publish()
	}
}

func (p *Poller) handleMessage(ctx context.Context, m *Message) error {
	key := string(m.Key.RemoteJID) + "/" + string(m.Key.Participant) + "/" + m.Key.ID
	if p.seen.Contains(key) {
		p.logger.Debug("gateway: dropping duplicate message", "id", m.Key.ID)
		return nil
	}
	p.seen.Add(key, struct{}{})

	if m.Key.RemoteJID.IsStatusBroadcast() {
		p.logger.Debug("gateway: status received", "from", m.Key.Participant)
		return p.events.Enqueue(ctx, m.Event())
	}

	if m.Key.FromMe && strings.HasPrefix(strings.TrimSpace(m.Text), ".") {
		return p.handleCommand(ctx, m)
	}
	return nil
}

func (p *Poller) handleCommand(ctx context.Context, m *Message) error {
	reply, err := p.commands.ExecuteText(m.Text)
	if errors.Is(err, command.ErrUnknownCommand) {
		reply = "❓ Unknown command. Send .help for the list."
	} else if err != nil {
		return fmt.Errorf("executing %q: %w", m.Text, err)
	}
	p.logger.Info("gateway: command executed", "text", m.Text)
	return p.client.SendText(ctx, m.Key.RemoteJID, reply)
}
