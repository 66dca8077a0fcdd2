// Package action performs the engagement actions against the messaging
// transport. Every action kind is an ordered chain of delivery methods: the
// next method is attempted only when the previous one failed.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bigbes/status-engage-bot/internal/message"
	"github.com/bigbes/status-engage-bot/internal/metrics"
)

// ErrNoParticipant is returned when a status carries no owner identity.
var ErrNoParticipant = errors.New("action: status has no participant")

// Transport is the subset of the messaging transport the executor uses.
// Any error means "this delivery method failed".
type Transport interface {
	SendReceipt(ctx context.Context, chat, participant message.JID, ids []string, receiptType string) error
	ReadMessages(ctx context.Context, keys []message.Key) error
	SendPresence(ctx context.Context, presence string, to message.JID) error
	SendNode(ctx context.Context, node message.Node) error
	SendReaction(ctx context.Context, to message.JID, target message.Key, emoji string, statusRecipients []message.JID) error
	SendText(ctx context.Context, to message.JID, text string) error
	DownloadMedia(ctx context.Context, key message.Key) (*message.Media, error)
}

// Kind is an engagement action kind.
type Kind int

const (
	View Kind = iota
	React
	Reply
)

func (k Kind) String() string {
	switch k {
	case View:
		return "view"
	case React:
		return "react"
	case Reply:
		return "reply"
	default:
		return "unknown"
	}
}

// Outcome is the result of one action. Method is the 1-based ordinal of the
// method that succeeded, or 0 when the chain was exhausted.
type Outcome struct {
	Kind    Kind
	Success bool
	Method  int
	Err     error
}

type method struct {
	name string
	run  func(ctx context.Context) error
}

// Executor runs the fallback chains. It keeps no state between calls.
type Executor struct {
	tr     Transport
	logger *slog.Logger
	now    func() time.Time
}

func NewExecutor(tr Transport, logger *slog.Logger) *Executor {
	return &Executor{tr: tr, logger: logger, now: time.Now}
}

// View marks the status as seen by its owner.
func (e *Executor) View(ctx context.Context, ev *message.Event) Outcome {
	key := ev.Key
	owner := key.Participant
	return e.run(ctx, View, owner, []method{
		{"receipt", func(ctx context.Context) error {
			return e.tr.SendReceipt(ctx, key.RemoteJID, owner, []string{key.ID}, "read")
		}},
		{"read_messages", func(ctx context.Context) error {
			return e.tr.ReadMessages(ctx, []message.Key{key})
		}},
		{"presence_node", func(ctx context.Context) error {
			if err := e.tr.SendPresence(ctx, "available", owner); err != nil {
				return err
			}
			return e.tr.SendNode(ctx, message.Node{
				Tag: "receipt",
				Attrs: map[string]string{
					"id":   key.ID,
					"to":   string(owner),
					"type": "read",
					"t":    strconv.FormatInt(e.now().Unix(), 10),
				},
			})
		}},
	})
}

// React sends emoji as a reaction to the status.
func (e *Executor) React(ctx context.Context, ev *message.Event, emoji string) Outcome {
	key := ev.Key
	owner := key.Participant
	target := message.Key{RemoteJID: key.RemoteJID, ID: key.ID, Participant: owner}
	return e.run(ctx, React, owner, []method{
		{"status_broadcast", func(ctx context.Context) error {
			return e.tr.SendReaction(ctx, message.StatusBroadcast, target, emoji, []message.JID{owner})
		}},
		{"direct", func(ctx context.Context) error {
			return e.tr.SendReaction(ctx, owner, key, emoji, nil)
		}},
	})
}

// Reply sends text to the status owner. There is no fallback.
func (e *Executor) Reply(ctx context.Context, ev *message.Event, text string) Outcome {
	owner := ev.Key.Participant
	return e.run(ctx, Reply, owner, []method{
		{"text", func(ctx context.Context) error {
			return e.tr.SendText(ctx, owner, text)
		}},
	})
}

func (e *Executor) run(ctx context.Context, kind Kind, owner message.JID, chain []method) Outcome {
	if owner == "" {
		metrics.ActionsTotal.WithLabelValues(kind.String(), "failed").Inc()
		return Outcome{Kind: kind, Err: ErrNoParticipant}
	}

	var lastErr error
	for i, m := range chain {
		ordinal := strconv.Itoa(i + 1)
		err := m.run(ctx)
		if err == nil {
			metrics.MethodAttemptsTotal.WithLabelValues(kind.String(), ordinal, "ok").Inc()
			metrics.ActionsTotal.WithLabelValues(kind.String(), "ok").Inc()
			e.logger.Debug("action: succeeded", "kind", kind, "method", m.name, "owner", owner)
			return Outcome{Kind: kind, Success: true, Method: i + 1}
		}
		metrics.MethodAttemptsTotal.WithLabelValues(kind.String(), ordinal, "error").Inc()
		e.logger.Debug("action: method failed", "kind", kind, "method", m.name, "owner", owner, "err", err)
		lastErr = err
	}

	metrics.ActionsTotal.WithLabelValues(kind.String(), "failed").Inc()
	return Outcome{
		Kind: kind,
		Err:  fmt.Errorf("action: all %s methods failed: %w", kind, lastErr),
	}
}
