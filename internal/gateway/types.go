package gateway

import (
	"time"

	"github.com/bigbes/status-engage-bot/internal/message"
)

// Update is one item of the long-poll stream. Exactly one of Message and
// Session is set.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
	Session  *Session `json:"session,omitempty"`
}

// Message is an inbound message as delivered by the gateway.
type Message struct {
	Key       message.Key `json:"key"`
	PushName  string      `json:"push_name"`
	Type      string      `json:"type"` // e.g. "imageMessage", "conversation"
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	FileName  string      `json:"file_name,omitempty"`
	Timestamp int64       `json:"timestamp"` // unix seconds
}

// Event converts m to the pipeline event type.
func (m *Message) Event() *message.Event {
	ev := &message.Event{
		Key:      m.Key,
		PushName: m.PushName,
		Kind:     message.ParseContentKind(m.Type),
		Text:     m.Text,
		Caption:  m.Caption,
		FileName: m.FileName,
	}
	if m.Timestamp > 0 {
		ev.ReceivedAt = time.Unix(m.Timestamp, 0)
	} else {
		ev.ReceivedAt = time.Now()
	}
	return ev
}

// Session describes the gateway's link to the messaging account.
type Session struct {
	Connected   bool   `json:"connected"`
	JID         string `json:"jid,omitempty"`
	QR          string `json:"qr,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	Reason      string `json:"reason,omitempty"` // disconnect reason
}

type pollRequest struct {
	Offset  int64 `json:"offset"`
	Timeout int   `json:"timeout"`
}

type pollResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

type receiptRequest struct {
	Chat        message.JID `json:"chat"`
	Participant message.JID `json:"participant"`
	IDs         []string    `json:"ids"`
	Type        string      `json:"type"`
}

type readRequest struct {
	Keys []message.Key `json:"keys"`
}

type presenceRequest struct {
	Presence string      `json:"presence"`
	To       message.JID `json:"to"`
}

type reactionRequest struct {
	To            message.JID   `json:"to"`
	Key           message.Key   `json:"key"`
	Emoji         string        `json:"emoji"`
	StatusJIDList []message.JID `json:"status_jid_list,omitempty"`
}

type textRequest struct {
	To   message.JID `json:"to"`
	Text string      `json:"text"`
}

type pairingRequest struct {
	Phone string `json:"phone"`
}

type pairingResponse struct {
	Code string `json:"code"`
}
