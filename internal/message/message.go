// Package message holds the transport-neutral types shared by the gateway
// client, the action executor and the event pipeline.
package message

import (
	"strings"
	"time"
)

// StatusBroadcast is the chat every status update is published to.
const StatusBroadcast JID = "status@broadcast"

// JID is a messaging identity such as "15551234567@s.whatsapp.net".
type JID string

// User returns the part before '@'.
func (j JID) User() string {
	user, _, _ := strings.Cut(string(j), "@")
	return user
}

// IsStatusBroadcast reports whether j is the status channel.
func (j JID) IsStatusBroadcast() bool {
	return j == StatusBroadcast
}

func (j JID) String() string { return string(j) }

// Key references one message on the transport.
type Key struct {
	RemoteJID   JID    `json:"remote_jid"`
	ID          string `json:"id"`
	Participant JID    `json:"participant,omitempty"`
	FromMe      bool   `json:"from_me"`
}

// ContentKind is the payload type of a status.
type ContentKind int

const (
	KindUnknown ContentKind = iota
	KindText
	KindImage
	KindVideo
	KindAudio
	KindSticker
	KindDocument
)

var kindNames = map[ContentKind]string{
	KindUnknown:  "Unknown",
	KindText:     "Text",
	KindImage:    "Image",
	KindVideo:    "Video",
	KindAudio:    "Audio",
	KindSticker:  "Sticker",
	KindDocument: "Document",
}

func (k ContentKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// ParseContentKind maps gateway content type names ("imageMessage", "image",
// "extendedTextMessage", ...) to a ContentKind.
func ParseContentKind(s string) ContentKind {
	s = strings.ToLower(strings.TrimSuffix(s, "Message"))
	switch s {
	case "text", "extendedtext", "conversation":
		return KindText
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	case "sticker":
		return KindSticker
	case "document":
		return KindDocument
	default:
		return KindUnknown
	}
}

// Event is one inbound status notification. It is read-only for the
// pipeline.
type Event struct {
	Key        Key
	PushName   string
	Kind       ContentKind
	Text       string
	Caption    string
	FileName   string
	ReceivedAt time.Time
}

// Sender is the status owner.
func (e *Event) Sender() JID {
	return e.Key.Participant
}

// SenderNumber is the phone number of the status owner.
func (e *Event) SenderNumber() string {
	return e.Key.Participant.User()
}

// SenderName prefers the display name and falls back to the number.
func (e *Event) SenderName() string {
	if e.PushName != "" {
		return e.PushName
	}
	return e.SenderNumber()
}

// Node is a raw low-level protocol node.
type Node struct {
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs"`
}

// Media is a downloaded status payload.
type Media struct {
	Data     []byte
	MimeType string
	FileName string
}
