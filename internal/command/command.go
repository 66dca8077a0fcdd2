// Package command parses operator commands and applies them to the bot
// state. The command set is closed: anything not listed is rejected.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned by Parse for unrecognized input.
var ErrUnknownCommand = errors.New("command: unknown command")

// Command is a recognized operator command.
type Command int

const (
	ViewOn Command = iota + 1
	ViewOff
	LikeOn
	LikeOff
	ReplyOn
	ReplyOff
	BotOn
	BotOff
	Status
	Stats
	Emojis
	Help
)

var names = map[Command]string{
	ViewOn:   "view on",
	ViewOff:  "view off",
	LikeOn:   "like on",
	LikeOff:  "like off",
	ReplyOn:  "reply on",
	ReplyOff: "reply off",
	BotOn:    "bot on",
	BotOff:   "bot off",
	Status:   "status",
	Stats:    "stats",
	Emojis:   "emojis",
	Help:     "help",
}

var byName = func() map[string]Command {
	m := make(map[string]Command, len(names))
	for c, n := range names {
		m[n] = c
	}
	return m
}()

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// IsToggle reports whether c switches a feature.
func (c Command) IsToggle() bool {
	return c >= ViewOn && c <= BotOff
}

// Parse recognizes ".view on" (self chat) and "/view on" (Telegram) forms.
// Matching is case-insensitive and tolerates extra whitespace and a
// Telegram "@botname" suffix on the command word.
func Parse(text string) (Command, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return 0, ErrUnknownCommand
	}
	head := fields[0]
	if !strings.HasPrefix(head, ".") && !strings.HasPrefix(head, "/") {
		return 0, ErrUnknownCommand
	}
	head = head[1:]
	head, _, _ = strings.Cut(head, "@")
	fields[0] = head

	c, ok := byName[strings.Join(fields, " ")]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(text))
	}
	return c, nil
}
