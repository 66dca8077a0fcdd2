package observer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/bigbes/status-engage-bot/internal/command"
	"github.com/bigbes/status-engage-bot/internal/config"
	"github.com/bigbes/status-engage-bot/internal/gateway"
	"github.com/bigbes/status-engage-bot/internal/telegram"
)

const (
	pollTimeout = 30
	retryDelay  = 5 * time.Second
)

// CommandRunner executes operator commands.
type CommandRunner interface {
	ExecuteText(text string) (string, error)
}

// SessionSource supplies the gateway link state for /qr.
type SessionSource interface {
	CurrentSession() gateway.Session
}

// Observer sends periodic status updates and handles bot commands via Telegram.
type Observer struct {
	bot      *telegram.Bot
	commands CommandRunner
	sessions SessionSource
	cfg      *config.Config
	interval time.Duration
	logger   *slog.Logger
}

// New creates a new Observer. If the bot has no chat_id, periodic push
// notifications are disabled but the bot still responds to incoming commands.
func New(bot *telegram.Bot, commands CommandRunner, sessions SessionSource, cfg *config.Config, logger *slog.Logger) *Observer {
	return &Observer{
		bot:      bot,
		commands: commands,
		sessions: sessions,
		cfg:      cfg,
		interval: cfg.TelegramInterval(),
		logger:   logger,
	}
}

// Run starts the observer. It launches the command polling loop and,
// if a chat_id is configured, the periodic status push loop.
func (o *Observer) Run(ctx context.Context) {
	o.registerCommands(ctx)
	if o.bot.ChatID() != 0 {
		go o.pushLoop(ctx)
	}
	o.pollLoop(ctx)
}

func (o *Observer) registerCommands(ctx context.Context) {
	commands := []telegram.BotCommand{
		{Command: "status", Description: "Show toggles, counters and limits"},
		{Command: "stats", Description: "Show engagement statistics"},
		{Command: "emojis", Description: "Show selected reaction emojis"},
		{Command: "view", Description: "on|off - auto view statuses"},
		{Command: "like", Description: "on|off - auto react to statuses"},
		{Command: "reply", Description: "on|off - auto reply to statuses"},
		{Command: "bot", Description: "on|off - enable or disable the bot"},
		{Command: "qr", Description: "Show the pairing QR code"},
		{Command: "help", Description: "Show available commands"},
	}
	if err := o.bot.SetMyCommands(ctx, commands); err != nil {
		o.logger.Error("observer: failed to register bot commands", "err", err)
	}
}

func (o *Observer) pushLoop(ctx context.Context) {
	o.send(ctx, "🟢 "+o.cfg.BotName+" started")

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			o.send(shutCtx, "🔴 "+o.cfg.BotName+" stopped")
			cancel()
			return
		case <-ticker.C:
			o.sendStatus(ctx)
		}
	}
}

func (o *Observer) pollLoop(ctx context.Context) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := o.bot.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Error("observer: failed to poll updates", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			o.handleCommand(ctx, u.Message)
		}
	}
}

func (o *Observer) isAllowed(msg *telegram.Message) bool {
	allowedUsers := o.cfg.Telegram.AllowedUsers
	if len(allowedUsers) == 0 {
		return true
	}
	// Group/channel messages are allowed (filtered by chat_id if needed)
	if msg.Chat.Type != "private" {
		return true
	}
	if msg.From == nil {
		return false
	}
	return slices.Contains(allowedUsers, msg.From.ID)
}

func (o *Observer) handleCommand(ctx context.Context, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if !o.isAllowed(msg) {
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		o.logger.Debug("observer: ignoring message from unauthorized user",
			"user_id", userID, "chat_id", msg.Chat.ID)
		return
	}

	head, _, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(strings.ToLower(head), "@")

	switch head {
	case "/start":
		text = "/help"
	case "/qr":
		o.sendQR(ctx, msg.Chat.ID)
		return
	}

	reply, err := o.commands.ExecuteText(text)
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		reply = "Unknown command. Send /help for the list."
	case err != nil:
		o.logger.Error("observer: command failed", "text", text, "err", err)
		reply = "Command failed: " + err.Error()
	}

	if err := o.bot.SendMessageTo(ctx, msg.Chat.ID, reply); err != nil {
		o.logger.Error("observer: failed to reply", "chat_id", msg.Chat.ID, "err", err)
	}
}

func (o *Observer) sendQR(ctx context.Context, chatID int64) {
	s := o.sessions.CurrentSession()
	var err error
	switch {
	case s.Connected:
		err = o.bot.SendMessageTo(ctx, chatID, "✅ Already connected, no QR code needed.")
	case s.PairingCode != "":
		err = o.bot.SendMessageHTML(ctx, chatID, "🔑 Pairing code: <code>"+s.PairingCode+"</code>")
	case s.QR == "":
		err = o.bot.SendMessageTo(ctx, chatID, "⏳ No QR code available yet.")
	default:
		var png []byte
		png, err = qrcode.Encode(s.QR, qrcode.Medium, 512)
		if err == nil {
			err = o.bot.SendPhoto(ctx, chatID, "qr.png", png, "Scan with Linked Devices")
		}
	}
	if err != nil {
		o.logger.Error("observer: failed to send QR", "chat_id", chatID, "err", err)
	}
}

func (o *Observer) sendStatus(ctx context.Context) {
	msg, err := o.commands.ExecuteText("/stats")
	if err != nil {
		o.logger.Error("observer: building status digest", "err", err)
		return
	}
	o.send(ctx, msg)
}

func (o *Observer) send(ctx context.Context, text string) {
	if err := o.bot.SendMessage(ctx, text); err != nil {
		o.logger.Error("observer: failed to send telegram message", "err", err)
	}
}
