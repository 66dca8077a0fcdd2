package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Update represents a Telegram Bot API update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message represents a Telegram message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// User is the sender of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "private", "group", "supergroup" or "channel"
}

// BotCommand is an entry of the command menu shown by Telegram clients.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// Bot is a minimal Telegram Bot API client.
type Bot struct {
	apiURL string
	token  string
	chatID int64
	client *http.Client
}

// NewBot creates a new Telegram bot client. If chatID is 0, push
// notifications via SendMessage are disabled (the bot can still
// respond to incoming commands via SendMessageTo).
func NewBot(token string, chatID int64) *Bot {
	return NewBotWithURL(DefaultAPIURL, token, chatID)
}

// NewBotWithURL is NewBot against a self-hosted Bot API server.
func NewBotWithURL(apiURL, token string, chatID int64) *Bot {
	return &Bot{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ChatID returns the push notification chat, 0 if none.
func (b *Bot) ChatID() int64 {
	return b.chatID
}

func (b *Bot) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.apiURL, b.token, method)
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMessage sends a text message to the configured chat.
// It is a no-op if no chat_id was configured.
func (b *Bot) SendMessage(ctx context.Context, text string) error {
	if b.chatID == 0 {
		return nil
	}
	return b.sendMessageTo(ctx, b.chatID, text, "")
}

// SendMessageTo sends a text message to the specified chat.
func (b *Bot) SendMessageTo(ctx context.Context, chatID int64, text string) error {
	return b.sendMessageTo(ctx, chatID, text, "")
}

// SendMessageHTML sends a message with HTML formatting.
func (b *Bot) SendMessageHTML(ctx context.Context, chatID int64, text string) error {
	return b.sendMessageTo(ctx, chatID, text, "HTML")
}

func (b *Bot) sendMessageTo(ctx context.Context, chatID int64, text, parseMode string) error {
	reqBody := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	}
	if err := b.postJSON(ctx, b.client, "sendMessage", reqBody, nil); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

type setMyCommandsRequest struct {
	Commands []BotCommand `json:"commands"`
}

// SetMyCommands replaces the bot's command menu.
func (b *Bot) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	if err := b.postJSON(ctx, b.client, "setMyCommands", setMyCommandsRequest{Commands: commands}, nil); err != nil {
		return fmt.Errorf("setting commands: %w", err)
	}
	return nil
}

// SendPhoto uploads a PNG image to chatID.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	var buf bytes.Buffer
	mw := NewMultipartWriter(&buf)
	mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		mw.WriteField("caption", caption)
	}
	if err := mw.WriteFile("photo", filename, data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendPhoto"), &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset"`
	Timeout int   `json:"timeout"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

// GetUpdates performs a long-poll request for new updates.
func (b *Bot) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	reqBody := getUpdatesRequest{
		Offset:  offset,
		Timeout: timeout,
	}

	// Use a longer HTTP timeout to accommodate the Telegram long-poll timeout.
	httpClient := &http.Client{Timeout: time.Duration(timeout+10) * time.Second}
	var result getUpdatesResponse
	if err := b.postJSON(ctx, httpClient, "getUpdates", reqBody, &result); err != nil {
		return nil, fmt.Errorf("polling updates: %w", err)
	}
	return result.Result, nil
}

func (b *Bot) postJSON(ctx context.Context, hc *http.Client, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
