// Package gateway is a client for the messaging gateway sidecar that owns
// the account session. It implements action.Transport and streams inbound
// messages to the bot.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bigbes/status-engage-bot/internal/message"
	"github.com/bigbes/status-engage-bot/internal/metrics"
)

// ErrInvalidPhone is returned for phone numbers outside 10..15 digits.
var ErrInvalidPhone = errors.New("gateway: phone number must have 10 to 15 digits")

// Client is a minimal gateway API client.
type Client struct {
	baseURL string
	token   string
	client  *http.Client

	mu      sync.RWMutex
	session Session
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call performs a JSON request. endpoint labels the error metric.
func (c *Client) call(ctx context.Context, hc *http.Client, endpoint, method, path string, in, out any) error {
	err := c.doCall(ctx, hc, method, path, in, out)
	if err != nil {
		metrics.GatewayRequestErrors.WithLabelValues(endpoint).Inc()
	}
	return err
}

func (c *Client) doCall(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway API error: %s: status %d, body: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Poll performs a long-poll request for new updates.
func (c *Client) Poll(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	// The HTTP timeout has to outlive the server-side long-poll timeout.
	hc := &http.Client{Timeout: time.Duration(timeout+10) * time.Second}
	var resp pollResponse
	if err := c.call(ctx, hc, "poll", http.MethodPost, "/v1/events/poll", pollRequest{Offset: offset, Timeout: timeout}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) SendReceipt(ctx context.Context, chat, participant message.JID, ids []string, receiptType string) error {
	return c.call(ctx, c.client, "receipts", http.MethodPost, "/v1/receipts", receiptRequest{
		Chat:        chat,
		Participant: participant,
		IDs:         ids,
		Type:        receiptType,
	}, nil)
}

func (c *Client) ReadMessages(ctx context.Context, keys []message.Key) error {
	return c.call(ctx, c.client, "read", http.MethodPost, "/v1/messages/read", readRequest{Keys: keys}, nil)
}

func (c *Client) SendPresence(ctx context.Context, presence string, to message.JID) error {
	return c.call(ctx, c.client, "presence", http.MethodPost, "/v1/presence", presenceRequest{Presence: presence, To: to}, nil)
}

func (c *Client) SendNode(ctx context.Context, node message.Node) error {
	return c.call(ctx, c.client, "nodes", http.MethodPost, "/v1/nodes", node, nil)
}

func (c *Client) SendReaction(ctx context.Context, to message.JID, target message.Key, emoji string, statusRecipients []message.JID) error {
	return c.call(ctx, c.client, "reactions", http.MethodPost, "/v1/reactions", reactionRequest{
		To:            to,
		Key:           target,
		Emoji:         emoji,
		StatusJIDList: statusRecipients,
	}, nil)
}

func (c *Client) SendText(ctx context.Context, to message.JID, text string) error {
	return c.call(ctx, c.client, "text", http.MethodPost, "/v1/messages/text", textRequest{To: to, Text: text}, nil)
}

// DownloadMedia fetches the decrypted payload of a media message.
func (c *Client) DownloadMedia(ctx context.Context, key message.Key) (*message.Media, error) {
	q := url.Values{}
	q.Set("chat", string(key.RemoteJID))
	if key.Participant != "" {
		q.Set("participant", string(key.Participant))
	}
	path := "/v1/media/" + url.PathEscape(key.ID) + "?" + q.Encode()

	media, err := c.download(ctx, path)
	if err != nil {
		metrics.GatewayRequestErrors.WithLabelValues("media").Inc()
		return nil, err
	}
	return media, nil
}

func (c *Client) download(ctx context.Context, path string) (*message.Media, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: 2 * time.Minute}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway API error: media: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading media: %w", err)
	}

	media := &message.Media{Data: data, MimeType: resp.Header.Get("Content-Type")}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			media.FileName = params["filename"]
		}
	}
	return media, nil
}

// Session fetches the current session state and caches it.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.call(ctx, c.client, "session", http.MethodGet, "/v1/session", nil, &s); err != nil {
		return nil, err
	}
	c.SetSession(s)
	return &s, nil
}

// RequestPairingCode asks the gateway to link the account by phone number
// and returns the formatted code ("ABCD-EFGH").
func (c *Client) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	var resp pairingResponse
	if err := c.call(ctx, c.client, "pairing", http.MethodPost, "/v1/session/pairing", pairingRequest{Phone: phone}, &resp); err != nil {
		return "", err
	}
	code := FormatPairingCode(resp.Code)

	c.mu.Lock()
	c.session.PairingCode = code
	c.mu.Unlock()
	return code, nil
}

// SetSession records the latest known session state.
func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Connected {
		s.QR = ""
		s.PairingCode = ""
	}
	c.session = s
}

// CurrentSession returns the cached session state.
func (c *Client) CurrentSession() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Connected reports whether the account is linked and online.
func (c *Client) Connected() bool {
	return c.CurrentSession().Connected
}

// NormalizePhone strips everything but digits and validates the length.
func NormalizePhone(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) < 10 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// FormatPairingCode upper-cases the code, drops separators and splits an
// eight character code in two halves.
func FormatPairingCode(code string) string {
	clean := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return -1
	}, code)
	if len(clean) == 8 {
		return clean[:4] + "-" + clean[4:]
	}
	return clean
}
