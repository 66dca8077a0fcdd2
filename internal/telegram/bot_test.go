package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendMessageNoChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	b := NewBotWithURL(srv.URL, "tok", 0)
	if err := b.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
}

func TestSendMessageHTML(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	b := NewBotWithURL(srv.URL+"/", "tok", 42)
	if err := b.SendMessageHTML(context.Background(), 7, "<b>x</b>"); err != nil {
		t.Fatalf("SendMessageHTML: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got.ChatID != 7 || got.ParseMode != "HTML" || got.Text != "<b>x</b>" {
		t.Errorf("request = %+v", got)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	b := NewBotWithURL(srv.URL, "tok", 1)
	err := b.SendMessage(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("err = %v, want status 403", err)
	}
}

func TestGetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req getUpdatesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Offset != 3 || req.Timeout != 1 {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"ok":true,"result":[{"update_id":3,"message":{"message_id":1,"from":{"id":99},"chat":{"id":99,"type":"private"},"text":"/status"}}]}`))
	}))
	defer srv.Close()

	b := NewBotWithURL(srv.URL, "tok", 0)
	updates, err := b.GetUpdates(context.Background(), 3, 1)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates", len(updates))
	}
	m := updates[0].Message
	if m.From == nil || m.From.ID != 99 || m.Chat.Type != "private" || m.Text != "/status" {
		t.Errorf("message = %+v", m)
	}
}

func TestSendPhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok/sendPhoto" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("chat_id"); got != "5" {
			t.Errorf("chat_id = %q", got)
		}
		if got := r.FormValue("caption"); got != "scan me" {
			t.Errorf("caption = %q", got)
		}
		f, hdr, err := r.FormFile("photo")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "qr.png" || string(data) != "PNG" {
			t.Errorf("file = %q %q", hdr.Filename, data)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	b := NewBotWithURL(srv.URL, "tok", 0)
	if err := b.SendPhoto(context.Background(), 5, "qr.png", []byte("PNG"), "scan me"); err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}
}
