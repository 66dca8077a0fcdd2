package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/bigbes/status-engage-bot/internal/archive"
	"github.com/bigbes/status-engage-bot/internal/command"
	"github.com/bigbes/status-engage-bot/internal/gateway"
	"github.com/bigbes/status-engage-bot/internal/state"
)

const maxBodySize = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}
	if !s.password.verify(req.Password) {
		s.logger.Warn("dashboard: failed login", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid password"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, SessionID: s.sessions.create()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.remove(r.Header.Get(sessionHeader))
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.Snapshot())
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.Logs())
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.Toggles())
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var patch state.TogglesPatch
	if !readJSON(w, r, &patch) {
		return
	}
	t := s.deps.State.SetToggles(patch)
	s.deps.State.AddLog(state.LogInfo, "Settings updated from dashboard", nil)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetEmojis(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.SelectedEmojis())
}

func (s *Server) handleAvailableEmojis(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.AvailableEmojis)
}

type emojisRequest struct {
	Emojis any `json:"emojis"`
}

func (s *Server) handleSetEmojis(w http.ResponseWriter, r *http.Request) {
	var req emojisRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.deps.State.SetEmojis(req.Emojis); err != nil {
		if errors.Is(err, state.ErrNotAList) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "emojis must be an array"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	emojis := s.deps.State.SelectedEmojis()
	s.deps.State.AddLog(state.LogInfo, "Emojis updated: "+strings.Join(emojis, " "), nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "emojis": emojis})
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !readJSON(w, r, &req) {
		return
	}
	text := req.Command
	if text != "" && text[0] != '.' && text[0] != '/' {
		text = "." + text
	}
	reply, err := s.deps.Commands.ExecuteText(text)
	if errors.Is(err, command.ErrUnknownCommand) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown command"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Reply: reply})
}

type sessionResponse struct {
	Connected   bool   `json:"connected"`
	JID         string `json:"jid,omitempty"`
	HasQR       bool   `json:"hasQr"`
	QR          string `json:"qr,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.deps.Session.CurrentSession()
	writeJSON(w, http.StatusOK, sessionResponse{
		Connected:   sess.Connected,
		JID:         sess.JID,
		HasQR:       sess.QR != "",
		QR:          sess.QR,
		PairingCode: sess.PairingCode,
	})
}

func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request) {
	sess := s.deps.Session.CurrentSession()
	if sess.Connected || sess.QR == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no QR code available"})
		return
	}
	png, err := qrcode.Encode(sess.QR, qrcode.Medium, 512)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to generate QR code"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

type pairingRequest struct {
	Phone string `json:"phone"`
}

func (s *Server) handlePairing(w http.ResponseWriter, r *http.Request) {
	var req pairingRequest
	if !readJSON(w, r, &req) {
		return
	}
	code, err := s.deps.Session.RequestPairingCode(r.Context(), req.Phone)
	if errors.Is(err, gateway.ErrInvalidPhone) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "phone number must have 10 to 15 digits"})
		return
	}
	if err != nil {
		s.logger.Error("dashboard: pairing code request failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	s.deps.State.Broadcast(state.UpdatePairingCode, code)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": code})
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := archive.Filter{
		Type:   q.Get("type"),
		Sender: q.Get("sender"),
		Search: q.Get("search"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if d := q.Get("date"); d != "" {
		date, err := time.ParseInLocation(time.DateOnly, d, time.Local)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
		f.Date = date
	}

	page, err := s.deps.Archive.List(r.Context(), f)
	if err != nil {
		s.logger.Error("dashboard: listing downloads", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list downloads"})
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDownloadStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Archive.Stats(r.Context())
	if err != nil {
		s.logger.Error("dashboard: download stats", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to compute stats"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Archive.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Archive.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.publishDownloadStats(r)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Deleted"})
}

func (s *Server) handleClearDownloads(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Archive.ClearAll(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.deps.State.AddLog(state.LogWarn, "🗑️ All downloads cleared", nil)
	s.publishDownloadStats(r)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "All downloads cleared"})
}

func (s *Server) publishDownloadStats(r *http.Request) {
	st, err := s.deps.Archive.Stats(r.Context())
	if err != nil {
		s.logger.Warn("dashboard: download stats", "err", err)
		return
	}
	s.deps.State.Broadcast(state.UpdateDownloadStats, st)
}

type downloadSettings struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleDownloadSettings(w http.ResponseWriter, r *http.Request) {
	var req downloadSettings
	if !readJSON(w, r, &req) {
		return
	}
	s.deps.State.SetDownloadEnabled(req.Enabled)
	status := "OFF ❌"
	if req.Enabled {
		status = "ON ✅"
	}
	s.deps.State.AddLog(state.LogInfo, "Auto Download: "+status, nil)
	writeJSON(w, http.StatusOK, downloadSettings{Enabled: s.deps.State.DownloadEnabled()})
}
