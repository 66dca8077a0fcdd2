// Package dashboard serves the web control panel: a JSON API over the bot
// state and the status archive, plus a websocket feed of live updates.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bigbes/status-engage-bot/internal/archive"
	"github.com/bigbes/status-engage-bot/internal/config"
	"github.com/bigbes/status-engage-bot/internal/gateway"
	"github.com/bigbes/status-engage-bot/internal/state"
)

const sessionHeader = "X-Session-ID"

// Archive is the subset of the archive store the dashboard exposes.
type Archive interface {
	List(ctx context.Context, f archive.Filter) (*archive.Page, error)
	Get(ctx context.Context, id string) (*archive.Entry, error)
	Stats(ctx context.Context) (*archive.Stats, error)
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Dir() string
}

// SessionManager exposes the gateway link state and pairing.
type SessionManager interface {
	CurrentSession() gateway.Session
	RequestPairingCode(ctx context.Context, phone string) (string, error)
}

// CommandRunner executes operator commands.
type CommandRunner interface {
	ExecuteText(text string) (string, error)
}

// Deps are the collaborators the dashboard reads and drives. Archive may be
// nil when archiving is disabled.
type Deps struct {
	State           *state.Store
	Archive         Archive
	Session         SessionManager
	Commands        CommandRunner
	AvailableEmojis []string
}

// Server serves the dashboard web interface and JSON API.
type Server struct {
	listen   string
	password passwordHash
	sessions *sessions
	deps     Deps
	logger   *slog.Logger
}

func New(cfg config.DashboardConfig, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		listen:   cfg.Listen,
		password: hashPassword(cfg.Password),
		sessions: newSessions(),
		deps:     deps,
		logger:   logger,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.HandleFunc("POST /api/state", s.authMiddleware(s.handleSetState))
	mux.HandleFunc("GET /api/emojis", s.handleGetEmojis)
	mux.HandleFunc("POST /api/emojis", s.authMiddleware(s.handleSetEmojis))
	mux.HandleFunc("GET /api/emojis/available", s.handleAvailableEmojis)
	mux.HandleFunc("POST /api/commands", s.authMiddleware(s.handleCommand))

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/session/qr.png", s.handleQR)
	mux.HandleFunc("POST /api/session/pairing", s.authMiddleware(s.handlePairing))

	mux.HandleFunc("GET /api/downloads", s.archiveOnly(s.handleListDownloads))
	mux.HandleFunc("DELETE /api/downloads", s.authMiddleware(s.archiveOnly(s.handleClearDownloads)))
	mux.HandleFunc("GET /api/downloads/stats", s.archiveOnly(s.handleDownloadStats))
	mux.HandleFunc("POST /api/downloads/settings", s.authMiddleware(s.handleDownloadSettings))
	mux.HandleFunc("GET /api/downloads/{id}", s.archiveOnly(s.handleGetDownload))
	mux.HandleFunc("DELETE /api/downloads/{id}", s.authMiddleware(s.archiveOnly(s.handleDeleteDownload)))

	if s.deps.Archive != nil {
		mux.Handle("GET /downloads/", http.StripPrefix("/downloads/", http.FileServer(http.Dir(s.deps.Archive.Dir()))))
	}

	mux.HandleFunc("GET /ws", s.handleWebsocket)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /ws connections are long-lived.
		IdleTimeout: 2 * time.Minute,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("dashboard: listen %s: %w", s.listen, err)
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.logger.Info("dashboard server started", "listen", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: serve: %w", err)
	}
	return nil
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.valid(r.Header.Get(sessionHeader)) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (s *Server) archiveOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Archive == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "archive is disabled"})
			return
		}
		next.ServeHTTP(w, r)
	}
}
