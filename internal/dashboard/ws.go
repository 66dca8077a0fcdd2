package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bigbes/status-engage-bot/internal/state"
)

const (
	wsSubscriberBuffer = 64
	wsWriteWait        = 10 * time.Second
	wsPingInterval     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 10,
	WriteBufferSize: 16 << 10,
}

// wsMessage is the frame sent to dashboard clients.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// handleWebsocket streams hub updates. A client first receives the full
// current state, then every update published while it stays connected.
// Updates are dropped for clients that fall behind.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("dashboard: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := s.deps.State.Hub().Subscribe(wsSubscriberBuffer)
	defer unsubscribe()

	var writeMu sync.Mutex
	write := func(typ string, data any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(wsMessage{Type: typ, Data: data})
	}

	// Discard client messages; a read error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				writeMu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	snap := s.deps.State.Snapshot()
	sess := s.deps.Session.CurrentSession()
	initial := []wsMessage{
		{state.UpdateStats, snap},
		{state.UpdateState, snap.Toggles},
		{state.UpdateEmojis, snap.SelectedEmojis},
		{state.UpdateConnection, map[string]bool{"connected": sess.Connected}},
	}
	if !sess.Connected && sess.QR != "" {
		initial = append(initial, wsMessage{state.UpdateQR, sess.QR})
	}
	for _, m := range initial {
		if err := write(m.Type, m.Data); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := write(u.Type, u.Payload); err != nil {
				s.logger.Debug("dashboard: websocket write failed", "err", err)
				return
			}
		}
	}
}
