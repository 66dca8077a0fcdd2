package state

import "sync"

// Update types pushed to observers.
const (
	UpdateStats         = "stats"
	UpdateState         = "stateUpdate"
	UpdateEmojis        = "selectedEmojis"
	UpdateLog           = "newLog"
	UpdateDownload      = "newDownload"
	UpdateDownloadStats = "downloadStats"
	UpdateConnection    = "connectionStatus"
	UpdateQR            = "qrCode"
	UpdatePairingCode   = "pairingCode"
)

// Update is one message on the observer stream.
type Update struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans updates out to subscribers. Sends never block: a subscriber
// whose buffer is full misses the update.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Update]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Update]struct{})}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (h *Hub) Subscribe(buf int) (<-chan Update, func()) {
	ch := make(chan Update, buf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers u to every subscriber and reports how many got it.
func (h *Hub) Broadcast(u Update) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for ch := range h.subs {
		select {
		case ch <- u:
			n++
		default:
		}
	}
	return n
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
