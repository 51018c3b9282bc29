package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"signalwatch/internal/alerts"
	"signalwatch/internal/domain/signal"
	"signalwatch/internal/metrics"
	"signalwatch/internal/services/dashboard"
	"signalwatch/pkg/logger"
)

// Message types sent to dashboard clients
const (
	TypeSnapshot  = "snapshot"
	TypeFeed      = "feed"
	TypeCountdown = "countdown"
	TypeAlert     = "alert"
	TypeTone      = "tone"
	TypePulseEnd  = "pulse_end"
)

const (
	sendBuffer      = 64
	broadcastBuffer = 256
)

// Message is the envelope of every frame
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PulseEnd is the payload of a pulse_end frame
type PulseEnd struct {
	PulseID string           `json:"pulseId"`
	Kind    signal.EventKind `json:"kind"`
}

// SnapshotFunc builds the payload sent to a client right after it connects
type SnapshotFunc func() any

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans dashboard updates out to every connected client. Publishing never
// blocks the caller. A client whose buffer is full is disconnected.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	clients    map[*Client]struct{}

	snapshot SnapshotFunc
	log      *logger.Logger

	doneOnce sync.Once
	done     chan struct{}
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBuffer),
		clients:    make(map[*Client]struct{}),
		snapshot:   snapshot,
		log:        logger.Get().With("component", "ws_hub"),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns when ctx is cancelled and closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			h.log.Debug("Hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			if frame := h.snapshotFrame(); frame != nil {
				c.send <- frame
			}
			h.log.Debug("Client connected", "remote", c.remote, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug("Client disconnected", "remote", c.remote, "clients", len(h.clients))
			}

		case frame := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					h.drop(c)
					h.log.Warn("Dropped slow client", "remote", c.remote)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) snapshotFrame() []byte {
	if h.snapshot == nil {
		return nil
	}
	frame, err := encode(TypeSnapshot, h.snapshot())
	if err != nil {
		h.log.Warn("Failed to encode snapshot", "error", err)
		return nil
	}
	return frame
}

// ServeHTTP upgrades the request and attaches a client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Failed to upgrade websocket", "error", err)
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: r.RemoteAddr,
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) publish(msgType string, data any) {
	frame, err := encode(msgType, data)
	if err != nil {
		h.log.Warn("Failed to encode message", "type", msgType, "error", err)
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		h.log.Warn("Broadcast queue full, message dropped", "type", msgType)
	}
}

// PublishFeed sends one feed card update
func (h *Hub) PublishFeed(view dashboard.FeedView) {
	h.publish(TypeFeed, view)
}

// PublishCountdown sends the per-feed seconds remaining
func (h *Hub) PublishCountdown(values map[string]int) {
	h.publish(TypeCountdown, values)
}

// Notify shows the alert modal on every client
func (h *Hub) Notify(_ context.Context, n alerts.Notification) error {
	h.publish(TypeAlert, n)
	return nil
}

// PlayTone asks clients to play one beep
func (h *Hub) PlayTone(tone alerts.Tone) {
	h.publish(TypeTone, tone)
}

// EndPulse tells clients the pulse finished
func (h *Hub) EndPulse(pulseID string, kind signal.EventKind) {
	h.publish(TypePulseEnd, PulseEnd{PulseID: pulseID, Kind: kind})
}

func encode(msgType string, data any) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Data: data})
}
