package server

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

// Event types pushed to websocket clients.
const (
	EventSnapshot  = "snapshot"
	EventStatus    = "status"
	EventCommitted = "committed"
	EventInterim   = "interim"
	EventVolume    = "volume"
	EventError     = "error"
	EventFinished  = "finished"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Event is one session change as seen by browser clients.
type Event struct {
	Type     string               `json:"type"`
	Status   domain.SessionStatus `json:"status,omitempty"`
	Text     *string              `json:"text,omitempty"`
	Level    *float64             `json:"level,omitempty"`
	Error    *domain.SessionError `json:"error,omitempty"`
	Snapshot *domain.Snapshot     `json:"snapshot,omitempty"`
}

// Hub is a session listener that broadcasts every change to connected
// websocket clients. Broadcasting never blocks: volume samples are dropped
// for a client whose buffer is full and any other event disconnects it.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *log.Logger
}

type client struct {
	conn *websocket.Conn
	send chan Event
	once sync.Once
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{clients: make(map[*client]struct{}), logger: logger.WithPrefix("hub")}
}

func (h *Hub) StatusChanged(status domain.SessionStatus) {
	h.broadcast(Event{Type: EventStatus, Status: status})
}

func (h *Hub) CommittedTextChanged(text string) {
	h.broadcast(Event{Type: EventCommitted, Text: &text})
}

func (h *Hub) InterimTextChanged(text string) {
	h.broadcast(Event{Type: EventInterim, Text: &text})
}

func (h *Hub) VolumeChanged(level float64) {
	h.broadcast(Event{Type: EventVolume, Level: &level})
}

func (h *Hub) ErrorRaised(err domain.SessionError) {
	h.broadcast(Event{Type: EventError, Error: &err})
}

func (h *Hub) SessionFinished(text string) {
	h.broadcast(Event{Type: EventFinished, Text: &text})
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			if event.Type == EventVolume {
				continue
			}
			h.logger.Warn("dropping slow websocket client")
			delete(h.clients, c)
			c.close()
		}
	}
}

// serve registers conn, sends the current snapshot and pumps events until
// the client goes away. The client is registered before the snapshot is
// taken, so no change is lost in between; events queued meanwhile are
// replayed after the snapshot and converge on the same state.
func (h *Hub) serve(conn *websocket.Conn, snapshot func() domain.Snapshot) {
	c := &client{conn: conn, send: make(chan Event, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	initial := snapshot()
	go c.readPump(func() { h.remove(c) })
	c.writePump(Event{Type: EventSnapshot, Snapshot: &initial})
	h.remove(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// readPump discards client messages and detects disconnects.
func (c *client) readPump(onClose func()) {
	defer onClose()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump(first Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(first); err != nil {
		return
	}

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
