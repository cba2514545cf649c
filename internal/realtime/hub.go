// Package realtime pushes player events to connected UIs over websockets.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-player/internal/navigation"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 16
)

// ErrNoClients is returned by Navigate when no UI is connected.
var ErrNoClients = errors.New("no player clients connected")

// Message is the JSON frame sent to player UIs.
type Message struct {
	Type      string `json:"type"`
	CourseID  string `json:"course_id"`
	LectureID string `json:"lecture_id"`
	Path      string `json:"path"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub tracks connected player UIs and broadcasts navigation to them.
// It implements navigation.Navigator.
type Hub struct {
	origins []string

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub. originPatterns lists additional browser origins allowed
// to connect; same-origin requests are always accepted.
func NewHub(originPatterns ...string) *Hub {
	return &Hub{
		origins: originPatterns,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams messages until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan Message, sendBuffer)}
	h.add(cl)
	defer h.remove(cl)

	// Incoming frames are discarded; ctx ends when the peer closes.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.CloseNow()
			return
		case msg := <-cl.send:
			if err := write(ctx, conn, msg); err != nil {
				slog.Debug("websocket write failed", "error", err)
				conn.CloseNow()
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				slog.Debug("websocket ping failed", "error", err)
				conn.CloseNow()
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// Navigate queues a navigate message for every connected UI. A UI whose send
// buffer is full misses the message.
func (h *Hub) Navigate(_ context.Context, dest navigation.Destination) error {
	msg := Message{
		Type:      "navigate",
		CourseID:  dest.CourseID.String(),
		LectureID: dest.LectureID.String(),
		Path:      dest.Path(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return ErrNoClients
	}

	delivered := 0
	for cl := range h.clients {
		select {
		case cl.send <- msg:
			delivered++
		default:
			slog.Warn("player client send buffer full, dropping message", "path", msg.Path)
		}
	}
	if delivered == 0 {
		return errors.New("no player client accepted the message")
	}
	return nil
}

// ClientCount returns the number of connected UIs.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every UI.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		_ = cl.conn.Close(websocket.StatusGoingAway, "player shutting down")
	}
}

func (h *Hub) add(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("player client connected", "clients", n)
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("player client disconnected", "clients", n)
}
