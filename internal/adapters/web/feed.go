package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshgram/meshgram/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin admits non-browser clients, which send no Origin header, and
// browsers whose Origin host matches the host the page was served from.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "host", r.Host)
	return false
}

// FeedMessage is the envelope for every frame pushed to websocket clients.
type FeedMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Feed pushes decoded packets to connected websocket clients as they arrive.
type Feed struct {
	clients map[*websocket.Conn]struct{}
	mu      sync.Mutex
}

func NewFeed() *Feed {
	return &Feed{clients: make(map[*websocket.Conn]struct{})}
}

func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()

	slog.Debug("websocket client connected", "remote", conn.RemoteAddr().String())

	// Drain reads until the client goes away.
	go func() {
		defer conn.Close()
		defer func() {
			f.mu.Lock()
			delete(f.clients, conn)
			f.mu.Unlock()
			slog.Debug("websocket client disconnected", "remote", conn.RemoteAddr().String())
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// PublishPacket broadcasts a decoded packet to every connected client. It is
// safe to call from the decode pipeline goroutine.
func (f *Feed) PublishPacket(p *domain.PacketRecord) {
	f.broadcast(FeedMessage{Type: "packet", Payload: p})
}

func (f *Feed) broadcast(msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("feed marshal failed", "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// ClientCount reports the number of connected websocket clients.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
