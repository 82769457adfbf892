package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drivewatch/drivewatch/internal/api"
)

// EventAlerts tags every message carrying the alert list.
const EventAlerts = "alerts"

const (
	writeWait    = 10 * time.Second
	idleTimeout  = time.Minute
	pingInterval = 45 * time.Second // below idleTimeout
	queueDepth   = 16
	maxInbound   = 512
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string             `json:"event"`
	Data  api.AlertsResponse `json:"data"`
}

// Hub streams the ranked alert list to WebSocket subscribers. It polls its
// source and pushes only when the list changed.
type Hub struct {
	source   api.Lister
	interval time.Duration
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
	last []byte // alerts of the previous push, without generated_at
}

// subscriber is one connected client. Messages queue on out; done closes
// when the hub or the client ends the session.
type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) end() { s.once.Do(func() { close(s.done) }) }

// New creates a Hub that polls source every interval.
func New(source api.Lister, interval time.Duration) *Hub {
	return &Hub{
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Run polls until ctx is cancelled and then ends every session.
func (h *Hub) Run(ctx context.Context) {
	if _, alerts, err := h.snapshot(); err == nil {
		h.mu.Lock()
		h.last = alerts
		h.mu.Unlock()
	}

	tick := time.NewTicker(h.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			h.endAll()
			return
		case <-tick.C:
			h.push(false)
		}
	}
}

// Broadcast pushes the alert list to every subscriber even if unchanged.
func (h *Hub) Broadcast() { h.push(true) }

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams alert lists to the client,
// starting with the current one. It returns when the session ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := &subscriber{
		conn: conn,
		out:  make(chan []byte, queueDepth),
		done: make(chan struct{}),
	}
	if msg, _, err := h.snapshot(); err == nil {
		s.out <- msg
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: subscriber joined", "remote", r.RemoteAddr)

	go h.receive(s)
	h.deliver(s)

	h.remove(s)
	conn.Close()
	slog.Debug("ws: subscriber left", "remote", r.RemoteAddr)
}

// deliver writes queued messages and keepalive pings until s ends.
func (h *Hub) deliver(s *subscriber) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-s.done:
			s.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.end()
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.end()
				return
			}
		}
	}
}

// receive discards client frames. Any read error, including a missed pong,
// ends the session.
func (h *Hub) receive(s *subscriber) {
	defer s.end()
	s.conn.SetReadLimit(maxInbound)
	s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.end()
}

func (h *Hub) endAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		s.end()
	}
}

func (h *Hub) push(force bool) {
	msg, alerts, err := h.snapshot()
	if err != nil {
		slog.Warn("ws: encode alerts failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !force && bytes.Equal(alerts, h.last) {
		return
	}
	h.last = alerts
	for s := range h.subs {
		select {
		case s.out <- msg:
		default:
			slog.Warn("ws: subscriber queue full, dropping")
			delete(h.subs, s)
			s.end()
		}
	}
}

// snapshot encodes the envelope and, separately, the alert list alone so
// pushes can be compared without the timestamp.
func (h *Hub) snapshot() (msg, alerts []byte, err error) {
	resp := api.BuildAlerts(h.source)
	if alerts, err = json.Marshal(resp.Alerts); err != nil {
		return nil, nil, err
	}
	if msg, err = json.Marshal(Message{Event: EventAlerts, Data: resp}); err != nil {
		return nil, nil, err
	}
	return msg, alerts, nil
}
