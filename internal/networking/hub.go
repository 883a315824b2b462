// Package networking streams shot frames and events to WebSocket observers and feeds
// their commands back into the session.
package networking

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"minigolf/engine/internal/input"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/shot"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Message types carried in Envelope.Type.
const (
	MessageSnapshot = "snapshot"
	MessageFrame    = "frame"
	MessageEvent    = "event"
	MessageError    = "error"
)

// Envelope is the JSON wrapper for every server to client message.
type Envelope struct {
	Type     string          `json:"type"`
	Snapshot *shot.Snapshot  `json:"snapshot,omitempty"`
	Frame    *shot.Frame     `json:"frame,omitempty"`
	Event    *shot.Event     `json:"event,omitempty"`
	Error    string          `json:"error,omitempty"`
	Command  json.RawMessage `json:"command,omitempty"`
}

// Controller is the session surface the hub drives.
type Controller interface {
	Apply(cmd input.Command) error
	Snapshot() shot.Snapshot
}

// HubConfig bounds connections and traffic.
type HubConfig struct {
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	FrameBudget     float64
}

// HubStats summarises hub activity.
type HubStats struct {
	Clients       int                           `json:"clients"`
	Broadcasts    int64                         `json:"broadcasts"`
	SkippedFrames int64                         `json:"skipped_frames"`
	Evicted       int64                         `json:"evicted"`
	Bandwidth     map[string]BandwidthUsage     `json:"bandwidth,omitempty"`
	Commands      map[string]input.DropCounters `json:"command_drops,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans out session output to observers. It implements shot.Sink.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	cfg      HubConfig
	upgrader websocket.Upgrader
	control  Controller
	gate     *input.Gate
	limiter  *BandwidthRegulator
	log      *logging.Logger

	broadcasts atomic.Int64
	skipped    atomic.Int64
	evicted    atomic.Int64
}

// NewHub builds a hub bound to a session controller.
func NewHub(cfg HubConfig, control Controller, gate *input.Gate, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.L()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	h := &Hub{
		clients: make(map[*client]struct{}),
		cfg:     cfg,
		control: control,
		gate:    gate,
		limiter: NewBandwidthRegulator(cfg.FrameBudget, nil),
		log:     logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	//1.- Refuse before upgrading when the hub is visibly full.
	h.mu.Lock()
	full := h.cfg.MaxClients > 0 && len(h.clients) >= h.cfg.MaxClients
	h.mu.Unlock()
	if full {
		http.Error(w, "too many observers", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.Error(err), logging.String("remote", r.RemoteAddr))
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBufferSize)}
	if h.cfg.MaxPayloadBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxPayloadBytes)
	}

	// New observers get the current state before any live traffic.
	if h.control != nil {
		snapshot := h.control.Snapshot()
		if data, err := json.Marshal(Envelope{Type: MessageSnapshot, Snapshot: &snapshot}); err == nil {
			c.send <- data
		}
	}
	//2.- Re-check the cap under the same lock that registers the client.
	if !h.admit(c) {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many observers"), deadline)
		_ = conn.Close()
		h.log.Warn("observer rejected at capacity", logging.String("remote", r.RemoteAddr))
		return
	}
	h.log.Info("observer connected", logging.String("client_id", c.id), logging.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(c)
}

// admit registers c unless the hub is already at MaxClients.
func (h *Hub) admit(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg.MaxClients > 0 && len(h.clients) >= h.cfg.MaxClients {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		h.log.Info("observer disconnected", logging.String("client_id", c.id))
	}()
	pongWait := 2 * h.cfg.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read failed", logging.Error(err), logging.String("client_id", c.id))
			}
			return
		}
		h.handleCommand(c, raw)
	}
}

func (h *Hub) handleCommand(c *client, raw []byte) {
	cmd, err := input.Decode(raw)
	if err != nil {
		h.reply(c, Envelope{Type: MessageError, Error: err.Error(), Command: json.RawMessage(raw)})
		return
	}
	if decision := h.gate.Evaluate(c.id, cmd); !decision.Accepted {
		return
	}
	if h.control == nil {
		return
	}
	if err := h.control.Apply(cmd); err != nil {
		h.reply(c, Envelope{Type: MessageError, Error: err.Error()})
		return
	}
	//1.- Aim changes produce no event, so echo the new state to everyone.
	if cmd.Type != input.CommandHit && cmd.Type != input.CommandReplay {
		snapshot := h.control.Snapshot()
		h.broadcast(Envelope{Type: MessageSnapshot, Snapshot: &snapshot}, false)
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) reply(c *client, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// broadcast sends env to every client. Throttled messages may be skipped per client;
// others evict clients whose buffers are full.
func (h *Hub) broadcast(env Envelope, throttled bool) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("encode broadcast failed", logging.Error(err))
		return
	}
	h.broadcasts.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if throttled && !h.limiter.Allow(c.id, len(data)) {
			h.skipped.Add(1)
			continue
		}
		select {
		case c.send <- data:
		default:
			//1.- A client that cannot keep up with lifecycle traffic is dropped.
			delete(h.clients, c)
			c.close()
			h.limiter.Forget(c.id)
			h.gate.Forget(c.id)
			h.evicted.Add(1)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	h.limiter.Forget(c.id)
	h.gate.Forget(c.id)
}

// PublishFrame implements shot.Sink.
func (h *Hub) PublishFrame(frame shot.Frame) {
	h.broadcast(Envelope{Type: MessageFrame, Frame: &frame}, true)
}

// PublishEvent implements shot.Sink.
func (h *Hub) PublishEvent(event shot.Event) {
	h.broadcast(Envelope{Type: MessageEvent, Event: &event}, false)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
		_ = c.conn.Close()
	}
}

// Stats reports connection and traffic counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	clients := len(h.clients)
	h.mu.Unlock()
	return HubStats{
		Clients:       clients,
		Broadcasts:    h.broadcasts.Load(),
		SkippedFrames: h.skipped.Load(),
		Evicted:       h.evicted.Load(),
		Bandwidth:     h.limiter.Usage(),
		Commands:      h.gate.Metrics(),
	}
}
