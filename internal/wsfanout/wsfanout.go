// Package wsfanout implements the kernel's WebSocket event fan-out: one
// outbound connection per client, each batching bus events behind a flush
// timer and shedding load under backpressure.
package wsfanout

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// criticalKinds are event types that bypass batching (sent immediately)
// and are never evicted while shedding load.
var criticalKinds = map[string]bool{
	"response.ok":    true,
	"response.error": true,
	"kernel.ready":   true,
	"process.list":   true,
}

// Config controls batching cadence and backpressure thresholds.
type Config struct {
	FlushInterval   time.Duration
	BatchMaxSize    int
	MaxQueuedEvents int
	MaxBufferBytes  int
}

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 50 * time.Millisecond
	}
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = 20
	}
	if c.MaxQueuedEvents <= 0 {
		c.MaxQueuedEvents = 1000
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = 1 << 20
	}
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns every live connection and the bus subscription that feeds them.
type Hub struct {
	mu    sync.Mutex
	log   *logger.Logger
	bus   *bus.Bus
	cfg   Config
	conns map[string]*conn
	subID string
	next  uint64
}

// New builds a Hub and subscribes it to every bus event.
func New(cfg Config, b *bus.Bus, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("wsfanout")
	}
	h := &Hub{
		log:   log,
		bus:   b,
		cfg:   cfg.withDefaults(),
		conns: make(map[string]*conn),
	}
	if b != nil {
		h.subID = b.SubscribeFunc("*", func(evt bus.Event) { h.broadcast(evt) })
	}
	return h
}

// ServeHTTP upgrades an HTTP request to a WebSocket and registers a new
// fan-out connection, optionally filtered by a comma-separated list of
// event-kind patterns from the "filter" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("err", err).Warn("wsfanout: upgrade failed")
		return
	}

	var patterns []string
	if f := r.URL.Query().Get("filter"); f != "" {
		patterns = strings.Split(f, ",")
	}

	c := h.register(ws, patterns)
	defer h.unregister(c.id)

	go c.writeLoop()
	c.readLoop()
}

func (h *Hub) register(ws *websocket.Conn, patterns []string) *conn {
	h.mu.Lock()
	h.next++
	id := "ws-" + itoa(h.next)
	c := &conn{
		id:       id,
		ws:       ws,
		log:      h.log,
		cfg:      h.cfg,
		patterns: patterns,
		stopCh:   make(chan struct{}),
	}
	h.conns[id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) broadcast(evt bus.Event) {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if c.matches(evt.Kind) {
			c.enqueue(evt)
		}
	}
}

// Close tears down every live connection, used during kernel shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*conn)
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	if h.bus != nil && h.subID != "" {
		h.bus.Unsubscribe(h.subID)
	}
}

// conn is one client's batching buffer, flush timer and write goroutine.
type conn struct {
	id       string
	ws       *websocket.Conn
	log      *logger.Logger
	cfg      Config
	patterns []string

	mu        sync.Mutex
	pending   []bus.Event
	closed    bool
	stopCh    chan struct{}
	closeOnce sync.Once
}

func (c *conn) matches(kind string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if matchesPattern(p, kind) {
			return true
		}
	}
	return false
}

func matchesPattern(pattern, kind string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(kind, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == kind
}

// enqueue appends an event to the pending batch. While the connection is
// congested, non-critical events are dropped. A critical event sends the
// pending batch immediately; otherwise events wait for the flush timer or
// the batch-size threshold.
func (c *conn) enqueue(evt bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	congested := c.bufferedBytesLocked() > c.cfg.MaxBufferBytes
	if congested && !criticalKinds[evt.Kind] {
		return
	}

	c.pending = append(c.pending, evt)
	c.evictIfOverCapLocked()

	if len(c.pending) >= c.cfg.BatchMaxSize || criticalKinds[evt.Kind] {
		batch := c.pending
		c.pending = nil
		go c.send(batch)
	}
}

// evictIfOverCapLocked drops the oldest non-critical event when the queue
// exceeds its hard cap, falling back to the oldest event outright if every
// queued event is critical.
func (c *conn) evictIfOverCapLocked() {
	if len(c.pending) <= c.cfg.MaxQueuedEvents {
		return
	}
	for i, e := range c.pending {
		if !criticalKinds[e.Kind] {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
	c.pending = c.pending[1:]
}

func (c *conn) bufferedBytesLocked() int {
	total := 0
	for _, e := range c.pending {
		if raw, err := json.Marshal(e); err == nil {
			total += len(raw)
		}
	}
	return total
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *conn) flush() {
	c.mu.Lock()
	if len(c.pending) == 0 || c.closed {
		c.mu.Unlock()
		return
	}
	batch := c.pending
	c.pending = nil
	congested := c.bufferedBytesLocked() > c.cfg.MaxBufferBytes
	c.mu.Unlock()

	if congested {
		batch = onlyCritical(batch)
		if len(batch) == 0 {
			return
		}
	}
	c.send(batch)
}

func onlyCritical(batch []bus.Event) []bus.Event {
	out := batch[:0]
	for _, e := range batch {
		if criticalKinds[e.Kind] {
			out = append(out, e)
		}
	}
	return out
}

func (c *conn) send(batch []bus.Event) {
	if len(batch) == 0 {
		return
	}
	payload := make([]map[string]any, 0, len(batch))
	for _, e := range batch {
		payload = append(payload, map[string]any{
			"event":     e.Kind,
			"timestamp": e.Timestamp,
			"data":      e.Payload,
		})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.ws.WriteJSON(map[string]any{"batch": payload}); err != nil {
		c.log.WithField("conn_id", c.id).WithField("err", err).Warn("wsfanout: write failed")
	}
}

// readLoop drains inbound frames purely to detect disconnects; the kernel's
// command surface is HTTP, not WS, so inbound frames are discarded.
func (c *conn) readLoop() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.pending = nil
		c.mu.Unlock()
		close(c.stopCh)
		_ = c.ws.Close()
	})
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
