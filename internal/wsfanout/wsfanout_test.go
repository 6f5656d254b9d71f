package wsfanout

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
)

func dial(t *testing.T, srv *httptest.Server, filter string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	if filter != "" {
		url += "?filter=" + filter
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestBroadcastDeliversBatchedEvents(t *testing.T) {
	b := bus.New(nil)
	h := New(Config{FlushInterval: 10 * time.Millisecond, BatchMaxSize: 100}, b, nil)
	defer h.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.ServeHTTP)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, "")
	defer conn.Close()

	b.Publish("task.completed", map[string]any{"ok": true})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	batch := msg["batch"].([]any)
	require.Len(t, batch, 1)
	row := batch[0].(map[string]any)
	require.Equal(t, "task.completed", row["event"])
}

func TestCriticalEventFlushesImmediately(t *testing.T) {
	b := bus.New(nil)
	h := New(Config{FlushInterval: time.Hour, BatchMaxSize: 100}, b, nil)
	defer h.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.ServeHTTP)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, "")
	defer conn.Close()

	b.Publish("kernel.ready", nil)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	batch := msg["batch"].([]any)
	require.Len(t, batch, 1)
	require.Equal(t, "kernel.ready", batch[0].(map[string]any)["event"])
}

func TestFilterRestrictsDeliveredEvents(t *testing.T) {
	b := bus.New(nil)
	h := New(Config{FlushInterval: 10 * time.Millisecond, BatchMaxSize: 100}, b, nil)
	defer h.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.ServeHTTP)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, "process.*")
	defer conn.Close()

	b.Publish("cron.fired", map[string]any{"jobId": "x"})
	b.Publish("process.spawned", map[string]any{"pid": 1})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	batch := msg["batch"].([]any)
	require.Len(t, batch, 1)
	require.Equal(t, "process.spawned", batch[0].(map[string]any)["event"])
}

func TestEvictionDropsOldestNonCriticalWhenOverCap(t *testing.T) {
	c := &conn{cfg: Config{MaxQueuedEvents: 2, BatchMaxSize: 1000, MaxBufferBytes: 1 << 20}, stopCh: make(chan struct{})}
	c.pending = []bus.Event{{Kind: "a"}, {Kind: "b"}, {Kind: "response.ok"}}
	c.evictIfOverCapLocked()
	require.Len(t, c.pending, 2)
	require.Equal(t, "b", c.pending[0].Kind)
	require.Equal(t, "response.ok", c.pending[1].Kind)
}

func TestPatternMatching(t *testing.T) {
	require.True(t, matchesPattern("*", "anything"))
	require.True(t, matchesPattern("process.*", "process.spawned"))
	require.False(t, matchesPattern("process.*", "cron.fired"))
	require.True(t, matchesPattern("cron.fired", "cron.fired"))
}
