package webhook

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
)

func testConfig() Config {
	return Config{RetryBase: 5 * time.Millisecond, RetryMax: 20 * time.Millisecond, Timeout: time.Second}
}

func TestDeliveryRetriesThenDLQsOnPersistentFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := bus.New(nil)
	st := store.NewMemStore()
	e := New(testConfig(), nil, b, st, nil)

	var failed bool
	b.SubscribeFunc("webhook.failed", func(evt bus.Event) { failed = true })

	w, err := e.RegisterWebhook(domain.OutboundWebhook{
		Name:       "always-fails",
		TargetURL:  srv.URL,
		Patterns:   []string{"task.*"},
		Enabled:    true,
		RetryCount: 2,
	})
	require.NoError(t, err)

	b.Publish("task.completed", map[string]any{"ok": true})

	require.Eventually(t, func() bool { return failed }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 3 }, time.Second, 5*time.Millisecond)

	logs, err := st.GetAllWebhookLogs(w.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for _, l := range logs {
		require.False(t, l.Success)
	}

	dlq := e.ListDLQ()
	require.Len(t, dlq, 1)
	require.Equal(t, 3, dlq[0].TotalAttempts)
	require.Equal(t, w.ID, dlq[0].WebhookID)

	rows := e.ListWebhooks()
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, rows[0].FailureCounter)
}

func TestDeliverySucceedsWithoutExhaustingRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := bus.New(nil)
	st := store.NewMemStore()
	e := New(testConfig(), nil, b, st, nil)

	var delivered bool
	b.SubscribeFunc("webhook.delivery", func(evt bus.Event) {
		payload := evt.Payload.(map[string]any)
		if payload["status"] == "delivered" {
			delivered = true
		}
	})

	w, err := e.RegisterWebhook(domain.OutboundWebhook{
		Name:       "happy-path",
		TargetURL:  srv.URL,
		Patterns:   []string{"*"},
		Enabled:    true,
		RetryCount: 2,
	})
	require.NoError(t, err)

	b.Publish("anything.happened", nil)

	require.Eventually(t, func() bool { return delivered }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))

	logs, _ := st.GetAllWebhookLogs(w.ID)
	require.Len(t, logs, 1)
	require.True(t, logs[0].Success)
}

func TestSignatureVerificationRoundTrip(t *testing.T) {
	body := []byte(`{"event":"task.completed"}`)
	sig := computeSignature("my-secret", body)
	require.True(t, VerifySignature("my-secret", body, sig))
	require.False(t, VerifySignature("wrong-secret", body, sig))
	require.False(t, VerifySignature("my-secret", []byte("tampered"), sig))
}

func TestInboundUnknownTokenFails(t *testing.T) {
	e := New(testConfig(), nil, bus.New(nil), store.NewMemStore(), nil)
	_, ok := e.HandleInbound("does-not-exist")
	require.False(t, ok)
}

func TestInboundDisabledTokenFails(t *testing.T) {
	e := New(testConfig(), nil, bus.New(nil), store.NewMemStore(), nil)
	w, err := e.RegisterInbound(domain.InboundWebhook{Name: "disabled-hook", Enabled: false})
	require.NoError(t, err)
	_, ok := e.HandleInbound(w.Token)
	require.False(t, ok)
}

func TestInboundValidTokenSpawns(t *testing.T) {
	spawned := false
	spawn := func(ownerUID string, cfg domain.SpawnConfig) (int, error) {
		spawned = true
		return 9, nil
	}
	e := New(testConfig(), spawn, bus.New(nil), store.NewMemStore(), nil)
	w, err := e.RegisterInbound(domain.InboundWebhook{Name: "enabled-hook", Enabled: true, OwnerUID: "agent_1"})
	require.NoError(t, err)

	pid, ok := e.HandleInbound(w.Token)
	require.True(t, ok)
	require.True(t, spawned)
	require.Equal(t, 9, pid)
}

func TestBackoffDelayRespectsMax(t *testing.T) {
	d := backoffDelay(10, 5*time.Millisecond, 20*time.Millisecond)
	require.LessOrEqual(t, d, 20*time.Millisecond+time.Second)
}

func TestPatternMatchingExactPrefixAndWildcard(t *testing.T) {
	require.True(t, matchesPattern("*", "anything.at.all"))
	require.True(t, matchesPattern("process.*", "process.spawned"))
	require.False(t, matchesPattern("process.*", "cron.fired"))
	require.True(t, matchesPattern("cron.fired", "cron.fired"))
	require.False(t, matchesPattern("cron.fired", "cron.other"))
}
