// Package webhook implements the kernel's outbound delivery engine (glob
// routing, signed retries with backoff, DLQ) and inbound trigger endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

const responseBodyCap = 4096

// SpawnFunc spawns an agent process for an inbound webhook trigger.
type SpawnFunc func(ownerUID string, cfg domain.SpawnConfig) (int, error)

// Config controls retry pacing and per-request behavior.
type Config struct {
	RetryBase  time.Duration
	RetryMax   time.Duration
	Timeout    time.Duration
}

// Engine owns outbound webhooks, their delivery, and inbound triggers.
type Engine struct {
	mu sync.Mutex

	log   *logger.Logger
	bus   *bus.Bus
	store store.Store
	spawn SpawnFunc
	cfg   Config

	webhooks   map[string]domain.OutboundWebhook
	inbound    map[string]domain.InboundWebhook
	limiters   map[string]*rate.Limiter
	httpClient *http.Client
}

// New builds an Engine hydrated from st and subscribes to every bus event
// outside the webhook.* namespace to avoid delivery loops.
func New(cfg Config, spawn SpawnFunc, b *bus.Bus, st store.Store, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("webhook")
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 16 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	e := &Engine{
		log:        log,
		bus:        b,
		store:      st,
		spawn:      spawn,
		cfg:        cfg,
		webhooks:   make(map[string]domain.OutboundWebhook),
		inbound:    make(map[string]domain.InboundWebhook),
		limiters:   make(map[string]*rate.Limiter),
		httpClient: &http.Client{},
	}
	if st != nil {
		if rows, err := st.GetAllWebhooks(); err == nil {
			for _, w := range rows {
				e.webhooks[w.ID] = w
			}
		}
		if rows, err := st.GetAllInboundWebhooks(); err == nil {
			for _, w := range rows {
				e.inbound[w.ID] = w
			}
		}
	}
	if b != nil {
		b.SubscribeFunc("*", func(evt bus.Event) { e.onEvent(evt) })
	}
	return e
}

// RegisterWebhook persists a new outbound webhook.
func (e *Engine) RegisterWebhook(w domain.OutboundWebhook) (domain.OutboundWebhook, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	e.mu.Lock()
	e.webhooks[w.ID] = w
	e.mu.Unlock()
	if e.store != nil {
		if err := e.store.UpsertWebhook(w); err != nil {
			return w, err
		}
	}
	return w, nil
}

// SetWebhookEnabled flips the enabled flag on an outbound webhook.
func (e *Engine) SetWebhookEnabled(id string, enabled bool) error {
	e.mu.Lock()
	w, ok := e.webhooks[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("webhook %s not found", id)
	}
	w.Enabled = enabled
	e.webhooks[id] = w
	e.mu.Unlock()
	if e.store != nil {
		return e.store.UpsertWebhook(w)
	}
	return nil
}

// DeleteWebhook removes an outbound webhook.
func (e *Engine) DeleteWebhook(id string) error {
	e.mu.Lock()
	delete(e.webhooks, id)
	e.mu.Unlock()
	if e.store != nil {
		return e.store.DeleteWebhook(id)
	}
	return nil
}

// ListWebhooks returns every registered outbound webhook.
func (e *Engine) ListWebhooks() []domain.OutboundWebhook {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.OutboundWebhook, 0, len(e.webhooks))
	for _, w := range e.webhooks {
		out = append(out, w)
	}
	return out
}

// RegisterInbound persists a new inbound webhook with a fresh opaque token.
func (e *Engine) RegisterInbound(w domain.InboundWebhook) (domain.InboundWebhook, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Token == "" {
		w.Token = newToken()
	}
	e.mu.Lock()
	e.inbound[w.ID] = w
	e.mu.Unlock()
	if e.store != nil {
		if err := e.store.UpsertInboundWebhook(w); err != nil {
			return w, err
		}
	}
	return w, nil
}

func newToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// HandleInbound looks up token; if found and enabled, spawns the
// configured agent and returns its PID. Unknown/disabled tokens report ok
// false so the caller can reply with an opaque empty body.
func (e *Engine) HandleInbound(token string) (pid int, ok bool) {
	e.mu.Lock()
	var match domain.InboundWebhook
	found := false
	for _, w := range e.inbound {
		if subtle.ConstantTimeCompare([]byte(w.Token), []byte(token)) == 1 {
			match = w
			found = true
			break
		}
	}
	e.mu.Unlock()
	if !found || !match.Enabled {
		return 0, false
	}

	if e.spawn != nil {
		p, err := e.spawn(match.OwnerUID, match.Config)
		if err != nil {
			e.log.WithField("inbound_id", match.ID).WithField("err", err).Warn("webhook: inbound spawn failed")
			return 0, false
		}
		pid = p
	}

	e.mu.Lock()
	match.FireCount++
	e.inbound[match.ID] = match
	e.mu.Unlock()
	if e.store != nil {
		_ = e.store.UpsertInboundWebhook(match)
	}
	e.publish("webhook.inbound.triggered", map[string]any{"inboundId": match.ID, "pid": pid})
	return pid, true
}

// onEvent evaluates every enabled webhook against a bus event and kicks
// off delivery asynchronously so the bus is never blocked.
func (e *Engine) onEvent(evt bus.Event) {
	if strings.HasPrefix(evt.Kind, "webhook.") {
		return
	}
	e.mu.Lock()
	var matched []domain.OutboundWebhook
	for _, w := range e.webhooks {
		if !w.Enabled {
			continue
		}
		if !anyPatternMatches(w.Patterns, evt.Kind) {
			continue
		}
		if !filterMatches(w.Filter, evt.Payload) {
			continue
		}
		matched = append(matched, w)
	}
	e.mu.Unlock()

	for _, w := range matched {
		go e.deliver(w, evt)
	}
}

func anyPatternMatches(patterns []string, kind string) bool {
	for _, p := range patterns {
		if matchesPattern(p, kind) {
			return true
		}
	}
	return false
}

// matchesPattern reports whether an event kind matches a routing pattern:
// "*" matches all, "prefix.*" matches any prefix.X, exact otherwise.
func matchesPattern(pattern, kind string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(kind, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == kind
}

func filterMatches(filter map[string]any, payload any) bool {
	if len(filter) == 0 {
		return true
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	for k, v := range filter {
		if fmt.Sprintf("%v", m[k]) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func (e *Engine) limiterFor(webhookID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[webhookID]
	if !ok {
		l = rate.NewLimiter(rate.Inf, 1)
		e.limiters[webhookID] = l
	}
	return l
}

type outboundBody struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	WebhookID string    `json:"webhookId"`
	Data      any       `json:"data"`
}

// deliver attempts delivery up to retryCount+1 times with exponential
// backoff plus jitter, writing one delivery log row per attempt. Attempts
// for a given (webhook, event) pair are strictly sequential by
// construction: this goroutine owns the whole retry loop.
func (e *Engine) deliver(w domain.OutboundWebhook, evt bus.Event) {
	body, _ := json.Marshal(outboundBody{Event: evt.Kind, Timestamp: evt.Timestamp, WebhookID: w.ID, Data: evt.Payload})

	limiter := e.limiterFor(w.ID)
	maxAttempts := w.RetryCount + 1

	var lastErr string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, e.cfg.RetryBase, e.cfg.RetryMax)
			time.Sleep(delay)
		}
		_ = limiter.Wait(context.Background())

		status, respBody, duration, err := e.attempt(w, body)
		success := err == nil && status >= 200 && status < 300

		e.logAttempt(w.ID, evt.Kind, evt.Payload, status, respBody, duration, success)

		if success {
			e.markDelivered(w.ID)
			e.publish("webhook.delivery", map[string]any{"status": "delivered", "attempts": attempt + 1, "webhookId": w.ID})
			e.publish("webhook.fired", map[string]any{"webhookId": w.ID})
			return
		}
		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = fmt.Sprintf("HTTP %d", status)
		}
	}

	e.toDLQ(w.ID, evt.Kind, evt.Payload, lastErr, maxAttempts)
	e.incrementFailure(w.ID)
	e.publish("webhook.delivery", map[string]any{"status": "dlq", "webhookId": w.ID})
	e.publish("webhook.failed", map[string]any{"webhookId": w.ID, "error": lastErr})
}

// backoffDelay implements delay(attempt) = min(base*2^attempt, max) +
// uniform(0,1000)ms.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > max {
			d = max
			break
		}
	}
	jitter := time.Duration(rand.IntN(1000)) * time.Millisecond
	return d + jitter
}

func (e *Engine) attempt(w domain.OutboundWebhook, body []byte) (status int, respBody string, duration time.Duration, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(w.TimeoutMs)*time.Millisecond)
	if w.TimeoutMs <= 0 {
		ctx, cancel = context.WithTimeout(context.Background(), e.cfg.Timeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.TargetURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("X-Aether-Signature", computeSignature(w.Secret, body))
	}
	for k, v := range w.ExtraHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	duration = time.Since(start)
	if err != nil {
		return 0, "", duration, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
	respBody = string(raw)
	if len(respBody) > responseBodyCap {
		respBody = respBody[:responseBodyCap]
	}
	return resp.StatusCode, respBody, duration, nil
}

// computeSignature returns lowercase hex HMAC-SHA256(body, secret), the
// wire signature format named in spec.md.
func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Aether-Signature header using
// constant-time comparison.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (e *Engine) logAttempt(webhookID, eventType string, payload any, status int, respBody string, duration time.Duration, success bool) {
	log := domain.WebhookDeliveryLog{
		ID:           uuid.NewString(),
		WebhookID:    webhookID,
		EventType:    eventType,
		Payload:      payload,
		HTTPStatus:   status,
		ResponseBody: respBody,
		DurationMs:   duration.Milliseconds(),
		Success:      success,
		Timestamp:    time.Now(),
	}
	if e.store != nil {
		if err := e.store.AppendWebhookLog(log); err != nil {
			e.log.WithField("webhook_id", webhookID).WithField("err", err).Warn("webhook: log append failed")
		}
	}
}

func (e *Engine) markDelivered(webhookID string) {
	e.mu.Lock()
	w, ok := e.webhooks[webhookID]
	if ok {
		w.LastTriggered = time.Now()
		e.webhooks[webhookID] = w
	}
	e.mu.Unlock()
	if ok && e.store != nil {
		_ = e.store.UpsertWebhook(w)
	}
}

func (e *Engine) incrementFailure(webhookID string) {
	e.mu.Lock()
	w, ok := e.webhooks[webhookID]
	if ok {
		w.FailureCounter++
		e.webhooks[webhookID] = w
	}
	e.mu.Unlock()
	if e.store != nil {
		_ = e.store.IncrementWebhookFailure(webhookID)
	}
}

func (e *Engine) toDLQ(webhookID, eventType string, payload any, finalErr string, attempts int) {
	entry := domain.WebhookDLQEntry{
		ID:            uuid.NewString(),
		WebhookID:     webhookID,
		EventType:     eventType,
		Payload:       payload,
		FinalError:    finalErr,
		TotalAttempts: attempts,
		CreatedAt:     time.Now(),
	}
	if e.store != nil {
		if err := e.store.UpsertDLQEntry(entry); err != nil {
			e.log.WithField("webhook_id", webhookID).WithField("err", err).Warn("webhook: DLQ insert failed")
		}
	}
}

// ListDLQ returns every DLQ entry.
func (e *Engine) ListDLQ() []domain.WebhookDLQEntry {
	if e.store == nil {
		return nil
	}
	rows, _ := e.store.GetAllDLQEntries()
	return rows
}

// RetryDLQ attempts a single redelivery of a DLQ entry and updates its
// retried-at timestamp regardless of outcome.
func (e *Engine) RetryDLQ(id string) error {
	if e.store == nil {
		return fmt.Errorf("webhook: no store configured")
	}
	rows, err := e.store.GetAllDLQEntries()
	if err != nil {
		return err
	}
	var entry domain.WebhookDLQEntry
	found := false
	for _, r := range rows {
		if r.ID == id {
			entry = r
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("webhook: DLQ entry %s not found", id)
	}

	e.mu.Lock()
	w, ok := e.webhooks[entry.WebhookID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("webhook: webhook %s not found", entry.WebhookID)
	}

	body, _ := json.Marshal(outboundBody{Event: entry.EventType, Timestamp: time.Now(), WebhookID: w.ID, Data: entry.Payload})
	status, respBody, duration, attemptErr := e.attempt(w, body)
	success := attemptErr == nil && status >= 200 && status < 300
	e.logAttempt(w.ID, entry.EventType, entry.Payload, status, respBody, duration, success)

	entry.RetriedAt = time.Now()
	_ = e.store.UpsertDLQEntry(entry)
	if success {
		e.markDelivered(w.ID)
		return e.store.DeleteDLQEntry(id)
	}
	return nil
}

// PurgeDLQ removes one DLQ entry.
func (e *Engine) PurgeDLQ(id string) error {
	if e.store == nil {
		return nil
	}
	return e.store.DeleteDLQEntry(id)
}

// PurgeAllDLQ removes every DLQ entry.
func (e *Engine) PurgeAllDLQ() error {
	if e.store == nil {
		return nil
	}
	rows, err := e.store.GetAllDLQEntries()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := e.store.DeleteDLQEntry(r.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(kind, payload)
}
