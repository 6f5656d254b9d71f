// Package governor implements the kernel's resource governor: per-PID
// token/step/wall-clock quotas, cost accounting and pre-emptive enforcement.
package governor

import (
	"sync"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// Signaler is the minimal capability the governor needs from the process
// manager to request pre-emption, avoiding a backward import edge.
type Signaler interface {
	Signal(pid int, sig string) error
}

// SignalFunc adapts a concrete procmgr.Manager-shaped Signal method
// (which takes its own Signal type) without the governor importing procmgr.
type SignalFunc func(pid int, sig string) error

func (f SignalFunc) Signal(pid int, sig string) error { return f(pid, sig) }

// rate is USD per million tokens, input and output priced separately.
type rate struct{ inputPerM, outputPerM float64 }

var providerRates = map[string]rate{
	"anthropic": {inputPerM: 3.0, outputPerM: 15.0},
	"openai":    {inputPerM: 2.5, outputPerM: 10.0},
	"google":    {inputPerM: 1.25, outputPerM: 5.0},
	"default":   {inputPerM: 3.0, outputPerM: 15.0},
}

const runawayThreshold = 1.20

// Defaults are the governor's quota defaults; a per-PID Quota overrides
// any subset of these.
type Defaults struct {
	MaxTokensPerSession int64
	MaxTokensPerDay      int64
	MaxSteps             int
	MaxWallClockMs       int64
}

// Governor tracks per-PID usage and enforces quotas.
type Governor struct {
	mu sync.Mutex

	log      *logger.Logger
	bus      *bus.Bus
	store    store.Store
	signaler Signaler
	defaults Defaults

	usage  map[int]domain.ResourceUsage
	quotas map[int]domain.Quota
}

// New builds a Governor.
func New(defaults Defaults, b *bus.Bus, st store.Store, signaler Signaler, log *logger.Logger) *Governor {
	if log == nil {
		log = logger.NewDefault("governor")
	}
	return &Governor{
		log:      log,
		bus:      b,
		store:    st,
		signaler: signaler,
		defaults: defaults,
		usage:    make(map[int]domain.ResourceUsage),
		quotas:   make(map[int]domain.Quota),
	}
}

// SetQuota installs a per-PID override. Unspecified fields inherit the
// defaults at check time.
func (g *Governor) SetQuota(pid int, q domain.Quota) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotas[pid] = q
}

func (g *Governor) effective(pid int) domain.Quota {
	q := g.quotas[pid]
	if q.MaxTokensPerSession == 0 {
		q.MaxTokensPerSession = g.defaults.MaxTokensPerSession
	}
	if q.MaxTokensPerDay == 0 {
		q.MaxTokensPerDay = g.defaults.MaxTokensPerDay
	}
	if q.MaxSteps == 0 {
		q.MaxSteps = g.defaults.MaxSteps
	}
	if q.MaxWallClockMs == 0 {
		q.MaxWallClockMs = g.defaults.MaxWallClockMs
	}
	return q
}

// RecordTokenUsage appends a usage delta, recomputes cost, increments the
// step counter by one, auto-checks the quota and, if exceeded, emits
// resource.exceeded and asks the process manager to SIGTERM the process.
func (g *Governor) RecordTokenUsage(pid int, provider string, inputTokens, outputTokens int64) domain.ResourceUsage {
	g.mu.Lock()
	u, ok := g.usage[pid]
	if !ok {
		u = domain.ResourceUsage{PID: pid, StartedAt: time.Now(), Provider: provider}
	}
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.Steps++
	if provider != "" {
		u.Provider = provider
	}
	u.EstimatedCostUSD = estimateCost(u.Provider, u.InputTokens, u.OutputTokens)
	g.usage[pid] = u
	g.mu.Unlock()

	g.persist(u)
	g.publish("resource.usage", u)

	allowed, reason := g.checkQuotaLocked(pid, u)
	if !allowed {
		g.publish("resource.exceeded", map[string]any{"pid": pid, "reason": reason})
		if g.signaler != nil {
			if err := g.signaler.Signal(pid, "SIGTERM"); err != nil {
				g.log.WithField("pid", pid).WithField("err", err).Warn("governor: pre-emption signal failed")
			}
		}
	}
	return u
}

func estimateCost(provider string, inputTokens, outputTokens int64) float64 {
	r, ok := providerRates[provider]
	if !ok {
		r = providerRates["default"]
	}
	return float64(inputTokens)/1_000_000*r.inputPerM + float64(outputTokens)/1_000_000*r.outputPerM
}

func (g *Governor) persist(u domain.ResourceUsage) {
	if g.store == nil {
		return
	}
	if err := g.store.UpsertResourceUsage(u); err != nil {
		g.log.WithField("pid", u.PID).WithField("err", err).Warn("governor: persist failed")
	}
}

func (g *Governor) publish(kind string, payload any) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(kind, payload)
}

// CheckQuota reports whether pid is within quota and, if not, why.
func (g *Governor) CheckQuota(pid int) (allowed bool, reason string) {
	g.mu.Lock()
	u, ok := g.usage[pid]
	g.mu.Unlock()
	if !ok {
		return true, ""
	}
	return g.checkQuotaLocked(pid, u)
}

func (g *Governor) checkQuotaLocked(pid int, u domain.ResourceUsage) (bool, string) {
	q := g.effective(pid)
	sessionTokens := u.InputTokens + u.OutputTokens
	if q.MaxTokensPerSession > 0 && sessionTokens > q.MaxTokensPerSession {
		return false, "Session token limit exceeded"
	}
	if q.MaxSteps > 0 && int64(u.Steps) > int64(q.MaxSteps) {
		return false, "Step limit exceeded"
	}
	elapsedMs := time.Since(u.StartedAt).Milliseconds()
	if q.MaxWallClockMs > 0 && elapsedMs > q.MaxWallClockMs {
		return false, "Wall-clock limit exceeded"
	}
	return true, ""
}

// IsRunaway reports whether pid's usage exceeds quota by more than 20% on
// either tokens or steps. Independent of enforcement; for diagnostics only.
func (g *Governor) IsRunaway(pid int) bool {
	g.mu.Lock()
	u, ok := g.usage[pid]
	g.mu.Unlock()
	if !ok {
		return false
	}
	q := g.effective(pid)
	sessionTokens := u.InputTokens + u.OutputTokens
	if q.MaxTokensPerSession > 0 && float64(sessionTokens) > float64(q.MaxTokensPerSession)*runawayThreshold {
		return true
	}
	if q.MaxSteps > 0 && float64(u.Steps) > float64(q.MaxSteps)*runawayThreshold {
		return true
	}
	return false
}

// Usage returns the current usage record for pid.
func (g *Governor) Usage(pid int) (domain.ResourceUsage, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.usage[pid]
	return u, ok
}

// Forget drops a PID's usage/quota bookkeeping, called once the process is
// reaped.
func (g *Governor) Forget(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.usage, pid)
	delete(g.quotas, pid)
	if g.store != nil {
		_ = g.store.DeleteResourceUsage(pid)
	}
}
