// Package audit implements the kernel's append-only audit trail: tool
// invocations, auth events, admin actions and resource events, each
// recorded with sanitized arguments and a result hash rather than the raw
// payload.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// redactedKeys lists argument keys whose values are never written to the
// trail in cleartext, matched case-insensitively.
var redactedKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"apikey":        true,
	"api_key":       true,
	"secret":        true,
	"credentials":   true,
	"authorization": true,
}

const redactedPlaceholder = "[REDACTED]"
const resultHashInputCap = 1000

// Log is the kernel's audit trail: an append-only store of sanitized
// actions, wired to the bus so most rows are recorded automatically.
type Log struct {
	mu        sync.Mutex
	log       *logger.Logger
	bus       *bus.Bus
	store     store.Store
	retention time.Duration
}

// New builds a Log backed by st and wires the standard set of bus
// listeners that translate kernel events into audit rows.
func New(retention time.Duration, b *bus.Bus, st store.Store, log *logger.Logger) *Log {
	if log == nil {
		log = logger.NewDefault("audit")
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	a := &Log{log: log, bus: b, store: st, retention: retention}
	if b != nil {
		a.wireBusListeners(b)
	}
	return a
}

func (a *Log) wireBusListeners(b *bus.Bus) {
	b.SubscribeFunc("process.spawned", func(evt bus.Event) {
		a.record(domain.AuditResource, 0, "", "agent.spawn", "", evt.Payload, nil)
	})
	b.SubscribeFunc("process.exit", func(evt bus.Event) {
		a.record(domain.AuditResource, 0, "", "agent.exit", "", evt.Payload, nil)
	})
	b.SubscribeFunc("agent.action", func(evt bus.Event) {
		a.record(domain.AuditToolInvocation, 0, "", "tool.invocation", "", evt.Payload, nil)
	})
	b.SubscribeFunc("resource.exceeded", func(evt bus.Event) {
		a.record(domain.AuditResource, 0, "", "quota.exceeded", "", evt.Payload, nil)
	})
	b.SubscribeFunc("workspace.cleaned", func(evt bus.Event) {
		a.record(domain.AuditResource, 0, "", "workspace.cleanup", "", evt.Payload, nil)
	})
}

// LogToolInvocation records a skill/tool call, sanitizing args and hashing
// the result rather than storing it.
func (a *Log) LogToolInvocation(actorPID int, actorUID, action, target string, args map[string]any, result any) domain.AuditEntry {
	return a.record(domain.AuditToolInvocation, actorPID, actorUID, action, target, args, result)
}

// LogAuthEvent records a login/token/permission event.
func (a *Log) LogAuthEvent(actorUID, action, target string, metadata map[string]any) domain.AuditEntry {
	e := a.record(domain.AuditAuth, 0, actorUID, action, target, metadata, nil)
	return e
}

// LogAdminAction records an operator action (quota change, kill, config edit).
func (a *Log) LogAdminAction(actorUID, action, target string, args map[string]any) domain.AuditEntry {
	return a.record(domain.AuditAdmin, 0, actorUID, action, target, args, nil)
}

func (a *Log) record(kind domain.AuditEventKind, actorPID int, actorUID, action, target string, args any, result any) domain.AuditEntry {
	entry := domain.AuditEntry{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		Kind:          kind,
		ActorPID:      actorPID,
		ActorUID:      actorUID,
		Action:        action,
		Target:        target,
		SanitizedArgs: sanitize(args),
		ResultHash:    hashResult(result),
	}
	if m, ok := args.(map[string]any); ok {
		if pid, ok := m["pid"].(int); ok && entry.ActorPID == 0 {
			entry.ActorPID = pid
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		if err := a.store.AppendAuditEntry(entry); err != nil {
			a.log.WithField("err", err).Warn("audit: append failed")
		}
	}
	return entry
}

// sanitize walks a value and replaces any map key matching redactedKeys
// (case-insensitively) with a fixed placeholder, recursing into nested
// maps and slices.
func sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if redactedKeys[strings.ToLower(k)] {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = sanitize(item)
		}
		return out
	default:
		return v
	}
}

// hashResult returns the hex SHA-256 of the first 1000 characters of the
// JSON-stringified result, or "" for a nil/absent result.
func hashResult(result any) string {
	if result == nil {
		return ""
	}
	raw, err := json.Marshal(result)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", result))
	}
	s := string(raw)
	if len(s) > resultHashInputCap {
		s = s[:resultHashInputCap]
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Query filters audit entries by PID, action substring, event kind and
// time range, newest first, paginated by offset/limit.
type Query struct {
	PID       int
	Action    string
	Kind      domain.AuditEventKind
	Since     time.Time
	Until     time.Time
	Offset    int
	Limit     int
}

// Find runs q against the full audit trail in memory. The store is the
// source of truth; this is not indexed beyond a linear scan, which is
// adequate for the retention windows the kernel keeps.
func (a *Log) Find(q Query) ([]domain.AuditEntry, error) {
	if a.store == nil {
		return nil, nil
	}
	all, err := a.store.GetAllAuditEntries()
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.AuditEntry, 0, len(all))
	for _, e := range all {
		if q.PID != 0 && e.ActorPID != q.PID {
			continue
		}
		if q.Action != "" && !strings.Contains(e.Action, q.Action) {
			continue
		}
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		filtered = append(filtered, e)
	}

	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	if q.Offset > 0 {
		if q.Offset >= len(filtered) {
			return []domain.AuditEntry{}, nil
		}
		filtered = filtered[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(filtered) {
		filtered = filtered[:q.Limit]
	}
	return filtered, nil
}

// Prune deletes audit rows older than the configured retention window.
func (a *Log) Prune() (int, error) {
	if a.store == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-a.retention)
	n, err := a.store.PruneAuditEntriesBefore(cutoff)
	if err != nil {
		a.log.WithField("err", err).Warn("audit: prune failed")
	}
	return n, err
}
