package store

import (
	"sync"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
)

// MemStore is an in-process Store: maps guarded by a single RWMutex. Rows
// do not survive a restart. The kernel uses it directly in the testing
// environment; in every other environment FileStore wraps it.
type MemStore struct {
	mu sync.RWMutex

	processes      map[int]domain.Process
	skills         map[string]domain.SkillDefinition
	cronJobs       map[string]domain.CronJob
	triggers       map[string]domain.EventTrigger
	webhooks       map[string]domain.OutboundWebhook
	inboundHooks   map[string]domain.InboundWebhook
	webhookLogs    []domain.WebhookDeliveryLog
	dlqEntries     map[string]domain.WebhookDLQEntry
	auditEntries   []domain.AuditEntry
	resourceUsage  map[int]domain.ResourceUsage
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		processes:     make(map[int]domain.Process),
		skills:        make(map[string]domain.SkillDefinition),
		cronJobs:      make(map[string]domain.CronJob),
		triggers:      make(map[string]domain.EventTrigger),
		webhooks:      make(map[string]domain.OutboundWebhook),
		inboundHooks:  make(map[string]domain.InboundWebhook),
		dlqEntries:    make(map[string]domain.WebhookDLQEntry),
		resourceUsage: make(map[int]domain.ResourceUsage),
	}
}

func (m *MemStore) UpsertProcess(p domain.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes[p.PID] = p
	return nil
}

func (m *MemStore) GetAllProcesses() ([]domain.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Process, 0, len(m.processes))
	for _, p := range m.processes {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemStore) DeleteProcess(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processes, pid)
	return nil
}

func (m *MemStore) UpsertSkill(s domain.SkillDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills[s.ID] = s
	return nil
}

func (m *MemStore) GetAllSkills() ([]domain.SkillDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SkillDefinition, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemStore) DeleteSkill(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.skills, id)
	return nil
}

func (m *MemStore) UpsertCronJob(j domain.CronJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cronJobs[j.ID] = j
	return nil
}

func (m *MemStore) GetAllCronJobs() ([]domain.CronJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CronJob, 0, len(m.cronJobs))
	for _, j := range m.cronJobs {
		out = append(out, j)
	}
	return out, nil
}

func (m *MemStore) DeleteCronJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cronJobs, id)
	return nil
}

func (m *MemStore) UpsertTrigger(t domain.EventTrigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[t.ID] = t
	return nil
}

func (m *MemStore) GetAllTriggers() ([]domain.EventTrigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.EventTrigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		out = append(out, t)
	}
	return out, nil
}

func (m *MemStore) DeleteTrigger(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.triggers, id)
	return nil
}

func (m *MemStore) UpsertWebhook(w domain.OutboundWebhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[w.ID] = w
	return nil
}

func (m *MemStore) GetAllWebhooks() ([]domain.OutboundWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.OutboundWebhook, 0, len(m.webhooks))
	for _, w := range m.webhooks {
		out = append(out, w)
	}
	return out, nil
}

func (m *MemStore) DeleteWebhook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.webhooks, id)
	return nil
}

func (m *MemStore) IncrementWebhookFailure(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok {
		return nil
	}
	w.FailureCounter++
	m.webhooks[id] = w
	return nil
}

func (m *MemStore) UpsertInboundWebhook(w domain.InboundWebhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inboundHooks[w.ID] = w
	return nil
}

func (m *MemStore) GetAllInboundWebhooks() ([]domain.InboundWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.InboundWebhook, 0, len(m.inboundHooks))
	for _, w := range m.inboundHooks {
		out = append(out, w)
	}
	return out, nil
}

func (m *MemStore) DeleteInboundWebhook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inboundHooks, id)
	return nil
}

func (m *MemStore) AppendWebhookLog(l domain.WebhookDeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookLogs = append(m.webhookLogs, l)
	return nil
}

func (m *MemStore) GetAllWebhookLogs(webhookID string) ([]domain.WebhookDeliveryLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if webhookID == "" {
		out := make([]domain.WebhookDeliveryLog, len(m.webhookLogs))
		copy(out, m.webhookLogs)
		return out, nil
	}
	var out []domain.WebhookDeliveryLog
	for _, l := range m.webhookLogs {
		if l.WebhookID == webhookID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemStore) PruneWebhookLogsBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.webhookLogs[:0]
	pruned := 0
	for _, l := range m.webhookLogs {
		if l.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, l)
	}
	m.webhookLogs = kept
	return pruned, nil
}

func (m *MemStore) UpsertDLQEntry(e domain.WebhookDLQEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlqEntries[e.ID] = e
	return nil
}

func (m *MemStore) GetAllDLQEntries() ([]domain.WebhookDLQEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.WebhookDLQEntry, 0, len(m.dlqEntries))
	for _, e := range m.dlqEntries {
		out = append(out, e)
	}
	return out, nil
}

func (m *MemStore) DeleteDLQEntry(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dlqEntries, id)
	return nil
}

func (m *MemStore) AppendAuditEntry(e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditEntries = append(m.auditEntries, e)
	return nil
}

func (m *MemStore) GetAllAuditEntries() ([]domain.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AuditEntry, len(m.auditEntries))
	copy(out, m.auditEntries)
	return out, nil
}

func (m *MemStore) PruneAuditEntriesBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.auditEntries[:0]
	pruned := 0
	for _, e := range m.auditEntries {
		if e.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	m.auditEntries = kept
	return pruned, nil
}

func (m *MemStore) UpsertResourceUsage(u domain.ResourceUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourceUsage[u.PID] = u
	return nil
}

func (m *MemStore) GetResourceUsage(pid int) (domain.ResourceUsage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.resourceUsage[pid]
	return u, ok, nil
}

func (m *MemStore) DeleteResourceUsage(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resourceUsage, pid)
	return nil
}

var _ Store = (*MemStore)(nil)
