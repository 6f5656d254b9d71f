// Package store defines the abstract state store contract consumed by the
// kernel's managers, plus an in-memory implementation.
package store

import (
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
)

// Store is the durable-row contract named in spec.md section 6: upsert,
// getAll, delete per entity, atomic counters, and time-windowed range
// deletes. Managers hold in-memory indexes hydrated from this at init and
// keep them consistent by writing through.
type Store interface {
	UpsertProcess(p domain.Process) error
	GetAllProcesses() ([]domain.Process, error)
	DeleteProcess(pid int) error

	UpsertSkill(s domain.SkillDefinition) error
	GetAllSkills() ([]domain.SkillDefinition, error)
	DeleteSkill(id string) error

	UpsertCronJob(j domain.CronJob) error
	GetAllCronJobs() ([]domain.CronJob, error)
	DeleteCronJob(id string) error

	UpsertTrigger(t domain.EventTrigger) error
	GetAllTriggers() ([]domain.EventTrigger, error)
	DeleteTrigger(id string) error

	UpsertWebhook(w domain.OutboundWebhook) error
	GetAllWebhooks() ([]domain.OutboundWebhook, error)
	DeleteWebhook(id string) error
	IncrementWebhookFailure(id string) error

	UpsertInboundWebhook(w domain.InboundWebhook) error
	GetAllInboundWebhooks() ([]domain.InboundWebhook, error)
	DeleteInboundWebhook(id string) error

	AppendWebhookLog(l domain.WebhookDeliveryLog) error
	GetAllWebhookLogs(webhookID string) ([]domain.WebhookDeliveryLog, error)
	PruneWebhookLogsBefore(cutoff time.Time) (int, error)

	UpsertDLQEntry(e domain.WebhookDLQEntry) error
	GetAllDLQEntries() ([]domain.WebhookDLQEntry, error)
	DeleteDLQEntry(id string) error

	AppendAuditEntry(e domain.AuditEntry) error
	GetAllAuditEntries() ([]domain.AuditEntry, error)
	PruneAuditEntriesBefore(cutoff time.Time) (int, error)

	UpsertResourceUsage(u domain.ResourceUsage) error
	GetResourceUsage(pid int) (domain.ResourceUsage, bool, error)
	DeleteResourceUsage(pid int) error
}
