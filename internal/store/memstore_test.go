package store

import (
	"testing"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestUpsertGetAllDeleteProcess(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.UpsertProcess(domain.Process{PID: 1, OwnerUID: "agent_1"}))

	rows, err := s.GetAllProcesses()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, s.DeleteProcess(1))
	rows, err = s.GetAllProcesses()
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestIncrementWebhookFailure(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.UpsertWebhook(domain.OutboundWebhook{ID: "wh1"}))
	require.NoError(t, s.IncrementWebhookFailure("wh1"))
	require.NoError(t, s.IncrementWebhookFailure("wh1"))

	rows, _ := s.GetAllWebhooks()
	require.Equal(t, int64(2), rows[0].FailureCounter)
}

func TestPruneAuditEntriesBefore(t *testing.T) {
	s := NewMemStore()
	old := domain.AuditEntry{ID: "a1", Timestamp: time.Now().Add(-48 * time.Hour)}
	recent := domain.AuditEntry{ID: "a2", Timestamp: time.Now()}
	require.NoError(t, s.AppendAuditEntry(old))
	require.NoError(t, s.AppendAuditEntry(recent))

	pruned, err := s.PruneAuditEntriesBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	rows, _ := s.GetAllAuditEntries()
	require.Len(t, rows, 1)
	require.Equal(t, "a2", rows[0].ID)
}

func TestRoundTripSkill(t *testing.T) {
	s := NewMemStore()
	def := domain.SkillDefinition{ID: "sk1", Name: "greeter", Version: "1.0.0"}
	require.NoError(t, s.UpsertSkill(def))

	all, err := s.GetAllSkills()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, def, all[0])

	def.Version = "1.0.1"
	require.NoError(t, s.UpsertSkill(def))
	all, _ = s.GetAllSkills()
	require.Len(t, all, 1)
	require.Equal(t, "1.0.1", all[0].Version)
}
