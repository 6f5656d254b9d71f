package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
)

func TestSanitizeRedactsSensitiveKeysCaseInsensitive(t *testing.T) {
	out := sanitize(map[string]any{
		"Password": "hunter2",
		"API_KEY":  "sk-123",
		"nested": map[string]any{
			"Authorization": "Bearer xyz",
			"safe":          "value",
		},
		"ok": "fine",
	})
	m := out.(map[string]any)
	require.Equal(t, redactedPlaceholder, m["Password"])
	require.Equal(t, redactedPlaceholder, m["API_KEY"])
	require.Equal(t, "fine", m["ok"])
	nested := m["nested"].(map[string]any)
	require.Equal(t, redactedPlaceholder, nested["Authorization"])
	require.Equal(t, "value", nested["safe"])
}

func TestHashResultIsEmptyForNilAndStableOtherwise(t *testing.T) {
	require.Equal(t, "", hashResult(nil))
	h1 := hashResult(map[string]any{"x": 1})
	h2 := hashResult(map[string]any{"x": 1})
	require.Equal(t, h1, h2)
	require.NotEmpty(t, h1)
}

func TestLogToolInvocationPersistsSanitizedEntry(t *testing.T) {
	st := store.NewMemStore()
	a := New(24*time.Hour, nil, st, nil)

	entry := a.LogToolInvocation(7, "agent_1", "shell.exec", "fs.write", map[string]any{
		"password": "hunter2",
		"cmd":      "ls -la",
	}, map[string]any{"ok": true})

	require.Equal(t, domain.AuditToolInvocation, entry.Kind)
	require.Equal(t, 7, entry.ActorPID)
	require.NotEmpty(t, entry.ResultHash)

	rows, err := st.GetAllAuditEntries()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	args := rows[0].SanitizedArgs.(map[string]any)
	require.Equal(t, redactedPlaceholder, args["password"])
	require.Equal(t, "ls -la", args["cmd"])
}

func TestFindFiltersByPIDAndKind(t *testing.T) {
	st := store.NewMemStore()
	a := New(24*time.Hour, nil, st, nil)

	a.LogToolInvocation(1, "agent_1", "shell.exec", "", nil, nil)
	a.LogAdminAction("root", "quota.set", "pid:2", map[string]any{"maxSteps": 10})
	a.LogToolInvocation(1, "agent_1", "fs.write", "", nil, nil)

	rows, err := a.Find(Query{PID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	admin, err := a.Find(Query{Kind: domain.AuditAdmin})
	require.NoError(t, err)
	require.Len(t, admin, 1)
	require.Equal(t, "quota.set", admin[0].Action)
}

func TestFindOrdersNewestFirst(t *testing.T) {
	st := store.NewMemStore()
	a := New(24*time.Hour, nil, st, nil)

	a.LogAdminAction("root", "first", "", nil)
	time.Sleep(2 * time.Millisecond)
	a.LogAdminAction("root", "second", "", nil)

	rows, err := a.Find(Query{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "second", rows[0].Action)
	require.Equal(t, "first", rows[1].Action)
}

func TestBusWiringTranslatesProcessSpawnedToAuditRow(t *testing.T) {
	b := bus.New(nil)
	st := store.NewMemStore()
	_ = New(24*time.Hour, b, st, nil)

	b.Publish("process.spawned", map[string]any{"pid": 3})

	require.Eventually(t, func() bool {
		rows, _ := st.GetAllAuditEntries()
		return len(rows) == 1
	}, time.Second, 5*time.Millisecond)

	rows, _ := st.GetAllAuditEntries()
	require.Equal(t, "agent.spawn", rows[0].Action)
	require.Equal(t, 3, rows[0].ActorPID)
}

func TestPruneRemovesEntriesOlderThanRetention(t *testing.T) {
	st := store.NewMemStore()
	a := New(time.Millisecond, nil, st, nil)

	a.LogAdminAction("root", "stale", "", nil)
	time.Sleep(10 * time.Millisecond)

	n, err := a.Prune()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, _ := st.GetAllAuditEntries()
	require.Empty(t, rows)
}
