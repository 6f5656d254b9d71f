package procmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/stretchr/testify/require"
)

func cfg(priority int) domain.SpawnConfig {
	return domain.SpawnConfig{Role: "worker", Goal: "test", Runtime: domain.RuntimeBuiltIn, Priority: priority, MaxSteps: 10}
}

func TestAdmissionControlQueuesAndAdmitsOnReap(t *testing.T) {
	b := bus.New(nil)
	m := New(Config{MaxConcurrent: 2, ReapDelay: 10 * time.Millisecond}, b, store.NewMemStore(), nil)

	pid1, err := m.Spawn("agent_1", cfg(3))
	require.NoError(t, err)
	_, err = m.Spawn("agent_2", cfg(3))
	require.NoError(t, err)

	_, err = m.Spawn("agent_3", cfg(3))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrQueued))
	require.Equal(t, 1, m.QueueLength())

	require.NoError(t, m.Signal(pid1, SIGTERM))

	require.Eventually(t, func() bool {
		return m.QueueLength() == 0
	}, time.Second, 5*time.Millisecond)

	rows := m.List()
	require.Len(t, rows, 3)
}

func TestPIDsUnique(t *testing.T) {
	m := New(Config{MaxConcurrent: 10}, bus.New(nil), store.NewMemStore(), nil)
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		pid, err := m.Spawn("agent", cfg(3))
		require.NoError(t, err)
		require.False(t, seen[pid])
		seen[pid] = true
	}
}

func TestInvalidPriorityRejected(t *testing.T) {
	m := New(Config{}, bus.New(nil), store.NewMemStore(), nil)
	_, err := m.Spawn("agent", cfg(0))
	require.ErrorIs(t, err, ErrInvalidPriority)
}

func TestMailboxFIFOAndDrainIsAtomic(t *testing.T) {
	m := New(Config{MaxConcurrent: 5}, bus.New(nil), store.NewMemStore(), nil)
	pid1, _ := m.Spawn("agent_1", cfg(3))
	pid2, _ := m.Spawn("agent_2", cfg(3))

	require.NoError(t, m.SendMessage(pid1, pid2, "agent_1", "agent_2", "chat", "hello"))
	require.NoError(t, m.SendMessage(pid1, pid2, "agent_1", "agent_2", "chat", "world"))

	peeked := m.Peek(pid2)
	require.Len(t, peeked, 2)
	require.False(t, peeked[0].Delivered)

	drained := m.Drain(pid2)
	require.Len(t, drained, 2)
	require.Equal(t, "hello", drained[0].Payload)
	require.True(t, drained[0].Delivered)

	require.Empty(t, m.Peek(pid2))
}

func TestSendMessageToDeadRecipientFails(t *testing.T) {
	m := New(Config{MaxConcurrent: 5, ReapDelay: time.Millisecond}, bus.New(nil), store.NewMemStore(), nil)
	pid1, _ := m.Spawn("agent_1", cfg(3))
	pid2, _ := m.Spawn("agent_2", cfg(3))

	require.NoError(t, m.Signal(pid2, SIGKILL))
	require.Eventually(t, func() bool {
		p, _ := m.Get(pid2)
		return p.State == domain.StateDead
	}, time.Second, 2*time.Millisecond)

	err := m.SendMessage(pid1, pid2, "agent_1", "agent_2", "chat", "hi")
	require.ErrorIs(t, err, ErrDeadEnd)
}

func TestShutdownTerminatesActiveProcesses(t *testing.T) {
	m := New(Config{MaxConcurrent: 5, ShutdownGrace: 20 * time.Millisecond}, bus.New(nil), store.NewMemStore(), nil)
	pid, _ := m.Spawn("agent_1", cfg(3))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)

	p, ok := m.Get(pid)
	require.True(t, ok)
	require.Equal(t, domain.StateZombie, p.State)
}
