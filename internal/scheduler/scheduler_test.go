package scheduler

import (
	"testing"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/stretchr/testify/require"
)

func TestCronFiringAdvancesNextRunAndIncrementsCount(t *testing.T) {
	b := bus.New(nil)
	var firedPID int
	var fired bool
	b.SubscribeFunc("cron.fired", func(e bus.Event) {
		fired = true
		firedPID = e.Payload.(map[string]any)["pid"].(int)
	})

	spawnCalls := 0
	spawn := func(ownerUID string, cfg domain.SpawnConfig) (int, error) {
		spawnCalls++
		return 42, nil
	}

	st := store.NewMemStore()
	s := New(time.Hour, spawn, b, st, nil)

	job, err := s.CreateJob("every-minute", "* * * * *", "agent_1", domain.SpawnConfig{Priority: 3}, true)
	require.NoError(t, err)

	s.mu.Lock()
	j := s.jobs[job.ID]
	j.NextRun = time.Now().Add(-time.Second)
	s.jobs[job.ID] = j
	s.mu.Unlock()

	s.Tick()

	require.True(t, fired)
	require.Equal(t, 42, firedPID)
	require.Equal(t, 1, spawnCalls)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	require.Equal(t, int64(1), jobs[0].FireCount)
	require.True(t, jobs[0].NextRun.After(time.Now()))
}

func TestInvalidCronExpressionRejected(t *testing.T) {
	s := New(time.Hour, nil, bus.New(nil), store.NewMemStore(), nil)
	_, err := s.CreateJob("bad", "not a cron", "agent_1", domain.SpawnConfig{}, true)
	require.ErrorIs(t, err, ErrInvalidCron)
}

func TestDuplicateTriggerRegistrationReplaces(t *testing.T) {
	s := New(time.Hour, nil, bus.New(nil), store.NewMemStore(), nil)
	first, err := s.RegisterTrigger("on-spawn", "process.*", nil, domain.SpawnConfig{Priority: 2}, 0)
	require.NoError(t, err)

	second, err := s.RegisterTrigger("on-spawn", "process.*", nil, domain.SpawnConfig{Priority: 5}, 0)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, s.ListTriggers(), 1)
	require.Equal(t, 5, s.ListTriggers()[0].Config.Priority)
}

func TestTriggerFiresOnMatchingWildcardEvent(t *testing.T) {
	b := bus.New(nil)
	spawned := false
	spawn := func(ownerUID string, cfg domain.SpawnConfig) (int, error) {
		spawned = true
		return 7, nil
	}
	s := New(time.Hour, spawn, b, store.NewMemStore(), nil)
	_, err := s.RegisterTrigger("on-exit", "process.*", nil, domain.SpawnConfig{}, 0)
	require.NoError(t, err)

	b.Publish("process.exit", map[string]any{"pid": 1})

	require.Eventually(t, func() bool { return spawned }, time.Second, 5*time.Millisecond)
}

func TestTriggerHonoursCooldown(t *testing.T) {
	b := bus.New(nil)
	spawnCount := 0
	spawn := func(ownerUID string, cfg domain.SpawnConfig) (int, error) {
		spawnCount++
		return 1, nil
	}
	s := New(time.Hour, spawn, b, store.NewMemStore(), nil)
	_, err := s.RegisterTrigger("frequent", "ping", nil, domain.SpawnConfig{}, 10000)
	require.NoError(t, err)

	b.Publish("ping", nil)
	b.Publish("ping", nil)

	require.Eventually(t, func() bool { return spawnCount == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, spawnCount)
}
