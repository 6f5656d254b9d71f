package governor

import (
	"testing"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/stretchr/testify/require"
)

func defaults() Defaults {
	return Defaults{MaxTokensPerSession: 500000, MaxTokensPerDay: 2000000, MaxSteps: 200, MaxWallClockMs: 3600000}
}

func TestQuotaPreemptionOnSessionTokenOverrun(t *testing.T) {
	var signaledPID int
	var signaledSig string
	signaler := SignalFunc(func(pid int, sig string) error {
		signaledPID = pid
		signaledSig = sig
		return nil
	})

	var exceededReason string
	b := bus.New(nil)
	b.SubscribeFunc("resource.exceeded", func(e bus.Event) {
		exceededReason = e.Payload.(map[string]any)["reason"].(string)
	})

	g := New(defaults(), b, store.NewMemStore(), signaler, nil)
	g.SetQuota(1, domain.Quota{MaxTokensPerSession: 1000})

	g.RecordTokenUsage(1, "anthropic", 800, 400)

	require.Equal(t, "Session token limit exceeded", exceededReason)
	require.Equal(t, 1, signaledPID)
	require.Equal(t, "SIGTERM", signaledSig)

	allowed, reason := g.CheckQuota(1)
	require.False(t, allowed)
	require.Equal(t, "Session token limit exceeded", reason)
}

func TestUnsetQuotaFieldsInheritDefaults(t *testing.T) {
	g := New(defaults(), bus.New(nil), store.NewMemStore(), nil, nil)
	g.SetQuota(2, domain.Quota{MaxSteps: 2})

	g.RecordTokenUsage(2, "openai", 10, 10)
	allowed, _ := g.CheckQuota(2)
	require.True(t, allowed)

	g.RecordTokenUsage(2, "openai", 10, 10)
	g.RecordTokenUsage(2, "openai", 10, 10)
	allowed, reason := g.CheckQuota(2)
	require.False(t, allowed)
	require.Equal(t, "Step limit exceeded", reason)
}

func TestCostAccumulatesPerProvider(t *testing.T) {
	g := New(defaults(), bus.New(nil), store.NewMemStore(), nil, nil)
	u := g.RecordTokenUsage(3, "anthropic", 1_000_000, 1_000_000)
	require.InDelta(t, 18.0, u.EstimatedCostUSD, 0.0001)
}

func TestRunawayDetectionIndependentOfEnforcement(t *testing.T) {
	g := New(Defaults{MaxTokensPerSession: 1000, MaxSteps: 200, MaxWallClockMs: 3600000}, bus.New(nil), store.NewMemStore(), nil, nil)
	g.RecordTokenUsage(4, "anthropic", 1100, 200)
	require.True(t, g.IsRunaway(4))
}
