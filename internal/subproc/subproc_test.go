package subproc

import (
	"testing"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestStartCapturesOutputAndExit(t *testing.T) {
	b := bus.New(nil)
	var exited bool
	b.SubscribeFunc("subprocess.exited", func(e bus.Event) { exited = true })

	s := New(1024, b, nil)
	info, err := s.Start(1, domain.RuntimeBuiltIn, t.TempDir(), "sh", []string{"-c", "echo hello; echo world 1>&2"}, nil)
	require.NoError(t, err)
	require.Greater(t, info.OSPID, 0)

	require.Eventually(t, func() bool {
		stdout, stderr, ok := s.GetOutput(1)
		return ok && stdout != "" && stderr != ""
	}, 2*time.Second, 10*time.Millisecond)

	stdout, stderr, _ := s.GetOutput(1)
	require.Contains(t, stdout, "hello")
	require.Contains(t, stderr, "world")

	require.Eventually(t, func() bool { return exited }, 2*time.Second, 10*time.Millisecond)
}

func TestStopOnAlreadyExitedProcessIsNotAnError(t *testing.T) {
	s := New(1024, bus.New(nil), nil)
	info, err := s.Start(2, domain.RuntimeBuiltIn, t.TempDir(), "sh", []string{"-c", "exit 0"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, ok := s.GetOutput(2)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(2))
	_ = info
}
