// Package kernel wires every subsystem package into one running Aether
// Agent Kernel: event bus, state store, virtual filesystem, process
// manager, subprocess supervisor, resource governor, skill executor,
// scheduler, webhook engine, audit log and WebSocket fan-out.
package kernel

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/audit"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/config"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/governor"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/httpapi"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/metrics"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/procmgr"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/scheduler"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/skill"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/subproc"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/vfs"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/webhook"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/wsfanout"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// Kernel owns every wired subsystem and the HTTP handler that fronts them.
type Kernel struct {
	cfg *config.Config
	log *logger.Logger

	Bus       *bus.Bus
	Store     store.Store
	VFS       *vfs.FS
	Procs     *procmgr.Manager
	Subproc   *subproc.Supervisor
	Governor  *governor.Governor
	Skills    *skill.Registry
	Scheduler *scheduler.Scheduler
	Webhooks  *webhook.Engine
	Audit     *audit.Log
	WS        *wsfanout.Hub
	Metrics   *metrics.Metrics

	Handler http.Handler
}

// New constructs every subsystem and wires it to the kernel's shared bus
// and store, in the dependency order each package's New requires.
func New(cfg *config.Config, log *logger.Logger) (*Kernel, error) {
	if log == nil {
		log = logger.NewDefault("kernel")
	}

	st, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("kernel: open store: %w", err)
	}

	vroot, err := filepath.Abs(cfg.VFSRoot)
	if err != nil {
		return nil, fmt.Errorf("kernel: resolve vfs root: %w", err)
	}
	fs, err := vfs.New(vroot)
	if err != nil {
		return nil, fmt.Errorf("kernel: init vfs: %w", err)
	}

	b := bus.New(log)
	reg := metrics.New(prometheus.DefaultRegisterer)

	procs := procmgr.New(procmgr.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxProcesses:  cfg.MaxProcesses,
		MailboxCap:    cfg.MailboxCap,
		ReapDelay:     cfg.ReapDelay,
		ShutdownGrace: cfg.ShutdownGrace,
	}, b, st, log)

	sup := subproc.New(cfg.SubprocessBufferCap, b, log)

	gov := governor.New(governor.Defaults{
		MaxTokensPerSession: cfg.DefaultMaxTokensPerSession,
		MaxTokensPerDay:     cfg.DefaultMaxTokensPerDay,
		MaxSteps:            cfg.DefaultMaxSteps,
		MaxWallClockMs:      cfg.DefaultMaxWallClockMs,
	}, b, st, governor.SignalFunc(func(pid int, sig string) error {
		return procs.Signal(pid, procmgr.Signal(sig))
	}), log)

	skills := skill.New(st, log)

	spawn := func(ownerUID string, sc domain.SpawnConfig) (int, error) {
		return procs.Spawn(ownerUID, sc)
	}

	sched := scheduler.New(cfg.CronTickInterval, spawn, b, st, log)

	hooks := webhook.New(webhook.Config{
		RetryBase: cfg.WebhookRetryBase,
		RetryMax:  cfg.WebhookRetryMax,
		Timeout:   cfg.WebhookTimeout,
	}, spawn, b, st, log)

	auditLog := audit.New(cfg.AuditRetention, b, st, log)

	ws := wsfanout.New(wsfanout.Config{
		FlushInterval:   cfg.WSFlushInterval,
		BatchMaxSize:    cfg.WSBatchMaxSize,
		MaxQueuedEvents: cfg.WSMaxQueuedEvents,
		MaxBufferBytes:  cfg.WSMaxBufferBytes,
	}, b, log)

	k := &Kernel{
		cfg: cfg, log: log,
		Bus: b, Store: st, VFS: fs,
		Procs: procs, Subproc: sup, Governor: gov,
		Skills: skills, Scheduler: sched, Webhooks: hooks,
		Audit: auditLog, WS: ws, Metrics: reg,
	}
	k.wireSubprocessBridge()

	k.Handler = httpapi.NewRouter(httpapi.Services{
		Procs: procs, Governor: gov, Skills: skills, Scheduler: sched,
		Webhooks: hooks, Audit: auditLog, VFS: fs, Bus: b, WS: ws,
		Metrics: reg, Store: st,
		Tokens: cfg.APITokens, StartedAt: time.Now(), BuildVersion: "dev",
	}, log)

	return k, nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.Env == config.Testing {
		return store.NewMemStore(), nil
	}
	dir := filepath.Join(cfg.VFSRoot, "..", "state")
	return store.NewFileStore(dir)
}

// wireSubprocessBridge starts/stops the OS-level subprocess whenever the
// process manager transitions a non-built-in runtime into existence, and
// forwards termination back into the process table as a natural exit.
func (k *Kernel) wireSubprocessBridge() {
	k.Bus.SubscribeFunc("process.spawned", func(evt bus.Event) {
		payload, ok := evt.Payload.(map[string]any)
		if !ok {
			return
		}
		pid, _ := payload["pid"].(int)
		// process.spawned is published while the process manager holds its
		// lock, so the lookup and launch run on their own goroutine.
		go func() {
			proc, found := k.Procs.Get(pid)
			if !found || proc.Config.Runtime == domain.RuntimeBuiltIn {
				if found {
					k.Procs.MarkRunning(pid)
				}
				return
			}
			workDir := filepath.Join(k.cfg.VFSRoot, "home", proc.OwnerUID)
			command, args := runtimeCommand(proc.Config)
			if _, err := k.Subproc.Start(pid, proc.Config.Runtime, workDir, command, args, nil); err != nil {
				k.log.WithError(err).WithField("pid", pid).Error("subprocess launch failed")
				k.Procs.Exit(pid, 1)
				return
			}
			k.Procs.MarkRunning(pid)
		}()
	})

	k.Bus.SubscribeFunc("process.state", func(evt bus.Event) {
		payload, ok := evt.Payload.(map[string]any)
		if !ok {
			return
		}
		if state, _ := payload["state"].(string); state != "zombie" {
			return
		}
		pid, _ := payload["pid"].(int)
		_ = k.Subproc.Stop(pid)
	})

	k.Bus.SubscribeFunc("subprocess.exited", func(evt bus.Event) {
		payload, ok := evt.Payload.(map[string]any)
		if !ok {
			return
		}
		pid, _ := payload["pid"].(int)
		code, _ := payload["code"].(int)
		k.Procs.Exit(pid, code)
	})
}

// runtimeCommand maps a spawn configuration's runtime kind to the binary
// and arguments the subprocess supervisor launches. Binary names are
// resolved from PATH by os/exec.
func runtimeCommand(cfg domain.SpawnConfig) (string, []string) {
	switch cfg.Runtime {
	case domain.RuntimeClaudeCode:
		return "claude", []string{"--role", cfg.Role, "--goal", cfg.Goal}
	case domain.RuntimeOpenClaw:
		return "openclaw", []string{"--role", cfg.Role, "--goal", cfg.Goal}
	default:
		return "true", nil
	}
}

// Shutdown closes the WebSocket fan-out, sends SIGTERM to the OS process of
// every non-built-in runtime, then shuts the process manager down. The
// webhook engine, scheduler and event bus have no stop step: in-flight
// webhook deliveries are not awaited.
func (k *Kernel) Shutdown(ctx context.Context) {
	k.WS.Close()
	for _, p := range k.Procs.List() {
		if p.Config.Runtime != domain.RuntimeBuiltIn {
			_ = k.Subproc.Stop(p.PID)
		}
	}
	k.Procs.Shutdown(ctx)
}
