// Package httpapi exposes the kernel's REST surface over gorilla/mux:
// agents (processes), the virtual filesystem, system status/metrics, the
// SSE event stream, cron/triggers, webhooks and their DLQ, and inbound
// webhook dispatch.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/audit"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/governor"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/metrics"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/procmgr"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/scheduler"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/skill"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/vfs"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/webhook"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/wsfanout"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// Services bundles every kernel manager the API surface calls into. A nil
// field disables the route groups that depend on it instead of panicking.
type Services struct {
	Procs     *procmgr.Manager
	Governor  *governor.Governor
	Skills    *skill.Registry
	Scheduler *scheduler.Scheduler
	Webhooks  *webhook.Engine
	Audit     *audit.Log
	VFS       *vfs.FS
	Bus       *bus.Bus
	WS        *wsfanout.Hub
	Metrics   *metrics.Metrics
	Store     store.Store

	Tokens     []string
	StartedAt  time.Time
	BuildVersion string
}

type api struct {
	svc Services
	log *logger.Logger
}

// NewRouter builds the kernel's HTTP handler, wired to svc.
func NewRouter(svc Services, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if svc.StartedAt.IsZero() {
		svc.StartedAt = time.Now()
	}
	a := &api{svc: svc, log: log}

	r := mux.NewRouter()
	r.Use(withCORS)
	r.Use(withMetrics(svc.Metrics))
	r.Use(withAuditLog(svc.Audit))
	r.Use(withAuth(svc.Tokens))

	a.mountAgents(r)
	a.mountFS(r)
	a.mountSystem(r)
	a.mountCron(r)
	a.mountTriggers(r)
	a.mountWebhooks(r)
	a.mountSkills(r)
	a.mountMisc(r)

	if svc.Metrics != nil {
		r.Handle("/system/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	if svc.WS != nil {
		r.HandleFunc("/ws", svc.WS.ServeHTTP)
	}

	return r
}

func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n := 0
	neg := false
	for i, c := range raw {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
