package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
)

func (a *api) mountSystem(r *mux.Router) {
	r.HandleFunc("/system/status", a.systemStatus).Methods(http.MethodGet)
	r.HandleFunc("/openapi.json", a.openAPI).Methods(http.MethodGet)
	if a.svc.Bus != nil {
		r.HandleFunc("/events", a.eventStream).Methods(http.MethodGet)
	}
}

func (a *api) systemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "ok",
		"version":   a.svc.BuildVersion,
		"uptimeSec": int(time.Since(a.svc.StartedAt).Seconds()),
	}
	if a.svc.Procs != nil {
		status["processes"] = len(a.svc.Procs.List())
		status["queueLength"] = a.svc.Procs.QueueLength()
	}
	if a.svc.Scheduler != nil {
		status["cronJobs"] = len(a.svc.Scheduler.ListJobs())
		status["triggers"] = len(a.svc.Scheduler.ListTriggers())
	}
	if a.svc.Webhooks != nil {
		status["webhooks"] = len(a.svc.Webhooks.ListWebhooks())
		status["dlqDepth"] = len(a.svc.Webhooks.ListDLQ())
	}
	writeData(w, http.StatusOK, status)
}

// eventStream streams bus events to the client as server-sent events,
// optionally restricted to a comma-separated set of glob patterns passed
// as ?filter=.
func (a *api) eventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeExecutionError(w, "streaming unsupported")
		return
	}

	var patterns []string
	if raw := r.URL.Query().Get("filter"); raw != "" {
		patterns = strings.Split(raw, ",")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Aether-Version", apiVersion)
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected"}`)
	flusher.Flush()

	id, ch := a.svc.Bus.Subscribe("*")
	defer a.svc.Bus.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if !eventMatchesAny(patterns, evt) {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func eventMatchesAny(patterns []string, evt bus.Event) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchesSSEPattern(strings.TrimSpace(p), evt.Kind) {
			return true
		}
	}
	return false
}

func matchesSSEPattern(pattern, kind string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(kind, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == kind
}

// openAPI serves a minimal static document describing the route surface;
// it is not generated from the mux routes.
func (a *api) openAPI(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":   "Aether Agent Kernel API",
			"version": apiVersion,
		},
		"paths": map[string]any{
			"/agents":           map[string]any{"get": "list agents", "post": "spawn agent"},
			"/agents/{uid}":     map[string]any{"get": "get agent", "delete": "terminate agent"},
			"/fs/{path}":        map[string]any{"get": "read/list", "put": "write/mkdir", "delete": "remove"},
			"/cron":             map[string]any{"get": "list jobs", "post": "create job"},
			"/triggers":         map[string]any{"get": "list triggers", "post": "create trigger"},
			"/webhooks":         map[string]any{"get": "list webhooks", "post": "register webhook"},
			"/webhooks/dlq":     map[string]any{"get": "list dead-lettered deliveries"},
			"/events":           map[string]any{"get": "server-sent event stream"},
			"/ws":               map[string]any{"get": "websocket event fan-out"},
			"/system/status":    map[string]any{"get": "kernel status snapshot"},
			"/system/metrics":   map[string]any{"get": "Prometheus metrics"},
		},
	}
	writeData(w, http.StatusOK, doc)
}
