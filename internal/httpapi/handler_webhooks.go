package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
)

func (a *api) mountWebhooks(r *mux.Router) {
	if a.svc.Webhooks == nil {
		return
	}
	r.HandleFunc("/webhooks", a.listWebhooks).Methods(http.MethodGet)
	r.HandleFunc("/webhooks", a.createWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/{id}", a.deleteWebhook).Methods(http.MethodDelete)
	r.HandleFunc("/webhooks/{id}/enable", a.enableWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/{id}/disable", a.disableWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/{id}/logs", a.webhookLogs).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/inbound", a.createInboundWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/dlq", a.listDLQ).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/dlq/{id}/retry", a.retryDLQ).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/dlq/{id}", a.purgeDLQ).Methods(http.MethodDelete)
	r.HandleFunc("/hooks/{token}", a.handleInboundHook).Methods(http.MethodPost)
}

func (a *api) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks := a.svc.Webhooks.ListWebhooks()
	writeList(w, hooks, len(hooks), len(hooks), 0)
}

func (a *api) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req domain.OutboundWebhook
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	hook, err := a.svc.Webhooks.RegisterWebhook(req)
	if err != nil {
		writeInvalid(w, err.Error())
		return
	}
	writeData(w, http.StatusCreated, hook)
}

func (a *api) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Webhooks.DeleteWebhook(id); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (a *api) enableWebhook(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Webhooks.SetWebhookEnabled(id, true); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "enabled": true})
}

func (a *api) disableWebhook(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Webhooks.SetWebhookEnabled(id, false); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "enabled": false})
}

func (a *api) webhookLogs(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if a.svc.Store == nil {
		writeData(w, http.StatusOK, []any{})
		return
	}
	logs, err := a.svc.Store.GetAllWebhookLogs(id)
	if err != nil {
		writeExecutionError(w, err.Error())
		return
	}
	writeList(w, logs, len(logs), len(logs), 0)
}

func (a *api) createInboundWebhook(w http.ResponseWriter, r *http.Request) {
	var req domain.InboundWebhook
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	hook, err := a.svc.Webhooks.RegisterInbound(req)
	if err != nil {
		writeInvalid(w, err.Error())
		return
	}
	writeData(w, http.StatusCreated, hook)
}

func (a *api) listDLQ(w http.ResponseWriter, r *http.Request) {
	entries := a.svc.Webhooks.ListDLQ()
	writeList(w, entries, len(entries), len(entries), 0)
}

func (a *api) retryDLQ(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Webhooks.RetryDLQ(id); err != nil {
		writeExecutionError(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "retried": true})
}

func (a *api) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Webhooks.PurgeDLQ(id); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "purged": true})
}

func (a *api) handleInboundHook(w http.ResponseWriter, r *http.Request) {
	token := pathVar(r, "token")
	pid, ok := a.svc.Webhooks.HandleInbound(token)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{"pid": pid})
}
