package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
)

func (a *api) mountTriggers(r *mux.Router) {
	if a.svc.Scheduler == nil {
		return
	}
	r.HandleFunc("/triggers", a.listTriggers).Methods(http.MethodGet)
	r.HandleFunc("/triggers", a.createTrigger).Methods(http.MethodPost)
	r.HandleFunc("/triggers/{id}", a.deleteTrigger).Methods(http.MethodDelete)
}

func (a *api) listTriggers(w http.ResponseWriter, r *http.Request) {
	triggers := a.svc.Scheduler.ListTriggers()
	writeList(w, triggers, len(triggers), len(triggers), 0)
}

type createTriggerRequest struct {
	Name       string             `json:"name"`
	Pattern    string             `json:"pattern"`
	Filter     map[string]any     `json:"filter"`
	Config     domain.SpawnConfig `json:"config"`
	CooldownMs int64              `json:"cooldownMs"`
}

func (a *api) createTrigger(w http.ResponseWriter, r *http.Request) {
	var req createTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	trigger, err := a.svc.Scheduler.RegisterTrigger(req.Name, req.Pattern, req.Filter, req.Config, req.CooldownMs)
	if err != nil {
		writeInvalid(w, err.Error())
		return
	}
	writeData(w, http.StatusCreated, trigger)
}

func (a *api) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Scheduler.DeleteTrigger(id); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
