package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/scheduler"
)

func (a *api) mountCron(r *mux.Router) {
	if a.svc.Scheduler == nil {
		return
	}
	r.HandleFunc("/cron", a.listCron).Methods(http.MethodGet)
	r.HandleFunc("/cron", a.createCron).Methods(http.MethodPost)
	r.HandleFunc("/cron/{id}", a.deleteCron).Methods(http.MethodDelete)
	r.HandleFunc("/cron/{id}", a.patchCron).Methods(http.MethodPatch)
}

func (a *api) listCron(w http.ResponseWriter, r *http.Request) {
	jobs := a.svc.Scheduler.ListJobs()
	writeList(w, jobs, len(jobs), len(jobs), 0)
}

type createCronRequest struct {
	Name       string             `json:"name"`
	Expression string             `json:"expression"`
	OwnerUID   string             `json:"ownerUid"`
	Config     domain.SpawnConfig `json:"config"`
	Enabled    bool               `json:"enabled"`
}

func (a *api) createCron(w http.ResponseWriter, r *http.Request) {
	var req createCronRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	job, err := a.svc.Scheduler.CreateJob(req.Name, req.Expression, req.OwnerUID, req.Config, req.Enabled)
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidCron) {
			writeInvalid(w, err.Error())
			return
		}
		writeExecutionError(w, err.Error())
		return
	}
	writeData(w, http.StatusCreated, job)
}

func (a *api) deleteCron(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Scheduler.DeleteJob(id); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

type patchCronRequest struct {
	Enabled *bool `json:"enabled"`
}

func (a *api) patchCron(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	var req patchCronRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	if req.Enabled == nil {
		writeInvalid(w, "enabled field is required")
		return
	}
	var err error
	if *req.Enabled {
		err = a.svc.Scheduler.EnableJob(id)
	} else {
		err = a.svc.Scheduler.DisableJob(id)
	}
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "enabled": *req.Enabled})
}
