package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/skill"
)

// mountSkills is not part of the canonical route table but gives the skill
// executor an HTTP surface alongside the in-process callers (cron jobs and
// triggers both reference skills by id).
func (a *api) mountSkills(r *mux.Router) {
	if a.svc.Skills == nil {
		return
	}
	r.HandleFunc("/skills", a.listSkills).Methods(http.MethodGet)
	r.HandleFunc("/skills", a.registerSkill).Methods(http.MethodPost)
	r.HandleFunc("/skills/{id}", a.deleteSkill).Methods(http.MethodDelete)
	r.HandleFunc("/skills/{id}/execute", a.executeSkill).Methods(http.MethodPost)
}

func (a *api) listSkills(w http.ResponseWriter, r *http.Request) {
	defs := a.svc.Skills.List()
	writeList(w, defs, len(defs), len(defs), 0)
}

func (a *api) registerSkill(w http.ResponseWriter, r *http.Request) {
	var def skill.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	if err := a.svc.Skills.Register(def); err != nil {
		writeInvalid(w, err.Error())
		return
	}
	writeData(w, http.StatusCreated, def)
}

func (a *api) deleteSkill(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := a.svc.Skills.Delete(id); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (a *api) executeSkill(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	var inputs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	result, err := a.svc.Skills.Execute(r.Context(), id, inputs)
	if err != nil {
		if errors.Is(err, skill.ErrNotFound) {
			writeNotFound(w, err.Error())
			return
		}
		writeInvalid(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, result)
}
