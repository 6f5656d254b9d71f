package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/procmgr"
)

func (a *api) mountAgents(r *mux.Router) {
	if a.svc.Procs == nil {
		return
	}
	r.HandleFunc("/agents", a.listAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents", a.spawnAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents/{uid}", a.getAgent).Methods(http.MethodGet)
	r.HandleFunc("/agents/{uid}", a.deleteAgent).Methods(http.MethodDelete)
	r.HandleFunc("/agents/{uid}/message", a.messageAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents/{uid}/timeline", a.agentTimeline).Methods(http.MethodGet)
	r.HandleFunc("/agents/{uid}/memory", a.agentMemory).Methods(http.MethodGet)
	r.HandleFunc("/agents/{uid}/plan", a.agentPlan).Methods(http.MethodGet)
	r.HandleFunc("/agents/{uid}/profile", a.agentProfile).Methods(http.MethodGet)
}

// pidFromPath parses the {uid} path variable as a kernel PID. Agent
// identity in this kernel is its PID; "uid" in the route name refers to
// the unique agent identifier, not the owner.
func pidFromPath(r *http.Request) (int, bool) {
	raw := pathVar(r, "uid")
	pid, err := strconv.Atoi(raw)
	return pid, err == nil
}

func (a *api) listAgents(w http.ResponseWriter, r *http.Request) {
	rows := a.svc.Procs.List()
	limit := queryInt(r, "limit", len(rows))
	offset := queryInt(r, "offset", 0)
	total := len(rows)
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	writeList(w, rows, total, limit, offset)
}

type spawnRequest struct {
	OwnerUID string             `json:"ownerUid"`
	Config   domain.SpawnConfig `json:"config"`
}

func (a *api) spawnAgent(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	pid, err := a.svc.Procs.Spawn(req.OwnerUID, req.Config)
	switch {
	case err == nil:
		writeData(w, http.StatusCreated, map[string]any{"pid": pid})
	case errors.Is(err, procmgr.ErrQueued):
		writeJSON(w, http.StatusAccepted, errorEnvelope{Error: errorBody{Code: CodeQueued, Message: err.Error()}})
	case errors.Is(err, procmgr.ErrInvalidPriority), errors.Is(err, procmgr.ErrTableFull):
		writeInvalid(w, err.Error())
	default:
		writeExecutionError(w, err.Error())
	}
}

func (a *api) getAgent(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidFromPath(r)
	if !ok {
		writeInvalid(w, "uid must be a numeric pid")
		return
	}
	proc, found := a.svc.Procs.Get(pid)
	if !found {
		writeNotFound(w, "agent not found")
		return
	}
	writeData(w, http.StatusOK, proc)
}

func (a *api) deleteAgent(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidFromPath(r)
	if !ok {
		writeInvalid(w, "uid must be a numeric pid")
		return
	}
	if _, found := a.svc.Procs.Get(pid); !found {
		writeNotFound(w, "agent not found")
		return
	}
	if err := a.svc.Procs.Signal(pid, procmgr.SIGTERM); err != nil {
		writeExecutionError(w, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"pid": pid, "signaled": "SIGTERM"})
}

type messageRequest struct {
	FromPID int    `json:"fromPid"`
	FromUID string `json:"fromUid"`
	ToUID   string `json:"toUid"`
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

func (a *api) messageAgent(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidFromPath(r)
	if !ok {
		writeInvalid(w, "uid must be a numeric pid")
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalid(w, "malformed request body")
		return
	}
	if err := a.svc.Procs.SendMessage(req.FromPID, pid, req.FromUID, req.ToUID, req.Channel, req.Payload); err != nil {
		if errors.Is(err, procmgr.ErrDeadEnd) {
			writeInvalid(w, err.Error())
			return
		}
		writeExecutionError(w, err.Error())
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{"delivered": true})
}

// agentTimeline surfaces pending IPC messages as a simple activity feed;
// the kernel doesn't keep a separate timeline store, so this reuses the
// mailbox's non-consuming peek.
func (a *api) agentTimeline(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidFromPath(r)
	if !ok {
		writeInvalid(w, "uid must be a numeric pid")
		return
	}
	writeData(w, http.StatusOK, a.svc.Procs.Peek(pid))
}

// agentMemory, agentPlan and agentProfile are named in the route surface
// but have no backing store in this kernel (no conversational memory or
// planning module is in scope); they report an empty object rather than
// 404 so clients can treat "no data yet" uniformly.
func (a *api) agentMemory(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{})
}

func (a *api) agentPlan(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{})
}

func (a *api) agentProfile(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidFromPath(r)
	if !ok {
		writeInvalid(w, "uid must be a numeric pid")
		return
	}
	proc, found := a.svc.Procs.Get(pid)
	if !found {
		writeNotFound(w, "agent not found")
		return
	}
	usage := map[string]any{}
	if a.svc.Governor != nil {
		if u, ok := a.svc.Governor.Usage(pid); ok {
			usage = map[string]any{
				"inputTokens":  u.InputTokens,
				"outputTokens": u.OutputTokens,
				"steps":        u.Steps,
				"costUsd":      u.EstimatedCostUSD,
			}
		}
	}
	writeData(w, http.StatusOK, map[string]any{
		"ownerUid": proc.OwnerUID,
		"role":     proc.Config.Role,
		"runtime":  proc.Config.Runtime,
		"usage":    usage,
	})
}
