package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/vfs"
)

func (a *api) mountFS(r *mux.Router) {
	if a.svc.VFS == nil {
		return
	}
	r.HandleFunc("/fs/{path:.*}", a.fsGet).Methods(http.MethodGet)
	r.HandleFunc("/fs/{path:.*}", a.fsPut).Methods(http.MethodPut)
	r.HandleFunc("/fs/{path:.*}", a.fsDelete).Methods(http.MethodDelete)
}

func vfsErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, vfs.ErrAccessDenied):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, vfs.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	default:
		return http.StatusInternalServerError, CodeExecutionError
	}
}

func (a *api) fsGet(w http.ResponseWriter, r *http.Request) {
	virtual := "/" + pathVar(r, "path")
	if r.URL.Query().Get("list") == "true" {
		entries, err := a.svc.VFS.Ls(virtual)
		if err != nil {
			status, code := vfsErrorStatus(err)
			writeError(w, status, code, err.Error())
			return
		}
		writeData(w, http.StatusOK, entries)
		return
	}
	data, err := a.svc.VFS.ReadFileRaw(virtual)
	if err != nil {
		status, code := vfsErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Aether-Version", apiVersion)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *api) fsPut(w http.ResponseWriter, r *http.Request) {
	virtual := "/" + pathVar(r, "path")
	if r.URL.Query().Get("mkdir") == "true" {
		recursive := r.URL.Query().Get("recursive") == "true"
		if err := a.svc.VFS.Mkdir(virtual, recursive); err != nil {
			status, code := vfsErrorStatus(err)
			writeError(w, status, code, err.Error())
			return
		}
		writeData(w, http.StatusCreated, map[string]any{"path": virtual})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeInvalid(w, "could not read request body")
		return
	}
	if err := a.svc.VFS.WriteFile(virtual, body); err != nil {
		status, code := vfsErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"path": virtual, "bytes": len(body)})
}

func (a *api) fsDelete(w http.ResponseWriter, r *http.Request) {
	virtual := "/" + pathVar(r, "path")
	recursive := r.URL.Query().Get("recursive") == "true"
	if err := a.svc.VFS.Rm(virtual, recursive); err != nil {
		status, code := vfsErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"path": virtual, "removed": true})
}
