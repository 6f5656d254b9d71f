package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// mountMisc wires the route groups named in the kernel's state-store scope
// that have no dedicated manager in this build: templates, integrations,
// marketplace listings and organisations. Each reports an empty collection
// rather than 404ing so clients built against the full route surface don't
// need special-case handling for "not implemented here".
func (a *api) mountMisc(r *mux.Router) {
	r.HandleFunc("/templates", a.emptyList).Methods(http.MethodGet)
	r.HandleFunc("/templates/{id}", a.notFoundResource).Methods(http.MethodGet)
	r.HandleFunc("/integrations", a.emptyList).Methods(http.MethodGet)
	r.HandleFunc("/integrations", a.notImplemented).Methods(http.MethodPost)
	r.HandleFunc("/integrations/{id}/test", a.notImplemented).Methods(http.MethodPost)
	r.HandleFunc("/integrations/{id}/execute", a.notImplemented).Methods(http.MethodPost)
	r.HandleFunc("/marketplace/plugins", a.emptyList).Methods(http.MethodGet)
	r.HandleFunc("/marketplace/templates", a.emptyList).Methods(http.MethodGet)
	r.HandleFunc("/marketplace/plugins/{id}/rate", a.notImplemented).Methods(http.MethodPost)
	r.HandleFunc("/marketplace/templates/{id}/fork", a.notImplemented).Methods(http.MethodPost)
	r.HandleFunc("/orgs", a.emptyList).Methods(http.MethodGet)
	r.HandleFunc("/orgs", a.notImplemented).Methods(http.MethodPost)
	r.HandleFunc("/orgs/{id}/members", a.emptyList).Methods(http.MethodGet)
	r.HandleFunc("/orgs/{id}/teams", a.emptyList).Methods(http.MethodGet)
}

func (a *api) emptyList(w http.ResponseWriter, r *http.Request) {
	writeList(w, []any{}, 0, 0, 0)
}

func (a *api) notImplemented(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, CodeExecutionError, "not implemented in this kernel build")
}

func (a *api) notFoundResource(w http.ResponseWriter, r *http.Request) {
	writeNotFound(w, "no template registry configured")
}
