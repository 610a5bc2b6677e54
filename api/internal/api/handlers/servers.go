package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irgordon/karidc/api/internal/adapters/document"
	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/services"
)

// ServerHandler exposes composed models and the server lifecycle.
type ServerHandler struct {
	Controller *services.Controller
}

func NewServerHandler(c *services.Controller) *ServerHandler {
	return &ServerHandler{Controller: c}
}

func serverRef(r *http.Request) services.ServerRef {
	return services.ServerRef{Host: chi.URLParam(r, "host"), Server: chi.URLParam(r, "server")}
}

// List handles GET /api/v1/hosts/{host}/servers
func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	status, err := h.Controller.Status(chi.URLParam(r, "host"))
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Model handles GET /api/v1/hosts/{host}/servers/{server}/model.
// ?source=running returns what a booted server runs instead of what it should run.
func (h *ServerHandler) Model(w http.ResponseWriter, r *http.Request) {
	ref := serverRef(r)
	var (
		m   *domain.ServerModel
		err error
	)
	source := r.URL.Query().Get("source")
	switch source {
	case "", "declared":
		source = "declared"
		m, err = h.Controller.FlattenServer(ref.Host, ref.Server)
	case "running":
		m, err = h.Controller.RunningModel(ref)
	default:
		err = domain.UpdateFailed("unknown model source %q", source)
	}
	if err != nil {
		HandleError(w, r, err)
		return
	}
	w.Header().Set("X-Model-Source", source)
	writeJSON(w, http.StatusOK, document.FromServerModel(m))
}

// Boot handles POST /api/v1/hosts/{host}/servers/{server}/boot
func (h *ServerHandler) Boot(w http.ResponseWriter, r *http.Request) {
	report, err := h.Controller.BootServer(r.Context(), serverRef(r))
	if err != nil {
		if report != nil {
			// The batch ran and rolled back; the report says why
			writeJSON(w, http.StatusUnprocessableEntity, report)
			return
		}
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Stop handles POST /api/v1/hosts/{host}/servers/{server}/stop
func (h *ServerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.StopServer(r.Context(), serverRef(r)); err != nil {
		HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
