package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/irgordon/karidc/api/internal/adapters/document"
	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/services"
)

// ==============================================================================
// 1. The Handler Struct (Dependency Injection)
// ==============================================================================

// ModelHandler serves the domain and host documents.
type ModelHandler struct {
	Controller *services.Controller
	Builder    document.Builder
}

func NewModelHandler(c *services.Controller, b document.Builder) *ModelHandler {
	return &ModelHandler{Controller: c, Builder: b}
}

// ==============================================================================
// 2. Domain
// ==============================================================================

// GetDomain handles GET /api/v1/domain
func (h *ModelHandler) GetDomain(w http.ResponseWriter, r *http.Request) {
	d, version := h.Controller.Domain()
	format := responseFormat(r)
	body, err := document.MarshalDomain(d, format)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeDocument(w, format, version, body)
}

// PutDomain handles PUT /api/v1/domain. The body replaces the whole domain;
// only the difference is applied.
func (h *ModelHandler) PutDomain(w http.ResponseWriter, r *http.Request) {
	target, err := h.readDomain(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	result, err := h.Controller.Reconcile(r.Context(), target, "api")
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PlanDomain handles POST /api/v1/domain/plan
func (h *ModelHandler) PlanDomain(w http.ResponseWriter, r *http.Request) {
	target, err := h.readDomain(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	plan, err := h.Controller.PlanReconcile(target)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Fingerprint handles GET /api/v1/domain/fingerprint
func (h *ModelHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	_, version := h.Controller.Domain()
	writeJSON(w, http.StatusOK, map[string]any{
		"fingerprint": strconv.FormatUint(h.Controller.DomainFingerprint(), 16),
		"version":     version,
	})
}

// ==============================================================================
// 3. Hosts
// ==============================================================================

// ListHosts handles GET /api/v1/hosts
func (h *ModelHandler) ListHosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Controller.HostNames())
}

// GetHost handles GET /api/v1/hosts/{host}
func (h *ModelHandler) GetHost(w http.ResponseWriter, r *http.Request) {
	host, version, err := h.Controller.Host(chi.URLParam(r, "host"))
	if err != nil {
		HandleError(w, r, err)
		return
	}
	format := responseFormat(r)
	body, err := document.MarshalHost(host, format)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeDocument(w, format, version, body)
}

// PutHost handles PUT /api/v1/hosts/{host}
func (h *ModelHandler) PutHost(w http.ResponseWriter, r *http.Request) {
	data, format, err := readDocument(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	target, err := h.Builder.ParseHost(data, format)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	// 🛡️ The URL names the host; the document cannot redirect the write
	if name := chi.URLParam(r, "host"); target.Name() != name {
		HandleError(w, r, domain.UpdateFailed("document names host %q, not %q", target.Name(), name))
		return
	}
	result, err := h.Controller.ReconcileHost(r.Context(), target, "api")
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ==============================================================================
// 4. Helpers
// ==============================================================================

func (h *ModelHandler) readDomain(r *http.Request) (*domain.Domain, error) {
	data, format, err := readDocument(r)
	if err != nil {
		return nil, err
	}
	return h.Builder.ParseDomain(data, format)
}

// readDocument reads the request body. The format comes from ?format= or
// the Content-Type, and defaults to JSON.
func readDocument(r *http.Request) ([]byte, document.Format, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	format := document.JSON
	if f := r.URL.Query().Get("format"); f != "" {
		format, err = parseFormat(f)
		if err != nil {
			return nil, "", err
		}
	} else if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = document.YAML
	}
	return data, format, nil
}

func parseFormat(f string) (document.Format, error) {
	switch document.Format(f) {
	case document.YAML, document.JSON, document.JSONC:
		return document.Format(f), nil
	}
	return "", domain.UpdateFailed("unknown document format %q", f)
}

func responseFormat(r *http.Request) document.Format {
	if r.URL.Query().Get("format") == string(document.YAML) ||
		strings.Contains(r.Header.Get("Accept"), "yaml") {
		return document.YAML
	}
	return document.JSON
}

func writeDocument(w http.ResponseWriter, format document.Format, version int, body []byte) {
	if format == document.YAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("ETag", fmt.Sprintf(`"%d"`, version))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
