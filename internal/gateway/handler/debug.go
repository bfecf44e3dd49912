package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"adflow/internal/gateway/service/project"
)

// DebugHandler serves plain JSON views that are handy from curl.
type DebugHandler struct {
	svc *project.Service
	log *zap.Logger
}

func NewDebugHandler(svc *project.Service, log *zap.Logger) *DebugHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DebugHandler{svc: svc, log: log}
}

// HandleRoot describes the service.
func (h *DebugHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "adflow",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *DebugHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleProjectStatus returns the status view of ?project_id=.
func (h *DebugHandler) HandleProjectStatus(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		http.Error(w, "project_id is required", http.StatusBadRequest)
		return
	}
	st, err := h.svc.GetStatus(r.Context(), projectID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleArtifacts lists every stored version for ?project_id=.
func (h *DebugHandler) HandleArtifacts(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		http.Error(w, "project_id is required", http.StatusBadRequest)
		return
	}
	list, err := h.svc.ListArtifacts(r.Context(), projectID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"artifacts":  list,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
