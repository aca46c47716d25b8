package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/evalstore"
)

// EvaluationsHandler serves stored evaluation records.
type EvaluationsHandler struct {
	store  *evalstore.Store
	logger *zap.Logger
}

// NewEvaluationsHandler creates a new handler.
func NewEvaluationsHandler(store *evalstore.Store, logger *zap.Logger) *EvaluationsHandler {
	return &EvaluationsHandler{store: store, logger: logger}
}

// RegisterRoutes registers evaluation routes on the provided mux.
func (h *EvaluationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/evaluations", h.handleList)
	mux.HandleFunc("/evaluations/", h.handleGet)
}

func (h *EvaluationsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ids, err := h.store.List(limit)
	if err != nil {
		h.logger.Error("Listing evaluations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing evaluations failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"evaluations": ids})
}

func (h *EvaluationsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/evaluations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid evaluation id")
		return
	}

	rec, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, evalstore.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "evaluation not found")
			return
		}
		h.logger.Error("Reading evaluation failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reading evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
