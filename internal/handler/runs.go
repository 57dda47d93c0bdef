package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agreemo/dashboard/backend/internal/model"
)

type runLister interface {
	ListRecent(ctx context.Context, domain string, limit int) ([]model.PollRun, error)
}

type RunHandler struct {
	repo    runLister
	domains map[string]bool
}

// NewRunHandler serves poll history. A nil repo means persistence is
// disabled and every request answers 503.
func NewRunHandler(repo runLister, domains []string) *RunHandler {
	known := make(map[string]bool, len(domains))
	for _, d := range domains {
		known[d] = true
	}
	return &RunHandler{repo: repo, domains: known}
}

func (h *RunHandler) RegisterRoutes(r chi.Router) {
	r.Get("/domains/{name}/runs", h.List)
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "poll history is disabled")
		return
	}

	name := chi.URLParam(r, "name")
	if !h.domains[name] {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 500)
	}

	runs, err := h.repo.ListRecent(r.Context(), name, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list poll runs")
		return
	}
	if runs == nil {
		runs = []model.PollRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
