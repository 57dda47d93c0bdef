package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agreemo/dashboard/backend/internal/model"
	"github.com/agreemo/dashboard/backend/internal/service/broadcaster"
)

type broadcasterService interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	Status() []model.DomainStatus
	PollDomain(ctx context.Context, name string) error
	Snapshot(name string) (model.Event, bool, error)
}

type subscriberCounter interface {
	Count() int
}

type BroadcasterHandler struct {
	svc  broadcasterService
	subs subscriberCounter
}

func NewBroadcasterHandler(svc broadcasterService, subs subscriberCounter) *BroadcasterHandler {
	return &BroadcasterHandler{svc: svc, subs: subs}
}

func (h *BroadcasterHandler) RegisterRoutes(r chi.Router) {
	r.Get("/broadcaster/status", h.Status)
	r.Post("/broadcaster/start", h.Start)
	r.Post("/broadcaster/stop", h.Stop)
	r.Post("/domains/{name}/poll", h.Poll)
	r.Get("/domains/{name}/snapshot", h.Snapshot)
}

func (h *BroadcasterHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":     h.svc.IsRunning(),
		"subscribers": h.subs.Count(),
		"domains":     h.svc.Status(),
	})
}

func (h *BroadcasterHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Start(r.Context()); err != nil {
		if errors.Is(err, broadcaster.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "broadcaster is already running")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to start broadcaster")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Broadcaster started"})
}

func (h *BroadcasterHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Stop(); err != nil {
		if errors.Is(err, broadcaster.ErrNotRunning) {
			writeError(w, http.StatusConflict, "broadcaster is not running")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop broadcaster")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Broadcaster stopped"})
}

// Poll runs one cycle for a domain. Cooldown and in-flight guards still
// apply, so the call may not reach the upstream.
func (h *BroadcasterHandler) Poll(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.PollDomain(r.Context(), name); err != nil {
		if errors.Is(err, broadcaster.ErrUnknownDomain) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to poll domain")
		return
	}

	for _, st := range h.svc.Status() {
		if st.Name == name {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, http.StatusNotFound, "domain not found")
}

func (h *BroadcasterHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	evt, ok, err := h.svc.Snapshot(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, broadcaster.ErrUnknownDomain) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}
