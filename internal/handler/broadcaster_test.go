package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/agreemo/dashboard/backend/internal/model"
	"github.com/agreemo/dashboard/backend/internal/service/broadcaster"
)

type mockBroadcasterService struct {
	startFn    func(ctx context.Context) error
	stopFn     func() error
	running    bool
	statuses   []model.DomainStatus
	pollFn     func(ctx context.Context, name string) error
	snapshotFn func(name string) (model.Event, bool, error)
}

func (m *mockBroadcasterService) Start(ctx context.Context) error { return m.startFn(ctx) }
func (m *mockBroadcasterService) Stop() error                     { return m.stopFn() }
func (m *mockBroadcasterService) IsRunning() bool                 { return m.running }
func (m *mockBroadcasterService) Status() []model.DomainStatus    { return m.statuses }
func (m *mockBroadcasterService) PollDomain(ctx context.Context, name string) error {
	return m.pollFn(ctx, name)
}
func (m *mockBroadcasterService) Snapshot(name string) (model.Event, bool, error) {
	return m.snapshotFn(name)
}

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

// chiRequest creates an http.Request with chi URL params set.
func chiRequest(method, target string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestBroadcasterStatus(t *testing.T) {
	h := NewBroadcasterHandler(&mockBroadcasterService{
		running:  true,
		statuses: []model.DomainStatus{{Name: "rejected", EventName: "RejectData", HasSnapshot: true}},
	}, fixedCount(3))

	req := httptest.NewRequest(http.MethodGet, "/broadcaster/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Running     bool                 `json:"running"`
		Subscribers int                  `json:"subscribers"`
		Domains     []model.DomainStatus `json:"domains"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Running || body.Subscribers != 3 || len(body.Domains) != 1 {
		t.Errorf("body = %+v, want running, 3 subscribers, 1 domain", body)
	}
}

func TestBroadcasterStart(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusOK},
		{"already running", broadcaster.ErrAlreadyRunning, http.StatusConflict},
		{"failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewBroadcasterHandler(&mockBroadcasterService{
			startFn: func(ctx context.Context) error { return tc.err },
		}, fixedCount(0))

		rec := httptest.NewRecorder()
		h.Start(rec, httptest.NewRequest(http.MethodPost, "/broadcaster/start", nil))

		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestBroadcasterStop(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusOK},
		{"not running", broadcaster.ErrNotRunning, http.StatusConflict},
		{"failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewBroadcasterHandler(&mockBroadcasterService{
			stopFn: func() error { return tc.err },
		}, fixedCount(0))

		rec := httptest.NewRecorder()
		h.Stop(rec, httptest.NewRequest(http.MethodPost, "/broadcaster/stop", nil))

		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestBroadcasterPoll_Success(t *testing.T) {
	var polled string
	h := NewBroadcasterHandler(&mockBroadcasterService{
		pollFn: func(ctx context.Context, name string) error {
			polled = name
			return nil
		},
		statuses: []model.DomainStatus{{Name: "harvest"}, {Name: "rejected", Publishes: 2}},
	}, fixedCount(0))

	rec := httptest.NewRecorder()
	h.Poll(rec, chiRequest(http.MethodPost, "/domains/rejected/poll", map[string]string{"name": "rejected"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if polled != "rejected" {
		t.Errorf("polled = %q, want rejected", polled)
	}
	var st model.DomainStatus
	json.NewDecoder(rec.Body).Decode(&st)
	if st.Name != "rejected" || st.Publishes != 2 {
		t.Errorf("body = %+v, want rejected status", st)
	}
}

func TestBroadcasterPoll_UnknownDomain(t *testing.T) {
	h := NewBroadcasterHandler(&mockBroadcasterService{
		pollFn: func(ctx context.Context, name string) error { return broadcaster.ErrUnknownDomain },
	}, fixedCount(0))

	rec := httptest.NewRecorder()
	h.Poll(rec, chiRequest(http.MethodPost, "/domains/x/poll", map[string]string{"name": "x"}))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestBroadcasterSnapshot(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
		err  error
		want int
	}{
		{"present", true, nil, http.StatusOK},
		{"empty", false, nil, http.StatusNoContent},
		{"unknown", false, broadcaster.ErrUnknownDomain, http.StatusNotFound},
	}
	for _, tc := range cases {
		h := NewBroadcasterHandler(&mockBroadcasterService{
			snapshotFn: func(name string) (model.Event, bool, error) {
				return model.Event{Name: "RejectData", Data: map[string]any{"rejectedTable": []any{}}}, tc.ok, tc.err
			},
		}, fixedCount(0))

		rec := httptest.NewRecorder()
		h.Snapshot(rec, chiRequest(http.MethodGet, "/domains/rejected/snapshot", map[string]string{"name": "rejected"}))

		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestBroadcasterRoutes(t *testing.T) {
	h := NewBroadcasterHandler(&mockBroadcasterService{
		snapshotFn: func(name string) (model.Event, bool, error) {
			if name != "harvest" {
				t.Errorf("snapshot name = %q, want harvest", name)
			}
			return model.Event{Name: "HarvestData"}, true, nil
		},
	}, fixedCount(0))

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/domains/harvest/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
