package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/scheduler"
	"github.com/JakeFAU/board-collector/internal/storage/memory"
)

type fakeController struct {
	statuses  []scheduler.Status
	err       error
	triggered []string
}

func (f *fakeController) Sources() []scheduler.Status {
	return f.statuses
}

func (f *fakeController) Trigger(name string) error {
	if f.err != nil {
		return f.err
	}
	f.triggered = append(f.triggered, name)
	return nil
}

type failingRuns struct{}

func (failingRuns) RecordRun(context.Context, collector.RunRecord) error { return nil }

func (failingRuns) LastRun(context.Context, string) (collector.RunRecord, bool, error) {
	return collector.RunRecord{}, false, errors.New("db down")
}

func serve(t *testing.T, s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeController{}, nil, Options{}, zap.NewNop())
	rec := serve(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_ReadyzReportsFailedChecks(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeController{}, nil, Options{Checks: map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}}, zap.NewNop())
	rec := serve(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"unavailable","failed":{"redis":"connection refused"}}`, rec.Body.String())

	ok := NewServer(&fakeController{}, nil, Options{}, zap.NewNop())
	require.Equal(t, http.StatusOK, serve(t, ok, http.MethodGet, "/readyz", nil).Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeController{}, nil, Options{}, zap.NewNop())
	serve(t, s, http.MethodGet, "/healthz", nil)
	rec := serve(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ListSourcesIncludesLastRun(t *testing.T) {
	t.Parallel()

	next := time.Date(2026, 10, 19, 3, 10, 0, 0, time.UTC)
	ctrl := &fakeController{statuses: []scheduler.Status{
		{Name: "etoland", Cron: "0 */10 * * * *", Next: next},
		{Name: "theqoo", Cron: "@every 5m", Next: next},
	}}
	runs := memory.NewRunStore(10)
	require.NoError(t, runs.RecordRun(context.Background(), collector.RunRecord{
		RunID:    "run-1",
		Source:   "etoland",
		State:    collector.WindowPeriodic,
		Status:   collector.RunSucceeded,
		Inserted: 3,
	}))

	s := NewServer(ctrl, runs, Options{}, zap.NewNop())
	rec := serve(t, s, http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []struct {
			Name    string               `json:"name"`
			Cron    string               `json:"cron"`
			LastRun *collector.RunRecord `json:"last_run"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 2)
	require.Equal(t, "etoland", body.Sources[0].Name)
	require.NotNil(t, body.Sources[0].LastRun)
	require.Equal(t, "run-1", body.Sources[0].LastRun.RunID)
	require.Equal(t, 3, body.Sources[0].LastRun.Inserted)
	require.Nil(t, body.Sources[1].LastRun)
}

func TestServer_ListSourcesRunHistoryError(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{statuses: []scheduler.Status{{Name: "etoland"}}}
	s := NewServer(ctrl, failingRuns{}, Options{}, zap.NewNop())
	rec := serve(t, s, http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_TriggerSource(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"queued", nil, http.StatusAccepted},
		{"unknown", scheduler.ErrUnknownSource, http.StatusNotFound},
		{"full", scheduler.ErrQueueFull, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := &fakeController{err: tc.err}
			s := NewServer(ctrl, nil, Options{}, zap.NewNop())
			rec := serve(t, s, http.MethodPost, "/v1/sources/etoland/trigger", nil)
			require.Equal(t, tc.status, rec.Code)
			if tc.err == nil {
				require.Equal(t, []string{"etoland"}, ctrl.triggered)
			}
			if errors.Is(tc.err, scheduler.ErrQueueFull) {
				require.Equal(t, queueFullRetry, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeController{}, nil, Options{APIKey: "secret"}, zap.NewNop())
	require.Equal(t, http.StatusForbidden, serve(t, s, http.MethodGet, "/v1/sources", nil).Code)
	require.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/v1/sources", http.Header{"X-Api-Key": {"secret"}}).Code)
	require.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/healthz", nil).Code)
}

type panicController struct{ fakeController }

func (panicController) Sources() []scheduler.Status {
	panic("boom")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	s := NewServer(&panicController{}, nil, Options{}, zap.NewNop())
	rec := serve(t, s, http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
