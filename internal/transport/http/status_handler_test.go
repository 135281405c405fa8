package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipenrich/internal/middleware"
	"zipenrich/internal/operations"
	"zipenrich/internal/operations/testutil"
	logtest "zipenrich/internal/shared/testutil"
)

type stubSource struct {
	latest operations.OperationSnapshot
	byID   map[string]operations.OperationSnapshot
	err    error
}

func (s *stubSource) LatestOperation() (operations.OperationSnapshot, error) {
	if s.err != nil {
		return operations.OperationSnapshot{}, s.err
	}
	if s.latest.ID == "" {
		return operations.OperationSnapshot{}, operations.ErrOperationNotFound
	}
	return s.latest, nil
}

func (s *stubSource) GetOperation(id string) (operations.OperationSnapshot, error) {
	if snap, ok := s.byID[id]; ok {
		return snap, nil
	}
	return operations.OperationSnapshot{}, operations.ErrOperationNotFound
}

func newTestRouter(t *testing.T, source StatusSource) http.Handler {
	logger, _ := logtest.NewTestLogger(t)
	return NewRouter(RouterConfig{
		Status:  source,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics\n")) }),
		Logger:  logger,
	})
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_Routes(t *testing.T) {
	running := operations.OperationSnapshot{
		ID:     "op-1",
		Status: operations.OperationStatusRunning,
		Steps: []operations.StepSnapshot{
			{ID: "load", Status: operations.StepStatusCompleted},
			{ID: "clean", Status: operations.StepStatusActive},
		},
	}
	source := &stubSource{
		latest: running,
		byID:   map[string]operations.OperationSnapshot{"op-1": running},
	}
	router := newTestRouter(t, source)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", "/healthz", http.StatusOK, `"status":"ok"`},
		{"latest", "/status", http.StatusOK, `"id":"op-1"`},
		{"trailing slash", "/status/", http.StatusOK, `"id":"op-1"`},
		{"by id", "/status/op-1", http.StatusOK, `"status":"running"`},
		{"unknown id", "/status/missing", http.StatusNotFound, `operation missing not found`},
		{"metrics", "/metrics", http.StatusOK, "# metrics"},
		{"unknown route", "/nope", http.StatusNotFound, `/errors/not-found`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestStatus_NoRunYet(t *testing.T) {
	rec := serve(newTestRouter(t, &stubSource{}), "/status")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var p middleware.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "no pipeline run has started", p.Detail)
	assert.NotEmpty(t, p.Trace)
}

func TestStatus_SourceError(t *testing.T) {
	rec := serve(newTestRouter(t, &stubSource{err: errors.New("store unavailable")}), "/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatus_FromManager(t *testing.T) {
	logger, _ := logtest.NewTestLogger(t)
	manager := operations.NewManager(testutil.CreateTestRegistry(
		testutil.CreateSuccessfulStage("load", "Load"),
		testutil.CreateFailingStage("impute", "Impute", errors.New("geocoder down")),
	), nil, nil, logger)

	_, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "run-7"})
	require.NoError(t, err)

	rec := serve(newTestRouter(t, manager), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap operations.OperationSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "run-7", snap.ID)
	assert.Equal(t, operations.OperationStatusCompleted, snap.Status)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, operations.StepStatusFailed, snap.Steps[1].Status)
	assert.Contains(t, snap.Steps[1].Error, "geocoder down")
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), newTestRouter(t, &stubSource{}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
