package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kcajmagic/COSC-NACHOS/internal/config"
	"github.com/kcajmagic/COSC-NACHOS/internal/trace"
	"github.com/kcajmagic/COSC-NACHOS/pkg/model"
)

func testServer(t *testing.T) (*Server, *trace.SQLiteStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := trace.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(config.DefaultServerConfig(), st, logger), st
}

// seedRuns stores n runs, alternating scenario and outcome, each with two events.
func seedRuns(t *testing.T, st *trace.SQLiteStore, n int) []string {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC()
	var ids []string
	for i := range n {
		run := &model.Run{
			ID:        fmt.Sprintf("run_%02d", i),
			Scenario:  []string{"alarm", "priority"}[i%2],
			Scheduler: "priority",
			State:     []model.RunState{model.RunStatePassed, model.RunStateFailed}[i%2],
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		events := []model.ThreadEvent{
			{Seq: 1, Tick: 10, ThreadID: 2, Thread: "worker", Kind: "fork"},
			{Seq: 2, Tick: 20, ThreadID: 2, Thread: "worker", Kind: "finish"},
		}
		if err := st.AppendEvents(ctx, run.ID, events); err != nil {
			t.Fatalf("AppendEvents: %v", err)
		}
		ids = append(ids, run.ID)
	}
	return ids
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantStatus, w.Body.String())
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Errorf("GET %s: missing X-Request-ID header", path)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/api/v1/health", http.StatusOK)
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}

	var data healthResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Status != "healthy" || data.Store != "sqlite" || data.Version != Version {
		t.Errorf("health = %+v", data)
	}
}

func TestDiscovery(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/api/v1/", http.StatusOK)
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data discoveryResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Endpoints) != 4 {
		t.Errorf("endpoints = %d, want 4", len(data.Endpoints))
	}
}

func TestListRuns_Paginates(t *testing.T) {
	srv, st := testServer(t)
	seedRuns(t, st, 5)

	env := doGet(t, srv, "/api/v1/runs?limit=2&offset=1", http.StatusOK)
	var runs []model.Run
	if err := json.Unmarshal(env.Data, &runs); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].ID != "run_03" {
		t.Errorf("first = %s, want run_03 (newest first, offset 1)", runs[0].ID)
	}
	if env.Pagination == nil || env.Pagination.Total != 5 || !env.Pagination.HasMore {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}

func TestListRuns_Filters(t *testing.T) {
	srv, st := testServer(t)
	seedRuns(t, st, 6)

	env := doGet(t, srv, "/api/v1/runs?scenario=priority&state=failed", http.StatusOK)
	var runs []model.Run
	if err := json.Unmarshal(env.Data, &runs); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("len = %d, want 3", len(runs))
	}
	for _, run := range runs {
		if run.Scenario != "priority" || run.State != model.RunStateFailed {
			t.Errorf("unexpected run %+v", run)
		}
	}
}

func TestListRuns_Empty(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/api/v1/runs", http.StatusOK)
	if string(env.Data) != "[]" {
		t.Errorf("data = %s, want []", env.Data)
	}
}

func TestListRuns_BadQuery(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/api/v1/runs?limit=ten&state=lost", http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Fatalf("error = %+v, want VALIDATION_ERROR", env.Error)
	}
	if len(env.Error.Details) != 2 {
		t.Errorf("details = %+v, want 2", env.Error.Details)
	}
}

func TestGetRun(t *testing.T) {
	srv, st := testServer(t)
	ids := seedRuns(t, st, 1)

	env := doGet(t, srv, "/api/v1/runs/"+ids[0], http.StatusOK)
	var run model.Run
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if run.ID != ids[0] || run.EventCount != 2 {
		t.Errorf("run = %+v", run)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/api/v1/runs/run_missing", http.StatusNotFound)
	if env.Status != "error" || env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("envelope = %+v", env)
	}
}

func TestListEvents(t *testing.T) {
	srv, st := testServer(t)
	ids := seedRuns(t, st, 1)

	env := doGet(t, srv, "/api/v1/runs/"+ids[0]+"/events", http.StatusOK)
	var events []model.ThreadEvent
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(events) != 2 || events[0].Kind != "fork" || events[1].Kind != "finish" {
		t.Errorf("events = %+v", events)
	}

	doGet(t, srv, "/api/v1/runs/run_missing/events", http.StatusNotFound)
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/api/v1/threads", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}
