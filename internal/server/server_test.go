package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"panoforge/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewServer(":0", store, nil, slog.Default()), store
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	r := mux.NewRouter()
	s.setupRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleRunsReturnsRecent(t *testing.T) {
	s, store := newTestServer(t)
	if err := store.RecordRunQueued(storage.RunRecord{ID: "run-1", Status: "queued", InputPath: "/photos"}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := store.RecordRunResult("run-1", "completed", "done", map[string]any{"output": "/out.jpg"}, ""); err != nil {
		t.Fatalf("result: %v", err)
	}

	r := mux.NewRouter()
	s.setupRoutes(r)
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var runs []storage.RunRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].Status != "completed" {
		t.Fatalf("unexpected runs payload: %+v", runs)
	}
}

func TestHandleRunsMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	r := mux.NewRouter()
	s.setupRoutes(r)
	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
