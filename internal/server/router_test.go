//go:build !windows

package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mod-net/stack/internal/config"
	"github.com/mod-net/stack/internal/orchestrator"
)

func setupRouter(t *testing.T, base string) (http.Handler, *orchestrator.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = dir
	cfg.LockDir = filepath.Join(dir, "locks")
	cfg.RunDir = filepath.Join(dir, "run")
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.StopGrace = time.Second
	cfg.Journal = config.JournalConfig{Backend: "none"}
	orc, err := orchestrator.New(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	t.Cleanup(func() { orc.StopAll() })
	return NewRouter(orc, base).Handler(), orc
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusAllStopped(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sts []orchestrator.ServiceStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &sts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sts) != 4 {
		t.Fatalf("got %d services", len(sts))
	}
	for _, st := range sts {
		if st.State != orchestrator.StateStopped {
			t.Fatalf("%s state %s, want stopped", st.Name, st.State)
		}
	}
}

func TestStatusUnknownIs404(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/status?name=telemetry")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartUnknownIs404(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/start?name=telemetry")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStopNoProcsIsOK(t *testing.T) {
	h, _ := setupRouter(t, "/base")
	rec := doReq(t, h, http.MethodPost, "/base/stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp bulkResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || len(resp.Attempted) != 4 {
		t.Fatalf("bulk stop: %+v", resp)
	}
}

func TestRestartRequiresName(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/restart")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckReportsAllServices(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/check")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var results []orchestrator.CheckResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}
	for _, r := range results {
		if r.Target == "" {
			t.Fatalf("%s has no probe target", r.Name)
		}
	}
}

func TestHealthz(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
