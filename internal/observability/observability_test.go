package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/notesync/auth-service/internal/config"
)

func TestInitRuntimeDisabledRegistersCounters(t *testing.T) {
	cfg := &config.Config{OTELServiceName: "test", OTELEnvironment: "test"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := InitRuntime(context.Background(), cfg, logger, nil)
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	if current() == nil {
		t.Fatal("expected counters to be registered")
	}
	RecordRepositoryOperation(context.Background(), "session", "create", "success")
	RecordSessionEvent(context.Background(), "refresh", "reuse_detected")
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNilRuntimeShutdown(t *testing.T) {
	var rt *Runtime
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime shutdown: %v", err)
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, lp, err := NewLogger(context.Background(), &config.Config{LogLevel: "debug"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if lp != nil {
		t.Fatal("expected no logger provider when otel logs are disabled")
	}
	logger.Debug("hello", "k", "v")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["msg"] != "hello" || rec["k"] != "v" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestAuditIncludesRequestMetadata(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	req := httptest.NewRequest("DELETE", "/v1/sessions/abc", nil)
	req.Header.Set("X-Request-Id", "req-1")
	Audit(req, "session.revoke", "session_uuid", "abc")

	out := buf.String()
	for _, want := range []string{"event=session.revoke", "request_id=req-1", "session_uuid=abc", "path=/v1/sessions/abc"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
