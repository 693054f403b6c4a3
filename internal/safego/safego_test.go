package safego

import (
	"bytes"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	var ran atomic.Bool
	wait(t, Go("test", func() { ran.Store(true) }))
	if !ran.Load() {
		t.Error("function did not run")
	}
}

func TestGo_RecoversPanicAndLogsName(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// This should not crash the test process; the panic must be recovered.
	wait(t, Go("metrics-server", func() { panic("intentional panic in test") }))

	out := buf.String()
	if !strings.Contains(out, "goroutine=metrics-server") {
		t.Errorf("log missing goroutine name: %s", out)
	}
	if !strings.Contains(out, "intentional panic in test") {
		t.Errorf("log missing panic value: %s", out)
	}
}
