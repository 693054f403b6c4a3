package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// SetupLogger tests
// ---------------------------------------------------------------------------

func TestSetupLogger_DoesNotPanicForAllCombinations(t *testing.T) {
	formats := []string{"json", "text", "JSON", "", "unknown"}
	levels := []string{"debug", "info", "warn", "warning", "error", "ERROR", "", "unknown"}

	for _, format := range formats {
		for _, level := range levels {
			t.Run(format+"/"+level, func(t *testing.T) {
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("SetupLogger(%q, %q) panicked: %v", format, level, r)
					}
				}()
				SetupLogger(format, level)
			})
		}
	}
	SetupLogger("text", "error")
}

func TestSetupLogger_JSONFormat_ProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "json", "info")
	t.Cleanup(func() { SetupLogger("text", "error") })

	slog.Info("test message", "key", "value")

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("JSON handler produced no output")
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, line)
	}
	if obj["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", obj["msg"], "test message")
	}
	if obj["key"] != "value" {
		t.Errorf("key = %v, want %q", obj["key"], "value")
	}
}

func TestSetLogLevel_AppliesToInstalledLogger(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "text", "error")
	t.Cleanup(func() { SetupLogger("text", "error") })

	slog.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted at error level: %s", buf.String())
	}

	SetLogLevel("debug")
	buf.Reset()
	slog.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug record missing after SetLogLevel(debug): %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
