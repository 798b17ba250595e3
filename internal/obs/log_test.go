package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("debug", &buf)
	LogRequest(l, zap.String("path", "/auth/login"), zap.Int("status", 200))

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "path", "status"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("warn", &buf)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered at warn level: %s", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn line missing: %s", buf.String())
	}
}

func TestSetLoggerSwapsDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := SetLogger(NewLogger("info", &buf))
	defer SetLogger(prev)

	Logger().Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("default logger not replaced")
	}
}
