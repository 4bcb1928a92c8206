package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestToZapLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zapcore.Level
	}{
		{"info", zapcore.InfoLevel},
		{" WARN ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"debug", zapcore.DebugLevel},
		{"bogus", zapcore.DebugLevel},
	}
	for _, tc := range cases {
		if got := toZapLevel(tc.in); got != tc.want {
			t.Fatalf("toZapLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNopAndNamed(t *testing.T) {
	l := Nop().Named("poller")
	if l == nil || l.SugaredLogger == nil {
		t.Fatalf("expected usable logger")
	}
	l.Infow("discarded", "k", "v")
}

func TestNewCore_Formats(t *testing.T) {
	var buf bytes.Buffer
	l := zap.New(newCore(zapcore.InfoLevel, "JSON", zapcore.AddSync(&buf))).Sugar()
	l.Debugw("dropped")
	l.Infow("poll_loop_started", "device_id", 4)
	_ = l.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("json output expected, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "poll_loop_started" || entry["level"] != "info" || entry["device_id"] != float64(4) {
		t.Fatalf("unexpected entry: %v", entry)
	}

	buf.Reset()
	l = zap.New(newCore(zapcore.DebugLevel, "console", zapcore.AddSync(&buf))).Sugar()
	l.Warnw("cache_put_failed", "device_id", 4)
	_ = l.Sync()
	if out := buf.String(); !strings.Contains(out, "WARN") || !strings.Contains(out, "cache_put_failed") {
		t.Fatalf("unexpected console output: %q", out)
	}
}
