package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatLog(t *testing.T) {
	tests := []struct {
		tag, msg, want string
	}{
		{"Shell", "ready", "[Shell] ready"},
		{"", "plain", "plain"},
		{"Relay", "[HTTP] already tagged", "[HTTP] already tagged"},
		{" Boot ", " spaced ", "[Boot] spaced"},
	}
	for _, tt := range tests {
		if got := FormatLog(tt.tag, tt.msg); got != tt.want {
			t.Errorf("FormatLog(%q, %q) = %q, want %q", tt.tag, tt.msg, got, tt.want)
		}
	}
}

func TestLoggerWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := New(Config{
		Level:    "debug",
		Dir:      dir,
		Filename: "test.log",
		Console:  &console,
		NoColor:  true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.InfoTag("Shell", "installed %s", "plantid-v3")
	logger.Debug("debug line", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := console.String()
	if !strings.Contains(out, "[Shell] installed plantid-v3") {
		t.Fatalf("console output missing tagged line: %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Fatalf("console output missing attrs: %q", out)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"[Shell] installed plantid-v3"`) {
		t.Fatalf("log file missing json record: %s", raw)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var console bytes.Buffer
	logger, err := New(Config{Level: "warn", Console: &console, NoColor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(console.String(), "hidden") {
		t.Fatalf("info record should be filtered: %q", console.String())
	}
	if !strings.Contains(console.String(), "shown") {
		t.Fatalf("warn record missing: %q", console.String())
	}

	logger.SetLevel("info")
	logger.Info("now visible")
	if !strings.Contains(console.String(), "now visible") {
		t.Fatalf("SetLevel did not take effect: %q", console.String())
	}
}
