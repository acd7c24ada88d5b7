package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MSghais/focus-afk-sub001/internal/config"
)

func TestFor_Prefix(t *testing.T) {
	var buf bytes.Buffer
	For(&buf, "sync").Print("pushed 3 tasks")

	if got := buf.String(); !strings.HasPrefix(got, "[sync] ") || !strings.Contains(got, "pushed 3 tasks") {
		t.Errorf("output = %q, want [sync] prefix and message", got)
	}
}

func TestNew_WritesFileAndStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "focus.log")
	var buf bytes.Buffer

	l := newWithWriter(&buf, config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	l.For("outbox").Print("delivered")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	for name, got := range map[string]string{"file": string(data), "stream": buf.String()} {
		if !strings.Contains(got, "[outbox] ") || !strings.Contains(got, "delivered") {
			t.Errorf("%s = %q, want the prefixed line", name, got)
		}
	}
}

func TestNew_NoFile(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, config.LogConfig{})
	if l.file != nil {
		t.Error("file logger created without a path")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
