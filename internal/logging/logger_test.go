package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	lgr, err := New(dir, "info")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	Printf{L: lgr}.Printf("order %s opened\n", "1007")
	lgr.Debug("hidden at info level")
	_ = lgr.Sync()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "order 1007 opened") {
		t.Fatalf("log missing entry: %s", text)
	}
	if strings.Contains(text, "hidden at info level") {
		t.Fatalf("debug entry written at info level")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(t.TempDir(), "chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestPrintfToleratesNilLogger(t *testing.T) {
	Printf{}.Printf("nothing %d", 1)
}
