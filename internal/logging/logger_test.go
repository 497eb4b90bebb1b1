package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrintfWritesFileAndEcho(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var echo bytes.Buffer
	logger, err := New(dir, &echo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Printf("crawl %s: %d entries\n", "ensembl", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "] crawl ensembl: 3 entries") {
		t.Fatalf("unexpected log line %q", line)
	}
	if echo.String() != "crawl ensembl: 3 entries\n" {
		t.Fatalf("unexpected echo %q", echo.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if Stderr(true) != nil {
		t.Fatalf("quiet must disable the echo")
	}
}
