package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the process log inside the logs directory.
const FileName = "pynome.log"

// Logger appends timestamped lines to <root>/.pynome/logs/pynome.log so a
// crawl or index run can be inspected after the terminal is gone. Lines are
// echoed to a second writer (stderr by default) unless it is nil.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	echo io.Writer
	now  func() time.Time
}

// New creates (or reuses) the log file in logsDir. A nil echo keeps the
// output file-only.
func New(logsDir string, echo io.Writer) (*Logger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logsDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f, echo: echo, now: time.Now}, nil
}

// Stderr returns the echo writer used by the CLI: os.Stderr unless quiet.
func Stderr(quiet bool) io.Writer {
	if quiet {
		return nil
	}
	return os.Stderr
}

// Path returns the log file location.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	timestamp := l.now().Format(time.RFC3339)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
	if l.echo != nil {
		fmt.Fprintln(l.echo, line)
	}
}
