package logbook

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "9606", "GRCh38", "pynome.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
	if fromDisk, n := TailFile(path, 1); n != 5 || !strings.Contains(fromDisk[0], "entry-4") {
		t.Fatalf("TailFile = %v %d", fromDisk, n)
	}
}

type printer struct{ lines []string }

func (p *printer) Printf(format string, args ...any) {
	p.lines = append(p.lines, fmt.Sprintf(format, args...))
}

func TestEchoForwardsEntries(t *testing.T) {
	var p printer
	book, err := New(filepath.Join(t.TempDir(), "pynome.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.WithEcho(&p, "9606-GRCh38").Warn("remove %s failed", "x.fa.fai")
	if len(p.lines) != 1 || p.lines[0] != "WARN 9606-GRCh38: remove x.fa.fai failed" {
		t.Fatalf("unexpected echo %v", p.lines)
	}
	lines, _ := book.Tail(1)
	if len(lines) != 1 || !strings.Contains(lines[0], "WARN  remove x.fa.fai failed") {
		t.Fatalf("unexpected entry %v", lines)
	}
}

func TestMissingFileTailsEmpty(t *testing.T) {
	if lines, total := TailFile(filepath.Join(t.TempDir(), "none.log"), 10); lines != nil || total != 0 {
		t.Fatalf("expected empty tail got %v %d", lines, total)
	}
}
