package tui

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/biggstd/pynome/internal/assembly"
	"github.com/biggstd/pynome/internal/logbook"
	"github.com/biggstd/pynome/internal/pipeline"
	"github.com/biggstd/pynome/internal/task"
)

func seedStore(t *testing.T, root string) assembly.Store {
	t.Helper()
	store := assembly.NewFileStore(assembly.FilePath(root))
	ctx := context.Background()
	for _, a := range []assembly.Assembly{
		{TaxonomyID: "9606", Name: "GRCh38", Genus: "Homo", Species: "sapiens", MirrorType: "ensembl"},
		{TaxonomyID: "7955", Name: "GRCz11", Genus: "Danio", Species: "rerio", MirrorType: "ensembl"},
	} {
		if err := store.PutAssembly(ctx, a); err != nil {
			t.Fatalf("PutAssembly: %v", err)
		}
	}
	human := assembly.Assembly{TaxonomyID: "9606", Name: "GRCh38"}
	dir := human.Dir(root)
	if err := dir.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := pipeline.State{
		RunID:  "0123456789abcdef",
		Status: pipeline.StatusFailed,
		Tasks: []pipeline.TaskRun{
			{ID: "download_fasta", Outcome: task.OutcomePerformed, StartedAt: at, FinishedAt: at.Add(90 * time.Second)},
			{ID: "write_gtf", Outcome: task.OutcomeFailed, Error: "gffread exited with status 1", StartedAt: at, FinishedAt: at},
		},
	}
	if err := pipeline.NewRepository(dir).Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	book, err := logbook.New(dir.LogPath())
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	book.Error("write_gtf: gffread exited with status 1")
	return store
}

func TestStoreLoader(t *testing.T) {
	root := t.TempDir()
	store := seedStore(t, root)
	rows, err := StoreLoader(store, root, "", 5)(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	var human, fish Row
	for _, row := range rows {
		switch row.Assembly.TaxonomyID {
		case "9606":
			human = row
		case "7955":
			fish = row
		}
	}
	if !human.HasState || human.LogTotal != 1 {
		t.Fatalf("human row incomplete: %+v", human)
	}
	if got := human.Summary(); got != "failed · 1 performed · 0 skipped · 1 failed" {
		t.Fatalf("unexpected summary %q", got)
	}
	if fish.HasState || fish.Summary() != "never indexed" {
		t.Fatalf("zebrafish should be unindexed: %+v", fish)
	}
}

func TestStoreLoaderCorruptState(t *testing.T) {
	root := t.TempDir()
	store := seedStore(t, root)
	dir := (assembly.Assembly{TaxonomyID: "9606", Name: "GRCh38"}).Dir(root)
	if err := os.WriteFile(dir.StatePath(), []byte("{"), 0o644); err != nil {
		t.Fatalf("corrupt state: %v", err)
	}
	if _, err := StoreLoader(store, root, "", 5)(context.Background()); err == nil {
		t.Fatalf("expected corrupt state to surface")
	}
}

func TestAppRendersSnapshot(t *testing.T) {
	root := t.TempDir()
	store := seedStore(t, root)
	app := NewApp(StoreLoader(store, root, "homo sapiens", 5))

	msg := app.Init()()
	model, _ := app.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model, _ = model.Update(msg)
	app = model.(*App)

	if len(app.rows) != 1 {
		t.Fatalf("species filter should leave one row, got %d", len(app.rows))
	}
	view := app.View()
	for _, want := range []string{"Homo sapiens", "download_fasta", "gffread exited with status 1", "01234567"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestAppShowsLoadError(t *testing.T) {
	app := NewApp(func(context.Context) ([]Row, error) {
		return nil, errors.New("database unavailable")
	})
	model, cmd := app.Update(app.Init()())
	if cmd == nil {
		t.Fatalf("a failed refresh should be retried")
	}
	if view := model.View(); !strings.Contains(view, "database unavailable") {
		t.Fatalf("view missing error:\n%s", view)
	}
}

func TestAppQuits(t *testing.T) {
	app := NewApp(func(context.Context) ([]Row, error) { return nil, nil })
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
