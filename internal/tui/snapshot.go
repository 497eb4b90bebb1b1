package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/biggstd/pynome/internal/assembly"
	"github.com/biggstd/pynome/internal/logbook"
	"github.com/biggstd/pynome/internal/pipeline"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/workdir"
)

// Row is everything the browser shows for one assembly.
type Row struct {
	Assembly assembly.Assembly
	Dir      *workdir.Dir
	State    pipeline.State
	HasState bool
	Log      []string
	LogTotal int
}

// Summary renders the run status in a few words.
func (r Row) Summary() string {
	if !r.HasState {
		return "never indexed"
	}
	counts := r.State.Counts()
	return fmt.Sprintf("%s · %d performed · %d skipped · %d failed",
		r.State.Status,
		counts[task.OutcomePerformed],
		counts[task.OutcomePreconditionUnmet]+counts[task.OutcomeAlreadyComplete],
		counts[task.OutcomeFailed],
	)
}

// Loader produces a fresh snapshot.
type Loader func(ctx context.Context) ([]Row, error)

// StoreLoader reads assemblies from store and their run state and logbook
// tail from the working directories below root.
func StoreLoader(store assembly.Store, root, species string, tail int) Loader {
	return func(ctx context.Context) ([]Row, error) {
		list, err := store.Assemblies(ctx, species)
		if err != nil {
			return nil, fmt.Errorf("tui: list assemblies: %w", err)
		}
		rows := make([]Row, 0, len(list))
		for _, asm := range list {
			dir := asm.Dir(root)
			row := Row{Assembly: asm, Dir: dir}
			state, err := pipeline.NewRepository(dir).Load()
			switch {
			case err == nil:
				row.State = state
				row.HasState = true
			case !errors.Is(err, pipeline.ErrStateNotFound):
				return nil, fmt.Errorf("tui: %s: %w", dir.RootName(), err)
			}
			row.Log, row.LogTotal = logbook.TailFile(dir.LogPath(), tail)
			rows = append(rows, row)
		}
		return rows, nil
	}
}
