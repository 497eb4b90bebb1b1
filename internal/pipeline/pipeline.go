package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/workdir"
)

// Pipeline executes every registered task, in registration order.
type Pipeline struct {
	registry *task.Registry
	clock    func() time.Time
	newID    func() string
	store    func(*workdir.Dir) StateStore
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithRunID overrides run ID generation (tests).
func WithRunID(gen func() string) Option {
	return func(p *Pipeline) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithStateStore overrides where run state is written. A nil result
// disables persistence for that directory.
func WithStateStore(open func(*workdir.Dir) StateStore) Option {
	return func(p *Pipeline) {
		if open != nil {
			p.store = open
		}
	}
}

// New builds a pipeline over registry.
func New(registry *task.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		clock:    time.Now,
		newID:    uuid.NewString,
		store:    func(dir *workdir.Dir) StateStore { return NewRepository(dir) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Run applies every task to unit. Skips are not errors. The first task error
// is recorded as failed, ends the run and is returned.
func (p *Pipeline) Run(ctx context.Context, unit *task.Unit) (Report, error) {
	if unit == nil || unit.Dir == nil {
		return Report{}, fmt.Errorf("pipeline: unit with a working directory is required")
	}
	tasks, err := p.registry.Build()
	if err != nil {
		return Report{}, fmt.Errorf("pipeline: build tasks: %w", err)
	}
	now := p.clock().UTC()
	state := State{
		RunID:     p.newID(),
		Assembly:  unit.Dir.RootName(),
		Status:    StatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	repo := p.store(unit.Dir)
	p.save(repo, unit, state)

	report := Report{RunID: state.RunID}
	for _, t := range tasks {
		info := t.Info()
		if err := ctx.Err(); err != nil {
			return p.finish(repo, unit, state, report, StatusFailed, err)
		}
		run := TaskRun{ID: info.ID, Name: info.Name, StartedAt: p.clock().UTC()}
		result, err := t.Run(ctx, unit)
		run.FinishedAt = p.clock().UTC()
		run.Outcome = result.Outcome
		run.Message = result.Message
		if err != nil {
			run.Outcome = task.OutcomeFailed
			run.Error = err.Error()
		}
		if run.Outcome == "" {
			run.Outcome = task.OutcomePerformed
		}
		report.Outcomes = append(report.Outcomes, run)
		state.Tasks = append(state.Tasks, run)
		state.UpdatedAt = run.FinishedAt
		logRun(unit, run)
		if err != nil {
			return p.finish(repo, unit, state, report, StatusFailed, err)
		}
		p.save(repo, unit, state)
	}
	return p.finish(repo, unit, state, report, StatusComplete, nil)
}

func (p *Pipeline) finish(repo StateStore, unit *task.Unit, state State, report Report, status Status, err error) (Report, error) {
	state.Status = status
	state.FinishedAt = p.clock().UTC()
	state.UpdatedAt = state.FinishedAt
	p.save(repo, unit, state)
	if err != nil {
		return report, fmt.Errorf("pipeline: %s: %w", unit.Dir.RootName(), err)
	}
	return report, nil
}

// save is best effort: a read-only state directory must not stop indexing.
func (p *Pipeline) save(repo StateStore, unit *task.Unit, state State) {
	if repo == nil {
		return
	}
	if err := repo.Save(state); err != nil {
		unit.Log.Warn("pipeline: save state: %v", err)
	}
}

func logRun(unit *task.Unit, run TaskRun) {
	switch run.Outcome {
	case task.OutcomeFailed:
		unit.Log.Error("%s: %s", run.ID, run.Error)
	case task.OutcomePerformed:
		unit.Log.Info("%s: performed %s", run.ID, run.Message)
	default:
		unit.Log.Info("%s: %s %s", run.ID, run.Outcome, run.Message)
	}
}

// NeedsWork reports whether any registered task still has outputs missing in
// dir.
func NeedsWork(registry *task.Registry, dir *workdir.Dir) (bool, error) {
	tasks, err := registry.Build()
	if err != nil {
		return false, fmt.Errorf("pipeline: build tasks: %w", err)
	}
	store := artifact.NewStore(dir)
	for _, t := range tasks {
		outputs := t.Outputs()
		if len(outputs) == 0 {
			continue
		}
		ready, _, err := store.Ready(outputs...)
		if err != nil {
			return false, err
		}
		if !ready {
			return true, nil
		}
	}
	return false, nil
}
