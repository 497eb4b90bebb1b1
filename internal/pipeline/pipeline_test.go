package pipeline

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/workdir"
)

type scriptedTask struct {
	task.Base
	outcome task.Outcome
	err     error
	calls   *[]string
}

func (s *scriptedTask) Run(context.Context, *task.Unit) (task.Result, error) {
	*s.calls = append(*s.calls, s.Info().ID)
	if s.err != nil {
		return task.Failed(), s.err
	}
	return task.Result{Outcome: s.outcome}, nil
}

func register(t *testing.T, reg *task.Registry, calls *[]string, id string, outcome task.Outcome, err error) {
	t.Helper()
	reg.MustRegister(id, func(task.Config) (task.Task, error) {
		return &scriptedTask{
			Base:    task.NewBase(task.Info{ID: id, Name: id}),
			outcome: outcome,
			err:     err,
			calls:   calls,
		}, nil
	})
}

func newUnit(t *testing.T) *task.Unit {
	t.Helper()
	dir := workdir.ForAssembly(t.TempDir(), "9606", "GRCh38")
	if err := dir.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return task.NewUnit(dir, nil, nil, nil, nil, 1)
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestRunPreservesRegistrationOrder(t *testing.T) {
	var calls []string
	reg := task.NewRegistry()
	register(t, reg, &calls, "t1", task.OutcomePreconditionUnmet, nil)
	register(t, reg, &calls, "t2", task.OutcomePerformed, nil)
	register(t, reg, &calls, "t3", task.OutcomeAlreadyComplete, nil)
	register(t, reg, &calls, "t4", task.OutcomePreconditionUnmet, nil)

	unit := newUnit(t)
	report, err := New(reg, WithClock(fixedClock()), WithRunID(func() string { return "run-1" })).Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var ids []string
	var outcomes []task.Outcome
	for _, run := range report.Outcomes {
		ids = append(ids, run.ID)
		outcomes = append(outcomes, run.Outcome)
	}
	if !reflect.DeepEqual(ids, []string{"t1", "t2", "t3", "t4"}) || !reflect.DeepEqual(calls, ids) {
		t.Fatalf("unexpected order ids=%v calls=%v", ids, calls)
	}
	want := []task.Outcome{task.OutcomePreconditionUnmet, task.OutcomePerformed, task.OutcomeAlreadyComplete, task.OutcomePreconditionUnmet}
	if !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
	if report.Performed() != 1 {
		t.Fatalf("expected one performed task")
	}

	state, err := NewRepository(unit.Dir).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.RunID != "run-1" || state.Status != StatusComplete || len(state.Tasks) != 4 {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Assembly != "9606-GRCh38" {
		t.Fatalf("unexpected assembly %q", state.Assembly)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	var calls []string
	boom := errors.New("gffread exited with status 1")
	reg := task.NewRegistry()
	register(t, reg, &calls, "t1", task.OutcomePerformed, nil)
	register(t, reg, &calls, "t2", "", boom)
	register(t, reg, &calls, "t3", task.OutcomePerformed, nil)

	unit := newUnit(t)
	report, err := New(reg, WithClock(fixedClock())).Run(context.Background(), unit)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure got %v", err)
	}
	if !reflect.DeepEqual(calls, []string{"t1", "t2"}) {
		t.Fatalf("later tasks must not run: %v", calls)
	}
	if outcome, _ := report.Outcome("t2"); outcome != task.OutcomeFailed {
		t.Fatalf("expected t2 failed got %q", outcome)
	}
	state, err := NewRepository(unit.Dir).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Status != StatusFailed || state.Tasks[1].Error == "" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestRunWithoutPersistence(t *testing.T) {
	var calls []string
	reg := task.NewRegistry()
	register(t, reg, &calls, "t1", task.OutcomePerformed, nil)
	unit := newUnit(t)
	p := New(reg, WithStateStore(func(*workdir.Dir) StateStore { return nil }))
	if _, err := p.Run(context.Background(), unit); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(unit.Dir.StatePath()); !os.IsNotExist(err) {
		t.Fatalf("state should not be written: %v", err)
	}
}

func TestRepositoryMissingState(t *testing.T) {
	dir := workdir.ForAssembly(t.TempDir(), "1", "a")
	if _, err := NewRepository(dir).Load(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound got %v", err)
	}
}

type outputTask struct {
	task.Base
}

func (outputTask) Run(context.Context, *task.Unit) (task.Result, error) {
	return task.Result{Outcome: task.OutcomeAlreadyComplete}, nil
}

func TestNeedsWork(t *testing.T) {
	reg := task.NewRegistry()
	reg.MustRegister("gtf", func(task.Config) (task.Task, error) {
		ot := &outputTask{Base: task.NewBase(task.Info{ID: "gtf", Name: "gtf"})}
		ot.SetOutputs(artifact.Gtf)
		return ot, nil
	})
	unit := newUnit(t)
	needs, err := NeedsWork(reg, unit.Dir)
	if err != nil || !needs {
		t.Fatalf("expected work needed: %v %v", needs, err)
	}
	if err := os.WriteFile(unit.Dir.GtfPath(), []byte("gtf"), 0o644); err != nil {
		t.Fatalf("seed gtf: %v", err)
	}
	needs, err = NeedsWork(reg, unit.Dir)
	if err != nil || needs {
		t.Fatalf("expected no work: %v %v", needs, err)
	}
}
