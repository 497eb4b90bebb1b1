package pipeline

import (
	"time"

	"github.com/biggstd/pynome/internal/task"
)

// Status enumerates coarse run phases.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// TaskRun records one task invocation.
type TaskRun struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Outcome    task.Outcome `json:"outcome"`
	Message    string       `json:"message,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// State is the persisted snapshot of the latest run for an assembly.
type State struct {
	RunID      string    `json:"run_id"`
	Assembly   string    `json:"assembly"`
	Status     Status    `json:"status"`
	Tasks      []TaskRun `json:"tasks"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Counts tallies outcomes in the state.
func (s State) Counts() map[task.Outcome]int {
	counts := map[task.Outcome]int{}
	for _, run := range s.Tasks {
		counts[run.Outcome]++
	}
	return counts
}

// Report is the result of Pipeline.Run: outcomes in registration order.
type Report struct {
	RunID    string
	Outcomes []TaskRun
}

// Outcome returns the outcome recorded for id.
func (r Report) Outcome(id string) (task.Outcome, bool) {
	for _, run := range r.Outcomes {
		if run.ID == id {
			return run.Outcome, true
		}
	}
	return "", false
}

// Performed counts tasks that did work.
func (r Report) Performed() int {
	n := 0
	for _, run := range r.Outcomes {
		if run.Outcome == task.OutcomePerformed {
			n++
		}
	}
	return n
}
