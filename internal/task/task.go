package task

import (
	"context"
	"fmt"

	"github.com/biggstd/pynome/internal/artifact"
)

// Info describes a task's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("task: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("task: name is required for %s", i.ID)
	}
	return nil
}

// Outcome enumerates what a single task invocation did.
type Outcome string

const (
	OutcomePreconditionUnmet Outcome = "skipped-precondition-unmet"
	OutcomeAlreadyComplete   Outcome = "skipped-already-complete"
	OutcomePerformed         Outcome = "performed"
	OutcomeFailed            Outcome = "failed"
)

// Skipped reports whether the task declined to act.
func (o Outcome) Skipped() bool {
	return o == OutcomePreconditionUnmet || o == OutcomeAlreadyComplete
}

// Result captures the outcome of a task execution.
type Result struct {
	Outcome Outcome
	Message string
}

// Performed is shorthand for a successful result.
func Performed(format string, args ...any) Result {
	return Result{Outcome: OutcomePerformed, Message: fmt.Sprintf(format, args...)}
}

// Failed is shorthand for a failed result.
func Failed() Result {
	return Result{Outcome: OutcomeFailed}
}

// Task is implemented by every pipeline step. A task keeps no state between
// assemblies: everything it needs arrives through the Unit.
type Task interface {
	Info() Info
	Inputs() []artifact.ArtifactRef
	Outputs() []artifact.ArtifactRef
	Run(ctx context.Context, unit *Unit) (Result, error)
}
