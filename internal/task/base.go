package task

import (
	"fmt"

	"github.com/biggstd/pynome/internal/artifact"
)

// Base provides common plumbing for tasks (identity + IO contracts).
type Base struct {
	info    Info
	inputs  []artifact.ArtifactRef
	outputs []artifact.ArtifactRef
}

// NewBase seeds the helper with task info.
func NewBase(info Info) Base {
	return Base{info: info}
}

// SetInputs declares the required artifacts.
func (b *Base) SetInputs(refs ...artifact.ArtifactRef) {
	b.inputs = append([]artifact.ArtifactRef{}, refs...)
}

// SetOutputs declares the produced artifacts.
func (b *Base) SetOutputs(refs ...artifact.ArtifactRef) {
	b.outputs = append([]artifact.ArtifactRef{}, refs...)
}

// Info implements Task.Info.
func (b *Base) Info() Info {
	return b.info
}

// Inputs implements Task.Inputs.
func (b *Base) Inputs() []artifact.ArtifactRef {
	return append([]artifact.ArtifactRef{}, b.inputs...)
}

// Outputs implements Task.Outputs.
func (b *Base) Outputs() []artifact.ArtifactRef {
	return append([]artifact.ArtifactRef{}, b.outputs...)
}

// Gate applies the standard artifact checks: a missing input yields
// OutcomePreconditionUnmet, present outputs yield OutcomeAlreadyComplete.
// When ok is false the caller should proceed with its action.
func (b *Base) Gate(unit *Unit) (Result, bool, error) {
	ready, missing, err := unit.Artifacts.Ready(b.inputs...)
	if err != nil {
		return Failed(), true, fmt.Errorf("%s: %w", b.info.ID, err)
	}
	if !ready {
		return Result{Outcome: OutcomePreconditionUnmet, Message: fmt.Sprintf("waiting for %s", missing.Name)}, true, nil
	}
	if len(b.outputs) == 0 {
		return Result{}, false, nil
	}
	done, _, err := unit.Artifacts.Ready(b.outputs...)
	if err != nil {
		return Failed(), true, fmt.Errorf("%s: %w", b.info.ID, err)
	}
	if done {
		return Result{Outcome: OutcomeAlreadyComplete, Message: "outputs present"}, true, nil
	}
	return Result{}, false, nil
}
