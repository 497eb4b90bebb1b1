package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/tool"
)

// CommandTask runs the program declared by a TaskDefinition.
type CommandTask struct {
	task.Base
	def    TaskDefinition
	refs   map[string]artifact.ArtifactRef
	stdout artifact.ArtifactRef
}

// NewCommandTask resolves the definition's artifacts.
func NewCommandTask(def TaskDefinition) (*CommandTask, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def = def.Normalized()
	t := &CommandTask{
		Base: task.NewBase(task.Info{ID: def.ID, Name: def.Name, Description: def.Description}),
		def:  def,
		refs: map[string]artifact.ArtifactRef{},
	}
	inputs, err := t.resolve(def.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := t.resolve(def.Outputs)
	if err != nil {
		return nil, err
	}
	t.SetInputs(inputs...)
	t.SetOutputs(outputs...)
	if def.Stdout != "" {
		t.stdout = t.refs[def.Stdout]
	}
	return t, nil
}

func (t *CommandTask) resolve(bindings []ArtifactBinding) ([]artifact.ArtifactRef, error) {
	refs := make([]artifact.ArtifactRef, 0, len(bindings))
	for _, binding := range bindings {
		ref, err := binding.Resolve()
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", t.def.ID, err)
		}
		t.refs[ref.ID] = ref
		refs = append(refs, ref)
	}
	return refs, nil
}

// Run implements task.Task.
func (t *CommandTask) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	if unit == nil || unit.Dir == nil {
		return task.Failed(), fmt.Errorf("%s: working directory is required", t.def.ID)
	}
	if result, handled, err := t.Gate(unit); handled {
		return result, err
	}
	if unit.Tools == nil {
		return task.Failed(), fmt.Errorf("%s: tool runner is required", t.def.ID)
	}

	cmd := tool.Command{
		Name: t.def.Command,
		Args: make([]string, len(t.def.Args)),
		Dir:  unit.Dir.Path(),
	}
	for i, arg := range t.def.Args {
		cmd.Args[i] = t.expand(arg, unit)
	}

	var capture *os.File
	var capturePath string
	if t.def.Stdout != "" {
		capturePath = t.stdout.Path(unit.Dir)
		if err := os.MkdirAll(filepath.Dir(capturePath), 0o755); err != nil {
			return task.Failed(), fmt.Errorf("%s: %w", t.def.ID, err)
		}
		f, err := os.Create(capturePath + ".tmp")
		if err != nil {
			return task.Failed(), fmt.Errorf("%s: %w", t.def.ID, err)
		}
		capture = f
		cmd.Stdout = f
	}

	unit.Log.Info("%s: %s", t.def.ID, cmd.String())
	runErr := unit.Tools.Run(ctx, cmd)
	if capture != nil {
		closeErr := capture.Close()
		if runErr == nil && closeErr == nil {
			runErr = os.Rename(capturePath+".tmp", capturePath)
		} else if runErr == nil {
			runErr = closeErr
		}
		if runErr != nil {
			_ = os.Remove(capturePath + ".tmp")
		}
	}
	if runErr != nil {
		for _, out := range t.Outputs() {
			_ = os.RemoveAll(out.Path(unit.Dir))
		}
		return task.Failed(), fmt.Errorf("%s: %w", t.def.ID, runErr)
	}

	done, missing, err := unit.Artifacts.Ready(t.Outputs()...)
	if err != nil {
		return task.Failed(), fmt.Errorf("%s: %w", t.def.ID, err)
	}
	if !done {
		return task.Failed(), fmt.Errorf("%s: %s was not produced", t.def.ID, missing.ID)
	}
	return task.Performed("ran %s", filepath.Base(t.def.Command)), nil
}

// expand substitutes {workdir}, {root}, {cpus} and {<artifact id>}.
func (t *CommandTask) expand(arg string, unit *task.Unit) string {
	if !strings.Contains(arg, "{") {
		return arg
	}
	pairs := []string{
		"{workdir}", unit.Dir.Path(),
		"{root}", unit.Dir.RootName(),
		"{cpus}", strconv.Itoa(unit.CPUs),
	}
	for id, ref := range t.refs {
		pairs = append(pairs, "{"+id+"}", ref.Path(unit.Dir))
	}
	for _, id := range artifact.IDs() {
		if _, ok := t.refs[id]; ok {
			continue
		}
		ref, _ := artifact.Lookup(id)
		pairs = append(pairs, "{"+id+"}", ref.Path(unit.Dir))
	}
	return strings.NewReplacer(pairs...).Replace(arg)
}
