package plugins

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/workdir"
)

// TaskDefinition describes an external-command task loaded from YAML.
//
// The struct mirrors the on-disk schema under <root>/.pynome/tasks/*.yaml.
// A definition runs one program per assembly, gated on its inputs and
// skipped once its outputs exist, exactly like the built-in tasks.
type TaskDefinition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Command     string            `json:"command" yaml:"command"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Inputs      []ArtifactBinding `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []ArtifactBinding `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Stdout names an output artifact that receives the program's standard
	// output. Empty discards it.
	Stdout string `json:"stdout,omitempty" yaml:"stdout,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def TaskDefinition) Normalized() TaskDefinition {
	clone := TaskDefinition{
		ID:          strings.TrimSpace(def.ID),
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Command:     strings.TrimSpace(def.Command),
		Stdout:      strings.TrimSpace(def.Stdout),
	}
	if clone.Name == "" {
		clone.Name = clone.ID
	}
	if len(def.Args) > 0 {
		clone.Args = append([]string{}, def.Args...)
	}
	if len(def.Inputs) > 0 {
		clone.Inputs = make([]ArtifactBinding, len(def.Inputs))
		for i, binding := range def.Inputs {
			clone.Inputs[i] = binding.normalized()
		}
	}
	if len(def.Outputs) > 0 {
		clone.Outputs = make([]ArtifactBinding, len(def.Outputs))
		for i, binding := range def.Outputs {
			clone.Outputs[i] = binding.normalized()
		}
	}
	return clone
}

// Validate ensures the definition is well-formed and references known
// artifacts.
func (def TaskDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if normalized.Command == "" {
		return fmt.Errorf("plugin %s: command is required", normalized.ID)
	}
	if err := validateBindings("inputs", normalized.Inputs); err != nil {
		return fmt.Errorf("plugin %s: %w", normalized.ID, err)
	}
	if err := validateBindings("outputs", normalized.Outputs); err != nil {
		return fmt.Errorf("plugin %s: %w", normalized.ID, err)
	}
	if len(normalized.Outputs) == 0 {
		return fmt.Errorf("plugin %s: at least one output is required", normalized.ID)
	}
	if normalized.Stdout != "" {
		found := false
		for _, out := range normalized.Outputs {
			if out.Artifact == normalized.Stdout {
				found = !out.Directory
				break
			}
		}
		if !found {
			return fmt.Errorf("plugin %s: stdout must name a file output", normalized.ID)
		}
	}
	return nil
}

// ArtifactBinding references a catalog artifact by ID, or declares a new one
// with a path relative to the working directory. "{root}" in the path expands
// to the assembly's file-name stem.
type ArtifactBinding struct {
	Artifact  string `json:"artifact" yaml:"artifact"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Directory bool   `json:"directory,omitempty" yaml:"directory,omitempty"`
}

func (binding ArtifactBinding) normalized() ArtifactBinding {
	return ArtifactBinding{
		Artifact:  strings.TrimSpace(binding.Artifact),
		Path:      strings.TrimSpace(binding.Path),
		Directory: binding.Directory,
	}
}

// Validate ensures the binding resolves.
func (binding ArtifactBinding) Validate() error {
	_, err := binding.Resolve()
	return err
}

// Resolve returns the artifact reference declared by the binding.
func (binding ArtifactBinding) Resolve() (artifact.ArtifactRef, error) {
	normalized := binding.normalized()
	if normalized.Artifact == "" {
		return artifact.ArtifactRef{}, fmt.Errorf("artifact id is required")
	}
	if normalized.Path == "" {
		ref, ok := artifact.Lookup(normalized.Artifact)
		if !ok {
			return artifact.ArtifactRef{}, fmt.Errorf("artifact %s is not registered", normalized.Artifact)
		}
		return ref, nil
	}
	if filepath.IsAbs(normalized.Path) || strings.HasPrefix(filepath.Clean(normalized.Path), "..") {
		return artifact.ArtifactRef{}, fmt.Errorf("artifact %s: path must stay inside the working directory", normalized.Artifact)
	}
	kind := artifact.KindFile
	if normalized.Directory {
		kind = artifact.KindDirectory
	}
	rel := normalized.Path
	return artifact.New(normalized.Artifact, normalized.Artifact, kind, func(d *workdir.Dir) string {
		return filepath.Join(d.Path(), strings.ReplaceAll(rel, "{root}", d.RootName()))
	}), nil
}

func validateBindings(label string, bindings []ArtifactBinding) error {
	if len(bindings) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(bindings))
	for idx, binding := range bindings {
		if err := binding.Validate(); err != nil {
			return fmt.Errorf("%s[%d]: %w", label, idx, err)
		}
		key := binding.normalized().Artifact
		if _, exists := seen[key]; exists {
			return fmt.Errorf("%s[%d]: duplicate artifact %s", label, idx, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
