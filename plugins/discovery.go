package plugins

import (
	"fmt"

	"github.com/biggstd/pynome/internal/task"
)

// RegisterCommandTasks discovers YAML task definitions in dir and appends
// them to reg after whatever is already registered. It returns the IDs added.
func RegisterCommandTasks(reg *task.Registry, dir string) ([]string, error) {
	if reg == nil {
		return nil, nil
	}
	defs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string)
	var ids []string
	for _, file := range defs {
		def := file.Definition
		if existing, ok := seen[def.ID]; ok {
			return nil, fmt.Errorf("plugin: duplicate task id %s (%s and %s)", def.ID, existing, file.Path)
		}
		seen[def.ID] = file.Path
		defCopy := def
		if err := reg.Register(defCopy.ID, func(task.Config) (task.Task, error) {
			return NewCommandTask(defCopy)
		}); err != nil {
			return nil, fmt.Errorf("plugin: register %s from %s: %w", def.ID, file.Path, err)
		}
		ids = append(ids, def.ID)
	}
	return ids, nil
}
