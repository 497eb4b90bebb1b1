package task

import (
	"errors"
	"fmt"
)

// ErrDuplicate is returned when an ID is registered twice.
var ErrDuplicate = errors.New("task: already registered")

// Config represents task-specific configuration (opaque to the pipeline).
type Config map[string]any

// Factory constructs a task with the provided configuration.
type Factory func(Config) (Task, error)

// Registry maintains known task factories in registration order. The order
// is the dependency order: later tasks consume earlier tasks' outputs.
//
// A registry is filled once at start-up and only read afterwards, so it
// carries no lock.
type Registry struct {
	order     []string
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a task factory. Returns an error if the ID already exists.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("task: id is required")
	}
	if factory == nil {
		return fmt.Errorf("task: factory is required for %s", id)
	}
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	r.factories[id] = factory
	r.order = append(r.order, id)
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs a task by ID.
func (r *Registry) Resolve(id string, cfg Config) (Task, error) {
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("task: unknown id %s", id)
	}
	t, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if err := t.Info().Validate(); err != nil {
		return nil, err
	}
	if t.Info().ID != id {
		return nil, fmt.Errorf("task: factory for %s built %s", id, t.Info().ID)
	}
	return t, nil
}

// Build constructs a fresh instance of every registered task, in order.
func (r *Registry) Build() ([]Task, error) {
	tasks := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		t, err := r.Resolve(id, nil)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// IDs returns the registered identifiers in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Len reports how many tasks are registered.
func (r *Registry) Len() int {
	return len(r.order)
}
