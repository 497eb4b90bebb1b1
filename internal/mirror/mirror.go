// Package mirror turns crawled entries into local assemblies: a working
// directory below the species root, a metadata.yaml naming the remote
// sources, and a record in the assembly store. File transfers happen later,
// in the download tasks of the pipeline.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/biggstd/pynome/internal/assembly"
)

// ErrSkip marks an entry a process declines to mirror.
var ErrSkip = errors.New("mirror: entry skipped")

// ErrDuplicate is returned when two processes claim the same mirror type.
var ErrDuplicate = errors.New("mirror: already registered")

// Process converts entries of one mirror type into assemblies.
type Process interface {
	MirrorType() string
	Assembly(entry assembly.Entry) (assembly.Assembly, error)
}

// Registry maps mirror types to processes.
type Registry struct {
	processes map[string]Process
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{processes: map[string]Process{}}
}

// Register adds p under its mirror type.
func (r *Registry) Register(p Process) error {
	if p == nil || p.MirrorType() == "" {
		return fmt.Errorf("mirror: process with a mirror type is required")
	}
	if _, exists := r.processes[p.MirrorType()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.MirrorType())
	}
	r.processes[p.MirrorType()] = p
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(p Process) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Lookup returns the process for mirrorType.
func (r *Registry) Lookup(mirrorType string) (Process, bool) {
	p, ok := r.processes[mirrorType]
	return p, ok
}

// Logger receives progress lines.
type Logger interface {
	Printf(format string, args ...any)
}

// Summary counts what a mirror run did.
type Summary struct {
	Mirrored int
	Skipped  int
}

// Mirrorer applies registered processes to stored entries.
type Mirrorer struct {
	registry *Registry
	store    assembly.Store
	root     string
	log      Logger
}

// NewMirrorer builds a mirrorer writing below speciesRoot.
func NewMirrorer(registry *Registry, store assembly.Store, speciesRoot string, log Logger) *Mirrorer {
	return &Mirrorer{registry: registry, store: store, root: speciesRoot, log: log}
}

// Run mirrors every stored entry matching species.
func (m *Mirrorer) Run(ctx context.Context, species string) (Summary, error) {
	var summary Summary
	entries, err := m.store.Entries(ctx, species)
	if err != nil {
		return summary, fmt.Errorf("mirror: load entries: %w", err)
	}
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		process, ok := m.registry.Lookup(entry.MirrorType)
		if !ok {
			m.printf("%d/%d %s: no process for mirror type %q", i+1, len(entries), entry.Key(), entry.MirrorType)
			summary.Skipped++
			continue
		}
		a, err := process.Assembly(entry)
		if errors.Is(err, ErrSkip) {
			m.printf("%d/%d %s: %v", i+1, len(entries), entry.Key(), err)
			summary.Skipped++
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("mirror: %s: %w", entry.Key(), err)
		}
		dir := a.Dir(m.root)
		if err := dir.Initialize(); err != nil {
			return summary, fmt.Errorf("mirror: %s: %w", entry.Key(), err)
		}
		if err := dir.WriteMetadata(a.Metadata); err != nil {
			return summary, fmt.Errorf("mirror: %s: %w", entry.Key(), err)
		}
		if err := m.store.PutAssembly(ctx, a); err != nil {
			return summary, fmt.Errorf("mirror: %s: %w", entry.Key(), err)
		}
		m.printf("%d/%d %s -> %s", i+1, len(entries), a.ScientificName(), dir.Path())
		summary.Mirrored++
	}
	return summary, nil
}

func (m *Mirrorer) printf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}
