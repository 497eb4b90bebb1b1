// Package crawler discovers genome assemblies on remote databases. Each
// database family has a Crawler; a Registry holds the ones enabled for a run.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/biggstd/pynome/internal/assembly"
)

// ErrDuplicate is returned when two crawlers share a name.
var ErrDuplicate = errors.New("crawler: already registered")

// Sink receives discovered entries. assembly.Store satisfies it.
type Sink interface {
	AddEntry(ctx context.Context, entry assembly.Entry) error
}

// BatchSink is a Sink that can record many entries in one write.
// assembly.Store satisfies it.
type BatchSink interface {
	Sink
	AddEntries(ctx context.Context, entries []assembly.Entry) error
}

// Emit hands entries to sink, in one batch when the sink supports it.
func Emit(ctx context.Context, sink Sink, entries []assembly.Entry) error {
	if batch, ok := sink.(BatchSink); ok {
		return batch.AddEntries(ctx, entries)
	}
	for _, entry := range entries {
		if err := sink.AddEntry(ctx, entry); err != nil {
			return fmt.Errorf("add %s: %w", entry.Key(), err)
		}
	}
	return nil
}

// Crawler discovers assemblies on one remote database.
type Crawler interface {
	Name() string
	// Crawl emits every entry matching species (empty means all) into sink.
	Crawl(ctx context.Context, species string, sink Sink) error
}

// Registry maps crawler names to crawlers. It is filled at start-up and
// read-only afterwards.
type Registry struct {
	order    []string
	crawlers map[string]Crawler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{crawlers: map[string]Crawler{}}
}

// Register adds c under its name.
func (r *Registry) Register(c Crawler) error {
	if c == nil {
		return fmt.Errorf("crawler: nil crawler")
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("crawler: name is required")
	}
	if _, exists := r.crawlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.crawlers[name] = c
	r.order = append(r.order, name)
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(c Crawler) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup returns the crawler registered under name.
func (r *Registry) Lookup(name string) (Crawler, bool) {
	c, ok := r.crawlers[name]
	return c, ok
}

// All returns the crawlers in registration order.
func (r *Registry) All() []Crawler {
	out := make([]Crawler, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.crawlers[name])
	}
	return out
}

// Names lists registered names alphabetically.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}
