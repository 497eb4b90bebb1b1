package assembly

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/biggstd/pynome/internal/workdir"
)

// FileName is the YAML registry kept in the species root's state directory.
const FileName = "assemblies.yaml"

// FilePath returns the registry location for a species root.
func FilePath(speciesRoot string) string {
	return filepath.Join(speciesRoot, workdir.StateDir, FileName)
}

type fileDocument struct {
	Entries    []Entry    `yaml:"entries"`
	Assemblies []Assembly `yaml:"assemblies"`
}

// FileStore keeps the registry in a single YAML document, loaded on first use
// and rewritten after every change. Crawlers hand over whole batches through
// AddEntries so a crawl costs one rewrite.
type FileStore struct {
	path string

	loadOnce sync.Once
	loadErr  error
	mu       sync.RWMutex

	entries    map[string]Entry
	assemblies map[string]Assembly
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:       path,
		entries:    map[string]Entry{},
		assemblies: map[string]Assembly{},
	}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) ensureLoaded() error {
	s.loadOnce.Do(func() {
		data, err := os.ReadFile(s.path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.loadErr = fmt.Errorf("assembly: read %s: %w", s.path, err)
			}
			return
		}
		var doc fileDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			s.loadErr = fmt.Errorf("assembly: parse %s: %w", s.path, err)
			return
		}
		for _, e := range doc.Entries {
			s.entries[e.Key()] = e
		}
		for _, a := range doc.Assemblies {
			s.assemblies[assemblyKey(a.TaxonomyID, a.Name)] = a
		}
	})
	return s.loadErr
}

// save must be called with s.mu held.
func (s *FileStore) save() error {
	doc := fileDocument{
		Entries:    make([]Entry, 0, len(s.entries)),
		Assemblies: make([]Assembly, 0, len(s.assemblies)),
	}
	for _, e := range s.entries {
		doc.Entries = append(doc.Entries, e)
	}
	for _, a := range s.assemblies {
		doc.Assemblies = append(doc.Assemblies, a)
	}
	sortEntries(doc.Entries)
	sortAssemblies(doc.Assemblies)
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("assembly: encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("assembly: ensure %s: %w", filepath.Dir(s.path), err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("assembly: write registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("assembly: replace registry: %w", err)
	}
	return nil
}

// AddEntry implements Store.
func (s *FileStore) AddEntry(ctx context.Context, entry Entry) error {
	return s.AddEntries(ctx, []Entry{entry})
}

// AddEntries implements Store. The registry is rewritten once per call, and
// nothing is recorded when any entry is invalid.
func (s *FileStore) AddEntries(_ context.Context, entries []Entry) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.AssemblyID) == "" {
			return fmt.Errorf("assembly: entry %q has no assembly id", entry.Key())
		}
	}
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		entry.MirrorData = cloneData(entry.MirrorData)
		s.entries[entry.Key()] = entry
	}
	return s.save()
}

// Entries implements Store.
func (s *FileStore) Entries(_ context.Context, species string) ([]Entry, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !MatchSpecies(species, e.Genus, e.Species, e.IntraspecificName) {
			continue
		}
		e.MirrorData = cloneData(e.MirrorData)
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// PutAssembly implements Store.
func (s *FileStore) PutAssembly(_ context.Context, a Assembly) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if strings.TrimSpace(a.TaxonomyID) == "" || strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("assembly: taxonomy id and name are required")
	}
	a.Metadata = a.Metadata.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assemblies[assemblyKey(a.TaxonomyID, a.Name)] = a
	return s.save()
}

// Assembly implements Store.
func (s *FileStore) Assembly(_ context.Context, taxonomyID, name string) (Assembly, error) {
	if err := s.ensureLoaded(); err != nil {
		return Assembly{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assemblies[assemblyKey(taxonomyID, name)]
	if !ok {
		return Assembly{}, fmt.Errorf("%w: %s %s", ErrNotFound, taxonomyID, name)
	}
	a.Metadata = a.Metadata.Clone()
	return a, nil
}

// Assemblies implements Store.
func (s *FileStore) Assemblies(_ context.Context, species string) ([]Assembly, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Assembly, 0, len(s.assemblies))
	for _, a := range s.assemblies {
		if !MatchSpecies(species, a.Genus, a.Species, a.IntraspecificName) {
			continue
		}
		a.Metadata = a.Metadata.Clone()
		out = append(out, a)
	}
	sortAssemblies(out)
	return out, nil
}

// Close implements Store. Changes are already on disk.
func (s *FileStore) Close() error {
	return nil
}
