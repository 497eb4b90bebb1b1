// Package assembly records discovered assembly entries and the mirrored
// assemblies derived from them. Two backends exist: a YAML file below the
// species root and a Postgres database.
package assembly

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/biggstd/pynome/internal/workdir"
)

// ErrNotFound is returned when an assembly is not recorded.
var ErrNotFound = errors.New("assembly: not found")

// Mirror data keys set by crawlers. DataGtf and DataCDNA are only present
// when the remote publishes them and the crawler looked.
const (
	DataFasta = "fasta"
	DataGff3  = "gff3"
	DataGtf   = "gtf"
	DataCDNA  = "cdna"
)

// Entry is one candidate assembly discovered by a crawler. Entries are
// immutable once emitted.
type Entry struct {
	Genus             string            `yaml:"genus" json:"genus"`
	Species           string            `yaml:"species" json:"species"`
	IntraspecificName string            `yaml:"intraspecific_name,omitempty" json:"intraspecific_name,omitempty"`
	AssemblyID        string            `yaml:"assembly_id" json:"assembly_id"`
	TaxonomyID        string            `yaml:"taxonomy_id" json:"taxonomy_id"`
	MirrorType        string            `yaml:"mirror_type" json:"mirror_type"`
	MirrorData        map[string]string `yaml:"mirror_data" json:"mirror_data"`
}

// Key identifies the entry the way remote file names do:
// Genus_species[_intraspecific].assemblyId.
func (e Entry) Key() string {
	return nameKey(e.Genus, e.Species, e.IntraspecificName) + "." + e.AssemblyID
}

// ScientificName renders "Genus species [intraspecific]".
func (e Entry) ScientificName() string {
	return joinNonEmpty(" ", e.Genus, e.Species, e.IntraspecificName)
}

// Assembly is a mirrored assembly with a local working directory.
type Assembly struct {
	TaxonomyID        string           `yaml:"taxonomy_id" json:"taxonomy_id"`
	Name              string           `yaml:"name" json:"name"`
	Genus             string           `yaml:"genus" json:"genus"`
	Species           string           `yaml:"species" json:"species"`
	IntraspecificName string           `yaml:"intraspecific_name,omitempty" json:"intraspecific_name,omitempty"`
	MirrorType        string           `yaml:"mirror_type" json:"mirror_type"`
	Metadata          workdir.Metadata `yaml:"metadata" json:"metadata"`
}

// ScientificName renders "Genus species [intraspecific]".
func (a Assembly) ScientificName() string {
	return joinNonEmpty(" ", a.Genus, a.Species, a.IntraspecificName)
}

// Dir returns the working directory of the assembly below speciesRoot.
func (a Assembly) Dir(speciesRoot string) *workdir.Dir {
	return workdir.ForAssembly(speciesRoot, a.TaxonomyID, a.Name)
}

// Store persists entries and assemblies.
type Store interface {
	// AddEntry records or replaces an entry, keyed by Entry.Key.
	AddEntry(ctx context.Context, entry Entry) error
	// AddEntries records a crawl's worth of entries in one write.
	AddEntries(ctx context.Context, entries []Entry) error
	Entries(ctx context.Context, species string) ([]Entry, error)
	// PutAssembly records or replaces an assembly, keyed by taxonomy ID and name.
	PutAssembly(ctx context.Context, a Assembly) error
	Assembly(ctx context.Context, taxonomyID, name string) (Assembly, error)
	Assemblies(ctx context.Context, species string) ([]Assembly, error)
	Close() error
}

// Open selects the Postgres backend when dsn is set and the file backend
// below speciesRoot otherwise.
func Open(ctx context.Context, speciesRoot, dsn string) (Store, error) {
	if strings.TrimSpace(dsn) != "" {
		return OpenSQL(ctx, dsn)
	}
	return NewFileStore(FilePath(speciesRoot)), nil
}

// MatchSpecies reports whether the filter selects the named organism. An
// empty filter selects everything. Matching ignores case and accepts either
// spaces or underscores between name parts, with or without the
// intraspecific name.
func MatchSpecies(filter, genus, species, intraspecific string) bool {
	filter = normalizeName(filter)
	if filter == "" {
		return true
	}
	if filter == normalizeName(nameKey(genus, species, "")) {
		return true
	}
	return intraspecific != "" && filter == normalizeName(nameKey(genus, species, intraspecific))
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key() < entries[j].Key() })
}

func sortAssemblies(list []Assembly) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].TaxonomyID != list[j].TaxonomyID {
			return list[i].TaxonomyID < list[j].TaxonomyID
		}
		return list[i].Name < list[j].Name
	})
}

func assemblyKey(taxonomyID, name string) string {
	return strings.TrimSpace(taxonomyID) + "/" + strings.TrimSpace(name)
}

func nameKey(genus, species, intraspecific string) string {
	return joinNonEmpty("_", genus, species, intraspecific)
}

func normalizeName(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.Join(strings.Fields(value), "_")
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func cloneData(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
