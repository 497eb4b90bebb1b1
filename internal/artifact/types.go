// Package artifact defines the filesystem-level contracts (inputs/outputs)
// that pipeline tasks exchange. Each artifact has a stable identifier, kind,
// and a resolver that maps to the actual path within an assembly working
// directory.

package artifact

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/biggstd/pynome/internal/workdir"
)

// Kind captures the storage shape of an artifact.
type Kind string

const (
	// KindFile represents a regular file that must exist.
	KindFile Kind = "file"
	// KindDirectory represents a directory that must exist.
	KindDirectory Kind = "directory"
)

// PathResolver returns the fully-qualified path to an artifact for a working directory.
type PathResolver func(*workdir.Dir) string

// ArtifactRef declares a stable identifier and metadata for an artifact.
type ArtifactRef struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	path        PathResolver
}

// New builds a reference outside the canonical catalog (plugin tasks use this).
func New(id, name string, kind Kind, resolver PathResolver) ArtifactRef {
	return ArtifactRef{ID: id, Name: name, Kind: kind, path: resolver}
}

// Path resolves the artifact path for the provided working directory.
func (r ArtifactRef) Path(dir *workdir.Dir) string {
	if dir == nil || r.path == nil {
		return ""
	}
	return filepath.Clean(r.path(dir))
}

// Validate ensures the reference is well-formed.
func (r ArtifactRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.path == nil {
		return fmt.Errorf("artifact: path resolver missing for %s", r.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref   ArtifactRef
	Path  string
	State State
	Err   error
}

// helper to register global references
func register(ref ArtifactRef) ArtifactRef {
	if refs == nil {
		refs = map[string]ArtifactRef{}
	}
	refs[ref.ID] = ref
	return ref
}

var refs map[string]ArtifactRef

// Lookup returns a catalog artifact reference by ID.
func Lookup(id string) (ArtifactRef, bool) {
	ref, ok := refs[id]
	return ref, ok
}

// IDs lists the catalog identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func newFileRef(id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindFile,
		path:        resolver,
	}
}

func newDirectoryRef(id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindDirectory,
		path:        resolver,
	}
}

// Canonical artifact references for an assembly working directory.
var (
	Fasta       = register(newFileRef("fasta", "Genome FASTA", "<root>.fa genome sequence", func(d *workdir.Dir) string { return d.FastaPath() }))
	Gff         = register(newFileRef("gff", "GFF Annotation", "<root>.gff annotation", func(d *workdir.Dir) string { return d.GffPath() }))
	Gtf         = register(newFileRef("gtf", "GTF Annotation", "<root>.gtf annotation", func(d *workdir.Dir) string { return d.GtfPath() }))
	CDNA        = register(newFileRef("cdna", "cDNA FASTA", "<root>.cdna.fa transcript sequences", func(d *workdir.Dir) string { return d.CDNAPath() }))
	SpliceSites = register(newFileRef("splice-sites", "Splice Sites", "<root>.Splice_sites extracted from the GTF", func(d *workdir.Dir) string { return d.SpliceSitesPath() }))

	HisatIndex    = register(newFileRef("hisat2-index", "HISAT2 Index", "first HISAT2 index volume", func(d *workdir.Dir) string { return d.HisatIndexBase() + workdir.ExtHisatIndex }))
	SalmonIndex   = register(newDirectoryRef("salmon-index", "Salmon Index", "salmon index directory", func(d *workdir.Dir) string { return d.SalmonDir() }))
	KallistoIndex = register(newFileRef("kallisto-index", "Kallisto Index", "<root>.kallisto.idx", func(d *workdir.Dir) string { return d.KallistoIndexPath() }))
)
