// internal/workdir/workdir.go
//
// Defines the layout of one assembly working directory and its file names.
// Every assembly lives at <species root>/<taxonomy id>/<assembly name>/ and
// every artifact inside it shares the same root file-name stem.

package workdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directory names within a working directory
const (
	StateDir  = ".pynome"
	HisatDir  = "hisat2"
	SalmonDir = "salmon"
)

// Artifact suffixes appended to the root name
const (
	ExtFasta         = ".fa"
	ExtFastaIndex    = ".fa.fai"
	ExtGff           = ".gff"
	ExtGtf           = ".gtf"
	ExtCDNA          = ".cdna.fa"
	ExtSpliceSites   = ".Splice_sites"
	ExtKallistoIndex = ".kallisto.idx"
	ExtHisatIndex    = ".1.ht2"
	ExtCompressed    = ".gz"
)

// Bookkeeping files
const (
	FileMetadata = "metadata.yaml"
	FileLog      = "pynome.log"
	FileState    = "state.json"
	FileTempGff  = "temp.gff"
)

// Metadata keys naming the remote sources that justified mirroring. An empty
// value means the artifact is not available remotely.
const (
	MetaFasta = "fasta"
	MetaGff   = "gff"
	MetaGtf   = "gtf"
	MetaCDNA  = "cdna"
)

// Metadata is the free-form key/value mapping attached to an assembly.
type Metadata map[string]string

// Get returns the trimmed value for key ("" when absent).
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[key])
}

// Clone returns a copy safe to mutate.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RootName derives the file-name stem shared by every artifact of an assembly.
func RootName(taxonomyID, assemblyName string) string {
	return strings.TrimSpace(taxonomyID) + "-" + strings.TrimSpace(assemblyName)
}

// PathFor returns the working directory of an assembly below the species root.
func PathFor(speciesRoot, taxonomyID, assemblyName string) string {
	return filepath.Join(speciesRoot, strings.TrimSpace(taxonomyID), strings.TrimSpace(assemblyName))
}

// Dir manages one assembly working directory.
type Dir struct {
	path string
	root string
}

// New creates a Dir rooted at path using rootName as the artifact stem.
func New(path, rootName string) *Dir {
	return &Dir{path: filepath.Clean(path), root: rootName}
}

// ForAssembly builds the Dir for (taxonomyID, assemblyName) below speciesRoot.
func ForAssembly(speciesRoot, taxonomyID, assemblyName string) *Dir {
	return New(PathFor(speciesRoot, taxonomyID, assemblyName), RootName(taxonomyID, assemblyName))
}

// Path returns the working directory path
func (d *Dir) Path() string {
	return d.path
}

// RootName returns the artifact file-name stem
func (d *Dir) RootName() string {
	return d.root
}

// Base returns <workdir>/<root>, the prefix every artifact path starts with
func (d *Dir) Base() string {
	return filepath.Join(d.path, d.root)
}

// FastaPath returns the path to <root>.fa
func (d *Dir) FastaPath() string {
	return d.Base() + ExtFasta
}

// FastaIndexPath returns the path to the samtools-style <root>.fa.fai sidecar
func (d *Dir) FastaIndexPath() string {
	return d.Base() + ExtFastaIndex
}

// GffPath returns the path to <root>.gff
func (d *Dir) GffPath() string {
	return d.Base() + ExtGff
}

// GtfPath returns the path to <root>.gtf
func (d *Dir) GtfPath() string {
	return d.Base() + ExtGtf
}

// CDNAPath returns the path to <root>.cdna.fa
func (d *Dir) CDNAPath() string {
	return d.Base() + ExtCDNA
}

// SpliceSitesPath returns the path to <root>.Splice_sites
func (d *Dir) SpliceSitesPath() string {
	return d.Base() + ExtSpliceSites
}

// TempGffPath returns the scratch copy used while converting GFF to GTF
func (d *Dir) TempGffPath() string {
	return filepath.Join(d.path, FileTempGff)
}

// HisatDir returns the directory holding the HISAT2 index
func (d *Dir) HisatDir() string {
	return filepath.Join(d.path, HisatDir)
}

// HisatIndexBase returns the basename passed to hisat2-build
func (d *Dir) HisatIndexBase() string {
	return filepath.Join(d.HisatDir(), d.root)
}

// SalmonDir returns the directory holding the salmon index
func (d *Dir) SalmonDir() string {
	return filepath.Join(d.path, SalmonDir)
}

// KallistoIndexPath returns the path to <root>.kallisto.idx
func (d *Dir) KallistoIndexPath() string {
	return d.Base() + ExtKallistoIndex
}

// StateDir returns <workdir>/.pynome
func (d *Dir) StateDir() string {
	return filepath.Join(d.path, StateDir)
}

// StatePath returns the path to the persisted pipeline state
func (d *Dir) StatePath() string {
	return filepath.Join(d.StateDir(), FileState)
}

// MetadataPath returns the path to metadata.yaml
func (d *Dir) MetadataPath() string {
	return filepath.Join(d.path, FileMetadata)
}

// LogPath returns the path to the assembly logbook
func (d *Dir) LogPath() string {
	return filepath.Join(d.path, FileLog)
}

// Initialize creates the working directory structure
func (d *Dir) Initialize() error {
	for _, dir := range []string{d.path, d.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workdir: create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the working directory is present on disk.
func (d *Dir) Exists() bool {
	info, err := os.Stat(d.path)
	return err == nil && info.IsDir()
}

// ReadMetadata loads metadata.yaml. A missing file yields empty metadata.
func (d *Dir) ReadMetadata() (Metadata, error) {
	data, err := os.ReadFile(d.MetadataPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, nil
		}
		return nil, fmt.Errorf("workdir: read metadata: %w", err)
	}
	meta := Metadata{}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("workdir: parse %s: %w", d.MetadataPath(), err)
	}
	return meta, nil
}

// WriteMetadata persists metadata.yaml, replacing any previous copy.
func (d *Dir) WriteMetadata(meta Metadata) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("workdir: ensure %s: %w", d.path, err)
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("workdir: encode metadata: %w", err)
	}
	return os.WriteFile(d.MetadataPath(), data, 0o644)
}

// FileExists reports whether path is an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
