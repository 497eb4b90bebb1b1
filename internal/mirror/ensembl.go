package mirror

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/biggstd/pynome/internal/assembly"
	"github.com/biggstd/pynome/internal/crawler"
	"github.com/biggstd/pynome/internal/workdir"
)

// DefaultRsyncModules maps Ensembl FTP hosts to the rsync module that serves
// the same tree.
var DefaultRsyncModules = map[string]string{
	"ftp.ensembl.org":        "ensembl",
	"ftp.ensemblgenomes.org": "all",
}

// Ensembl mirrors entries produced by the Ensembl crawlers.
type Ensembl struct {
	modules map[string]string
}

// NewEnsembl builds the process. modules overrides DefaultRsyncModules per
// host.
func NewEnsembl(modules map[string]string) *Ensembl {
	merged := make(map[string]string, len(DefaultRsyncModules)+len(modules))
	for host, module := range DefaultRsyncModules {
		merged[host] = module
	}
	for host, module := range modules {
		if strings.TrimSpace(module) != "" {
			merged[host] = strings.Trim(strings.TrimSpace(module), "/")
		}
	}
	return &Ensembl{modules: merged}
}

// MirrorType implements Process.
func (e *Ensembl) MirrorType() string {
	return crawler.MirrorTypeEnsembl
}

// Assembly implements Process. Entries without a taxonomy ID cannot be given
// a working directory and are skipped.
func (e *Ensembl) Assembly(entry assembly.Entry) (assembly.Assembly, error) {
	if strings.TrimSpace(entry.TaxonomyID) == "" {
		return assembly.Assembly{}, fmt.Errorf("%w: no taxonomy id", ErrSkip)
	}
	fasta, err := e.RsyncURL(entry.MirrorData[assembly.DataFasta])
	if err != nil {
		return assembly.Assembly{}, err
	}
	gff, err := e.RsyncURL(entry.MirrorData[assembly.DataGff3])
	if err != nil {
		return assembly.Assembly{}, err
	}
	// Empty unless the crawler indexed companion files.
	gtf, err := e.RsyncURL(entry.MirrorData[assembly.DataGtf])
	if err != nil {
		return assembly.Assembly{}, err
	}
	cdna, err := e.RsyncURL(entry.MirrorData[assembly.DataCDNA])
	if err != nil {
		return assembly.Assembly{}, err
	}
	return assembly.Assembly{
		TaxonomyID:        entry.TaxonomyID,
		Name:              entry.AssemblyID,
		Genus:             entry.Genus,
		Species:           entry.Species,
		IntraspecificName: entry.IntraspecificName,
		MirrorType:        entry.MirrorType,
		Metadata: workdir.Metadata{
			workdir.MetaFasta: fasta,
			workdir.MetaGff:   gff,
			workdir.MetaGtf:   gtf,
			workdir.MetaCDNA:  cdna,
		},
	}, nil
}

// RsyncURL rewrites ftp://host/path as rsync://host/<module>/path. An empty
// input stays empty.
func (e *Ensembl) RsyncURL(ftpURL string) (string, error) {
	ftpURL = strings.TrimSpace(ftpURL)
	if ftpURL == "" {
		return "", nil
	}
	u, err := url.Parse(ftpURL)
	if err != nil {
		return "", fmt.Errorf("mirror: parse %q: %w", ftpURL, err)
	}
	if u.Scheme != "ftp" || u.Host == "" {
		return "", fmt.Errorf("mirror: %q is not an ftp url", ftpURL)
	}
	p := u.Path
	if module := e.modules[u.Hostname()]; module != "" {
		p = path.Join("/", module, p)
	}
	return "rsync://" + u.Host + p, nil
}
