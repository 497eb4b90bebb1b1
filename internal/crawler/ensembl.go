package crawler

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/biggstd/pynome/internal/assembly"
	"github.com/biggstd/pynome/internal/remote"
)

// Layout constants shared by Ensembl and the Ensembl Genomes divisions.
const (
	MirrorTypeEnsembl = "ensembl"

	releasePrefix   = "release-"
	fastaDir        = "fasta"
	gff3Dir         = "gff3"
	gtfDir          = "gtf"
	fastaSuffix     = ".dna.toplevel.fa.gz"
	cdnaSuffix      = ".cdna.all.fa.gz"
	gff3Suffix      = ".gff3.gz"
	gtfSuffix       = ".gtf.gz"
	defaultFTPRoot  = "/pub"
	defaultFTPHost  = "ftp.ensembl.org"
	defaultTaxonomy = "species_EnsemblVertebrates.txt"
)

// IgnoredFastaDirs are the non-genomic siblings of the dna directory.
var IgnoredFastaDirs = []string{"cdna", "cds", "dna_index", "ncrna", "pep"}

// EnsemblOptions parameterises the Ensembl strategy so one implementation
// serves ftp.ensembl.org and every Ensembl Genomes division.
type EnsemblOptions struct {
	Name         string
	Host         string
	Root         string
	TaxonomyFile string
	// CompanionFiles adds a gtf/ walk and lets the FASTA walk descend into
	// cdna/, recording published GTF and cDNA files beside each entry.
	CompanionFiles bool
	Timeout        time.Duration
	RetryDelay     time.Duration
	// Dialer overrides the FTP dialer built from Host and Timeout.
	Dialer remote.Dialer
	Logger remote.Logger
}

// Ensembl crawls the newest release of an Ensembl-style FTP site.
type Ensembl struct {
	opts EnsemblOptions
}

// NewEnsembl fills defaults for blank options.
func NewEnsembl(opts EnsemblOptions) *Ensembl {
	if opts.Name == "" {
		opts.Name = MirrorTypeEnsembl
	}
	if opts.Host == "" {
		opts.Host = defaultFTPHost
	}
	if opts.Root == "" {
		opts.Root = defaultFTPRoot
	}
	if opts.TaxonomyFile == "" {
		opts.TaxonomyFile = defaultTaxonomy
	}
	if opts.Dialer == nil {
		opts.Dialer = remote.FTPDialer{Host: opts.Host, Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger{}
	}
	return &Ensembl{opts: opts}
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Name implements Crawler.
func (e *Ensembl) Name() string {
	return e.opts.Name
}

// Crawl implements Crawler.
func (e *Ensembl) Crawl(ctx context.Context, species string, sink Sink) error {
	log := e.opts.Logger
	session := remote.NewSession(e.opts.Dialer, remote.WithRetryDelay(e.opts.RetryDelay), remote.WithLogger(log))
	defer session.Close()

	listing, err := session.List(ctx, e.opts.Root)
	if err != nil {
		return fmt.Errorf("crawler: %s: list %s: %w", e.opts.Name, e.opts.Root, err)
	}
	release, ok := LatestRelease(listing)
	if !ok {
		log.Printf("%s: no release directory under %s", e.opts.Name, e.opts.Root)
		return nil
	}
	releaseDir := path.Join(e.opts.Root, releasePrefix+strconv.Itoa(release))
	log.Printf("%s: crawling %s", e.opts.Name, releaseDir)

	taxonomy, err := e.loadTaxonomy(ctx, session, releaseDir)
	if err != nil {
		return err
	}

	fasta, cdna, err := e.walkFasta(ctx, session, releaseDir)
	if err != nil {
		return fmt.Errorf("crawler: %s: fasta: %w", e.opts.Name, err)
	}
	gff3, err := remote.NewWalker(session, remote.WithProgress(log)).
		Walk(ctx, path.Join(releaseDir, gff3Dir), remote.SuffixMatcher("."+strconv.Itoa(release)+gff3Suffix))
	if err != nil {
		return fmt.Errorf("crawler: %s: gff3: %w", e.opts.Name, err)
	}

	var gtf map[string]string
	if e.opts.CompanionFiles {
		gtf, err = e.walkOptional(ctx, session, path.Join(releaseDir, gtfDir), remote.SuffixMatcher("."+strconv.Itoa(release)+gtfSuffix))
		if err != nil {
			return fmt.Errorf("crawler: %s: gtf: %w", e.opts.Name, err)
		}
	}

	var matched []assembly.Entry
	for _, entry := range Merge(e.urls(fasta), e.urls(gff3), taxonomy, MirrorTypeEnsembl) {
		if !assembly.MatchSpecies(species, entry.Genus, entry.Species, entry.IntraspecificName) {
			continue
		}
		if p, ok := gtf[entry.Key()]; ok {
			entry.MirrorData[assembly.DataGtf] = e.url(p)
		}
		if p, ok := cdna[entry.Key()]; ok {
			entry.MirrorData[assembly.DataCDNA] = e.url(p)
		}
		matched = append(matched, entry)
	}
	if err := Emit(ctx, sink, matched); err != nil {
		return fmt.Errorf("crawler: %s: %w", e.opts.Name, err)
	}
	log.Printf("%s: %d assemblies (fasta %d, gff3 %d, reconnects %d)", e.opts.Name, len(matched), len(fasta), len(gff3), session.Reconnects())
	return nil
}

func (e *Ensembl) loadTaxonomy(ctx context.Context, session *remote.Session, releaseDir string) (TaxonomyTable, error) {
	file := path.Join(releaseDir, e.opts.TaxonomyFile)
	data, err := session.ReadFile(ctx, file)
	if err != nil {
		if remote.IsPermanent(err) {
			e.opts.Logger.Printf("%s: taxonomy file %s unavailable: %v", e.opts.Name, file, err)
			return TaxonomyTable{}, nil
		}
		return nil, fmt.Errorf("crawler: %s: fetch %s: %w", e.opts.Name, file, err)
	}
	return ParseTaxonomy(bytes.NewReader(data))
}

// walkFasta indexes toplevel genomes and, with CompanionFiles, the cDNA sets
// in the same pass.
func (e *Ensembl) walkFasta(ctx context.Context, session *remote.Session, releaseDir string) (map[string]string, map[string]string, error) {
	root := path.Join(releaseDir, fastaDir)
	if !e.opts.CompanionFiles {
		fasta, err := remote.NewWalker(session, remote.WithIgnore(IgnoredFastaDirs...), remote.WithProgress(e.opts.Logger)).
			Walk(ctx, root, remote.SuffixMatcher(fastaSuffix))
		return fasta, nil, err
	}
	var ignore []string
	for _, name := range IgnoredFastaDirs {
		if name != "cdna" {
			ignore = append(ignore, name)
		}
	}
	found, err := remote.NewWalker(session, remote.WithIgnore(ignore...), remote.WithProgress(e.opts.Logger)).
		Walk(ctx, root, kindMatcher(map[string]string{fastaDir: fastaSuffix, assembly.DataCDNA: cdnaSuffix}))
	if err != nil {
		return nil, nil, err
	}
	kinds := splitKinds(found)
	return kinds[fastaDir], kinds[assembly.DataCDNA], nil
}

// walkOptional walks a tree that some releases do not publish. A refused
// root listing yields an empty result.
func (e *Ensembl) walkOptional(ctx context.Context, session *remote.Session, root string, match remote.Matcher) (map[string]string, error) {
	found, err := remote.NewWalker(session, remote.WithProgress(e.opts.Logger)).Walk(ctx, root, match)
	if remote.IsPermanent(err) {
		e.opts.Logger.Printf("%s: %s unavailable: %v", e.opts.Name, root, err)
		return map[string]string{}, nil
	}
	return found, err
}

// kindMatcher keys a match as "<kind>/<key>" so one walk can collect several
// file kinds. File names never contain '/'.
func kindMatcher(suffixes map[string]string) remote.Matcher {
	return func(name string) (string, bool) {
		for kind, suffix := range suffixes {
			if key, ok := remote.SuffixMatcher(suffix)(name); ok {
				return kind + "/" + key, true
			}
		}
		return "", false
	}
}

func splitKinds(found map[string]string) map[string]map[string]string {
	out := map[string]map[string]string{}
	for composite, p := range found {
		kind, key, ok := strings.Cut(composite, "/")
		if !ok {
			continue
		}
		if out[kind] == nil {
			out[kind] = map[string]string{}
		}
		out[kind][key] = p
	}
	return out
}

func (e *Ensembl) url(p string) string {
	return "ftp://" + e.opts.Host + p
}

func (e *Ensembl) urls(found map[string]string) map[string]string {
	out := make(map[string]string, len(found))
	for key, p := range found {
		out[key] = e.url(p)
	}
	return out
}

// LatestRelease returns the highest N among "release-N" directories.
func LatestRelease(entries []remote.Entry) (int, bool) {
	best := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name, releasePrefix) {
			continue
		}
		digits := strings.TrimPrefix(entry.Name, releasePrefix)
		if digits == "" || strings.Trim(digits, "0123456789") != "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	return best, best > 0
}
