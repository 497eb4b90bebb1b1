package mirror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/biggstd/pynome/internal/assembly"
	"github.com/biggstd/pynome/internal/crawler"
	"github.com/biggstd/pynome/internal/workdir"
)

type lines []string

func (l *lines) Printf(format string, args ...any) {
	*l = append(*l, fmt.Sprintf(format, args...))
}

func humanEntry() assembly.Entry {
	return assembly.Entry{
		Genus:      "Homo",
		Species:    "sapiens",
		AssemblyID: "GRCh38",
		TaxonomyID: "9606",
		MirrorType: crawler.MirrorTypeEnsembl,
		MirrorData: map[string]string{
			assembly.DataFasta: "ftp://ftp.ensembl.org/pub/release-100/fasta/homo_sapiens/dna/Homo_sapiens.GRCh38.dna.toplevel.fa.gz",
			assembly.DataGff3:  "ftp://ftp.ensembl.org/pub/release-100/gff3/homo_sapiens/Homo_sapiens.GRCh38.100.gff3.gz",
		},
	}
}

func TestRsyncURL(t *testing.T) {
	e := NewEnsembl(map[string]string{"ftp.ensemblgenomes.org": "/genomes/"})
	cases := map[string]string{
		"ftp://ftp.ensembl.org/pub/release-100/x.fa.gz":           "rsync://ftp.ensembl.org/ensembl/pub/release-100/x.fa.gz",
		"ftp://ftp.ensemblgenomes.org/pub/plants/release-47/y.gz": "rsync://ftp.ensemblgenomes.org/genomes/pub/plants/release-47/y.gz",
		"ftp://mirror.example.org/pub/z.gz":                       "rsync://mirror.example.org/pub/z.gz",
		"":                                                        "",
	}
	for in, want := range cases {
		got, err := e.RsyncURL(in)
		if err != nil {
			t.Fatalf("RsyncURL(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("RsyncURL(%q) = %q want %q", in, got, want)
		}
	}
	if _, err := e.RsyncURL("https://ftp.ensembl.org/pub/x"); err == nil {
		t.Fatalf("expected error for non-ftp url")
	}
}

func TestEnsemblAssembly(t *testing.T) {
	a, err := NewEnsembl(nil).Assembly(humanEntry())
	if err != nil {
		t.Fatalf("Assembly: %v", err)
	}
	if a.TaxonomyID != "9606" || a.Name != "GRCh38" {
		t.Fatalf("unexpected assembly %+v", a)
	}
	if a.Metadata.Get(workdir.MetaGtf) != "" || a.Metadata.Get(workdir.MetaCDNA) != "" {
		t.Fatalf("gtf and cdna should be empty: %+v", a.Metadata)
	}
	if got := a.Metadata.Get(workdir.MetaGff); got != "rsync://ftp.ensembl.org/ensembl/pub/release-100/gff3/homo_sapiens/Homo_sapiens.GRCh38.100.gff3.gz" {
		t.Fatalf("unexpected gff url %q", got)
	}

	unresolved := humanEntry()
	unresolved.TaxonomyID = ""
	if _, err := NewEnsembl(nil).Assembly(unresolved); !errors.Is(err, ErrSkip) {
		t.Fatalf("expected ErrSkip got %v", err)
	}
}

func TestEnsemblAssemblyCompanionFiles(t *testing.T) {
	entry := humanEntry()
	entry.MirrorData[assembly.DataGtf] = "ftp://ftp.ensembl.org/pub/release-100/gtf/homo_sapiens/Homo_sapiens.GRCh38.100.gtf.gz"
	entry.MirrorData[assembly.DataCDNA] = "ftp://ftp.ensembl.org/pub/release-100/fasta/homo_sapiens/cdna/Homo_sapiens.GRCh38.cdna.all.fa.gz"
	a, err := NewEnsembl(nil).Assembly(entry)
	if err != nil {
		t.Fatalf("Assembly: %v", err)
	}
	if got := a.Metadata.Get(workdir.MetaGtf); got != "rsync://ftp.ensembl.org/ensembl/pub/release-100/gtf/homo_sapiens/Homo_sapiens.GRCh38.100.gtf.gz" {
		t.Fatalf("unexpected gtf url %q", got)
	}
	if got := a.Metadata.Get(workdir.MetaCDNA); got != "rsync://ftp.ensembl.org/ensembl/pub/release-100/fasta/homo_sapiens/cdna/Homo_sapiens.GRCh38.cdna.all.fa.gz" {
		t.Fatalf("unexpected cdna url %q", got)
	}
}

func TestMirrorerRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := assembly.NewFileStore(assembly.FilePath(root))
	unresolved := humanEntry()
	unresolved.AssemblyID = "GRCh37"
	unresolved.TaxonomyID = ""
	other := humanEntry()
	other.Genus, other.Species, other.MirrorType = "Mus", "musculus", "ncbi"
	for _, e := range []assembly.Entry{humanEntry(), unresolved, other} {
		if err := store.AddEntry(ctx, e); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	reg := NewRegistry()
	reg.MustRegister(NewEnsembl(nil))
	var log lines
	summary, err := NewMirrorer(reg, store, root, &log).Run(ctx, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Mirrored != 1 || summary.Skipped != 2 {
		t.Fatalf("unexpected summary %+v (%v)", summary, log)
	}
	dir := workdir.ForAssembly(root, "9606", "GRCh38")
	meta, err := dir.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Get(workdir.MetaFasta) == "" {
		t.Fatalf("metadata missing fasta url: %+v", meta)
	}
	if _, err := store.Assembly(ctx, "9606", "GRCh38"); err != nil {
		t.Fatalf("assembly not recorded: %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewEnsembl(nil))
	if err := reg.Register(NewEnsembl(nil)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate got %v", err)
	}
}
