package assembly

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/biggstd/pynome/internal/workdir"
)

func sampleEntry() Entry {
	return Entry{
		Genus:      "Acyrthosiphon",
		Species:    "pisum",
		AssemblyID: "GCA_000142985.2",
		TaxonomyID: "7029",
		MirrorType: "ensembl",
		MirrorData: map[string]string{
			DataFasta: "ftp://ftp.ensemblgenomes.org/pub/metazoa/a.fa.gz",
			DataGff3:  "ftp://ftp.ensemblgenomes.org/pub/metazoa/a.gff3.gz",
		},
	}
}

func TestEntryKeyAndName(t *testing.T) {
	e := sampleEntry()
	if e.Key() != "Acyrthosiphon_pisum.GCA_000142985.2" {
		t.Fatalf("unexpected key %q", e.Key())
	}
	e.IntraspecificName = "str_LSR1"
	if e.ScientificName() != "Acyrthosiphon pisum str_LSR1" {
		t.Fatalf("unexpected name %q", e.ScientificName())
	}
}

func TestMatchSpecies(t *testing.T) {
	cases := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"Homo sapiens", true},
		{"homo_sapiens", true},
		{"  HOMO   SAPIENS ", true},
		{"mus musculus", false},
		{"homo", false},
		{"homo sapiens neanderthalensis", true},
	}
	for _, tc := range cases {
		if got := MatchSpecies(tc.filter, "Homo", "sapiens", "neanderthalensis"); got != tc.want {
			t.Fatalf("MatchSpecies(%q) = %v want %v", tc.filter, got, tc.want)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(FilePath(root))
	if err := store.AddEntry(ctx, sampleEntry()); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	human := Entry{Genus: "Homo", Species: "sapiens", AssemblyID: "GRCh38", TaxonomyID: "9606", MirrorType: "ensembl"}
	if err := store.AddEntry(ctx, human); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	// Re-adding replaces rather than duplicates.
	if err := store.AddEntry(ctx, human); err != nil {
		t.Fatalf("AddEntry again: %v", err)
	}
	a := Assembly{
		TaxonomyID: "9606",
		Name:       "GRCh38",
		Genus:      "Homo",
		Species:    "sapiens",
		MirrorType: "ensembl",
		Metadata:   workdir.Metadata{workdir.MetaFasta: "rsync://x/fa.gz", workdir.MetaGtf: ""},
	}
	if err := store.PutAssembly(ctx, a); err != nil {
		t.Fatalf("PutAssembly: %v", err)
	}

	reopened := NewFileStore(FilePath(root))
	entries, err := reopened.Entries(ctx, "")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Genus != "Acyrthosiphon" || entries[1].Genus != "Homo" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	filtered, err := reopened.Entries(ctx, "homo sapiens")
	if err != nil || len(filtered) != 1 {
		t.Fatalf("filtered entries: %+v %v", filtered, err)
	}
	got, err := reopened.Assembly(ctx, "9606", "GRCh38")
	if err != nil {
		t.Fatalf("Assembly: %v", err)
	}
	if !reflect.DeepEqual(got.Metadata, a.Metadata) {
		t.Fatalf("metadata mismatch: %+v", got.Metadata)
	}
	if _, err := reopened.Assembly(ctx, "9606", "GRCh37"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestFileStoreAddEntries(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(FilePath(root))

	bad := []Entry{sampleEntry(), {Genus: "Homo", Species: "sapiens"}}
	if err := store.AddEntries(ctx, bad); err == nil {
		t.Fatalf("expected error for entry without assembly id")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatalf("invalid batch must not be written: %v", err)
	}

	human := Entry{Genus: "Homo", Species: "sapiens", AssemblyID: "GRCh38", TaxonomyID: "9606", MirrorType: "ensembl"}
	if err := store.AddEntries(ctx, []Entry{human, sampleEntry()}); err != nil {
		t.Fatalf("AddEntries: %v", err)
	}
	entries, err := NewFileStore(FilePath(root)).Entries(ctx, "")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Genus != "Acyrthosiphon" || entries[1].Genus != "Homo" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if err := store.AddEntries(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("entries: [unterminated"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := NewFileStore(path).Entries(context.Background(), ""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestReadJob(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteJobs(dir, "", []Job{{TaxonomyID: "9606", AssemblyName: "GRCh38"}, {TaxonomyID: "10090", AssemblyName: "GRCm39"}})
	if err != nil {
		t.Fatalf("WriteJobs: %v", err)
	}
	if filepath.Base(paths[1]) != "pynome_work_00001.txt" {
		t.Fatalf("unexpected job name %s", paths[1])
	}
	job, err := ReadJob(paths[1])
	if err != nil {
		t.Fatalf("ReadJob: %v", err)
	}
	if job != (Job{TaxonomyID: "10090", AssemblyName: "GRCm39"}) {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestReadJobMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.txt")
	for _, body := range []string{"", "9606\n", "9606\nGRCh38\nextra\n"} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if _, err := ReadJob(path); !errors.Is(err, ErrMalformedJob) {
			t.Fatalf("body %q: expected ErrMalformedJob got %v", body, err)
		}
	}
}

func TestSQLStore(t *testing.T) {
	dsn := os.Getenv("PYNOME_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PYNOME_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := OpenSQL(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	defer store.Close()
	human := Entry{Genus: "Homo", Species: "sapiens", AssemblyID: "GRCh38", TaxonomyID: "9606", MirrorType: "ensembl"}
	if err := store.AddEntries(ctx, []Entry{sampleEntry(), human}); err != nil {
		t.Fatalf("AddEntries: %v", err)
	}
	entries, err := store.Entries(ctx, "acyrthosiphon pisum")
	if err != nil || len(entries) == 0 {
		t.Fatalf("Entries: %+v %v", entries, err)
	}
	a := Assembly{TaxonomyID: "7029", Name: "GCA_000142985.2", Genus: "Acyrthosiphon", Species: "pisum", MirrorType: "ensembl", Metadata: workdir.Metadata{"fasta": "x"}}
	if err := store.PutAssembly(ctx, a); err != nil {
		t.Fatalf("PutAssembly: %v", err)
	}
	got, err := store.Assembly(ctx, "7029", "GCA_000142985.2")
	if err != nil || got.Metadata.Get("fasta") != "x" {
		t.Fatalf("Assembly: %+v %v", got, err)
	}
}
