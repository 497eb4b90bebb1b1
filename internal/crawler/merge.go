package crawler

import (
	"sort"
	"strings"

	"github.com/biggstd/pynome/internal/assembly"
)

// Name is the organism and assembly encoded in a remote file key such as
// "Acyrthosiphon_pisum.GCA_000142985.2".
type Name struct {
	Genus             string
	Species           string
	IntraspecificName string
	AssemblyID        string
}

// ParseKey splits a key on its first '.': the part before it holds
// underscore-separated genus, species and intraspecific name, the rest is the
// assembly ID.
//
// The intraspecific name is every token after the species joined with '_',
// not just the third token, so strain names such as "s288c_x" survive intact
// and their taxonomy keys resolve.
func ParseKey(key string) Name {
	parts := strings.Split(key, ".")
	names := strings.Split(parts[0], "_")
	var n Name
	n.Genus = names[0]
	if len(names) > 1 {
		n.Species = names[1]
	}
	if len(names) > 2 {
		n.IntraspecificName = strings.Join(names[2:], "_")
	}
	n.AssemblyID = strings.Join(parts[1:], ".")
	return n
}

// TaxonomyKey is the lookup key into a TaxonomyTable.
func (n Name) TaxonomyKey() string {
	tokens := make([]string, 0, 3)
	for _, t := range []string{n.Genus, n.Species, n.IntraspecificName} {
		if t != "" {
			tokens = append(tokens, strings.ToLower(t))
		}
	}
	return strings.Join(tokens, "_") + "." + n.AssemblyID
}

// Merge pairs FASTA and GFF3 paths that share a key and emits one entry per
// pair, sorted by key. Keys present in only one map are dropped.
func Merge(fasta, gff3 map[string]string, taxonomy TaxonomyTable, mirrorType string) []assembly.Entry {
	keys := make([]string, 0, len(fasta))
	for key := range fasta {
		if _, ok := gff3[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	entries := make([]assembly.Entry, 0, len(keys))
	for _, key := range keys {
		n := ParseKey(key)
		entries = append(entries, assembly.Entry{
			Genus:             n.Genus,
			Species:           n.Species,
			IntraspecificName: n.IntraspecificName,
			AssemblyID:        n.AssemblyID,
			TaxonomyID:        taxonomy.Lookup(n.TaxonomyKey()),
			MirrorType:        mirrorType,
			MirrorData: map[string]string{
				assembly.DataFasta: fasta[key],
				assembly.DataGff3:  gff3[key],
			},
		})
	}
	return entries
}
