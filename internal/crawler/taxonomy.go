package crawler

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// TaxonomyTable maps "genus_species.assemblyId" style keys to taxonomy IDs.
// It lives for one crawl.
type TaxonomyTable map[string]string

// Lookup returns the taxonomy ID for key, or "".
func (t TaxonomyTable) Lookup(key string) string {
	if t == nil {
		return ""
	}
	return t[key]
}

const taxonomyMinFields = 5

// ParseTaxonomy reads a tab-separated species file. The first line is the
// header and is always discarded, as are later lines starting with '#'. A row
// contributes field[1]+"."+field[4] -> field[3] when it has at least five
// fields.
func ParseTaxonomy(r io.Reader) (TaxonomyTable, error) {
	table := TaxonomyTable{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	header := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if header {
			header = false
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < taxonomyMinFields {
			continue
		}
		table[fields[1]+"."+fields[4]] = fields[3]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("crawler: read taxonomy: %w", err)
	}
	return table, nil
}
