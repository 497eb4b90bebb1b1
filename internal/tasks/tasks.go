package tasks

import (
	"strings"

	"github.com/biggstd/pynome/internal/task"
)

// Task identifiers, listed in registration order.
const (
	DownloadFastaID    = "download_fasta"
	DownloadGffID      = "download_gff"
	DownloadGtfID      = "download_gtf"
	DownloadCDNAID     = "download_cdna"
	WriteGtfID         = "write_gtf"
	WriteCDNAID        = "write_cdna"
	WriteSpliceSitesID = "write_splice_sites"
	IndexHisatID       = "index_hisat"
	IndexSalmonID      = "index_salmon"
	IndexKallistoID    = "index_kallisto"
)

// Toolset names the external binaries the builtin tasks invoke.
type Toolset struct {
	Gffread     string
	SpliceSites string
	HisatBuild  string
	Salmon      string
	Kallisto    string
}

// DefaultToolset returns the conventional binary names.
func DefaultToolset() Toolset {
	return Toolset{
		Gffread:     "gffread",
		SpliceSites: "hisat2_extract_splice_sites.py",
		HisatBuild:  "hisat2-build",
		Salmon:      "salmon",
		Kallisto:    "kallisto",
	}
}

// WithDefaults fills blank entries with the conventional names.
func (t Toolset) WithDefaults() Toolset {
	def := DefaultToolset()
	pick := func(value, fallback string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return strings.TrimSpace(value)
	}
	return Toolset{
		Gffread:     pick(t.Gffread, def.Gffread),
		SpliceSites: pick(t.SpliceSites, def.SpliceSites),
		HisatBuild:  pick(t.HisatBuild, def.HisatBuild),
		Salmon:      pick(t.Salmon, def.Salmon),
		Kallisto:    pick(t.Kallisto, def.Kallisto),
	}
}

// RegisterBuiltins installs all of the builtin task factories into the
// provided registry, in dependency order.
func RegisterBuiltins(reg *task.Registry, tools Toolset) {
	if reg == nil {
		return
	}
	tools = tools.WithDefaults()
	factories := []struct {
		id      string
		factory func() task.Task
	}{
		{DownloadFastaID, func() task.Task { return NewDownloadFasta() }},
		{DownloadGffID, func() task.Task { return NewDownloadGff() }},
		{DownloadGtfID, func() task.Task { return NewDownloadGtf() }},
		{DownloadCDNAID, func() task.Task { return NewDownloadCDNA() }},
		{WriteGtfID, func() task.Task { return NewWriteGtf(tools.Gffread) }},
		{WriteCDNAID, func() task.Task { return NewWriteCDNA(tools.Gffread) }},
		{WriteSpliceSitesID, func() task.Task { return NewWriteSpliceSites(tools.SpliceSites) }},
		{IndexHisatID, func() task.Task { return NewIndexHisat(tools.HisatBuild) }},
		{IndexSalmonID, func() task.Task { return NewIndexSalmon(tools.Salmon) }},
		{IndexKallistoID, func() task.Task { return NewIndexKallisto(tools.Kallisto) }},
	}
	for _, entry := range factories {
		build := entry.factory
		reg.MustRegister(entry.id, func(task.Config) (task.Task, error) {
			return build(), nil
		})
	}
}
