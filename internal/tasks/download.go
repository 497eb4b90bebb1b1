package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/workdir"
)

// Download mirrors one remote gzip file into the working directory and
// inflates it next to the compressed copy. The compressed copy is kept so
// later rsync runs can compare against it and skip the transfer.
type Download struct {
	task.Base
	metaKey string
	output  artifact.ArtifactRef
}

func newDownload(id, name, metaKey string, output artifact.ArtifactRef) *Download {
	d := &Download{
		Base: task.NewBase(task.Info{
			ID:          id,
			Name:        name,
			Description: fmt.Sprintf("Mirrors the %q source and decompresses it.", metaKey),
		}),
		metaKey: metaKey,
		output:  output,
	}
	d.SetOutputs(output)
	return d
}

// NewDownloadFasta builds download_fasta.
func NewDownloadFasta() *Download {
	return newDownload(DownloadFastaID, "Download FASTA", workdir.MetaFasta, artifact.Fasta)
}

// NewDownloadGff builds download_gff.
func NewDownloadGff() *Download {
	return newDownload(DownloadGffID, "Download GFF", workdir.MetaGff, artifact.Gff)
}

// NewDownloadGtf builds download_gtf.
func NewDownloadGtf() *Download {
	return newDownload(DownloadGtfID, "Download GTF", workdir.MetaGtf, artifact.Gtf)
}

// NewDownloadCDNA builds download_cdna.
func NewDownloadCDNA() *Download {
	return newDownload(DownloadCDNAID, "Download cDNA", workdir.MetaCDNA, artifact.CDNA)
}

// Run implements task.Task.
func (d *Download) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	id := d.Info().ID
	if err := validateUnit(id, unit); err != nil {
		return task.Failed(), err
	}
	remote := unit.Metadata.Get(d.metaKey)
	if remote == "" {
		return task.Result{Outcome: task.OutcomePreconditionUnmet, Message: fmt.Sprintf("no %s source", d.metaKey)}, nil
	}
	if result, handled, err := d.Gate(unit); handled {
		return result, err
	}
	if unit.Sync == nil {
		return task.Failed(), fmt.Errorf("%s: syncer is required", id)
	}

	dest := d.output.Path(unit.Dir)
	compressed := dest + workdir.ExtCompressed
	unit.Log.Info("%s: syncing %s", id, remote)
	changed, err := unit.Sync.Sync(ctx, remote, compressed)
	if err != nil {
		return task.Failed(), fmt.Errorf("%s: sync %s: %w", id, remote, err)
	}
	if !changed {
		unit.Log.Info("%s: %s already current", id, filepath.Base(compressed))
	}
	if err := decompress(compressed, dest); err != nil {
		return task.Failed(), fmt.Errorf("%s: %w", id, err)
	}
	return task.Performed("wrote %s", filepath.Base(dest)), nil
}
