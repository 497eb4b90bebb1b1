package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/tool"
)

// IndexHisat builds the HISAT2 index under <workdir>/hisat2/.
type IndexHisat struct {
	task.Base
	binary string
}

// NewIndexHisat builds index_hisat.
func NewIndexHisat(binary string) *IndexHisat {
	t := &IndexHisat{
		Base: task.NewBase(task.Info{
			ID:          IndexHisatID,
			Name:        "HISAT2 Index",
			Description: "Builds the HISAT2 genome index.",
		}),
		binary: binary,
	}
	t.SetInputs(artifact.Fasta)
	t.SetOutputs(artifact.HisatIndex)
	return t
}

// Run implements task.Task.
func (t *IndexHisat) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	if err := validateUnit(IndexHisatID, unit); err != nil {
		return task.Failed(), err
	}
	if result, handled, err := t.Gate(unit); handled {
		return result, err
	}
	dir := unit.Dir
	if err := os.MkdirAll(dir.HisatDir(), 0o755); err != nil {
		return task.Failed(), fmt.Errorf("%s: create %s: %w", IndexHisatID, dir.HisatDir(), err)
	}
	cmd := tool.Command{
		Name: t.binary,
		Args: []string{"-p", strconv.Itoa(unit.CPUs), dir.FastaPath(), dir.HisatIndexBase()},
		Dir:  dir.Path(),
	}
	// hisat2-build writes several volumes; clearing the directory on failure
	// keeps the first volume from signalling a finished index.
	if err := runTool(ctx, unit, IndexHisatID, cmd, dir.HisatDir()); err != nil {
		return task.Failed(), err
	}
	return task.Performed("indexed %s", filepath.Base(dir.FastaPath())), nil
}

// IndexSalmon builds the salmon transcriptome index.
type IndexSalmon struct {
	task.Base
	binary string
}

// NewIndexSalmon builds index_salmon.
func NewIndexSalmon(binary string) *IndexSalmon {
	t := &IndexSalmon{
		Base: task.NewBase(task.Info{
			ID:          IndexSalmonID,
			Name:        "Salmon Index",
			Description: "Builds the salmon transcriptome index.",
		}),
		binary: binary,
	}
	t.SetInputs(artifact.CDNA)
	t.SetOutputs(artifact.SalmonIndex)
	return t
}

// Run implements task.Task.
func (t *IndexSalmon) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	if err := validateUnit(IndexSalmonID, unit); err != nil {
		return task.Failed(), err
	}
	if result, handled, err := t.Gate(unit); handled {
		return result, err
	}
	dir := unit.Dir
	staging := dir.SalmonDir() + ".tmp"
	if err := removeIfExists(staging); err != nil {
		return task.Failed(), fmt.Errorf("%s: clear %s: %w", IndexSalmonID, staging, err)
	}
	cmd := tool.Command{
		Name: t.binary,
		Args: []string{"index", "-p", strconv.Itoa(unit.CPUs), "-t", dir.CDNAPath(), "-i", staging},
		Dir:  dir.Path(),
	}
	if err := runTool(ctx, unit, IndexSalmonID, cmd, staging); err != nil {
		return task.Failed(), err
	}
	if err := os.Rename(staging, dir.SalmonDir()); err != nil {
		return task.Failed(), fmt.Errorf("%s: publish index: %w", IndexSalmonID, err)
	}
	return task.Performed("indexed %s", filepath.Base(dir.CDNAPath())), nil
}

// IndexKallisto builds the kallisto transcriptome index.
type IndexKallisto struct {
	task.Base
	binary string
}

// NewIndexKallisto builds index_kallisto.
func NewIndexKallisto(binary string) *IndexKallisto {
	t := &IndexKallisto{
		Base: task.NewBase(task.Info{
			ID:          IndexKallistoID,
			Name:        "Kallisto Index",
			Description: "Builds the kallisto transcriptome index.",
		}),
		binary: binary,
	}
	t.SetInputs(artifact.CDNA)
	t.SetOutputs(artifact.KallistoIndex)
	return t
}

// Run implements task.Task.
func (t *IndexKallisto) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	if err := validateUnit(IndexKallistoID, unit); err != nil {
		return task.Failed(), err
	}
	if result, handled, err := t.Gate(unit); handled {
		return result, err
	}
	dir := unit.Dir
	dest := dir.KallistoIndexPath()
	staging := dest + ".tmp"
	cmd := tool.Command{
		Name: t.binary,
		Args: []string{"index", "-i", staging, dir.CDNAPath()},
		Dir:  dir.Path(),
	}
	if err := runTool(ctx, unit, IndexKallistoID, cmd, staging); err != nil {
		return task.Failed(), err
	}
	if err := os.Rename(staging, dest); err != nil {
		return task.Failed(), fmt.Errorf("%s: publish index: %w", IndexKallistoID, err)
	}
	return task.Performed("wrote %s", filepath.Base(dest)), nil
}
