package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/tool"
	"github.com/biggstd/pynome/internal/workdir"
)

// WriteGtf converts <root>.gff into <root>.gtf with gffread.
type WriteGtf struct {
	task.Base
	binary string
}

// NewWriteGtf builds write_gtf.
func NewWriteGtf(binary string) *WriteGtf {
	t := &WriteGtf{
		Base: task.NewBase(task.Info{
			ID:          WriteGtfID,
			Name:        "Write GTF",
			Description: "Converts the GFF annotation to GTF.",
		}),
		binary: binary,
	}
	t.SetInputs(artifact.Gff)
	t.SetOutputs(artifact.Gtf)
	return t
}

// Run implements task.Task.
func (t *WriteGtf) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	if err := validateUnit(WriteGtfID, unit); err != nil {
		return task.Failed(), err
	}
	if result, handled, err := t.Gate(unit); handled {
		return result, err
	}
	// A GTF published upstream is preferred over a converted one.
	if unit.Metadata.Get(workdir.MetaGtf) != "" {
		return task.Result{Outcome: task.OutcomeAlreadyComplete, Message: "gtf supplied remotely"}, nil
	}

	dir := unit.Dir
	temp := dir.TempGffPath()
	if err := copyFile(dir.GffPath(), temp); err != nil {
		return task.Failed(), fmt.Errorf("%s: %w", WriteGtfID, err)
	}
	defer os.Remove(temp)

	cmd := tool.Command{
		Name: t.binary,
		Args: []string{"-T", temp, "-o", dir.GtfPath()},
		Dir:  dir.Path(),
	}
	if err := runTool(ctx, unit, WriteGtfID, cmd, dir.GtfPath()); err != nil {
		return task.Failed(), err
	}
	return task.Performed("wrote %s", filepath.Base(dir.GtfPath())), nil
}

// WriteCDNA extracts transcript sequences from the genome and the GTF.
type WriteCDNA struct {
	task.Base
	binary string
}

// NewWriteCDNA builds write_cdna.
func NewWriteCDNA(binary string) *WriteCDNA {
	t := &WriteCDNA{
		Base: task.NewBase(task.Info{
			ID:          WriteCDNAID,
			Name:        "Write cDNA",
			Description: "Extracts transcript sequences with gffread.",
		}),
		binary: binary,
	}
	t.SetInputs(artifact.Fasta, artifact.Gtf)
	t.SetOutputs(artifact.CDNA)
	return t
}

// Run implements task.Task.
func (t *WriteCDNA) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	if err := validateUnit(WriteCDNAID, unit); err != nil {
		return task.Failed(), err
	}
	if result, handled, err := t.Gate(unit); handled {
		return result, err
	}

	dir := unit.Dir
	cmd := tool.Command{
		Name: t.binary,
		Args: []string{"-w", dir.CDNAPath(), "-g", dir.FastaPath(), dir.GtfPath()},
		Dir:  dir.Path(),
	}
	if err := runTool(ctx, unit, WriteCDNAID, cmd, dir.CDNAPath()); err != nil {
		return task.Failed(), err
	}
	if err := removeIfExists(dir.FastaIndexPath()); err != nil {
		unit.Log.Warn("%s: remove %s: %v", WriteCDNAID, filepath.Base(dir.FastaIndexPath()), err)
	}
	return task.Performed("wrote %s", filepath.Base(dir.CDNAPath())), nil
}

// WriteSpliceSites captures the splice-site table derived from the GTF.
type WriteSpliceSites struct {
	task.Base
	binary string
}

// NewWriteSpliceSites builds write_splice_sites.
func NewWriteSpliceSites(binary string) *WriteSpliceSites {
	t := &WriteSpliceSites{
		Base: task.NewBase(task.Info{
			ID:          WriteSpliceSitesID,
			Name:        "Write Splice Sites",
			Description: "Extracts splice sites from the GTF for HISAT2.",
		}),
		binary: binary,
	}
	t.SetInputs(artifact.Gtf)
	t.SetOutputs(artifact.SpliceSites)
	return t
}

// Run implements task.Task.
func (t *WriteSpliceSites) Run(ctx context.Context, unit *task.Unit) (task.Result, error) {
	if err := validateUnit(WriteSpliceSitesID, unit); err != nil {
		return task.Failed(), err
	}
	if result, handled, err := t.Gate(unit); handled {
		return result, err
	}
	if unit.Tools == nil {
		return task.Failed(), fmt.Errorf("%s: tool runner is required", WriteSpliceSitesID)
	}

	dir := unit.Dir
	dest := dir.SpliceSitesPath()
	err := writeAtomically(dest, func(w io.Writer) error {
		cmd := tool.Command{
			Name:   t.binary,
			Args:   []string{dir.GtfPath()},
			Dir:    dir.Path(),
			Stdout: w,
		}
		unit.Log.Info("%s: %s", WriteSpliceSitesID, cmd.String())
		if err := unit.Tools.Run(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", WriteSpliceSitesID, err)
		}
		return nil
	})
	if err != nil {
		return task.Failed(), err
	}
	return task.Performed("wrote %s", filepath.Base(dest)), nil
}

// runTool logs and runs cmd. On failure the partial output is removed so the
// next run starts from a clean slate.
func runTool(ctx context.Context, unit *task.Unit, id string, cmd tool.Command, output string) error {
	if unit.Tools == nil {
		return fmt.Errorf("%s: tool runner is required", id)
	}
	unit.Log.Info("%s: %s", id, cmd.String())
	if err := unit.Tools.Run(ctx, cmd); err != nil {
		if output != "" {
			_ = removeIfExists(output)
		}
		return fmt.Errorf("%s: %w", id, err)
	}
	return nil
}
