package tasks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/tool"
	"github.com/biggstd/pynome/internal/workdir"
)

type recordingRunner struct {
	calls  []tool.Command
	effect func(cmd tool.Command) error
}

func (r *recordingRunner) Run(_ context.Context, cmd tool.Command) error {
	r.calls = append(r.calls, cmd)
	if r.effect != nil {
		return r.effect(cmd)
	}
	return nil
}

type fakeSyncer struct {
	payload map[string]string
	calls   []string
}

func (s *fakeSyncer) Sync(_ context.Context, remote, dest string) (bool, error) {
	s.calls = append(s.calls, remote)
	body, ok := s.payload[remote]
	if !ok {
		return false, errors.New("no such remote")
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, body); err != nil {
		return false, err
	}
	if err := zw.Close(); err != nil {
		return false, err
	}
	return true, os.WriteFile(dest, buf.Bytes(), 0o644)
}

func newTestUnit(t *testing.T, meta workdir.Metadata, runner tool.Runner, syncer tool.Syncer) *task.Unit {
	t.Helper()
	dir := workdir.ForAssembly(t.TempDir(), "7227", "BDGP6")
	if err := dir.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return task.NewUnit(dir, meta, nil, runner, syncer, 4)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func snapshot(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files = append(files, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	sort.Strings(files)
	return files
}

// touchOutput emulates tools by creating the file after the given flag.
func touchOutput(flag string) func(tool.Command) error {
	return func(cmd tool.Command) error {
		for i, arg := range cmd.Args {
			if arg == flag && i+1 < len(cmd.Args) {
				return os.WriteFile(cmd.Args[i+1], []byte("out"), 0o644)
			}
		}
		return nil
	}
}

func TestRegisterBuiltinsOrder(t *testing.T) {
	reg := task.NewRegistry()
	RegisterBuiltins(reg, Toolset{})
	want := []string{
		DownloadFastaID, DownloadGffID, DownloadGtfID, DownloadCDNAID,
		WriteGtfID, WriteCDNAID, WriteSpliceSitesID,
		IndexHisatID, IndexSalmonID, IndexKallistoID,
	}
	if got := reg.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: %v", got)
	}
	built, err := reg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(built) != len(want) {
		t.Fatalf("expected %d tasks got %d", len(want), len(built))
	}
}

func TestRegisterBuiltinsTwicePanics(t *testing.T) {
	reg := task.NewRegistry()
	RegisterBuiltins(reg, Toolset{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	RegisterBuiltins(reg, Toolset{})
}

func TestDownloadDecompressesAndKeepsArchive(t *testing.T) {
	syncer := &fakeSyncer{payload: map[string]string{"rsync://host/gff": "##gff-version 3\n"}}
	unit := newTestUnit(t, workdir.Metadata{workdir.MetaGff: "rsync://host/gff"}, &recordingRunner{}, syncer)
	dl := NewDownloadGff()

	result, err := dl.Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePerformed {
		t.Fatalf("expected performed got %+v", result)
	}
	data, err := os.ReadFile(unit.Dir.GffPath())
	if err != nil {
		t.Fatalf("read gff: %v", err)
	}
	if string(data) != "##gff-version 3\n" {
		t.Fatalf("unexpected gff content %q", data)
	}
	if !workdir.FileExists(unit.Dir.GffPath() + workdir.ExtCompressed) {
		t.Fatalf("compressed copy should be kept")
	}

	again, err := dl.Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Outcome != task.OutcomeAlreadyComplete {
		t.Fatalf("expected already complete got %+v", again)
	}
	if len(syncer.calls) != 1 {
		t.Fatalf("expected single sync got %v", syncer.calls)
	}
}

func TestDownloadWithoutSourceIsPreconditionUnmet(t *testing.T) {
	syncer := &fakeSyncer{}
	unit := newTestUnit(t, workdir.Metadata{workdir.MetaGtf: ""}, &recordingRunner{}, syncer)
	before := snapshot(t, unit.Dir.Path())

	result, err := NewDownloadGtf().Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePreconditionUnmet {
		t.Fatalf("expected precondition unmet got %+v", result)
	}
	if len(syncer.calls) != 0 {
		t.Fatalf("syncer should not run")
	}
	if after := snapshot(t, unit.Dir.Path()); !reflect.DeepEqual(before, after) {
		t.Fatalf("workdir changed: %v -> %v", before, after)
	}
}

func TestWriteGtfArgv(t *testing.T) {
	runner := &recordingRunner{effect: touchOutput("-o")}
	unit := newTestUnit(t, workdir.Metadata{workdir.MetaGtf: ""}, runner, nil)
	writeFile(t, unit.Dir.GffPath(), "gff")

	task1 := NewWriteGtf("gffread")
	result, err := task1.Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePerformed {
		t.Fatalf("expected performed got %+v", result)
	}
	want := []string{"gffread", "-T", unit.Dir.TempGffPath(), "-o", unit.Dir.GtfPath()}
	if len(runner.calls) != 1 || !reflect.DeepEqual(runner.calls[0].Argv(), want) {
		t.Fatalf("unexpected calls: %+v", runner.calls)
	}
	if workdir.FileExists(unit.Dir.TempGffPath()) {
		t.Fatalf("temp gff should be removed")
	}

	second, err := task1.Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Outcome != task.OutcomeAlreadyComplete || len(runner.calls) != 1 {
		t.Fatalf("second run should skip: %+v calls=%d", second, len(runner.calls))
	}
}

func TestWriteGtfSkipsWhenRemoteGtfSupplied(t *testing.T) {
	runner := &recordingRunner{}
	unit := newTestUnit(t, workdir.Metadata{workdir.MetaGtf: "rsync://host/gtf"}, runner, nil)
	writeFile(t, unit.Dir.GffPath(), "gff")

	result, err := NewWriteGtf("gffread").Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomeAlreadyComplete {
		t.Fatalf("expected already complete got %+v", result)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("tool should not run")
	}
}

func TestWriteGtfChecksGffBeforeRemoteGtf(t *testing.T) {
	runner := &recordingRunner{}
	unit := newTestUnit(t, workdir.Metadata{workdir.MetaGtf: "rsync://host/x.gtf.gz"}, runner, nil)

	result, err := NewWriteGtf("gffread").Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePreconditionUnmet {
		t.Fatalf("expected precondition unmet got %+v", result)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("tool should not run: %v", runner.calls)
	}
}

func TestWriteGtfMissingGffLeavesDirUnchanged(t *testing.T) {
	runner := &recordingRunner{}
	unit := newTestUnit(t, nil, runner, nil)
	before := snapshot(t, unit.Dir.Path())

	result, err := NewWriteGtf("gffread").Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePreconditionUnmet {
		t.Fatalf("expected precondition unmet got %+v", result)
	}
	if after := snapshot(t, unit.Dir.Path()); !reflect.DeepEqual(before, after) {
		t.Fatalf("workdir changed: %v -> %v", before, after)
	}
}

func TestWriteCDNAArgvAndSidecarRemoval(t *testing.T) {
	var unit *task.Unit
	runner := &recordingRunner{effect: func(cmd tool.Command) error {
		writeFile(t, unit.Dir.FastaIndexPath(), "fai")
		return touchOutput("-w")(cmd)
	}}
	unit = newTestUnit(t, nil, runner, nil)
	writeFile(t, unit.Dir.FastaPath(), ">chr1\nACGT\n")
	writeFile(t, unit.Dir.GtfPath(), "gtf")

	result, err := NewWriteCDNA("gffread").Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePerformed {
		t.Fatalf("expected performed got %+v", result)
	}
	want := []string{"gffread", "-w", unit.Dir.CDNAPath(), "-g", unit.Dir.FastaPath(), unit.Dir.GtfPath()}
	if !reflect.DeepEqual(runner.calls[0].Argv(), want) {
		t.Fatalf("unexpected argv %v", runner.calls[0].Argv())
	}
	if workdir.FileExists(unit.Dir.FastaIndexPath()) {
		t.Fatalf("fasta index sidecar should be removed")
	}
}

func TestWriteCDNANeedsBothInputs(t *testing.T) {
	runner := &recordingRunner{}
	unit := newTestUnit(t, nil, runner, nil)
	writeFile(t, unit.Dir.FastaPath(), ">chr1\n")

	result, err := NewWriteCDNA("gffread").Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePreconditionUnmet {
		t.Fatalf("expected precondition unmet got %+v", result)
	}
	if !strings.Contains(result.Message, "GTF") {
		t.Fatalf("message should name the missing input: %q", result.Message)
	}
}

func TestWriteSpliceSitesCapturesStdout(t *testing.T) {
	runner := &recordingRunner{effect: func(cmd tool.Command) error {
		_, err := io.WriteString(cmd.Stdout, "chr1\t10\t20\t+\n")
		return err
	}}
	unit := newTestUnit(t, nil, runner, nil)
	writeFile(t, unit.Dir.GtfPath(), "gtf")

	result, err := NewWriteSpliceSites("hisat2_extract_splice_sites.py").Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != task.OutcomePerformed {
		t.Fatalf("expected performed got %+v", result)
	}
	want := []string{"hisat2_extract_splice_sites.py", unit.Dir.GtfPath()}
	if !reflect.DeepEqual(runner.calls[0].Argv(), want) {
		t.Fatalf("unexpected argv %v", runner.calls[0].Argv())
	}
	data, err := os.ReadFile(unit.Dir.SpliceSitesPath())
	if err != nil {
		t.Fatalf("read splice sites: %v", err)
	}
	if string(data) != "chr1\t10\t20\t+\n" {
		t.Fatalf("unexpected splice sites %q", data)
	}
}

func TestToolFailureIsFatalAndLeavesNoOutput(t *testing.T) {
	runner := &recordingRunner{effect: func(cmd tool.Command) error {
		if err := touchOutput("-o")(cmd); err != nil {
			return err
		}
		return &tool.ExitError{Argv: cmd.Argv(), Code: 1}
	}}
	unit := newTestUnit(t, nil, runner, nil)
	writeFile(t, unit.Dir.GffPath(), "gff")

	result, err := NewWriteGtf("gffread").Run(context.Background(), unit)
	if err == nil {
		t.Fatalf("expected error")
	}
	var exitErr *tool.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error got %v", err)
	}
	if result.Outcome != task.OutcomeFailed {
		t.Fatalf("expected failed got %+v", result)
	}
	if workdir.FileExists(unit.Dir.GtfPath()) {
		t.Fatalf("partial gtf should be removed")
	}
}

func TestIndexTasksArgv(t *testing.T) {
	runner := &recordingRunner{effect: func(cmd tool.Command) error {
		switch cmd.Name {
		case "hisat2-build":
			return os.WriteFile(cmd.Args[len(cmd.Args)-1]+workdir.ExtHisatIndex, []byte("ht2"), 0o644)
		case "salmon":
			return os.MkdirAll(cmd.Args[len(cmd.Args)-1], 0o755)
		case "kallisto":
			return os.WriteFile(cmd.Args[2], []byte("idx"), 0o644)
		}
		return nil
	}}
	unit := newTestUnit(t, nil, runner, nil)
	writeFile(t, unit.Dir.FastaPath(), ">chr1\n")
	writeFile(t, unit.Dir.CDNAPath(), ">tx1\n")
	ctx := context.Background()

	for _, tk := range []task.Task{NewIndexHisat("hisat2-build"), NewIndexSalmon("salmon"), NewIndexKallisto("kallisto")} {
		result, err := tk.Run(ctx, unit)
		if err != nil {
			t.Fatalf("%s: %v", tk.Info().ID, err)
		}
		if result.Outcome != task.OutcomePerformed {
			t.Fatalf("%s: expected performed got %+v", tk.Info().ID, result)
		}
	}
	dir := unit.Dir
	want := [][]string{
		{"hisat2-build", "-p", "4", dir.FastaPath(), dir.HisatIndexBase()},
		{"salmon", "index", "-p", "4", "-t", dir.CDNAPath(), "-i", dir.SalmonDir() + ".tmp"},
		{"kallisto", "index", "-i", dir.KallistoIndexPath() + ".tmp", dir.CDNAPath()},
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("expected %d calls got %d", len(want), len(runner.calls))
	}
	for i, call := range runner.calls {
		if !reflect.DeepEqual(call.Argv(), want[i]) {
			t.Fatalf("call %d: got %v want %v", i, call.Argv(), want[i])
		}
	}
	if info, err := os.Stat(dir.SalmonDir()); err != nil || !info.IsDir() {
		t.Fatalf("salmon index not published: %v", err)
	}
	if !workdir.FileExists(dir.KallistoIndexPath()) {
		t.Fatalf("kallisto index not published")
	}
}
