package task

import (
	"github.com/biggstd/pynome/internal/artifact"
	"github.com/biggstd/pynome/internal/tool"
	"github.com/biggstd/pynome/internal/workdir"
)

// Logger is the logging sink handed to tasks.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Unit is the work context threaded through one pipeline invocation for one
// assembly. It is built per run and never persisted.
type Unit struct {
	Dir       *workdir.Dir
	Metadata  workdir.Metadata
	Log       Logger
	Artifacts *artifact.Store
	Tools     tool.Runner
	Sync      tool.Syncer
	CPUs      int
}

// NewUnit builds a Unit with an artifact store bound to dir.
func NewUnit(dir *workdir.Dir, meta workdir.Metadata, log Logger, runner tool.Runner, syncer tool.Syncer, cpus int) *Unit {
	if log == nil {
		log = nopLogger{}
	}
	if cpus <= 0 {
		cpus = 1
	}
	return &Unit{
		Dir:       dir,
		Metadata:  meta.Clone(),
		Log:       log,
		Artifacts: artifact.NewStore(dir),
		Tools:     runner,
		Sync:      syncer,
		CPUs:      cpus,
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
