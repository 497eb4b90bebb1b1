package tool

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// Syncer mirrors one remote file onto a local path. The returned flag is true
// when bytes were transferred, i.e. when the remote differed from dest.
type Syncer interface {
	Sync(ctx context.Context, remote, dest string) (bool, error)
}

// Rsync implements Syncer with the rsync binary. rsync compares the remote
// file against dest itself and only transfers when they differ; the
// itemized change list tells us whether anything was written.
type Rsync struct {
	Runner Runner
	Binary string
}

// NewRsync returns an rsync syncer using binary (default "rsync").
func NewRsync(runner Runner, binary string) *Rsync {
	if strings.TrimSpace(binary) == "" {
		binary = "rsync"
	}
	return &Rsync{Runner: runner, Binary: binary}
}

// Sync runs `rsync -a --itemize-changes <remote> <dest>`.
func (r *Rsync) Sync(ctx context.Context, remote, dest string) (bool, error) {
	if strings.TrimSpace(remote) == "" {
		return false, fmt.Errorf("tool: rsync remote is required")
	}
	var out bytes.Buffer
	cmd := Command{
		Name:   r.Binary,
		Args:   []string{"-a", "--itemize-changes", remote, dest},
		Stdout: &out,
	}
	if err := r.Runner.Run(ctx, cmd); err != nil {
		return false, err
	}
	return transferred(out.String()), nil
}

// transferred reports whether rsync's itemized output names a received file.
// Lines for received files start with '>' (e.g. ">f+++++++++ name").
func transferred(itemized string) bool {
	for _, line := range strings.Split(itemized, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			return true
		}
	}
	return false
}
