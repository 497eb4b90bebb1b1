// Package tool invokes the external programs the pipeline depends on
// (rsync, gffread, hisat2, salmon, kallisto). Argument vectors are built by
// the callers; this package only runs them and reports failures.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const maxStderr = 4096

// Command describes one external program invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Stdout receives the standard output stream when set. Otherwise output
	// is discarded.
	Stdout io.Writer
}

// Argv returns the full argument vector, program name first.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner executes commands and treats a non-zero exit status as an error.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError is returned when a tool exits unsuccessfully.
type ExitError struct {
	Argv   []string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("tool: %s exited with status %d", strings.Join(e.Argv, " "), e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env is appended to the inherited environment.
	Env []string
}

// Run starts the command and waits for it to finish.
func (r ExecRunner) Run(ctx context.Context, cmd Command) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("tool: command name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(r.Env) > 0 {
		c.Env = append(c.Environ(), r.Env...)
	}
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	}
	var stderr bytes.Buffer
	c.Stderr = &limitedWriter{buf: &stderr, max: maxStderr}
	err := c.Run()
	if err == nil {
		return nil
	}
	exitErr := &ExitError{Argv: cmd.Argv(), Code: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		exitErr.Code = ee.ExitCode()
	}
	return exitErr
}

// limitedWriter keeps the first max bytes and drops the rest.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
