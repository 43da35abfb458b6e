// Package toolbox runs the external programs of the pipeline: the DICOM
// converter, the Spinal Cord Toolbox commands, the image viewer and the
// QC report opener.
package toolbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Command is one invocation of an external program.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory, empty for the current one.
	Dir string
}

func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}

// Runner executes commands and blocks until they exit.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ToolError is returned when a program could not be started or exited with
// a non-zero status.
type ToolError struct {
	Cmd Command
	Err error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Cmd.Name, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the exit status of a failed program inside err.
func ExitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code, true
		}
		return 1, true
	}
	return 0, false
}

// ExecRunner runs commands as child processes. Output of the child is copied
// to Stdout/Stderr and to Log when set.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Log receives a copy of the program output, usually the run log file.
	Log    io.Writer
	Logger log.FieldLogger
	// Observe is called with the program name and run time of every command.
	Observe func(tool string, d time.Duration, err error)
}

func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	logger := r.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if r.Log != nil {
		stdout = io.MultiWriter(stdout, r.Log)
		stderr = io.MultiWriter(stderr, r.Log)
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.WithField("tool", c.Name).Info(c.String())
	start := time.Now()
	err := cmd.Run()
	if r.Observe != nil {
		r.Observe(c.Name, time.Since(start), err)
	}
	if err != nil {
		logger.WithFields(log.Fields{"tool": c.Name, "error": err}).Error("command failed")
		return &ToolError{Cmd: c, Err: err}
	}
	return nil
}
