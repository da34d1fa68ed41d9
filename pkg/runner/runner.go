// Package runner executes host commands on behalf of the guard and the
// condition checks. Callers only learn whether a command succeeded; the
// command output is routed to the standard logger.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Shell is the interpreter used for commands run with useShell set.
const Shell = "/bin/sh"

// Runner is the standard interface to execute a command on the host.
type Runner interface {
	// Run returns true iff the command exited with status 0.
	Run(command []string, captureOutput bool, useShell bool) bool
	// Output runs the command and returns its standard output.
	Output(command []string) (string, error)
}

// Compile-time checks to ensure the type implements the interface
var (
	_ Runner = (*HostRunner)(nil)
)

// HostRunner runs commands directly on the host with os/exec.
// A zero Timeout means commands may block forever.
type HostRunner struct {
	Timeout time.Duration
}

// New returns a HostRunner bounding every command by timeout (0 disables it).
func New(timeout time.Duration) *HostRunner {
	return &HostRunner{Timeout: timeout}
}

// Run executes the command and reports whether it exited with status 0.
// Execution errors (missing binary, empty command) are logged and reported
// as a failure, never returned.
func (r *HostRunner) Run(command []string, captureOutput bool, useShell bool) bool {
	argv, err := BuildCommand(command, useShell)
	if err != nil {
		log.Errorf("Error building command: %v", err)
		return false
	}

	ctx, cancel := r.context()
	defer cancel()

	cmd, closeLogs := newCommand(ctx, argv, captureOutput)
	defer closeLogs()
	if err := cmd.Run(); err != nil {
		switch err := err.(type) {
		case *exec.ExitError:
			log.Debugf("Command %q exited with code %d", strings.Join(argv, " "), cmd.ProcessState.ExitCode())
		default:
			log.Errorf("Error invoking command %q: %v", strings.Join(argv, " "), err)
		}
		return false
	}
	log.Debugf("Command %q succeeded", strings.Join(argv, " "))
	return true
}

// Output runs the command and returns its standard output. Standard error is
// included in the returned error when the command fails.
func (r *HostRunner) Output(command []string) (string, error) {
	argv, err := BuildCommand(command, false)
	if err != nil {
		return "", err
	}

	ctx, cancel := r.context()
	defer cancel()

	bufStdout := new(bytes.Buffer)
	bufStderr := new(bytes.Buffer)
	// #nosec G204 -- commands are built from operator configuration
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = bufStdout
	cmd.Stderr = bufStderr

	if err := cmd.Run(); err != nil {
		return bufStdout.String(), fmt.Errorf("error invoking %s: %w (stderr: %s)", strings.Join(argv, " "), err, strings.TrimSpace(bufStderr.String()))
	}
	return bufStdout.String(), nil
}

func (r *HostRunner) context() (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(context.Background(), r.Timeout)
	}
	return context.WithCancel(context.Background())
}

// BuildCommand turns a command into the argv to execute. With useShell the
// command words are joined with spaces and handed to Shell -c.
func BuildCommand(command []string, useShell bool) ([]string, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if useShell {
		return []string{Shell, "-c", strings.Join(command, " ")}, nil
	}
	return command, nil
}

// newCommand creates a new Command with stderr wired to our standard logger.
// Stdout goes to the logger at debug level when captured, and is dropped otherwise.
// The returned func releases the logger pipes once the command is done.
func newCommand(ctx context.Context, argv []string, captureOutput bool) (*exec.Cmd, func()) {
	// #nosec G204 -- commands are built from operator configuration
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var writers []io.Closer
	if captureOutput {
		stdout := log.NewEntry(log.StandardLogger()).
			WithField("cmd", cmd.Args[0]).
			WithField("std", "out").
			WriterLevel(log.DebugLevel)
		writers = append(writers, stdout)
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = io.Discard
	}

	stderr := log.NewEntry(log.StandardLogger()).
		WithField("cmd", cmd.Args[0]).
		WithField("std", "err").
		WriterLevel(log.WarnLevel)
	writers = append(writers, stderr)
	cmd.Stderr = stderr

	return cmd, func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}
}
