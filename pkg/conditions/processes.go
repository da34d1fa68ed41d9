package conditions

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/procfs"
)

// Process is the part of a running process the conditions match against.
type Process struct {
	PID     int
	Name    string
	Cmdline string
}

// ProcessLister lists the processes currently running on the host.
type ProcessLister interface {
	Processes() ([]Process, error)
}

// Compile-time checks to ensure the type implements the interface
var (
	_ ProcessLister = (*ProcFS)(nil)
)

// ProcFS lists processes from a proc filesystem.
type ProcFS struct {
	fs      procfs.FS
	selfPID int
}

// NewProcFS reads processes from the proc filesystem mounted at mountPoint.
func NewProcFS(mountPoint string) (*ProcFS, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("error opening proc filesystem %s: %w", mountPoint, err)
	}
	return &ProcFS{fs: fs, selfPID: os.Getpid()}, nil
}

// Processes returns every running process except this one. The name is the
// kernel comm value and the command line is the argv joined by spaces.
// Processes exiting while being read are skipped.
func (p *ProcFS) Processes() ([]Process, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("error listing processes: %w", err)
	}

	processes := make([]Process, 0, len(procs))
	for _, proc := range procs {
		if proc.PID == p.selfPID {
			continue
		}
		name, err := proc.Comm()
		if err != nil {
			continue
		}
		cmdline, err := proc.CmdLine()
		if err != nil {
			continue
		}
		processes = append(processes, Process{
			PID:     proc.PID,
			Name:    name,
			Cmdline: strings.Join(cmdline, " "),
		})
	}
	return processes, nil
}
