package conditions

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcFS(t *testing.T) {
	if _, err := os.Stat("/proc/self/cmdline"); err != nil {
		t.Skip("no proc filesystem")
	}
	p, err := NewProcFS("/proc")
	require.NoError(t, err)

	processes, err := p.Processes()
	require.NoError(t, err)
	require.NotEmpty(t, processes)

	for _, proc := range processes {
		assert.NotEqual(t, os.Getpid(), proc.PID, "own process must be excluded")
	}
}

func TestProcFSOwnProcessNotMatched(t *testing.T) {
	if _, err := os.Stat("/proc/self/cmdline"); err != nil {
		t.Skip("no proc filesystem")
	}
	p, err := NewProcFS("/proc")
	require.NoError(t, err)
	processes, err := p.Processes()
	require.NoError(t, err)

	self := strings.Join(os.Args, " ")
	for _, proc := range processes {
		if proc.Cmdline == self {
			t.Errorf("process %d has our own command line %q", proc.PID, self)
		}
	}
}

func TestNewProcFSMissingMount(t *testing.T) {
	_, err := NewProcFS("/nonexistent/proc")
	assert.Error(t, err)
}
