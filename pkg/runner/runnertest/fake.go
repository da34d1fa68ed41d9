// Package runnertest provides a scriptable runner.Runner for tests.
package runnertest

import (
	"strings"
	"sync"

	"github.com/kubereboot/shutdown-guard/pkg/runner"
)

// Compile-time checks to ensure the type implements the interface
var (
	_ runner.Runner = (*Fake)(nil)
)

// Call records one invocation of the fake.
type Call struct {
	Command  []string
	UseShell bool
}

// String returns the command words joined by spaces.
func (c Call) String() string {
	return strings.Join(c.Command, " ")
}

// Fake answers Run and Output with the configured funcs and records every call.
// A nil RunFunc reports success, a nil OutputFunc returns an empty string.
type Fake struct {
	RunFunc    func(command []string, useShell bool) bool
	OutputFunc func(command []string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements runner.Runner.
func (f *Fake) Run(command []string, _ bool, useShell bool) bool {
	f.record(command, useShell)
	if f.RunFunc == nil {
		return true
	}
	return f.RunFunc(command, useShell)
}

// Output implements runner.Runner.
func (f *Fake) Output(command []string) (string, error) {
	f.record(command, false)
	if f.OutputFunc == nil {
		return "", nil
	}
	return f.OutputFunc(command)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many recorded calls start with the given words.
func (f *Fake) Count(prefix ...string) int {
	n := 0
	for _, c := range f.Calls() {
		if hasPrefix(c.Command, prefix) {
			n++
		}
	}
	return n
}

func (f *Fake) record(command []string, useShell bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Command: append([]string(nil), command...), UseShell: useShell})
}

func hasPrefix(command, prefix []string) bool {
	if len(prefix) > len(command) {
		return false
	}
	for i := range prefix {
		if command[i] != prefix[i] {
			return false
		}
	}
	return true
}
