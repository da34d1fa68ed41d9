package cli

import (
	"strings"

	"github.com/kubereboot/shutdown-guard/pkg/conditions"
)

// CommandSpecs is the ordered list filled by the run-cmd flags.
// Several flags may share one list, so the order of the command line is kept
// across them.
type CommandSpecs struct {
	Specs []conditions.CommandSpec
}

// Flag returns a flag.Value appending to the list, with or without shell.
func (cs *CommandSpecs) Flag(shell bool) *CommandSpecValue {
	return &CommandSpecValue{specs: cs, shell: shell}
}

// CommandSpecValue is a flag.Value parsing one CommandSpec per Set.
type CommandSpecValue struct {
	specs *CommandSpecs
	shell bool
}

// String lists the specs set through this flag.
func (v *CommandSpecValue) String() string {
	if v.specs == nil {
		return "[]"
	}
	var values []string
	for _, spec := range v.specs.Specs {
		if spec.Shell == v.shell {
			values = append(values, spec.String())
		}
	}
	return "[" + strings.Join(values, ",") + "]"
}

// Set parses s and appends it to the shared list.
func (v *CommandSpecValue) Set(s string) error {
	spec, err := conditions.NewCommandSpec(s, v.shell)
	if err != nil {
		return err
	}
	v.specs.Specs = append(v.specs.Specs, spec)
	return nil
}

// Type method returns the type of the flag as a string
func (v *CommandSpecValue) Type() string {
	return "commandSpecs"
}
