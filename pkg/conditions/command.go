package conditions

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// NegatePrefix marks a command whose desired outcome is failure.
const NegatePrefix = "!"

// CommandSpec is one arbitrary command check. The check passes when the
// command succeeds, or when it fails if Negate is set.
type CommandSpec struct {
	Negate bool
	Shell  bool
	Text   string

	args []string
}

// NewCommandSpec parses text into a CommandSpec. A leading "!" negates the
// command. Non-shell commands are split into an argument vector with shell
// lexing rules, so quoting works the same as on a command line.
func NewCommandSpec(text string, shell bool) (CommandSpec, error) {
	spec := CommandSpec{Shell: shell}
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, NegatePrefix) {
		spec.Negate = true
		text = strings.TrimSpace(strings.TrimPrefix(text, NegatePrefix))
	}
	if text == "" {
		return CommandSpec{}, fmt.Errorf("empty command")
	}
	spec.Text = text

	if shell {
		spec.args = []string{text}
		return spec, nil
	}
	args, err := shlex.Split(text)
	if err != nil {
		return CommandSpec{}, fmt.Errorf("error parsing command %q: %w", text, err)
	}
	if len(args) == 0 {
		return CommandSpec{}, fmt.Errorf("empty command")
	}
	spec.args = args
	return spec, nil
}

// Args returns the command to hand to the runner.
func (c CommandSpec) Args() []string {
	return c.args
}

// String renders the spec the way it is written on the command line.
func (c CommandSpec) String() string {
	if c.Negate {
		return NegatePrefix + c.Text
	}
	return c.Text
}
