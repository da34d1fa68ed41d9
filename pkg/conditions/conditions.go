// Package conditions decides whether the host may shut down.
// A ConditionSet groups six independent categories of checks; the
// Evaluator runs them in a fixed order and stops at the first failure.
package conditions

import (
	"github.com/kubereboot/shutdown-guard/pkg/blockers"
	"github.com/kubereboot/shutdown-guard/pkg/runner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Category names, in evaluation order.
const (
	CategoryForbiddenFiles  = "forbidden-files"
	CategoryRequiredFiles   = "required-files"
	CategoryActiveUnits     = "active-units"
	CategoryProcesses       = "processes"
	CategoryProcessCmdlines = "process-cmdlines"
	CategoryRunCmds         = "run-cmds"
	CategoryBlockers        = "blockers"
)

// ConditionSet holds every configured check. Empty collections pass.
type ConditionSet struct {
	// ForbiddenFiles must not exist.
	ForbiddenFiles []string
	// RequiredFiles must exist.
	RequiredFiles []string
	// ActiveUnits are systemd units that must not be active.
	ActiveUnits []string
	// Processes are process names that must not be running.
	Processes []string
	// ProcessCmdlines are full command lines that must not be running.
	ProcessCmdlines []string
	// RunCmds must all reach their desired outcome, in order.
	RunCmds []CommandSpec
}

// Merge appends the collections of other after those of cs.
func (cs ConditionSet) Merge(other ConditionSet) ConditionSet {
	return ConditionSet{
		ForbiddenFiles:  append(append([]string(nil), cs.ForbiddenFiles...), other.ForbiddenFiles...),
		RequiredFiles:   append(append([]string(nil), cs.RequiredFiles...), other.RequiredFiles...),
		ActiveUnits:     append(append([]string(nil), cs.ActiveUnits...), other.ActiveUnits...),
		Processes:       append(append([]string(nil), cs.Processes...), other.Processes...),
		ProcessCmdlines: append(append([]string(nil), cs.ProcessCmdlines...), other.ProcessCmdlines...),
		RunCmds:         append(append([]CommandSpec(nil), cs.RunCmds...), other.RunCmds...),
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Passed bool
	// FailedCategory names the category that failed, empty on success.
	FailedCategory string
	// Blocker is the MetricLabel of the blocker that failed the check.
	Blocker string
}

// Checker is the standard interface the supervisor polls.
type Checker interface {
	Check() bool
}

// Compile-time checks to ensure the type implements the interface
var (
	_ Checker = (*Evaluator)(nil)
)

// Evaluator checks a ConditionSet against the host.
type Evaluator struct {
	conditions ConditionSet
	runner     runner.Runner
	fs         afero.Fs
	processes  ProcessLister
	blockers   []blockers.Blocker

	// blockedBy is the blocker that failed the last evaluation
	blockedBy blockers.Blocker
}

// category is one named predicate over the host; check returns true on pass.
type category struct {
	name  string
	size  int
	check func() bool
}

// NewEvaluator builds an Evaluator. Optional blockers are consulted after the
// six condition categories.
func NewEvaluator(conditions ConditionSet, r runner.Runner, fs afero.Fs, processes ProcessLister, extra ...blockers.Blocker) *Evaluator {
	return &Evaluator{
		conditions: conditions,
		runner:     r,
		fs:         fs,
		processes:  processes,
		blockers:   extra,
	}
}

// Conditions returns the evaluated set.
func (e *Evaluator) Conditions() ConditionSet {
	return e.conditions
}

// Check returns true iff every category passes.
func (e *Evaluator) Check() bool {
	return e.Evaluate().Passed
}

// Evaluate runs the categories in order and stops at the first failure.
func (e *Evaluator) Evaluate() Result {
	e.blockedBy = nil
	for _, c := range e.categories() {
		if c.size == 0 {
			log.Debugf("No %s conditions configured", c.name)
			continue
		}
		if !c.check() {
			log.Infof("Conditions not met: %s", c.name)
			result := Result{Passed: false, FailedCategory: c.name}
			if e.blockedBy != nil {
				result.Blocker = e.blockedBy.MetricLabel()
			}
			return result
		}
		log.Debugf("Conditions met: %s", c.name)
	}
	return Result{Passed: true}
}

func (e *Evaluator) categories() []category {
	cs := e.conditions
	return []category{
		{CategoryForbiddenFiles, len(cs.ForbiddenFiles), e.checkForbiddenFiles},
		{CategoryRequiredFiles, len(cs.RequiredFiles), e.checkRequiredFiles},
		{CategoryActiveUnits, len(cs.ActiveUnits), e.checkActiveUnits},
		{CategoryProcesses, len(cs.Processes), e.checkProcesses},
		{CategoryProcessCmdlines, len(cs.ProcessCmdlines), e.checkProcessCmdlines},
		{CategoryRunCmds, len(cs.RunCmds), e.checkRunCmds},
		{CategoryBlockers, len(e.blockers), e.checkBlockers},
	}
}

func (e *Evaluator) checkForbiddenFiles() bool {
	for _, path := range e.conditions.ForbiddenFiles {
		if e.exists(path) {
			log.Infof("Forbidden file %s exists", path)
			return false
		}
	}
	return true
}

func (e *Evaluator) checkRequiredFiles() bool {
	for _, path := range e.conditions.RequiredFiles {
		if !e.exists(path) {
			log.Infof("Required file %s does not exist", path)
			return false
		}
	}
	return true
}

func (e *Evaluator) exists(path string) bool {
	exists, err := afero.Exists(e.fs, path)
	if err != nil {
		log.Errorf("Error checking %s: %v", path, err)
	}
	return exists
}

func (e *Evaluator) checkActiveUnits() bool {
	for _, unit := range e.conditions.ActiveUnits {
		if e.runner.Run([]string{"systemctl", "is-active", "--quiet", unit}, false, false) {
			log.Infof("Unit %s is active", unit)
			return false
		}
	}
	return true
}

func (e *Evaluator) checkProcesses() bool {
	return e.checkRunning(e.conditions.Processes, "Process", func(p Process) string { return p.Name })
}

func (e *Evaluator) checkProcessCmdlines() bool {
	return e.checkRunning(e.conditions.ProcessCmdlines, "Command line", func(p Process) string { return p.Cmdline })
}

// checkRunning fails when a running process has a field equal to one of wanted.
// A failed process listing is logged and counts as nothing running.
func (e *Evaluator) checkRunning(wanted []string, kind string, field func(Process) string) bool {
	processes, err := e.processes.Processes()
	if err != nil {
		log.Errorf("Error querying processes: %v", err)
		return true
	}
	running := make(map[string]int, len(processes))
	for _, p := range processes {
		if v := field(p); v != "" {
			running[v] = p.PID
		}
	}
	for _, w := range wanted {
		if pid, ok := running[w]; ok {
			log.Infof("%s %q is running (pid %d)", kind, w, pid)
			return false
		}
	}
	return true
}

func (e *Evaluator) checkRunCmds() bool {
	for _, spec := range e.conditions.RunCmds {
		desired := !spec.Negate
		actual := e.runner.Run(spec.Args(), false, spec.Shell)
		if actual != desired {
			log.Infof("Command %q did not reach its desired outcome (succeeded: %v)", spec.String(), actual)
			return false
		}
	}
	return true
}

func (e *Evaluator) checkBlockers() bool {
	if blocker, blocked := blockers.FirstBlocking(e.blockers...); blocked {
		log.Infof("Blocked by %s", blocker.MetricLabel())
		e.blockedBy = blocker
		return false
	}
	return true
}
