// Package supervisor runs the poll loop keeping the shutdown guard in line
// with the conditions, and tears the guard down when asked to stop.
package supervisor

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kubereboot/shutdown-guard/pkg/conditions"
	"github.com/kubereboot/shutdown-guard/pkg/guard"
)

// DefaultInterval is the time between two checks.
const DefaultInterval = time.Minute

// Config holds the loop policy.
type Config struct {
	// Interval between two checks.
	Interval time.Duration
	// ExitOnPass stops the loop on the first passing check.
	ExitOnPass bool
}

// Hooks are told about every check and every guard change. Nil funcs are skipped.
type Hooks struct {
	OnCheck       func(passed bool)
	OnGuardChange func(blocked bool)
}

// Supervisor drives a Guard from a Checker.
type Supervisor struct {
	config  Config
	checker conditions.Checker
	guard   guard.Guard
	hooks   Hooks
}

// New creates a Supervisor. A non-positive interval falls back to DefaultInterval.
func New(config Config, checker conditions.Checker, g guard.Guard, hooks Hooks) *Supervisor {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Supervisor{
		config:  config,
		checker: checker,
		guard:   g,
		hooks:   hooks,
	}
}

// Run checks the conditions immediately, then every interval, blocking the
// guard while they fail. It returns once the process should exit cleanly:
// after a passing check with ExitOnPass, or after term was requested, in
// which case the guard is always removed first.
func (s *Supervisor) Run(term *Termination) {
	if s.check() {
		if s.config.ExitOnPass {
			log.Info("Conditions met, exiting without installing the guard")
			return
		}
		log.Info("Conditions met, staying resident")
	} else {
		log.Info("Conditions not met, installing the guard")
		s.setGuard(true)
	}

	for {
		if term.Requested() {
			log.Infof("Received %v, removing the guard", term.Signal())
			s.setGuard(false)
			return
		}

		if !s.wait(term) {
			continue
		}

		if s.check() {
			s.setGuard(false)
			if s.config.ExitOnPass {
				log.Info("Conditions met, exiting")
				return
			}
		} else {
			s.setGuard(true)
		}
	}
}

// wait sleeps for the interval. It returns false when cut short by term,
// so the loop handles termination before checking again.
func (s *Supervisor) wait(term *Termination) bool {
	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-term.Done():
		return false
	}
}

func (s *Supervisor) check() bool {
	passed := s.checker.Check()
	if s.hooks.OnCheck != nil {
		s.hooks.OnCheck(passed)
	}
	return passed
}

func (s *Supervisor) setGuard(enforce bool) {
	if !s.guard.SetGuard(enforce) {
		return
	}
	if s.hooks.OnGuardChange != nil {
		s.hooks.OnGuardChange(enforce)
	}
}
