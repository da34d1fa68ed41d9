// Package guard installs and removes the shutdown block on the host.
// The block is a systemd drop-in setting RefuseManualStart=yes on the
// shutdown-class targets, so the guard state is always visible with
// `systemctl show` and survives restarts of this process.
package guard

import (
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kubereboot/shutdown-guard/pkg/runner"
)

const (
	// MechanismSystemd guards the targets with systemd drop-in files.
	MechanismSystemd = "systemd"
	// DefaultOverrideDir is the root of the runtime systemd unit directory.
	DefaultOverrideDir = "/run/systemd/system"
	// MarkerName is the drop-in file written in each target directory.
	MarkerName = "50-shutdown-guard.conf"
	// MarkerContent is the exact content of the drop-in file.
	MarkerContent = "[Unit]\nRefuseManualStart=yes\n"

	blockProperty = "RefuseManualStart"
	blockedValue  = blockProperty + "=yes"
	systemctl     = "systemctl"
)

// Targets is the fixed list of targets the guard applies to.
var Targets = []string{"poweroff.target", "reboot.target", "halt.target"}

// Guard is the interface used by the supervisor to apply the desired state.
type Guard interface {
	// SetGuard blocks (enforce) or unblocks every target and reports whether
	// anything changed on the host.
	SetGuard(enforce bool) bool
}

// StateObserver is told the state of a target whenever it is known.
type StateObserver func(target string, blocked bool)

// Compile-time checks to ensure the type implements the interface
var (
	_ Guard = (*Controller)(nil)
)

// Controller applies the guard through systemd drop-ins.
type Controller struct {
	runner      runner.Runner
	fs          afero.Fs
	overrideDir string
	targets     []string
	observer    StateObserver
}

// New validates the guard mechanism, then builds the matching controller.
// Nothing is touched on the host until SetGuard is called.
func New(mechanism string, r runner.Runner, fs afero.Fs, overrideDir string) (*Controller, error) {
	switch mechanism {
	case MechanismSystemd:
	default:
		return nil, fmt.Errorf("invalid guard mechanism configured %q, expected %s", mechanism, MechanismSystemd)
	}
	if overrideDir == "" {
		overrideDir = DefaultOverrideDir
	}
	return &Controller{
		runner:      r,
		fs:          fs,
		overrideDir: overrideDir,
		targets:     Targets,
	}, nil
}

// WithObserver registers a func called with every known target state.
func (c *Controller) WithObserver(o StateObserver) *Controller {
	c.observer = o
	return c
}

// Targets returns the targets handled by this controller.
func (c *Controller) Targets() []string {
	return c.targets
}

// SetGuard applies the block (enforce) or removes it on every target.
// systemd is reloaded once, after all targets, and only if one changed.
func (c *Controller) SetGuard(enforce bool) bool {
	changed := false
	for _, target := range c.targets {
		var targetChanged bool
		if enforce {
			targetChanged = c.AddBlock(target)
		} else {
			targetChanged = c.RemoveBlock(target)
		}
		changed = changed || targetChanged
	}

	if changed {
		log.Debug("Reloading systemd configuration")
		if !c.runner.Run([]string{systemctl, "daemon-reload"}, false, false) {
			log.Error("Failed to reload systemd configuration")
		}
	}
	return changed
}

// IsBlocked asks systemd whether the target refuses manual start.
// A failed query is logged and reported as not blocked.
func (c *Controller) IsBlocked(target string) bool {
	out, err := c.runner.Output([]string{systemctl, "show", "--property=" + blockProperty, target})
	if err != nil {
		log.Errorf("Error querying %s of %s: %v", blockProperty, target, err)
		return false
	}
	return strings.TrimSpace(out) == blockedValue
}

// AddBlock writes the drop-in for target unless it is already blocked.
// It reports whether the drop-in was written.
func (c *Controller) AddBlock(target string) bool {
	if c.IsBlocked(target) {
		log.Debugf("%s is already blocked", target)
		c.observe(target, true)
		return false
	}

	dir := c.dropInDir(target)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		log.Errorf("Error creating override directory %s: %v", dir, err)
		return false
	}
	marker := filepath.Join(dir, MarkerName)
	if err := afero.WriteFile(c.fs, marker, []byte(MarkerContent), 0o644); err != nil {
		log.Errorf("Error writing override %s: %v", marker, err)
		return false
	}
	log.Infof("Blocked %s", target)
	c.observe(target, true)
	return true
}

// RemoveBlock deletes the drop-in for target if it is blocked.
// It reports whether the drop-in was removed.
func (c *Controller) RemoveBlock(target string) bool {
	if !c.IsBlocked(target) {
		log.Debugf("%s is not blocked", target)
		c.observe(target, false)
		return false
	}

	marker := c.MarkerPath(target)
	if err := c.fs.Remove(marker); err != nil {
		log.Errorf("Error removing override %s: %v", marker, err)
		return false
	}
	log.Infof("Unblocked %s", target)
	c.observe(target, false)
	return true
}

// MarkerPath returns where the drop-in of target lives.
func (c *Controller) MarkerPath(target string) string {
	return filepath.Join(c.dropInDir(target), MarkerName)
}

func (c *Controller) dropInDir(target string) string {
	return filepath.Join(c.overrideDir, target+".d")
}

func (c *Controller) observe(target string, blocked bool) {
	if c.observer != nil {
		c.observer(target, blocked)
	}
}
