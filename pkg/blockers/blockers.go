// Package blockers holds the optional conditions that ask another system
// whether the host must stay up: pods scheduled on the node, or active
// alerts in Prometheus. Blockers fail closed: an unreachable API blocks.
package blockers

import (
	"fmt"
	"strings"
	"time"
)

const (
	// QueryTimeout bounds every API query of a blocker. A query running
	// longer fails, and so blocks.
	QueryTimeout = 30 * time.Second

	// maxListed bounds the names listed in a blocking reason.
	maxListed = 10
)

// Blocker interface should be implemented by types
// to know if their instantiations should keep the guard up
type Blocker interface {
	IsBlocked() bool
	// MetricLabel names the blocker in logs and metrics.
	MetricLabel() string
}

// FirstBlocking returns the first blocker currently blocking, in order.
// Remaining blockers are not queried.
func FirstBlocking(blockers ...Blocker) (Blocker, bool) {
	for _, blocker := range blockers {
		if blocker.IsBlocked() {
			return blocker, true
		}
	}
	return nil, false
}

// summarize renders what blocks the host, listing at most maxListed names.
func summarize(what string, names []string) string {
	listed := names
	if len(names) > maxListed {
		listed = append(names[:maxListed:maxListed], fmt.Sprintf("and %d more", len(names)-maxListed))
	}
	return fmt.Sprintf("%d %s: %s", len(names), what, strings.Join(listed, ", "))
}
