// Package propagate implements bounded cross-module taint propagation: a
// breadth-first search over (module, symbol, depth) states that links local
// taint facts through import edges into source to sink flows, under
// deterministic depth, module and time budgets.
package propagate

import (
	"time"
)

// TruncationReason labels why a scan stopped before draining its frontier.
type TruncationReason string

const (
	// ReasonNone means the frontier drained completely.
	ReasonNone TruncationReason = ""
	// ReasonMaxDepth means expansion stopped at the depth cap.
	ReasonMaxDepth TruncationReason = "max_depth"
	// ReasonMaxModules means candidate modules were refused admission.
	ReasonMaxModules TruncationReason = "max_modules"
	// ReasonTimeout means the scan deadline elapsed.
	ReasonTimeout TruncationReason = "timeout"
)

// Budget bounds one propagation run. A zero or negative cap is unbounded
// and a zero deadline disables the time limit.
type Budget struct {
	MaxDepth   int
	MaxModules int
	Deadline   time.Time
}

// DepthBounded reports whether the depth cap is active.
func (b Budget) DepthBounded() bool { return b.MaxDepth > 0 }

// ModulesBounded reports whether the module cap is active.
func (b Budget) ModulesBounded() bool { return b.MaxModules > 0 }

// Expired reports whether the deadline has passed at the given instant.
func (b Budget) Expired(now time.Time) bool {
	return !b.Deadline.IsZero() && now.After(b.Deadline)
}
