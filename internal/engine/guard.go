package engine

// ErrorGuard decides when a run of consecutive terminal failures should pause
// the job. The streak counter itself lives in the checkpoint; the guard only
// tracks whether the current streak already fired, so auto-pause triggers
// exactly once per unbroken run even when several workers cross the threshold
// together. Not safe for concurrent use on its own: the controller calls it
// inside the checkpoint's synchronized region.
type ErrorGuard struct {
	threshold int
	fired     bool
}

// NewErrorGuard creates a guard with the given threshold (default 5).
func NewErrorGuard(threshold int) *ErrorGuard {
	if threshold <= 0 {
		threshold = 5
	}
	return &ErrorGuard{threshold: threshold}
}

// Threshold returns the configured consecutive-failure threshold.
func (g *ErrorGuard) Threshold() int {
	return g.threshold
}

// OnFailure is called after the streak counter was incremented. It returns
// true exactly once when the streak reaches the threshold.
func (g *ErrorGuard) OnFailure(consecutive int) bool {
	if g.fired || consecutive < g.threshold {
		return false
	}
	g.fired = true
	return true
}

// OnSuccess re-arms the guard; any item success breaks the streak.
func (g *ErrorGuard) OnSuccess() {
	g.fired = false
}

// Restore seeds the guard from a rehydrated streak counter. A streak at or
// past the threshold already fired before the checkpoint was exported, so it
// must not fire again until a success resets it.
func (g *ErrorGuard) Restore(consecutive int) {
	g.fired = consecutive >= g.threshold
}
