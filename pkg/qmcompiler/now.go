package qmcompiler

import "time"

// compileTimeNow returns the instant `now()` is folded to: a fixed
// literal captured at compile time, not a runtime SQL call, so that
// comparisons against it behave consistently with plain datetime
// literals during preprocessing.
func compileTimeNow() time.Time {
	return time.Now().UTC()
}
