package quota

// DefaultExpiryTolerance absorbs the jitter between the coarse
// background tick and a fine-grained availability check, in seconds.
const DefaultExpiryTolerance = 1

// Remaining returns the seconds left in a cooldown window that started
// at start (epoch seconds) and runs for durationSeconds. A zero start
// means no active cooldown, so the remainder is 0. The result is
// floored at 0 but not capped above: a backward clock step mid-window
// can yield more than durationSeconds.
func Remaining(start, durationSeconds, now int64) int64 {
	if start == 0 {
		return 0
	}
	remaining := durationSeconds - (now - start)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasExpired reports whether the cooldown window is over, within
// toleranceSeconds.
func HasExpired(start, durationSeconds, now, toleranceSeconds int64) bool {
	return Remaining(start, durationSeconds, now) <= toleranceSeconds
}
