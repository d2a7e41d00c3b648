package coordinator

// Latch fires once each time a condition becomes true and re-arms only
// after the condition has been observed false.
type Latch struct {
	fired bool
}

// Observe feeds the current condition and reports whether to fire now.
func (l *Latch) Observe(cond bool) bool {
	if !cond {
		l.fired = false
		return false
	}
	if l.fired {
		return false
	}
	l.fired = true
	return true
}

// Rearm lets the next true observation fire again, used when the action
// triggered by the last firing failed.
func (l *Latch) Rearm() { l.fired = false }
