package quota

import "time"

// SetClock replaces the limiter clock in tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}
