package clock

import "time"

// Clock supplies the current time. The session engine never calls time.Now
// directly so deadline checks can be driven by a fake clock in tests.
type Clock interface {
	Now() time.Time
}

// System is the wall-clock implementation used in production.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a manually advanced clock for tests.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
