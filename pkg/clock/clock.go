// Package clock abstracts the time source used by polling loops and settle
// timers so that timeout behaviour can be tested deterministically without
// real delays.
package clock

import "time"

// Clock provides the current time and timer channels. Implementations must
// be safe for concurrent use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the current time after d has
	// elapsed, like [time.After].
	After(d time.Duration) <-chan time.Time
}

// System is the real [Clock] backed by the time package.
type System struct{}

// Now implements [Clock].
func (System) Now() time.Time { return time.Now() }

// After implements [Clock].
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }
