package engine

import "time"

// Clock supplies wall-clock time for timestamps the engine records,
// such as when a recipient was reported unregistered.
//
// Thread-safety: implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now truncated to milliseconds, the storage precision.
func (SystemClock) Now() time.Time {
	return time.Now().Truncate(time.Millisecond)
}
