// Package system provides the wall clock used to time captures.
package system

import "time"

// Clock implements capture.Clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time. The monotonic reading is kept so
// durations between two calls stay accurate.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
