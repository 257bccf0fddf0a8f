// Package system provides the wall clock behind report and event timestamps.
package system

import "time"

// Clock implements pipeline.Clock.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC so reports serialize without a zone
// offset.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
