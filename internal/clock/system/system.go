// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// Clock implements collector.Clock using time.Now.
type Clock struct{}

var _ collector.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Run records and window bounds are
// compared in UTC; adapters convert to their board's zone when parsing.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
