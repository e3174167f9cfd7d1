package timebase

import (
	"time"
)

// LocalClock is the process-wide time source. Reading the clock is all the
// check needs; stepping and frequency adjustment stay out of scope.
type LocalClock interface {
	Now() time.Time
}
