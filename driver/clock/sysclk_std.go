//go:build !linux

package clock

import (
	"time"

	"go.uber.org/zap"

	"example.com/ntp-check/base/timebase"
)

type SystemClock struct {
	Log *zap.Logger
}

var _ timebase.LocalClock = (*SystemClock)(nil)

func (c *SystemClock) Now() time.Time {
	return time.Now().UTC()
}
