package timebase_test

import (
	"time"

	"testing"

	"example.com/ntp-check/core/timebase"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func TestRegisterClock(t *testing.T) {
	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("registering a nil clock must panic")
			}
		}()
		timebase.RegisterClock(nil)
	}()

	clk := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	timebase.RegisterClock(clk)
	if got := timebase.Now(); got != clk.now {
		t.Errorf("Now() = %v, want %v", got, clk.now)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("registering a second clock must panic")
			}
		}()
		timebase.RegisterClock(&fixedClock{})
	}()
}
