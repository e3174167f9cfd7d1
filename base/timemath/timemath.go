package timemath

import (
	"math"
	"time"
)

func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func Seconds(duration time.Duration) float64 {
	return float64(duration) / float64(time.Second)
}

func Abs(d time.Duration) time.Duration {
	if d == math.MinInt64 {
		panic("unexpected duration value (math.MinInt64)")
	}
	if d < 0 {
		d = -d
	}
	return d
}

func Mean(fs []float64) float64 {
	n := len(fs)
	if n == 0 {
		panic("unexpected number of values")
	}
	var sum float64
	for _, f := range fs {
		sum += f
	}
	return sum / float64(n)
}
