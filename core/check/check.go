package check

import (
	"math"

	"go.uber.org/zap"

	"example.com/ntp-check/base/timemath"
	"example.com/ntp-check/core/sampler"
	"example.com/ntp-check/net/ntp"
)

type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (s Status) ExitCode() int {
	return int(s)
}

// BestServer picks the most trustworthy peer from the sampling results and
// returns its index, or -1 when no peer qualifies. Peers reporting stratum
// 0 (reserved for reference clocks, never valid from a real server) or an
// alarm leap indicator are rejected. Among the rest, a peer only displaces
// the current best when its stratum and dispersion are no worse and its
// round-trip delay is strictly lower.
func BestServer(log *zap.Logger, results []sampler.PeerResult) int {
	best := -1
	for i := range results {
		r := &results[i]
		if r.Stratum == 0 {
			log.Debug("discarding peer",
				zap.String("peer", r.Addr),
				zap.Uint8("stratum", r.Stratum))
			continue
		}
		if r.LeapIndicator() == ntp.LeapIndicatorUnknown {
			log.Debug("discarding peer",
				zap.String("peer", r.Addr),
				zap.Uint8("leap", r.LeapIndicator()))
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		b := &results[best]
		if r.Stratum <= b.Stratum && r.Dispersion <= b.Dispersion && r.Delay < b.Delay {
			best = i
		}
	}
	if best >= 0 {
		log.Debug("best server selected", zap.String("peer", results[best].Addr))
	}
	return best
}

// AverageOffset is the arithmetic mean of the peer's recorded offset
// samples, in seconds. The time offset correction was already applied at
// capture time. The peer must have at least one sample.
func AverageOffset(r sampler.PeerResult) float64 {
	return timemath.Mean(r.Offsets)
}

// EvaluateOffset classifies the absolute value of offset against the
// thresholds. The critical range is consulted first.
func EvaluateOffset(offset float64, warning, critical Range) Status {
	v := math.Abs(offset)
	if critical.Check(v) {
		return StatusCritical
	}
	if warning.Check(v) {
		return StatusWarning
	}
	return StatusOK
}
