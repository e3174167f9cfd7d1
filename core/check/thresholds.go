package check

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var errMalformedRange = errors.New("malformed threshold range")

// Range is a monitoring threshold range with the usual plugin grammar:
// "[@][start:]end", where start defaults to 0, "~" stands for negative
// infinity and a missing end for positive infinity. A value outside
// [start, end] raises the alert; a leading "@" inverts that to alert on
// values inside the range.
type Range struct {
	Start  float64
	End    float64
	Inside bool
}

func ParseRange(s string) (Range, error) {
	r := Range{End: math.Inf(1)}
	if strings.HasPrefix(s, "@") {
		r.Inside = true
		s = s[1:]
	}
	if s == "" {
		return Range{}, errMalformedRange
	}
	start, end, found := strings.Cut(s, ":")
	if !found {
		end = start
		start = ""
	}
	var err error
	switch start {
	case "":
		r.Start = 0
	case "~":
		r.Start = math.Inf(-1)
	default:
		r.Start, err = strconv.ParseFloat(start, 64)
		if err != nil {
			return Range{}, errMalformedRange
		}
	}
	if end != "" {
		r.End, err = strconv.ParseFloat(end, 64)
		if err != nil {
			return Range{}, errMalformedRange
		}
	}
	if r.Start > r.End {
		return Range{}, errMalformedRange
	}
	return r, nil
}

// Check reports whether v raises the alert for this range.
func (r Range) Check(v float64) bool {
	outside := v < r.Start || v > r.End
	if r.Inside {
		return !outside
	}
	return outside
}

// PerfSpec renders the range in performance data notation.
func (r Range) PerfSpec() string {
	var b strings.Builder
	if r.Inside {
		b.WriteByte('@')
	}
	if math.IsInf(r.Start, -1) {
		b.WriteString("~:")
	} else if r.Start != 0 {
		b.WriteString(strconv.FormatFloat(r.Start, 'g', -1, 64))
		b.WriteByte(':')
	}
	if !math.IsInf(r.End, 1) {
		b.WriteString(strconv.FormatFloat(r.End, 'g', -1, 64))
	}
	return b.String()
}
