package schedule

import (
	"math"
	"time"

	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
)

// Series is an evenly spaced run of instants, evaluated on demand
type Series struct {
	start time.Time
	span  time.Duration
	count int
}

// Schedule spreads count instants across [start, end]. The first instant is
// start and, with two or more instants, the last one is end.
func Schedule(start, end time.Time, count int) (Series, error) {
	if count < 0 {
		return Series{}, domain.InvalidRange{Err: errors.Errorf("negative count %d", count)}
	}
	if end.Before(start) {
		return Series{}, domain.InvalidRange{Err: errors.Errorf("end %s precedes start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))}
	}
	span := end.Sub(start)
	if !start.Add(span).Equal(end) {
		return Series{}, domain.InvalidRange{Err: errors.Errorf("window %s to %s exceeds %s", start.Format(time.RFC3339), end.Format(time.RFC3339), time.Duration(math.MaxInt64))}
	}
	if count <= 1 {
		return Series{start: start, count: 1}, nil
	}
	return Series{start: start, span: span, count: count}, nil
}

// Len returns the number of instants
func (s Series) Len() int {
	return s.count
}

// At returns the i-th instant. Spacing uses integer nanoseconds so the
// last instant lands exactly on end.
func (s Series) At(i int) time.Time {
	if i < 0 || i >= s.count {
		panic("schedule: index out of range")
	}
	if s.count == 1 || i == 0 {
		return s.start
	}
	n := int64(s.count - 1)
	d := int64(s.span)
	k := int64(i)
	step, rem := d/n, d%n
	return s.start.Add(time.Duration(step*k + rem*k/n))
}

// Instants materializes the series
func (s Series) Instants() []time.Time {
	out := make([]time.Time, s.count)
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

var layouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// ParseTime accepts RFC3339, a zone-less date-time or a bare date, in UTC
func ParseTime(v string) (time.Time, error) {
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.InvalidRange{Err: errors.Errorf("unrecognized time %q", v)}
}

// ParseWindow parses both bounds of a window
func ParseWindow(start, end string) (time.Time, time.Time, error) {
	s, err := ParseTime(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := ParseTime(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, domain.InvalidRange{Err: errors.Errorf("end %s precedes start %s", end, start)}
	}
	return s, e, nil
}
