// Package clock provides the monotonic, bounded-skew timestamp the
// kernel is handed on every committed operation. The kernel never
// reads a clock itself (kernel/state.go); this package is the one
// place that wall-clock and cross-replica skew are dealt with, and its
// output is a plain int64 unix-millis value by the time it crosses
// into kernel.Apply.
package clock

import (
	"sort"
	"time"
)

// DefaultToleranceMS is the default bounded-skew tolerance applied by
// Epoch.Advance (§4.7): a proposed quorum offset that differs from the
// last published offset by more than this is not applied, and the
// previous offset is kept instead.
const DefaultToleranceMS = 500

// Sample is one replica's clock-offset estimate, gathered during a
// heartbeat round-trip: the offset this replica believes it has from
// the reporting replica's clock, plus the round-trip error bound on
// that estimate.
type Sample struct {
	ReplicaOffsetMS int64
	ErrorBoundMS    int64
}

func (s Sample) lower() int64 { return s.ReplicaOffsetMS - s.ErrorBoundMS }
func (s Sample) upper() int64 { return s.ReplicaOffsetMS + s.ErrorBoundMS }

// endpoint is one boundary of a sample's interval, tagged so the sweep
// in Intersect can tell an interval's start from its end.
type endpoint struct {
	value    int64
	isLower  bool
	sourceID int
}

// Intersect implements Marzullo's algorithm: given samples from n
// replicas, it returns the offset interval agreed on by the largest
// surviving quorum, discarding the smallest number of outlier samples
// necessary to produce a non-empty intersection. The returned bool is
// false only when samples is empty.
func Intersect(samples []Sample) (lower, upper int64, ok bool) {
	if len(samples) == 0 {
		return 0, 0, false
	}

	points := make([]endpoint, 0, 2*len(samples))
	for i, s := range samples {
		points = append(points, endpoint{value: s.lower(), isLower: true, sourceID: i})
		points = append(points, endpoint{value: s.upper(), isLower: false, sourceID: i})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].value != points[j].value {
			return points[i].value < points[j].value
		}
		// At a tie, process interval-closing endpoints before opening
		// ones so a sample is not counted as overlapping itself at its
		// own boundary.
		return !points[i].isLower && points[j].isLower
	})

	best := 0
	bestLower, bestUpper := samples[0].lower(), samples[0].upper()
	running := 0
	var intervalStart int64
	for _, p := range points {
		if p.isLower {
			running++
			intervalStart = p.value
		} else {
			if running > best {
				best = running
				bestLower = intervalStart
				bestUpper = p.value
			}
			running--
		}
	}

	return bestLower, bestUpper, true
}

// Epoch is the published, monotonic clock state a replica advances
// once per heartbeat round using the latest quorum intersection.
type Epoch struct {
	offsetMS   int64
	lastWallMS int64
	lastMonoMS int64
	tolerance  int64
}

// NewEpoch constructs an Epoch with the given bounded-skew tolerance.
// A zero tolerance falls back to DefaultToleranceMS.
func NewEpoch(toleranceMS int64) *Epoch {
	if toleranceMS <= 0 {
		toleranceMS = DefaultToleranceMS
	}
	return &Epoch{tolerance: toleranceMS}
}

// Advance folds a fresh quorum intersection into the epoch and returns
// the timestamp to hand to the kernel for this operation. The result
// is always > the previous call's result. A new quorum offset that
// skews more than the configured tolerance from the last published
// offset is not applied; the previous offset is held instead. If the
// resulting timestamp would not move forward, it is raised to one past
// the previous result, preserving monotonicity at the cost of
// precision.
func (e *Epoch) Advance(now time.Time, lowerOffsetMS, upperOffsetMS int64) int64 {
	wallMS := now.UnixMilli()
	proposed := (lowerOffsetMS + upperOffsetMS) / 2

	if e.lastWallMS != 0 {
		skew := proposed - e.offsetMS
		if skew < 0 {
			skew = -skew
		}
		if skew > e.tolerance {
			proposed = e.offsetMS
		}
	}

	candidate := wallMS + proposed
	if candidate <= e.lastMonoMS {
		candidate = e.lastMonoMS + 1
	}

	e.offsetMS = proposed
	e.lastWallMS = wallMS
	e.lastMonoMS = candidate
	return candidate
}

// Now returns the most recently published timestamp without advancing
// the epoch, for callers that need to read the current value between
// heartbeat rounds.
func (e *Epoch) Now() int64 {
	return e.lastMonoMS
}
