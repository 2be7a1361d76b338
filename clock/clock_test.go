package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersectAgreementAmongAllSamples(t *testing.T) {
	samples := []Sample{
		{ReplicaOffsetMS: 100, ErrorBoundMS: 20},
		{ReplicaOffsetMS: 105, ErrorBoundMS: 20},
		{ReplicaOffsetMS: 95, ErrorBoundMS: 20},
	}
	lower, upper, ok := Intersect(samples)
	require.True(t, ok)
	assert.LessOrEqual(t, lower, int64(95))
	assert.GreaterOrEqual(t, upper, int64(95))
}

func TestIntersectDiscardsOutlier(t *testing.T) {
	samples := []Sample{
		{ReplicaOffsetMS: 100, ErrorBoundMS: 5},
		{ReplicaOffsetMS: 102, ErrorBoundMS: 5},
		{ReplicaOffsetMS: 103, ErrorBoundMS: 5},
		{ReplicaOffsetMS: 9000, ErrorBoundMS: 5}, // faulty replica, far away
	}
	lower, upper, ok := Intersect(samples)
	require.True(t, ok)
	assert.LessOrEqual(t, lower, int64(103), "expected the 3-way quorum region")
	assert.GreaterOrEqual(t, upper, int64(102), "expected the 3-way quorum region")
}

func TestIntersectEmptyIsNotOK(t *testing.T) {
	_, _, ok := Intersect(nil)
	assert.False(t, ok, "expected not ok for empty samples")
}

func TestEpochAdvanceIsMonotonic(t *testing.T) {
	e := NewEpoch(0)
	base := time.Unix(1700000000, 0)

	prev := int64(0)
	for i := 0; i < 5; i++ {
		ts := e.Advance(base.Add(time.Duration(i)*time.Millisecond), 10, 20)
		assert.Greater(t, ts, prev, "expected strictly increasing timestamps")
		prev = ts
	}
}

func TestEpochAdvanceHoldsOffsetWhenSkewExceedsTolerance(t *testing.T) {
	e := NewEpoch(50)
	base := time.Unix(1700000000, 0)

	first := e.Advance(base, 100, 100)
	second := e.Advance(base.Add(time.Millisecond), 10000, 10000)
	assert.Greater(t, second, first, "expected monotonic advance even when skew exceeds tolerance")
	// The held offset should be close to the first proposal, not the
	// wildly divergent second one.
	assert.LessOrEqual(t, second-first, int64(1000), "expected bounded-skew hold to limit the jump")
}
