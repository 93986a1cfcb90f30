package cube

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeInsertRejectsFrozenNode(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	n.PredDepth = math.NaN()

	ok := n.Insert(Sounding{Depth: 10, Dz: 1, Dr: 0.01}, 0, 0, p)
	assert.False(t, ok)
	assert.Empty(t, n.Queue)
}

func TestNodeInsertRejectsBlunder(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	n.PredDepth = 10.0
	n.PredVar = 1.0

	ok := n.Insert(Sounding{Depth: -1.0, Dz: 1, Dr: 0}, 0, 0, p)
	assert.False(t, ok)
}

func TestNodeInsertAcceptsWithinCaptureRadius(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()

	// No prior: target depth comes from the sounding itself, so the
	// capture-radius floor of 0.5 m applies (CaptureDistScale*|depth|
	// is 0.05*10 = 0.5, no larger than the floor at this depth).
	ok := n.Insert(Sounding{Depth: 10, Dz: 1, Dr: 0}, 0.01, 0, p)
	assert.True(t, ok)
	require.Len(t, n.Queue, 1)
}

func TestNodeInsertRejectsOutsideCaptureRadius(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()

	ok := n.Insert(Sounding{Depth: 10, Dz: 1, Dr: 0}, 1.0, 0, p)
	assert.False(t, ok)
	assert.Empty(t, n.Queue)
}

func TestNodeQueueFillKeepsDescendingOrder(t *testing.T) {
	n := NewNode()
	n.queueFill(5, 0.1)
	n.queueFill(10, 0.1)
	n.queueFill(3, 0.1)
	n.queueFill(7, 0.1)

	depths := make([]float64, len(n.Queue))
	for i, q := range n.Queue {
		depths[i] = q.Depth
	}
	assert.Equal(t, []float64{10, 7, 5, 3}, depths)
}

func TestNodeTruncateRemovesOutlier(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	for i := 0; i < 10; i++ {
		n.Queue = append(n.Queue, QueueEntry{Depth: 10.0, Variance: 0.01})
	}
	n.Queue = append(n.Queue, QueueEntry{Depth: 100.0, Variance: 0.01})

	n.truncate(p)

	require.Len(t, n.Queue, 10)
	for _, q := range n.Queue {
		assert.Equal(t, 10.0, q.Depth)
	}
}

func TestNodeTruncateKeepsShortQueueUntouched(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	n.Queue = []QueueEntry{{Depth: 1}, {Depth: 2}}
	n.truncate(p)
	assert.Len(t, n.Queue, 2)
}

func TestNodeFlushIsNoopOnEmptyQueue(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	n.Flush(p)
	assert.Empty(t, n.Hypotheses)
}

func TestNodeFlushDispatchesMedianOutward(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	n.Queue = []QueueEntry{
		{Depth: 30, Variance: 1},
		{Depth: 20, Variance: 1},
		{Depth: 10, Variance: 1},
	}

	n.Flush(p)

	assert.Empty(t, n.Queue)
	// Each entry is separated enough to force an intervention against
	// the others, so every one seeds its own hypothesis.
	assert.Len(t, n.Hypotheses, 3)
	for _, h := range n.Hypotheses {
		assert.Equal(t, 1, h.NSamples)
	}
}

func TestNodeBestMatchTieBreaksToMostRecent(t *testing.T) {
	n := NewNode()
	n.addHypothesis(10.0, 1.0)
	recent := n.addHypothesis(10.0, 1.0)

	best := n.bestMatch(10.0, 1.0)
	assert.Same(t, recent, best)
}

func TestNodeExtractNoData(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	depth, _, _, ok := n.Extract(p, priorSelector)
	assert.False(t, ok)
	assert.Equal(t, float64(NoDataValue), depth)
}

func TestNodeExtractSingleHypothesis(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	n.addHypothesis(42.0, 1.0)

	depth, unct, ratio, ok := n.Extract(p, priorSelector)
	assert.True(t, ok)
	assert.Equal(t, 42.0, depth)
	assert.Greater(t, unct, 0.0)
	assert.Equal(t, 0.0, ratio)
}

func TestNodeExtractRespectsNomination(t *testing.T) {
	p := DefaultParameters()
	n := NewNode()
	n.addHypothesis(42.0, 1.0)
	n.addHypothesis(99.0, 1.0)
	require.NoError(t, n.Nominate(99.0))

	depth, _, _, ok := n.Extract(p, priorSelector)
	assert.True(t, ok)
	assert.Equal(t, 99.0, depth)
}

func TestNodeNominateNoMatch(t *testing.T) {
	n := NewNode()
	n.addHypothesis(42.0, 1.0)
	assert.ErrorIs(t, n.Nominate(99.0), ErrNotFound)
}

func TestNodeRemoveAmbiguousMatch(t *testing.T) {
	n := NewNode()
	n.addHypothesis(42.0, 1.0)
	n.addHypothesis(42.005, 1.0)
	assert.ErrorIs(t, n.Remove(42.0), ErrAmbiguousMatch)
}

func TestNodeRemoveClearsNomination(t *testing.T) {
	n := NewNode()
	n.addHypothesis(42.0, 1.0)
	require.NoError(t, n.Nominate(42.0))
	require.NoError(t, n.Remove(42.0))
	assert.Equal(t, -1, n.Nominated)
	assert.Empty(t, n.Hypotheses)
}

func TestNodeReportableHypothesesExcludesNullHypothesis(t *testing.T) {
	n := NewNode()
	n.seedNullHypothesis(10.0, 1.0)
	n.addHypothesis(12.0, 1.0)

	reportable := n.reportableHypotheses()
	require.Len(t, reportable, 1)
	assert.Equal(t, 12.0, reportable[0].Mean)
}
