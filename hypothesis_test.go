package cube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHypothesis(t *testing.T) {
	h := NewHypothesis(1, 12.5, 0.5)
	assert.Equal(t, 1, h.ID)
	assert.Equal(t, 12.5, h.Mean)
	assert.Equal(t, 0.5, h.Variance)
	assert.Equal(t, 1.0, h.CumBayes)
	assert.Equal(t, 1, h.NSamples)
}

func TestNewNullHypothesisNotReportable(t *testing.T) {
	h := newNullHypothesis(1, 12.5, 0.5)
	assert.Equal(t, 0, h.NSamples)
}

func TestHypothesisUpdateConverges(t *testing.T) {
	p := DefaultParameters()
	h := NewHypothesis(1, 10.0, 4.0)

	ok := h.Update(10.0, 4.0, p)
	assert.True(t, ok)
	assert.Equal(t, 2.0, h.Variance)
	assert.Equal(t, 10.0, h.Mean)
	assert.Equal(t, 2, h.NSamples)
}

func TestHypothesisMonitorAcceptsCloseObservation(t *testing.T) {
	p := DefaultParameters()
	h := NewHypothesis(1, 0.0, 1.0)
	assert.True(t, h.Update(0.1, 1.0, p))
}

func TestHypothesisMonitorFlagsIntervention(t *testing.T) {
	p := DefaultParameters()
	h := NewHypothesis(1, 0.0, 1.0)

	before := h.Mean
	ok := h.Update(4.0, 1.0, p)
	assert.False(t, ok)
	// An intervention leaves the hypothesis itself untouched; the caller
	// is responsible for resetMonitor + seeding a new hypothesis.
	assert.Equal(t, before, h.Mean)
}

func TestHypothesisResetMonitor(t *testing.T) {
	h := NewHypothesis(1, 0.0, 1.0)
	h.CumBayes = 0.02
	h.SeqLen = 7
	h.resetMonitor()
	assert.Equal(t, 1.0, h.CumBayes)
	assert.Equal(t, 0, h.SeqLen)
}

func TestHypothesisReportedVarianceModes(t *testing.T) {
	p := DefaultParameters()
	h := NewHypothesis(1, 10.0, 4.0)
	h.Update(10.0, 4.0, p)

	assert.Equal(t, 2.0, h.reportedVariance(UncertaintyPosterior))
	assert.Equal(t, 0.0, h.reportedVariance(UncertaintySample))
	assert.Equal(t, 2.0, h.reportedVariance(UncertaintyMax))
}
