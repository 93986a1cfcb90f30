package cube

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParametersValidate(t *testing.T) {
	p := DefaultParameters()
	assert.NoError(t, p.Validate())
}

func TestParametersBuilderSet(t *testing.T) {
	p, err := NewParametersBuilder().
		Set("median_length", 7).
		Set("eeg_q_limit", 12.5).
		SetDisambiguation(POSTERIOR).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 7, p.MedianLength)
	assert.Equal(t, 12.5, p.QuotientLim)
	assert.Equal(t, POSTERIOR, p.Disambiguation)
}

func TestParametersBuilderUnknownKey(t *testing.T) {
	_, err := NewParametersBuilder().Set("not_a_real_key", 1.0).Build()
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name string
		mod  func(p *Parameters)
	}{
		{"median_length even", func(p *Parameters) { p.MedianLength = 10 }},
		{"median_length too small", func(p *Parameters) { p.MedianLength = 1 }},
		{"discount too low", func(p *Parameters) { p.Discount = 0.5 }},
		{"quotient limit too high", func(p *Parameters) { p.QuotientLim = 1000 }},
		{"run length threshold zero", func(p *Parameters) { p.RunLengthThreshold = 0 }},
		{"capture dist zero", func(p *Parameters) { p.CaptureDistScale = 0 }},
		{"dist exp zero", func(p *Parameters) { p.DistExp = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mod(&p)
			assert.True(t, errors.Is(p.Validate(), ErrBadConfig))
		})
	}
}

func TestEstimateSquareSide(t *testing.T) {
	p := DefaultParameters()
	n := EstimateSquareSide(1<<30, 2.0, p)
	assert.Greater(t, n, 0)

	// A larger budget must never shrink the estimate.
	nBig := EstimateSquareSide(1<<31, 2.0, p)
	assert.GreaterOrEqual(t, nBig, n)
}

func TestStdDevToCI(t *testing.T) {
	assert.Equal(t, 0.0, StdDevToCI(0, 1.96))
	assert.Equal(t, 0.0, StdDevToCI(-1, 1.96))
	assert.InDelta(t, 1.96, StdDevToCI(1.0, 1.96), 1e-9)
}
