package cube

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourCornerGrid() *Grid {
	p := DefaultParameters()
	g := NewGrid(2, 2, 1.0, 1.0, p)
	g.Nodes[0][0].PredDepth, g.Nodes[0][0].PredVar = 10, 1
	g.Nodes[0][1].PredDepth, g.Nodes[0][1].PredVar = 20, 1
	g.Nodes[1][0].PredDepth, g.Nodes[1][0].PredVar = 30, 1
	g.Nodes[1][1].PredDepth, g.Nodes[1][1].PredVar = 40, 1
	return g
}

func TestInterpolateAtCornerReturnsCornerValue(t *testing.T) {
	g := fourCornerGrid()
	depth, _, err := NewInterpolator(g).Interpolate(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, depth)
}

func TestInterpolateAtCenterAveragesFourCorners(t *testing.T) {
	g := fourCornerGrid()
	depth, varPred, err := NewInterpolator(g).Interpolate(0.5, 0.5, 0)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, depth, 1e-9)
	assert.InDelta(t, 0.25, varPred, 1e-9)
}

func TestInterpolateOutOfBounds(t *testing.T) {
	g := fourCornerGrid()
	_, _, err := NewInterpolator(g).Interpolate(-1, 0, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, _, err = NewInterpolator(g).Interpolate(5, 5, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestInterpolateNoDataCornerIsNotAnError(t *testing.T) {
	g := fourCornerGrid()
	g.Nodes[0][1].PredDepth = float64(NoDataValue)

	depth, varPred, err := NewInterpolator(g).Interpolate(0.5, 0.5, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, depth)
	assert.Equal(t, 0.0, varPred)
}

func TestInterpolateFrozenCornerIsErrNoCorner(t *testing.T) {
	g := fourCornerGrid()
	g.Nodes[1][1].PredDepth = math.NaN()

	_, _, err := NewInterpolator(g).Interpolate(0.5, 0.5, 0)
	assert.ErrorIs(t, err, ErrNoCorner)
}

func TestGridInterpolateWrapsInterpolator(t *testing.T) {
	g := fourCornerGrid()
	depth, _, err := g.Interpolate(0.5, 0.5, 0)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, depth, 1e-9)
}
