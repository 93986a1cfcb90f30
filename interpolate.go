package cube

import "math"

// Interpolator performs bilinear lookup into a Grid's per-node predicted-
// depth field with propagated variance, exposed as a public query (also via
// Grid.Interpolate). Ingest does not use it: slope correction reads each
// node's own PredDepth. Spec §4.4, grounded on
// original_source/libsrc/cube/cube_grid.c's cube_grid_interpolate /
// cube_grid_est_interp_error.
type Interpolator struct {
	grid *Grid
}

// NewInterpolator binds an Interpolator to a Grid's current node array.
func NewInterpolator(g *Grid) *Interpolator {
	return &Interpolator{grid: g}
}

// Interpolate returns the predicted depth and its propagated variance at
// absolute grid-relative coordinates (x, y), given the horizontal variance
// of the query point. Returns (0, 0, nil) if any of the 4-NN corners is the
// no-data sentinel — no interpolation attempted, not an error. Returns
// ErrNoCorner if any corner's predicted depth is NaN (a frozen node), and
// ErrOutOfBounds if (x, y) does not have 4 surrounding nodes.
func (ip *Interpolator) Interpolate(x, y, horizVar float64) (depth, varPred float64, err error) {
	g := ip.grid
	col := int(math.Floor(x / g.DX))
	row := int(math.Floor(y / g.DY))
	if col < 0 || col >= g.NX-1 || row < 0 || row >= g.NY-1 {
		return 0, 0, ErrOutOfBounds
	}

	v00 := g.Nodes[row][col].PredDepth
	v01 := g.Nodes[row][col+1].PredDepth
	v10 := g.Nodes[row+1][col].PredDepth
	v11 := g.Nodes[row+1][col+1].PredDepth

	nd := float64(NoDataValue)
	if v00 == nd || v01 == nd || v10 == nd || v11 == nd {
		return 0, 0, nil
	}
	if math.IsNaN(v00) || math.IsNaN(v01) || math.IsNaN(v10) || math.IsNaN(v11) {
		return 0, 0, ErrNoCorner
	}

	u := x/g.DX - float64(col)
	yFrac := y/g.DY - float64(row)
	v := 1.0 - yFrac // measured from the bottom edge, matching the source's delta_y

	depth = v00*(1-u)*v + v01*u*v + v10*(1-u)*(1-v) + v11*u*(1-v)

	var00 := g.Nodes[row][col].PredVar
	var01 := g.Nodes[row][col+1].PredVar
	var10 := g.Nodes[row+1][col].PredVar
	var11 := g.Nodes[row+1][col+1].PredVar

	varInterp := (1-u)*(1-u)*v*v*var00 + u*u*v*v*var01 +
		(1-u)*(1-u)*(1-v)*(1-v)*var10 + u*u*(1-v)*(1-v)*var11

	ge := (v01-v00)*v + (v11-v10)*(1-v)
	gn := (v01-v11)*u + (v00-v11)*(1-u)

	varX := horizVar / (g.DX * g.DX)
	varY := horizVar / (g.DY * g.DY)

	varPred = varInterp + ge*ge*varX + gn*gn*varY
	return depth, varPred, nil
}
