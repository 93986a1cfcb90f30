package cube

import (
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat/distuv"
)

// ScalarField names which scalar surface Grid's single-entry cache holds.
type ScalarField int

const (
	FieldDepth ScalarField = iota
	FieldUncertainty
	FieldCount
	FieldRatio
)

// maxRadiusScale is the 99%-CI multiplier used for the spreading-radius
// cap, spec §4.3 step 2. Distinct from the queue's own 99%-CI constant in
// node.go, which the spec states separately.
const maxRadiusScale = 2.95

// Grid is a fixed-size nx*ny array of Nodes with spacing metadata, a single
// extracted-surface cache, and the spreading/dispatch logic. Spec §3/§4.3,
// grounded on original_source/libsrc/cube/cube_grid.c's CubeGrid.
//
// Grid is coordinate-free: every spreading/extraction call takes an
// absolute (west, north) anchor, matching the source's stated design
// ("the grid doesn't have an absolute coordinate system").
type Grid struct {
	NX, NY int
	DX, DY float64
	Nodes  [][]*Node // [row][col]; row 0 is the north-most row
	Params Parameters

	normalization float64 // min(dx, dy)
	varScale      float64 // normalization^-dist_exp

	cache      []float32 // row-major, nx*ny
	cacheField ScalarField
}

// NewGrid allocates an nx*ny grid of empty nodes. Spec §6 "Grid::new".
func NewGrid(nx, ny int, dx, dy float64, p Parameters) *Grid {
	g := &Grid{NX: nx, NY: ny, DX: dx, DY: dy, Params: p}
	g.normalization = math.Min(dx, dy)
	g.varScale = math.Pow(g.normalization, -p.DistExp)

	g.Nodes = make([][]*Node, ny)
	for r := range g.Nodes {
		row := make([]*Node, nx)
		for c := range row {
			row[c] = NewNode()
		}
		g.Nodes[r] = row
	}

	g.cache = make([]float32, nx*ny)
	for i := range g.cache {
		g.cache[i] = cacheInvalid
	}
	g.cacheField = FieldDepth
	return g
}

func (g *Grid) idx(row, col int) int { return row*g.NX + col }

func (g *Grid) inBounds(row, col int) bool {
	return row >= 0 && row < g.NY && col >= 0 && col < g.NX
}

// invalidate marks a cell's cache entry stale.
func (g *Grid) invalidate(row, col int) {
	g.cache[g.idx(row, col)] = cacheInvalid
}

// Insert spreads each sounding to the node rectangle it may affect and
// invokes Node.Insert on every candidate within the spreading radius.
// Returns the number of node ingests that were accepted (not rejected).
// Spec §4.3 "Dispatch".
func (g *Grid) Insert(soundings []Sounding, west, north float64) int {
	nUsed := 0
	for _, s := range soundings {
		nUsed += g.insertOne(s, west, north)
	}
	return nUsed
}

func (g *Grid) insertOne(s Sounding, west, north float64) int {
	p := g.Params

	maxVarAllowed := (p.IHOFixed + p.IHOPercent*s.Depth*s.Depth) / (p.Sd2ConfScale * p.Sd2ConfScale)
	ratio := maxVarAllowed / s.Dz
	if ratio <= 2.0 {
		ratio = 2.0
	}

	maxRadius := maxRadiusScale * math.Sqrt(s.Dr)
	distScale := g.normalization

	radius := distScale*math.Pow(ratio-1.0, p.InvDistExp) - maxRadius
	if radius < 0.0 {
		radius = distScale
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	if radius < distScale {
		radius = distScale
	}

	minX := int((s.East - radius - west) / g.DX)
	maxX := int((s.East + radius - west) / g.DX)
	minY := int((north - (s.North + radius)) / g.DY)
	maxY := int((north - (s.North - radius)) / g.DY)

	if maxX < 0 || minX >= g.NX || maxY < 0 || minY >= g.NY {
		return 0
	}
	if minX < 0 {
		minX = 0
	}
	if maxX >= g.NX {
		maxX = g.NX - 1
	}
	if minY < 0 {
		minY = 0
	}
	if maxY >= g.NY {
		maxY = g.NY - 1
	}

	radiusSq := radius * radius
	used := 0
	for row := minY; row <= maxY; row++ {
		nodeY := north - float64(row)*g.DY
		for col := minX; col <= maxX; col++ {
			nodeX := west + float64(col)*g.DX
			dx := nodeX - s.East
			dy := nodeY - s.North
			distSq := dx*dx + dy*dy
			if distSq >= radiusSq {
				continue
			}
			if g.Nodes[row][col].Insert(s, distSq, g.varScale, p) {
				g.invalidate(row, col)
				used++
			}
		}
	}
	return used
}

// Flush forces every node's pre-filter queue into its hypothesis layer.
// Spec §6 "Grid::flush".
func (g *Grid) Flush() {
	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			g.Nodes[row][col].Flush(g.Params)
		}
	}
}

// Get extracts a single scalar surface into out (row-major, length nx*ny),
// consulting and maintaining the single-entry cache. Spec §4.3 "Cache
// policy".
func (g *Grid) Get(field ScalarField, out []float32) {
	if g.cacheField != field {
		// The cache holds another scalar: none of its entries apply.
		for i := range g.cache {
			g.cache[i] = cacheInvalid
		}
		g.cacheField = field
	}
	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			i := g.idx(row, col)
			if g.cacheField == field && !isCacheInvalid(g.cache[i]) {
				out[i] = g.cache[i]
				continue
			}
			depth, unct, cnt, ratio := g.extractAll(row, col)
			var v float32
			switch field {
			case FieldDepth:
				v = depth
			case FieldUncertainty:
				v = unct
			case FieldCount:
				v = cnt
			case FieldRatio:
				v = ratio
			}
			out[i] = v
			g.cache[i] = v
			g.cacheField = field
		}
	}
}

// GetAll extracts depth, uncertainty, and ratio in a single pass, bypassing
// the cache entirely (spec: "Multi-output calls... bypass caching").
func (g *Grid) GetAll(depth, unct, ratio []float32) {
	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			i := g.idx(row, col)
			d, u, _, r := g.extractAll(row, col)
			depth[i] = d
			unct[i] = u
			ratio[i] = r
		}
	}
}

func isCacheInvalid(v float32) bool {
	return math.IsNaN(float64(v))
}

// extractAll runs the configured disambiguation policy for node (row, col)
// and returns depth, uncertainty, hypothesis count, and strength ratio as
// float32 surface values, with the no-data sentinel substituted on misses.
func (g *Grid) extractAll(row, col int) (depth, unct, count, ratio float32) {
	node := g.Nodes[row][col]
	selector := g.selectorFor(row, col)
	d, u, r, ok := node.Extract(g.Params, selector)
	if !ok {
		return NoDataValue, 0, 0, 0
	}
	return float32(d), float32(u), float32(len(node.reportableHypotheses())), float32(r)
}

// selectorFor returns the Selector closure Node.Extract should use for
// (row, col), implementing the four disambiguation policies of spec §4.3.
func (g *Grid) selectorFor(row, col int) Selector {
	switch g.Params.Disambiguation {
	case PRIOR:
		return priorSelector
	case PREDSURF:
		node := g.Nodes[row][col]
		if node.PredDepth == float64(NoDataValue) || math.IsNaN(node.PredDepth) {
			return priorSelector
		}
		return likelihoodSelector(node.PredDepth, node.PredVar)
	case POSTERIOR:
		guideMean, guideVar, found := g.findGuide(row, col)
		if !found {
			return priorSelector
		}
		return posteriorSelector(guideMean, guideVar)
	default: // LIKELIHOOD
		guideMean, guideVar, found := g.findGuide(row, col)
		if !found {
			return priorSelector
		}
		return likelihoodSelector(guideMean, guideVar)
	}
}

// priorSelector returns the hypothesis with the greatest n_samples; ties
// favor the first (most recently created) entry found, since reportable
// preserves Hypotheses' head-first order.
func priorSelector(reportable []*Hypothesis) *Hypothesis {
	return lo.MaxBy(reportable, func(a, b *Hypothesis) bool {
		return a.NSamples > b.NSamples
	})
}

// likelihoodSelector picks the hypothesis minimizing standardized distance
// to a guide (mean, variance).
func likelihoodSelector(guideMean, guideVar float64) Selector {
	return func(reportable []*Hypothesis) *Hypothesis {
		best := reportable[0]
		minErr := math.Abs((best.Mean - guideMean) / math.Sqrt(guideVar))
		for _, h := range reportable[1:] {
			e := math.Abs((h.Mean - guideMean) / math.Sqrt(guideVar))
			if e < minErr {
				minErr = e
				best = h
			}
		}
		return best
	}
}

// posteriorSelector picks the hypothesis maximizing a simplified
// log-posterior against a guide (mean, variance): the guide's Gaussian
// log-density at the hypothesis mean (via gonum's distuv.Normal, whose
// constant normalising term doesn't affect the argmax) plus a log(n_samples)
// weight favoring better-supported hypotheses.
func posteriorSelector(guideMean, guideVar float64) Selector {
	guide := distuv.Normal{Mu: guideMean, Sigma: math.Sqrt(guideVar)}
	return func(reportable []*Hypothesis) *Hypothesis {
		best := reportable[0]
		maxPosterior := math.Inf(-1)
		for _, h := range reportable {
			posterior := guide.LogProb(h.Mean) + math.Log(float64(h.NSamples))
			if posterior > maxPosterior {
				maxPosterior = posterior
				best = h
			}
		}
		return best
	}
}

// findGuide searches outward in square annuli (spec §4.3 "Annulus
// enumeration order": top row, bottom row, left column, right column,
// increasing offset) for the nearest node with exactly one reportable
// hypothesis. The smallest successful offset wins; within that offset, the
// last matching candidate in enumeration order is used, matching the
// source's literal per-offset overwrite behavior (Open Question (i), see
// DESIGN.md).
func (g *Grid) findGuide(row, col int) (mean, variance float64, found bool) {
	p := g.Params
	minOffset := int(p.MinContext)
	maxOffset := int(p.MaxContext)

	isSingleHypothesis := func(n *Node, _ int) bool {
		return len(n.reportableHypotheses()) == 1
	}
	// lastMatch keeps findGuide's literal per-offset overwrite behavior
	// (Open Question (i), see DESIGN.md): within an offset, the last
	// matching candidate in enumeration order wins.
	lastMatch := func(candidates []*Node) *Node {
		matches := lo.Filter(candidates, isSingleHypothesis)
		if len(matches) == 0 {
			return nil
		}
		return matches[len(matches)-1]
	}

	var guide *Node
	for offset := minOffset; offset <= maxOffset && guide == nil; offset++ {
		if r := row - offset; g.inBounds(r, 0) {
			if m := lastMatch(g.rowCandidates(r, col-offset, col+offset)); m != nil {
				guide = m
			}
		}
		if r := row + offset; g.inBounds(r, 0) {
			if m := lastMatch(g.rowCandidates(r, col-offset, col+offset)); m != nil {
				guide = m
			}
		}
		if c := col - offset; g.inBounds(0, c) {
			if m := lastMatch(g.colCandidates(c, row-offset+1, row+offset-1)); m != nil {
				guide = m
			}
		}
		if c := col + offset; g.inBounds(0, c) {
			if m := lastMatch(g.colCandidates(c, row-offset+1, row+offset-1)); m != nil {
				guide = m
			}
		}
	}

	if guide == nil {
		return 0, 0, false
	}
	reportable := guide.reportableHypotheses()
	h := reportable[0]
	return h.Mean, h.Variance, true
}

// rowCandidates returns the in-bounds nodes of row r with columns in
// [colStart, colEnd], in increasing-column order.
func (g *Grid) rowCandidates(r, colStart, colEnd int) []*Node {
	var nodes []*Node
	for c := colStart; c <= colEnd; c++ {
		if c < 0 || c >= g.NX {
			continue
		}
		nodes = append(nodes, g.Nodes[r][c])
	}
	return nodes
}

// colCandidates returns the in-bounds nodes of column c with rows in
// [rowStart, rowEnd], in increasing-row order.
func (g *Grid) colCandidates(c, rowStart, rowEnd int) []*Node {
	var nodes []*Node
	for r := rowStart; r <= rowEnd; r++ {
		if r < 0 || r >= g.NY {
			continue
		}
		nodes = append(nodes, g.Nodes[r][c])
	}
	return nodes
}

// Initialise seeds every node's prior surface from externally-supplied
// depth/uncertainty arrays, row-major, length nx*ny. mask[i]==255 freezes
// the node (pred_depth = NaN); isPercent selects whether uncertainty is a
// fixed standard deviation or a percent-of-depth figure at the configured
// CI. Spec §4.3 "Initialization from prior surfaces".
func (g *Grid) Initialise(data []float32, uncertainty float64, isPercent bool, mask []byte) {
	p := g.Params
	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			i := g.idx(row, col)
			node := g.Nodes[row][col]
			if mask != nil && mask[i] == 255 {
				node.PredDepth = math.NaN()
				continue
			}
			d := float64(data[i])
			node.PredDepth = d

			var variance float64
			if isPercent {
				variance = (uncertainty * d / 100.0) * (uncertainty * d / 100.0) / (p.Sd2ConfScale * p.Sd2ConfScale)
			} else {
				variance = uncertainty * uncertainty
			}
			node.PredVar = variance

			if d != float64(NoDataValue) {
				node.seedNullHypothesis(d, variance)
			}
		}
	}
}

// InitialiseWithVariance is Initialise's variant for a per-cell uncertainty
// array instead of one scalar (spec §4.3's "taken from a per-cell
// uncertainty array" branch).
func (g *Grid) InitialiseWithVariance(data []float32, uncertainty []float32, mask []byte) {
	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			i := g.idx(row, col)
			node := g.Nodes[row][col]
			if mask != nil && mask[i] == 255 {
				node.PredDepth = math.NaN()
				continue
			}
			d := float64(data[i])
			v := float64(uncertainty[i]) * float64(uncertainty[i])
			node.PredDepth = d
			node.PredVar = v
			if d != float64(NoDataValue) {
				node.seedNullHypothesis(d, v)
			}
		}
	}
}

// Interpolate is the grid-level entry point for C6's bilinear predicted-
// depth lookup (spec §6 "Grid::interpolate").
func (g *Grid) Interpolate(x, y, horizVar float64) (depth, varPred float64, err error) {
	return NewInterpolator(g).Interpolate(x, y, horizVar)
}

// HypothesisView is one georeferenced hypothesis reported by Enumerate/
// HypothesesAt (spec §6).
type HypothesisView struct {
	Row, Col   int
	East, North float64
	Mean       float64
	CI         float64
	NSamples   int
	Nominated  bool
}

// Enumerate returns every reportable hypothesis at every node, georeferenced
// against the (west, north) anchor (spec §6 "Grid::enumerate").
func (g *Grid) Enumerate(west, north float64) []HypothesisView {
	var views []HypothesisView
	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			views = append(views, g.hypothesesAt(row, col, west, north)...)
		}
	}
	return views
}

// HypothesesAt returns the georeferenced hypothesis views for a single node
// (spec §6 "Grid::hypotheses_at").
func (g *Grid) HypothesesAt(row, col int, west, north float64) ([]HypothesisView, error) {
	if !g.inBounds(row, col) {
		return nil, ErrOutOfBounds
	}
	return g.hypothesesAt(row, col, west, north), nil
}

func (g *Grid) hypothesesAt(row, col int, west, north float64) []HypothesisView {
	node := g.Nodes[row][col]
	east := west + float64(col)*g.DX
	nn := north - float64(row)*g.DY
	var views []HypothesisView
	for i, h := range node.Hypotheses {
		if h.NSamples == 0 {
			continue
		}
		views = append(views, HypothesisView{
			Row: row, Col: col,
			East: east, North: nn,
			Mean:      h.Mean,
			CI:        StdDevToCI(h.reportedVariance(g.Params.Uncertainty), g.Params.Sd2ConfScale),
			NSamples:  h.NSamples,
			Nominated: node.Nominated == i,
		})
	}
	return views
}

// Nominate selects a hypothesis at (row, col) closest to depth within
// tolerance (spec §6 "Grid::nominate").
func (g *Grid) Nominate(row, col int, depth float64) error {
	if !g.inBounds(row, col) {
		return ErrOutOfBounds
	}
	return g.Nodes[row][col].Nominate(depth)
}

// Unnominate clears a nomination at (row, col) (spec §6 "Grid::unnominate").
func (g *Grid) Unnominate(row, col int) error {
	if !g.inBounds(row, col) {
		return ErrOutOfBounds
	}
	g.Nodes[row][col].ResetNomination()
	return nil
}

// RemoveHypothesis deletes the hypothesis matching depth at (row, col)
// (spec §6 "Grid::remove_hypothesis").
func (g *Grid) RemoveHypothesis(row, col int, depth float64) error {
	if !g.inBounds(row, col) {
		return ErrOutOfBounds
	}
	return g.Nodes[row][col].Remove(depth)
}
