package cube

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// confidence-interval scale factors used internally for fixed CI levels
// distinct from Parameters.Sd2ConfScale (which is the caller-configured
// reporting CI, typically 95%). Grounded on
// original_source/libsrc/cube/cube_node.c's CONF_99PC/CONF_95PC constants.
const (
	conf95pc = 1.96
	conf99pc = 2.576

	nominationTolerance = 0.01 // m, spec §4.2 nominate/remove match tolerance
)

// QueueEntry is one pre-filter slot: a depth corrected for slope/offset and
// its propagated variance.
type QueueEntry struct {
	Depth    float64
	Variance float64
}

// Node owns a single grid location's pre-filter queue and hypothesis set.
// Spec §3/§4.2, grounded on original_source/libsrc/cube/cube_node.c's
// CubeNode struct and cube_node_insert/cube_node_queue_est family.
type Node struct {
	Queue      []QueueEntry // descending by Depth: index 0 is shallowest
	Hypotheses []*Hypothesis // most-recently-created first (index 0 = head)
	Nominated  int           // index into Hypotheses, -1 = none

	PredDepth float64 // NaN = frozen; NoDataValue = no prior; else usable prior
	PredVar   float64

	Debug bool

	nextHypothesisID int
}

// NewNode returns a Node with no prior surface knowledge.
func NewNode() *Node {
	return &Node{
		Nominated: -1,
		PredDepth: float64(NoDataValue),
	}
}

// Reinitialize clears queue, hypotheses, and nomination but preserves the
// prior surface (spec §3 "Lifecycle").
func (n *Node) Reinitialize() {
	n.Queue = nil
	n.Hypotheses = nil
	n.Nominated = -1
}

// seedNullHypothesis installs a zero-sample hypothesis used only to anchor
// slope correction (spec §4.3 "Initialization from prior surfaces").
func (n *Node) seedNullHypothesis(depth, variance float64) {
	n.nextHypothesisID++
	h := newNullHypothesis(n.nextHypothesisID, depth, variance)
	n.Hypotheses = append([]*Hypothesis{h}, n.Hypotheses...)
}

// Insert gates, slope-corrects, and enqueues a sounding already known to be
// dist (Euclidean, in the node's plane) from the node, with distSq the
// squared distance Grid has already computed. varScale is the grid-level
// variance-scale constant (normalization^-dist_exp) supplied by Grid, since
// Node has no notion of grid spacing. Returns false if the sounding was
// rejected (blunder, capture radius); a rejected sounding is not an error
// (spec §7 propagation policy), just unused.
func (n *Node) Insert(s Sounding, distSq, varScale float64, p Parameters) bool {
	if math.IsNaN(n.PredDepth) {
		// Frozen node: accepts no data. Reported as rejected so Grid does
		// not invalidate this cell's cache entry for no reason.
		return false
	}

	var targetDepth float64
	if n.PredDepth != float64(NoDataValue) {
		targetDepth = n.PredDepth
		limit := targetDepth - p.BlunderMin
		limit = math.Min(limit, targetDepth-p.BlunderPercent*math.Abs(targetDepth))
		limit = math.Min(limit, targetDepth-p.BlunderScalar*math.Sqrt(n.PredVar))
		if s.Depth < limit {
			return false
		}
	} else {
		targetDepth = s.Depth
	}

	dist := math.Sqrt(distSq)
	if dist > math.Max(p.CaptureDistScale*math.Abs(targetDepth), 0.5) {
		return false
	}
	dist += conf95pc * math.Sqrt(s.Dr)

	var offset float64
	if s.Range != 0 && n.PredDepth != float64(NoDataValue) {
		offset = n.PredDepth - s.Range
	}
	variance := s.Dz * (1.0 + varScale*math.Pow(dist, p.DistExp))

	n.queueEst(s.Depth+offset, variance, p)
	n.Nominated = -1
	return true
}

// queueEst is the pre-filter entry point: fills the queue until it reaches
// MedianLength, then switches to median-release mode. Grounded on
// cube_node_queue_est.
func (n *Node) queueEst(depth, variance float64, p Parameters) {
	if len(n.Queue) < p.MedianLength {
		n.queueFill(depth, variance)
		return
	}
	median := n.queueInsert(depth, variance, p)
	n.dispatch(median.Depth, median.Variance, p)
}

// queueFill inserts into a not-yet-full queue, maintaining descending order
// (index 0 = shallowest). Grounded on cube_node_queue_fill.
func (n *Node) queueFill(depth, variance float64) {
	i := 0
	for i < len(n.Queue) && n.Queue[i].Depth > depth {
		i++
	}
	n.Queue = append(n.Queue, QueueEntry{})
	copy(n.Queue[i+1:], n.Queue[i:])
	n.Queue[i] = QueueEntry{Depth: depth, Variance: variance}
}

// queueInsert replaces the current median with a new observation, keeping
// the queue full and sorted, and returns the evicted median. Then runs the
// 99%-CI overlap test and, if it fails, outlier rejection. Grounded on
// cube_node_queue_insert.
func (n *Node) queueInsert(depth, variance float64, p Parameters) QueueEntry {
	c := p.MedianLength / 2
	median := n.Queue[c]

	if depth > median.Depth {
		i := c - 1
		for i >= 0 && n.Queue[i].Depth < depth {
			n.Queue[i+1] = n.Queue[i]
			i--
		}
		n.Queue[i+1] = QueueEntry{Depth: depth, Variance: variance}
	} else {
		i := c + 1
		for i < len(n.Queue) && n.Queue[i].Depth > depth {
			n.Queue[i-1] = n.Queue[i]
			i++
		}
		n.Queue[i-1] = QueueEntry{Depth: depth, Variance: variance}
	}

	last := len(n.Queue) - 1
	loWater := n.Queue[0].Depth - conf99pc*math.Sqrt(n.Queue[0].Variance)
	hiWater := n.Queue[last].Depth + conf99pc*math.Sqrt(n.Queue[last].Variance)
	if loWater >= hiWater {
		n.truncate(p)
	}

	return median
}

// truncate runs Jorgen Eeg's outlier quotient test over the current queue
// and removes any entry whose quotient exceeds the configured limit.
// Grounded on cube_node_truncate.
func (n *Node) truncate(p Parameters) {
	count := len(n.Queue)
	if count < 3 {
		return
	}
	depths := make([]float64, count)
	for i, q := range n.Queue {
		depths[i] = q.Depth
	}
	mean, _ := stats.Mean(depths)

	var ssd float64
	for _, d := range depths {
		diff := d - mean
		ssd += diff * diff
	}
	nf := float64(count - 1)
	sk := nf * ssd / (nf*nf - 1)

	kept := n.Queue[:0:0]
	for _, q := range n.Queue {
		diff := q.Depth - mean
		diffSq := diff * diff
		quotient := diffSq / (sk - diffSq/(nf-1))
		// Drop only entries whose quotient reaches the limit; a zero-spread
		// queue yields 0/0 = NaN, which is kept rather than dropped.
		if !(quotient >= p.QuotientLim) {
			kept = append(kept, q)
		}
	}
	n.Queue = kept
}

// Flush drains the pre-filter into the hypothesis layer in median-outward
// order: center first, then alternating left/right with increasing step.
// A no-op on an empty queue (L1). Grounded on cube_node_queue_flush_node.
func (n *Node) Flush(p Parameters) {
	if len(n.Queue) == 0 {
		return
	}
	n.truncate(p)

	count := len(n.Queue)
	var exPt, direction int
	if count%2 == 0 {
		exPt = count/2 - 1
		direction = 1
	} else {
		exPt = count / 2
		direction = -1
	}
	scale := 1
	for exPt >= 0 && exPt < count {
		entry := n.Queue[exPt]
		n.dispatch(entry.Depth, entry.Variance, p)
		exPt += direction * scale
		direction = -direction
		scale++
	}
	n.Queue = nil
}

// dispatch absorbs a released depth/variance pair into the best-matching
// hypothesis, or seeds the first hypothesis, or handles an intervention by
// resetting the incumbent's monitor and seeding a fresh one. Spec §4.2
// "Hypothesis update (dispatched by node)".
func (n *Node) dispatch(depth, variance float64, p Parameters) {
	if len(n.Hypotheses) == 0 {
		n.addHypothesis(depth, variance)
		return
	}
	best := n.bestMatch(depth, variance)
	if !best.Update(depth, variance, p) {
		best.resetMonitor()
		n.addHypothesis(depth, variance)
	}
}

// bestMatch selects the hypothesis minimizing the standardized forecast
// error. Hypotheses is kept head-first (most recent first), and ties
// resolve to the first (most recent) candidate found by the strict `<`
// comparison below — spec §4.2 "Ties resolve to the most recently created".
func (n *Node) bestMatch(z, r float64) *Hypothesis {
	var best *Hypothesis
	minErr := math.MaxFloat64
	for _, h := range n.Hypotheses {
		forecastVar := h.PredVariance + r
		e := math.Abs((z - h.PredMean) / math.Sqrt(forecastVar))
		if e < minErr {
			minErr = e
			best = h
		}
	}
	return best
}

// addHypothesis seeds and pushes a new hypothesis onto the head of the list.
func (n *Node) addHypothesis(depth, variance float64) *Hypothesis {
	n.nextHypothesisID++
	h := NewHypothesis(n.nextHypothesisID, depth, variance)
	n.Hypotheses = append([]*Hypothesis{h}, n.Hypotheses...)
	return h
}

// reportableHypotheses returns the subset with n_samples > 0 (spec P5: a
// n_samples==0 hypothesis is never selected or reported).
func (n *Node) reportableHypotheses() []*Hypothesis {
	return lo.Filter(n.Hypotheses, func(h *Hypothesis, _ int) bool {
		return h.NSamples > 0
	})
}

// Selector picks one hypothesis from a node's reportable set when more than
// one is available; Grid supplies the concrete PRIOR/LIKELIHOOD/POSTERIOR/
// PREDSURF implementation (spec §4.3).
type Selector func(reportable []*Hypothesis) *Hypothesis

// Extract returns the reported depth, uncertainty (already converted to the
// configured confidence interval), and hypothesis strength ratio for this
// node. ok is false only on no-data (spec §4.2 Extraction); no-data is not
// an error, so the caller reads the no-data sentinel via depth when !ok.
func (n *Node) Extract(p Parameters, selector Selector) (depth, uncertainty, ratio float64, ok bool) {
	if n.Nominated >= 0 && n.Nominated < len(n.Hypotheses) {
		h := n.Hypotheses[n.Nominated]
		return h.Mean, StdDevToCI(h.reportedVariance(p.Uncertainty), p.Sd2ConfScale), 0, true
	}

	reportable := n.reportableHypotheses()
	switch len(reportable) {
	case 0:
		return float64(NoDataValue), 0, 0, false
	case 1:
		h := reportable[0]
		return h.Mean, StdDevToCI(h.reportedVariance(p.Uncertainty), p.Sd2ConfScale), 0, true
	default:
		best := selector(reportable)
		ratio = n.strengthRatio(reportable, p)
		return best.Mean, StdDevToCI(best.reportedVariance(p.Uncertainty), p.Sd2ConfScale), ratio, true
	}
}

// strengthRatio reports the degree of belief in the top hypothesis over the
// rest, by sample count alone, independent of which hypothesis the
// disambiguation policy actually selected for reporting (matches
// cube_node_choose_hypothesis's ratio computation).
func (n *Node) strengthRatio(reportable []*Hypothesis, p Parameters) float64 {
	if len(reportable) < 2 {
		return 0
	}
	sorted := append([]*Hypothesis(nil), reportable...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NSamples > sorted[j].NSamples })
	ratio := p.StrengthRatioCeil - float64(sorted[0].NSamples)/float64(sorted[1].NSamples)
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// Nominate selects the hypothesis closest to depthTarget within the 0.01 m
// tolerance, reporting it verbatim until cleared or invalidated by new
// data. Spec §4.2 "Nomination".
func (n *Node) Nominate(depthTarget float64) error {
	best := -1
	bestDist := math.MaxFloat64
	for i, h := range n.Hypotheses {
		if h.NSamples == 0 {
			continue
		}
		d := math.Abs(h.Mean - depthTarget)
		if d <= nominationTolerance && d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return ErrNotFound
	}
	n.Nominated = best
	return nil
}

// ResetNomination clears any nomination in effect.
func (n *Node) ResetNomination() {
	n.Nominated = -1
}

// Remove deletes the hypothesis matching depthTarget within the 0.01 m
// tolerance, provided the match is unique. If the removed hypothesis was
// nominated, the nomination is cleared.
func (n *Node) Remove(depthTarget float64) error {
	matches := make([]int, 0, 1)
	for i, h := range n.Hypotheses {
		if math.Abs(h.Mean-depthTarget) <= nominationTolerance {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return ErrNotFound
	case 1:
		idx := matches[0]
		switch {
		case n.Nominated == idx:
			n.Nominated = -1
		case n.Nominated > idx:
			n.Nominated--
		}
		n.Hypotheses = append(n.Hypotheses[:idx], n.Hypotheses[idx+1:]...)
		return nil
	default:
		return ErrAmbiguousMatch
	}
}
