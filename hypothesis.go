package cube

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Hypothesis is a single recursive depth track at a grid node: a univariate
// dynamic linear model with a discount-factor system noise evolution and
// West-Harrison Bayesian monitoring for intervention detection. Spec §4.1,
// grounded on original_source/libsrc/cube/cube_node.c's
// cube_node_update_hypothesis/cube_node_monitor pair.
//
// The scalar Predict/Update split below mirrors the shape of a textbook
// Kalman filter (see other_examples' milosgajdos/go-estimate kf package)
// even though there is no matrix algebra here: one state, one observation.
type Hypothesis struct {
	ID int // 1-based ordinal, assigned in insertion order; reassigned on deserialize

	Mean         float64 // current depth estimate, m
	Variance     float64 // posterior estimate variance, m^2
	PredMean     float64 // one-step-ahead predicted mean
	PredVariance float64 // one-step-ahead predicted variance

	CumBayes float64 // running cumulative Bayes factor, initialised 1.0
	SeqLen   int     // run-length of unfavourable Bayes factors

	NSamples int // observations absorbed; 0 marks an initialisation hypothesis

	samples   []float64 // ingested depths, for the running sample-variance channel
	SampleVar float64   // optional running sample variance of ingested depths
}

// NewHypothesis seeds a fresh hypothesis at (z, r), absorbing the seeding
// sample immediately (NSamples starts at 1), matching
// cube_node_init_hypothesis's num_samples=1.
func NewHypothesis(id int, z, r float64) *Hypothesis {
	return &Hypothesis{
		ID:           id,
		Mean:         z,
		Variance:     r,
		PredMean:     z,
		PredVariance: r,
		CumBayes:     1.0,
		SeqLen:       0,
		NSamples:     1,
		samples:      []float64{z},
		SampleVar:    0,
	}
}

// newNullHypothesis seeds a hypothesis from a prior surface value: present
// so slope correction has something to work against, but with NSamples=0 so
// it is never selected by disambiguation or reported by extraction (spec
// §4.3, glossary "Null hypothesis").
func newNullHypothesis(id int, z, r float64) *Hypothesis {
	h := NewHypothesis(id, z, r)
	h.NSamples = 0
	return h
}

// monitor computes the West-Harrison forecast/Bayes-factor test for
// observation (z, r) against this hypothesis's current prediction, without
// mutating anything but the run-length/cumulative-Bayes monitor state.
// Returns false if an intervention is required (spec §4.1 steps 1-4).
func (h *Hypothesis) monitor(z, r, offsetH, tau float64, runLengthM int) bool {
	forecastVar := h.PredVariance + r
	e := (z - h.PredMean) / math.Sqrt(forecastVar)
	// Symmetric in the sign of e (DESIGN NOTES §9 "Monitor symmetry"): the
	// source branches on sign(e) but the two branches are algebraically
	// identical to using |e|, so we use the absolute-value form directly.
	bayesFactor := math.Exp(0.5 * (offsetH*offsetH - 2*offsetH*math.Abs(e)))

	if bayesFactor < tau {
		return false
	}

	if h.CumBayes < 1.0 {
		h.SeqLen++
	} else {
		h.SeqLen = 1
	}
	h.CumBayes = bayesFactor * math.Min(1.0, h.CumBayes)

	if h.CumBayes < tau || h.SeqLen > runLengthM {
		return false
	}
	return true
}

// resetMonitor clears the monitor state after an intervention, per spec
// §4.1 "Intervention semantics".
func (h *Hypothesis) resetMonitor() {
	h.CumBayes = 1.0
	h.SeqLen = 0
}

// Update absorbs observation (z, r) into this hypothesis. Returns false
// (no mutation beyond the monitor state) if the monitor signals an
// intervention is required; the caller is then responsible for resetting
// this hypothesis's monitor and seeding a fresh one (spec §4.1 step 2,
// Intervention semantics).
func (h *Hypothesis) Update(z, r float64, p Parameters) bool {
	if !h.monitor(z, r, p.MonitorOffset, p.BayesFactorThreshold, p.RunLengthThreshold) {
		p.TraceFunc("hypothesis %d: intervention at z=%.3f r=%.3f", h.ID, z, r)
		return false
	}

	sysVariance := h.Variance * (1.0 - p.Discount) / p.Discount
	gain := h.PredVariance / (r + h.PredVariance)
	innovation := z - h.PredMean

	h.PredMean += gain * innovation
	h.Mean = h.PredMean
	h.Variance = r * h.PredVariance / (r + h.PredVariance)
	h.PredVariance = h.Variance + sysVariance

	h.NSamples++

	// Running sample variance, independent of the posterior-variance channel
	// above; selectable reporting mode (spec §3 "sample_var"). Delegated to
	// gonum's numerically-stable mean/variance pass rather than a hand-rolled
	// accumulator.
	h.samples = append(h.samples, z)
	if len(h.samples) > 1 {
		_, h.SampleVar = stat.MeanVariance(h.samples, nil)
	}

	return true
}

// reportedVariance returns the variance figure selected by mode: the
// posterior variance, the running sample variance (n>1), or the max of
// the two.
func (h *Hypothesis) reportedVariance(mode UncertaintyMode) float64 {
	switch mode {
	case UncertaintySample:
		return h.SampleVar
	case UncertaintyMax:
		return math.Max(h.Variance, h.SampleVar)
	default:
		return h.Variance
	}
}

// StdDevToCI converts a variance to a reported uncertainty at the
// configured confidence scale: sqrt(variance) * sd2conf_scale. Spec §4.2
// "Reporting uncertainty": always convert variance -> sd -> CI, never a
// raw variance.
func StdDevToCI(variance, scale float64) float64 {
	if variance <= 0 {
		return 0
	}
	return scale * math.Sqrt(variance)
}
