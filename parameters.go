package cube

import (
	"fmt"
	"math"
)

// DisambiguationMethod selects the policy Grid uses to collapse a node's
// competing hypotheses into a single reported depth at extraction time.
// Spec §4.3.
type DisambiguationMethod int

const (
	// PRIOR reports the hypothesis with the greatest n_samples.
	PRIOR DisambiguationMethod = iota
	// LIKELIHOOD searches nearby nodes for a single-hypothesis guide and
	// picks the hypothesis closest to it in standardized distance.
	LIKELIHOOD
	// POSTERIOR is like LIKELIHOOD but selects by a simplified log-posterior.
	POSTERIOR
	// PREDSURF uses the node's own predicted-depth prior as the guide.
	PREDSURF
)

func (m DisambiguationMethod) String() string {
	switch m {
	case PRIOR:
		return "PRIOR"
	case LIKELIHOOD:
		return "LIKELIHOOD"
	case POSTERIOR:
		return "POSTERIOR"
	case PREDSURF:
		return "PREDSURF"
	default:
		return "UNKNOWN"
	}
}

// UncertaintyMode selects which variance Node.Extract reports as the
// uncertainty figure: the posterior variance (default), the running sample
// variance (option A), or the max of the two (option B). Spec §4.2.
type UncertaintyMode int

const (
	UncertaintyPosterior UncertaintyMode = iota
	UncertaintySample
	UncertaintyMax
)

// NoDataValue is the platform sentinel for "no data at this node", a large
// finite magnitude distinct from the in-memory cache-invalid NaN marker
// (spec §6). Upstream map-sheet producers in the original system define
// this value; we pin one constant for the whole module.
const NoDataValue float32 = 1.0e10

// cacheInvalid is the canonical quiet-NaN used exclusively to mark a grid
// cache cell as stale. It is never the value returned to a caller (spec P4).
var cacheInvalid = math.Float32frombits(0x7FC00000)

// Parameters is the immutable configuration record consulted by Hypothesis,
// Node, and Grid (spec §3, C4). Build one with NewParametersBuilder or
// DefaultParameters; a Grid clones it on construction and never mutates it.
type Parameters struct {
	NullDepth    float64
	NullVariance float64

	DistExp    float64 // distance exponent for dilution
	InvDistExp float64 // 1/DistExp, kept alongside per spec (avoids repeated division)

	IHOFixed   float64 // fixed component of the IHO allowable-error budget, m^2
	IHOPercent float64 // percent-of-depth component (squared), unitless

	MedianLength int // odd, 3..101
	QuotientLim  float64 // Eeg quotient outlier-rejection limit, 0.10..255.0

	Discount float64 // delta, evolution discount factor, 0.8..1.0

	MonitorOffset        float64 // h, West-Harrison monitor offset
	BayesFactorThreshold float64 // tau
	RunLengthThreshold   int     // M

	Disambiguation DisambiguationMethod
	Uncertainty    UncertaintyMode

	MinContext float64 // node units
	MaxContext float64 // node units

	Sd2ConfScale float64 // std-dev -> CI scale, e.g. 1.96 for 95%

	BlunderMin    float64 // m
	BlunderPercent float64 // fraction of target depth
	BlunderScalar float64 // multiple of sqrt(pred_var)

	CaptureDistScale float64 // fraction of predicted/target depth, e.g. 0.05

	StrengthRatioCeil float64 // R_max, typically 5.0

	// TraceFunc, if non-nil, is invoked when the monitor signals an
	// intervention, for operational visibility. Default is a no-op. It is
	// left out of JSON encodings. Spec SPEC_FULL §12 / DESIGN NOTES §9
	// ("debug trace is an injected sink" instead of the source's static
	// file handles).
	TraceFunc func(format string, args ...any) `json:"-"`
}

// DefaultParameters returns the parameter set matching the original CUBE
// default table (original_source/libsrc/cube/cube.c's default_param),
// translated to the names used here.
func DefaultParameters() Parameters {
	p := Parameters{
		NullDepth:            0.0,
		NullVariance:         1.0e6,
		DistExp:              2.0,
		InvDistExp:           0.5,
		IHOFixed:             0.25, // order-1a fixed component, m^2 (0.5m^2 s.d.)
		IHOPercent:           0.0013, // order-1a percent component squared
		MedianLength:         11,
		QuotientLim:          30.0,
		Discount:             1.0,
		MonitorOffset:        4.0,
		BayesFactorThreshold: 0.135,
		RunLengthThreshold:   5,
		Disambiguation:       LIKELIHOOD,
		Uncertainty:          UncertaintyPosterior,
		MinContext:           5.0,
		MaxContext:           10.0,
		Sd2ConfScale:         1.96,
		BlunderMin:           10.0,
		BlunderPercent:       0.25,
		BlunderScalar:        3.0,
		CaptureDistScale:     5.00 / 100.0,
		StrengthRatioCeil:    5.0,
		TraceFunc:            func(string, ...any) {},
	}
	return p
}

// ParametersBuilder assembles a Parameters value field-by-field from an
// external, string-keyed source (the parameter-file parsing module is an
// explicit external collaborator per spec §1) before validating and
// freezing it. Mirrors the name/enum lookup table in
// original_source/libsrc/ccom_core/params.c.
type ParametersBuilder struct {
	params Parameters
	err    error
}

// NewParametersBuilder starts from DefaultParameters.
func NewParametersBuilder() *ParametersBuilder {
	return &ParametersBuilder{params: DefaultParameters()}
}

// Set assigns a named field by its CUBE parameter-table key, matching the
// source's "median_length", "eeg_q_limit", "evolution_discount",
// "monitor_tau" (we use bayes_factor_threshold as the canonical name, tau
// as an alias), etc. An unknown key is recorded and makes Build return
// ErrBadConfig; later Set calls are then ignored.
func (b *ParametersBuilder) Set(name string, value float64) *ParametersBuilder {
	if b.err != nil {
		return b
	}
	switch name {
	case "null_depth":
		b.params.NullDepth = value
	case "null_variance":
		b.params.NullVariance = value
	case "dist_exp":
		b.params.DistExp = value
		b.params.InvDistExp = 1.0 / value
	case "iho_fixed":
		b.params.IHOFixed = value
	case "iho_percent":
		b.params.IHOPercent = value
	case "median_length":
		b.params.MedianLength = int(value)
	case "eeg_q_limit", "quotient_limit":
		b.params.QuotientLim = value
	case "evolution_discount", "discount":
		b.params.Discount = value
	case "monitor_offset", "est_offset":
		b.params.MonitorOffset = value
	case "monitor_tau", "bayes_factor_threshold":
		b.params.BayesFactorThreshold = value
	case "run_length_threshold", "runlength_threshold":
		b.params.RunLengthThreshold = int(value)
	case "min_context":
		b.params.MinContext = value
	case "max_context":
		b.params.MaxContext = value
	case "sd2conf_scale":
		b.params.Sd2ConfScale = value
	case "blunder_min":
		b.params.BlunderMin = value
	case "blunder_pcent", "blunder_percent":
		b.params.BlunderPercent = value
	case "blunder_scalar":
		b.params.BlunderScalar = value
	case "capture_dist":
		b.params.CaptureDistScale = value / 100.0
	case "strength_ratio_ceil":
		b.params.StrengthRatioCeil = value
	default:
		b.err = fmt.Errorf("%w: unknown parameter %q", ErrBadConfig, name)
	}
	return b
}

// SetDisambiguation sets the disambiguation method by name.
func (b *ParametersBuilder) SetDisambiguation(m DisambiguationMethod) *ParametersBuilder {
	b.params.Disambiguation = m
	return b
}

// SetUncertaintyMode sets the reported uncertainty mode.
func (b *ParametersBuilder) SetUncertaintyMode(m UncertaintyMode) *ParametersBuilder {
	b.params.Uncertainty = m
	return b
}

// SetTrace installs a debug trace sink.
func (b *ParametersBuilder) SetTrace(fn func(string, ...any)) *ParametersBuilder {
	b.params.TraceFunc = fn
	return b
}

// Build validates and freezes the Parameters value. Returns ErrBadConfig
// wrapped with the offending field if any documented range is violated.
func (b *ParametersBuilder) Build() (Parameters, error) {
	if b.err != nil {
		return Parameters{}, b.err
	}
	p := b.params
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	if p.TraceFunc == nil {
		p.TraceFunc = func(string, ...any) {}
	}
	return p, nil
}

// Validate checks every documented range in spec §3. Returns ErrBadConfig
// wrapped with the specific violation on failure.
func (p Parameters) Validate() error {
	if p.MedianLength < 3 || p.MedianLength > 101 || p.MedianLength%2 == 0 {
		return fmt.Errorf("%w: median_length must be odd in [3,101], got %d", ErrBadConfig, p.MedianLength)
	}
	if p.Discount < 0.8 || p.Discount > 1.0 {
		return fmt.Errorf("%w: evolution_discount must be in [0.8,1.0], got %v", ErrBadConfig, p.Discount)
	}
	if p.QuotientLim < 0.10 || p.QuotientLim > 255.0 {
		return fmt.Errorf("%w: eeg_q_limit must be in [0.10,255.0], got %v", ErrBadConfig, p.QuotientLim)
	}
	if p.MonitorOffset < 0.1 || p.MonitorOffset > 10.0 {
		return fmt.Errorf("%w: monitor_offset must be in [0.1,10.0], got %v", ErrBadConfig, p.MonitorOffset)
	}
	if p.BayesFactorThreshold < 0.001 || p.BayesFactorThreshold > 10.0 {
		return fmt.Errorf("%w: bayes_factor_threshold must be in [0.001,10.0], got %v", ErrBadConfig, p.BayesFactorThreshold)
	}
	if p.RunLengthThreshold < 1 {
		return fmt.Errorf("%w: run_length_threshold must be >= 1, got %d", ErrBadConfig, p.RunLengthThreshold)
	}
	if p.BlunderMin < 1.0 || p.BlunderMin > 1000.0 {
		return fmt.Errorf("%w: blunder_min must be in [1,1000], got %v", ErrBadConfig, p.BlunderMin)
	}
	if p.BlunderPercent < 0.0 || p.BlunderPercent > 1.0 {
		return fmt.Errorf("%w: blunder_pcent must be in [0,1], got %v", ErrBadConfig, p.BlunderPercent)
	}
	if p.BlunderScalar < 0.0 || p.BlunderScalar > 10.0 {
		return fmt.Errorf("%w: blunder_scalar must be in [0,10], got %v", ErrBadConfig, p.BlunderScalar)
	}
	if p.CaptureDistScale <= 0 || p.CaptureDistScale > 1.0 {
		return fmt.Errorf("%w: capture_dist must be in (0,100] percent, got %v", ErrBadConfig, p.CaptureDistScale*100)
	}
	if p.DistExp <= 0 {
		return fmt.Errorf("%w: dist_exp must be > 0, got %v", ErrBadConfig, p.DistExp)
	}
	return nil
}

// EstimateSquareSide solves the quadratic described in spec §5 for the
// largest square grid side that fits within budgetBytes, given the
// expected number of hypotheses per node: a*n^2 - budget = 0 with
// a = sizeof(f32) + sizeof(NodeHeader) + queue + E*hypo. There is no
// p_use fraction: every node is assumed to hold a full queue and E
// hypotheses, and the linear and constant terms are zero.
func EstimateSquareSide(budgetBytes int64, expectedHypotheses float64, p Parameters) int {
	const (
		sizeofF32        = 4.0
		sizeofNodeHeader = 32.0 // queue-length, pointer placeholders, pred_depth, pred_var, debug
		sizeofQueueEntry = 8.0  // (depth, variance) pair
		sizeofHypothesis = 48.0
	)
	queueBytes := float64(p.MedianLength) * sizeofQueueEntry
	hypoBytes := expectedHypotheses * sizeofHypothesis

	a := sizeofF32 + sizeofNodeHeader + queueBytes + hypoBytes
	b := 0.0
	c := -float64(budgetBytes)

	disc := b*b - 4*a*c
	if disc < 0 || a <= 0 {
		return 0
	}
	n := (-b + math.Sqrt(disc)) / (2 * a)
	if n < 0 {
		return 0
	}
	return int(n)
}
