package liveness

import (
	"fmt"
	"image"
	"math"
)

// Signal identifies one of the four liveness response signals.
type Signal string

// Signal names, used in decisions and diagnostics.
const (
	SignalBrightness    Signal = "brightness"
	SignalColorVariance Signal = "color_variance"
	SignalEdgeDensity   Signal = "edge_density"
	SignalNonuniformity Signal = "nonuniformity"
)

// orderedSignals fixes the reporting order of failing signals.
var orderedSignals = []Signal{
	SignalBrightness,
	SignalColorVariance,
	SignalEdgeDensity,
	SignalNonuniformity,
}

// Band is an inclusive [Min, Max] interval a signal must fall into for the
// session to count as live.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v falls inside the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Thresholds are the tunable live bands for each response signal. They are
// deployment configuration (camera quality, ambient lighting), never
// hard-coded in the decision logic.
type Thresholds struct {
	Brightness    Band `json:"brightness"`
	ColorVariance Band `json:"color_variance"`
	EdgeDensity   Band `json:"edge_density"`
	Nonuniformity Band `json:"nonuniformity"`

	// MinValidStageFraction is the fraction of pattern stages that must
	// yield valid frames; below it the session fails with
	// ErrInsufficientData instead of silently passing.
	MinValidStageFraction float64 `json:"min_valid_stage_fraction"`
}

// Validate checks the threshold setup at startup.
func (t Thresholds) Validate() error {
	bands := map[string]Band{
		"brightness":     t.Brightness,
		"color_variance": t.ColorVariance,
		"edge_density":   t.EdgeDensity,
		"nonuniformity":  t.Nonuniformity,
	}
	for name, b := range bands {
		if b.Min > b.Max {
			return &ConfigurationError{
				Field:  "thresholds." + name,
				Reason: fmt.Sprintf("min %g exceeds max %g", b.Min, b.Max),
			}
		}
	}
	if t.MinValidStageFraction <= 0 || t.MinValidStageFraction > 1 {
		return &ConfigurationError{
			Field:  "thresholds.min_valid_stage_fraction",
			Reason: "must be in (0, 1]",
		}
	}
	return nil
}

// DefaultThresholds returns the bands the check was originally tuned with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Brightness:            Band{Min: 0.03, Max: 0.40},
		ColorVariance:         Band{Min: -0.005, Max: 0.05},
		EdgeDensity:           Band{Min: -0.10, Max: 0.10},
		Nonuniformity:         Band{Min: 0.05, Max: 0.85},
		MinValidStageFraction: 0.5,
	}
}

// Features are the response signals aggregated across all valid stages,
// plus capture diagnostics.
type Features struct {
	StageFeatures

	// DirectionAgreement is the fraction of consecutive stage pairs whose
	// measured brightness deltas are ordered like the configured stage
	// brightness values. Reported for tuning; the band checks decide.
	DirectionAgreement float64 `json:"direction_agreement"`

	ValidStages int `json:"valid_stages"`
	TotalStages int `json:"total_stages"`
}

// Decision is the immutable outcome of one liveness evaluation.
type Decision struct {
	Live          bool     `json:"live"`
	Features      Features `json:"features"`
	FailedSignals []Signal `json:"failed_signals,omitempty"`
}

// Policy turns aggregated features into a decision. The default requires
// every signal inside its band; alternative aggregations (weighted scores)
// can be swapped in without touching feature extraction.
type Policy interface {
	Decide(f Features, t Thresholds) Decision
}

// AllBandsPolicy passes a session only when all four signals fall inside
// their live bands. Failing any one signal marks the session as spoofed and
// names the signal for diagnostics.
type AllBandsPolicy struct{}

// Decide implements Policy.
func (AllBandsPolicy) Decide(f Features, t Thresholds) Decision {
	values := map[Signal]float64{
		SignalBrightness:    f.BrightnessDelta,
		SignalColorVariance: f.ColorVarianceDelta,
		SignalEdgeDensity:   f.EdgeDensityDelta,
		SignalNonuniformity: f.Nonuniformity,
	}
	bands := map[Signal]Band{
		SignalBrightness:    t.Brightness,
		SignalColorVariance: t.ColorVariance,
		SignalEdgeDensity:   t.EdgeDensity,
		SignalNonuniformity: t.Nonuniformity,
	}

	var failed []Signal
	for _, sig := range orderedSignals {
		if !bands[sig].Contains(values[sig]) {
			failed = append(failed, sig)
		}
	}

	return Decision{
		Live:          len(failed) == 0,
		Features:      f,
		FailedSignals: failed,
	}
}

// Evaluator computes response features from a completed capture session and
// decides live-vs-spoof. Evaluation is pure: the same frames and thresholds
// always yield the same decision.
type Evaluator struct {
	thresholds Thresholds
	policy     Policy
}

// NewEvaluator validates the thresholds and builds an evaluator.
// A nil policy selects AllBandsPolicy.
func NewEvaluator(t Thresholds, policy Policy) (*Evaluator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = AllBandsPolicy{}
	}
	return &Evaluator{thresholds: t, policy: policy}, nil
}

// Thresholds returns the configured bands.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate decides whether the captured session is consistent with a live
// subject. The baseline frames were captured immediately before the pattern
// started; stageFrames[i] holds the frames captured during pattern stage i;
// region is the face bounding box tracked on the baseline frame.
//
// Errors: ErrNoFaceDetected when the region is empty, ErrInsufficientData
// when fewer than the configured fraction of stages produced usable frames.
func (e *Evaluator) Evaluate(baseline []Frame, region image.Rectangle, pattern Pattern, stageFrames [][]Frame) (Decision, error) {
	if err := pattern.Validate(); err != nil {
		return Decision{}, err
	}
	if region.Empty() {
		return Decision{}, ErrNoFaceDetected
	}
	if len(stageFrames) != len(pattern.Stages) {
		return Decision{}, fmt.Errorf("%d stage frame groups for %d pattern stages: %w",
			len(stageFrames), len(pattern.Stages), ErrInsufficientData)
	}

	baseStats, ok := computePhaseStats(baseline, region)
	if !ok {
		return Decision{}, ErrInsufficientData
	}

	perStage := make([]StageFeatures, 0, len(pattern.Stages))
	stageIdx := make([]int, 0, len(pattern.Stages))
	for i, frames := range stageFrames {
		stats, ok := computePhaseStats(frames, region)
		if !ok {
			// Face tracking lost the region for this stage; treat it
			// as missing data rather than failing the whole session.
			continue
		}
		perStage = append(perStage, stageFeatures(baseStats, stats))
		stageIdx = append(stageIdx, i)
	}

	total := len(pattern.Stages)
	valid := len(perStage)
	if valid == 0 || float64(valid) < e.thresholds.MinValidStageFraction*float64(total) {
		return Decision{}, ErrInsufficientData
	}

	features := aggregateFeatures(perStage, stageIdx, pattern)
	features.ValidStages = valid
	features.TotalStages = total

	return e.policy.Decide(features, e.thresholds), nil
}

// aggregateFeatures averages the per-stage signals and computes how well the
// measured brightness responses track the configured stimulus ordering.
func aggregateFeatures(perStage []StageFeatures, stageIdx []int, pattern Pattern) Features {
	var agg StageFeatures
	n := float64(len(perStage))
	for _, f := range perStage {
		agg.BrightnessDelta += f.BrightnessDelta / n
		agg.ColorVarianceDelta += f.ColorVarianceDelta / n
		agg.EdgeDensityDelta += f.EdgeDensityDelta / n
		agg.Nonuniformity += f.Nonuniformity / n
	}

	return Features{
		StageFeatures:      agg,
		DirectionAgreement: directionAgreement(perStage, stageIdx, pattern),
	}
}

// directionAgreement compares the ordering of measured brightness deltas of
// consecutive valid stages against the ordering of their configured stimulus
// brightness. 1.0 means every pair responded in the expected direction.
func directionAgreement(perStage []StageFeatures, stageIdx []int, pattern Pattern) float64 {
	if len(perStage) < 2 {
		return 1.0
	}

	pairs := 0
	agree := 0
	for i := 1; i < len(perStage); i++ {
		expected := pattern.Stages[stageIdx[i]].Brightness() - pattern.Stages[stageIdx[i-1]].Brightness()
		measured := perStage[i].BrightnessDelta - perStage[i-1].BrightnessDelta
		pairs++
		if sameDirection(expected, measured) {
			agree++
		}
	}
	return float64(agree) / float64(pairs)
}

// directionTolerance absorbs sensor noise when the expected or measured
// difference between two stages is essentially flat.
const directionTolerance = 0.01

func sameDirection(expected, measured float64) bool {
	if math.Abs(expected) < directionTolerance {
		return true
	}
	if math.Abs(measured) < directionTolerance {
		return false
	}
	return (expected > 0) == (measured > 0)
}
