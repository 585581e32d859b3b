package liveness

import (
	"errors"
	"image"
	"reflect"
	"slices"
	"testing"
)

// testThresholds returns bands wide enough that only the signal under test
// decides the outcome, with a realistic brightness band.
func testThresholds() Thresholds {
	return Thresholds{
		Brightness:            Band{Min: 0.03, Max: 0.40},
		ColorVariance:         Band{Min: -1, Max: 1},
		EdgeDensity:           Band{Min: -1, Max: 1},
		Nonuniformity:         Band{Min: 0, Max: 10},
		MinValidStageFraction: 0.5,
	}
}

// testPattern returns a three-stage all-white pattern.
func testPattern() Pattern {
	p := DefaultPattern()
	return p
}

// liveSessionFrames builds a synthetic session: a uniform baseline at the
// given gray value and one gradient-response stage frame per delta.
func liveSessionFrames(base uint8, deltas []float64) (baseline []Frame, stages [][]Frame) {
	baseline = []Frame{
		frameOf(uniformImage(64, 64, base)),
		frameOf(uniformImage(64, 64, base)),
	}
	for _, d := range deltas {
		stages = append(stages, []Frame{frameOf(gradientImage(64, 64, float64(base), d))})
	}
	return baseline, stages
}

func mustEvaluator(t *testing.T, th Thresholds) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(th, nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return ev
}

func TestEvaluate_LiveResponse(t *testing.T) {
	// Stage brightness deltas of +40, +60, +80 on the 0-255 scale, matching
	// an increasing stimulus, with a spatial gradient as a live face shows.
	baseline, stages := liveSessionFrames(80, []float64{40, 60, 80})
	ev := mustEvaluator(t, testThresholds())

	decision, err := ev.Evaluate(baseline, image.Rect(0, 0, 64, 64), testPattern(), stages)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !decision.Live {
		t.Fatalf("expected live decision, got failed signals %v (features %+v)",
			decision.FailedSignals, decision.Features)
	}
	if decision.Features.ValidStages != 3 || decision.Features.TotalStages != 3 {
		t.Errorf("stages = %d/%d, want 3/3",
			decision.Features.ValidStages, decision.Features.TotalStages)
	}
}

func TestEvaluate_StaticPhotoFailsBrightness(t *testing.T) {
	// Near-zero deltas simulate a static photo that does not reflect the
	// flash. Only brightness should be named as failing.
	baseline, stages := liveSessionFrames(80, []float64{0, 1, 0})
	ev := mustEvaluator(t, testThresholds())

	decision, err := ev.Evaluate(baseline, image.Rect(0, 0, 64, 64), testPattern(), stages)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Live {
		t.Fatal("expected spoof decision for static photo")
	}
	if !slices.Contains(decision.FailedSignals, SignalBrightness) {
		t.Errorf("failed signals = %v, want brightness named", decision.FailedSignals)
	}
}

func TestEvaluate_NoFaceRegion(t *testing.T) {
	baseline, stages := liveSessionFrames(80, []float64{40, 60, 80})
	ev := mustEvaluator(t, testThresholds())

	_, err := ev.Evaluate(baseline, image.Rectangle{}, testPattern(), stages)
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("err = %v, want ErrNoFaceDetected", err)
	}
}

func TestEvaluate_ZeroValidStages(t *testing.T) {
	baseline := []Frame{frameOf(uniformImage(64, 64, 80))}
	stages := [][]Frame{nil, nil, nil}
	ev := mustEvaluator(t, testThresholds())

	_, err := ev.Evaluate(baseline, image.Rect(0, 0, 64, 64), testPattern(), stages)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestEvaluate_MinorityValidStagesFails(t *testing.T) {
	// Only one of three stages has frames; the majority requirement rejects
	// the session instead of deciding on thin data.
	baseline, full := liveSessionFrames(80, []float64{60, 60, 60})
	stages := [][]Frame{full[0], nil, nil}
	ev := mustEvaluator(t, testThresholds())

	_, err := ev.Evaluate(baseline, image.Rect(0, 0, 64, 64), testPattern(), stages)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestEvaluate_MajorityValidStagesSucceeds(t *testing.T) {
	baseline, full := liveSessionFrames(80, []float64{60, 60, 60})
	stages := [][]Frame{full[0], full[1], nil}
	ev := mustEvaluator(t, testThresholds())

	decision, err := ev.Evaluate(baseline, image.Rect(0, 0, 64, 64), testPattern(), stages)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Features.ValidStages != 2 {
		t.Errorf("valid stages = %d, want 2", decision.Features.ValidStages)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	baseline, stages := liveSessionFrames(80, []float64{40, 60, 80})
	ev := mustEvaluator(t, testThresholds())
	region := image.Rect(0, 0, 64, 64)

	first, err := ev.Evaluate(baseline, region, testPattern(), stages)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := ev.Evaluate(baseline, region, testPattern(), stages)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("decisions differ across runs:\n%+v\n%+v", first, second)
	}
}

func TestEvaluate_TighteningThresholdIsMonotonic(t *testing.T) {
	baseline, stages := liveSessionFrames(80, []float64{40, 60, 80})
	region := image.Rect(0, 0, 64, 64)

	base := testThresholds()
	decision, err := mustEvaluator(t, base).Evaluate(baseline, region, testPattern(), stages)
	if err != nil || !decision.Live {
		t.Fatalf("expected baseline live decision, got %+v, err %v", decision, err)
	}

	tighten := []struct {
		name   string
		mutate func(*Thresholds)
		signal Signal
	}{
		{"brightness min above response", func(th *Thresholds) { th.Brightness.Min = 0.9 }, SignalBrightness},
		{"brightness max below response", func(th *Thresholds) { th.Brightness.Min = 0; th.Brightness.Max = 0.001 }, SignalBrightness},
		{"color variance band excludes zero", func(th *Thresholds) { th.ColorVariance.Min = 0.5 }, SignalColorVariance},
		{"edge density band excludes zero", func(th *Thresholds) { th.EdgeDensity.Max = -0.5 }, SignalEdgeDensity},
		{"nonuniformity min above response", func(th *Thresholds) { th.Nonuniformity.Min = 5 }, SignalNonuniformity},
	}

	for _, tc := range tighten {
		t.Run(tc.name, func(t *testing.T) {
			th := base
			tc.mutate(&th)
			d, err := mustEvaluator(t, th).Evaluate(baseline, region, testPattern(), stages)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if d.Live {
				t.Fatal("tightened threshold must flip pass to fail")
			}
			if !slices.Contains(d.FailedSignals, tc.signal) {
				t.Errorf("failed signals = %v, want %s named", d.FailedSignals, tc.signal)
			}
		})
	}
}

func TestEvaluate_MismatchedStageCount(t *testing.T) {
	baseline, stages := liveSessionFrames(80, []float64{40, 60})
	ev := mustEvaluator(t, testThresholds())

	_, err := ev.Evaluate(baseline, image.Rect(0, 0, 64, 64), testPattern(), stages)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestNewEvaluator_InvalidThresholds(t *testing.T) {
	th := testThresholds()
	th.Brightness = Band{Min: 0.5, Max: 0.1}

	_, err := NewEvaluator(th, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigurationError", err)
	}
}

func TestDefaultThresholds_Valid(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("default thresholds invalid: %v", err)
	}
}

func TestDirectionAgreement_TracksStimulusOrdering(t *testing.T) {
	// Stages with identical stimulus brightness always agree.
	pattern := testPattern()
	baseline, stages := liveSessionFrames(80, []float64{60, 60, 60})
	ev := mustEvaluator(t, testThresholds())

	decision, err := ev.Evaluate(baseline, image.Rect(0, 0, 64, 64), pattern, stages)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Features.DirectionAgreement != 1.0 {
		t.Errorf("direction agreement = %f, want 1.0 for flat stimulus",
			decision.Features.DirectionAgreement)
	}
}
