// Package liveness implements the flash-response liveness check: a timed
// sequence of on-screen color stimuli is presented while camera frames are
// captured, and the photometric response of the face region is compared
// against configured bands to separate live subjects from photos, screens
// and replayed video.
package liveness

import (
	"fmt"
	"image/color"
	"math/rand"
	"time"
)

// Stage is a single step of a flash pattern: the color rendered full-screen
// and how long it stays up.
type Stage struct {
	Color    color.NRGBA
	Duration time.Duration
}

// Brightness returns the stage's stimulus brightness in [0, 1], the HSV
// value channel of the configured color.
func (s Stage) Brightness() float64 {
	v := max(s.Color.R, s.Color.G, s.Color.B)
	return float64(v) / 255.0
}

// Hex returns the stage color as a #RRGGBB string for the dashboard.
func (s Stage) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", s.Color.R, s.Color.G, s.Color.B)
}

// Pattern is an ordered flash stimulus sequence. The pattern is fixed before
// a session starts; frames are matched to stages strictly in order.
type Pattern struct {
	Stages []Stage
}

// minStageBrightness is the darkest stage color that still provokes a
// measurable reflectance change on a face at typical screen distance.
const minStageBrightness = 0.5

// Validate checks the pattern before a session may use it.
func (p Pattern) Validate() error {
	if len(p.Stages) == 0 {
		return &ConfigurationError{Field: "pattern", Reason: "pattern has no stages"}
	}
	for i, stage := range p.Stages {
		if stage.Duration <= 0 {
			return &ConfigurationError{
				Field:  fmt.Sprintf("pattern.stages[%d].duration", i),
				Reason: "stage duration must be positive",
			}
		}
		if stage.Brightness() < minStageBrightness {
			return &ConfigurationError{
				Field:  fmt.Sprintf("pattern.stages[%d].color", i),
				Reason: fmt.Sprintf("stage color too dark (brightness %.2f, need >= %.2f)", stage.Brightness(), minStageBrightness),
			}
		}
	}
	return nil
}

// DefaultStageDuration mirrors the flash-on-screen time the check was tuned
// with (FLASH_DURATION_MS).
const DefaultStageDuration = 160 * time.Millisecond

// DefaultPattern returns the standard three-stage white/green/red pattern.
func DefaultPattern() Pattern {
	return Pattern{Stages: []Stage{
		{Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}, Duration: DefaultStageDuration},
		{Color: color.NRGBA{R: 0, G: 255, B: 128, A: 255}, Duration: DefaultStageDuration},
		{Color: color.NRGBA{R: 255, G: 64, B: 96, A: 255}, Duration: DefaultStageDuration},
	}}
}

// RandomizedPattern generates n stages of random bright colors. Randomizing
// the stimulus makes pre-recorded replay attacks useless; the pattern is
// generated once per session and fixed from then on.
func RandomizedPattern(n int, duration time.Duration, rng *rand.Rand) Pattern {
	stages := make([]Stage, n)
	for i := range n {
		stages[i] = Stage{Color: randomBrightColor(rng), Duration: duration}
	}
	return Pattern{Stages: stages}
}

// randomBrightColor picks a random hue with high saturation and value so the
// stimulus always clears the minimum stage brightness.
func randomBrightColor(rng *rand.Rand) color.NRGBA {
	h := rng.Float64() * 360.0
	s := 0.4 + rng.Float64()*0.6
	v := 0.8 + rng.Float64()*0.2
	return hsvToNRGBA(h, s, v)
}

// hsvToNRGBA converts HSV (h in degrees, s and v in [0,1]) to NRGBA.
func hsvToNRGBA(h, s, v float64) color.NRGBA {
	c := v * s
	hp := h / 60.0
	x := c * (1 - abs(mod2(hp)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := v - c
	return color.NRGBA{
		R: uint8((r + m) * 255),
		G: uint8((g + m) * 255),
		B: uint8((b + m) * 255),
		A: 255,
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// mod2 returns f modulo 2 for non-negative f.
func mod2(f float64) float64 {
	for f >= 2 {
		f -= 2
	}
	return f
}
