package liveness

import (
	"errors"
	"image/color"
	"math/rand"
	"testing"
	"time"
)

func TestPatternValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		wantErr bool
	}{
		{
			name:    "default pattern is valid",
			pattern: DefaultPattern(),
			wantErr: false,
		},
		{
			name:    "empty pattern",
			pattern: Pattern{},
			wantErr: true,
		},
		{
			name: "zero duration stage",
			pattern: Pattern{Stages: []Stage{
				{Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}, Duration: 0},
			}},
			wantErr: true,
		},
		{
			name: "negative duration stage",
			pattern: Pattern{Stages: []Stage{
				{Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}, Duration: -time.Second},
			}},
			wantErr: true,
		},
		{
			name: "stage color too dark",
			pattern: Pattern{Stages: []Stage{
				{Color: color.NRGBA{R: 20, G: 20, B: 20, A: 255}, Duration: DefaultStageDuration},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("error type = %T, want *ConfigurationError", err)
				}
			}
		})
	}
}

func TestStageBrightness(t *testing.T) {
	white := Stage{Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}}
	if got := white.Brightness(); got != 1.0 {
		t.Errorf("white brightness = %f, want 1.0", got)
	}

	black := Stage{Color: color.NRGBA{A: 255}}
	if got := black.Brightness(); got != 0.0 {
		t.Errorf("black brightness = %f, want 0.0", got)
	}

	// V channel is the max of R, G, B.
	blue := Stage{Color: color.NRGBA{B: 204, A: 255}}
	if got := blue.Brightness(); got != 0.8 {
		t.Errorf("blue brightness = %f, want 0.8", got)
	}
}

func TestStageHex(t *testing.T) {
	s := Stage{Color: color.NRGBA{R: 255, G: 64, B: 96, A: 255}}
	if got := s.Hex(); got != "#FF4060" {
		t.Errorf("Hex() = %q, want #FF4060", got)
	}
}

func TestRandomizedPattern(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := RandomizedPattern(5, DefaultStageDuration, rng)

	if len(p.Stages) != 5 {
		t.Fatalf("stages = %d, want 5", len(p.Stages))
	}
	if err := p.Validate(); err != nil {
		t.Errorf("randomized pattern invalid: %v", err)
	}

	// Same seed reproduces the same pattern; the stimulus is fixed once
	// generated.
	rng2 := rand.New(rand.NewSource(42))
	p2 := RandomizedPattern(5, DefaultStageDuration, rng2)
	for i := range p.Stages {
		if p.Stages[i].Color != p2.Stages[i].Color {
			t.Errorf("stage %d color differs for identical seed", i)
		}
	}
}
