package liveness

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"
)

// uniformImage creates a w x h image filled with a single gray value.
func uniformImage(w, h int, gray uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: gray, G: gray, B: gray, A: 255})
		}
	}
	return img
}

// gradientImage creates an image whose gray value rises linearly from
// base+delta/2 at the left edge to base+delta at the right edge. The spatial
// ramp mimics the uneven flash response of a 3D face.
func gradientImage(w, h int, base, delta float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := base + delta*(0.5+0.5*float64(x)/float64(w-1))
			if v > 255 {
				v = 255
			}
			g := uint8(v)
			img.SetNRGBA(x, y, color.NRGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img
}

func frameOf(img image.Image) Frame {
	return Frame{Image: img, CapturedAt: time.Now()}
}

func TestComputeRegionStats_UniformImage(t *testing.T) {
	img := uniformImage(64, 64, 128)
	stats, ok := computeRegionStats(img, img.Bounds())
	if !ok {
		t.Fatal("expected stats for valid region")
	}

	want := 128.0 / 255.0
	if math.Abs(stats.brightness-want) > 0.01 {
		t.Errorf("brightness = %f, want ~%f", stats.brightness, want)
	}
	if stats.colorVariance > 1e-6 {
		t.Errorf("color variance = %f, want ~0 for uniform image", stats.colorVariance)
	}
	if stats.edgeDensity != 0 {
		t.Errorf("edge density = %f, want 0 for uniform image", stats.edgeDensity)
	}
	if len(stats.blocks) != blockGrid*blockGrid {
		t.Fatalf("blocks = %d, want %d", len(stats.blocks), blockGrid*blockGrid)
	}
	for i, b := range stats.blocks {
		if math.Abs(b-want) > 0.01 {
			t.Errorf("block %d brightness = %f, want ~%f", i, b, want)
		}
	}
}

func TestComputeRegionStats_EmptyRegion(t *testing.T) {
	img := uniformImage(32, 32, 100)

	if _, ok := computeRegionStats(img, image.Rect(100, 100, 120, 120)); ok {
		t.Error("expected no stats for region outside image bounds")
	}
	if _, ok := computeRegionStats(img, image.Rectangle{}); ok {
		t.Error("expected no stats for empty region")
	}
}

func TestComputeRegionStats_EdgeDensity(t *testing.T) {
	// Vertical black/white stripes produce a dense edge response.
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			g := uint8(0)
			if (x/4)%2 == 0 {
				g = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: g, G: g, B: g, A: 255})
		}
	}

	stats, ok := computeRegionStats(img, img.Bounds())
	if !ok {
		t.Fatal("expected stats")
	}
	if stats.edgeDensity <= 0.1 {
		t.Errorf("edge density = %f, want > 0.1 for striped image", stats.edgeDensity)
	}
}

func TestStageFeatures_BrightnessDelta(t *testing.T) {
	base := uniformImage(64, 64, 80)
	lit := uniformImage(64, 64, 140)

	baseStats, _ := computeRegionStats(base, base.Bounds())
	litStats, _ := computeRegionStats(lit, lit.Bounds())

	f := stageFeatures(baseStats, litStats)

	want := 60.0 / 255.0
	if math.Abs(f.BrightnessDelta-want) > 0.01 {
		t.Errorf("brightness delta = %f, want ~%f", f.BrightnessDelta, want)
	}
	// Uniform response across all blocks leaves no spatial spread.
	if f.Nonuniformity > 0.01 {
		t.Errorf("nonuniformity = %f, want ~0 for uniform change", f.Nonuniformity)
	}
}

func TestStageFeatures_DarkeningClipsToZero(t *testing.T) {
	base := uniformImage(64, 64, 140)
	darker := uniformImage(64, 64, 80)

	baseStats, _ := computeRegionStats(base, base.Bounds())
	darkStats, _ := computeRegionStats(darker, darker.Bounds())

	f := stageFeatures(baseStats, darkStats)
	if f.BrightnessDelta != 0 {
		t.Errorf("brightness delta = %f, want 0 for darkening response", f.BrightnessDelta)
	}
}

func TestStageFeatures_NonuniformityForGradientResponse(t *testing.T) {
	base := uniformImage(64, 64, 80)
	lit := gradientImage(64, 64, 80, 60)

	baseStats, _ := computeRegionStats(base, base.Bounds())
	litStats, _ := computeRegionStats(lit, lit.Bounds())

	f := stageFeatures(baseStats, litStats)
	if f.Nonuniformity <= 0.05 {
		t.Errorf("nonuniformity = %f, want > 0.05 for gradient response", f.Nonuniformity)
	}
	if f.Nonuniformity >= 0.85 {
		t.Errorf("nonuniformity = %f, want < 0.85 for plausible live response", f.Nonuniformity)
	}
}

func TestAverageStats(t *testing.T) {
	a, _ := computeRegionStats(uniformImage(32, 32, 100), image.Rect(0, 0, 32, 32))
	b, _ := computeRegionStats(uniformImage(32, 32, 200), image.Rect(0, 0, 32, 32))

	avg, ok := averageStats([]regionStats{a, b})
	if !ok {
		t.Fatal("expected averaged stats")
	}
	want := 150.0 / 255.0
	if math.Abs(avg.brightness-want) > 0.01 {
		t.Errorf("averaged brightness = %f, want ~%f", avg.brightness, want)
	}

	if _, ok := averageStats(nil); ok {
		t.Error("expected no stats for empty input")
	}
}

func TestExpandRegion(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 200)

	got := ExpandRegion(image.Rect(50, 50, 100, 100), bounds, 40)
	want := image.Rect(10, 10, 140, 140)
	if got != want {
		t.Errorf("expanded region = %v, want %v", got, want)
	}

	// Clamped at the frame border.
	got = ExpandRegion(image.Rect(10, 10, 190, 190), bounds, 40)
	if got != bounds {
		t.Errorf("expanded region = %v, want clamped to %v", got, bounds)
	}
}

func TestRegionFromBBox(t *testing.T) {
	got := RegionFromBBox([]float64{10.2, 20.9, 110.5, 220.1})
	want := image.Rect(10, 20, 110, 220)
	if got != want {
		t.Errorf("region = %v, want %v", got, want)
	}

	if !RegionFromBBox([]float64{1, 2, 3}).Empty() {
		t.Error("expected empty region for malformed bbox")
	}
}
