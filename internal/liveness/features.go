package liveness

import (
	"image"
	"math"
)

// blockGrid is the sub-block partition used for the nonuniformity score.
// A live 3D face reflects the flash unevenly across a 4x4 grid; a flat
// photo responds almost uniformly.
const blockGrid = 4

// nonuniformityEpsilon guards the std/mean division for near-zero deltas.
const nonuniformityEpsilon = 1e-8

// StageFeatures holds the per-stage response signals, each computed by
// comparing the stage frames against the pre-flash baseline.
type StageFeatures struct {
	// BrightnessDelta is the mean brightness increase of the face region,
	// normalized to [0, 1] and clipped at zero (the flash can only add light).
	BrightnessDelta float64 `json:"brightness_delta"`

	// ColorVarianceDelta is the change in mean per-channel color variance.
	ColorVarianceDelta float64 `json:"color_variance_delta"`

	// EdgeDensityDelta is the change in the fraction of edge pixels.
	EdgeDensityDelta float64 `json:"edge_density_delta"`

	// Nonuniformity is the spatial spread of the brightness response:
	// std/mean of per-block brightness deltas across the region.
	Nonuniformity float64 `json:"nonuniformity"`
}

// regionStats are the raw photometric measurements of one frame's face
// region. Stage and baseline stats are averaged per phase before the deltas
// in StageFeatures are formed.
type regionStats struct {
	brightness    float64   // mean HSV value channel, [0, 1]
	colorVariance float64   // mean of per-channel variances, [0, 1] scale
	edgeDensity   float64   // fraction of pixels on a Sobel edge
	blocks        []float64 // per-block mean brightness, row-major blockGrid x blockGrid
}

// computeRegionStats measures the face region of a single frame.
// Returns false when the region does not intersect the frame.
func computeRegionStats(img image.Image, region image.Rectangle) (regionStats, bool) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return regionStats{}, false
	}

	w := region.Dx()
	h := region.Dy()
	n := float64(w * h)

	luma := make([]float64, w*h)

	var sumV float64
	var sumR, sumG, sumB float64
	var sumR2, sumG2, sumB2 float64
	blockSum := make([]float64, blockGrid*blockGrid)
	blockCount := make([]float64, blockGrid*blockGrid)

	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16>>8) / 255.0
			g := float64(g16>>8) / 255.0
			b := float64(b16>>8) / 255.0

			v := math.Max(r, math.Max(g, b))
			sumV += v

			sumR += r
			sumG += g
			sumB += b
			sumR2 += r * r
			sumG2 += g * g
			sumB2 += b * b

			// ITU-R BT.601 luma for edge detection.
			luma[(y-region.Min.Y)*w+(x-region.Min.X)] = 0.299*r + 0.587*g + 0.114*b

			bi := blockIndex(x-region.Min.X, y-region.Min.Y, w, h)
			blockSum[bi] += v
			blockCount[bi]++
		}
	}

	varR := sumR2/n - (sumR/n)*(sumR/n)
	varG := sumG2/n - (sumG/n)*(sumG/n)
	varB := sumB2/n - (sumB/n)*(sumB/n)

	blocks := make([]float64, blockGrid*blockGrid)
	for i := range blocks {
		if blockCount[i] > 0 {
			blocks[i] = blockSum[i] / blockCount[i]
		}
	}

	return regionStats{
		brightness:    sumV / n,
		colorVariance: (varR + varG + varB) / 3.0,
		edgeDensity:   sobelEdgeDensity(luma, w, h),
		blocks:        blocks,
	}, true
}

// blockIndex maps a region-local pixel to its sub-block.
func blockIndex(x, y, w, h int) int {
	bx := x * blockGrid / w
	by := y * blockGrid / h
	if bx >= blockGrid {
		bx = blockGrid - 1
	}
	if by >= blockGrid {
		by = blockGrid - 1
	}
	return by*blockGrid + bx
}

// sobelEdgeThreshold is the gradient magnitude above which a pixel counts
// as an edge, on the [0, 1] luma scale.
const sobelEdgeThreshold = 0.25

// sobelEdgeDensity returns the fraction of interior pixels whose Sobel
// gradient magnitude exceeds the edge threshold.
func sobelEdgeDensity(luma []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}

	edges := 0
	total := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := luma[(y-1)*w+x+1] + 2*luma[y*w+x+1] + luma[(y+1)*w+x+1] -
				luma[(y-1)*w+x-1] - 2*luma[y*w+x-1] - luma[(y+1)*w+x-1]
			gy := luma[(y+1)*w+x-1] + 2*luma[(y+1)*w+x] + luma[(y+1)*w+x+1] -
				luma[(y-1)*w+x-1] - 2*luma[(y-1)*w+x] - luma[(y-1)*w+x+1]
			if math.Sqrt(gx*gx+gy*gy) > sobelEdgeThreshold {
				edges++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(edges) / float64(total)
}

// averageStats averages the raw measurements of several frames of the same
// phase (baseline or one stage). Averaging suppresses single-frame noise the
// same way the original check averaged its before/after captures.
func averageStats(stats []regionStats) (regionStats, bool) {
	if len(stats) == 0 {
		return regionStats{}, false
	}

	avg := regionStats{blocks: make([]float64, blockGrid*blockGrid)}
	n := float64(len(stats))
	for _, s := range stats {
		avg.brightness += s.brightness / n
		avg.colorVariance += s.colorVariance / n
		avg.edgeDensity += s.edgeDensity / n
		for i, b := range s.blocks {
			avg.blocks[i] += b / n
		}
	}
	return avg, true
}

// stageFeatures forms the four response signals from averaged baseline and
// stage measurements.
func stageFeatures(baseline, stage regionStats) StageFeatures {
	// Per-block brightness deltas, clipped at zero: the flash adds light,
	// a darkening response carries no liveness information.
	deltas := make([]float64, len(stage.blocks))
	var deltaSum float64
	for i := range stage.blocks {
		d := stage.blocks[i] - baseline.blocks[i]
		if d < 0 {
			d = 0
		}
		deltas[i] = d
		deltaSum += d
	}
	meanDelta := deltaSum / float64(len(deltas))

	nonuniformity := 0.0
	if meanDelta > nonuniformityEpsilon {
		var variance float64
		for _, d := range deltas {
			diff := d - meanDelta
			variance += diff * diff
		}
		variance /= float64(len(deltas))
		nonuniformity = math.Sqrt(variance) / (meanDelta + nonuniformityEpsilon)
	}

	brightnessDelta := stage.brightness - baseline.brightness
	if brightnessDelta < 0 {
		brightnessDelta = 0
	}

	return StageFeatures{
		BrightnessDelta:    brightnessDelta,
		ColorVarianceDelta: stage.colorVariance - baseline.colorVariance,
		EdgeDensityDelta:   stage.edgeDensity - baseline.edgeDensity,
		Nonuniformity:      nonuniformity,
	}
}

// computePhaseStats measures and averages all frames of one phase.
func computePhaseStats(frames []Frame, region image.Rectangle) (regionStats, bool) {
	var stats []regionStats
	for _, f := range frames {
		if f.Image == nil {
			continue
		}
		if s, ok := computeRegionStats(f.Image, region); ok {
			stats = append(stats, s)
		}
	}
	return averageStats(stats)
}
