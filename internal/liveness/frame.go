package liveness

import (
	"image"
	"time"
)

// Frame is a single captured camera frame.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// ExpandRegion grows a face bounding box by padding pixels on every side,
// clamped to the frame bounds. The padding pulls cheek and forehead
// reflections into the measured region.
func ExpandRegion(region, bounds image.Rectangle, padding int) image.Rectangle {
	expanded := image.Rect(
		region.Min.X-padding,
		region.Min.Y-padding,
		region.Max.X+padding,
		region.Max.Y+padding,
	)
	return expanded.Intersect(bounds)
}

// RegionFromBBox converts a [x1, y1, x2, y2] bounding box, as reported by
// the face detection service, into an image.Rectangle.
func RegionFromBBox(bbox []float64) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3]))
}
