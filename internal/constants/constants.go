// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Capture constants
const (
	// BaselineFrameCount is the number of frames captured before the first
	// flash stage to establish the ambient baseline
	BaselineFrameCount = 5

	// StageFrameCount is the number of frames captured during each flash stage
	StageFrameCount = 5

	// FaceRegionPadding is the number of pixels added on each side of the
	// detected face box before measuring flash response
	FaceRegionPadding = 40

	// DefaultCaptureTimeoutSeconds bounds a whole check-in attempt
	DefaultCaptureTimeoutSeconds = 30

	// CaptureGracePeriodSeconds is the extra time allowed per stage for slow
	// camera snapshots before the stage is counted as missing
	CaptureGracePeriodSeconds = 2
)

// Matching constants
const (
	// DefaultMatchThreshold is the default maximum cosine distance for an
	// embedding to count as an identity match
	DefaultMatchThreshold = 0.4

	// DefaultTopK is the default number of nearest identities to retrieve
	// per match query
	DefaultTopK = 3
)

// Event streaming constants
const (
	// EventChannelBuffer is the buffer size of each subscriber channel;
	// slow subscribers drop events instead of blocking the session
	EventChannelBuffer = 64
)

// Enrollment constants
const (
	// MaxEnrollImageSize is the maximum dimension (width or height) sent to
	// the embedding service during enrollment
	MaxEnrollImageSize = 1920

	// MaxUploadBytes caps the accepted multipart upload size
	MaxUploadBytes = 20 << 20
)
