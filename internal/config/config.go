package config

import (
	_ "embed"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/liveness"
)

//go:embed pattern.yaml
var patternYAML []byte

type Config struct {
	Camera      CameraConfig
	FaceService FaceServiceConfig
	Database    DatabaseConfig
	Mirror      MirrorConfig
	Web         WebConfig
	Liveness    LivenessConfig
	Matching    MatchingConfig
}

type CameraConfig struct {
	SnapshotURL string        // HTTP endpoint returning a single JPEG/PNG frame
	Timeout     time.Duration // per-snapshot request timeout (default 2s)
}

type FaceServiceConfig struct {
	URL     string        // embedding service base URL (e.g., http://localhost:8000)
	Dim     int           // embedding dimension (default 512)
	Timeout time.Duration // per-request timeout (default 10s)
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist identity HNSW index (optional, if empty index is rebuilt on startup)
}

type MirrorConfig struct {
	DSN string // MariaDB DSN for the attendance mirror (optional, e.g. attend:attend@tcp(mariadb:3306)/attendance)
}

type WebConfig struct {
	Port     int    // HTTP listen port (default 8080)
	APIToken string // optional bearer token; empty disables auth
}

type LivenessConfig struct {
	Thresholds     liveness.Thresholds
	PatternPath    string        // optional path to a pattern YAML overriding the embedded one
	CaptureTimeout time.Duration // bound on a whole check-in attempt
	GracePeriod    time.Duration // extra time per stage for slow snapshots
}

type MatchingConfig struct {
	TopK      int     // nearest identities retrieved per query
	Threshold float64 // maximum cosine distance counted as a match
}

// patternFile is the on-disk / embedded flash pattern format.
type patternFile struct {
	Stages []struct {
		Color      string `yaml:"color"`
		DurationMS int    `yaml:"duration_ms"`
	} `yaml:"stages"`
}

// Pattern loads the flash pattern, preferring PatternPath over the embedded
// default, and validates it.
func (c *LivenessConfig) Pattern() (liveness.Pattern, error) {
	raw := patternYAML
	if c.PatternPath != "" {
		data, err := os.ReadFile(c.PatternPath)
		if err != nil {
			return liveness.Pattern{}, &liveness.ConfigurationError{
				Field:  "pattern_path",
				Reason: fmt.Sprintf("reading %s: %v", c.PatternPath, err),
			}
		}
		raw = data
	}

	var pf patternFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return liveness.Pattern{}, &liveness.ConfigurationError{
			Field:  "pattern",
			Reason: "parsing pattern yaml: " + err.Error(),
		}
	}

	var p liveness.Pattern
	for _, s := range pf.Stages {
		col, err := parseHexColor(s.Color)
		if err != nil {
			return liveness.Pattern{}, &liveness.ConfigurationError{
				Field:  "pattern.stages.color",
				Reason: err.Error(),
			}
		}
		p.Stages = append(p.Stages, liveness.Stage{
			Color:    col,
			Duration: time.Duration(s.DurationMS) * time.Millisecond,
		})
	}
	if err := p.Validate(); err != nil {
		return liveness.Pattern{}, err
	}
	return p, nil
}

// parseHexColor parses "#RRGGBB" into an opaque color.
func parseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q, expected #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %v", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float. Negative
// values are allowed; band minimums can legitimately sit below zero.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a Go duration
// string ("2s", "500ms"). Returns the default if unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func livenessThresholds() liveness.Thresholds {
	th := liveness.DefaultThresholds()
	th.Brightness.Min = envFloat("LIVENESS_BRIGHTNESS_MIN", th.Brightness.Min)
	th.Brightness.Max = envFloat("LIVENESS_BRIGHTNESS_MAX", th.Brightness.Max)
	th.ColorVariance.Min = envFloat("LIVENESS_COLOR_VARIANCE_MIN", th.ColorVariance.Min)
	th.ColorVariance.Max = envFloat("LIVENESS_COLOR_VARIANCE_MAX", th.ColorVariance.Max)
	th.EdgeDensity.Min = envFloat("LIVENESS_EDGE_DENSITY_MIN", th.EdgeDensity.Min)
	th.EdgeDensity.Max = envFloat("LIVENESS_EDGE_DENSITY_MAX", th.EdgeDensity.Max)
	th.Nonuniformity.Min = envFloat("LIVENESS_NONUNIFORMITY_MIN", th.Nonuniformity.Min)
	th.Nonuniformity.Max = envFloat("LIVENESS_NONUNIFORMITY_MAX", th.Nonuniformity.Max)
	th.MinValidStageFraction = envFloat("LIVENESS_MIN_VALID_STAGE_FRACTION", th.MinValidStageFraction)
	return th
}

func Load() *Config {
	return &Config{
		Camera: CameraConfig{
			SnapshotURL: os.Getenv("CAMERA_SNAPSHOT_URL"),
			Timeout:     envDuration("CAMERA_TIMEOUT", 2*time.Second),
		},
		FaceService: FaceServiceConfig{
			URL:     os.Getenv("FACE_SERVICE_URL"),
			Dim:     envInt("FACE_SERVICE_DIM", 512),
			Timeout: envDuration("FACE_SERVICE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Mirror: MirrorConfig{
			DSN: os.Getenv("MIRROR_DATABASE_DSN"),
		},
		Web: WebConfig{
			Port:     envInt("PORT", 8080),
			APIToken: os.Getenv("API_TOKEN"),
		},
		Liveness: LivenessConfig{
			Thresholds:     livenessThresholds(),
			PatternPath:    os.Getenv("FLASH_PATTERN_PATH"),
			CaptureTimeout: envDuration("CAPTURE_TIMEOUT", constants.DefaultCaptureTimeoutSeconds*time.Second),
			GracePeriod:    envDuration("CAPTURE_GRACE_PERIOD", constants.CaptureGracePeriodSeconds*time.Second),
		},
		Matching: MatchingConfig{
			TopK:      envInt("MATCH_TOP_K", constants.DefaultTopK),
			Threshold: envFloat("MATCH_THRESHOLD", constants.DefaultMatchThreshold),
		},
	}
}
