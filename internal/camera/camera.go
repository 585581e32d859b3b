// Package camera provides frame acquisition for capture sessions. The kiosk
// camera is exposed as an HTTP snapshot endpoint; each request returns one
// freshly captured frame.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/facemark/facemark/internal/liveness"
)

// FrameSource produces frames on demand. Implementations must return the
// most recent frame available, not a buffered one; stale frames break the
// pairing between flash stages and their captures.
type FrameSource interface {
	NextFrame(ctx context.Context) (liveness.Frame, error)
}

// SnapshotClient fetches frames from an HTTP camera snapshot endpoint.
type SnapshotClient struct {
	parsedURL *url.URL
	client    *http.Client
}

// NewSnapshotClient creates a snapshot client for the given endpoint.
func NewSnapshotClient(snapshotURL string, timeout time.Duration) (*SnapshotClient, error) {
	if snapshotURL == "" {
		return nil, errors.New("camera snapshot URL is required")
	}
	parsed, err := url.Parse(strings.TrimSuffix(snapshotURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid camera URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid camera URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid camera URL: missing host")
	}
	return &SnapshotClient{
		parsedURL: parsed,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// NextFrame requests a single snapshot and decodes it.
func (c *SnapshotClient) NextFrame(ctx context.Context) (liveness.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.parsedURL.String(), nil)
	if err != nil {
		return liveness.Frame{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return liveness.Frame{}, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return liveness.Frame{}, fmt.Errorf("camera error (status %d): %s", resp.StatusCode, string(body))
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return liveness.Frame{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return liveness.Frame{Image: img, CapturedAt: time.Now()}, nil
}
