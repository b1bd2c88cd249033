package source

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/pkg/models"
)

const cameraAttempts = 3

// cameraSource pulls a still frame from a camera snapshot endpoint
type cameraSource struct {
	snapshotURL string
	limits      Limits
	client      *http.Client
	backoff     func(attempt int) time.Duration
}

// NewCameraSource creates a source that grabs one JPEG/PNG frame per capture
// from snapshotURL
func NewCameraSource(snapshotURL string, timeout time.Duration, limits Limits) ImageSource {
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &cameraSource{
		snapshotURL: snapshotURL,
		limits:      limits,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * time.Second
		},
	}
}

func (s *cameraSource) Name() string { return "camera" }

func (s *cameraSource) Acquire(ctx context.Context, _ Request) (*models.Image, error) {
	data, err := s.fetchFrame(ctx)
	if err != nil {
		return nil, apperrors.NewCaptureError("no frame available from camera", err)
	}
	return decodeImage(data, path.Base(s.snapshotURL), s.limits.MaxPixels)
}

// fetchFrame retries transport errors and 5xx responses; 4xx responses are
// final
func (s *cameraSource) fetchFrame(ctx context.Context) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < cameraAttempts; attempt++ {
		data, retryable, err := s.fetchOnce(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable || attempt == cameraAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff(attempt)):
		}
	}

	return nil, fmt.Errorf("failed to fetch frame after %d attempts: %w", cameraAttempts, lastErr)
}

func (s *cameraSource) fetchOnce(ctx context.Context) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.snapshotURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, */*")
	req.Header.Set("User-Agent", "Go-Quiz-Helper/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, s.limits.MaxBytes)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}
