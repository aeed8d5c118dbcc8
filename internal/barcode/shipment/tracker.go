// Package shipment abstracts the external carrier that tracks customer shipments.
package shipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status is the carrier's view of a tracking number.
type Status struct {
	TrackingNumber string    `json:"tracking_number"`
	State          string    `json:"state"`
	Location       string    `json:"location,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Tracker looks up shipment status at the carrier.
type Tracker interface {
	Track(ctx context.Context, trackingNumber string) (Status, error)
}

// ErrPermanent marks carrier errors that retrying cannot fix.
var ErrPermanent = errors.New("shipment: permanent carrier error")

// HTTPTracker queries a carrier tracking endpoint at {BaseURL}/tracking/{number}.
type HTTPTracker struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTracker constructs a tracker with a bounded client timeout.
func NewHTTPTracker(baseURL string, timeout time.Duration) *HTTPTracker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPTracker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Track implements Tracker.
func (t *HTTPTracker) Track(ctx context.Context, trackingNumber string) (Status, error) {
	if trackingNumber == "" {
		return Status{}, fmt.Errorf("tracking number required: %w", ErrPermanent)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/tracking/"+url.PathEscape(trackingNumber), nil)
	if err != nil {
		return Status{}, fmt.Errorf("build tracking request: %w", ErrPermanent)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("carrier request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Status{}, fmt.Errorf("carrier responded %d", resp.StatusCode)
	default:
		return Status{}, fmt.Errorf("carrier responded %d: %w", resp.StatusCode, ErrPermanent)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("decode carrier status: %v: %w", err, ErrPermanent)
	}
	if status.TrackingNumber == "" {
		status.TrackingNumber = trackingNumber
	}
	return status, nil
}

// RetryConfig bounds retry attempts.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Retrying retries transient tracker failures with exponential backoff.
type Retrying struct {
	next   Tracker
	cfg    RetryConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next.
func NewRetrying(next Tracker, cfg RetryConfig, logger *slog.Logger) *Retrying {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, cfg: cfg, logger: logger, sleep: sleepContext}
}

// Track implements Tracker.
func (r *Retrying) Track(ctx context.Context, trackingNumber string) (Status, error) {
	delay := r.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		status, err := r.next.Track(ctx, trackingNumber)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if errors.Is(err, ErrPermanent) || ctx.Err() != nil {
			break
		}
		if attempt == r.cfg.Attempts {
			break
		}
		r.logger.Debug("retry shipment tracking", slog.String("tracking_number", trackingNumber), slog.Int("attempt", attempt), slog.Any("error", err))
		if err := r.sleep(ctx, delay); err != nil {
			return Status{}, err
		}
		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
	return Status{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
