package shipment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flakyTracker struct {
	failures int
	err      error
	calls    int
}

func (f *flakyTracker) Track(_ context.Context, number string) (Status, error) {
	f.calls++
	if f.calls <= f.failures {
		return Status{}, f.err
	}
	return Status{TrackingNumber: number, State: "delivered"}, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryingRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyTracker{failures: 2, err: errors.New("timeout")}
	r := NewRetrying(inner, RetryConfig{Attempts: 3}, nil)
	r.sleep = noSleep

	status, err := r.Track(context.Background(), "TRK-1")
	require.NoError(t, err)
	require.Equal(t, "delivered", status.State)
	require.Equal(t, 3, inner.calls)
}

func TestRetryingStopsOnPermanentError(t *testing.T) {
	inner := &flakyTracker{failures: 5, err: ErrPermanent}
	r := NewRetrying(inner, RetryConfig{Attempts: 4}, nil)
	r.sleep = noSleep

	_, err := r.Track(context.Background(), "TRK-1")
	require.ErrorIs(t, err, ErrPermanent)
	require.Equal(t, 1, inner.calls)
}

func TestRetryingGivesUpAfterAttempts(t *testing.T) {
	inner := &flakyTracker{failures: 10, err: errors.New("503")}
	r := NewRetrying(inner, RetryConfig{Attempts: 2}, nil)
	r.sleep = noSleep

	_, err := r.Track(context.Background(), "TRK-1")
	require.Error(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestHTTPTracker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracking/TRK-9":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"state":"in_transit","location":"Hub A"}`))
		case "/tracking/BUSY":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tracker := NewHTTPTracker(srv.URL+"/", time.Second)

	status, err := tracker.Track(context.Background(), "TRK-9")
	require.NoError(t, err)
	require.Equal(t, "in_transit", status.State)
	require.Equal(t, "TRK-9", status.TrackingNumber)

	_, err = tracker.Track(context.Background(), "MISSING")
	require.ErrorIs(t, err, ErrPermanent)

	_, err = tracker.Track(context.Background(), "BUSY")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPermanent)
}
