package movement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubReader struct {
	got  Filter
	rows []Movement
}

func (s *stubReader) ListMovements(_ context.Context, filter Filter) ([]Movement, error) {
	s.got = filter
	if filter.Limit > 0 && len(s.rows) > filter.Limit {
		return s.rows[:filter.Limit], nil
	}
	return s.rows, nil
}

func TestCurrentLocationUsesLatestDestination(t *testing.T) {
	shop, warehouse := int64(2), int64(1)
	reader := &stubReader{rows: []Movement{
		{ID: 2, ToStoreID: &shop},
		{ID: 1, ToStoreID: &warehouse},
	}}
	svc := NewService(reader, nil)

	storeID, err := svc.CurrentLocation(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, shop, storeID)
	require.Equal(t, Filter{BarcodeID: 5, Limit: 1}, reader.got)
}

func TestCurrentLocationWithoutHistory(t *testing.T) {
	svc := NewService(&stubReader{}, nil)
	_, err := svc.CurrentLocation(context.Background(), 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestByTypeRejectsUnknownType(t *testing.T) {
	svc := NewService(&stubReader{}, nil)
	_, err := svc.ByType(context.Background(), "gift")
	require.ErrorIs(t, err, ErrInvalidType)
}
