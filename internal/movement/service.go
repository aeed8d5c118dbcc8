package movement

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Record validates in and appends it through w. Callers pass the writer bound to the
// transaction that performs the documented change, so both commit or neither does.
func Record(ctx context.Context, w Writer, in Input, now time.Time) (Movement, error) {
	m, err := Build(in, now)
	if err != nil {
		return Movement{}, err
	}
	saved, err := w.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, fmt.Errorf("record %s movement: %w", in.Type, err)
	}
	return saved, nil
}

// Service exposes the movement query surface.
type Service struct {
	reader Reader
	log    *slog.Logger
}

// NewService constructs the query service.
func NewService(reader Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, log: logger}
}

// List returns movements matching filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Movement, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, ErrInvalidType
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, ErrInvalidRange
	}
	return s.reader.ListMovements(ctx, filter)
}

// ByBatch lists movements touching a batch as subject or transfer destination.
func (s *Service) ByBatch(ctx context.Context, batchID int64) ([]Movement, error) {
	return s.List(ctx, Filter{BatchID: batchID})
}

// ByBarcode lists movements for one unit.
func (s *Service) ByBarcode(ctx context.Context, barcodeID int64) ([]Movement, error) {
	return s.List(ctx, Filter{BarcodeID: barcodeID})
}

// ByStore lists movements leaving or entering a store.
func (s *Service) ByStore(ctx context.Context, storeID int64) ([]Movement, error) {
	return s.List(ctx, Filter{StoreID: storeID})
}

// ByType lists movements of one type.
func (s *Service) ByType(ctx context.Context, t Type) ([]Movement, error) {
	if !t.IsValid() {
		return nil, ErrInvalidType
	}
	return s.List(ctx, Filter{Type: t})
}

// ByDateRange lists movements dated within [from, to].
func (s *Service) ByDateRange(ctx context.Context, from, to time.Time) ([]Movement, error) {
	return s.List(ctx, Filter{From: from, To: to})
}

// History is the full location history of a unit, newest first.
func (s *Service) History(ctx context.Context, barcodeID int64) ([]Movement, error) {
	return s.ByBarcode(ctx, barcodeID)
}

// CurrentLocation resolves the destination store of the latest movement for a unit.
func (s *Service) CurrentLocation(ctx context.Context, barcodeID int64) (int64, error) {
	latest, err := s.List(ctx, Filter{BarcodeID: barcodeID, Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(latest) == 0 || latest[0].ToStoreID == nil {
		return 0, ErrNotFound
	}
	return *latest[0].ToStoreID, nil
}
