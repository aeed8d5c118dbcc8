package masterinventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// TxRepository exposes the transactional operations the aggregator needs.
type TxRepository interface {
	SyncStore
	GetMasterInventory(ctx context.Context, productID int64) (MasterInventory, error)
	ListLowStockInventories(ctx context.Context) ([]MasterInventory, error)
	ListInventoriesByStatus(ctx context.Context, status StockStatus) ([]MasterInventory, error)
	ListStockedProductIDs(ctx context.Context) ([]int64, error)
}

// RepositoryPort describes repository behaviour required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// SyncReport summarises a reconciliation pass.
type SyncReport struct {
	Synced int     `json:"synced"`
	Failed []int64 `json:"failed,omitempty"`
}

// ServiceConfig tunes the aggregator.
type ServiceConfig struct {
	Concurrency int
}

// Service coordinates aggregate recomputation and reads.
type Service struct {
	repo        RepositoryPort
	cache       *Cache
	logger      *slog.Logger
	group       singleflight.Group
	concurrency int
	clock       func() time.Time
}

// NewService constructs the aggregator service.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		logger:      logger,
		concurrency: cfg.Concurrency,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Get returns the stored aggregate, served from cache when possible.
func (s *Service) Get(ctx context.Context, productID int64) (MasterInventory, error) {
	return s.cache.FetchJSON(ctx, productID, func(ctx context.Context) (MasterInventory, error) {
		var inv MasterInventory
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			inv, err = tx.GetMasterInventory(ctx, productID)
			return err
		})
		return inv, err
	})
}

// SyncInventory recomputes one product. Concurrent calls for the same product share one run.
func (s *Service) SyncInventory(ctx context.Context, productID int64) (MasterInventory, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(productID, 10), func() (any, error) {
		var inv MasterInventory
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			inv, err = Sync(ctx, tx, productID, s.clock())
			return err
		})
		if err != nil {
			return MasterInventory{}, err
		}
		if err := s.cache.Store(ctx, inv); err != nil {
			s.logger.Warn("cache inventory snapshot", slog.Int64("product_id", productID), slog.Any("error", err))
		}
		return inv, nil
	})
	if err != nil {
		return MasterInventory{}, err
	}
	return v.(MasterInventory), nil
}

// SyncAllInventories recomputes every stocked product with bounded concurrency. A failing
// product is logged and reported without stopping the pass.
func (s *Service) SyncAllInventories(ctx context.Context) (SyncReport, error) {
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.ListStockedProductIDs(ctx)
		return err
	})
	if err != nil {
		return SyncReport{}, fmt.Errorf("list products: %w", err)
	}

	var (
		synced atomic.Int64
		failed = make([]bool, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := s.SyncInventory(gctx, id); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failed[i] = true
				s.logger.Error("sync inventory", slog.Int64("product_id", id), slog.Any("error", err))
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	waitErr := g.Wait()

	report := SyncReport{Synced: int(synced.Load())}
	for i, f := range failed {
		if f {
			report.Failed = append(report.Failed, ids[i])
		}
	}
	if waitErr != nil {
		return report, waitErr
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump inventory cache", slog.Any("error", err))
	}
	s.logger.Info("synced inventories", slog.Int("synced", report.Synced), slog.Int("failed", len(report.Failed)))
	return report, nil
}

// UpdateThresholds stores new stock levels and reclassifies the product.
func (s *Service) UpdateThresholds(ctx context.Context, productID int64, t Thresholds) (MasterInventory, error) {
	if err := t.Validate(); err != nil {
		return MasterInventory{}, err
	}
	var inv MasterInventory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = syncWith(ctx, tx, productID, s.clock(), func(m *MasterInventory) {
			m.Thresholds = t
		})
		return err
	})
	if err != nil {
		return MasterInventory{}, err
	}
	if err := s.cache.Store(ctx, inv); err != nil {
		s.logger.Warn("cache inventory snapshot", slog.Int64("product_id", productID), slog.Any("error", err))
	}
	return inv, nil
}

// LowStockAlerts lists products at or under their minimum level or reorder point.
func (s *Service) LowStockAlerts(ctx context.Context) ([]MasterInventory, error) {
	var out []MasterInventory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListLowStockInventories(ctx)
		return err
	})
	return out, err
}

// Overstocked lists products classified as overstocked.
func (s *Service) Overstocked(ctx context.Context) ([]MasterInventory, error) {
	var out []MasterInventory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListInventoriesByStatus(ctx, StatusOverstocked)
		return err
	})
	return out, err
}

// StoreImbalances flags stores holding more than 50% above the product's per-store mean.
func (s *Service) StoreImbalances(ctx context.Context, productID int64) ([]Imbalance, error) {
	inv, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return StoreImbalances(inv.StoreBreakdown), nil
}

// Invalidate drops cached snapshots after another workflow committed a change.
func (s *Service) Invalidate(ctx context.Context, productIDs ...int64) {
	if s == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productIDs...); err != nil {
		s.logger.Warn("invalidate inventory cache", slog.Any("product_ids", productIDs), slog.Any("error", err))
	}
}

// Invalidator is implemented by Service; workflows call it after committing.
type Invalidator interface {
	Invalidate(ctx context.Context, productIDs ...int64)
}
