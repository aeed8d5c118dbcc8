package stockops

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for stock operations.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*batch.BatchQueries
	*barcode.BarcodeQueries
	*movement.MovementQueries
	*masterinventory.InventoryQueries
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			BatchQueries:     batch.NewBatchQueries(tx),
			BarcodeQueries:   barcode.NewBarcodeQueries(tx),
			MovementQueries:  movement.NewMovementQueries(tx),
			InventoryQueries: masterinventory.NewInventoryQueries(tx),
		})
	})
}
