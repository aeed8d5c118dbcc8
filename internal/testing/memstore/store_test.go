package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/movement"
)

func TestAtomicallyDiscardsFailedTransaction(t *testing.T) {
	s := New()
	store := s.AddStore("main", batch.StoreKindWarehouse, true)
	product := s.AddProduct(nil)
	b := s.AddBatch(batch.Batch{ProductID: product, StoreID: store, Quantity: 5, Availability: true, IsActive: true})

	boom := errors.New("boom")
	err := s.Atomically(context.Background(), func(ctx context.Context, tx *Tx) error {
		cur, err := tx.GetBatchForUpdate(ctx, b.ID)
		require.NoError(t, err)
		require.NoError(t, cur.Withdraw(2))
		require.NoError(t, tx.UpdateBatchStock(ctx, cur))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, ok := s.Batch(b.ID)
	require.True(t, ok)
	require.Equal(t, 5, got.Quantity)
}

func TestFailOnInjectsErrors(t *testing.T) {
	s := New()
	boom := errors.New("disk full")
	s.FailOn("InsertMovement", boom)

	batchID := int64(1)
	err := s.Atomically(context.Background(), func(ctx context.Context, tx *Tx) error {
		_, err := tx.InsertMovement(ctx, movement.Movement{BatchID: &batchID, Type: movement.TypeAdjustment, Quantity: 1})
		return err
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, s.Movements())

	s.FailOn("InsertMovement", nil)
	err = s.Atomically(context.Background(), func(ctx context.Context, tx *Tx) error {
		_, err := tx.InsertMovement(ctx, movement.Movement{BatchID: &batchID, Type: movement.TypeAdjustment, Quantity: 1})
		return err
	})
	require.NoError(t, err)
	require.Len(t, s.Movements(), 1)
}

func TestListMovementsMatchesEitherBatchSide(t *testing.T) {
	s := New()
	src, dst, other := int64(10), int64(11), int64(12)
	err := s.Atomically(context.Background(), func(ctx context.Context, tx *Tx) error {
		for _, m := range []movement.Movement{
			{BatchID: &src, RelatedBatchID: &dst, Type: movement.TypeTransfer, Quantity: 3},
			{BatchID: &other, Type: movement.TypeAdjustment, Quantity: 1},
		} {
			if _, err := tx.InsertMovement(ctx, m); err != nil {
				return err
			}
		}
		got, err := tx.ListMovements(ctx, movement.Filter{BatchID: dst})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, movement.TypeTransfer, got[0].Type)
		return nil
	})
	require.NoError(t, err)
}
