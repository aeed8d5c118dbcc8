package barcode

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestTransferUnitsDeactivatesDamaged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE barcode_units SET batch_id").
		WithArgs(int64(4), pgxmock.AnyArg(), pgxmock.AnyArg(), "defective", false, true, at, pgxmock.AnyArg(), 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	store := int64(7)
	n, err := NewBarcodeQueries(mock).TransferUnits(context.Background(), Transfer{
		FromBatchID: 4,
		ToStoreID:   &store,
		Status:      StatusDefective,
		Quantity:    2,
		At:          at,
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferUnitsSkipsEmptyRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := NewBarcodeQueries(mock).TransferUnits(context.Background(), Transfer{FromBatchID: 4, Status: StatusInShop})
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
