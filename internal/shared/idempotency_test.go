package shared

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewIdempotencyStore(mock)
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("sale:10:77", "barcode", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("sale:10:77", "barcode", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	require.NoError(t, store.CheckAndInsert(context.Background(), "sale:10:77", "barcode"))
	err = store.CheckAndInsert(context.Background(), "sale:10:77", "barcode")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPaginationOffset(t *testing.T) {
	p := NewPagination(3, 25, 80)
	require.Equal(t, 4, p.TotalPages)
	require.Equal(t, 50, p.Offset())
	require.Equal(t, 0, NewPagination(0, 0, 0).Offset())
}
