package movement

import (
	"context"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestInsertMovementReturnsIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	args := make([]any, 18)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectQuery("INSERT INTO product_movements").
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(77), created))

	batchID := int64(3)
	m, err := Build(Input{BatchID: &batchID, Type: TypeAdjustment, Quantity: 2, UnitCost: decimal.NewFromInt(1)}, created)
	require.NoError(t, err)

	saved, err := NewMovementQueries(mock).InsertMovement(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, int64(77), saved.ID)
	require.Equal(t, created, saved.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMovementsBuildsStoreAndRangeFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (from_store_id = $1 OR to_store_id = $1) AND movement_type = $2 AND movement_date >= $3 AND movement_date <= $4 ORDER BY movement_date DESC, id DESC LIMIT $5")).
		WithArgs(int64(8), "transfer", from, to, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	out, err := NewMovementQueries(mock).ListMovements(context.Background(), Filter{
		StoreID: 8, Type: TypeTransfer, From: from, To: to, Limit: 10,
	})
	require.NoError(t, err)
	require.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}
