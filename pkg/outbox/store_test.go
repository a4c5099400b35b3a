package outbox

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewStore(db), mock, db
}

func TestEnqueue(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("new marker inserts a row", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO spans_outbox`).
			WithArgs("span-1", OperationInsert).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.Enqueue(ctx, "span-1", OperationInsert))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate marker is a silent no-op", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO spans_outbox`).
			WithArgs("span-1", OperationInsert).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, store.Enqueue(ctx, "span-1", OperationInsert))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFetchAndMark(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectQuery(`FROM spans_outbox`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "span_id", "operation", "created_at"}).
			AddRow(1, "span-1", OperationInsert, time.Now()).
			AddRow(2, "span-2", OperationInsert, time.Now()))

	pending, err := store.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "span-1", pending[0].SpanID)

	mock.ExpectExec(`UPDATE spans_outbox`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.MarkProcessed(ctx, []int64{1, 2}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedEmpty(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	require.NoError(t, store.MarkProcessed(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJanitorRunOnce(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	janitor := NewJanitor(store, "@hourly", 24*time.Hour, logger)

	mock.ExpectExec(`DELETE FROM spans_outbox`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	janitor.RunOnce(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}
