package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor(t *testing.T) {
	t.Run("nil database returns ErrConnDone", func(t *testing.T) {
		executor := NewStandardExecutor(nil)
		_, err := executor.QueryContext(context.Background(), "SELECT 1")
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})

	t.Run("queries through the handle", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT `id` FROM `posts` WHERE `id` = ?")).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT `id` FROM `posts` WHERE `id` = ?", 1)
		require.NoError(t, err)
		results, err := ScanRows(rows, nil)
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{{"id": int64(1)}}, results)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("queries inside a transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)
		rows, err := NewStandardExecutor(tx).QueryContext(context.Background(), "SELECT 1")
		require.NoError(t, err)
		require.NoError(t, rows.Close())
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExecutorFunc(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	exec := ExecutorFunc(func(_ context.Context, query string, args ...any) (Rows, error) {
		gotQuery = query
		gotArgs = args
		return nil, errors.New("boom")
	})

	_, err := exec.QueryContext(context.Background(), "SELECT ?", 5)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "SELECT ?", gotQuery)
	assert.Equal(t, []any{5}, gotArgs)
}
