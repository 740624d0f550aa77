package dbexec

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRows struct {
	rows   [][]any
	idx    int
	err    error
	closed bool
}

func (r *staticRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *staticRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (r *staticRows) Err() error   { return r.err }
func (r *staticRows) Close() error { r.closed = true; return nil }

func TestScanRows_ExplicitColumns(t *testing.T) {
	rows := &staticRows{rows: [][]any{
		{int64(1), []byte("tech")},
		{int64(2), nil},
	}}

	results, err := ScanRows(rows, []string{"id", "category"})
	require.NoError(t, err)

	assert.Equal(t, []map[string]any{
		{"id": int64(1), "category": "tech"},
		{"id": int64(2), "category": nil},
	}, results)
	assert.True(t, rows.closed)
}

func TestScanRows_RowsError(t *testing.T) {
	rows := &staticRows{err: errors.New("connection reset")}
	_, err := ScanRows(rows, []string{"id"})
	assert.EqualError(t, err, "connection reset")
	assert.True(t, rows.closed)
}

func TestScanRows_RequiresColumnNames(t *testing.T) {
	_, err := ScanRows(&staticRows{}, nil)
	assert.Error(t, err)
}

func TestScanRows_DriverColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"email", "org_id"}).
			AddRow("x@example.com", 3).
			AddRow("y@example.com", 4),
	)

	rows, err := db.QueryContext(context.Background(), "SELECT email, org_id FROM users")
	require.NoError(t, err)

	results, err := ScanRows(rows, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x@example.com", results[0]["email"])
	assert.EqualValues(t, 4, results[1]["org_id"])
}
