//go:build integration
// +build integration

package integration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-loadergen/internal/dbexec"
	"tidb-loadergen/loader"
)

// countingExecutor counts the queries a loader issues.
func countingExecutor(exec loader.Executor, count *atomic.Int32) loader.Executor {
	return dbexec.ExecutorFunc(func(ctx context.Context, query string, args ...any) (dbexec.Rows, error) {
		count.Add(1)
		return exec.QueryContext(ctx, query, args...)
	})
}

func TestLoader_CompositeManyBatch(t *testing.T) {
	testDB := setupLoaderDB(t)

	var queries atomic.Int32
	exec := countingExecutor(loader.NewExecutor(testDB.DB), &queries)
	posts := loader.NewMany(exec,
		loader.Table{Name: "posts", Columns: []string{"id", "author_id", "category", "title"}},
		[]string{"author_id", "category"},
		loader.WithWait(20*time.Millisecond),
	)

	ctx := context.Background()
	keys := [][]any{{1, "tech"}, {1, "news"}, {2, "tech"}, {2, "news"}}
	thunks := make([]loader.Thunk[[]loader.Row], len(keys))
	for i, key := range keys {
		thunks[i] = posts.LoadThunk(ctx, key...)
	}

	wantIDs := [][]int64{{10, 11}, {12}, {13}, {}}
	for i, thunk := range thunks {
		rows, err := thunk()
		require.NoError(t, err)
		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row["id"].(int64))
		}
		assert.ElementsMatch(t, wantIDs[i], ids, "key %v", keys[i])
	}
	assert.Equal(t, int32(1), queries.Load(), "all keys share one query")
}

func TestLoader_CompositeUniqueNotFound(t *testing.T) {
	testDB := setupLoaderDB(t)

	memberships := loader.NewUnique(loader.NewExecutor(testDB.DB),
		loader.Table{Name: "memberships"},
		[]string{"org_id", "user_id"},
	)

	results := memberships.LoadMany(context.Background(), []loader.Key{{1, 2}, {2, 2}, {2, 1}})
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "member", results[0].Value["role"])

	require.Error(t, results[1].Err)
	assert.True(t, loader.IsNotFound(results[1].Err))
	assert.Nil(t, results[1].Value)

	require.NoError(t, results[2].Err)
	assert.Equal(t, "member", results[2].Value["role"])
}

func TestLoader_SingleUniqueByText(t *testing.T) {
	testDB := setupLoaderDB(t)

	authors := loader.NewUnique(loader.NewExecutor(testDB.DB),
		loader.Table{Name: "authors", Columns: []string{"id", "email", "display_name"}},
		[]string{"email"},
	)

	row, err := authors.Load(context.Background(), "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row["id"])
	assert.Nil(t, row["display_name"])

	_, err = authors.Load(context.Background(), "nobody@example.com")
	assert.True(t, loader.IsNotFound(err))
}

func TestLoader_TimestampKey(t *testing.T) {
	testDB := setupLoaderDB(t)

	posts := loader.NewMany(loader.NewExecutor(testDB.DB),
		loader.Table{Name: "posts", Columns: []string{"id", "published_at"}},
		[]string{"published_at"},
	)

	rows, err := posts.Load(context.Background(), time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(11), rows[0]["id"])
}

func TestLoader_CaseInsensitiveEmail(t *testing.T) {
	testDB := setupLoaderDB(t)

	authors := loader.NewUnique(loader.NewExecutor(testDB.DB),
		loader.Table{
			Name:       "authors",
			Columns:    []string{"id", "email"},
			Collations: map[string]string{"email": "utf8mb4_general_ci"},
		},
		[]string{"email"},
	)

	row, err := authors.Load(context.Background(), "ADA@Example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["id"])
}
