package introspection

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-loadergen/internal/sqltype"
)

var (
	columnHeaders = []string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "COLUMN_COMMENT", "IS_NULLABLE", "EXTRA", "COLLATION_NAME"}
	indexHeaders  = []string{"INDEX_NAME", "NON_UNIQUE", "SEQ_IN_INDEX", "COLUMN_NAME"}
)

func TestIntrospectDatabaseContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("posts", "BASE TABLE", "blog posts").
			AddRow("post_stats", "VIEW", nil).
			AddRow("user_roles", "BASE TABLE", ""))

	// posts
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("id", "bigint", "bigint(20) unsigned", "", "NO", "auto_increment", nil).
			AddRow("author_id", "int", "int(11)", "", "NO", "", nil).
			AddRow("category", "varchar", "varchar(64)", "", "YES", "", "utf8mb4_0900_ai_ci").
			AddRow("slug", "varchar", "varchar(255)", nil, "NO", "", "utf8mb4_bin"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS .* ORDER BY INDEX_NAME, SEQ_IN_INDEX").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows(indexHeaders).
			AddRow("author_category_idx", 1, 1, "author_id").
			AddRow("author_category_idx", 1, 2, "category").
			AddRow("lower_slug_idx", 1, 1, nil).
			AddRow("slug_idx", 0, 1, "slug"))

	// post_stats is a view: columns only
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "post_stats").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("author_id", "int", "int(11)", "", "NO", "", nil))

	// user_roles
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "user_roles").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("user_id", "int", "int(11)", "", "NO", "", nil).
			AddRow("role_id", "int", "int(11)", "", "NO", "", nil))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "user_roles").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("user_id").AddRow("role_id"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("blog", "user_roles").
		WillReturnRows(sqlmock.NewRows(indexHeaders))

	schema, err := IntrospectDatabaseContext(context.Background(), db, "blog")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, schema.Tables, 3)
	assert.Equal(t, "blog", schema.Name)

	posts := schema.Tables[0]
	assert.Equal(t, "posts", posts.Name)
	assert.Equal(t, "blog posts", posts.Comment)
	assert.Empty(t, posts.PrimaryKey)
	pk := PrimaryKeyColumn(posts)
	require.NotNil(t, pk)
	assert.Equal(t, "id", pk.Name)
	assert.Equal(t, sqltype.TypeUnsignedBigInt, pk.ValueType)
	assert.Empty(t, pk.Collation)
	assert.True(t, posts.Columns[2].IsNullable)
	assert.Equal(t, "utf8mb4_0900_ai_ci", posts.Columns[2].Collation)
	assert.Equal(t, "utf8mb4_bin", posts.Columns[3].Collation)

	require.Len(t, posts.Indexes, 3)
	assert.Equal(t, Index{Name: "author_category_idx", Columns: []string{"author_id", "category"}}, posts.Indexes[0])
	assert.Equal(t, Index{Name: "lower_slug_idx", Columns: []string{""}}, posts.Indexes[1])
	assert.Equal(t, Index{Name: "slug_idx", Unique: true, Columns: []string{"slug"}}, posts.Indexes[2])

	view := schema.Tables[1]
	assert.True(t, view.IsView)
	assert.Empty(t, view.Indexes)

	roles := schema.Tables[2]
	assert.Equal(t, []string{"user_id", "role_id"}, roles.PrimaryKey)
	assert.Nil(t, PrimaryKeyColumn(roles))
	assert.Empty(t, roles.Indexes)
}

func TestIntrospectDatabaseContext_Errors(t *testing.T) {
	t.Run("tables query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WillReturnError(sql.ErrConnDone)

		_, err = IntrospectDatabaseContext(context.Background(), db, "blog")
		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Contains(t, err.Error(), "failed to get tables")
	})

	t.Run("index query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
			WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
				AddRow("users", "BASE TABLE", ""))
		mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
			WillReturnRows(sqlmock.NewRows(columnHeaders).AddRow("id", "int", "int(11)", "", "NO", "", nil))
		mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
			WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
		mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").WillReturnError(sql.ErrConnDone)

		_, err = IntrospectDatabaseContext(context.Background(), db, "blog")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get indexes for table users")
	})

	t.Run("invalid key part position", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
			WillReturnRows(sqlmock.NewRows(indexHeaders).AddRow("bad_idx", 1, 0, "id"))

		_, err = getIndexes(context.Background(), db, "blog", "users")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key part position")
	})
}
