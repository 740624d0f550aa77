package analyzer

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-loadergen/internal/introspection"
	"tidb-loadergen/internal/sqltype"
)

func usersTable() introspection.Table {
	return introspection.Table{
		Name: "users",
		Columns: []introspection.Column{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true, ValueType: sqltype.TypeBigInt},
			{Name: "email", DataType: "varchar", ValueType: sqltype.TypeText},
			{Name: "org_id", DataType: "int", ValueType: sqltype.TypeInteger},
			{Name: "status", DataType: "varchar", ValueType: sqltype.TypeText},
		},
		Indexes: []introspection.Index{
			{Name: "email", Unique: true, Columns: []string{"email"}},
			{Name: "active_email_idx", Unique: true, Columns: []string{"email"}, Condition: "status = 'active'"},
			{Name: "org_status_idx", Columns: []string{"org_id", "status"}},
			{Name: "lower_email_idx", Columns: []string{""}},
		},
	}
}

func keyColumnNames(keys []Key) [][]string {
	names := make([][]string, len(keys))
	for i, k := range keys {
		names[i] = k.ColumnNames()
	}
	return names
}

func TestAnalyze_SinglePrimaryKey(t *testing.T) {
	result := Analyze(usersTable(), "app")

	require.NotNil(t, result.PrimaryKey)
	assert.Equal(t, []string{"id"}, result.PrimaryKey.ColumnNames())
	assert.Equal(t, SingleUnique, result.PrimaryKey.Shape)
	assert.Equal(t, "users", result.Name)
	assert.Equal(t, "app", result.Schema)
}

func TestAnalyze_ExcludesPartialIndex(t *testing.T) {
	result := Analyze(usersTable(), "app")

	for _, idx := range result.Indexes {
		assert.NotEqual(t, "active_email_idx", idx.Name)
	}
}

func TestAnalyze_IndexesInDeclarationOrder(t *testing.T) {
	result := Analyze(usersTable(), "app")

	require.Len(t, result.Indexes, 2)
	assert.Equal(t, "email", result.Indexes[0].Name)
	assert.Equal(t, SingleUnique, result.Indexes[0].Shape)
	assert.Equal(t, "org_status_idx", result.Indexes[1].Name)
	assert.Equal(t, CompositeMany, result.Indexes[1].Shape)
	assert.Equal(t, [][]string{{"email"}, {"org_id", "status"}}, keyColumnNames(result.Indexes))
}

func TestAnalyze_CompositePrimaryKey(t *testing.T) {
	table := introspection.Table{
		Name: "user_roles",
		Columns: []introspection.Column{
			{Name: "role_id"},
			{Name: "user_id"},
			{Name: "granted_at"},
		},
		PrimaryKey: []string{"user_id", "role_id"},
	}

	result := Analyze(table, "app")

	require.NotNil(t, result.PrimaryKey)
	assert.Equal(t, []string{"user_id", "role_id"}, result.PrimaryKey.ColumnNames())
	assert.Equal(t, CompositeUnique, result.PrimaryKey.Shape)
}

func TestAnalyze_PrimaryKeyResolution(t *testing.T) {
	tests := []struct {
		name    string
		table   introspection.Table
		want    []string
		wantNil bool
	}{
		{
			name:    "no primary key",
			table:   introspection.Table{Name: "events", Columns: []introspection.Column{{Name: "payload"}}},
			wantNil: true,
		},
		{
			name: "declared constraint with unknown column",
			table: introspection.Table{
				Name:       "broken",
				Columns:    []introspection.Column{{Name: "a"}},
				PrimaryKey: []string{"a", "missing"},
			},
			wantNil: true,
		},
		{
			name: "marked column wins over declared list",
			table: introspection.Table{
				Name:       "mixed",
				Columns:    []introspection.Column{{Name: "a", IsPrimaryKey: true}, {Name: "b"}},
				PrimaryKey: []string{"a", "b"},
			},
			want: []string{"a"},
		},
		{
			name: "single declared column",
			table: introspection.Table{
				Name:       "tags",
				Columns:    []introspection.Column{{Name: "slug"}},
				PrimaryKey: []string{"slug"},
			},
			want: []string{"slug"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Analyze(tt.table, "")
			if tt.wantNil {
				assert.Nil(t, result.PrimaryKey)
				return
			}
			require.NotNil(t, result.PrimaryKey)
			assert.Equal(t, tt.want, result.PrimaryKey.ColumnNames())
			assert.True(t, result.PrimaryKey.Unique)
		})
	}
}

func TestAnalyze_SkipsUnresolvableIndexes(t *testing.T) {
	table := introspection.Table{
		Name:    "posts",
		Columns: []introspection.Column{{Name: "id", IsPrimaryKey: true}, {Name: "title"}},
		Indexes: []introspection.Index{
			{Name: "ghost_idx", Columns: []string{"title", "deleted_at"}},
			{Name: "mixed_expr_idx", Columns: []string{"title", ""}},
			{Name: "empty_idx"},
			{Name: "title_idx", Columns: []string{"title"}},
		},
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	result := AnalyzeWithOptions(table, "", Options{Logger: logger})

	require.Len(t, result.Indexes, 1)
	assert.Equal(t, "title_idx", result.Indexes[0].Name)
	assert.Equal(t, SingleMany, result.Indexes[0].Shape)

	out := buf.String()
	assert.Contains(t, out, "index=ghost_idx")
	assert.Contains(t, out, "index=mixed_expr_idx")
	assert.Contains(t, out, "reason=\"expression key part\"")
	assert.Contains(t, out, "index=empty_idx")
}

func TestAnalyze_Deterministic(t *testing.T) {
	first := Analyze(usersTable(), "app")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Analyze(usersTable(), "app"))
	}
}

func TestAnalyzeSchema_PreservesTableOrder(t *testing.T) {
	schema := &introspection.Schema{
		Name: "app",
		Tables: []introspection.Table{
			usersTable(),
			{Name: "audit_log", Columns: []introspection.Column{{Name: "line"}}},
		},
	}

	tables := AnalyzeSchema(schema, Options{})

	require.Len(t, tables, 2)
	assert.Equal(t, "users", tables[0].Name)
	assert.Equal(t, "audit_log", tables[1].Name)
	assert.Equal(t, "app", tables[1].Schema)
	assert.Nil(t, AnalyzeSchema(nil, Options{}))
}

func TestShape(t *testing.T) {
	tests := []struct {
		shape     Shape
		unique    bool
		composite bool
		name      string
	}{
		{SingleUnique, true, false, "single_unique"},
		{SingleMany, false, false, "single_many"},
		{CompositeUnique, true, true, "composite_unique"},
		{CompositeMany, false, true, "composite_many"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.unique, tt.shape.IsUnique(), tt.name)
		assert.Equal(t, tt.composite, tt.shape.IsComposite(), tt.name)
		assert.Equal(t, tt.name, tt.shape.String())
	}
	assert.Panics(t, func() { Shape(0).IsUnique() })
	assert.Equal(t, "Shape(9)", Shape(9).String())
}
