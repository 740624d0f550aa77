// Package introspection discovers database schema metadata from TiDB/MySQL information_schema.
// It extracts tables, columns, primary keys, and indexes for loader generation.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tidb-loadergen/internal/sqltype"
)

// Column represents a database column
type Column struct {
	Name       string
	DataType   string
	ColumnType string
	IsNullable bool
	// IsPrimaryKey marks a column that is individually declared as the primary key.
	// Columns of a multi-column primary key are listed in Table.PrimaryKey instead.
	IsPrimaryKey bool
	IsGenerated  bool
	Comment      string
	ValueType    sqltype.ValueType
	// Collation is empty for non-text columns.
	Collation string
}

// Index represents a database index with ordered key parts.
type Index struct {
	Name   string
	Unique bool
	// Columns lists key parts in index order. An empty entry marks a key part
	// that is an expression rather than a plain column.
	Columns []string
	// Condition is the row filter of a partial index, empty for full indexes.
	Condition string
}

// Table represents a database table
type Table struct {
	Name    string
	IsView  bool
	Comment string
	Columns []Column
	// PrimaryKey lists the columns of a declared multi-column primary key in
	// constraint order. It is empty when the key is a single marked column.
	PrimaryKey []string
	Indexes    []Index
}

// Schema represents the introspected database schema
type Schema struct {
	Name   string
	Tables []Table
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// IntrospectDatabase queries information_schema to discover tables, columns and keys.
func IntrospectDatabase(db *sql.DB, databaseName string) (*Schema, error) {
	return IntrospectDatabaseContext(context.Background(), db, databaseName)
}

// IntrospectDatabaseContext queries information_schema with context support.
func IntrospectDatabaseContext(ctx context.Context, db Queryer, databaseName string) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	schema := &Schema{
		Name:   databaseName,
		Tables: []Table{},
	}

	tables, err := getTables(ctx, db, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	for _, info := range tables {
		columns, err := getColumns(ctx, db, databaseName, info.Name)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get columns for %s: %w", info.Name, err)
		}

		table := Table{
			Name:    info.Name,
			IsView:  info.IsView,
			Comment: info.Comment,
			Columns: columns,
		}

		if !info.IsView {
			primaryKeys, err := getPrimaryKeys(ctx, db, databaseName, info.Name)
			if err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("failed to get primary keys for table %s: %w", info.Name, err)
			}
			applyPrimaryKey(&table, primaryKeys)

			table.Indexes, err = getIndexes(ctx, db, databaseName, info.Name)
			if err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("failed to get indexes for table %s: %w", info.Name, err)
			}
		}

		schema.Tables = append(schema.Tables, table)
	}

	span.SetAttributes(attribute.Int("db.tables", len(schema.Tables)))
	return schema, nil
}

// applyPrimaryKey marks a single-column primary key on its column, or records
// a multi-column key in constraint order.
func applyPrimaryKey(table *Table, primaryKeys []string) {
	switch len(primaryKeys) {
	case 0:
		return
	case 1:
		for i := range table.Columns {
			if table.Columns[i].Name == primaryKeys[0] {
				table.Columns[i].IsPrimaryKey = true
				return
			}
		}
	default:
		table.PrimaryKey = append([]string(nil), primaryKeys...)
	}
}

type tableInfo struct {
	Name    string
	IsView  bool
	Comment string
}

func getTables(ctx context.Context, db Queryer, databaseName string) ([]tableInfo, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`

	rows, err := db.QueryContext(ctx, query, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []tableInfo
	for rows.Next() {
		var tableName string
		var tableType string
		var tableComment sql.NullString
		if err := rows.Scan(&tableName, &tableType, &tableComment); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		comment := ""
		if tableComment.Valid {
			comment = strings.TrimSpace(tableComment.String)
		}
		tables = append(tables, tableInfo{
			Name:    tableName,
			IsView:  strings.EqualFold(tableType, "VIEW"),
			Comment: comment,
		})
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, databaseName, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			COLUMN_TYPE,
			COLUMN_COMMENT,
			IS_NULLABLE,
			EXTRA,
			COLLATION_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		var extra string
		var columnComment sql.NullString
		var collation sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &columnComment, &isNullable, &extra, &collation); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if columnComment.Valid {
			col.Comment = strings.TrimSpace(columnComment.String)
		}
		col.Collation = collation.String
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.IsGenerated = strings.Contains(strings.ToLower(extra), "generated")
		col.ValueType = sqltype.MapValueType(col.DataType, col.ColumnType)
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getPrimaryKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var primaryKeys []string
	for rows.Next() {
		var columnName string
		if err := rows.Scan(&columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		primaryKeys = append(primaryKeys, columnName)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return primaryKeys, nil
}

// getIndexes reads secondary indexes from STATISTICS, ordered by index name so
// repeated runs agree. STATISTICS carries no declaration order. Key parts are
// placed by SEQ_IN_INDEX. Functional key parts have a NULL COLUMN_NAME and are
// recorded as "".
func getIndexes(ctx context.Context, db Queryer, databaseName, tableName string) ([]Index, error) {
	ctx, span := startSpan(ctx, "introspection.get_indexes",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			INDEX_NAME,
			NON_UNIQUE,
			SEQ_IN_INDEX,
			COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND INDEX_NAME <> 'PRIMARY'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var order []string
	indexByName := make(map[string]*Index)
	for rows.Next() {
		var indexName string
		var nonUnique int
		var seq int
		var columnName sql.NullString
		if err := rows.Scan(&indexName, &nonUnique, &seq, &columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if seq < 1 {
			err := fmt.Errorf("index %s has invalid key part position %d", indexName, seq)
			recordSpanError(span, err)
			return nil, err
		}

		index, ok := indexByName[indexName]
		if !ok {
			index = &Index{
				Name:   indexName,
				Unique: nonUnique == 0,
			}
			indexByName[indexName] = index
			order = append(order, indexName)
		}
		for len(index.Columns) < seq {
			index.Columns = append(index.Columns, "")
		}
		if columnName.Valid {
			index.Columns[seq-1] = columnName.String
		}
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	indexes := make([]Index, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *indexByName[name])
	}
	return indexes, nil
}

// ColumnByName returns the named column of a table, if present.
func ColumnByName(table Table, name string) (Column, bool) {
	for _, col := range table.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("tidb-loadergen/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
