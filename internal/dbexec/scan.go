package dbexec

import "fmt"

// columnLister is implemented by *sql.Rows.
type columnLister interface {
	Columns() ([]string, error)
}

// ScanRows reads every remaining row into a map keyed by column name and
// closes rows. When columns is empty the names reported by the driver are used.
// []byte values are returned as strings.
func ScanRows(rows Rows, columns []string) ([]map[string]any, error) {
	defer func() {
		_ = rows.Close()
	}()

	if len(columns) == 0 {
		lister, ok := rows.(columnLister)
		if !ok {
			return nil, fmt.Errorf("scan requires column names")
		}
		names, err := lister.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read result columns: %w", err)
		}
		columns = names
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

func convertValue(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}
