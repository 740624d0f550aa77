package introspection

// PrimaryKeyColumn returns the column individually marked as primary key.
// It returns nil when no column, or more than one column, carries the mark.
func PrimaryKeyColumn(table Table) *Column {
	var found *Column
	for i := range table.Columns {
		if !table.Columns[i].IsPrimaryKey {
			continue
		}
		if found != nil {
			return nil
		}
		found = &table.Columns[i]
	}
	return found
}

// DeclaredPrimaryKeyColumns resolves the declared primary key constraint to columns
// in constraint order. ok is false when no constraint is declared or any listed
// column is unknown to the table.
func DeclaredPrimaryKeyColumns(table Table) (cols []Column, ok bool) {
	if len(table.PrimaryKey) == 0 {
		return nil, false
	}
	cols = make([]Column, 0, len(table.PrimaryKey))
	for _, name := range table.PrimaryKey {
		col, found := ColumnByName(table, name)
		if !found {
			return nil, false
		}
		cols = append(cols, col)
	}
	return cols, true
}
