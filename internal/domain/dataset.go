package domain

// Dataset is the columnar in-memory form every loaded instrument table is
// normalized into before expectations run against it. Column order in
// Columns matches the source file/query; Rows holds one []any per record,
// indexed the same way as Columns.
type Dataset struct {
	ProductType string
	Exchange    string
	Columns     []string
	Rows        [][]any
	// LoadedAt is used by cache layers to compute freshness; it is not
	// part of the validation semantics.
	LoadedAt int64
}

// ColumnIndex returns the position of name in d.Columns, or -1 if absent.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// RowCount returns the number of records in the dataset.
func (d *Dataset) RowCount() int {
	return len(d.Rows)
}

// Column returns the values of a single column across all rows, in row
// order. Returns nil if the column does not exist.
func (d *Dataset) Column(name string) []any {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]any, len(d.Rows))
	for i, row := range d.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values
}

// RowMap returns row i as a column-name-keyed map, the shape row
// conditions are evaluated against.
func (d *Dataset) RowMap(i int) map[string]any {
	row := d.Rows[i]
	m := make(map[string]any, len(d.Columns))
	for ci, name := range d.Columns {
		if ci < len(row) {
			m[name] = row[ci]
		} else {
			m[name] = nil
		}
	}
	return m
}
