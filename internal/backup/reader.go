package backup

import (
	"context"
	"fmt"

	"github.com/kebairia/dbsnap/internal/database"
)

// Row is one table row. Columns are in result-set order and shared by all
// rows read from the same query.
type Row struct {
	Columns []string
	Cells   []Cell
}

// Get returns the cell for column, or a null cell when the row has no such
// column.
func (r Row) Get(column string) Cell {
	for i, name := range r.Columns {
		if name == column && i < len(r.Cells) {
			return r.Cells[i]
		}
	}
	return NullCell()
}

// cellAt returns the cell at index i when the row's i-th column is column,
// falling back to a lookup by name.
func (r Row) cellAt(i int, column string) Cell {
	if i < len(r.Columns) && i < len(r.Cells) && r.Columns[i] == column {
		return r.Cells[i]
	}
	return r.Get(column)
}

// ReadTable selects every row of table.
func ReadTable(ctx context.Context, q database.Querier, table string) ([]Row, error) {
	rs, err := q.Query(ctx, "SELECT * FROM "+QuoteIdentifier(table))
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", table, err)
	}
	return RowsFromResult(rs), nil
}

// RowsFromResult classifies every value of rs into cells.
func RowsFromResult(rs *database.ResultSet) []Row {
	columns := rs.ColumnNames()
	rows := make([]Row, 0, len(rs.Rows))
	for _, values := range rs.Rows {
		cells := make([]Cell, len(columns))
		for i := range columns {
			var v any
			if i < len(values) {
				v = values[i]
			}
			cells[i] = Classify(v, rs.Columns[i].DatabaseType)
		}
		rows = append(rows, Row{Columns: columns, Cells: cells})
	}
	return rows
}
