package database

import (
	"context"
	"errors"
)

var (
	ErrTimeout     = errors.New("operation timed out")
	ErrQueryFailed = errors.New("query failed")
	ErrConnect     = errors.New("database connection failed")
)

// Querier is the query capability the backup core and the API depend on.
// Implementations must be safe for concurrent use.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*ResultSet, error)
}

// Column describes one result column.
type Column struct {
	Name string
	// DatabaseType is the driver's type name, e.g. "BIGINT", "UNSIGNED BIGINT",
	// "DECIMAL", "DATETIME", "VARCHAR". It may be empty.
	DatabaseType string
}

// ResultSet is a fully buffered query result. Rows hold the raw driver values
// in column order.
type ResultSet struct {
	Columns []Column
	Rows    [][]any
}

// ColumnNames returns the names of the result columns in order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// Value returns the value of the named column in row i, or nil when either
// is out of range.
func (rs *ResultSet) Value(i int, column string) any {
	if i < 0 || i >= len(rs.Rows) {
		return nil
	}
	for j, c := range rs.Columns {
		if c.Name == column && j < len(rs.Rows[i]) {
			return rs.Rows[i][j]
		}
	}
	return nil
}
