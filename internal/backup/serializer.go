package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Document holds both on-disk representations of one table.
type Document struct {
	Interchange []byte // JSON array of row objects
	Statement   string // multi-row INSERT, empty when there are no rows
}

// Serialize builds the interchange and statement documents for table.
func Serialize(table string, rows []Row) (Document, error) {
	interchange, err := MarshalInterchange(rows)
	if err != nil {
		return Document{}, fmt.Errorf("serialize %q: %w", table, err)
	}
	return Document{
		Interchange: interchange,
		Statement:   InsertStatement(table, rows),
	}, nil
}

// MarshalInterchange encodes rows as an indented JSON array. Object keys keep
// the result-set column order.
func MarshalInterchange(rows []Row) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			compact.WriteByte(',')
		}
		compact.WriteByte('{')
		for j, column := range row.Columns {
			if j > 0 {
				compact.WriteByte(',')
			}
			if err := encodeJSON(&compact, column); err != nil {
				return nil, err
			}
			compact.WriteByte(':')
			if err := encodeJSON(&compact, NormalizeForInterchange(row.cellAt(j, column))); err != nil {
				return nil, fmt.Errorf("column %q: %w", column, err)
			}
		}
		compact.WriteByte('}')
	}
	compact.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func encodeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode always terminates with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// InsertStatement renders rows as one INSERT statement. The first row defines
// the column list; a column missing from a later row is written as NULL.
func InsertStatement(table string, rows []Row) string {
	if len(rows) == 0 {
		return ""
	}
	columns := rows[0].Columns

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(QuoteIdentifier(table))
	sb.WriteString(" (")
	for i, column := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdentifier(column))
	}
	sb.WriteString(") VALUES\n")

	for i, row := range rows {
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteByte('(')
		for j, column := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(NormalizeForStatement(row.cellAt(j, column)))
		}
		sb.WriteByte(')')
	}
	sb.WriteString(";\n")
	return sb.String()
}
