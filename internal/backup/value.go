package backup

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxSafeInteger is the largest integer a float64 represents exactly (2^53-1).
// Integers beyond ±MaxSafeInteger are carried as decimal text.
const MaxSafeInteger = 1<<53 - 1

// StatementTimeLayout is the literal form of temporal values in statements.
const StatementTimeLayout = "2006-01-02 15:04:05"

// MaxExactDigits is how many significant digits a float64 always preserves.
// Decimals with more are carried as text in interchange documents.
const MaxExactDigits = 15

// Kind discriminates the value held by a Cell.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindBigInt
	KindFloat
	KindTime
	KindText
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "integer"
	case KindBigInt:
		return "bigint"
	case KindFloat:
		return "float"
	case KindTime:
		return "temporal"
	case KindText:
		return "text"
	case KindDecimal:
		return "decimal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Cell is one normalized column value.
type Cell struct {
	Kind Kind
	Int  int64
	Num  string // exact decimal text of KindBigInt, KindFloat and KindDecimal
	Time time.Time
	Text string
}

func NullCell() Cell { return Cell{Kind: KindNull} }
func IntCell(v int64) Cell { return Cell{Kind: KindInt, Int: v} }
func BigIntCell(digits string) Cell { return Cell{Kind: KindBigInt, Num: digits} }
func FloatCell(text string) Cell { return Cell{Kind: KindFloat, Num: text} }
func DecimalCell(text string) Cell { return Cell{Kind: KindDecimal, Num: text} }
func TimeCell(t time.Time) Cell { return Cell{Kind: KindTime, Time: t} }
func TextCell(s string) Cell { return Cell{Kind: KindText, Text: s} }

var textTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

// Classify turns a driver value and its column type name into a Cell.
// Integral values never pass through float64.
func Classify(value any, databaseType string) Cell {
	switch v := value.(type) {
	case nil:
		return NullCell()
	case int64:
		return intCell(v)
	case int:
		return intCell(int64(v))
	case int32:
		return intCell(int64(v))
	case int16:
		return intCell(int64(v))
	case int8:
		return intCell(int64(v))
	case uint64:
		if v <= MaxSafeInteger {
			return IntCell(int64(v))
		}
		return BigIntCell(strconv.FormatUint(v, 10))
	case uint32:
		return IntCell(int64(v))
	case uint16:
		return IntCell(int64(v))
	case uint8:
		return IntCell(int64(v))
	case bool:
		if v {
			return IntCell(1)
		}
		return IntCell(0)
	case float64:
		return floatCell(v, 64)
	case float32:
		return floatCell(float64(v), 32)
	case time.Time:
		// The driver reports zero dates as the zero time.
		if v.IsZero() {
			if zero, ok := zeroDate(databaseType); ok {
				return TextCell(zero)
			}
		}
		return TimeCell(v)
	case []byte:
		return classifyText(string(v), databaseType)
	case string:
		return classifyText(v, databaseType)
	case json.Number:
		return classifyText(v.String(), "DECIMAL")
	case fmt.Stringer:
		return TextCell(v.String())
	}
	return TextCell(fmt.Sprint(value))
}

func intCell(v int64) Cell {
	if v > MaxSafeInteger || v < -MaxSafeInteger {
		return BigIntCell(strconv.FormatInt(v, 10))
	}
	return IntCell(v)
}

func floatCell(v float64, bits int) Cell {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return TextCell(strconv.FormatFloat(v, 'g', -1, bits))
	}
	return FloatCell(strconv.FormatFloat(v, 'g', -1, bits))
}

// zeroDate returns the literal MariaDB uses for a zero value of a temporal
// column type.
func zeroDate(databaseType string) (string, bool) {
	switch typeName(databaseType) {
	case "DATE":
		return "0000-00-00", true
	case "DATETIME", "TIMESTAMP":
		return "0000-00-00 00:00:00", true
	}
	return "", false
}

func typeName(databaseType string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(databaseType)), "UNSIGNED ")
}

func classifyText(s, databaseType string) Cell {
	switch typeName(databaseType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if c, ok := integerText(s); ok {
			return c
		}
	case "DECIMAL", "NUMERIC", "NEWDECIMAL":
		if c, ok := integerText(s); ok {
			return c
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return DecimalCell(s)
		}
	case "FLOAT", "DOUBLE", "REAL":
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return FloatCell(s)
		}
	case "DATETIME", "TIMESTAMP", "DATE":
		for _, layout := range textTimeLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return TimeCell(t)
			}
		}
	}
	return TextCell(s)
}

// integerText classifies an optionally signed run of decimal digits without
// any floating point step.
func integerText(s string) (Cell, bool) {
	if !isIntegerLiteral(s) {
		return Cell{}, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return intCell(v), true
	}
	return BigIntCell(s), true
}

func isIntegerLiteral(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeForInterchange returns the value written to the JSON document.
// Over-precision integers and decimals with more digits than a float64 keeps
// become strings so JSON readers cannot round them.
func NormalizeForInterchange(c Cell) any {
	switch c.Kind {
	case KindNull:
		return nil
	case KindInt:
		return c.Int
	case KindBigInt:
		return c.Num
	case KindFloat:
		return json.Number(c.Num)
	case KindDecimal:
		if significantDigits(c.Num) > MaxExactDigits {
			return c.Num
		}
		return json.Number(c.Num)
	case KindTime:
		return c.Time
	}
	return c.Text
}

// NormalizeForStatement returns the SQL literal for c.
func NormalizeForStatement(c Cell) string {
	switch c.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(c.Int, 10)
	case KindBigInt, KindFloat, KindDecimal:
		return c.Num
	case KindTime:
		return "'" + c.Time.Format(StatementTimeLayout) + "'"
	}
	return QuoteString(c.Text)
}

// significantDigits counts the digits of a decimal literal, ignoring the
// sign, leading zeros and any exponent.
func significantDigits(s string) int {
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		s = s[:i]
	}
	n, leading := 0, true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		if leading && c == '0' {
			continue
		}
		leading = false
		n++
	}
	return n
}

var literalEscaper = strings.NewReplacer(`'`, `''`, `\`, `\\`)

// QuoteString single-quotes s, doubling embedded quotes and backslashes.
func QuoteString(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

// QuoteIdentifier backtick-quotes a table or column name.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
