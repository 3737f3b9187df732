package backup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func sampleRows() []Row {
	columns := []string{"account_id", "userid", "bank_vault", "lastlogin", "email"}
	login := time.Date(2024, 5, 17, 21, 30, 15, 0, time.UTC)
	return []Row{
		{Columns: columns, Cells: []Cell{IntCell(2000000), TextCell("O'Brien"), BigIntCell("123456789012345678901"), TimeCell(login), NullCell()}},
		{Columns: columns, Cells: []Cell{IntCell(2000001), TextCell(`back\slash`), IntCell(0), NullCell(), TextCell("a@b.c")}},
	}
}

func TestInsertStatement(t *testing.T) {
	got := InsertStatement("login", sampleRows())
	want := "INSERT INTO `login` (`account_id`, `userid`, `bank_vault`, `lastlogin`, `email`) VALUES\n" +
		"(2000000, 'O''Brien', 123456789012345678901, '2024-05-17 21:30:15', NULL),\n" +
		"(2000001, 'back\\\\slash', 0, NULL, 'a@b.c');\n"
	assert.Equal(t, want, got)
}

func TestInsertStatement_Empty(t *testing.T) {
	assert.Equal(t, "", InsertStatement("login", nil))
}

func TestInsertStatement_ReservedWords(t *testing.T) {
	rows := []Row{{Columns: []string{"order", "char"}, Cells: []Cell{IntCell(1), TextCell("x")}}}
	got := InsertStatement("char", rows)
	assert.True(t, strings.HasPrefix(got, "INSERT INTO `char` (`order`, `char`) VALUES\n"))
}

func TestInsertStatement_FirstRowDefinesShape(t *testing.T) {
	rows := []Row{
		{Columns: []string{"a", "b"}, Cells: []Cell{IntCell(1), IntCell(2)}},
		{Columns: []string{"b", "c"}, Cells: []Cell{IntCell(3), IntCell(4)}},
	}
	got := InsertStatement("t", rows)
	assert.Equal(t, "INSERT INTO `t` (`a`, `b`) VALUES\n(1, 2),\n(NULL, 3);\n", got)
}

func TestMarshalInterchange(t *testing.T) {
	doc, err := MarshalInterchange(sampleRows())
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(doc))

	first := gjson.GetBytes(doc, "0")
	assert.Equal(t, []string{"account_id", "userid", "bank_vault", "lastlogin", "email"}, objectKeys(first))

	bank := gjson.GetBytes(doc, "0.bank_vault")
	assert.Equal(t, gjson.String, bank.Type)
	assert.Equal(t, "123456789012345678901", bank.Str)

	assert.Equal(t, gjson.Number, gjson.GetBytes(doc, "0.account_id").Type)
	assert.Equal(t, "2000000", gjson.GetBytes(doc, "0.account_id").Raw)
	assert.Equal(t, gjson.Null, gjson.GetBytes(doc, "0.email").Type)
	assert.Equal(t, "2024-05-17T21:30:15Z", gjson.GetBytes(doc, "0.lastlogin").Str)
	assert.Equal(t, "O'Brien", gjson.GetBytes(doc, "0.userid").Str)
	assert.Equal(t, `back\slash`, gjson.GetBytes(doc, "1.userid").Str)
	assert.Contains(t, string(doc), "\n  {\n    \"account_id\": 2000000,")
}

func TestMarshalInterchange_Empty(t *testing.T) {
	doc, err := MarshalInterchange(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(doc))
}

func TestMarshalInterchange_NoHTMLEscaping(t *testing.T) {
	rows := []Row{{Columns: []string{"name"}, Cells: []Cell{TextCell("<Guild & Co>")}}}
	doc, err := MarshalInterchange(rows)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"<Guild & Co>"`)
}

func TestSerialize(t *testing.T) {
	doc, err := Serialize("login", sampleRows())
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Interchange)
	assert.Equal(t, InsertStatement("login", sampleRows()), doc.Statement)

	empty, err := Serialize("guild", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(empty.Interchange))
	assert.Empty(t, empty.Statement)
}

// The statement must replay into exactly the rows it was built from.
func TestInsertStatement_RoundTrip(t *testing.T) {
	rows := sampleRows()
	rows = append(rows, Row{
		Columns: rows[0].Columns,
		Cells:   []Cell{IntCell(-5), TextCell("it's, (tricky); 'quoted'"), FloatCell("12.50"), NullCell(), TextCell("")},
	})

	columns, tuples := parseInsert(t, InsertStatement("login", rows))
	assert.Equal(t, rows[0].Columns, columns)
	require.Len(t, tuples, len(rows))
	for i, row := range rows {
		for j, cell := range row.Cells {
			assert.Equal(t, expectedLiteral(cell), tuples[i][j], "row %d column %s", i, columns[j])
		}
	}
}

type literal struct {
	null   bool
	quoted bool
	text   string
}

func expectedLiteral(c Cell) literal {
	switch c.Kind {
	case KindNull:
		return literal{null: true}
	case KindText:
		return literal{quoted: true, text: c.Text}
	case KindTime:
		return literal{quoted: true, text: c.Time.Format(StatementTimeLayout)}
	case KindInt:
		return literal{text: NormalizeForStatement(c)}
	}
	return literal{text: c.Num}
}

// parseInsert is a small reader for the statements produced by
// InsertStatement: backtick identifiers, NULL, bare numbers and single-quoted
// strings with doubled quotes and backslash escapes.
func parseInsert(t *testing.T, stmt string) ([]string, [][]literal) {
	t.Helper()
	header, body, ok := strings.Cut(stmt, ") VALUES\n")
	require.True(t, ok, "missing VALUES clause")
	_, colList, ok := strings.Cut(header, " (")
	require.True(t, ok)
	var columns []string
	for _, c := range strings.Split(colList, ", ") {
		columns = append(columns, strings.ReplaceAll(strings.Trim(c, "`"), "``", "`"))
	}
	require.True(t, strings.HasSuffix(body, ";\n"))
	body = strings.TrimSuffix(body, ";\n")

	var (
		tuples [][]literal
		tuple  []literal
		i      int
	)
	for i < len(body) {
		switch ch := body[i]; {
		case ch == '(':
			tuple = nil
			i++
		case ch == ')':
			tuples = append(tuples, tuple)
			i++
		case ch == ',' || ch == ' ' || ch == '\n':
			i++
		case ch == '\'':
			var sb strings.Builder
			i++
			for {
				require.Less(t, i, len(body), "unterminated string")
				if body[i] == '\\' {
					sb.WriteByte(body[i+1])
					i += 2
					continue
				}
				if body[i] == '\'' {
					if i+1 < len(body) && body[i+1] == '\'' {
						sb.WriteByte('\'')
						i += 2
						continue
					}
					i++
					break
				}
				sb.WriteByte(body[i])
				i++
			}
			tuple = append(tuple, literal{quoted: true, text: sb.String()})
		default:
			start := i
			for i < len(body) && body[i] != ',' && body[i] != ')' {
				i++
			}
			token := body[start:i]
			if token == "NULL" {
				tuple = append(tuple, literal{null: true})
			} else {
				tuple = append(tuple, literal{text: token})
			}
		}
	}
	return columns, tuples
}

func objectKeys(obj gjson.Result) []string {
	var keys []string
	obj.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}
