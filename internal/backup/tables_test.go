package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/dbsnap/internal/database"
	"github.com/kebairia/dbsnap/internal/logger"
)

type fakeQuerier struct {
	results map[string]*database.ResultSet
	errs    map[string]error
	queries []string
}

func (f *fakeQuerier) Query(_ context.Context, query string, _ ...any) (*database.ResultSet, error) {
	f.queries = append(f.queries, query)
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	if rs, ok := f.results[query]; ok {
		return rs, nil
	}
	return nil, errors.New("unexpected query: " + query)
}

func TestResolve_Full(t *testing.T) {
	q := &fakeQuerier{results: map[string]*database.ResultSet{
		"SHOW TABLES": {
			Columns: []database.Column{{Name: "Tables_in_rathena"}},
			Rows:    [][]any{{[]byte("login")}, {[]byte("char")}, {[]byte("guild")}},
		},
	}}
	r := &Resolver{Querier: q, Fs: afero.NewMemMapFs(), Logger: logger.NewNop()}

	assert.Equal(t, []string{"login", "char", "guild"}, r.Resolve(context.Background(), ModeFull))
}

func TestResolve_FullQueryFailure(t *testing.T) {
	q := &fakeQuerier{errs: map[string]error{"SHOW TABLES": database.ErrQueryFailed}}
	r := &Resolver{Querier: q, Fs: afero.NewMemMapFs(), Logger: logger.NewNop()}

	assert.Empty(t, r.Resolve(context.Background(), ModeFull))
}

func TestResolve_Partial(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "backup.conf", []byte(`# daily tables
login

  char
# guild
storage
`), 0o644))
	q := &fakeQuerier{}
	r := &Resolver{Querier: q, Fs: fs, TablesFile: "backup.conf", Logger: logger.NewNop()}

	assert.Equal(t, []string{"login", "char", "storage"}, r.Resolve(context.Background(), ModePartial))
	assert.Empty(t, q.queries, "partial runs must not touch the catalog")
}

func TestResolve_PartialMissingFile(t *testing.T) {
	r := &Resolver{Querier: &fakeQuerier{}, Fs: afero.NewMemMapFs(), TablesFile: "backup.conf", Logger: logger.NewNop()}
	assert.Empty(t, r.Resolve(context.Background(), ModePartial))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" FULL ")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m)

	m, err = ParseMode("partial")
	require.NoError(t, err)
	assert.Equal(t, ModePartial, m)

	_, err = ParseMode("incremental")
	assert.Error(t, err)
}

func TestReadTable(t *testing.T) {
	login := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	q := &fakeQuerier{results: map[string]*database.ResultSet{
		"SELECT * FROM `char`": {
			Columns: []database.Column{
				{Name: "char_id", DatabaseType: "INT"},
				{Name: "zeny", DatabaseType: "UNSIGNED BIGINT"},
				{Name: "last_login", DatabaseType: "DATETIME"},
				{Name: "name", DatabaseType: "VARCHAR"},
			},
			Rows: [][]any{
				{int64(150000), []byte("99999999999999999999"), login, []byte("Poring")},
				{int64(150001), nil, nil, nil},
			},
		},
	}}

	rows, err := ReadTable(context.Background(), q, "char")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"char_id", "zeny", "last_login", "name"}, rows[0].Columns)
	assert.Equal(t, IntCell(150000), rows[0].Get("char_id"))
	assert.Equal(t, BigIntCell("99999999999999999999"), rows[0].Get("zeny"))
	assert.Equal(t, TimeCell(login), rows[0].Get("last_login"))
	assert.Equal(t, TextCell("Poring"), rows[0].Get("name"))
	assert.Equal(t, NullCell(), rows[1].Get("zeny"))
	assert.Equal(t, NullCell(), rows[1].Get("nope"))
}

func TestReadTable_Error(t *testing.T) {
	q := &fakeQuerier{errs: map[string]error{"SELECT * FROM `gone`": database.ErrQueryFailed}}
	_, err := ReadTable(context.Background(), q, "gone")
	require.ErrorIs(t, err, database.ErrQueryFailed)
}
