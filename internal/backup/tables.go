package backup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/afero"

	"github.com/kebairia/dbsnap/internal/database"
	"github.com/kebairia/dbsnap/internal/logger"
)

// Mode selects which tables a run exports.
type Mode string

const (
	ModeFull    Mode = "full"
	ModePartial Mode = "partial"
)

// ParseMode accepts "full" or "partial".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull, nil
	case ModePartial:
		return ModePartial, nil
	}
	return "", fmt.Errorf("unknown backup mode %q", s)
}

const (
	showTablesQuery = "SHOW TABLES"
	commentPrefix   = "#"
)

// Resolver determines the tables of a run.
type Resolver struct {
	Querier    database.Querier
	Fs         afero.Fs
	TablesFile string
	Logger     logger.Logger
}

// Resolve returns the tables for mode. It never fails: errors are logged and
// yield an empty list.
func (r *Resolver) Resolve(ctx context.Context, mode Mode) []string {
	if mode == ModeFull {
		return r.allTables(ctx)
	}
	return r.allowList()
}

func (r *Resolver) allTables(ctx context.Context) []string {
	rs, err := r.Querier.Query(ctx, showTablesQuery)
	if err != nil {
		r.Logger.Error("list tables failed", "error", err.Error())
		return nil
	}
	tables := make([]string, 0, len(rs.Rows))
	for _, values := range rs.Rows {
		if len(values) == 0 {
			continue
		}
		c := Classify(values[0], "")
		if c.Kind != KindText || c.Text == "" {
			r.Logger.Warn("skipping unexpected catalog entry", "value", fmt.Sprint(values[0]))
			continue
		}
		tables = append(tables, c.Text)
	}
	return tables
}

func (r *Resolver) allowList() []string {
	data, err := afero.ReadFile(r.Fs, r.TablesFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.Logger.Warn("tables file not found, nothing to back up", "path", r.TablesFile)
		} else {
			r.Logger.Error("read tables file failed", "path", r.TablesFile, "error", err.Error())
		}
		return nil
	}
	return ParseTableList(data)
}

// ParseTableList returns one table name per non-blank, non-comment line.
func ParseTableList(data []byte) []string {
	var tables []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		tables = append(tables, line)
	}
	return tables
}
