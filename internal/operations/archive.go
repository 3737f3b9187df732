package operations

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/kebairia/dbsnap/internal/backup"
)

const (
	InterchangeDir = "interchange"
	StatementDir   = "statements"
	CombinedFile   = "full_backup.sql"
	InterchangeExt = ".json"
	StatementExt   = ".sql"

	// DefaultTimestampFormat names archives YYYYMMDDHHMMSS.
	DefaultTimestampFormat = "20060102150405"

	fullSuffix = "_full"
	// maxArchiveAttempts bounds the suffixes tried when archive names collide.
	maxArchiveAttempts = 100
)

var (
	ErrArchiveCreate    = errors.New("archive creation failed")
	ErrInvalidTableName = errors.New("invalid table name")
)

// Archive is one run's output directory.
type Archive struct {
	Path string
	fs   afero.Fs
}

// ArchiveName derives the directory name of a run from its start time.
func ArchiveName(startedAt time.Time, mode backup.Mode, layout string) string {
	if layout == "" {
		layout = DefaultTimestampFormat
	}
	name := startedAt.Format(layout)
	if mode == backup.ModeFull {
		name += fullSuffix
	}
	return name
}

// CreateArchive claims root/name with an exclusive mkdir and creates the
// interchange and statement subdirectories. When root/name already exists
// the name gets a -2, -3, ... suffix, so two runs never share a directory.
func CreateArchive(fsys afero.Fs, root, name string) (*Archive, error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %q: %v", ErrArchiveCreate, root, err)
	}

	var path string
	for attempt := 1; ; attempt++ {
		if attempt > maxArchiveAttempts {
			return nil, fmt.Errorf("%w: %q: too many archives with the same name", ErrArchiveCreate, name)
		}
		candidate := name
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", name, attempt)
		}
		path = filepath.Join(root, candidate)
		err := fsys.Mkdir(path, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: mkdir %q: %v", ErrArchiveCreate, path, err)
		}
	}

	for _, sub := range []string{InterchangeDir, StatementDir} {
		dir := filepath.Join(path, sub)
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir %q: %v", ErrArchiveCreate, dir, err)
		}
	}
	return &Archive{Path: path, fs: fsys}, nil
}

// InterchangePath returns where the JSON document of table is written.
func (a *Archive) InterchangePath(table string) string {
	return filepath.Join(a.Path, InterchangeDir, table+InterchangeExt)
}

// StatementPath returns where the SQL document of table is written.
func (a *Archive) StatementPath(table string) string {
	return filepath.Join(a.Path, StatementDir, table+StatementExt)
}

// WriteTable writes both documents of table and returns the bytes written.
func (a *Archive) WriteTable(table string, doc backup.Document) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	if err := afero.WriteFile(a.fs, a.InterchangePath(table), doc.Interchange, 0o644); err != nil {
		return 0, fmt.Errorf("write interchange document: %w", err)
	}
	if err := afero.WriteFile(a.fs, a.StatementPath(table), []byte(doc.Statement), 0o644); err != nil {
		return 0, fmt.Errorf("write statement document: %w", err)
	}
	return int64(len(doc.Interchange) + len(doc.Statement)), nil
}

// WriteCombined writes the concatenated statements of every table.
func (a *Archive) WriteCombined(data []byte) error {
	path := filepath.Join(a.Path, CombinedFile)
	if err := afero.WriteFile(a.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", CombinedFile, err)
	}
	return nil
}

// ValidateTableName rejects names that cannot be used as a file name.
func ValidateTableName(table string) error {
	switch {
	case table == "", table == ".", table == "..":
		return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	case strings.ContainsAny(table, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidTableName, table)
	case strings.ContainsAny(table, "\r\n"):
		return fmt.Errorf("%w: %q contains a line break", ErrInvalidTableName, table)
	}
	return nil
}
