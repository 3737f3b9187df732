package operations

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/kebairia/dbsnap/internal/backup"
)

// ArchiveSummary is what ListArchives reports for one archive directory.
type ArchiveSummary struct {
	Name     string    `json:"name"`
	Full     bool      `json:"full"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// ListArchives returns the archives under root, newest first. Archives
// without a readable metadata file are listed without it.
func ListArchives(fsys afero.Fs, root string) ([]ArchiveSummary, error) {
	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []ArchiveSummary{}, nil
		}
		return nil, fmt.Errorf("list archives in %q: %w", root, err)
	}

	archives := make([]ArchiveSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		summary := ArchiveSummary{
			Name: entry.Name(),
			Full: strings.Contains(entry.Name(), fullSuffix),
		}
		var md Metadata
		if err := md.Load(fsys, filepath.Join(root, entry.Name(), MetadataFilename)); err == nil {
			summary.Metadata = &md
			summary.Full = md.Mode == string(backup.ModeFull)
		}
		archives = append(archives, summary)
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Name > archives[j].Name })
	return archives, nil
}
