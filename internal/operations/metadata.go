package operations

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const MetadataFilename = "metadata.json"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// TableRecord describes the outcome of one table in a run.
type TableRecord struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Rows       int    `json:"rows"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMS int64  `json:"duration_ms"`
}

// Metadata for a single backup run, stored next to its documents.
type Metadata struct {
	RunID       string        `json:"run_id"`
	Mode        string        `json:"mode"`
	Archive     string        `json:"archive"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	DurationMS  int64         `json:"duration_ms"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Tables      []TableRecord `json:"tables"`
}

// Add records the outcome of one table.
func (m *Metadata) Add(rec TableRecord) {
	if rec.Status == StatusSuccess {
		m.Succeeded++
	} else {
		m.Failed++
	}
	m.Tables = append(m.Tables, rec)
}

// Complete stamps the end of the run.
func (m *Metadata) Complete(at time.Time) {
	m.CompletedAt = at
	m.DurationMS = at.Sub(m.StartedAt).Milliseconds()
}

// Load reads a metadata file.
func (m *Metadata) Load(fsys afero.Fs, filePath string) error {
	jsonFile, err := fsys.Open(filePath)
	if err != nil {
		return fmt.Errorf("couldn't open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	decoder := json.NewDecoder(jsonFile)
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("decode metadata JSON: %w", err)
	}
	return nil
}

// Write stores the metadata file in dirPath.
func (m *Metadata) Write(fsys afero.Fs, dirPath string) error {
	filePath := filepath.Join(dirPath, MetadataFilename)

	jsonFile, err := fsys.Create(filePath)
	if err != nil {
		return fmt.Errorf("create metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	return nil
}
