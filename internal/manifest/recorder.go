// Package manifest records the outcome of a batch run as metadata.json.
package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/spherical/mistral-ocr/internal/domain"
	"github.com/spherical/mistral-ocr/internal/output"
)

// FileName is the manifest's name inside the output directory.
const FileName = "metadata.json"

// New builds a manifest over records and computes its totals.
func New(records []domain.ProcessingRecord, elapsed time.Duration) *domain.BatchManifest {
	files := make([]domain.ProcessingRecord, len(records))
	copy(files, records)

	errCount := 0
	for _, r := range files {
		if r.Failed() {
			errCount++
		}
	}

	return &domain.BatchManifest{
		Files: files,
		Totals: domain.BatchTotals{
			Count:          len(files),
			Errors:         errCount,
			ElapsedSeconds: Seconds(elapsed),
		},
	}
}

// Seconds converts d to seconds rounded to the millisecond.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// Write serializes m to <dir>/metadata.json and returns its path.
func Write(dir string, m *domain.BatchManifest) (string, error) {
	if m == nil {
		return "", domain.IOError("no manifest to write", nil)
	}
	if m.Files == nil {
		m.Files = []domain.ProcessingRecord{}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", domain.IOError("failed to encode manifest", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, FileName)
	if err := output.WriteFileAtomic(path, data, 0644); err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to write manifest %s", path), err)
	}
	return path, nil
}

// Read loads a manifest written by Write.
func Read(path string) (*domain.BatchManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("failed to read manifest %s", path), err)
	}

	var m domain.BatchManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domain.IOError(fmt.Sprintf("failed to decode manifest %s", path), err)
	}
	return &m, nil
}
