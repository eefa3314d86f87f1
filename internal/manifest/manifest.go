// Package manifest loads the external sample manifest that enumerates a
// batch: one row per sample mapping its id to the workbook and scraped
// blob locators.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// Loader reads CSV manifests with the columns sample_id, workbook, blob.
// A header row is recognized and skipped; blank lines are ignored.
type Loader struct {
	logger *logrus.Logger
}

// NewLoader creates a manifest loader.
func NewLoader(logger *logrus.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load implements domain.ManifestLoader.
func (l *Loader) Load(path string) ([]domain.SampleRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var refs []domain.SampleRef
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading manifest %s line %d: %w", path, line+1, err)
		}
		line++

		if isHeader(record) || isBlank(record) {
			continue
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("manifest %s line %d: expected sample_id,workbook,blob", path, line)
		}

		ref := domain.SampleRef{
			ID:           domain.SampleID(strings.TrimSpace(record[0])),
			WorkbookPath: strings.TrimSpace(record[1]),
			BlobPath:     strings.TrimSpace(record[2]),
		}
		if err := ref.Validate(); err != nil {
			return nil, fmt.Errorf("manifest %s line %d: %w", path, line, err)
		}
		refs = append(refs, ref)
	}

	l.logger.WithFields(logrus.Fields{
		"manifest": path,
		"samples":  len(refs),
	}).Info("Loaded sample manifest")
	return refs, nil
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "sample_id")
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
