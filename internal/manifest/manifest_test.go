package manifest

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `sample_id,workbook,blob
S001,samples/s001.xlsx,scraped/s001.txt
S002, samples/s002.xlsx , scraped/s002.txt
`)

	refs, err := NewLoader(testLogger()).Load(path)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, domain.SampleRef{
		ID:           "S001",
		WorkbookPath: "samples/s001.xlsx",
		BlobPath:     "scraped/s001.txt",
	}, refs[0])
	assert.Equal(t, domain.SampleID("S002"), refs[1].ID)
	assert.Equal(t, "samples/s002.xlsx", refs[1].WorkbookPath)
}

func TestLoadManifestWithoutHeader(t *testing.T) {
	path := writeManifest(t, "S001,s001.xlsx,s001.txt\n")

	refs, err := NewLoader(testLogger()).Load(path)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, domain.SampleID("S001"), refs[0].ID)
}

func TestLoadManifestSkipsBlankLines(t *testing.T) {
	path := writeManifest(t, "sample_id,workbook,blob\n\nS001,a.xlsx,a.txt\n,,\n")

	refs, err := NewLoader(testLogger()).Load(path)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestLoadManifestRejectsShortRows(t *testing.T) {
	path := writeManifest(t, "S001,a.xlsx\n")

	_, err := NewLoader(testLogger()).Load(path)
	assert.Error(t, err)
}

func TestLoadManifestRejectsEmptySampleID(t *testing.T) {
	path := writeManifest(t, " ,a.xlsx,a.txt\n")

	_, err := NewLoader(testLogger()).Load(path)
	assert.Error(t, err)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := NewLoader(testLogger()).Load(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}
