package service

import (
	"io"
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

func newTestExtractor(t *testing.T) *ExtractorService {
	t.Helper()
	extractor, err := NewExtractorService(testLogger(), 16)
	require.NoError(t, err)
	return extractor
}

func TestExtractInlineHeading(t *testing.T) {
	extractor := newTestExtractor(t)

	records, err := extractor.Extract("Warfarin — Dosing Info — CYP2C9 *1/*29")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, domain.RecommendationRecord{
		Drug:       "Warfarin",
		Kind:       domain.KindDosingChange,
		Gene:       "CYP2C9",
		AllelePair: "*1/*29",
	}, records[0])
}

func TestExtractSectionedLayout(t *testing.T) {
	blob := `PharmGKB navigation
Learn more about CPIC
warfarin
(opens in new window)
CPIC recommended clinical action for warfarin and CYP2C9 *1/*29
Dosing Info
codeine
(opens in new window)
CPIC recommended clinical action for codeine and CYP2D6 *4/*4
Alternate Drug
DPWG recommended dosing follows
aspirin
(opens in new window)
Read full annotation
`
	extractor := newTestExtractor(t)

	records, err := extractor.Extract(blob)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, domain.RecommendationRecord{
		Drug:       "warfarin",
		Kind:       domain.KindDosingChange,
		Gene:       "CYP2C9",
		AllelePair: "*1/*29",
	}, records[0])
	assert.Equal(t, domain.RecommendationRecord{
		Drug:       "codeine",
		Kind:       domain.KindAlternateDrug,
		Gene:       "CYP2D6",
		AllelePair: "*4/*4",
	}, records[1])
}

func TestExtractContentBeforeMarkerIgnored(t *testing.T) {
	blob := `fluoxetine — Dosing Info — CYP2D6 *1/*1
Learn more about CPIC
warfarin — Dosing Info — CYP2C9 *1/*29
`
	extractor := newTestExtractor(t)

	records, err := extractor.Extract(blob)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "warfarin", records[0].Drug)
}

func TestExtractMissingGeneTokenStillYieldsRecord(t *testing.T) {
	blob := `Learn more about CPIC
tramadol
(opens in new window)
CPIC recommended clinical action for tramadol
Alternate Drug
`
	extractor := newTestExtractor(t)

	records, err := extractor.Extract(blob)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "tramadol", records[0].Drug)
	assert.Equal(t, domain.KindAlternateDrug, records[0].Kind)
	assert.Empty(t, records[0].Gene)
	assert.Empty(t, records[0].Annotation())
}

func TestExtractMalformedContent(t *testing.T) {
	extractor := newTestExtractor(t)

	_, err := extractor.Extract("nothing that looks like a recommendation page")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedContent)
}

func TestExtractDuplicateSectionsKeepBoth(t *testing.T) {
	// Conflicting sections are both reported; the classifier resolves
	// the conflict with last-record-wins.
	blob := `Learn more about CPIC
warfarin — Dosing Info — CYP2C9 *1/*2
warfarin — Alternate Drug — CYP2C9 *1/*3
`
	extractor := newTestExtractor(t)

	records, err := extractor.Extract(blob)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.KindDosingChange, records[0].Kind)
	assert.Equal(t, domain.KindAlternateDrug, records[1].Kind)
}

func TestExtractBoilerplateNeverBecomesDrug(t *testing.T) {
	blob := `Learn more about CPIC
See the full table
(opens in new window)
Dosing Info
`
	extractor := newTestExtractor(t)

	records, err := extractor.Extract(blob)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractCachedResultMatches(t *testing.T) {
	blob := "Learn more about CPIC\nwarfarin — Dosing Info — CYP2C9 *1/*29\n"
	extractor := newTestExtractor(t)

	first, err := extractor.Extract(blob)
	require.NoError(t, err)
	second, err := extractor.Extract(blob)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtractSectionWithBothLabels(t *testing.T) {
	blob := `Learn more about CPIC
fluvastatin
(opens in new window)
CPIC recommended clinical action for fluvastatin and SLCO1B1 *1/*37
Dosing Info
Alternate Drug
`
	extractor := newTestExtractor(t)

	records, err := extractor.Extract(blob)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.KindDosingChange, records[0].Kind)
	assert.Equal(t, domain.KindAlternateDrug, records[1].Kind)
	assert.Equal(t, "SLCO1B1", records[1].Gene)
}
