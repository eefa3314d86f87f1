package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

func TestClassifyBucketsAndAnnotations(t *testing.T) {
	classifier := NewClassifierService(testLogger())

	records := []domain.RecommendationRecord{
		{Drug: "warfarin", Kind: domain.KindDosingChange, Gene: "CYP2C9", AllelePair: "*1/*29"},
		{Drug: "codeine", Kind: domain.KindAlternateDrug, Gene: "CYP2D6", AllelePair: "*4/*4"},
	}

	classified := classifier.Classify([]string{"Warfarin", "Ibuprofen", "Codeine"}, records)
	require.Len(t, classified, 3)

	assert.Equal(t, domain.ClassifiedDrug{
		Drug:       "Warfarin",
		Bucket:     domain.DosingChange,
		Annotation: "Dosage Change: CYP2C9 *1/*29",
	}, classified[0])
	assert.Equal(t, domain.ClassifiedDrug{
		Drug:   "Ibuprofen",
		Bucket: domain.StandardPrecaution,
	}, classified[1])
	assert.Equal(t, domain.ClassifiedDrug{
		Drug:       "Codeine",
		Bucket:     domain.AlternateDrug,
		Annotation: "Consider Alternate: CYP2D6 *4/*4",
	}, classified[2])
}

func TestClassifyIsTotalPartition(t *testing.T) {
	classifier := NewClassifierService(testLogger())

	records := []domain.RecommendationRecord{
		{Drug: "warfarin", Kind: domain.KindDosingChange, Gene: "CYP2C9", AllelePair: "*1/*29"},
		{Drug: "codeine", Kind: domain.KindAlternateDrug, Gene: "CYP2D6", AllelePair: "*4/*4"},
	}

	permutations := [][]string{
		{"Warfarin", "Ibuprofen", "Codeine"},
		{"Codeine", "Warfarin", "Ibuprofen"},
		{"Ibuprofen", "Codeine", "Warfarin"},
	}

	for _, drugs := range permutations {
		classified := classifier.Classify(drugs, records)
		require.Len(t, classified, len(drugs), "no drug may be dropped or duplicated")

		seen := map[string]int{}
		for i, cd := range classified {
			seen[cd.Drug]++
			// Relative input order is preserved.
			assert.Equal(t, drugs[i], cd.Drug)
		}
		for _, drug := range drugs {
			assert.Equal(t, 1, seen[drug], "drug %s must appear exactly once", drug)
		}
	}
}

func TestClassifyLastRecordWins(t *testing.T) {
	classifier := NewClassifierService(testLogger())

	records := []domain.RecommendationRecord{
		{Drug: "warfarin", Kind: domain.KindDosingChange, Gene: "CYP2C9", AllelePair: "*1/*2"},
		{Drug: "warfarin", Kind: domain.KindAlternateDrug, Gene: "CYP2C9", AllelePair: "*1/*3"},
	}

	classified := classifier.Classify([]string{"Warfarin"}, records)
	require.Len(t, classified, 1)
	assert.Equal(t, domain.AlternateDrug, classified[0].Bucket)
	assert.Equal(t, "Consider Alternate: CYP2C9 *1/*3", classified[0].Annotation)
}

func TestClassifyCaseInsensitiveMatchPreservesOriginalCase(t *testing.T) {
	classifier := NewClassifierService(testLogger())

	records := []domain.RecommendationRecord{
		{Drug: "WARFARIN", Kind: domain.KindDosingChange, Gene: "CYP2C9", AllelePair: "*1/*29"},
	}

	classified := classifier.Classify([]string{"wArFaRiN"}, records)
	require.Len(t, classified, 1)
	assert.Equal(t, "wArFaRiN", classified[0].Drug)
	assert.Equal(t, domain.DosingChange, classified[0].Bucket)
}

func TestClassifyNoRecordsDefaultsEverythingStandard(t *testing.T) {
	classifier := NewClassifierService(testLogger())

	classified := classifier.Classify([]string{"Aspirin", "Ibuprofen"}, nil)
	require.Len(t, classified, 2)
	for _, cd := range classified {
		assert.Equal(t, domain.StandardPrecaution, cd.Bucket)
		assert.Empty(t, cd.Annotation)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	classifier := NewClassifierService(testLogger())

	records := []domain.RecommendationRecord{
		{Drug: "warfarin", Kind: domain.KindDosingChange, Gene: "CYP2C9", AllelePair: "*1/*29"},
	}
	drugs := []string{"Warfarin", "Ibuprofen"}

	first := classifier.Classify(drugs, records)

	reclassifiedInput := make([]string, len(first))
	for i, cd := range first {
		reclassifiedInput[i] = cd.Drug
	}
	second := classifier.Classify(reclassifiedInput, records)

	assert.Equal(t, first, second)
}

func TestClassifyRecordWithoutGeneHasNoAnnotation(t *testing.T) {
	classifier := NewClassifierService(testLogger())

	records := []domain.RecommendationRecord{
		{Drug: "tramadol", Kind: domain.KindAlternateDrug},
	}

	classified := classifier.Classify([]string{"Tramadol"}, records)
	require.Len(t, classified, 1)
	assert.Equal(t, domain.AlternateDrug, classified[0].Bucket)
	assert.Empty(t, classified[0].Annotation)
	// The aggregate cell falls back to the bare bucket label.
	assert.Equal(t, "Consider Alternate", classified[0].CellValue())
}
