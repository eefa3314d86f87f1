package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// ClassifierService partitions a sample's drug list into the three
// classification buckets using extracted recommendation records.
type ClassifierService struct {
	logger *logrus.Logger
}

// NewClassifierService creates a new drug classifier.
func NewClassifierService(logger *logrus.Logger) *ClassifierService {
	return &ClassifierService{logger: logger}
}

// Classify implements domain.Classifier. Matching is case-insensitive:
// scraped sources and workbook entries frequently disagree on casing, and
// the workbook's casing is preserved in the output. When the blob holds
// several records for one drug the last-seen record wins, recommendation
// text being treated as append-only and corrective.
func (c *ClassifierService) Classify(originalDrugs []string, records []domain.RecommendationRecord) []domain.ClassifiedDrug {
	byName := make(map[string]domain.RecommendationRecord, len(records))
	for _, rec := range records {
		byName[strings.ToLower(strings.TrimSpace(rec.Drug))] = rec
	}

	classified := make([]domain.ClassifiedDrug, 0, len(originalDrugs))
	counts := map[domain.Bucket]int{}

	for _, drug := range originalDrugs {
		cd := domain.ClassifiedDrug{Drug: drug, Bucket: domain.StandardPrecaution}
		if rec, ok := byName[strings.ToLower(strings.TrimSpace(drug))]; ok {
			cd.Bucket = rec.Kind.Bucket()
			cd.Annotation = rec.Annotation()
		}
		counts[cd.Bucket]++
		classified = append(classified, cd)
	}

	c.logger.WithFields(logrus.Fields{
		"drugs":               len(originalDrugs),
		"standard_precaution": counts[domain.StandardPrecaution],
		"dosing_change":       counts[domain.DosingChange],
		"alternate_drug":      counts[domain.AlternateDrug],
	}).Info("Classified drug list")

	return classified
}
