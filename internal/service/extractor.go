package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// startMarker opens the actionable region of a scraped CPIC page. Text
// before it is site chrome and never contains drug sections.
const startMarker = "Learn more about CPIC"

// sectionSuffix follows a drug-name line in the scraped page layout.
const sectionSuffix = "(opens in new window)"

const (
	labelDosingInfo    = "Dosing Info"
	labelAlternateDrug = "Alternate Drug"
)

var (
	// inlineHeadingRe matches the compact heading shape
	// "Warfarin — Dosing Info — CYP2C9 *1/*29". Plain hyphens appear in
	// some captures, em and en dashes in others.
	inlineHeadingRe = regexp.MustCompile(
		`^(.{1,80}?)\s*[—–-]{1,2}\s*(Dosing Info|Alternate Drug)\b\s*(?:[—–-]{1,2}\s*(.*))?$`)

	// geneTokenRe matches a gene symbol followed by a star-allele pair,
	// e.g. "CYP2C9 *1/*29".
	geneTokenRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]+)\s+(\*[0-9A-Za-z]+/\*[0-9A-Za-z]+)`)

	// actionLineRe matches the per-drug line that carries the gene
	// evidence in the sectioned page layout.
	actionLineRe = regexp.MustCompile(`(?i)^CPIC recommended clinical action for\b`)
)

// boilerplate fragments that disqualify a line from being a drug name.
var boilerplateFragments = []string{
	"learn more about",
	"read full",
	"see the",
	"cc by-sa",
	"pharmgkb",
}

// ExtractorService parses scraped CPIC page text into recommendation
// records. Parsed results are memoized by blob digest so re-running a
// sample within one process skips the line scan.
type ExtractorService struct {
	logger *logrus.Logger
	cache  *lru.Cache[string, []domain.RecommendationRecord]
}

// NewExtractorService creates an extractor with an LRU memo of cacheSize
// parsed blobs. cacheSize must be positive.
func NewExtractorService(logger *logrus.Logger, cacheSize int) (*ExtractorService, error) {
	cache, err := lru.New[string, []domain.RecommendationRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating extraction cache: %w", err)
	}
	return &ExtractorService{logger: logger, cache: cache}, nil
}

// Extract implements domain.Extractor.
func (s *ExtractorService) Extract(blob string) ([]domain.RecommendationRecord, error) {
	key := blobDigest(blob)
	if records, ok := s.cache.Get(key); ok {
		s.logger.WithField("records", len(records)).Debug("Extraction cache hit")
		return records, nil
	}

	region, ok := actionableRegion(blob)
	if !ok {
		return nil, fmt.Errorf("locating section structure: %w", domain.ErrMalformedContent)
	}

	records, skipped := s.scanSections(region)

	s.logger.WithFields(logrus.Fields{
		"records":          len(records),
		"skipped_sections": skipped,
	}).Info("Extracted recommendation records")

	s.cache.Add(key, records)
	return records, nil
}

// actionableRegion returns the slice of the blob holding drug sections.
// The start marker wins when present; otherwise any recognizable drug
// heading anywhere in the blob makes the whole blob the region. Neither
// present means the content is malformed.
func actionableRegion(blob string) (string, bool) {
	if idx := strings.Index(blob, startMarker); idx >= 0 {
		return blob[idx:], true
	}
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(line)
		if m := inlineHeadingRe.FindStringSubmatch(line); m != nil && !isBoilerplate(m[1]) {
			return blob, true
		}
		if strings.Contains(line, sectionSuffix) {
			return blob, true
		}
	}
	return "", false
}

// sectionScan holds the mutable state of one drug section while its
// following lines are consumed.
type sectionScan struct {
	drug       string
	gene       string
	allelePair string
	emitted    bool
}

// scanSections walks the region line by line, emitting one record per
// actionable label found inside a drug section. Sections that close
// without an actionable label are counted as skipped.
func (s *ExtractorService) scanSections(region string) ([]domain.RecommendationRecord, int) {
	var (
		records []domain.RecommendationRecord
		current *sectionScan
		skipped int
	)

	closeSection := func() {
		if current != nil && !current.emitted {
			skipped++
			s.logger.WithField("drug", current.drug).Debug("Section had no actionable recommendation")
		}
		current = nil
	}

	lines := strings.Split(region, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		// Compact heading: drug, label and optional gene token on one line.
		if m := inlineHeadingRe.FindStringSubmatch(line); m != nil && !isBoilerplate(m[1]) {
			closeSection()
			rec := domain.RecommendationRecord{
				Drug: strings.TrimSpace(m[1]),
				Kind: kindForLabel(m[2]),
			}
			if g := geneTokenRe.FindStringSubmatch(m[3]); g != nil {
				rec.Gene, rec.AllelePair = g[1], g[2]
			}
			records = append(records, rec)
			current = &sectionScan{drug: rec.Drug, gene: rec.Gene, allelePair: rec.AllelePair, emitted: true}
			continue
		}

		// Sectioned layout: a drug-name line immediately followed by the
		// "(opens in new window)" navigation suffix opens a new section.
		if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == sectionSuffix && !isBoilerplate(line) {
			closeSection()
			current = &sectionScan{drug: line}
			i++ // consume the suffix line
			continue
		}

		if current == nil {
			continue
		}

		switch {
		case strings.Contains(line, "DPWG"):
			// DPWG guidance follows the CPIC block; stop reading the section.
			closeSection()

		case actionLineRe.MatchString(line) &&
			strings.Contains(strings.ToLower(line), strings.ToLower(current.drug)):
			if g := geneTokenRe.FindStringSubmatch(line); g != nil {
				current.gene, current.allelePair = g[1], g[2]
			}

		case strings.Contains(line, labelDosingInfo):
			records = append(records, currentRecord(current, domain.KindDosingChange))
			current.emitted = true

		case strings.Contains(line, labelAlternateDrug):
			records = append(records, currentRecord(current, domain.KindAlternateDrug))
			current.emitted = true
		}
	}
	closeSection()

	return records, skipped
}

func currentRecord(sc *sectionScan, kind domain.RecommendationKind) domain.RecommendationRecord {
	return domain.RecommendationRecord{
		Drug:       sc.drug,
		Kind:       kind,
		Gene:       sc.gene,
		AllelePair: sc.allelePair,
	}
}

func kindForLabel(label string) domain.RecommendationKind {
	if label == labelAlternateDrug {
		return domain.KindAlternateDrug
	}
	return domain.KindDosingChange
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, fragment := range boilerplateFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func blobDigest(blob string) string {
	sum := sha256.Sum256([]byte(blob))
	return hex.EncodeToString(sum[:])
}
