package chunker

import (
	"regexp"
	"strings"

	"github.com/hyperjump/sakusei/internal/models"
)

// SizeBand is the target chunk-size band (in estimated tokens) for a document
// type. It shapes splitting; it is not a hard limit on clause headings.
type SizeBand struct {
	Min int
	Max int
}

// bands maps document types to their target chunk-size bands.
// Correspondence has no band: it is always a single chunk.
var bands = map[models.DocumentType]SizeBand{
	models.DocTypeSpecifications:   {Min: 100, Max: 500},
	models.DocTypeDrawingSchedules: {Min: 50, Max: 300},
	models.DocTypeReports:          {Min: 150, Max: 600},
	models.DocTypeDefault:          {Min: 100, Max: 400},
}

var (
	specMarkerRe = regexp.MustCompile(`(?im)^\s*(PART|SECTION)\s+\d+`)
	clauseRe     = regexp.MustCompile(`(?m)^(\d+(?:\.\d+)*)[.)]?\s+(\S.*)$`)
)

var correspondencePhrases = []string{
	"dear ",
	"to whom it may concern",
	"kind regards",
	"yours sincerely",
	"yours faithfully",
	"best regards",
}

// DetectType classifies a document with lightweight lexical heuristics.
// The order mirrors specificity: structural markers first, salutations before
// the catch-all "report"/"summary" match.
func DetectType(content string) models.DocumentType {
	lower := strings.ToLower(content)
	if specMarkerRe.MatchString(content) {
		return models.DocTypeSpecifications
	}
	if strings.Contains(lower, "drawing list") || strings.Contains(lower, "schedule") {
		return models.DocTypeDrawingSchedules
	}
	for _, phrase := range correspondencePhrases {
		if strings.Contains(lower, phrase) {
			return models.DocTypeCorrespondence
		}
	}
	if strings.Contains(lower, "report") || strings.Contains(lower, "summary") {
		return models.DocTypeReports
	}
	return models.DocTypeDefault
}
