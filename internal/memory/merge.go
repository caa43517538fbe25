package memory

import (
	"sort"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/pkg/utils"
)

// MergeTocPatterns merges the sections of an approved TOC into an existing
// pattern set. Titles are matched on their normalized form (lowercase, no
// punctuation); a match increments the section's frequency and records the
// incoming title as a variant unless that exact string is already present.
// Unmatched sections are appended at frequency 1 with themselves as the sole
// variant. The result is stably sorted by descending frequency, so ties keep
// their prior relative order.
func MergeTocPatterns(existing []models.MemorySection, newToc *models.Toc) []models.MemorySection {
	merged := make([]models.MemorySection, len(existing))
	copy(merged, existing)

	byNormalized := make(map[string]int, len(merged))
	for i, sec := range merged {
		byNormalized[utils.NormalizeTitle(sec.Title)] = i
	}

	if newToc != nil {
		for _, sec := range newToc.Sections {
			norm := utils.NormalizeTitle(sec.Title)
			if i, ok := byNormalized[norm]; ok {
				merged[i].Frequency++
				if !containsExact(merged[i].Variants, sec.Title) {
					merged[i].Variants = append(merged[i].Variants, sec.Title)
				}
				continue
			}
			merged = append(merged, models.MemorySection{
				Title:     sec.Title,
				Level:     sec.Level,
				Frequency: 1,
				Variants:  []string{sec.Title},
			})
			byNormalized[norm] = len(merged) - 1
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Frequency > merged[j].Frequency
	})
	return merged
}

// containsExact checks for a string-exact (not normalized) match.
func containsExact(variants []string, title string) bool {
	for _, v := range variants {
		if v == title {
			return true
		}
	}
	return false
}
