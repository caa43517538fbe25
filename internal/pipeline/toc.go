package pipeline

import (
	"fmt"

	"github.com/hyperjump/sakusei/internal/models"
)

// Fixed section titles. The production pipeline always generates this
// structure; memory suggestions never override it.
const (
	SectionProjectDetails    = "Project Details"
	SectionProjectObjectives = "Project Objectives"
	SectionProjectStaging    = "Project Staging"
	SectionProjectRisks      = "Project Risks"
	SectionConsultantBrief   = "Consultant Brief"
	SectionContractorScope   = "Contractor Scope"
	SectionConsultantFee     = "Consultant Fee"
	SectionContractorPrice   = "Contractor Price"
	SectionTransmittal       = "Transmittal"
)

// BuildFixedToc constructs the fixed report structure. Sections 5 and 6 use
// consultant wording for discipline reports and contractor wording for trade
// reports; with neither set, consultant wording is the default. The
// Transmittal section is included only when the transmittal carries at least
// one document.
func BuildFixedToc(pc *models.PlanningContext, discipline, trade string, transmittal *models.Transmittal) (*models.Toc, error) {
	if pc == nil {
		return nil, Fatal(fmt.Errorf("cannot build table of contents without planning context"))
	}

	brief, fee := SectionConsultantBrief, SectionConsultantFee
	if discipline == "" && trade != "" {
		brief, fee = SectionContractorScope, SectionContractorPrice
	}

	sections := []models.TocSection{
		{Title: SectionProjectDetails, Level: 1},
		{Title: SectionProjectObjectives, Level: 1},
		{Title: SectionProjectStaging, Level: 1},
		{Title: SectionProjectRisks, Level: 1},
		{Title: brief, Level: 1},
		{Title: fee, Level: 1},
	}
	if transmittal != nil && len(transmittal.Documents) > 0 {
		sections = append(sections, models.TocSection{
			Title:       SectionTransmittal,
			Level:       1,
			Description: fmt.Sprintf("%d documents", len(transmittal.Documents)),
		})
	}
	return &models.Toc{Sections: sections, FromMemory: false}, nil
}

// renderTransmittal produces the factual document listing for the Transmittal
// section. No retrieval, no drafting.
func renderTransmittal(t *models.Transmittal) string {
	out := fmt.Sprintf("Transmittal: %s\n", t.Name)
	for _, doc := range t.Documents {
		if doc.Revision != "" {
			out += fmt.Sprintf("- %s (rev %s)\n", doc.Name, doc.Revision)
		} else {
			out += fmt.Sprintf("- %s\n", doc.Name)
		}
	}
	return out
}
