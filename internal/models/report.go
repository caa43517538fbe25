package models

import "time"

// ReportStatus is the pipeline state of a report generation run.
// Transitions are monotonic forward; failed is terminal and reachable
// from any state. Terminal reports are never resurrected — a re-trigger
// creates a fresh report.
type ReportStatus string

const (
	StatusDraft      ReportStatus = "draft"
	StatusTocPending ReportStatus = "toc_pending"
	StatusGenerating ReportStatus = "generating"
	StatusComplete   ReportStatus = "complete"
	StatusFailed     ReportStatus = "failed"
)

// Terminal reports whether no further pipeline work may run for this status.
func (s ReportStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// statusRank orders the forward progression for transition checks.
var statusRank = map[ReportStatus]int{
	StatusDraft:      0,
	StatusTocPending: 1,
	StatusGenerating: 2,
	StatusComplete:   3,
}

// CanTransition reports whether moving from s to next is a legal forward
// step. Failed is reachable from anywhere; nothing leaves failed.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// SectionContent is the generated (or failed) content for one TOC section.
type SectionContent struct {
	SectionIndex int    `json:"section_index"`
	Title        string `json:"title"`
	Content      string `json:"content,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Report is the persisted state of one report generation request.
type Report struct {
	ID             string           `json:"id" db:"id"`
	OrganizationID string           `json:"organization_id" db:"organization_id"`
	ProjectID      string           `json:"project_id" db:"project_id"`
	ReportType     string           `json:"report_type" db:"report_type"`
	Discipline     string           `json:"discipline,omitempty" db:"discipline"`
	Trade          string           `json:"trade,omitempty" db:"trade"`
	Context        *PlanningContext `json:"context,omitempty" db:"context"`
	Transmittal    *Transmittal     `json:"transmittal,omitempty" db:"transmittal"`
	DocumentSetIDs []string         `json:"document_set_ids,omitempty" db:"document_set_ids"`
	Toc            *Toc             `json:"toc,omitempty" db:"toc"`
	Sections       []SectionContent `json:"sections,omitempty" db:"sections"`
	Status         ReportStatus     `json:"status" db:"status"`
	Error          string           `json:"error,omitempty" db:"error"`
	Approved       bool             `json:"approved" db:"approved"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// ReportInput is the input for requesting a report generation run.
type ReportInput struct {
	OrganizationID string `json:"organization_id"`
	ProjectID      string `json:"project_id"`
	ReportType     string `json:"report_type,omitempty"`
	Discipline     string `json:"discipline,omitempty"`
	Trade          string `json:"trade,omitempty"`
}
