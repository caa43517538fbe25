package models

import "time"

// TocSection is one entry in a report's table of contents.
type TocSection struct {
	Title       string `json:"title"`
	Level       int    `json:"level"`
	Description string `json:"description,omitempty"`
}

// Toc is a table of contents, either the fixed pipeline structure or a
// memory-backed suggestion.
type Toc struct {
	Sections   []TocSection `json:"sections"`
	FromMemory bool         `json:"from_memory"`
	TimesUsed  int          `json:"times_used,omitempty"`
}

// MemorySection is a learned TOC section with usage frequency and the
// original-casing title variants observed across approved reports.
type MemorySection struct {
	Title     string   `json:"title"`
	Level     int      `json:"level"`
	Frequency int      `json:"frequency"`
	Variants  []string `json:"variants"`
}

// TocMemory is the approved-TOC pattern record for one
// (organization, report type, discipline) key.
type TocMemory struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	ReportType     string          `json:"report_type" db:"report_type"`
	Discipline     string          `json:"discipline" db:"discipline"`
	Sections       []MemorySection `json:"sections" db:"sections"`
	TimesUsed      int             `json:"times_used" db:"times_used"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
