package models

// PlanningContext is the authoritative structured facts that seed report
// generation, assembled by the planning loader from the project record.
type PlanningContext struct {
	ProjectID    string        `json:"project_id"`
	ProjectName  string        `json:"project_name"`
	Details      string        `json:"details,omitempty"`
	Objectives   []string      `json:"objectives,omitempty"`
	Stages       []Stage       `json:"stages,omitempty"`
	Risks        []Risk        `json:"risks,omitempty"`
	Stakeholders []Stakeholder `json:"stakeholders,omitempty"`
	Disciplines  []string      `json:"disciplines,omitempty"`
	Trades       []string      `json:"trades,omitempty"`
}

// Stage is one project stage with its date range.
type Stage struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// Risk is one project risk entry.
type Risk struct {
	Description string `json:"description"`
	Likelihood  string `json:"likelihood,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Mitigation  string `json:"mitigation,omitempty"`
}

// Stakeholder is one project stakeholder.
type Stakeholder struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// TransmittalDocument is one document in a transmittal bundle.
type TransmittalDocument struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Revision string `json:"revision,omitempty"`
}

// Transmittal is a named bundle of documents attached to a report for a
// discipline or trade. Rendered factually, never AI-generated.
type Transmittal struct {
	Name      string                `json:"name"`
	Documents []TransmittalDocument `json:"documents"`
}
