package models

import "time"

// HealthStatus is a component or composite health verdict.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is the probe result for one retrieval dependency.
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	LatencyMs   int64        `json:"latency_ms"`
	Error       string       `json:"error,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
}

// HealthSnapshot is the composite health of the retrieval dependencies.
// Recomputed per check; never persisted.
type HealthSnapshot struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}
