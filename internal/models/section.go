package models

import "github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"

// Section is one stored section document of an engagement.
type Section struct {
	ScopeID    string                 `json:"scopeId"`
	SectionKey string                 `json:"sectionKey"`
	Content    questionnaire.Document `json:"content"`
	UpdatedAt  string                 `json:"updatedAt"`
}

// SectionSummary is the dashboard line of one section.
type SectionSummary struct {
	SectionKey string               `json:"sectionKey"`
	Progress   questionnaire.Report `json:"progress"`
	UpdatedAt  string               `json:"updatedAt,omitempty"`
}

// Engagement summarises all stored sections and documents of one scope.
type Engagement struct {
	ScopeID   string           `json:"scopeId"`
	Sections  []SectionSummary `json:"sections"`
	Documents int              `json:"documents"`
	Total     int              `json:"total"`
	Answered  int              `json:"answered"`
	Percent   int              `json:"percent"`
}
