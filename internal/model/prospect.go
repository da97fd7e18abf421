package model

import "time"

// ScoredProspect is one ranked person surfaced by a scan
type ScoredProspect struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Kind     EntityKind             `json:"kind"`
	Score    int                    `json:"score"`
	Source   ParsedEntity           `json:"source"`
	Metadata map[string]interface{} `json:"metadata"`
}

// PipelineState is the persisted status of one scan. Each transition replaces it.
type PipelineState struct {
	ScanID       string                 `json:"scanId"`
	Stage        string                 `json:"stage"`
	Progress     int                    `json:"progress"`
	Message      string                 `json:"message"`
	StartedAt    time.Time              `json:"startedAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
	EtaSeconds   *int                   `json:"etaSeconds,omitempty"`
	ErrorMessage *string                `json:"errorMessage,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
