package db

import (
	"time"

	"github.com/google/uuid"
)

// Run represents a pipeline run record
type Run struct {
	ID           uuid.UUID  `json:"id"`
	DocumentID   string     `json:"document_id"`
	PipelineID   string     `json:"pipeline_id"`
	Status       string     `json:"status"`
	OverallScore *float64   `json:"overall_score,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
