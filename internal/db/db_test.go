package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRunStatusConstants(t *testing.T) {
	assert.Equal(t, "running", RunStatusRunning)
	assert.Equal(t, "completed", RunStatusCompleted)
	assert.Equal(t, "failed", RunStatusFailed)
}

func TestRunFields(t *testing.T) {
	score := 0.75
	completed := time.Now()
	run := Run{
		ID:           uuid.New(),
		DocumentID:   "doc-123",
		PipelineID:   "invoice-intake",
		Status:       RunStatusCompleted,
		OverallScore: &score,
		CreatedAt:    time.Now(),
		CompletedAt:  &completed,
	}

	assert.Equal(t, "doc-123", run.DocumentID)
	assert.Equal(t, "invoice-intake", run.PipelineID)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.NotNil(t, run.OverallScore)
	assert.Equal(t, 0.75, *run.OverallScore)
}
