// Package queue provides the transport over which intake runs are requested
// and their completions announced. Two implementations exist: a
// PostgreSQL-backed queue for worker deployments and an in-memory channel
// queue for tests and one-shot CLI use.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/docrouter/internal/pipeline"
)

// RunRequest asks a worker to run a pipeline over a document. Steps may be
// supplied inline; when empty the worker resolves PipelineID against the
// stored definitions.
type RunRequest struct {
	DocumentID string          `json:"document_id"`
	PipelineID string          `json:"pipeline_id"`
	Steps      []pipeline.Step `json:"steps,omitempty"`
}

// RunCompleted announces the terminal state of a processed request.
type RunCompleted struct {
	RunID        string   `json:"run_id"`
	DocumentID   string   `json:"document_id"`
	PipelineID   string   `json:"pipeline_id"`
	Status       string   `json:"status"`
	OverallScore *float64 `json:"overall_score,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// ErrClosed is returned by transport operations after Close.
var ErrClosed = errors.New("queue: transport closed")

// Transport moves run requests to workers and completions back out.
type Transport interface {
	// Receive blocks until a run request is available or ctx is done.
	Receive(ctx context.Context) (*RunRequest, error)
	// Publish announces a completed run.
	Publish(ctx context.Context, completed *RunCompleted) error
	Close() error
}

const runRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["document_id", "pipeline_id"],
  "properties": {
    "document_id": {"type": "string", "minLength": 1},
    "pipeline_id": {"type": "string", "minLength": 1},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "kind", "prompt_id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "kind": {"type": "string", "enum": ["extraction", "scoring", "decision"]},
          "prompt_id": {"type": "string", "minLength": 1},
          "route": {"type": "string"},
          "active": {"type": "boolean"},
          "json_key": {"type": "string"},
          "value_type": {"type": "string"},
          "yes_key": {"type": "string"},
          "no_key": {"type": "string"},
          "routes": {"type": "array", "items": {"type": "string"}},
          "anchor_page": {"type": "integer"}
        }
      }
    }
  }
}`

// ValidationError reports a run request payload that failed schema validation
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "run request validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "run request validation failed: " + strings.Join(parts, "; ")
}

// DecodeRunRequest validates raw payload bytes against the run request schema
// and decodes them. Invalid payloads return a *ValidationError.
func DecodeRunRequest(payload []byte) (*RunRequest, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(runRequestSchema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate run request: %w", err)
	}
	if !result.Valid() {
		verr := &ValidationError{}
		for _, desc := range result.Errors() {
			verr.Errors = append(verr.Errors, FieldError{
				Field:   desc.Field(),
				Message: desc.Description(),
			})
		}
		return nil, verr
	}

	var req RunRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode run request: %w", err)
	}
	return &req, nil
}
