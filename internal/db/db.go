// Package db provides PostgreSQL persistence for pipeline runs: the audit
// trail of run steps, consolidated outcomes, stored pipeline definitions, and
// the page text of ingested documents.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/docrouter/internal/batching"
	"github.com/jonathan/docrouter/internal/pipeline"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Pool exposes the underlying pool for components sharing the connection,
// such as the queue transport.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// CreateRun creates a new pipeline run record and returns its ID
func (db *DB) CreateRun(ctx context.Context, documentID, pipelineID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO pipeline_runs (document_id, pipeline_id, status)
		 VALUES ($1, $2, 'running')
		 RETURNING id`,
		documentID, pipelineID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a pipeline run as completed or failed and records the
// overall score when one exists.
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, overallScore *float64) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, overall_score = $2, completed_at = NOW() WHERE id = $3`,
		status, overallScore, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// SaveRunStep appends one audit log entry for a run. Entries are append-only,
// keyed by execution sequence.
func (db *DB) SaveRunStep(ctx context.Context, runID uuid.UUID, step pipeline.RunStep) error {
	pagesJSON, err := json.Marshal(step.BatchPages)
	if err != nil {
		return fmt.Errorf("failed to marshal batch pages: %w", err)
	}
	rawJSON, err := json.Marshal(step.RawAnswers)
	if err != nil {
		return fmt.Errorf("failed to marshal raw answers: %w", err)
	}
	var consolidatedJSON []byte
	if step.Consolidated != nil {
		consolidatedJSON, err = json.Marshal(step.Consolidated)
		if err != nil {
			return fmt.Errorf("failed to marshal consolidated result: %w", err)
		}
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO run_steps (run_id, sequence, step_id, prompt_id, kind, route, batch_pages, raw_answers, consolidated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, step.Sequence, step.StepID, step.PromptID, string(step.Kind), step.Route,
		pagesJSON, rawJSON, consolidatedJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run step %s: %w", step.StepID, err)
	}
	return nil
}

// SaveOutcome stores the consolidated run outcome as one JSON document.
func (db *DB) SaveOutcome(ctx context.Context, runID uuid.UUID, outcome *pipeline.RunOutcome) error {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO run_outcomes (run_id, outcome)
		 VALUES ($1, $2)
		 ON CONFLICT (run_id) DO UPDATE SET outcome = $2, created_at = NOW()`,
		runID, outcomeJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// GetRun retrieves a pipeline run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, document_id, pipeline_id, status, overall_score, created_at, completed_at
		 FROM pipeline_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.DocumentID, &run.PipelineID, &run.Status, &run.OverallScore, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns retrieves recent pipeline runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, document_id, pipeline_id, status, overall_score, created_at, completed_at
		 FROM pipeline_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.DocumentID, &run.PipelineID, &run.Status, &run.OverallScore, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// GetPipeline retrieves a stored pipeline definition by its identifier.
// Returns nil when no definition exists.
func (db *DB) GetPipeline(ctx context.Context, pipelineID string) (*pipeline.Pipeline, error) {
	var name string
	var stepsJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT name, steps FROM pipelines WHERE id = $1`,
		pipelineID,
	).Scan(&name, &stepsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pipeline %s: %w", pipelineID, err)
	}

	var steps []pipeline.Step
	if err := json.Unmarshal(stepsJSON, &steps); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline %s steps: %w", pipelineID, err)
	}
	return &pipeline.Pipeline{ID: pipelineID, Name: name, Steps: steps}, nil
}

// DocumentPages retrieves the ordered page texts of a document.
func (db *DB) DocumentPages(ctx context.Context, documentID string) ([]batching.Page, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT page_number, text FROM document_pages
		 WHERE document_id = $1 ORDER BY page_number`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query document pages: %w", err)
	}
	defer rows.Close()

	var pages []batching.Page
	for rows.Next() {
		var page batching.Page
		if err := rows.Scan(&page.Number, &page.Text); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}
