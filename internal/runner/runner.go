// Package runner hosts the worker loop: it takes run requests off the queue,
// resolves the pipeline and document pages, executes the orchestrator, and
// persists the audit trail and outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jonathan/docrouter/internal/batching"
	"github.com/jonathan/docrouter/internal/db"
	"github.com/jonathan/docrouter/internal/logging"
	"github.com/jonathan/docrouter/internal/pipeline"
	"github.com/jonathan/docrouter/internal/queue"
)

// Store is the persistence surface the runner needs.
type Store interface {
	CreateRun(ctx context.Context, documentID, pipelineID string) (uuid.UUID, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, status string, overallScore *float64) error
	SaveRunStep(ctx context.Context, runID uuid.UUID, step pipeline.RunStep) error
	SaveOutcome(ctx context.Context, runID uuid.UUID, outcome *pipeline.RunOutcome) error
	GetPipeline(ctx context.Context, pipelineID string) (*pipeline.Pipeline, error)
	DocumentPages(ctx context.Context, documentID string) ([]batching.Page, error)
}

var _ Store = (*db.DB)(nil)

// Runner processes run requests from a transport.
type Runner struct {
	transport    queue.Transport
	store        Store
	orchestrator *pipeline.Orchestrator
	logger       *slog.Logger
}

// New creates a Runner.
func New(transport queue.Transport, store Store, orch *pipeline.Orchestrator) *Runner {
	return &Runner{
		transport:    transport,
		store:        store,
		orchestrator: orch,
		logger:       logging.New("runner"),
	}
}

// Run receives and processes requests until ctx is cancelled or the
// transport closes. A failed request marks its run failed and publishes the
// failure; it never stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	for {
		req, err := r.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			var verr *queue.ValidationError
			if errors.As(err, &verr) {
				r.logger.Warn("discarding invalid run request", "error", verr)
				continue
			}
			return fmt.Errorf("failed to receive run request: %w", err)
		}

		completed := r.process(ctx, req)
		if err := r.transport.Publish(ctx, completed); err != nil {
			r.logger.Error("failed to publish completion", "run_id", completed.RunID, "error", err)
		}
	}
}

func (r *Runner) process(ctx context.Context, req *queue.RunRequest) *queue.RunCompleted {
	completed := &queue.RunCompleted{
		DocumentID: req.DocumentID,
		PipelineID: req.PipelineID,
	}

	steps, err := r.resolveSteps(ctx, req)
	if err != nil {
		completed.Status = db.RunStatusFailed
		completed.Error = err.Error()
		r.logger.Error("failed to resolve pipeline", "pipeline_id", req.PipelineID, "error", err)
		return completed
	}

	pages, err := r.store.DocumentPages(ctx, req.DocumentID)
	if err != nil {
		completed.Status = db.RunStatusFailed
		completed.Error = err.Error()
		r.logger.Error("failed to load document pages", "document_id", req.DocumentID, "error", err)
		return completed
	}
	if len(pages) == 0 {
		completed.Status = db.RunStatusFailed
		completed.Error = fmt.Sprintf("document %s has no pages", req.DocumentID)
		return completed
	}

	runID, err := r.store.CreateRun(ctx, req.DocumentID, req.PipelineID)
	if err != nil {
		completed.Status = db.RunStatusFailed
		completed.Error = err.Error()
		return completed
	}
	completed.RunID = runID.String()

	r.logger.Info("run started",
		"run_id", runID, "document_id", req.DocumentID,
		"pipeline_id", req.PipelineID, "pages", len(pages), "steps", len(steps))

	outcome, runErr := r.orchestrator.Run(ctx, steps, pages)
	r.persist(ctx, runID, outcome)

	status := db.RunStatusCompleted
	if runErr != nil {
		status = db.RunStatusFailed
		completed.Error = runErr.Error()
		r.logger.Error("run failed", "run_id", runID, "error", runErr)
	}
	if outcome != nil {
		completed.OverallScore = outcome.OverallScore
	}
	completed.Status = status

	if err := r.store.CompleteRun(ctx, runID, status, completed.OverallScore); err != nil {
		r.logger.Error("failed to record run completion", "run_id", runID, "error", err)
	}
	if runErr == nil {
		r.logger.Info("run completed", "run_id", runID)
	}
	return completed
}

func (r *Runner) resolveSteps(ctx context.Context, req *queue.RunRequest) ([]pipeline.Step, error) {
	if len(req.Steps) > 0 {
		return req.Steps, nil
	}
	p, err := r.store.GetPipeline(ctx, req.PipelineID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("unknown pipeline %q", req.PipelineID)
	}
	return p.Steps, nil
}

// persist writes the audit log entries and the consolidated outcome. Storage
// failures are logged, not fatal: the run result still gets published.
func (r *Runner) persist(ctx context.Context, runID uuid.UUID, outcome *pipeline.RunOutcome) {
	if outcome == nil {
		return
	}
	for _, step := range outcome.Log {
		if err := r.store.SaveRunStep(ctx, runID, step); err != nil {
			r.logger.Error("failed to save run step", "run_id", runID, "step", step.StepID, "error", err)
		}
	}
	if err := r.store.SaveOutcome(ctx, runID, outcome); err != nil {
		r.logger.Error("failed to save outcome", "run_id", runID, "error", err)
	}
}
