package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/docrouter/internal/batching"
	"github.com/jonathan/docrouter/internal/consolidate"
	"github.com/jonathan/docrouter/internal/gateway"
	"github.com/jonathan/docrouter/internal/logging"
)

// Options bounds batching and fan-out for one orchestrator.
type Options struct {
	MaxPages    int // pages per batch
	MaxChars    int // character budget per batch
	MaxParallel int // in-flight gateway calls per step
	Weights     consolidate.Config
}

// DefaultOptions returns the standard orchestration limits.
func DefaultOptions() Options {
	return Options{
		MaxPages:    4,
		MaxChars:    12000,
		MaxParallel: 4,
		Weights:     consolidate.DefaultConfig(),
	}
}

// Orchestrator walks an ordered step list over a document's batches. Safe for
// concurrent use across runs; all per-run state lives in the run itself.
type Orchestrator struct {
	client gateway.Client
	opts   Options
	logger *slog.Logger
}

// New creates an orchestrator over the given gateway client.
func New(client gateway.Client, opts Options) *Orchestrator {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	return &Orchestrator{
		client: client,
		opts:   opts,
		logger: logging.New("orchestrator"),
	}
}

// extractionCandidate is a raw extraction answer stamped with its step's
// prompt binding, collected run-wide for deferred consolidation.
type extractionCandidate struct {
	promptID  string
	jsonKey   string
	valueType string
	answer    gateway.RawExtraction
}

// run carries the mutable state of one pipeline execution. It is owned by a
// single goroutine; batch fan-out results are folded in only after each
// step's fan-out resolves.
type run struct {
	route      string
	history    []string
	candidates []extractionCandidate
	outcome    RunOutcome
}

// Run executes the step list over the document pages and returns the
// consolidated outcome. Per-batch gateway failures are absorbed as answer
// errors; only configuration errors and context cancellation abort the run.
// On abort, the outcome accumulated so far is returned alongside the error.
func (o *Orchestrator) Run(ctx context.Context, steps []Step, pages []batching.Page) (*RunOutcome, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}

	batches := batching.BuildBatches(pages, o.opts.MaxPages, o.opts.MaxChars)
	o.logger.Info("starting run", "steps", len(steps), "pages", len(pages), "batches", len(batches))

	r := &run{route: RouteRoot, history: []string{RouteRoot}}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return o.finalize(r), fmt.Errorf("run aborted: %w", err)
		}

		if !step.Active {
			o.logger.Debug("skipping inactive step", "step", step.ID)
			continue
		}
		if step.Route != "" && step.Route != RouteRoot && step.Route != r.route {
			o.logger.Debug("skipping off-route step", "step", step.ID, "step_route", step.Route, "current_route", r.route)
			continue
		}

		switch step.Kind {
		case KindExtraction:
			o.runExtractionStep(ctx, r, step, batches)
		case KindScoring:
			o.runScoringStep(ctx, r, step, batches)
		case KindDecision:
			o.runDecisionStep(ctx, r, step, batches)
		}
	}

	return o.finalize(r), nil
}

// runExtractionStep fans out the extract call and collects stamped candidates.
// Consolidation is deferred to run end so later steps sharing the prompt can
// still contribute candidates.
func (o *Orchestrator) runExtractionStep(ctx context.Context, r *run, step Step, batches []batching.Batch) {
	answers := fanOut(ctx, batches, o.opts.MaxParallel, step.PromptID, o.client.Extract,
		func(msg string) *gateway.RawExtraction { return &gateway.RawExtraction{Error: msg} })

	raws := make([]gateway.RawExtraction, 0, len(answers))
	for _, a := range answers {
		raws = append(raws, *a)
		r.candidates = append(r.candidates, extractionCandidate{
			promptID:  step.PromptID,
			jsonKey:   step.JSONKey,
			valueType: step.ValueType,
			answer:    *a,
		})
	}

	o.appendLog(r, step, batches, raws, nil)
}

// runScoringStep fans out the score call and consolidates immediately.
func (o *Orchestrator) runScoringStep(ctx context.Context, r *run, step Step, batches []batching.Batch) {
	answers := fanOut(ctx, batches, o.opts.MaxParallel, step.PromptID, o.client.Score,
		func(msg string) *gateway.RawScore { return &gateway.RawScore{Error: msg} })

	raws := deref(answers)
	outcome := consolidate.ConsolidateScore(raws, step.AnchorPage, o.opts.Weights)
	if outcome != nil {
		r.outcome.Scoring = append(r.outcome.Scoring, ScoringResult{PromptID: step.PromptID, ScoreOutcome: *outcome})
	} else {
		o.logger.Info("scoring step indeterminate", "step", step.ID)
	}

	o.appendLog(r, step, batches, raws, outcome)
}

// runDecisionStep fans out the decide call, consolidates immediately, and
// advances the active route. This is the only place routing state mutates.
func (o *Orchestrator) runDecisionStep(ctx context.Context, r *run, step Step, batches []batching.Batch) {
	answers := fanOut(ctx, batches, o.opts.MaxParallel, step.PromptID, o.client.Decide,
		func(msg string) *gateway.RawDecision { return &gateway.RawDecision{Error: msg} })

	raws := deref(answers)
	outcome := consolidate.ConsolidateDecision(raws, step.AnchorPage, o.opts.Weights)

	// Log before advancing the route so the entry carries the route the step
	// actually ran under.
	o.appendLog(r, step, batches, raws, outcome)

	if outcome != nil {
		r.outcome.Decision = append(r.outcome.Decision, DecisionResult{PromptID: step.PromptID, DecisionOutcome: *outcome})

		next := outcome.Route
		if outcome.Answer != nil && step.YesKey != "" {
			if *outcome.Answer {
				next = step.YesKey
			} else {
				next = step.NoKey
			}
		}
		if next != "" && next != r.route {
			r.route = next
			r.history = append(r.history, next)
			o.logger.Info("route changed", "step", step.ID, "route", next)
		}
	} else {
		o.logger.Info("decision step indeterminate", "step", step.ID)
	}
}

// appendLog records one executed step in the run's audit trail. The
// consolidated slot stays empty for extraction steps; their canonical fields
// are resolved once at finalize time.
func (o *Orchestrator) appendLog(r *run, step Step, batches []batching.Batch, raws any, consolidated any) {
	pageSets := make([][]int, len(batches))
	for i, b := range batches {
		pageSets[i] = b.PageNumbers
	}
	entry := RunStep{
		Sequence:   len(r.outcome.Log),
		StepID:     step.ID,
		PromptID:   step.PromptID,
		Kind:       step.Kind,
		Route:      r.route,
		BatchPages: pageSets,
		RawAnswers: raws,
	}
	// Avoid a typed-nil in the any slot.
	switch v := consolidated.(type) {
	case *consolidate.ScoreOutcome:
		if v != nil {
			entry.Consolidated = v
		}
	case *consolidate.DecisionOutcome:
		if v != nil {
			entry.Consolidated = v
		}
	}
	r.outcome.Log = append(r.outcome.Log, entry)
}

// finalize groups extraction candidates by prompt across every step that used
// it, consolidates each group, and computes the overall score.
func (o *Orchestrator) finalize(r *run) *RunOutcome {
	var order []string
	groups := make(map[string][]extractionCandidate)
	for _, c := range r.candidates {
		if _, seen := groups[c.promptID]; !seen {
			order = append(order, c.promptID)
		}
		groups[c.promptID] = append(groups[c.promptID], c)
	}

	for _, promptID := range order {
		group := groups[promptID]
		answers := make([]gateway.RawExtraction, 0, len(group))
		for _, c := range group {
			answers = append(answers, c.answer)
		}
		field := consolidate.ConsolidateField(answers, group[0].valueType, o.opts.Weights)
		r.outcome.Extraction = append(r.outcome.Extraction, ExtractionResult{
			PromptID: promptID,
			JSONKey:  group[0].jsonKey,
			Field:    field,
		})
	}

	if n := len(r.outcome.Scoring); n > 0 {
		sum := 0.0
		for _, s := range r.outcome.Scoring {
			sum += s.Confidence
		}
		mean := sum / float64(n)
		r.outcome.OverallScore = &mean
	}

	r.outcome.RouteHistory = r.history
	return &r.outcome
}

// fanOut runs one gateway call per batch, concurrently bounded by limit.
// Results land in a slice indexed by batch; no shared state is touched inside
// the parallel region. A failed call degrades to an answer carrying the error.
func fanOut[T any](ctx context.Context, batches []batching.Batch, limit int, promptID string,
	call func(context.Context, string, string) (*T, error),
	errAnswer func(string) *T) []*T {

	results := make([]*T, len(batches))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			answer, err := call(gCtx, promptID, batch.Text)
			if err != nil {
				answer = errAnswer(err.Error())
			}
			results[i] = answer
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return results
}

// deref flattens fan-out results, dropping any missing slots.
func deref[T any](answers []*T) []T {
	out := make([]T, 0, len(answers))
	for _, a := range answers {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}
