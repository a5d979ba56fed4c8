package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/docrouter/internal/batching"
	"github.com/jonathan/docrouter/internal/consolidate"
	"github.com/jonathan/docrouter/internal/gateway"
)

// scriptedClient answers gateway calls from per-prompt functions.
type scriptedClient struct {
	extract func(promptID, text string) *gateway.RawExtraction
	score   func(promptID, text string) *gateway.RawScore
	decide  func(promptID, text string) *gateway.RawDecision

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *scriptedClient) track() func() {
	n := s.inFlight.Add(1)
	for {
		old := s.maxInFlight.Load()
		if n <= old || s.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *scriptedClient) Extract(_ context.Context, promptID, text string) (*gateway.RawExtraction, error) {
	defer s.track()()
	return s.extract(promptID, text), nil
}

func (s *scriptedClient) Score(_ context.Context, promptID, text string) (*gateway.RawScore, error) {
	defer s.track()()
	return s.score(promptID, text), nil
}

func (s *scriptedClient) Decide(_ context.Context, promptID, text string) (*gateway.RawDecision, error) {
	defer s.track()()
	return s.decide(promptID, text), nil
}

func (s *scriptedClient) Close() error { return nil }

func confPtr(v float64) *float64 { return &v }

func testPages(n int) []batching.Page {
	pages := make([]batching.Page, n)
	for i := range pages {
		pages[i] = batching.Page{Number: i + 1, Text: strings.Repeat("lorem ipsum ", 10)}
	}
	return pages
}

func activeStep(s Step) Step {
	s.Active = true
	return s
}

func TestRun_ExtractionConsolidatedAtFinalize(t *testing.T) {
	client := &scriptedClient{
		extract: func(_, _ string) *gateway.RawExtraction {
			return &gateway.RawExtraction{
				Value:  "Acme GmbH",
				Source: &gateway.Source{Page: 1, BBox: [4]float64{0, 50, 100, 20}},
			}
		},
	}
	opts := DefaultOptions()
	opts.MaxPages = 2

	steps := []Step{
		activeStep(Step{ID: "s1", Kind: KindExtraction, PromptID: "vendor", JSONKey: "vendor_name", ValueType: consolidate.TypeString}),
		activeStep(Step{ID: "s2", Kind: KindExtraction, PromptID: "vendor", JSONKey: "vendor_name", ValueType: consolidate.TypeString}),
	}

	outcome, err := New(client, opts).Run(context.Background(), steps, testPages(4))

	require.NoError(t, err)
	// Two steps sharing a prompt yield one canonical field.
	require.Len(t, outcome.Extraction, 1)
	assert.Equal(t, "vendor", outcome.Extraction[0].PromptID)
	assert.Equal(t, "vendor_name", outcome.Extraction[0].JSONKey)
	require.NotNil(t, outcome.Extraction[0].Field)
	assert.Equal(t, "Acme GmbH", outcome.Extraction[0].Field.Value)

	// Both steps are logged with their raw per-batch answers.
	require.Len(t, outcome.Log, 2)
	assert.Equal(t, 0, outcome.Log[0].Sequence)
	assert.Equal(t, 1, outcome.Log[1].Sequence)
	assert.Nil(t, outcome.Log[0].Consolidated)
	raws, ok := outcome.Log[0].RawAnswers.([]gateway.RawExtraction)
	require.True(t, ok)
	assert.Len(t, raws, 2) // 4 pages, 2 per batch
}

func TestRun_DecisionGatesLaterSteps(t *testing.T) {
	client := &scriptedClient{
		decide: func(_, _ string) *gateway.RawDecision {
			return &gateway.RawDecision{Route: "invoice", Source: &gateway.Source{Page: 1, BBox: [4]float64{0, 40, 0, 0}}}
		},
		score: func(promptID, _ string) *gateway.RawScore {
			return &gateway.RawScore{Result: true, Confidence: confPtr(0.9)}
		},
	}

	steps := []Step{
		activeStep(Step{ID: "route", Kind: KindDecision, PromptID: "doc_type", Routes: []string{"INVOICE", "CONTRACT"}}),
		activeStep(Step{ID: "on-invoice", Kind: KindScoring, PromptID: "invoice_valid", Route: "INVOICE"}),
		activeStep(Step{ID: "on-contract", Kind: KindScoring, PromptID: "contract_signed", Route: "CONTRACT"}),
		activeStep(Step{ID: "always", Kind: KindScoring, PromptID: "legible", Route: RouteRoot}),
		activeStep(Step{ID: "unrouted", Kind: KindScoring, PromptID: "complete"}),
	}

	outcome, err := New(client, DefaultOptions()).Run(context.Background(), steps, testPages(2))

	require.NoError(t, err)
	require.Len(t, outcome.Decision, 1)
	assert.Equal(t, "INVOICE", outcome.Decision[0].Route)
	assert.Equal(t, []string{RouteRoot, "INVOICE"}, outcome.RouteHistory)

	// on-contract is skipped; the ROOT-sentinel and unrouted steps still run.
	var scored []string
	for _, s := range outcome.Scoring {
		scored = append(scored, s.PromptID)
	}
	assert.Equal(t, []string{"invoice_valid", "legible", "complete"}, scored)

	// The decision step's log entry carries the route it ran under.
	assert.Equal(t, RouteRoot, outcome.Log[0].Route)
	assert.Equal(t, "INVOICE", outcome.Log[1].Route)
}

func TestRun_YesNoKeysMapBooleanToRoute(t *testing.T) {
	client := &scriptedClient{
		decide: func(_, _ string) *gateway.RawDecision {
			return &gateway.RawDecision{Route: "ja"}
		},
		score: func(_, _ string) *gateway.RawScore {
			return &gateway.RawScore{Result: true, Confidence: confPtr(0.9)}
		},
	}

	steps := []Step{
		activeStep(Step{ID: "approve", Kind: KindDecision, PromptID: "is_approved", YesKey: "APPROVED", NoKey: "REJECTED"}),
		activeStep(Step{ID: "approved-check", Kind: KindScoring, PromptID: "has_stamp", Route: "APPROVED"}),
	}

	outcome, err := New(client, DefaultOptions()).Run(context.Background(), steps, testPages(1))

	require.NoError(t, err)
	assert.Equal(t, []string{RouteRoot, "APPROVED"}, outcome.RouteHistory)
	require.Len(t, outcome.Scoring, 1)
	assert.Equal(t, "has_stamp", outcome.Scoring[0].PromptID)
}

func TestRun_InactiveStepsSkipped(t *testing.T) {
	client := &scriptedClient{
		score: func(_, _ string) *gateway.RawScore {
			return &gateway.RawScore{Result: true, Confidence: confPtr(0.9)}
		},
	}

	steps := []Step{
		{ID: "off", Kind: KindScoring, PromptID: "unused", Active: false},
		activeStep(Step{ID: "on", Kind: KindScoring, PromptID: "used"}),
	}

	outcome, err := New(client, DefaultOptions()).Run(context.Background(), steps, testPages(1))

	require.NoError(t, err)
	require.Len(t, outcome.Scoring, 1)
	assert.Equal(t, "used", outcome.Scoring[0].PromptID)
	assert.Len(t, outcome.Log, 1)
}

func TestRun_GatewayErrorsRetainedInLogExcludedFromResults(t *testing.T) {
	calls := atomic.Int32{}
	client := &scriptedClient{
		score: func(_, _ string) *gateway.RawScore {
			if calls.Add(1) == 1 {
				return &gateway.RawScore{Error: "deadline exceeded"}
			}
			return &gateway.RawScore{Result: true, Confidence: confPtr(0.9)}
		},
	}
	opts := DefaultOptions()
	opts.MaxPages = 1
	opts.MaxParallel = 1

	steps := []Step{activeStep(Step{ID: "s", Kind: KindScoring, PromptID: "p"})}

	outcome, err := New(client, opts).Run(context.Background(), steps, testPages(3))

	require.NoError(t, err)
	require.Len(t, outcome.Scoring, 1)
	assert.True(t, outcome.Scoring[0].Result)

	raws := outcome.Log[0].RawAnswers.([]gateway.RawScore)
	require.Len(t, raws, 3)
	assert.Equal(t, "deadline exceeded", raws[0].Error)
}

func TestRun_OverallScoreIsMeanOfScoringConfidences(t *testing.T) {
	client := &scriptedClient{
		score: func(promptID, _ string) *gateway.RawScore {
			if promptID == "high" {
				return &gateway.RawScore{Result: true, Confidence: confPtr(0.9)}
			}
			return &gateway.RawScore{Result: false, Confidence: confPtr(0.9)}
		},
	}

	steps := []Step{
		activeStep(Step{ID: "a", Kind: KindScoring, PromptID: "high"}),
		activeStep(Step{ID: "b", Kind: KindScoring, PromptID: "low"}),
	}

	outcome, err := New(client, DefaultOptions()).Run(context.Background(), steps, testPages(1))

	require.NoError(t, err)
	require.NotNil(t, outcome.OverallScore)
	// Yes-share confidences: 1.0 for the all-yes step, 0.0 for the all-no one.
	assert.InDelta(t, 0.5, *outcome.OverallScore, 1e-9)
}

func TestRun_NoScoringStepsNoOverallScore(t *testing.T) {
	client := &scriptedClient{
		extract: func(_, _ string) *gateway.RawExtraction {
			return &gateway.RawExtraction{Value: "x"}
		},
	}

	steps := []Step{activeStep(Step{ID: "e", Kind: KindExtraction, PromptID: "p", JSONKey: "k"})}

	outcome, err := New(client, DefaultOptions()).Run(context.Background(), steps, testPages(1))

	require.NoError(t, err)
	assert.Nil(t, outcome.OverallScore)
}

func TestRun_BoundedParallelism(t *testing.T) {
	client := &scriptedClient{
		extract: func(_, _ string) *gateway.RawExtraction {
			return &gateway.RawExtraction{Value: "v"}
		},
	}
	opts := DefaultOptions()
	opts.MaxPages = 1
	opts.MaxParallel = 2

	steps := []Step{activeStep(Step{ID: "e", Kind: KindExtraction, PromptID: "p", JSONKey: "k"})}

	_, err := New(client, opts).Run(context.Background(), steps, testPages(16))

	require.NoError(t, err)
	assert.LessOrEqual(t, client.maxInFlight.Load(), int32(2))
}

func TestRun_InvalidConfigRejectedBeforeExecution(t *testing.T) {
	client := &scriptedClient{}

	steps := []Step{
		activeStep(Step{ID: "s", Kind: KindScoring, PromptID: "p", Route: "NOWHERE"}),
	}

	_, err := New(client, DefaultOptions()).Run(context.Background(), steps, testPages(1))

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "s", cfgErr.StepID)
}

func TestRun_CancelledContextReturnsPartialOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{
		score: func(_, _ string) *gateway.RawScore {
			cancel() // cancel after the first step has started
			return &gateway.RawScore{Result: true, Confidence: confPtr(0.9)}
		},
	}

	steps := []Step{
		activeStep(Step{ID: "a", Kind: KindScoring, PromptID: "p1"}),
		activeStep(Step{ID: "b", Kind: KindScoring, PromptID: "p2"}),
	}

	outcome, err := New(client, DefaultOptions()).Run(ctx, steps, testPages(1))

	require.Error(t, err)
	require.NotNil(t, outcome)
	assert.Len(t, outcome.Scoring, 1)
}
