// Package pipeline provides the step orchestrator: it walks a configured step
// list over a document's page batches, fans out gateway calls with bounded
// parallelism, and consolidates the per-batch answers into canonical outcomes.
package pipeline

import (
	"github.com/jonathan/docrouter/internal/consolidate"
)

// StepKind identifies the three step types.
type StepKind string

// Step kinds.
const (
	KindExtraction StepKind = "extraction"
	KindScoring    StepKind = "scoring"
	KindDecision   StepKind = "decision"
)

// RouteRoot is the sentinel route every run starts on. Steps declaring it run
// unconditionally.
const RouteRoot = "ROOT"

// Step is one configured unit of pipeline work, bound to one prompt.
// Immutable once loaded.
type Step struct {
	ID       string   `yaml:"id" json:"id"`
	Kind     StepKind `yaml:"kind" json:"kind"`
	PromptID string   `yaml:"prompt_id" json:"prompt_id"`
	Route    string   `yaml:"route,omitempty" json:"route,omitempty"`
	Active   bool     `yaml:"active" json:"active"`

	// Extraction only.
	JSONKey   string `yaml:"json_key,omitempty" json:"json_key,omitempty"`
	ValueType string `yaml:"value_type,omitempty" json:"value_type,omitempty"`

	// Decision only: route labels a boolean answer maps onto.
	YesKey string `yaml:"yes_key,omitempty" json:"yes_key,omitempty"`
	NoKey  string `yaml:"no_key,omitempty" json:"no_key,omitempty"`

	// Decision only: free-form route labels the prompt may emit, for
	// validating later steps that gate on them.
	Routes []string `yaml:"routes,omitempty" json:"routes,omitempty"`

	// Optional reference page for proximity weighting.
	AnchorPage *int `yaml:"anchor_page,omitempty" json:"anchor_page,omitempty"`
}

// Pipeline is a named, ordered step list.
type Pipeline struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// RunStep is one append-only audit log entry: the raw per-batch answers and
// the consolidated result of one executed step, in execution order.
type RunStep struct {
	Sequence     int      `json:"sequence"`
	StepID       string   `json:"step_id"`
	PromptID     string   `json:"prompt_id"`
	Kind         StepKind `json:"kind"`
	Route        string   `json:"route"`
	BatchPages   [][]int  `json:"batch_pages"`
	RawAnswers   any      `json:"raw_answers"`
	Consolidated any      `json:"consolidated,omitempty"`
}

// ExtractionResult is a consolidated field with its prompt binding. Field is
// nil when every candidate for the prompt was filtered out.
type ExtractionResult struct {
	PromptID string                      `json:"prompt_id"`
	JSONKey  string                      `json:"json_key,omitempty"`
	Field    *consolidate.CanonicalField `json:"field,omitempty"`
}

// ScoringResult is a consolidated yes/no outcome with its prompt binding.
type ScoringResult struct {
	PromptID string `json:"prompt_id"`
	consolidate.ScoreOutcome
}

// DecisionResult is a consolidated routing outcome with its prompt binding.
type DecisionResult struct {
	PromptID string `json:"prompt_id"`
	consolidate.DecisionOutcome
}

// RunOutcome is the final artifact of one pipeline run. Immutable once
// returned.
type RunOutcome struct {
	Extraction   []ExtractionResult `json:"extraction,omitempty"`
	Scoring      []ScoringResult    `json:"scoring,omitempty"`
	Decision     []DecisionResult   `json:"decision,omitempty"`
	OverallScore *float64           `json:"overall_score,omitempty"`
	RouteHistory []string           `json:"route_history"`
	Log          []RunStep          `json:"log"`
}
