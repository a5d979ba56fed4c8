package consolidate

import (
	"math"
	"sort"
	"strings"

	"github.com/jonathan/docrouter/internal/gateway"
)

// Score labels.
const (
	LabelYes    = "yes"
	LabelNo     = "no"
	LabelUnsure = "unsure"
)

// ScoreOutcome is the consolidated yes/no answer for one scoring step.
type ScoreOutcome struct {
	Result      bool             `json:"result"`
	Label       string           `json:"label"`
	Confidence  float64          `json:"confidence"`
	Support     []gateway.Source `json:"support,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
}

// scoredAnswer pairs one surviving answer with its computed strength.
type scoredAnswer struct {
	strength    float64
	result      bool
	source      *gateway.Source
	explanation string
}

const tieEpsilon = 1e-6

// ConsolidateScore reduces the batch answers of one scoring step into a single
// weighted yes/no outcome. Answers with errors, missing confidence, or
// confidence below cfg.MinConfidence are dropped. Returns nil when nothing
// survives (indeterminate).
//
// The reported confidence is always the yes-share of the total weight, not the
// winner's share.
func ConsolidateScore(answers []gateway.RawScore, anchorPage *int, cfg Config) *ScoreOutcome {
	var scored []scoredAnswer
	var yesWeight, noWeight float64

	for _, a := range answers {
		if a.Error != "" {
			continue
		}
		if a.Confidence == nil || *a.Confidence < cfg.MinConfidence {
			continue
		}

		strength := answerStrength(a.Source, a.Explanation, anchorPage, cfg)
		scored = append(scored, scoredAnswer{
			strength:    strength,
			result:      a.Result,
			source:      a.Source,
			explanation: a.Explanation,
		})
		if a.Result {
			yesWeight += strength
		} else {
			noWeight += strength
		}
	}

	total := yesWeight + noWeight
	if total == 0 {
		return nil
	}

	if math.Abs(yesWeight-noWeight) <= tieEpsilon {
		side := sideAnswers(scored, true)
		if len(side) == 0 {
			side = sideAnswers(scored, false)
		}
		outcome := &ScoreOutcome{
			Result:     false,
			Label:      LabelUnsure,
			Confidence: clamp01(yesWeight / total),
		}
		fillSupport(outcome, side)
		return outcome
	}

	winner := yesWeight > noWeight
	label := LabelNo
	if winner {
		label = LabelYes
	}
	outcome := &ScoreOutcome{
		Result:     winner,
		Label:      label,
		Confidence: clamp01(yesWeight / total),
	}
	fillSupport(outcome, sideAnswers(scored, winner))
	return outcome
}

// answerStrength computes the shared per-answer strength used by scoring and
// decision consolidation: vote weight plus anchor proximity, header band, and
// explanation presence signals.
func answerStrength(source *gateway.Source, explanation string, anchorPage *int, cfg Config) float64 {
	strength := cfg.SignalVote

	near := 0.5
	if anchorPage != nil && source != nil {
		near = 1.0 / float64(1+abs(source.Page-*anchorPage))
	}
	strength += cfg.SignalProximity * near

	if source != nil && source.BBox[1] <= cfg.HeaderY {
		strength += cfg.SignalHeader
	}
	if len(strings.TrimSpace(explanation)) >= cfg.MinExplLen {
		strength += cfg.SignalExplanation
	}
	return strength
}

// sideAnswers returns the answers voting result, strongest first. The sort is
// stable so equally strong answers keep input order.
func sideAnswers(scored []scoredAnswer, result bool) []scoredAnswer {
	var side []scoredAnswer
	for _, s := range scored {
		if s.result == result {
			side = append(side, s)
		}
	}
	sort.SliceStable(side, func(i, j int) bool {
		return side[i].strength > side[j].strength
	})
	return side
}

// fillSupport attaches up to 3 source positions and the first non-empty
// explanation from the winning side.
func fillSupport(outcome *ScoreOutcome, side []scoredAnswer) {
	for _, s := range side {
		if s.source != nil && len(outcome.Support) < 3 {
			outcome.Support = append(outcome.Support, *s.source)
		}
		if outcome.Explanation == "" && strings.TrimSpace(s.explanation) != "" {
			outcome.Explanation = s.explanation
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
