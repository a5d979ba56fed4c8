package consolidate

import (
	"sort"
	"strings"

	"github.com/jonathan/docrouter/internal/gateway"
)

// RouteUnknown is the bucket for decision answers carrying neither a route
// label nor a boolean hint.
const RouteUnknown = "UNKNOWN"

// routeAliases maps normalized route labels to boolean answers. Labels outside
// the table yield no boolean answer.
var routeAliases = map[string]bool{
	"YES": true, "TRUE": true, "JA": true, "Y": true, "1": true,
	"NO": false, "FALSE": false, "NEIN": false, "N": false, "0": false,
}

// DecisionOutcome is the consolidated routing decision for one decision step.
type DecisionOutcome struct {
	Route       string           `json:"route"`
	Answer      *bool            `json:"answer,omitempty"`
	Confidence  float64          `json:"confidence"`
	VotesYes    int              `json:"votes_yes"`
	VotesNo     int              `json:"votes_no"`
	Support     []gateway.Source `json:"support,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
}

// decisionBucket accumulates strength and votes for one route label.
type decisionBucket struct {
	score       float64
	votes       int
	sources     []gateway.Source
	explanation string
}

// ConsolidateDecision reduces the batch answers of one decision step into a
// single routing outcome. Answers bucket by normalized route label; the bucket
// with the strictly highest accumulated strength wins, with exact ties going
// to the lexicographically first label. Returns nil when no usable answers
// remain.
func ConsolidateDecision(answers []gateway.RawDecision, anchorPage *int, cfg Config) *DecisionOutcome {
	buckets := make(map[string]*decisionBucket)

	for _, a := range answers {
		if a.Error != "" {
			continue
		}

		label := normalizeRoute(a)
		b := buckets[label]
		if b == nil {
			b = &decisionBucket{}
			buckets[label] = b
		}
		b.score += answerStrength(a.Source, a.Explanation, anchorPage, cfg)
		b.votes++
		if a.Source != nil {
			b.sources = append(b.sources, *a.Source)
		}
		if b.explanation == "" && strings.TrimSpace(a.Explanation) != "" {
			b.explanation = a.Explanation
		}
	}

	if len(buckets) == 0 {
		return nil
	}

	// Iterate labels in sorted order so exact score ties resolve to the
	// lexicographically first route, reproducibly across runs.
	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	winnerLabel := labels[0]
	total := 0.0
	for _, label := range labels {
		total += buckets[label].score
		if buckets[label].score > buckets[winnerLabel].score {
			winnerLabel = label
		}
	}
	winner := buckets[winnerLabel]

	confidence := 1.0
	if total > tieEpsilon {
		confidence = clamp01(winner.score / total)
	}

	outcome := &DecisionOutcome{
		Route:       winnerLabel,
		Confidence:  confidence,
		Support:     winner.sources,
		Explanation: winner.explanation,
	}
	if answer, ok := routeAliases[winnerLabel]; ok {
		a := answer
		outcome.Answer = &a
		if answer {
			outcome.VotesYes = winner.votes
		} else {
			outcome.VotesNo = winner.votes
		}
	}
	return outcome
}

// normalizeRoute derives the bucket label for one answer: the trimmed,
// uppercased route when present, the boolean hint otherwise, RouteUnknown as
// the last resort.
func normalizeRoute(a gateway.RawDecision) string {
	label := strings.ToUpper(strings.TrimSpace(a.Route))
	if label != "" {
		return label
	}
	if a.Boolean != nil {
		if *a.Boolean {
			return "YES"
		}
		return "NO"
	}
	return RouteUnknown
}
