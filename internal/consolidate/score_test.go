package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/docrouter/internal/gateway"
)

func conf(v float64) *float64 { return &v }

func TestConsolidateScore_AllBelowThreshold(t *testing.T) {
	answers := []gateway.RawScore{
		{Result: true, Confidence: conf(0.3)},
		{Result: false, Confidence: conf(0.5)},
		{Result: true}, // missing confidence
	}

	assert.Nil(t, ConsolidateScore(answers, nil, DefaultConfig()))
}

func TestConsolidateScore_MajorityYes(t *testing.T) {
	answers := []gateway.RawScore{
		{Result: true, Confidence: conf(0.9), Source: headerSource(1), Explanation: "signature block found on first page"},
		{Result: true, Confidence: conf(0.8), Source: bodySource(2)},
		{Result: false, Confidence: conf(0.7), Source: bodySource(5)},
	}

	outcome := ConsolidateScore(answers, nil, DefaultConfig())
	require.NotNil(t, outcome)
	assert.True(t, outcome.Result)
	assert.Equal(t, LabelYes, outcome.Label)
	assert.Greater(t, outcome.Confidence, 0.5)
	assert.LessOrEqual(t, outcome.Confidence, 1.0)
	// Support comes from the winning side only, strongest first.
	require.Len(t, outcome.Support, 2)
	assert.Equal(t, 1, outcome.Support[0].Page)
	assert.Equal(t, "signature block found on first page", outcome.Explanation)
}

func TestConsolidateScore_ConfidenceIsYesShare(t *testing.T) {
	// A no-majority still reports the yes share, not the winner share.
	answers := []gateway.RawScore{
		{Result: false, Confidence: conf(0.9), Source: headerSource(1), Explanation: "no stamp present anywhere"},
		{Result: false, Confidence: conf(0.9), Source: headerSource(1), Explanation: "no stamp present anywhere"},
		{Result: true, Confidence: conf(0.9), Source: headerSource(1), Explanation: "possible stamp on page one"},
	}

	outcome := ConsolidateScore(answers, nil, DefaultConfig())
	require.NotNil(t, outcome)
	assert.False(t, outcome.Result)
	assert.InDelta(t, 1.0/3.0, outcome.Confidence, 1e-9)
}

func TestConsolidateScore_TieIsUnsure(t *testing.T) {
	answers := []gateway.RawScore{
		{Result: true, Confidence: conf(0.9), Source: headerSource(1)},
		{Result: false, Confidence: conf(0.9), Source: headerSource(1)},
	}

	outcome := ConsolidateScore(answers, nil, DefaultConfig())
	require.NotNil(t, outcome)
	assert.False(t, outcome.Result)
	assert.Equal(t, LabelUnsure, outcome.Label)
	assert.InDelta(t, 0.5, outcome.Confidence, 1e-9)
	// Support drawn from the non-empty yes side.
	assert.Len(t, outcome.Support, 1)
}

func TestConsolidateScore_AnchorProximity(t *testing.T) {
	anchor := 1
	near := []gateway.RawScore{
		{Result: true, Confidence: conf(0.9), Source: bodySource(1)},
		{Result: false, Confidence: conf(0.9), Source: bodySource(9)},
	}

	outcome := ConsolidateScore(near, &anchor, DefaultConfig())
	require.NotNil(t, outcome)
	// The page-1 yes answer sits on the anchor and outweighs the distant no.
	assert.True(t, outcome.Result)
}

func TestConsolidateScore_SupportCappedAtThree(t *testing.T) {
	var answers []gateway.RawScore
	for i := 1; i <= 5; i++ {
		answers = append(answers, gateway.RawScore{Result: true, Confidence: conf(0.9), Source: bodySource(i)})
	}

	outcome := ConsolidateScore(answers, nil, DefaultConfig())
	require.NotNil(t, outcome)
	assert.Len(t, outcome.Support, 3)
}

func TestConsolidateScore_ErrorsExcluded(t *testing.T) {
	answers := []gateway.RawScore{
		{Result: true, Confidence: conf(0.9), Error: "timeout"},
	}

	assert.Nil(t, ConsolidateScore(answers, nil, DefaultConfig()))
}

func TestConsolidateScore_Idempotent(t *testing.T) {
	answers := []gateway.RawScore{
		{Result: true, Confidence: conf(0.9), Source: headerSource(1), Explanation: "clearly marked as paid invoice"},
		{Result: false, Confidence: conf(0.7), Source: bodySource(3)},
	}

	first := ConsolidateScore(answers, nil, DefaultConfig())
	second := ConsolidateScore(answers, nil, DefaultConfig())
	assert.Equal(t, first, second)
}
