// Package consolidate reduces noisy per-batch model answers into one
// canonical, confidence-scored answer per question. It provides three
// independent reducers: field (extraction), score (yes/no), and decision
// (routing).
package consolidate

// Config holds the weighting configuration shared by the three consolidators.
// Construct with DefaultConfig and override fields as needed; no hidden
// process-wide state.
type Config struct {
	// HeaderY is the page-top band in layout units; sources with bbox y at or
	// above this line count as header signals.
	HeaderY float64
	// MinExplLen is the minimum trimmed explanation length that counts as a
	// usable explanation.
	MinExplLen int
	// MinConfidence drops scoring answers below this self-reported confidence.
	MinConfidence float64

	// Field (extraction) bucket score weights.
	FieldVote    float64
	FieldPage    float64
	FieldHeader  float64
	FieldPattern float64

	// Scoring/decision per-answer strength weights.
	SignalVote        float64
	SignalProximity   float64
	SignalHeader      float64
	SignalExplanation float64
}

// DefaultConfig returns the standard weighting configuration.
func DefaultConfig() Config {
	return Config{
		HeaderY:       120.0,
		MinExplLen:    20,
		MinConfidence: 0.60,

		FieldVote:    0.55,
		FieldPage:    0.20,
		FieldHeader:  0.15,
		FieldPattern: 0.10,

		SignalVote:        0.60,
		SignalProximity:   0.20,
		SignalHeader:      0.10,
		SignalExplanation: 0.10,
	}
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
