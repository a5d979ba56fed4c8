// Package gateway provides the remote model gateway: three typed call kinds
// (extract, score, decide) with per-attempt timeouts, immediate retries, and
// relaxed-JSON response decoding.
package gateway

// Source pinpoints where in the document an answer was found.
type Source struct {
	Page  int        `json:"page"`
	BBox  [4]float64 `json:"bbox"`
	Quote string     `json:"quote,omitempty"`
}

// RawExtraction is one per-batch answer to an extraction prompt.
type RawExtraction struct {
	Value  any     `json:"value"`
	Source *Source `json:"source,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// RawScore is one per-batch answer to a yes/no scoring prompt.
type RawScore struct {
	Result      bool     `json:"result"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Source      *Source  `json:"source,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// RawDecision is one per-batch answer to a routing prompt.
type RawDecision struct {
	Route       string  `json:"route,omitempty"`
	Boolean     *bool   `json:"boolean,omitempty"`
	Source      *Source `json:"source,omitempty"`
	Explanation string  `json:"explanation,omitempty"`
	Error       string  `json:"error,omitempty"`
}
