package consolidate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/docrouter/internal/gateway"
)

// Field value types. TypeAuto defers to majority-based inference over the
// candidate set.
const (
	TypeAuto    = "auto"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// CanonicalField is the consolidated extraction outcome for one prompt.
type CanonicalField struct {
	Value      any         `json:"value"`
	Confidence float64     `json:"confidence"`
	Page       *int        `json:"page,omitempty"`
	Quote      string      `json:"quote,omitempty"`
	BBox       *[4]float64 `json:"bbox,omitempty"`
}

var (
	// digitRun flags bare ID-like values (a run of 5+ digits is heuristically
	// a customer/invoice number, not a business value).
	digitRun = regexp.MustCompile(`^[0-9]{5,}$`)

	// businessPattern recognizes values that look like real business fields:
	// company-form suffixes, IBAN/BIC codes, invoice wording, utility tokens.
	businessPattern = regexp.MustCompile(`(?i)` +
		`\b(gmbh|ag|kg|ohg|gbr|ug|se|ltd|inc|llc|e\.?v\.?)\b` +
		`|\b[a-z]{2}[0-9]{2}[a-z0-9]{10,30}\b` +
		`|\b(iban|bic|rechnung)\b` +
		`|\be[.\- ]?on\b`)
)

// fieldBucket accumulates votes for one normalized candidate value. Buckets
// are kept in insertion order so exact score ties resolve first-inserted,
// reproducibly across runs.
type fieldBucket struct {
	key     string
	votes   int
	minPage *int
	header  bool
	pattern bool
	sample  gateway.RawExtraction
}

// ConsolidateField reduces all non-error extraction answers for one prompt
// into a single canonical field. declaredType is one of the Type constants;
// TypeAuto infers number/boolean when at least 60% of candidates parse as
// such. Returns nil when no candidate survives filtering.
func ConsolidateField(answers []gateway.RawExtraction, declaredType string, cfg Config) *CanonicalField {
	var candidates []gateway.RawExtraction
	for _, a := range answers {
		if a.Error != "" || a.Value == nil {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}

	valueType := declaredType
	if valueType == "" || valueType == TypeAuto {
		valueType = inferType(candidates)
	}

	// Numeric formatting needs a set-wide decision: two decimals when any
	// candidate carries a fractional part, whole numbers otherwise.
	numericFractions := false
	if valueType == TypeNumber {
		for _, c := range candidates {
			if n, ok := ParseNumber(c.Value); ok && hasFraction(n) {
				numericFractions = true
				break
			}
		}
	}

	var buckets []*fieldBucket
	index := make(map[string]int)

	for _, c := range candidates {
		key, ok := bucketKey(c, valueType, numericFractions)
		if !ok {
			continue
		}

		i, exists := index[key]
		if !exists {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, &fieldBucket{key: key, sample: c})
		}
		b := buckets[i]
		b.votes++
		if c.Source != nil {
			page := c.Source.Page
			if b.minPage == nil || page < *b.minPage {
				b.minPage = &page
			}
			if c.Source.BBox[1] <= cfg.HeaderY {
				b.header = true
			}
		}
		if valueType == TypeString && businessPattern.MatchString(valueAsString(c.Value)) {
			b.pattern = true
		}
	}

	if len(buckets) == 0 {
		return nil
	}

	maxVotes := 0
	for _, b := range buckets {
		if b.votes > maxVotes {
			maxVotes = b.votes
		}
	}

	var winner *fieldBucket
	var best float64
	for _, b := range buckets {
		score := cfg.FieldVote * (float64(b.votes) / float64(maxVotes))
		if b.minPage != nil {
			score += cfg.FieldPage * (1.0 / float64(1+*b.minPage))
		}
		if b.header {
			score += cfg.FieldHeader
		}
		if b.pattern {
			score += cfg.FieldPattern
		}
		// Strictly greater: equal scores keep the first-inserted bucket.
		if winner == nil || score > best {
			winner = b
			best = score
		}
	}

	out := &CanonicalField{
		Value:      winner.sample.Value,
		Confidence: clamp01(best),
	}
	if src := winner.sample.Source; src != nil {
		page := src.Page
		bbox := src.BBox
		out.Page = &page
		out.Quote = src.Quote
		out.BBox = &bbox
	}
	return out
}

// inferType counts how many candidates parse as number or boolean; 60% either
// way decides the type, otherwise the field is a string.
func inferType(candidates []gateway.RawExtraction) string {
	var numbers, booleans int
	for _, c := range candidates {
		if _, ok := ParseNumber(c.Value); ok {
			numbers++
		}
		if _, ok := ParseBool(c.Value); ok {
			booleans++
		}
	}
	threshold := float64(len(candidates)) * 0.6
	switch {
	case float64(numbers) >= threshold:
		return TypeNumber
	case float64(booleans) >= threshold:
		return TypeBoolean
	default:
		return TypeString
	}
}

// bucketKey normalizes a candidate into its voting bucket. The second return
// is false when the candidate is discarded entirely.
func bucketKey(c gateway.RawExtraction, valueType string, numericFractions bool) (string, bool) {
	switch valueType {
	case TypeNumber:
		n, ok := ParseNumber(c.Value)
		if !ok {
			return "", false
		}
		if numericFractions {
			return strconv.FormatFloat(n, 'f', 2, 64), true
		}
		return strconv.FormatFloat(n, 'f', 0, 64), true

	case TypeBoolean:
		b, ok := ParseBool(c.Value)
		if !ok {
			return "", false
		}
		return strconv.FormatBool(b), true

	default:
		key := strings.ToLower(valueAsString(c.Value))
		key = strings.Join(strings.Fields(key), " ")
		key = strings.TrimRight(key, ".,;")
		if key == "" {
			return "", false
		}
		if digitRun.MatchString(key) {
			return "", false
		}
		if c.Source != nil && strings.Contains(strings.ToLower(c.Source.Quote), "kundennummer") {
			return "", false
		}
		return key, true
	}
}

// valueAsString renders a JSON scalar for normalization and pattern matching.
func valueAsString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
