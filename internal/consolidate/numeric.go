package consolidate

import (
	"strconv"
	"strings"
)

// currencyTokens are stripped before numeric parsing.
var currencyTokens = []string{"€", "$", "£", "CHF", "EUR", "USD", "chf", "eur", "usd"}

// ParseNumber interprets a JSON scalar as a number, normalizing common
// European and US formatting: currency symbols, apostrophe/space thousands
// separators, and comma decimals. The second return is false when the value
// cannot be read as a number.
func ParseNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		return parseNumericString(v)
	default:
		return 0, false
	}
}

func parseNumericString(s string) (float64, bool) {
	for _, token := range currencyTokens {
		s = strings.ReplaceAll(s, token, "")
	}

	// Apostrophes, spaces, and non-breaking spaces act as thousands separators.
	s = strings.NewReplacer("'", "", "’", "", " ", "", " ", "").Replace(s)
	s = strings.TrimSpace(s)

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// The separator appearing last is the decimal point, the other one is
		// a thousands separator. Handles "1.234,56" and "1,234.56" alike.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	case hasDot:
		// Keep only the last "." as the decimal point.
		if last := strings.LastIndex(s, "."); strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
		}
	}

	// Strip everything that is not a digit, a dot, or a leading minus.
	var sb strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			sb.WriteRune(r)
		case r == '-' && i == 0:
			sb.WriteRune(r)
		}
	}

	cleaned := sb.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return 0, false
	}

	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// hasFraction reports whether n carries a fractional part.
func hasFraction(n float64) bool {
	return n != float64(int64(n))
}
