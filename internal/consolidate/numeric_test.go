package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
		ok    bool
	}{
		{"european with currency", "1.234,56 €", 1234.56, true},
		{"us grouping", "1,234.56", 1234.56, true},
		{"plain integer", "42", 42.0, true},
		{"dashes fail", "--", 0, false},
		{"empty fails", "", 0, false},
		{"comma decimal", "19,99", 19.99, true},
		{"swiss apostrophes", "CHF 1'200.50", 1200.50, true},
		{"eur word", "EUR 250", 250, true},
		{"multiple dots keep last", "1.234.567", 1234.567, true},
		{"negative", "-42,5", -42.5, true},
		{"non-breaking space", "1 234,00", 1234.0, true},
		{"native float", 12.5, 12.5, true},
		{"prose fails", "circa zwanzig", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input any
		want  bool
		ok    bool
	}{
		{"ja", true, true},
		{"NEIN", false, true},
		{"vielleicht", false, false},
		{"yes", true, true},
		{" No ", false, true},
		{"y", true, true},
		{"1", true, true},
		{"0", false, true},
		{true, true, true},
		{false, false, true},
		{float64(1), true, true},
		{float64(0), false, true},
		{float64(2), false, false},
		{nil, false, false},
	}

	for _, tt := range tests {
		got, ok := ParseBool(tt.input)
		assert.Equal(t, tt.ok, ok, "input %v", tt.input)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %v", tt.input)
		}
	}
}
