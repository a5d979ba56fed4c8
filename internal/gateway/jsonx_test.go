package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "generic code block",
			input:    "```\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "code block with language",
			input:    "```javascript\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "plain JSON",
			input:    `{"key": "value"}`,
			expected: `{"key": "value"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	input := "Here is the result you asked for:\n{\"route\": \"INVOICE\"}\nLet me know if you need anything else."

	got, err := ExtractJSON(input)

	require.NoError(t, err)
	assert.Equal(t, `{"route": "INVOICE"}`, got)
}

func TestExtractJSON_NestedAndStrings(t *testing.T) {
	input := `prefix {"a": {"b": "contains } brace"}, "c": [1, 2]} suffix`

	got, err := ExtractJSON(input)

	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": "contains } brace"}, "c": [1, 2]}`, got)
}

func TestExtractJSON_Array(t *testing.T) {
	got, err := ExtractJSON(`answer: [1, 2, 3]`)

	require.NoError(t, err)
	assert.Equal(t, `[1, 2, 3]`, got)
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("no structured content here")
	assert.Error(t, err)
}

func TestExtractJSON_Unbalanced(t *testing.T) {
	_, err := ExtractJSON(`{"key": "value"`)
	assert.Error(t, err)
}

func TestDecodeRelaxed_FencedWithProse(t *testing.T) {
	input := "Sure! Here you go:\n```json\n{\"result\": true, \"confidence\": 0.9, \"explanation\": \"matches header\"}\n```"

	var score RawScore
	err := DecodeRelaxed(input, &score)

	require.NoError(t, err)
	assert.True(t, score.Result)
	require.NotNil(t, score.Confidence)
	assert.InDelta(t, 0.9, *score.Confidence, 1e-9)
	assert.Equal(t, "matches header", score.Explanation)
}

func TestDecodeRelaxed_Undecodable(t *testing.T) {
	var out RawExtraction
	err := DecodeRelaxed("the model refused to answer", &out)
	assert.Error(t, err)
}
