package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get("intake.json", "vendor_name")
	require.NoError(t, err)
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "legal name")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get("intake.json", "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestStore_Resolve(t *testing.T) {
	ClearCache()

	store := NewStore("")
	prompt, err := store.Resolve("doc_type")
	require.NoError(t, err)
	assert.Contains(t, prompt, "INVOICE")

	_, err = store.Resolve("missing_prompt")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List("intake.json")
	require.NoError(t, err)
	assert.Contains(t, keys, "doc_type")
	assert.Contains(t, keys, "invoice_total")
	assert.IsIncreasing(t, keys)
}
