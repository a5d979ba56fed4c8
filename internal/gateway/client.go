package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is the narrow interface the orchestrator consumes. One method per
// call kind; each takes a prompt identifier and the batch text and returns a
// typed answer.
type Client interface {
	Extract(ctx context.Context, promptID, text string) (*RawExtraction, error)
	Score(ctx context.Context, promptID, text string) (*RawScore, error)
	Decide(ctx context.Context, promptID, text string) (*RawDecision, error)
	Close() error
}

// PromptStore resolves prompt identifiers into template text.
type PromptStore interface {
	Resolve(promptID string) (string, error)
}

// GeminiClient implements Client against the Google Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	prompts PromptStore
}

// NewGeminiClient creates a Gemini-backed gateway client.
func NewGeminiClient(ctx context.Context, apiKey, model string, prompts PromptStore) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model, prompts: prompts}, nil
}

// Extract runs an extraction prompt over the batch text.
func (c *GeminiClient) Extract(ctx context.Context, promptID, text string) (*RawExtraction, error) {
	var answer RawExtraction
	if err := c.generate(ctx, promptID, text, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Score runs a yes/no scoring prompt over the batch text.
func (c *GeminiClient) Score(ctx context.Context, promptID, text string) (*RawScore, error) {
	var answer RawScore
	if err := c.generate(ctx, promptID, text, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Decide runs a routing prompt over the batch text.
func (c *GeminiClient) Decide(ctx context.Context, promptID, text string) (*RawDecision, error) {
	var answer RawDecision
	if err := c.generate(ctx, promptID, text, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// generate resolves the prompt, calls the model in JSON mode, and decodes the
// relaxed-JSON response into out. Undecodable responses are returned as errors
// and handled by the retry wrapper like any other call failure.
func (c *GeminiClient) generate(ctx context.Context, promptID, text string, out any) error {
	template, err := c.prompts.Resolve(promptID)
	if err != nil {
		return fmt.Errorf("failed to resolve prompt %q: %w", promptID, err)
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(template, text)))
	if err != nil {
		return fmt.Errorf("failed to generate content: %w", err)
	}

	raw, err := extractTextFromResponse(resp)
	if err != nil {
		return err
	}

	return DecodeRelaxed(raw, out)
}

// buildPrompt combines the prompt template with the batch text.
func buildPrompt(template, text string) string {
	var sb strings.Builder
	sb.WriteString(template)
	sb.WriteString("\n\nReturn ONLY the JSON object, no markdown, no explanation, no code blocks.\n")
	sb.WriteString("\nDocument text:\n\"\"\"\n")
	sb.WriteString(text)
	sb.WriteString("\n\"\"\"\n")
	return sb.String()
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
