package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSONBlock removes markdown code block wrappers from model responses.
// Models often wrap JSON in ```json ... ``` blocks even when instructed not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip a potential language identifier on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	return text
}

// ExtractJSON returns the first balanced {...} or [...] region of text,
// skipping any surrounding prose. Braces inside JSON strings are ignored.
func ExtractJSON(text string) (string, error) {
	start := -1
	var open, closing byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			closing = '}'
			if open == '[' {
				closing = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON in response")
}

// DecodeRelaxed decodes a model response into v, tolerating code fences and
// surrounding prose around the JSON payload.
func DecodeRelaxed(text string, v any) error {
	cleaned := CleanJSONBlock(text)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	extracted, err := ExtractJSON(cleaned)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extracted), v); err != nil {
		return fmt.Errorf("failed to decode response JSON: %w", err)
	}
	return nil
}
