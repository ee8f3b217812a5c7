package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a surrounding Markdown code fence (``` or
// ```json) from a model reply. Text without a fence is returned trimmed.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", ...).
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSONArray decodes the first JSON array found in a model reply into v.
// Models often wrap the array in prose or a code fence, so the outermost
// '[' ... ']' span is decoded.
func ExtractJSONArray(s string, v any) error {
	return extractJSON(s, '[', ']', v)
}

// ExtractJSONObject decodes the first JSON object found in a model reply into v.
func ExtractJSONObject(s string, v any) error {
	return extractJSON(s, '{', '}', v)
}

func extractJSON(s string, open, closing byte, v any) error {
	s = StripCodeFences(s)

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON %c...%c found in response", open, closing)
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse JSON from response: %w", err)
	}
	return nil
}
