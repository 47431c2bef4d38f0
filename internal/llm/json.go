package llm

import (
	"encoding/json"
	"strings"
)

// ParseJSONResponse parses a JSON object from an LLM reply, handling markdown
// code fences and prose around the object. Returns nil if no object parses.
func ParseJSONResponse(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	inner := stripCodeFence(text)
	if result := decodeObject(inner); result != nil {
		return result
	}
	if result := extractObject(inner); result != nil {
		return result
	}
	if inner != text {
		return extractObject(text)
	}
	return nil
}

// stripCodeFence returns the body of a fenced block. An unclosed fence keeps
// everything after the opening line.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```"))
	}

	body := lines[1:]
	for i := len(body) - 1; i >= 0; i-- {
		if strings.TrimSpace(body[i]) == "```" {
			body = body[:i]
			break
		}
	}
	inner := strings.TrimSpace(strings.Join(body, "\n"))
	return strings.TrimSpace(strings.TrimSuffix(inner, "```"))
}

func decodeObject(text string) map[string]any {
	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil
	}
	return result
}

func extractObject(text string) map[string]any {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	return decodeObject(text[start : end+1])
}
