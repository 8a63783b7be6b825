package research

import "strings"

// extractJSONArray finds and extracts a JSON array from a response that
// might contain markdown.
func extractJSONArray(response string) string {
	response = strings.TrimSpace(response)

	// Look for JSON in code blocks first (most reliable)
	if start := strings.Index(response, "```json"); start != -1 {
		start += 7 // len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	// Look for JSON in generic code blocks
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(content, "[") {
				return content
			}
		}
	}

	// If it starts with [, assume it's raw JSON
	if strings.HasPrefix(response, "[") {
		return extractDelimited(response, 0, '[', ']')
	}

	// Try to find a JSON array anywhere in the response
	if start := strings.Index(response, "["); start != -1 {
		return extractDelimited(response, start, '[', ']')
	}

	return ""
}

// extractDelimited extracts a complete JSON value starting at the given
// position, properly handling strings that may contain the delimiters.
func extractDelimited(s string, start int, open, close byte) string {
	if start >= len(s) || s[start] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	// If we get here, delimiters weren't balanced - return nothing
	return ""
}
