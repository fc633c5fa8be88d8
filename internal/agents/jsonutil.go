package agents

import "strings"

// extractJSON pulls the first top-level {...} object out of a larger text
// blob, tolerating the surrounding prose LLMs commonly wrap structured
// answers in. Returns the original text unchanged if no braces are found,
// so json.Unmarshal produces a normal parse error for the retry policy to
// catch.
func extractJSON(text string) []byte {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return []byte(text)
	}
	return []byte(text[start : end+1])
}
