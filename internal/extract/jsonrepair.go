package extract

import "strings"

// RepairQuotes escapes unescaped double quotes embedded inside JSON string
// values, a known model failure mode ("say "hello"" breaking the parse).
// It scans character by character tracking whether the cursor is inside a
// string value; a quote inside a string is treated as the closing quote
// only when the next character is a token terminator (comma, brace,
// bracket, colon, whitespace, or end of input), otherwise it is escaped.
//
// This is deliberately heuristic pattern-matching over possibly-malformed
// input; it runs before the strict parse and never after it.
func RepairQuotes(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for i, r := range runes {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if inString && r == '\\' {
			b.WriteRune(r)
			escaped = true
			continue
		}
		if r != '"' {
			b.WriteRune(r)
			continue
		}

		if !inString {
			inString = true
			b.WriteRune(r)
			continue
		}

		if isTerminator(runes, i+1) {
			inString = false
			b.WriteRune(r)
		} else {
			b.WriteString(`\"`)
		}
	}

	return b.String()
}

// isTerminator reports whether the character at position j ends a JSON
// string token. End of input counts as a terminator.
func isTerminator(runes []rune, j int) bool {
	if j >= len(runes) {
		return true
	}
	switch runes[j] {
	case ',', '}', ']', ':', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
