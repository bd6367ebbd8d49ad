// Package jsonscan finds JSON values embedded in arbitrary text, such as
// state blobs inside page scripts or model replies wrapped in prose.
package jsonscan

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// Span returns the balanced object or array starting at the first '{' or
// '[' at or after from. Brackets inside string literals are ignored and
// escapes are honoured. ok is false when the value never closes.
func Span(text string, from int) (span string, ok bool) {
	if from < 0 || from >= len(text) {
		return "", false
	}

	start := strings.IndexAny(text[from:], "{[")
	if start < 0 {
		return "", false
	}
	start += from

	var stack []byte
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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// Extract locates marker in text and parses the object or array that
// follows it. Only whitespace may separate the marker from the value. The
// second result is false when the marker is missing or no occurrence is
// followed by valid JSON.
func Extract(text, marker string) (gjson.Result, bool) {
	offset := 0
	for offset < len(text) {
		idx := strings.Index(text[offset:], marker)
		if idx < 0 {
			return gjson.Result{}, false
		}
		offset += idx + len(marker)

		start := offset
		for start < len(text) && isSpace(text[start]) {
			start++
		}
		if start == len(text) || (text[start] != '{' && text[start] != '[') {
			continue
		}
		if span, ok := Span(text, start); ok && gjson.Valid(span) {
			return gjson.Parse(span), true
		}
	}
	return gjson.Result{}, false
}

// Candidates returns the JSON objects and arrays found in a loosely
// formatted model reply, in order of appearance. Code fences are unwrapped
// and trailing commas dropped. Values nested inside an earlier candidate
// are not reported on their own.
func Candidates(reply string) []string {
	s := unfence(reply)

	var out []string
	for i := 0; i < len(s); {
		j := strings.IndexAny(s[i:], "{[")
		if j < 0 {
			break
		}
		start := i + j

		span, ok := Span(s, start)
		if !ok {
			i = start + 1
			continue
		}
		if !gjson.Valid(span) {
			span = StripTrailingCommas(span)
		}
		if !gjson.Valid(span) {
			i = start + 1
			continue
		}
		out = append(out, span)
		i = start + len(span)
	}
	return out
}

// Clean returns the reply's JSON value: the first object candidate, else
// the first array, else the unfenced text. The result may still be invalid
// JSON.
func Clean(reply string) string {
	candidates := Candidates(reply)
	for _, c := range candidates {
		if c[0] == '{' {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return unfence(reply)
}

// StripTrailingCommas removes commas that directly precede a closing
// bracket. Commas inside string literals are kept.
func StripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unfence(reply string) string {
	s := strings.TrimSpace(reply)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return strings.TrimSpace(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
