// Package postprocess turns dictated punctuation words into punctuation.
//
// Rules are exact substring substitutions applied in a fixed order; each rule
// scans the whole string as left by the previous one. The longer "punto y coma"
// phrase runs before "punto" and "coma" so neither can match inside it.
package postprocess

import "strings"

type rule struct {
	from string
	to   string
}

var rules = []rule{
	{from: " punto y coma ", to: "; "},
	{from: " punto ", to: ". "},
	{from: " coma ", to: ", "},
	{from: " abre paréntesis ", to: " ("},
	{from: " cierra paréntesis ", to: ") "},
}

// separator is appended after every transcript fragment, so a phrase at the
// very end of the text is matched as if it were followed by it.
const separator = " "

// Apply returns text with all rules applied.
func Apply(text string) string {
	s := text + separator
	pending := true
	for _, r := range rules {
		var consumed bool
		s, consumed = replaceAll(s, r.from, r.to)
		if consumed {
			pending = false
		}
	}
	if pending {
		s = s[:len(s)-len(separator)]
	}
	return s
}

// replaceAll behaves like strings.ReplaceAll and also reports whether a match
// ended at the last byte of s.
func replaceAll(s, from, to string) (string, bool) {
	if !strings.Contains(s, from) {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s))
	consumed := false
	rest := s
	offset := 0
	for {
		i := strings.Index(rest, from)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		b.WriteString(to)
		end := i + len(from)
		if offset+end == len(s) {
			consumed = true
		}
		rest = rest[end:]
		offset += end
	}
	return b.String(), consumed
}
