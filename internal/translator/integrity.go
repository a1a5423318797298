package translator

import (
	"regexp"
	"sort"
	"strings"
)

var tagToken = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9]*`)

// Tags extracts the sorted multiset of opening and closing tag tokens from
// markup. Tokens are case-sensitive and attribute-free, e.g. "<p", "</b".
func Tags(markup string) []string {
	tags := tagToken.FindAllString(markup, -1)
	sort.Strings(tags)
	return tags
}

// CheckIntegrity reports whether the translated markup preserves the
// original's tag multiset exactly.
func CheckIntegrity(original, translated string) bool {
	a, b := Tags(original), Tags(translated)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StripCodeFence removes a leading ```html (or bare ```) marker and a
// trailing ``` that some models wrap around their output.
func StripCodeFence(s string) string {
	out := strings.TrimSpace(s)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```html")
		out = strings.TrimPrefix(out, "```")
		out = strings.TrimLeft(out, "\n")
	}
	if strings.HasSuffix(strings.TrimSpace(out), "```") {
		trimmed := strings.TrimSpace(out)
		out = strings.TrimSuffix(trimmed, "```")
		out = strings.TrimRight(out, "\n")
	}
	return out
}
