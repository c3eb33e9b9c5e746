package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// Paragraphs converts s to plain text and splits it into trimmed,
// non-empty paragraphs.
func Paragraphs(s string) []string {
	text := strings.ReplaceAll(ToText(s), "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
