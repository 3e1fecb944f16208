package helpers

import (
	"strings"

	"github.com/k3a/html2text"
)

// SnippetLength is the maximum rune count of a message preview snippet.
const SnippetLength = 128

// Snippet produces a short plain-text preview of a message body. HTML markup
// is stripped first, whitespace runs collapse to single spaces, and the result
// is truncated to SnippetLength runes.
func Snippet(body string) string {
	plain := body
	if looksLikeHTML(body) {
		plain = html2text.HTML2Text(body)
	}
	plain = SanitizeUTF8(plain)
	plain = strings.Join(strings.Fields(plain), " ")

	runes := []rune(plain)
	if len(runes) <= SnippetLength {
		return plain
	}
	return string(runes[:SnippetLength])
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range []string{"<html", "<body", "<div", "<p>", "<br", "<span", "<table"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
