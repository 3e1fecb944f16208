package helpers

import (
	"strings"
	"testing"
)

func TestSnippet(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Plain text unchanged",
			input:    "Quarterly numbers attached.",
			expected: "Quarterly numbers attached.",
		},
		{
			name:     "Whitespace collapsed",
			input:    "line one\n\n  line two\t\tend",
			expected: "line one line two end",
		},
		{
			name:     "HTML stripped",
			input:    "<html><body><p>Meeting at <b>10am</b></p></body></html>",
			expected: "Meeting at 10am",
		},
		{
			name:     "NULL bytes removed",
			input:    "hello\x00world",
			expected: "helloworld",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Snippet(tt.input)
			if got != tt.expected {
				t.Errorf("Snippet(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSnippetTruncation(t *testing.T) {
	long := strings.Repeat("a", SnippetLength*2)
	got := Snippet(long)
	if len([]rune(got)) != SnippetLength {
		t.Errorf("expected snippet of %d runes, got %d", SnippetLength, len([]rune(got)))
	}

	// Truncation must not split multi-byte runes.
	multibyte := strings.Repeat("é", SnippetLength+10)
	got = Snippet(multibyte)
	if len([]rune(got)) != SnippetLength {
		t.Errorf("expected %d runes for multibyte input, got %d", SnippetLength, len([]rune(got)))
	}
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("world"))

	if a != b {
		t.Errorf("hash not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Errorf("distinct content produced identical hash %s", a)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars for a 256-bit hash, got %d", len(a))
	}
}
