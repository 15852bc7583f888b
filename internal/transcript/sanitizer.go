package transcript

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// sanitizer prepares untrusted message content for embedding in the rendered
// HTML document. Content is escaped first, then run through a strict policy
// so residual markup never survives, then length-capped.
type sanitizer struct {
	policy   *bluemonday.Policy
	maxChars int
}

func newSanitizer(maxChars int) *sanitizer {
	if maxChars <= 0 {
		maxChars = 4000
	}
	return &sanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxChars: maxChars,
	}
}

// Clean returns a safe representation of text for HTML embedding.
func (s *sanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	cleaned := html.EscapeString(text)
	cleaned = s.policy.Sanitize(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > s.maxChars {
		cleaned = truncate(cleaned, s.maxChars) + "..."
	}
	return cleaned
}

// truncate cuts text to at most max bytes without splitting a rune or an
// escape entity like &amp;.
func truncate(text string, max int) string {
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	head := text[:cut]
	if amp := strings.LastIndexByte(head, '&'); amp >= 0 && !strings.ContainsRune(head[amp:], ';') {
		head = head[:amp]
	}
	return head
}
