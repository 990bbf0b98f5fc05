package search

import (
	"net/url"
	"strings"
)

// DefaultTemplate is used when neither the request nor config names a source.
const DefaultTemplate = "https://thenounproject.com/search/icons/?q="

// WordPlaceholder marks where the encoded word goes inside a template.
const WordPlaceholder = "{word}"

// QueryURL builds the search page URL for word. Without a placeholder the
// encoded word is appended to the template.
func QueryURL(template, word string) string {
	encoded := EncodeComponent(word)
	if strings.Contains(template, WordPlaceholder) {
		return strings.ReplaceAll(template, WordPlaceholder, encoded)
	}
	return template + encoded
}

// EncodeComponent percent-encodes s for use inside a URL, with spaces as %20.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
