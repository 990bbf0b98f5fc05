package search

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/icon-harvester/internal/icons"
)

// ExtractIconRefs returns up to limit SVG or PNG image URLs from the page, in
// document order, resolved against the page URL.
func ExtractIconRefs(page icons.FetchResponse, limit int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	base, err := url.Parse(page.URL)
	if err != nil || page.URL == "" {
		base = nil
	}

	refs := make([]string, 0, limit)
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		if src == "" {
			return true
		}
		ref := resolveRef(base, src)
		if icons.IsIconRef(ref) {
			refs = append(refs, ref)
		}
		return len(refs) < limit
	})
	return refs, nil
}

func resolveRef(base *url.URL, src string) string {
	if base == nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}
