// Package detector decides when an empty search page should be re-rendered
// in a headless browser.
package detector

import (
	"bytes"

	"github.com/JakeFAU/icon-harvester/internal/icons"
)

const (
	defaultBodyLengthThreshold = 2048
	scriptDensityPercent       = 25
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A threshold of zero selects the
// default.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("__nuxt"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// Lazy loaders keep the real URL out of src until scripts run.
var lazyImageMarkers = [][]byte{
	[]byte("data-src="),
	[]byte("data-lazy"),
}

// ShouldPromote reports whether the plain fetch body looks script-rendered.
func (h *Heuristic) ShouldPromote(resp icons.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	body := bytes.ToLower(resp.Body)
	if len(body) == 0 {
		return true
	}
	if containsAny(body, spaMarkers) || containsAny(body, lazyImageMarkers) {
		return true
	}
	if bytes.Contains(body, []byte("<script")) && !bytes.Contains(body, []byte("<img")) {
		return true
	}
	return len(body) < h.BodyLengthThreshold && scriptCoverage(body)*100/len(body) >= scriptDensityPercent
}

func containsAny(body []byte, markers [][]byte) bool {
	for _, marker := range markers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptCoverage returns how many bytes of the lowercased document sit inside
// script elements, tags included. An unterminated script runs to the end.
func scriptCoverage(lower []byte) int {
	openTag := []byte("<script")
	closeTag := []byte("</script>")
	covered := 0
	rest := lower
	for {
		start := bytes.Index(rest, openTag)
		if start == -1 {
			return covered
		}
		end := bytes.Index(rest[start:], closeTag)
		if end == -1 {
			return covered + len(rest) - start
		}
		end += start + len(closeTag)
		covered += end - start
		rest = rest[end:]
	}
}
