package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/icon-harvester/internal/icons"
)

func TestNewHeuristicDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, defaultBodyLengthThreshold, NewHeuristic(0).BodyLengthThreshold)
	assert.Equal(t, 100, NewHeuristic(100).BodyLengthThreshold)
}

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	padding := strings.Repeat("<p>static text</p>", 200)
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{name: "empty body", status: 200, body: "", want: true},
		{name: "next marker", status: 200, body: `<div id="__next"></div><img src="/x.svg">`, want: true},
		{name: "lazy images", status: 200, body: `<img data-src="/cat.svg" src="data:,">`, want: true},
		{name: "scripts without images", status: 200, body: `<html><script src="/app.js"></script>` + padding + `</html>`, want: true},
		{name: "dense scripts", status: 200, body: `<html><script>var a=1;</script><img alt="x"></html>`, want: true},
		{name: "static page", status: 200, body: `<html><img src="/cat.png">` + padding + `</html>`, want: false},
		{name: "error status", status: 404, body: "", want: false},
		{name: "server error", status: 503, body: `<div id="app"></div>`, want: false},
	}

	h := NewHeuristic(1000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := h.ShouldPromote(icons.FetchResponse{StatusCode: tt.status, Body: []byte(tt.body)})
			require.Equal(t, tt.want, got)
		})
	}
}

func TestScriptCoverage(t *testing.T) {
	t.Parallel()

	assert.Zero(t, scriptCoverage([]byte("<p>none</p>")))
	assert.Equal(t, len("<script>x</script>"), scriptCoverage([]byte("<p><script>x</script></p>")))
	assert.Equal(t, len("<script>never closed"), scriptCoverage([]byte("ab<script>never closed")))
	assert.Equal(t, 2*len("<script></script>"), scriptCoverage([]byte("<script></script>-<script></script>")))
}
