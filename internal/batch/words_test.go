package batch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single column", input: "cat\ndog\n", want: []string{"cat", "dog"}},
		{name: "flattens rows", input: "cat, dog\nbird,,fish\n", want: []string{"cat", "dog", "bird", "fish"}},
		{name: "skips blank lines", input: "\n\ncat\n   \n\ndog", want: []string{"cat", "dog"}},
		{name: "windows line endings", input: "cat\r\ndog\r\n", want: []string{"cat", "dog"}},
		{name: "quoted field", input: `"ice cream",cat` + "\n", want: []string{"ice cream", "cat"}},
		{name: "empty", input: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseWords(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWordsReportsReadErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseWords(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read csv")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, assert.AnError
}
