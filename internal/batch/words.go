package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseWords flattens a comma-delimited upload into words. Fields are
// trimmed, empty lines and empty fields are skipped, and rows may have any
// number of fields.
func ParseWords(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var words []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return words, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		for _, field := range record {
			if word := strings.TrimSpace(field); word != "" {
				words = append(words, word)
			}
		}
	}
}
