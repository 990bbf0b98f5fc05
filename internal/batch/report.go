package batch

import (
	"github.com/JakeFAU/icon-harvester/internal/icons"
)

// Report summarizes a processed batch.
type Report struct {
	BatchID   string
	Processed int
	// Outcomes are in completion order.
	Outcomes []icons.Outcome
	// Errors lists every failed word in completion order.
	Errors []icons.WordError
}

func (r *Report) add(outcome icons.Outcome) {
	r.Processed++
	r.Outcomes = append(r.Outcomes, outcome)
	if !outcome.Succeeded() {
		r.Errors = append(r.Errors, icons.WordError{Word: outcome.Word, Reason: outcome.Reason()})
	}
}

// Failed reports how many words failed.
func (r Report) Failed() int {
	return len(r.Errors)
}

// Succeeded lists the words that produced icons.
func (r Report) Succeeded() []string {
	words := make([]string, 0, len(r.Outcomes)-len(r.Errors))
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			words = append(words, o.Word)
		}
	}
	return words
}

// Summary is the serializable form used for notifications and CLI output.
type Summary struct {
	BatchID   string            `json:"batch_id"`
	Processed int               `json:"processed"`
	Succeeded []string          `json:"succeeded"`
	Errors    []icons.WordError `json:"errors"`
}

// Summary converts the report.
func (r Report) Summary() Summary {
	errs := r.Errors
	if errs == nil {
		errs = []icons.WordError{}
	}
	return Summary{
		BatchID:   r.BatchID,
		Processed: r.Processed,
		Succeeded: r.Succeeded(),
		Errors:    errs,
	}
}

// Attributes tags the Pub/Sub message for subscribers that filter.
func (s Summary) Attributes() map[string]string {
	return map[string]string{
		"event":    "batch.completed",
		"batch_id": s.BatchID,
	}
}
