package icons

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"
)

// MaxIconsPerWord caps how many candidates a search yields for one word.
const MaxIconsPerWord = 2

// Task is the unit of work handed to the worker pool. It is never mutated
// after creation.
type Task struct {
	Word         string
	OutputDir    string
	SourceConfig string
}

// NewTask trims the word and rejects empty input.
func NewTask(word, outputDir, sourceConfig string) (Task, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return Task{}, errors.New("task word is required")
	}
	return Task{
		Word:         word,
		OutputDir:    outputDir,
		SourceConfig: strings.TrimSpace(sourceConfig),
	}, nil
}

// Dir returns the workspace-relative directory owned by the task.
func (t Task) Dir() string {
	return path.Join(t.OutputDir, t.Word)
}

// Outcome is the single result reported for a task.
type Outcome struct {
	Word  string   `json:"word"`
	Icons []string `json:"icons,omitempty"`
	Err   error    `json:"-"`
}

// Succeeded reports whether the word produced at least one saved icon.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Reason returns the failure message, or "" for a success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// WordError is the reportable form of a failed outcome.
type WordError struct {
	Word   string `json:"word"`
	Reason string `json:"reason"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse carries the fetched body and metadata.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ContentType returns the response Content-Type header, if any.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}
