package icons

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoIcons marks a search that returned zero candidates.
	ErrNoIcons = errors.New("no icons found")
	// ErrDuplicateWord marks a repeated word within one batch.
	ErrDuplicateWord = errors.New("duplicate word in batch")
	// ErrInvalidWord marks a word that cannot be used as a directory name.
	ErrInvalidWord = errors.New("word is not a valid directory name")
	// ErrPanicked marks a collaborator that panicked while serving a word.
	ErrPanicked = errors.New("panicked")
)

// DirectoryError reports a failure creating or removing a word directory.
type DirectoryError struct {
	Word string
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory %s for %s: %v", e.Path, e.Word, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// SearchError reports that the search step produced no usable candidates.
type SearchError struct {
	Word string
	Err  error
}

func (e *SearchError) Error() string {
	if errors.Is(e.Err, ErrNoIcons) {
		return "no icons found for " + e.Word
	}
	return fmt.Sprintf("failed to search icons for %s: %v", e.Word, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// FetchError reports a failed download or write of one candidate.
type FetchError struct {
	Word string
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("download %s for %s: %v", e.URL, e.Word, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DuplicateWordError builds the failure reported for a repeated word.
func DuplicateWordError(word string) error {
	return fmt.Errorf("%w: %q", ErrDuplicateWord, word)
}

// ValidateWordDir rejects words that would escape or nest inside the batch
// directory.
func ValidateWordDir(word string) error {
	switch {
	case word == "", word == ".", word == "..":
		return fmt.Errorf("%w: %q", ErrInvalidWord, word)
	case strings.ContainsAny(word, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidWord, word)
	}
	return nil
}
