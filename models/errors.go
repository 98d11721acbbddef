package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a law or article is absent
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousMatch is returned when several laws tie above the confidence threshold
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrValidationConflict is returned for lower-confidence alias writes and duplicate laws
	ErrValidationConflict = errors.New("validation conflict")
	// ErrResourceExhausted is returned when no store handle frees up in time
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrTimeout is returned when an operation is cancelled after its deadline
	ErrTimeout = errors.New("timeout")
	// ErrInvalidInput is returned for malformed arguments
	ErrInvalidInput = errors.New("invalid input")
)

// Candidate is one law a free-form name may refer to
type Candidate struct {
	LawID      uuid.UUID `json:"law_id"`
	Title      string    `json:"title"`
	Status     LawStatus `json:"status"`
	Confidence float64   `json:"confidence"`
	MatchedBy  string    `json:"matched_by"`
}

// AmbiguousError carries the tied candidates of an ambiguous resolution
type AmbiguousError struct {
	Query      string
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	titles := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		titles = append(titles, c.Title)
	}
	return fmt.Sprintf("ambiguous match for %q: %s", e.Query, strings.Join(titles, ", "))
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguousMatch
}

// ParseWarning records a segment the parser skipped
type ParseWarning struct {
	Line    int    `json:"line"`
	Segment string `json:"segment"`
	Reason  string `json:"reason"`
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("line %d: %s (%s)", w.Line, w.Reason, w.Segment)
}
