package models

import (
	"time"

	"github.com/google/uuid"
)

// RevisionType represents how a law relates to a prior version
type RevisionType string

const (
	RevisionAmendment      RevisionType = "amendment"
	RevisionInterpretation RevisionType = "interpretation"
)

// Revision is an append-only audit record linking a law to a prior version
type Revision struct {
	ID         uuid.UUID    `json:"id"`
	LawID      uuid.UUID    `json:"law_id"`
	PriorLawID *uuid.UUID   `json:"prior_law_id,omitempty"`
	Type       RevisionType `json:"type"`
	Note       string       `json:"note"`
	CreatedAt  time.Time    `json:"created_at"`
}
