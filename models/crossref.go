package models

import (
	"time"

	"github.com/google/uuid"
)

// CrossReferenceType describes how the citing article relates to the cited one
type CrossReferenceType string

const (
	CrossRefInterpretation CrossReferenceType = "interpretation"
	CrossRefCitation       CrossReferenceType = "citation"
)

// CrossReference links an article to an article of another law whose text
// cites it, for example an interpretation clause applying a code provision.
// Links are derived from the citing law's text and replaced whenever that
// law is re-ingested.
type CrossReference struct {
	LawID        uuid.UUID          `json:"law_id"`
	ArticleIndex float64            `json:"article_index"`
	CitingLawID  uuid.UUID          `json:"citing_law_id"`
	CitingIndex  float64            `json:"citing_index"`
	Type         CrossReferenceType `json:"type"`
	CreatedAt    time.Time          `json:"created_at"`
}
