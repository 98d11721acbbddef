package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AliasType represents how an alias relates to its law
type AliasType string

const (
	AliasCommonShortName AliasType = "common_shortname"
	AliasAbbreviation    AliasType = "abbreviation"
	AliasKeyword         AliasType = "keyword"
)

// ParseAliasType validates an alias type label
func ParseAliasType(s string) (AliasType, error) {
	switch t := AliasType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")); t {
	case AliasCommonShortName, AliasAbbreviation, AliasKeyword:
		return t, nil
	case "":
		return AliasCommonShortName, nil
	}
	return "", fmt.Errorf("%w: unknown alias type %q", ErrInvalidInput, s)
}

// CuratedConfidence is reserved for exact, curated alias mappings
const CuratedConfidence = 1.0

// Alias maps an informal name or keyword to a law
type Alias struct {
	Alias      string    `json:"alias"` // normalized
	LawID      uuid.UUID `json:"law_id"`
	Type       AliasType `json:"type"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConceptSynonym maps a colloquial legal concept to its canonical term
type ConceptSynonym struct {
	ID        int64     `json:"id"`
	Term      string    `json:"term"`
	Canonical string    `json:"canonical"`
	CreatedAt time.Time `json:"created_at"`
}
