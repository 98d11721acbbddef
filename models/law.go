package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LawCategory represents the kind of legal document
type LawCategory string

const (
	CategoryStatute                  LawCategory = "statute"
	CategoryAdministrativeRegulation LawCategory = "administrative_regulation"
	CategoryJudicialInterpretation   LawCategory = "judicial_interpretation"
	CategoryDepartmentalRule         LawCategory = "departmental_rule"
)

var categoryLabels = map[string]LawCategory{
	"statute":                   CategoryStatute,
	"法律":                        CategoryStatute,
	"administrative_regulation": CategoryAdministrativeRegulation,
	"administrative-regulation": CategoryAdministrativeRegulation,
	"行政法规":                      CategoryAdministrativeRegulation,
	"judicial_interpretation":   CategoryJudicialInterpretation,
	"judicial-interpretation":   CategoryJudicialInterpretation,
	"司法解释":                      CategoryJudicialInterpretation,
	"departmental_rule":         CategoryDepartmentalRule,
	"departmental-rule":         CategoryDepartmentalRule,
	"部门规章":                      CategoryDepartmentalRule,
}

// ParseCategory maps an English or Chinese category label to a LawCategory
func ParseCategory(s string) (LawCategory, error) {
	if c, ok := categoryLabels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

// LawStatus represents the validity status of a law
type LawStatus string

const (
	StatusActive   LawStatus = "active"
	StatusAmended  LawStatus = "amended"
	StatusRepealed LawStatus = "repealed"
)

var statusLabels = map[string]LawStatus{
	"active":   StatusActive,
	"有效":       StatusActive,
	"现行有效":     StatusActive,
	"amended":  StatusAmended,
	"已修改":      StatusAmended,
	"repealed": StatusRepealed,
	"已废止":      StatusRepealed,
	"失效":       StatusRepealed,
}

// ParseStatus maps an English or Chinese status label to a LawStatus
func ParseStatus(s string) (LawStatus, error) {
	if st, ok := statusLabels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// Law represents one statute, regulation or judicial interpretation
type Law struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	ShortTitle       string       `json:"short_title,omitempty"`
	Category         LawCategory  `json:"category"`
	IssuingAuthority string       `json:"issuing_authority,omitempty"`
	DocumentNumber   string       `json:"document_number,omitempty"`
	PublishDate      time.Time    `json:"publish_date"`
	EffectiveDate    *time.Time   `json:"effective_date,omitempty"`
	ExpiryDate       *time.Time   `json:"expiry_date,omitempty"`
	Status           LawStatus    `json:"status"`
	SourceRef        string       `json:"source_ref,omitempty"`
	Content          string       `json:"content"`
	Preamble         string       `json:"preamble,omitempty"`
	Structure        LawStructure `json:"structure"`
	ContentHash      string       `json:"content_hash"`
	ArchivePath      string       `json:"archive_path,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// HeadingLevel is one of the container levels above an article
type HeadingLevel string

const (
	LevelPart    HeadingLevel = "part"
	LevelSubPart HeadingLevel = "subpart"
	LevelChapter HeadingLevel = "chapter"
	LevelSection HeadingLevel = "section"
)

// StructureNode is a part/sub-part/chapter/section heading with its contents
type StructureNode struct {
	Level    HeadingLevel     `json:"level"`
	Number   string           `json:"number"` // e.g. "第一章"
	Title    string           `json:"title,omitempty"`
	Preamble string           `json:"preamble,omitempty"`
	Articles []string         `json:"articles,omitempty"`
	Children []*StructureNode `json:"children,omitempty"`
}

// Label returns the heading title, falling back to the numbered heading
func (n *StructureNode) Label() string {
	if n.Title != "" {
		return n.Title
	}
	return n.Number
}

// LawStructure is the table of contents of a law
type LawStructure struct {
	Articles []string         `json:"articles,omitempty"` // articles outside any heading
	Nodes    []*StructureNode `json:"nodes,omitempty"`
}

// Value implements driver.Valuer for JSONB
func (s LawStructure) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *LawStructure) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*s = LawStructure{}
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported structure type %T", value)
	}

	if len(bytes) == 0 {
		*s = LawStructure{}
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// Metadata represents a key/value row of corpus bookkeeping
type Metadata struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
