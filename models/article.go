package models

import (
	"time"

	"github.com/google/uuid"
)

// Article represents one numbered provision within a law
type Article struct {
	ID            uuid.UUID `json:"id"`
	LawID         uuid.UUID `json:"law_id"`
	Part          string    `json:"part,omitempty"`
	SubPart       string    `json:"sub_part,omitempty"`
	Chapter       string    `json:"chapter,omitempty"`
	Section       string    `json:"section,omitempty"`
	ChapterPath   string    `json:"chapter_path,omitempty"` // full heading path joined with " > "
	Number        string    `json:"number"`                 // as written, e.g. "第三条之一"
	OrderingIndex float64   `json:"ordering_index"`
	RangeEnd      float64   `json:"range_end,omitempty"` // set for "第X条至第Y条" headings
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// LastIndex returns the highest ordering index the article covers
func (a *Article) LastIndex() float64 {
	if a.RangeEnd > a.OrderingIndex {
		return a.RangeEnd
	}
	return a.OrderingIndex
}

// Covers reports whether the ordering index falls within this article
func (a *Article) Covers(index float64) bool {
	if a.RangeEnd > 0 && float64(int(index)) == index {
		return index >= a.OrderingIndex && index <= a.RangeEnd
	}
	return a.OrderingIndex == index
}
