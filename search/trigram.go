package search

import (
	"sort"
	"strings"
	"sync"

	"github.com/sublatesublate-design/legal-database/normalize"
)

// Trigrams returns the distinct 3-rune substrings of a normalized string.
// Strings shorter than three runes yield themselves as their only gram.
func Trigrams(s string) map[string]struct{} {
	runes := []rune(s)
	grams := make(map[string]struct{})
	if len(runes) == 0 {
		return grams
	}
	if len(runes) < 3 {
		grams[s] = struct{}{}
		return grams
	}
	for i := 0; i+3 <= len(runes); i++ {
		grams[string(runes[i:i+3])] = struct{}{}
	}
	return grams
}

// Similarity is the Dice coefficient of two trigram sets
func Similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for g := range a {
		if _, ok := b[g]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

type document struct {
	title      string
	body       string
	titleGrams map[string]struct{}
	bodyGrams  map[string]struct{}
}

// TermMatch describes how well one term matches one document
type TermMatch struct {
	TitleCoverage float64
	BodyCoverage  float64
	TitlePhrase   bool
	BodyPhrase    bool
}

// Score folds a term match into [0,1]
func (m TermMatch) Score() float64 {
	s := 0.45*m.TitleCoverage + 0.25*m.BodyCoverage
	if m.TitlePhrase {
		s += 0.2
	}
	if m.BodyPhrase {
		s += 0.1
	}
	return s
}

// Index is a trigram inverted index over documents with a title and a body.
// Writes replace a set of documents under one lock so readers never see a
// partial update.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]*document
	postings map[string]map[string]struct{}
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{
		docs:     make(map[string]*document),
		postings: make(map[string]map[string]struct{}),
	}
}

// Doc is an indexable document
type Doc struct {
	ID    string
	Title string
	Body  string
}

// Replace removes the documents in remove and adds docs in one step
func (ix *Index) Replace(remove []string, docs []Doc) {
	prepared := make([]*document, len(docs))
	for i, d := range docs {
		title, body := normalize.Name(d.Title), normalize.Name(d.Body)
		prepared[i] = &document{
			title:      title,
			body:       body,
			titleGrams: Trigrams(title),
			bodyGrams:  Trigrams(body),
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, id := range remove {
		ix.removeLocked(id)
	}
	for i, d := range docs {
		ix.removeLocked(d.ID)
		doc := prepared[i]
		ix.docs[d.ID] = doc
		for g := range doc.titleGrams {
			ix.post(g, d.ID)
		}
		for g := range doc.bodyGrams {
			ix.post(g, d.ID)
		}
	}
}

func (ix *Index) post(gram, id string) {
	ids, ok := ix.postings[gram]
	if !ok {
		ids = make(map[string]struct{})
		ix.postings[gram] = ids
	}
	ids[id] = struct{}{}
}

func (ix *Index) removeLocked(id string) {
	doc, ok := ix.docs[id]
	if !ok {
		return
	}
	delete(ix.docs, id)
	for _, grams := range []map[string]struct{}{doc.titleGrams, doc.bodyGrams} {
		for g := range grams {
			if ids, ok := ix.postings[g]; ok {
				delete(ids, id)
				if len(ids) == 0 {
					delete(ix.postings, g)
				}
			}
		}
	}
}

// Len returns the number of indexed documents
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Match scores a normalized term against every document it touches. Terms
// shorter than three runes are matched by substring scan.
func (ix *Index) Match(term string) map[string]TermMatch {
	out := make(map[string]TermMatch)
	if term == "" {
		return out
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len([]rune(term)) < 3 {
		for id, doc := range ix.docs {
			m := TermMatch{
				TitlePhrase: strings.Contains(doc.title, term),
				BodyPhrase:  strings.Contains(doc.body, term),
			}
			if m.TitlePhrase {
				m.TitleCoverage = 1
			}
			if m.BodyPhrase {
				m.BodyCoverage = 1
			}
			if m.TitlePhrase || m.BodyPhrase {
				out[id] = m
			}
		}
		return out
	}

	grams := Trigrams(term)
	candidates := make(map[string]struct{})
	for g := range grams {
		for id := range ix.postings[g] {
			candidates[id] = struct{}{}
		}
	}

	total := float64(len(grams))
	for id := range candidates {
		doc := ix.docs[id]
		var inTitle, inBody int
		for g := range grams {
			if _, ok := doc.titleGrams[g]; ok {
				inTitle++
			}
			if _, ok := doc.bodyGrams[g]; ok {
				inBody++
			}
		}
		out[id] = TermMatch{
			TitleCoverage: float64(inTitle) / total,
			BodyCoverage:  float64(inBody) / total,
			TitlePhrase:   inTitle == len(grams) && strings.Contains(doc.title, term),
			BodyPhrase:    inBody == len(grams) && strings.Contains(doc.body, term),
		}
	}
	return out
}

// TitleSimilarity returns the trigram similarity of a normalized name to
// every document title sharing at least one gram, best first.
func (ix *Index) TitleSimilarity(name string) []Scored {
	grams := Trigrams(name)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []Scored
	for g := range grams {
		for id := range ix.postings[g] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if sim := Similarity(grams, ix.docs[id].titleGrams); sim > 0 {
				out = append(out, Scored{ID: id, Score: sim})
			}
		}
	}
	sortScored(out)
	return out
}

// Scored pairs a document id with a score
type Scored struct {
	ID    string
	Score float64
}

func sortScored(s []Scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].ID < s[j].ID
	})
}
