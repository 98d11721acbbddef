// Package search maintains trigram indexes over laws and articles and ranks
// query matches by text relevance, recency and validity status.
package search

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"
)

// Weights are the tunable ranking coefficients
type Weights struct {
	Text           float64
	Recency        float64
	HalfLifeYears  float64
	StatusActive   float64
	StatusAmended  float64
	StatusRepealed float64
}

// DefaultWeights returns the coefficients used when none are configured
func DefaultWeights() Weights {
	return Weights{
		Text:           0.8,
		Recency:        0.2,
		HalfLifeYears:  10,
		StatusActive:   1.0,
		StatusAmended:  0.7,
		StatusRepealed: 0.4,
	}
}

// StatusFactor is the multiplicative weight of a validity status
func (w Weights) StatusFactor(s models.LawStatus) float64 {
	switch s {
	case models.StatusActive:
		return w.StatusActive
	case models.StatusAmended:
		return w.StatusAmended
	case models.StatusRepealed:
		return w.StatusRepealed
	}
	return w.StatusRepealed
}

// RecencyScore decays exponentially with the age of the effective date.
// Dates in the future score 1.
func (w Weights) RecencyScore(effective, now time.Time) float64 {
	if effective.IsZero() || w.HalfLifeYears <= 0 {
		return 0
	}
	age := now.Sub(effective).Hours() / (24 * 365.25)
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age / w.HalfLifeYears)
}

// Query is a ranked search request
type Query struct {
	// Groups holds one slice per query term: the term followed by its
	// synonym expansions. A group scores as its best variant.
	Groups   [][]string
	Category models.LawCategory
	Status   models.LawStatus
	LawID    uuid.UUID
	// Boosts lifts laws the caller already identified with confidence
	Boosts map[uuid.UUID]float64
	Offset int
	Limit  int
}

// GroupsFromText builds term groups without expansion
func GroupsFromText(text string) [][]string {
	var groups [][]string
	for _, t := range normalize.Terms(text) {
		groups = append(groups, []string{t})
	}
	return groups
}

// LawHit is one ranked law
type LawHit struct {
	LawID      uuid.UUID          `json:"law_id"`
	Title      string             `json:"title"`
	ShortTitle string             `json:"short_title,omitempty"`
	Category   models.LawCategory `json:"category"`
	Status     models.LawStatus   `json:"status"`
	Score      float64            `json:"score"`
	Snippet    string             `json:"snippet"`
}

// LawPage is one page of ranked laws
type LawPage struct {
	Total int      `json:"total"`
	Hits  []LawHit `json:"hits"`
}

// ArticleHit is one ranked article
type ArticleHit struct {
	ArticleID     uuid.UUID        `json:"article_id"`
	LawID         uuid.UUID        `json:"law_id"`
	LawTitle      string           `json:"law_title"`
	Number        string           `json:"number"`
	Chapter       string           `json:"chapter,omitempty"`
	OrderingIndex float64          `json:"ordering_index"`
	Status        models.LawStatus `json:"status"`
	Score         float64          `json:"score"`
	Snippet       string           `json:"snippet"`
}

// ArticlePage is one page of ranked articles
type ArticlePage struct {
	Total int          `json:"total"`
	Hits  []ArticleHit `json:"hits"`
}

// TitleMatch is a law whose title resembles a name
type TitleMatch struct {
	LawID      uuid.UUID
	Similarity float64
}

type lawMeta struct {
	law         models.Law
	shortGrams  map[string]struct{}
	articleKeys []string
}

type articleMeta struct {
	article models.Article
	lawID   uuid.UUID
}

// Engine answers ranked queries over the indexed corpus
type Engine struct {
	mu       sync.RWMutex
	laws     *Index
	articles *Index
	meta     map[uuid.UUID]*lawMeta
	arts     map[string]*articleMeta

	weights  Weights
	minScore float64
	now      func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithWeights sets the ranking coefficients
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithMinScore sets the text score below which unboosted matches are dropped
func WithMinScore(s float64) Option {
	return func(e *Engine) {
		e.minScore = s
	}
}

// WithClock sets the time source used for recency
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an empty engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		laws:     NewIndex(),
		articles: NewIndex(),
		meta:     make(map[uuid.UUID]*lawMeta),
		arts:     make(map[string]*articleMeta),
		weights:  DefaultWeights(),
		minScore: 0.15,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IndexLaw replaces everything indexed for the law in one step
func (e *Engine) IndexLaw(law *models.Law, articles []models.Article) {
	meta := &lawMeta{
		law:        *law,
		shortGrams: Trigrams(normalize.Name(law.ShortTitle)),
	}
	meta.law.Structure = models.LawStructure{}

	docs := make([]Doc, 0, len(articles))
	arts := make(map[string]*articleMeta, len(articles))
	for _, a := range articles {
		key := a.ID.String()
		docs = append(docs, Doc{ID: key, Title: law.Title, Body: a.Content})
		arts[key] = &articleMeta{article: a, lawID: law.ID}
		meta.articleKeys = append(meta.articleKeys, key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var stale []string
	if old, ok := e.meta[law.ID]; ok {
		stale = old.articleKeys
		for _, k := range old.articleKeys {
			delete(e.arts, k)
		}
	}

	e.laws.Replace(nil, []Doc{{ID: law.ID.String(), Title: law.Title, Body: law.Content}})
	e.articles.Replace(stale, docs)
	e.meta[law.ID] = meta
	for k, v := range arts {
		e.arts[k] = v
	}
}

// RemoveLaw drops a law and its articles from the index
func (e *Engine) RemoveLaw(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.meta[id]
	if !ok {
		return
	}
	for _, k := range old.articleKeys {
		delete(e.arts, k)
	}
	e.laws.Replace([]string{id.String()}, nil)
	e.articles.Replace(old.articleKeys, nil)
	delete(e.meta, id)
}

// Stats returns the number of indexed laws and articles
func (e *Engine) Stats() (laws, articles int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.meta), len(e.arts)
}

func (e *Engine) today() time.Time {
	return e.now().UTC().Truncate(24 * time.Hour)
}

func (e *Engine) rank(law *models.Law, text float64, now time.Time) float64 {
	effective := law.PublishDate
	if law.EffectiveDate != nil {
		effective = *law.EffectiveDate
	}
	score := e.weights.Text*text + e.weights.Recency*e.weights.RecencyScore(effective, now)
	return score * e.weights.StatusFactor(law.Status)
}

// textScores averages the best variant score of every group
func textScores(ix *Index, groups [][]string) map[string]float64 {
	scores := make(map[string]float64)
	if len(groups) == 0 {
		return scores
	}
	for _, group := range groups {
		best := make(map[string]float64)
		for _, term := range group {
			for id, m := range ix.Match(normalize.Name(term)) {
				if s := m.Score(); s > best[id] {
					best[id] = s
				}
			}
		}
		for id, s := range best {
			scores[id] += s
		}
	}
	for id := range scores {
		scores[id] /= float64(len(groups))
	}
	return scores
}

func (e *Engine) filtered(law *models.Law, q Query) bool {
	if q.Category != "" && law.Category != q.Category {
		return true
	}
	if q.Status != "" && law.Status != q.Status {
		return true
	}
	return q.LawID != uuid.Nil && law.ID != q.LawID
}

// SearchLaws ranks laws by (score desc, law id asc)
func (e *Engine) SearchLaws(q Query) *LawPage {
	now := e.today()

	e.mu.RLock()
	defer e.mu.RUnlock()

	text := textScores(e.laws, q.Groups)
	for id := range q.Boosts {
		if _, ok := e.meta[id]; ok {
			text[id.String()] = 1
		}
	}

	var hits []LawHit
	for key, ts := range text {
		id, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		meta, ok := e.meta[id]
		if !ok || e.filtered(&meta.law, q) {
			continue
		}
		boost := q.Boosts[id]
		if boost == 0 && ts < e.minScore {
			continue
		}
		hits = append(hits, LawHit{
			LawID:      id,
			Title:      meta.law.Title,
			ShortTitle: meta.law.ShortTitle,
			Category:   meta.law.Category,
			Status:     meta.law.Status,
			Score:      round(e.rank(&meta.law, ts, now) + boost),
			Snippet:    Snippet(meta.law.Content, q.Groups),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].LawID.String() < hits[j].LawID.String()
	})

	page := &LawPage{Total: len(hits)}
	lo, hi := bounds(len(hits), q.Offset, q.Limit)
	page.Hits = append([]LawHit{}, hits[lo:hi]...)
	return page
}

// SearchArticles ranks articles by (score desc, law id asc, ordering index asc)
func (e *Engine) SearchArticles(q Query) *ArticlePage {
	now := e.today()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var hits []ArticleHit
	for key, ts := range textScores(e.articles, q.Groups) {
		am, ok := e.arts[key]
		if !ok {
			continue
		}
		meta, ok := e.meta[am.lawID]
		if !ok || e.filtered(&meta.law, q) || ts < e.minScore {
			continue
		}
		hits = append(hits, ArticleHit{
			ArticleID:     am.article.ID,
			LawID:         am.lawID,
			LawTitle:      meta.law.Title,
			Number:        am.article.Number,
			Chapter:       am.article.Chapter,
			OrderingIndex: am.article.OrderingIndex,
			Status:        meta.law.Status,
			Score:         round(e.rank(&meta.law, ts, now) + q.Boosts[am.lawID]),
			Snippet:       Snippet(am.article.Content, q.Groups),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LawID != b.LawID {
			return a.LawID.String() < b.LawID.String()
		}
		return a.OrderingIndex < b.OrderingIndex
	})

	page := &ArticlePage{Total: len(hits)}
	lo, hi := bounds(len(hits), q.Offset, q.Limit)
	page.Hits = append([]ArticleHit{}, hits[lo:hi]...)
	return page
}

// SimilarTitles returns laws whose title or short title resembles name
func (e *Engine) SimilarTitles(name string) []TitleMatch {
	key := normalize.Name(name)
	if key == "" {
		return nil
	}
	grams := Trigrams(key)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var scored []Scored
	for _, s := range e.laws.TitleSimilarity(key) {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			continue
		}
		if meta, ok := e.meta[id]; ok {
			if short := Similarity(grams, meta.shortGrams); short > s.Score {
				s.Score = short
			}
		}
		scored = append(scored, s)
	}
	sortScored(scored)

	out := make([]TitleMatch, 0, len(scored))
	for _, s := range scored {
		out = append(out, TitleMatch{LawID: uuid.MustParse(s.ID), Similarity: s.Score})
	}
	return out
}

func bounds(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

func round(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

const snippetRadius = 40

// Snippet cuts a window around the first query term found in content and
// marks it with 【】. Without a hit it returns the opening of the content.
func Snippet(content string, groups [][]string) string {
	runes := []rune(strings.Join(strings.Fields(content), " "))
	flat := string(runes)

	for _, group := range groups {
		for _, term := range group {
			if term == "" {
				continue
			}
			at := strings.Index(flat, term)
			if at < 0 {
				continue
			}
			start := len([]rune(flat[:at]))
			end := start + len([]rune(term))
			from := max(0, start-snippetRadius)
			to := min(len(runes), end+snippetRadius)

			var b strings.Builder
			if from > 0 {
				b.WriteString("…")
			}
			b.WriteString(string(runes[from:start]))
			b.WriteString("【" + string(runes[start:end]) + "】")
			b.WriteString(string(runes[end:to]))
			if to < len(runes) {
				b.WriteString("…")
			}
			return b.String()
		}
	}

	if len(runes) > 2*snippetRadius {
		return string(runes[:2*snippetRadius]) + "…"
	}
	return flat
}
