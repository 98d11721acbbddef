// Package resolver maps informal law names, abbreviations and concept
// keywords to canonical laws.
package resolver

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"
	"github.com/sublatesublate-design/legal-database/search"
)

// Store is the persistence the resolver loads from and writes through
type Store interface {
	ListLaws(ctx context.Context) ([]models.Law, error)
	ListAliases(ctx context.Context) ([]models.Alias, error)
	ListSynonyms(ctx context.Context) ([]models.ConceptSynonym, error)
	UpsertAlias(ctx context.Context, alias *models.Alias) error
	AddSynonym(ctx context.Context, syn *models.ConceptSynonym) error
}

// TitleSearcher finds laws by trigram title similarity
type TitleSearcher interface {
	SimilarTitles(name string) []search.TitleMatch
}

// Config holds resolution thresholds
type Config struct {
	MinConfidence    float64 // below this nothing is reported
	SubstringPenalty float64 // subtracted for a substring title match
	FuzzyScale       float64 // trigram similarity is scaled by this
	MaxLearned       float64 // confidence cap for non-curated aliases
	Learn            bool    // record confident fuzzy matches as keyword aliases
}

// DefaultConfig returns the default thresholds
func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.6,
		SubstringPenalty: 0.05,
		FuzzyScale:       0.9,
		MaxLearned:       0.95,
	}
}

// Validate checks the thresholds are usable
func (c Config) Validate() error {
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence %v out of (0,1]", c.MinConfidence)
	}
	if c.SubstringPenalty < 0 || c.SubstringPenalty >= 1 {
		return fmt.Errorf("substring penalty %v out of [0,1)", c.SubstringPenalty)
	}
	if c.FuzzyScale <= 0 || c.FuzzyScale > 1 {
		return fmt.Errorf("fuzzy scale %v out of (0,1]", c.FuzzyScale)
	}
	if c.MaxLearned <= 0 || c.MaxLearned >= 1 {
		return fmt.Errorf("learned confidence cap %v out of (0,1)", c.MaxLearned)
	}
	return nil
}

// Match kinds reported in Candidate.MatchedBy
const (
	MatchAlias     = "alias"
	MatchTitle     = "title"
	MatchSubstring = "title_substring"
	MatchSynonym   = "synonym"
	MatchFuzzy     = "trigram"
)

type lawEntry struct {
	id        uuid.UUID
	title     string
	status    models.LawStatus
	effective *time.Time
	titleKey  string
	shortKey  string
}

// Resolution is the outcome of resolving one name
type Resolution struct {
	Query      string             `json:"query"`
	Best       models.Candidate   `json:"best"`
	Candidates []models.Candidate `json:"candidates"`
}

// Resolver holds the process-scoped alias, title and synonym tables. It is
// built from the store at startup and changed only through its methods.
type Resolver struct {
	mu       sync.RWMutex
	aliasMu  sync.Mutex // held across check, store write and table update
	laws     map[uuid.UUID]*lawEntry
	aliases  map[string]models.Alias
	synonyms map[string][]string // term → canonical terms
	reverse  map[string][]string // canonical → terms

	store  Store
	titles TitleSearcher
	cfg    Config
}

// New creates an empty resolver
func New(store Store, titles TitleSearcher, cfg Config) *Resolver {
	return &Resolver{
		laws:     make(map[uuid.UUID]*lawEntry),
		aliases:  make(map[string]models.Alias),
		synonyms: make(map[string][]string),
		reverse:  make(map[string][]string),
		store:    store,
		titles:   titles,
		cfg:      cfg,
	}
}

// Load replaces the in-memory tables with the store's contents
func (r *Resolver) Load(ctx context.Context) error {
	laws, err := r.store.ListLaws(ctx)
	if err != nil {
		return fmt.Errorf("failed to load laws: %w", err)
	}
	aliases, err := r.store.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}
	syns, err := r.store.ListSynonyms(ctx)
	if err != nil {
		return fmt.Errorf("failed to load synonyms: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.laws = make(map[uuid.UUID]*lawEntry, len(laws))
	for i := range laws {
		r.putLawLocked(&laws[i])
	}
	r.aliases = make(map[string]models.Alias, len(aliases))
	for _, a := range aliases {
		r.aliases[normalize.Name(a.Alias)] = a
	}
	r.synonyms = make(map[string][]string)
	r.reverse = make(map[string][]string)
	for _, s := range syns {
		r.putSynonymLocked(s)
	}
	return nil
}

// PutLaw registers or refreshes a law's title and status
func (r *Resolver) PutLaw(law *models.Law) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLawLocked(law)
}

func (r *Resolver) putLawLocked(law *models.Law) {
	r.laws[law.ID] = &lawEntry{
		id:        law.ID,
		title:     law.Title,
		status:    law.Status,
		effective: law.EffectiveDate,
		titleKey:  normalize.Name(law.Title),
		shortKey:  normalize.Name(law.ShortTitle),
	}
}

// RemoveLaw forgets a law and every alias pointing at it
func (r *Resolver) RemoveLaw(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.laws, id)
	for k, a := range r.aliases {
		if a.LawID == id {
			delete(r.aliases, k)
		}
	}
}

// AddAlias stores an alias. Non-curated aliases are capped below 1.0, and a
// write with lower confidence than the existing mapping is rejected with
// ErrValidationConflict, leaving the existing mapping in place.
func (r *Resolver) AddAlias(ctx context.Context, alias models.Alias, curated bool) (*models.Alias, error) {
	alias.Alias = normalize.Name(alias.Alias)
	if alias.Alias == "" {
		return nil, fmt.Errorf("%w: empty alias", models.ErrInvalidInput)
	}
	if alias.Confidence < 0 || alias.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of [0,1]", models.ErrInvalidInput, alias.Confidence)
	}
	if !curated && alias.Confidence > r.cfg.MaxLearned {
		alias.Confidence = r.cfg.MaxLearned
	}
	if alias.Type == "" {
		alias.Type = models.AliasCommonShortName
	}

	r.aliasMu.Lock()
	defer r.aliasMu.Unlock()

	r.mu.RLock()
	_, known := r.laws[alias.LawID]
	existing, exists := r.aliases[alias.Alias]
	r.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("alias target %s: %w", alias.LawID, models.ErrNotFound)
	}
	if exists && alias.Confidence < existing.Confidence {
		return nil, fmt.Errorf("alias %q already maps with confidence %.2f: %w",
			alias.Alias, existing.Confidence, models.ErrValidationConflict)
	}

	if err := r.store.UpsertAlias(ctx, &alias); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.aliases[alias.Alias] = alias
	r.mu.Unlock()
	return &alias, nil
}

// AddSynonym stores a concept synonym
func (r *Resolver) AddSynonym(ctx context.Context, term, canonical string) (*models.ConceptSynonym, error) {
	syn := &models.ConceptSynonym{
		Term:      strings.TrimSpace(term),
		Canonical: strings.TrimSpace(canonical),
	}
	if normalize.Name(syn.Term) == "" || normalize.Name(syn.Canonical) == "" {
		return nil, fmt.Errorf("%w: synonym term and canonical are required", models.ErrInvalidInput)
	}
	if err := r.store.AddSynonym(ctx, syn); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.putSynonymLocked(*syn)
	r.mu.Unlock()
	return syn, nil
}

func (r *Resolver) putSynonymLocked(s models.ConceptSynonym) {
	term, canon := normalize.Name(s.Term), normalize.Name(s.Canonical)
	r.synonyms[term] = appendUnique(r.synonyms[term], canon)
	r.reverse[canon] = appendUnique(r.reverse[canon], term)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Resolve maps a name to one law. It returns ErrNotFound when nothing
// reaches the confidence threshold and an *AmbiguousError when several laws
// tie after the status and effective-date tie-breaks.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Resolution, error) {
	res, err := r.ResolveAll(ctx, name)
	if err != nil {
		return nil, err
	}

	top := res.Candidates[0].Confidence
	var tied []models.Candidate
	for _, c := range res.Candidates {
		if c.Confidence < top {
			break
		}
		tied = append(tied, c)
	}
	if len(tied) > 1 && r.sameRank(tied[0], tied[1]) {
		n := 2
		for n < len(tied) && r.sameRank(tied[0], tied[n]) {
			n++
		}
		return nil, &models.AmbiguousError{Query: name, Candidates: tied[:n]}
	}

	res.Best = res.Candidates[0]
	return res, nil
}

// ResolveAll returns every candidate above the threshold, best first
func (r *Resolver) ResolveAll(ctx context.Context, name string) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}

	key := normalize.Name(name)
	if key == "" {
		return nil, fmt.Errorf("%w: empty law name", models.ErrInvalidInput)
	}

	r.mu.RLock()
	cands := r.direct(key)
	if len(cands) == 0 {
		cands = r.viaSynonyms(key)
	}
	r.mu.RUnlock()

	if len(cands) == 0 && r.titles != nil {
		cands = r.fuzzy(key)
		if r.cfg.Learn && len(cands) > 0 {
			r.learn(ctx, key, cands)
		}
	}

	cands = r.aboveThreshold(cands)
	if len(cands) == 0 {
		return nil, fmt.Errorf("no confident match for %q: %w", name, models.ErrNotFound)
	}
	r.sortCandidates(cands)
	return &Resolution{Query: name, Candidates: cands}, nil
}

// direct runs the alias step, then the title step
func (r *Resolver) direct(key string) []models.Candidate {
	if a, ok := r.aliases[key]; ok {
		if law, ok := r.laws[a.LawID]; ok && a.Confidence >= r.cfg.MinConfidence {
			return []models.Candidate{r.candidate(law, a.Confidence, MatchAlias)}
		}
	}

	var out []models.Candidate
	for _, law := range r.laws {
		conf, how := r.titleConfidence(key, law)
		if conf > 0 {
			out = append(out, r.candidate(law, conf, how))
		}
	}
	return out
}

func (r *Resolver) titleConfidence(key string, law *lawEntry) (float64, string) {
	if key == law.titleKey || (law.shortKey != "" && key == law.shortKey) {
		return 1.0, MatchTitle
	}
	if utf8.RuneCountInString(key) < 2 {
		return 0, ""
	}

	best := 0.0
	for _, target := range []string{law.titleKey, law.shortKey} {
		if target == "" {
			continue
		}
		var coverage float64
		switch {
		case strings.Contains(target, key):
			coverage = runeRatio(key, target)
		case strings.Contains(key, target):
			coverage = runeRatio(target, key)
		default:
			continue
		}
		conf := 1.0 - r.cfg.SubstringPenalty - (1-coverage)*0.15
		best = math.Max(best, conf)
	}
	if best == 0 {
		return 0, ""
	}
	return best, MatchSubstring
}

func runeRatio(part, whole string) float64 {
	return float64(utf8.RuneCountInString(part)) / float64(utf8.RuneCountInString(whole))
}

func (r *Resolver) viaSynonyms(key string) []models.Candidate {
	var expanded []string
	expanded = append(expanded, r.synonyms[key]...)
	for term, canons := range r.synonyms {
		if term == key || utf8.RuneCountInString(term) < 2 || !strings.Contains(key, term) {
			continue
		}
		for _, c := range canons {
			expanded = append(expanded, strings.ReplaceAll(key, term, c))
		}
	}
	sort.Strings(expanded)

	best := make(map[uuid.UUID]models.Candidate)
	for _, alt := range expanded {
		for _, c := range r.direct(alt) {
			c.MatchedBy = MatchSynonym
			if prev, ok := best[c.LawID]; !ok || c.Confidence > prev.Confidence {
				best[c.LawID] = c
			}
		}
	}

	out := make([]models.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

func (r *Resolver) fuzzy(key string) []models.Candidate {
	matches := r.titles.SimilarTitles(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Candidate
	for _, m := range matches {
		if law, ok := r.laws[m.LawID]; ok {
			out = append(out, r.candidate(law, m.Similarity*r.cfg.FuzzyScale, MatchFuzzy))
		}
	}
	return out
}

// learn records a single clear fuzzy winner as a keyword alias
func (r *Resolver) learn(ctx context.Context, key string, cands []models.Candidate) {
	r.sortCandidates(cands)
	top := cands[0]
	if top.Confidence < r.cfg.MinConfidence || (len(cands) > 1 && cands[1].Confidence == top.Confidence) {
		return
	}
	_, _ = r.AddAlias(ctx, models.Alias{
		Alias:      key,
		LawID:      top.LawID,
		Type:       models.AliasKeyword,
		Confidence: top.Confidence,
	}, false)
}

func (r *Resolver) candidate(law *lawEntry, conf float64, how string) models.Candidate {
	return models.Candidate{
		LawID:      law.id,
		Title:      law.title,
		Status:     law.status,
		Confidence: math.Round(conf*1e4) / 1e4,
		MatchedBy:  how,
	}
}

func (r *Resolver) aboveThreshold(cands []models.Candidate) []models.Candidate {
	out := cands[:0]
	for _, c := range cands {
		if c.Confidence >= r.cfg.MinConfidence {
			out = append(out, c)
		}
	}
	return out
}

// sortCandidates orders by confidence, then active status, then the most
// recent effective date, then id for a total order.
func (r *Resolver) sortCandidates(cands []models.Candidate) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if (a.Status == models.StatusActive) != (b.Status == models.StatusActive) {
			return a.Status == models.StatusActive
		}
		ea, eb := r.effective(a.LawID), r.effective(b.LawID)
		if !ea.Equal(eb) {
			return ea.After(eb)
		}
		return a.LawID.String() < b.LawID.String()
	})
}

func (r *Resolver) sameRank(a, b models.Candidate) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return a.Confidence == b.Confidence &&
		(a.Status == models.StatusActive) == (b.Status == models.StatusActive) &&
		r.effective(a.LawID).Equal(r.effective(b.LawID))
}

func (r *Resolver) effective(id uuid.UUID) time.Time {
	if law, ok := r.laws[id]; ok && law.effective != nil {
		return *law.effective
	}
	return time.Time{}
}

// ExpandQuery splits a search query into term groups. Each group holds the
// term followed by synonym, reverse-synonym and alias-title expansions.
func (r *Resolver) ExpandQuery(query string) [][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var groups [][]string
	for _, term := range normalize.Terms(query) {
		key := normalize.Name(term)
		group := []string{key}
		for _, c := range r.synonyms[key] {
			group = appendUnique(group, c)
		}
		for _, t := range r.reverse[key] {
			group = appendUnique(group, t)
		}
		for syn, canons := range r.synonyms {
			if syn != key && utf8.RuneCountInString(syn) >= 2 && strings.Contains(key, syn) {
				for _, c := range canons {
					group = appendUnique(group, strings.ReplaceAll(key, syn, c))
				}
			}
		}
		if a, ok := r.aliases[key]; ok {
			if law, ok := r.laws[a.LawID]; ok {
				group = appendUnique(group, law.titleKey)
			}
		}
		sort.Strings(group[1:])
		groups = append(groups, group)
	}
	return groups
}

// Stats returns the sizes of the resolver tables
func (r *Resolver) Stats() (laws, aliases, synonyms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.laws), len(r.aliases), len(r.synonyms)
}
