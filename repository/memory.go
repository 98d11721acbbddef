package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"

	"github.com/google/uuid"
)

// lawSnapshot is never modified after it is published; writers swap in a
// new one.
type lawSnapshot struct {
	law      models.Law
	articles []models.Article
}

// MemoryStore is an in-process Store used for development and tests
type MemoryStore struct {
	mu        sync.RWMutex
	laws      map[uuid.UUID]*lawSnapshot
	byKey     map[string]uuid.UUID
	aliases   map[string]models.Alias
	synonyms  []models.ConceptSynonym
	revisions []models.Revision
	crossRefs []models.CrossReference
	metadata  map[string]models.Metadata
	nextSyn   int64
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		laws:     make(map[uuid.UUID]*lawSnapshot),
		byKey:    make(map[string]uuid.UUID),
		aliases:  make(map[string]models.Alias),
		metadata: make(map[string]models.Metadata),
		now:      time.Now,
	}
}

// SaveLaw upserts the law keyed by (title, publish date) and replaces its
// articles in one step
func (s *MemoryStore) SaveLaw(ctx context.Context, law *models.Law, articles []models.Article) (*SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}

	now := s.now().UTC()
	key := LawKey(law.Title, law.PublishDate)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := *law
	result := &SaveResult{}

	existingID, exists := s.byKey[key]
	if law.ID != uuid.Nil && exists && existingID != law.ID {
		return nil, fmt.Errorf("%w: %q published %s already exists as %s",
			models.ErrValidationConflict, law.Title, law.PublishDate.Format("2006-01-02"), existingID)
	}

	if exists {
		prev := s.laws[existingID]
		if sameRevision(&prev.law, law) {
			cp := prev.law
			result.Law = &cp
			result.Articles = append([]models.Article(nil), prev.articles...)
			return result, nil
		}
		next.ID = prev.law.ID
		next.CreatedAt = prev.law.CreatedAt
		if next.ArchivePath == "" {
			next.ArchivePath = prev.law.ArchivePath
		}
	} else {
		if next.ID == uuid.Nil {
			next.ID = uuid.New()
		}
		if old, ok := s.laws[next.ID]; ok {
			next.CreatedAt = old.law.CreatedAt
		} else {
			next.CreatedAt = now
			result.Created = true
		}
	}
	next.UpdatedAt = now

	prepared, err := prepareArticles(next.ID, articles, now)
	if err != nil {
		return nil, err
	}

	if old, ok := s.laws[next.ID]; ok {
		delete(s.byKey, LawKey(old.law.Title, old.law.PublishDate))
	}
	s.laws[next.ID] = &lawSnapshot{law: next, articles: prepared}
	s.byKey[key] = next.ID

	result.Changed = true
	result.Law = &next
	result.Articles = append([]models.Article(nil), prepared...)
	return result, nil
}

func (s *MemoryStore) snapshot(id uuid.UUID) (*lawSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.laws[id]
	if !ok {
		return nil, fmt.Errorf("law %s: %w", id, models.ErrNotFound)
	}
	return snap, nil
}

// GetLaw retrieves a law by ID
func (s *MemoryStore) GetLaw(ctx context.Context, id uuid.UUID) (*models.Law, error) {
	snap, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	law := snap.law
	return &law, nil
}

// FindLaw retrieves a law by title and publish date
func (s *MemoryStore) FindLaw(ctx context.Context, title string, publishDate time.Time) (*models.Law, error) {
	s.mu.RLock()
	id, ok := s.byKey[LawKey(title, publishDate)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("law %q: %w", title, models.ErrNotFound)
	}
	return s.GetLaw(ctx, id)
}

// ListLaws returns every law without its full text, ordered by title and
// publish date
func (s *MemoryStore) ListLaws(ctx context.Context) ([]models.Law, error) {
	s.mu.RLock()
	laws := make([]models.Law, 0, len(s.laws))
	for _, snap := range s.laws {
		law := snap.law
		law.Content = ""
		law.Structure = models.LawStructure{}
		laws = append(laws, law)
	}
	s.mu.RUnlock()

	sortLaws(laws)
	return laws, nil
}

// LawsByTitle returns every version of a title, newest publish date first
func (s *MemoryStore) LawsByTitle(ctx context.Context, title string) ([]models.Law, error) {
	key := normalize.Name(title)

	s.mu.RLock()
	var laws []models.Law
	for _, snap := range s.laws {
		if normalize.Name(snap.law.Title) == key {
			laws = append(laws, snap.law)
		}
	}
	s.mu.RUnlock()

	sort.Slice(laws, func(i, j int) bool {
		return laws[i].PublishDate.After(laws[j].PublishDate)
	})
	return laws, nil
}

func sortLaws(laws []models.Law) {
	sort.Slice(laws, func(i, j int) bool {
		if laws[i].Title != laws[j].Title {
			return laws[i].Title < laws[j].Title
		}
		return laws[i].PublishDate.Before(laws[j].PublishDate)
	})
}

// GetArticles returns a law's articles in ordering-index order
func (s *MemoryStore) GetArticles(ctx context.Context, lawID uuid.UUID) ([]models.Article, error) {
	snap, err := s.snapshot(lawID)
	if err != nil {
		return nil, err
	}
	return append([]models.Article(nil), snap.articles...), nil
}

// GetArticle returns the article covering an ordering index
func (s *MemoryStore) GetArticle(ctx context.Context, lawID uuid.UUID, index float64) (*models.Article, error) {
	snap, err := s.snapshot(lawID)
	if err != nil {
		return nil, err
	}
	for i := range snap.articles {
		if snap.articles[i].Covers(index) {
			a := snap.articles[i]
			return &a, nil
		}
	}
	return nil, fmt.Errorf("article %v of law %s: %w", index, lawID, models.ErrNotFound)
}

// PurgeLaw removes a law with its articles, aliases and revisions
func (s *MemoryStore) PurgeLaw(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.laws[id]
	if !ok {
		return fmt.Errorf("law %s: %w", id, models.ErrNotFound)
	}
	delete(s.laws, id)
	delete(s.byKey, LawKey(snap.law.Title, snap.law.PublishDate))

	for k, a := range s.aliases {
		if a.LawID == id {
			delete(s.aliases, k)
		}
	}
	kept := s.revisions[:0]
	for _, r := range s.revisions {
		if r.LawID != id {
			if r.PriorLawID != nil && *r.PriorLawID == id {
				r.PriorLawID = nil
			}
			kept = append(kept, r)
		}
	}
	s.revisions = kept

	refs := s.crossRefs[:0]
	for _, r := range s.crossRefs {
		if r.LawID != id && r.CitingLawID != id {
			refs = append(refs, r)
		}
	}
	s.crossRefs = refs
	return nil
}

// ListAliases returns every alias ordered by alias text
func (s *MemoryStore) ListAliases(ctx context.Context) ([]models.Alias, error) {
	s.mu.RLock()
	out := make([]models.Alias, 0, len(s.aliases))
	for _, a := range s.aliases {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

// UpsertAlias writes an alias unless an existing mapping has higher confidence
func (s *MemoryStore) UpsertAlias(ctx context.Context, alias *models.Alias) error {
	key := normalize.Name(alias.Alias)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.laws[alias.LawID]; !ok {
		return fmt.Errorf("alias target %s: %w", alias.LawID, models.ErrNotFound)
	}
	if existing, ok := s.aliases[key]; ok {
		if alias.Confidence < existing.Confidence {
			return fmt.Errorf("alias %q: %w", key, models.ErrValidationConflict)
		}
		alias.CreatedAt = existing.CreatedAt
	} else {
		alias.CreatedAt = s.now().UTC()
	}
	alias.Alias = key
	s.aliases[key] = *alias
	return nil
}

// ListSynonyms returns every concept synonym
func (s *MemoryStore) ListSynonyms(ctx context.Context) ([]models.ConceptSynonym, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ConceptSynonym(nil), s.synonyms...), nil
}

// AddSynonym records a synonym; repeating an existing pair is a no-op
func (s *MemoryStore) AddSynonym(ctx context.Context, syn *models.ConceptSynonym) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.synonyms {
		if existing.Term == syn.Term && existing.Canonical == syn.Canonical {
			*syn = existing
			return nil
		}
	}
	s.nextSyn++
	syn.ID = s.nextSyn
	syn.CreatedAt = s.now().UTC()
	s.synonyms = append(s.synonyms, *syn)
	return nil
}

// AppendRevision records a revision
func (s *MemoryStore) AppendRevision(ctx context.Context, rev *models.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.laws[rev.LawID]; !ok {
		return fmt.Errorf("revision law %s: %w", rev.LawID, models.ErrNotFound)
	}
	if rev.ID == uuid.Nil {
		rev.ID = uuid.New()
	}
	rev.CreatedAt = s.now().UTC()
	s.revisions = append(s.revisions, *rev)
	return nil
}

// ListRevisions returns a law's revisions oldest first
func (s *MemoryStore) ListRevisions(ctx context.Context, lawID uuid.UUID) ([]models.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Revision
	for _, r := range s.revisions {
		if r.LawID == lawID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReplaceCrossReferences swaps every link whose citing article belongs to
// citingLawID for refs. Repeated links are stored once.
func (s *MemoryStore) ReplaceCrossReferences(ctx context.Context, citingLawID uuid.UUID, refs []models.CrossReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.laws[citingLawID]; !ok {
		return fmt.Errorf("citing law %s: %w", citingLawID, models.ErrNotFound)
	}
	for _, r := range refs {
		if _, ok := s.laws[r.LawID]; !ok {
			return fmt.Errorf("cited law %s: %w", r.LawID, models.ErrNotFound)
		}
	}

	kept := make([]models.CrossReference, 0, len(s.crossRefs)+len(refs))
	for _, r := range s.crossRefs {
		if r.CitingLawID != citingLawID {
			kept = append(kept, r)
		}
	}

	type link struct {
		law         uuid.UUID
		index, from float64
	}
	now := s.now().UTC()
	seen := make(map[link]bool, len(refs))
	for _, r := range refs {
		k := link{r.LawID, r.ArticleIndex, r.CitingIndex}
		if seen[k] {
			continue
		}
		seen[k] = true
		r.CitingLawID = citingLawID
		r.CreatedAt = now
		kept = append(kept, r)
	}
	s.crossRefs = kept
	return nil
}

// CrossReferences returns the links pointing at one article
func (s *MemoryStore) CrossReferences(ctx context.Context, lawID uuid.UUID, index float64) ([]models.CrossReference, error) {
	s.mu.RLock()
	var out []models.CrossReference
	for _, r := range s.crossRefs {
		if r.LawID == lawID && r.ArticleIndex == index {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sortCrossReferences(out)
	return out, nil
}

// SetMetadata writes a metadata value
func (s *MemoryStore) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = models.Metadata{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	return nil
}

// GetMetadata reads a metadata value
func (s *MemoryStore) GetMetadata(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metadata[key]
	if !ok {
		return "", fmt.Errorf("metadata %q: %w", key, models.ErrNotFound)
	}
	return m.Value, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() {}
