package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"

	"github.com/google/uuid"
)

// Store persists laws, articles, aliases, synonyms, revisions, article
// cross-references and metadata.
// SaveLaw is atomic: readers see either the previous law and article set or
// the new one, never a mix.
type Store interface {
	SaveLaw(ctx context.Context, law *models.Law, articles []models.Article) (*SaveResult, error)
	GetLaw(ctx context.Context, id uuid.UUID) (*models.Law, error)
	FindLaw(ctx context.Context, title string, publishDate time.Time) (*models.Law, error)
	ListLaws(ctx context.Context) ([]models.Law, error)
	LawsByTitle(ctx context.Context, title string) ([]models.Law, error)
	GetArticles(ctx context.Context, lawID uuid.UUID) ([]models.Article, error)
	GetArticle(ctx context.Context, lawID uuid.UUID, index float64) (*models.Article, error)
	PurgeLaw(ctx context.Context, id uuid.UUID) error

	ListAliases(ctx context.Context) ([]models.Alias, error)
	UpsertAlias(ctx context.Context, alias *models.Alias) error
	ListSynonyms(ctx context.Context) ([]models.ConceptSynonym, error)
	AddSynonym(ctx context.Context, syn *models.ConceptSynonym) error

	AppendRevision(ctx context.Context, rev *models.Revision) error
	ListRevisions(ctx context.Context, lawID uuid.UUID) ([]models.Revision, error)

	ReplaceCrossReferences(ctx context.Context, citingLawID uuid.UUID, refs []models.CrossReference) error
	CrossReferences(ctx context.Context, lawID uuid.UUID, index float64) ([]models.CrossReference, error)

	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	Close()
}

// SaveResult reports what SaveLaw did
type SaveResult struct {
	Law      *models.Law
	Articles []models.Article
	Created  bool
	Changed  bool
}

// LawKey identifies a law by its normalized title and publish date
func LawKey(title string, publishDate time.Time) string {
	return normalize.Name(title) + "|" + publishDate.Format("2006-01-02")
}

// ArticleID derives a stable article id from its law and ordering index, so
// re-parsing the same text yields the same ids.
func ArticleID(lawID uuid.UUID, index float64) uuid.UUID {
	return uuid.NewSHA1(lawID, []byte(strconv.FormatFloat(index, 'f', -1, 64)))
}

// prepareArticles assigns ids and owner and checks the ordering invariant
func prepareArticles(lawID uuid.UUID, articles []models.Article, now time.Time) ([]models.Article, error) {
	out := make([]models.Article, len(articles))
	last := 0.0
	for i, a := range articles {
		if a.OrderingIndex <= last {
			return nil, fmt.Errorf("%w: article %s breaks ordering", models.ErrValidationConflict, a.Number)
		}
		last = a.LastIndex()
		a.ID = ArticleID(lawID, a.OrderingIndex)
		a.LawID = lawID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		out[i] = a
	}
	return out, nil
}

// sameRevision reports whether saving law over existing changes nothing
func sameRevision(existing, law *models.Law) bool {
	return existing.ContentHash == law.ContentHash &&
		existing.Status == law.Status &&
		existing.Category == law.Category &&
		existing.SourceRef == law.SourceRef &&
		existing.IssuingAuthority == law.IssuingAuthority &&
		existing.DocumentNumber == law.DocumentNumber &&
		equalDate(existing.EffectiveDate, law.EffectiveDate) &&
		equalDate(existing.ExpiryDate, law.ExpiryDate)
}

func equalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// sortCrossReferences orders links by type, then citing law and article
func sortCrossReferences(refs []models.CrossReference) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.CitingLawID != b.CitingLawID {
			return a.CitingLawID.String() < b.CitingLawID.String()
		}
		return a.CitingIndex < b.CitingIndex
	})
}
