// Package verify checks quoted article text against the canonical corpus.
package verify

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/parser"
	"github.com/sublatesublate-design/legal-database/resolver"
)

// Reasons reported with a not_found classification
const (
	ReasonLawNotFound     = "law_not_found"
	ReasonAmbiguous       = "ambiguous"
	ReasonArticleNotFound = "article_not_found"
	ReasonBadArticle      = "invalid_article_number"
)

// Resolver maps a cited law name to one law
type Resolver interface {
	Resolve(ctx context.Context, name string) (*resolver.Resolution, error)
}

// Articles reads canonical laws and articles
type Articles interface {
	Law(ctx context.Context, id uuid.UUID) (*models.Law, error)
	Article(ctx context.Context, lawID uuid.UUID, index float64) (*models.Article, error)
}

// Result is the verification outcome for one citation
type Result struct {
	LawName        string             `json:"law_name"`
	Article        string             `json:"article"`
	Claimed        string             `json:"claimed,omitempty"`
	Classification Classification     `json:"classification"`
	Similarity     float64            `json:"similarity"`
	Partial        bool               `json:"partial,omitempty"`
	Altered        bool               `json:"altered,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	LawID          *uuid.UUID         `json:"law_id,omitempty"`
	LawTitle       string             `json:"law_title,omitempty"`
	LawStatus      models.LawStatus   `json:"law_status,omitempty"`
	ArticleNumber  string             `json:"article_number,omitempty"`
	CanonicalText  string             `json:"canonical_text,omitempty"`
	Candidates     []models.Candidate `json:"candidates,omitempty"`
	Raw            string             `json:"raw,omitempty"`
	Start          int                `json:"start,omitempty"`
	End            int                `json:"end,omitempty"`
}

// BatchResult holds one result per citation found in a document
type BatchResult struct {
	Total   int                    `json:"total"`
	Counts  map[Classification]int `json:"counts"`
	Results []Result               `json:"results"`
}

// Verifier resolves, locates and compares citations
type Verifier struct {
	resolver   Resolver
	articles   Articles
	thresholds Thresholds
}

// New creates a verifier
func New(r Resolver, a Articles, t Thresholds) *Verifier {
	return &Verifier{resolver: r, articles: a, thresholds: t}
}

// Verify checks one (law name, article number, claimed text) triple.
// Lookup failures come back as not_found results; the error is reserved for
// timeouts and store failures.
func (v *Verifier) Verify(ctx context.Context, lawName, article, claimed string) (*Result, error) {
	res := &Result{LawName: lawName, Article: article, Claimed: claimed}
	if err := v.verify(ctx, res, false); err != nil {
		return nil, err
	}
	return res, nil
}

func (v *Verifier) verify(ctx context.Context, res *Result, shorten bool) error {
	law, err := v.resolve(ctx, res, shorten)
	if err != nil || law == nil {
		return err
	}

	index, err := parser.ParseArticleRef(res.Article)
	if err != nil {
		res.Classification = NotFound
		res.Reason = ReasonBadArticle
		return nil
	}

	art, err := v.articles.Article(ctx, law.ID, index)
	if errors.Is(err, models.ErrNotFound) {
		res.Classification = NotFound
		res.Reason = ReasonArticleNotFound
		return nil
	}
	if err != nil {
		return err
	}

	res.ArticleNumber = art.Number
	res.CanonicalText = art.Content

	if res.Claimed == "" {
		res.Classification = Unquoted
		return nil
	}

	cmp := Compare(art.Content, res.Claimed, v.thresholds)
	res.Classification = cmp.Classification
	res.Similarity = cmp.Similarity
	res.Partial = cmp.Partial
	res.Altered = cmp.Altered
	return nil
}

// resolve fills the law fields of res. A nil law with a nil error means res
// already carries a not_found classification.
func (v *Verifier) resolve(ctx context.Context, res *Result, shorten bool) (*models.Law, error) {
	resolution, err := v.resolver.Resolve(ctx, res.LawName)
	if shorten {
		// bare citations pull surrounding words into the name; try
		// shorter trailing spans before giving up
		runes := []rune(res.LawName)
		for i := 1; errors.Is(err, models.ErrNotFound) && len(runes)-i >= 2; i++ {
			resolution, err = v.resolver.Resolve(ctx, string(runes[i:]))
		}
	}

	var ambiguous *models.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		res.Classification = NotFound
		res.Reason = ReasonAmbiguous
		res.Candidates = ambiguous.Candidates
		return nil, nil
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidInput):
		res.Classification = NotFound
		res.Reason = ReasonLawNotFound
		return nil, nil
	case err != nil:
		return nil, err
	}

	law, err := v.articles.Law(ctx, resolution.Best.LawID)
	if errors.Is(err, models.ErrNotFound) {
		res.Classification = NotFound
		res.Reason = ReasonLawNotFound
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id := law.ID
	res.LawID = &id
	res.LawTitle = law.Title
	res.LawStatus = law.Status
	return law, nil
}

// Batch verifies every citation found in text. A failed citation is
// reported in place and the rest are still checked.
func (v *Verifier) Batch(ctx context.Context, text string) (*BatchResult, error) {
	if utf8.RuneCountInString(text) == 0 {
		return nil, fmt.Errorf("%w: empty text", models.ErrInvalidInput)
	}

	citations := parser.ExtractCitations(text)
	out := &BatchResult{
		Total:   len(citations),
		Counts:  make(map[Classification]int),
		Results: make([]Result, 0, len(citations)),
	}

	for _, c := range citations {
		res := Result{
			LawName: c.LawName,
			Article: c.Article,
			Claimed: c.Quote,
			Raw:     c.Raw,
			Start:   c.Start,
			End:     c.End,
		}
		if err := v.verify(ctx, &res, true); err != nil {
			res.Classification = Failed
			res.Reason = err.Error()
		}
		out.Counts[res.Classification]++
		out.Results = append(out.Results, res)
	}
	return out, nil
}
