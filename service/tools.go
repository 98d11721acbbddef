package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sublatesublate-design/legal-database/cache"
	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"
	"github.com/sublatesublate-design/legal-database/parser"
	"github.com/sublatesublate-design/legal-database/resolver"
	"github.com/sublatesublate-design/legal-database/search"
	"github.com/sublatesublate-design/legal-database/verify"

	"github.com/google/uuid"
)

const (
	defaultLimit = 15
	maxLimit     = 100
	maxSiblings  = 10
	previewRunes = 100
	resolveBoost = 1.0
)

// LawSummary is the header of a law without its text
type LawSummary struct {
	ID            uuid.UUID          `json:"id"`
	Title         string             `json:"title"`
	ShortTitle    string             `json:"short_title,omitempty"`
	Category      models.LawCategory `json:"category"`
	Status        models.LawStatus   `json:"status"`
	PublishDate   string             `json:"publish_date"`
	EffectiveDate string             `json:"effective_date,omitempty"`
	ExpiryDate    string             `json:"expiry_date,omitempty"`
}

func summarize(law *models.Law) *LawSummary {
	return &LawSummary{
		ID:            law.ID,
		Title:         law.Title,
		ShortTitle:    law.ShortTitle,
		Category:      law.Category,
		Status:        law.Status,
		PublishDate:   law.PublishDate.Format("2006-01-02"),
		EffectiveDate: formatDate(law.EffectiveDate),
		ExpiryDate:    formatDate(law.ExpiryDate),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// SearchRequest represents a search_laws or search_articles call
type SearchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Status   string `json:"status,omitempty"`
	Law      string `json:"law,omitempty"` // search_articles only
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// SearchLawsResult is one page of ranked laws
type SearchLawsResult struct {
	Query    string            `json:"query"`
	Terms    [][]string        `json:"terms"`
	Resolved *models.Candidate `json:"resolved,omitempty"`
	Total    int               `json:"total"`
	Hits     []search.LawHit   `json:"hits"`
}

// SearchArticlesResult is one page of ranked articles
type SearchArticlesResult struct {
	Query string              `json:"query"`
	Terms [][]string          `json:"terms"`
	Law   *LawSummary         `json:"law,omitempty"`
	Miss  *Miss               `json:"miss,omitempty"`
	Total int                 `json:"total"`
	Hits  []search.ArticleHit `json:"hits"`
}

// query validates the shared search arguments
func (s *LawService) query(req SearchRequest) (search.Query, error) {
	q := search.Query{Offset: req.Offset, Limit: req.Limit}
	if q.Offset < 0 {
		return q, fmt.Errorf("%w: negative offset", models.ErrInvalidInput)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if req.Category != "" {
		c, err := models.ParseCategory(req.Category)
		if err != nil {
			return q, err
		}
		q.Category = c
	}
	if req.Status != "" {
		st, err := models.ParseStatus(req.Status)
		if err != nil {
			return q, err
		}
		q.Status = st
	}
	q.Groups = s.resolver.ExpandQuery(req.Query)
	if len(q.Groups) == 0 {
		return q, fmt.Errorf("%w: empty query", models.ErrInvalidInput)
	}
	return q, nil
}

func searchKey(op string, q search.Query, extra ...string) string {
	args := []string{string(q.Category), string(q.Status), strconv.Itoa(q.Offset), strconv.Itoa(q.Limit)}
	for _, g := range q.Groups {
		args = append(args, strings.Join(g, "|"))
	}
	return cache.Key(op, append(args, extra...)...)
}

// SearchLaws ranks laws for a free-text query. Synonym expansions are
// searched alongside the raw terms, and a law the whole query confidently
// names is lifted to the top.
func (s *LawService) SearchLaws(ctx context.Context, req SearchRequest) (*SearchLawsResult, error) {
	var out *SearchLawsResult
	err := s.call(ctx, "search_laws", func(ctx context.Context) error {
		var err error
		out, err = s.searchLaws(ctx, req)
		return err
	})
	return out, err
}

func (s *LawService) searchLaws(ctx context.Context, req SearchRequest) (*SearchLawsResult, error) {
	q, err := s.query(req)
	if err != nil {
		return nil, err
	}

	return cached(ctx, s.cache, searchKey("search_laws", q), []string{cache.CorpusTag},
		func(ctx context.Context) (*SearchLawsResult, error) {
			res := &SearchLawsResult{Query: displayQuery(req.Query), Terms: q.Groups}

			resolution, err := s.resolve(ctx, req.Query)
			switch {
			case err == nil:
				best := resolution.Best
				res.Resolved = &best
				q.Boosts = map[uuid.UUID]float64{best.LawID: resolveBoost * best.Confidence}
			case errors.Is(err, models.ErrTimeout):
				return nil, err
			}

			page := s.engine.SearchLaws(q)
			res.Total = page.Total
			res.Hits = page.Hits
			return res, nil
		})
}

// SearchArticles ranks articles for a free-text query, optionally within
// one law
func (s *LawService) SearchArticles(ctx context.Context, req SearchRequest) (*SearchArticlesResult, error) {
	var out *SearchArticlesResult
	err := s.call(ctx, "search_articles", func(ctx context.Context) error {
		q, err := s.query(req)
		if err != nil {
			return err
		}

		res := &SearchArticlesResult{Query: displayQuery(req.Query), Terms: q.Groups}
		if strings.TrimSpace(req.Law) != "" {
			law, miss, err := s.lookupLaw(ctx, req.Law)
			if err != nil {
				return err
			}
			if miss != nil {
				res.Miss = miss
				res.Hits = []search.ArticleHit{}
				out = res
				return nil
			}
			q.LawID = law.ID
			res.Law = summarize(law)
		}

		page, err := cached(ctx, s.cache, searchKey("search_articles", q, q.LawID.String()), []string{cache.CorpusTag},
			func(ctx context.Context) (*search.ArticlePage, error) {
				return s.engine.SearchArticles(q), nil
			})
		if err != nil {
			return err
		}
		res.Total = page.Total
		res.Hits = page.Hits
		out = res
		return nil
	})
	return out, err
}

// ArticleResult is the outcome of get_article
type ArticleResult struct {
	Found      bool               `json:"found"`
	Reason     string             `json:"reason,omitempty"`
	Candidates []models.Candidate `json:"candidates,omitempty"`
	Law        *LawSummary        `json:"law,omitempty"`
	Article    *models.Article    `json:"article,omitempty"`
	Siblings   []string           `json:"siblings,omitempty"`
	Related    []RelatedArticle   `json:"related,omitempty"`
}

// RelatedArticle is an article of another law that cites the requested one
type RelatedArticle struct {
	LawID   uuid.UUID                 `json:"law_id"`
	Title   string                    `json:"title"`
	Number  string                    `json:"number"`
	Type    models.CrossReferenceType `json:"type"`
	Preview string                    `json:"preview"`
}

// GetArticle returns one article by law and article number, with the
// nearest articles sharing its chapter path and the articles of other laws
// that cite it
func (s *LawService) GetArticle(ctx context.Context, lawRef, number string) (*ArticleResult, error) {
	var out *ArticleResult
	err := s.call(ctx, "get_article", func(ctx context.Context) error {
		index, err := parser.ParseArticleRef(number)
		if err != nil {
			return err
		}

		law, miss, err := s.lookupLaw(ctx, lawRef)
		if err != nil {
			return err
		}
		if miss != nil {
			out = &ArticleResult{Reason: miss.Reason, Candidates: miss.Candidates}
			return nil
		}

		out, err = cached(ctx, s.cache, cache.Key("get_article", law.ID.String(), indexKey(index)),
			[]string{cache.LawTag(law.ID.String()), cache.CorpusTag},
			func(ctx context.Context) (*ArticleResult, error) {
				arts, err := s.articles(ctx, law.ID)
				if err != nil {
					return nil, err
				}
				res := &ArticleResult{Law: summarize(law)}
				i := findArticle(arts, index)
				if i < 0 {
					res.Reason = verify.ReasonArticleNotFound
					return res, nil
				}
				art := arts[i]
				res.Found = true
				res.Article = &art
				res.Siblings = siblings(arts, i)
				res.Related, err = s.related(ctx, &art)
				if err != nil {
					return nil, err
				}
				return res, nil
			})
		return err
	})
	return out, err
}

// related resolves the cross-references pointing at art. Links whose citing
// law or article has since disappeared are dropped.
func (s *LawService) related(ctx context.Context, art *models.Article) ([]RelatedArticle, error) {
	var refs []models.CrossReference
	err := s.read(ctx, "get_cross_references", func(ctx context.Context) (int, error) {
		var err error
		refs, err = s.store.CrossReferences(ctx, art.LawID, art.OrderingIndex)
		return len(refs), err
	})
	if err != nil {
		return nil, err
	}

	var out []RelatedArticle
	for _, ref := range refs {
		law, err := s.law(ctx, ref.CitingLawID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		arts, err := s.articles(ctx, ref.CitingLawID)
		if err != nil {
			return nil, err
		}
		i := findArticle(arts, ref.CitingIndex)
		if i < 0 {
			continue
		}
		out = append(out, RelatedArticle{
			LawID:   law.ID,
			Title:   law.Title,
			Number:  arts[i].Number,
			Type:    ref.Type,
			Preview: preview(arts[i].Content),
		})
	}
	return out, nil
}

// preview flattens text to one line, cut after previewRunes runes
func preview(text string) string {
	flat := []rune(strings.Join(strings.Fields(text), " "))
	if len(flat) <= previewRunes {
		return string(flat)
	}
	return string(flat[:previewRunes]) + "…"
}

// siblings lists the articles nearest to arts[i] under the same chapter
// path, in document order
func siblings(arts []models.Article, i int) []string {
	path := arts[i].ChapterPath
	if path == "" {
		return nil
	}

	type near struct {
		idx  int
		dist float64
	}
	var list []near
	for j := range arts {
		if j != i && arts[j].ChapterPath == path {
			d := arts[j].OrderingIndex - arts[i].OrderingIndex
			if d < 0 {
				d = -d
			}
			list = append(list, near{j, d})
		}
	}
	sort.SliceStable(list, func(a, b int) bool { return list[a].dist < list[b].dist })
	if len(list) > maxSiblings {
		list = list[:maxSiblings]
	}
	sort.Slice(list, func(a, b int) bool { return list[a].idx < list[b].idx })

	out := make([]string, len(list))
	for k, n := range list {
		out[k] = arts[n.idx].Number
	}
	return out
}

// StructureResult is the table of contents of a law
type StructureResult struct {
	Found        bool                `json:"found"`
	Reason       string              `json:"reason,omitempty"`
	Candidates   []models.Candidate  `json:"candidates,omitempty"`
	Law          *LawSummary         `json:"law,omitempty"`
	Preamble     string              `json:"preamble,omitempty"`
	Structure    models.LawStructure `json:"structure"`
	ArticleCount int                 `json:"article_count"`
}

// GetLawStructure returns the ordered heading tree of a law
func (s *LawService) GetLawStructure(ctx context.Context, lawRef string) (*StructureResult, error) {
	var out *StructureResult
	err := s.call(ctx, "get_law_structure", func(ctx context.Context) error {
		law, miss, err := s.lookupLaw(ctx, lawRef)
		if err != nil {
			return err
		}
		if miss != nil {
			out = &StructureResult{Reason: miss.Reason, Candidates: miss.Candidates}
			return nil
		}

		out, err = cached(ctx, s.cache, cache.Key("get_law_structure", law.ID.String()),
			[]string{cache.LawTag(law.ID.String())},
			func(ctx context.Context) (*StructureResult, error) {
				arts, err := s.articles(ctx, law.ID)
				if err != nil {
					return nil, err
				}
				return &StructureResult{
					Found:        true,
					Law:          summarize(law),
					Preamble:     law.Preamble,
					Structure:    law.Structure,
					ArticleCount: len(arts),
				}, nil
			})
		return err
	})
	return out, err
}

// ValidityResult reports whether a law is in force
type ValidityResult struct {
	Found         bool               `json:"found"`
	Reason        string             `json:"reason,omitempty"`
	Candidates    []models.Candidate `json:"candidates,omitempty"`
	Law           *LawSummary        `json:"law,omitempty"`
	Status        models.LawStatus   `json:"status,omitempty"`
	EffectiveDate string             `json:"effective_date,omitempty"`
	ExpiryDate    string             `json:"expiry_date,omitempty"`
	InForce       bool               `json:"in_force"`
	Replacement   *LawSummary        `json:"replacement,omitempty"`
	Revisions     []models.Revision  `json:"revisions,omitempty"`
}

// CheckLawValidity reports a law's status and dates. For a law no longer
// active it suggests the newest active version of the same title.
func (s *LawService) CheckLawValidity(ctx context.Context, lawRef string) (*ValidityResult, error) {
	var out *ValidityResult
	err := s.call(ctx, "check_law_validity", func(ctx context.Context) error {
		law, miss, err := s.lookupLaw(ctx, lawRef)
		if err != nil {
			return err
		}
		if miss != nil {
			out = &ValidityResult{Reason: miss.Reason, Candidates: miss.Candidates}
			return nil
		}

		today := s.now().UTC().Truncate(24 * time.Hour)
		out, err = cached(ctx, s.cache, cache.Key("check_law_validity", law.ID.String(), today.Format("2006-01-02")),
			[]string{cache.LawTag(law.ID.String()), cache.CorpusTag},
			func(ctx context.Context) (*ValidityResult, error) {
				res := &ValidityResult{
					Found:         true,
					Law:           summarize(law),
					Status:        law.Status,
					EffectiveDate: formatDate(law.EffectiveDate),
					ExpiryDate:    formatDate(law.ExpiryDate),
					InForce:       inForce(law, today),
				}

				var versions []models.Law
				err := s.read(ctx, "validity", func(ctx context.Context) (int, error) {
					var err error
					if res.Revisions, err = s.store.ListRevisions(ctx, law.ID); err != nil {
						return 0, err
					}
					versions, err = s.store.LawsByTitle(ctx, law.Title)
					return len(versions), err
				})
				if err != nil {
					return nil, err
				}

				if law.Status != models.StatusActive {
					for i := range versions {
						v := &versions[i]
						if v.ID != law.ID && v.Status == models.StatusActive && v.PublishDate.After(law.PublishDate) {
							res.Replacement = summarize(v)
							break
						}
					}
				}
				return res, nil
			})
		return err
	})
	return out, err
}

func inForce(law *models.Law, today time.Time) bool {
	if law.Status != models.StatusActive {
		return false
	}
	if law.EffectiveDate != nil && law.EffectiveDate.After(today) {
		return false
	}
	return law.ExpiryDate == nil || law.ExpiryDate.After(today)
}

// VerifyCitation checks one quoted article against the canonical text
func (s *LawService) VerifyCitation(ctx context.Context, lawName, article, claimed string) (*verify.Result, error) {
	var out *verify.Result
	err := s.call(ctx, "verify_law_citation", func(ctx context.Context) error {
		if normalize.Name(lawName) == "" {
			return fmt.Errorf("%w: law name is required", models.ErrInvalidInput)
		}
		if strings.TrimSpace(article) == "" {
			return fmt.Errorf("%w: article number is required", models.ErrInvalidInput)
		}

		articleKey := strings.TrimSpace(article)
		if index, err := parser.ParseArticleRef(article); err == nil {
			articleKey = indexKey(index)
		}
		key := cache.Key("verify_law_citation", normalize.Name(lawName), articleKey, claimed)
		shared, err := cached(ctx, s.cache, key, []string{cache.CorpusTag},
			func(ctx context.Context) (*verify.Result, error) {
				return s.verifier.Verify(ctx, lawName, article, claimed)
			})
		if err != nil {
			return err
		}

		res := *shared
		res.LawName, res.Article = lawName, article
		out = &res
		if s.metrics != nil {
			s.metrics.RecordVerification(string(out.Classification))
		}
		return nil
	})
	return out, err
}

// BatchVerify checks every citation found in a document
func (s *LawService) BatchVerify(ctx context.Context, text string) (*verify.BatchResult, error) {
	var out *verify.BatchResult
	err := s.call(ctx, "batch_verify_citations", func(ctx context.Context) error {
		var err error
		out, err = s.verifier.Batch(ctx, text)
		if err == nil && s.metrics != nil {
			for _, r := range out.Results {
				s.metrics.RecordVerification(string(r.Classification))
			}
		}
		return err
	})
	return out, err
}

// ResolveResult is the outcome of resolve_law
type ResolveResult struct {
	Found      bool               `json:"found"`
	Reason     string             `json:"reason,omitempty"`
	Best       *models.Candidate  `json:"best,omitempty"`
	Candidates []models.Candidate `json:"candidates,omitempty"`
}

// ResolveLaw maps a free-form name to canonical laws. With all set every
// candidate above the threshold is returned and ties are not an error.
func (s *LawService) ResolveLaw(ctx context.Context, name string, all bool) (*ResolveResult, error) {
	var out *ResolveResult
	err := s.call(ctx, "resolve_law", func(ctx context.Context) error {
		if normalize.Name(name) == "" {
			return fmt.Errorf("%w: law name is required", models.ErrInvalidInput)
		}

		var (
			res *resolver.Resolution
			err error
		)
		if all {
			res, err = s.resolver.ResolveAll(ctx, name)
		} else {
			res, err = s.resolve(ctx, name)
		}

		var ambiguous *models.AmbiguousError
		switch {
		case errors.As(err, &ambiguous):
			out = &ResolveResult{Reason: verify.ReasonAmbiguous, Candidates: ambiguous.Candidates}
			return nil
		case errors.Is(err, models.ErrNotFound):
			out = &ResolveResult{Reason: verify.ReasonLawNotFound}
			return nil
		case err != nil:
			return err
		}

		out = &ResolveResult{Found: true, Candidates: res.Candidates}
		best := res.Candidates[0]
		if !all {
			best = res.Best
		}
		out.Best = &best
		return nil
	})
	return out, err
}

// AliasRequest represents an add_alias call
type AliasRequest struct {
	Alias      string  `json:"alias"`
	Law        string  `json:"law"` // title or id
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence"`
}

// AddAlias records a non-curated alias. Its confidence is capped below the
// curated level, and a lower-confidence write never replaces an existing
// mapping.
func (s *LawService) AddAlias(ctx context.Context, req AliasRequest) (*models.Alias, error) {
	var out *models.Alias
	err := s.call(ctx, "add_alias", func(ctx context.Context) error {
		aliasType, err := models.ParseAliasType(req.Type)
		if err != nil {
			return err
		}
		law, miss, err := s.lookupLaw(ctx, req.Law)
		if err != nil {
			return err
		}
		if miss != nil {
			return fmt.Errorf("alias target %q (%s): %w", req.Law, miss.Reason, models.ErrNotFound)
		}

		err = s.pool.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = s.resolver.AddAlias(ctx, models.Alias{
				Alias:      req.Alias,
				LawID:      law.ID,
				Type:       aliasType,
				Confidence: req.Confidence,
			}, false)
			return err
		})
		if err != nil {
			return err
		}
		s.cache.Invalidate(cache.CorpusTag)
		return nil
	})
	return out, err
}

// AddSynonym records a concept synonym used by search expansion and
// resolution
func (s *LawService) AddSynonym(ctx context.Context, term, canonical string) (*models.ConceptSynonym, error) {
	var out *models.ConceptSynonym
	err := s.call(ctx, "add_synonym", func(ctx context.Context) error {
		err := s.pool.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = s.resolver.AddSynonym(ctx, term, canonical)
			return err
		})
		if err != nil {
			return err
		}
		s.cache.Invalidate(cache.CorpusTag)
		return nil
	})
	return out, err
}

// ClearCaches drops every cached result and reports the counters before
// the purge
func (s *LawService) ClearCaches(ctx context.Context) (cache.Stats, error) {
	var stats cache.Stats
	err := s.call(ctx, "clear_caches", func(ctx context.Context) error {
		stats = s.cache.Stats()
		s.cache.Purge()
		return nil
	})
	return stats, err
}

// StatsResult describes the loaded corpus and the runtime layers
type StatsResult struct {
	Laws      int         `json:"laws"`
	Articles  int         `json:"articles"`
	Aliases   int         `json:"aliases"`
	Synonyms  int         `json:"synonyms"`
	Cache     cache.Stats `json:"cache"`
	PoolSize  int         `json:"pool_size"`
	PoolInUse int64       `json:"pool_in_use"`
}

// Stats reports corpus and runtime counters
func (s *LawService) Stats(ctx context.Context) (*StatsResult, error) {
	var out *StatsResult
	err := s.call(ctx, "stats", func(ctx context.Context) error {
		laws, articles := s.engine.Stats()
		_, aliases, synonyms := s.resolver.Stats()
		out = &StatsResult{
			Laws:      laws,
			Articles:  articles,
			Aliases:   aliases,
			Synonyms:  synonyms,
			Cache:     s.cache.Stats(),
			PoolSize:  s.pool.Size(),
			PoolInUse: s.pool.InUse(),
		}
		return nil
	})
	return out, err
}

// displayQuery is the normalized form echoed back with search results, so
// queries sharing a cache entry also share a response
func displayQuery(q string) string {
	return strings.Join(normalize.Terms(q), " ")
}
