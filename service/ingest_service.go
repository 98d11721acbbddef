package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sublatesublate-design/legal-database/cache"
	"github.com/sublatesublate-design/legal-database/logger"
	"github.com/sublatesublate-design/legal-database/metrics"
	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"
	"github.com/sublatesublate-design/legal-database/parser"
	"github.com/sublatesublate-design/legal-database/pool"
	"github.com/sublatesublate-design/legal-database/repository"
	"github.com/sublatesublate-design/legal-database/resolver"
	"github.com/sublatesublate-design/legal-database/search"
	"github.com/sublatesublate-design/legal-database/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// Metadata keys written by ingestion
const (
	MetaLastIngestAt = "last_ingest_at"
	MetaLastRunID    = "last_ingest_run"
)

const batchConcurrency = 4

// Provenance is the metadata an acquisition component supplies with a
// document. Empty fields are filled from the parsed text where possible.
type Provenance struct {
	Title            string `json:"title,omitempty" yaml:"title"`
	Category         string `json:"category,omitempty" yaml:"category"`
	Status           string `json:"status,omitempty" yaml:"status"`
	PublishDate      string `json:"publish_date,omitempty" yaml:"publish_date"`
	EffectiveDate    string `json:"effective_date,omitempty" yaml:"effective_date"`
	ExpiryDate       string `json:"expiry_date,omitempty" yaml:"expiry_date"`
	IssuingAuthority string `json:"issuing_authority,omitempty" yaml:"issuing_authority"`
	DocumentNumber   string `json:"document_number,omitempty" yaml:"document_number"`
	SourceRef        string `json:"source_ref,omitempty" yaml:"source_ref"`
}

// Document is one raw legal text submitted for ingestion
type Document struct {
	Text       string     `json:"text"`
	Provenance Provenance `json:"provenance"`
}

// IngestReport describes what ingesting one document did
type IngestReport struct {
	RunID           uuid.UUID             `json:"run_id"`
	LawID           uuid.UUID             `json:"law_id,omitempty"`
	Title           string                `json:"title,omitempty"`
	SourceRef       string                `json:"source_ref,omitempty"`
	Created         bool                  `json:"created"`
	Updated         bool                  `json:"updated"`
	Unchanged       bool                  `json:"unchanged"`
	ArticlesParsed  int                   `json:"articles_parsed"`
	Revisions       int                   `json:"revisions"`
	CrossReferences int                   `json:"cross_references"`
	ArchivePath     string                `json:"archive_path,omitempty"`
	Warnings        []models.ParseWarning `json:"warnings"`

	// Incomplete lists follow-up steps that failed after the law itself
	// was committed
	Incomplete []string `json:"incomplete,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Result labels the report for metrics
func (r *IngestReport) Result() string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Created:
		return "created"
	case r.Updated:
		return "updated"
	}
	return "unchanged"
}

// IngestService is the single write path into the corpus. Writes to one law
// are serialized; unrelated laws are ingested concurrently.
type IngestService struct {
	store    repository.Store
	engine   *search.Engine
	resolver *resolver.Resolver
	cache    *cache.Cache
	pool     *pool.Pool
	archive  storage.Archive
	locks    *repository.LawLocks
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// IngestServiceOption is a functional option for IngestService
type IngestServiceOption func(*IngestService)

// IngestWithStore sets the store
func IngestWithStore(store repository.Store) IngestServiceOption {
	return func(s *IngestService) {
		s.store = store
	}
}

// IngestWithEngine sets the search engine kept in step with the store
func IngestWithEngine(engine *search.Engine) IngestServiceOption {
	return func(s *IngestService) {
		s.engine = engine
	}
}

// IngestWithResolver sets the resolver kept in step with the store
func IngestWithResolver(r *resolver.Resolver) IngestServiceOption {
	return func(s *IngestService) {
		s.resolver = r
	}
}

// IngestWithCache sets the cache invalidated by writes
func IngestWithCache(c *cache.Cache) IngestServiceOption {
	return func(s *IngestService) {
		s.cache = c
	}
}

// IngestWithPool sets the store handle pool
func IngestWithPool(p *pool.Pool) IngestServiceOption {
	return func(s *IngestService) {
		s.pool = p
	}
}

// IngestWithArchive sets the raw document archive
func IngestWithArchive(a storage.Archive) IngestServiceOption {
	return func(s *IngestService) {
		s.archive = a
	}
}

// IngestWithMetrics sets the metrics sink
func IngestWithMetrics(m *metrics.Metrics) IngestServiceOption {
	return func(s *IngestService) {
		s.metrics = m
	}
}

// IngestWithLogger sets the logger
func IngestWithLogger(l *logger.Logger) IngestServiceOption {
	return func(s *IngestService) {
		s.log = l
	}
}

// IngestWithClock sets the time source for bookkeeping
func IngestWithClock(now func() time.Time) IngestServiceOption {
	return func(s *IngestService) {
		s.now = now
	}
}

// NewIngestService creates a new ingest service
func NewIngestService(opts ...IngestServiceOption) (*IngestService, error) {
	s := &IngestService{
		locks: repository.NewLawLocks(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		return nil, errors.New("store not set")
	}
	if s.engine == nil {
		return nil, errors.New("search engine not set")
	}
	if s.resolver == nil {
		return nil, errors.New("resolver not set")
	}
	if s.cache == nil {
		s.cache = cache.New(cache.DefaultConfig())
	}
	if s.pool == nil {
		s.pool = pool.New(pool.DefaultConfig(), nil)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.Component("ingest")
	return s, nil
}

// ContentHash fingerprints a document's raw text
func ContentHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Ingest parses one document and commits it atomically. Parse warnings are
// returned in the report and never abort the write.
func (s *IngestService) Ingest(ctx context.Context, doc Document) (*IngestReport, error) {
	return s.ingest(ctx, uuid.New(), doc)
}

// IngestBatch ingests every document and returns one report per document
// in input order. A failed document is reported in place.
func (s *IngestService) IngestBatch(ctx context.Context, docs []Document) []*IngestReport {
	runID := uuid.New()
	reports := make([]*IngestReport, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i := range docs {
		g.Go(func() error {
			report, err := s.ingest(gctx, runID, docs[i])
			if err != nil {
				report = &IngestReport{
					RunID:     runID,
					Title:     docs[i].Provenance.Title,
					SourceRef: docs[i].Provenance.SourceRef,
					Warnings:  []models.ParseWarning{},
					Error:     err.Error(),
				}
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (s *IngestService) ingest(ctx context.Context, runID uuid.UUID, doc Document) (*IngestReport, error) {
	start := time.Now()
	report, err := s.commit(ctx, runID, doc)

	result := "failed"
	articles, warnings := 0, 0
	if report != nil {
		result = report.Result()
		articles, warnings = report.ArticlesParsed, len(report.Warnings)
	}
	if s.metrics != nil {
		s.metrics.RecordIngest(result, articles, warnings)
	}

	event := s.log.Info()
	if err != nil {
		event = s.log.Error().Err(err)
	}
	event.
		Str("run_id", runID.String()).
		Str("source_ref", doc.Provenance.SourceRef).
		Str("result", result).
		Int("articles", articles).
		Int("warnings", warnings).
		Dur("duration_ms", time.Since(start)).
		Msg("document ingested")
	return report, err
}

func (s *IngestService) commit(ctx context.Context, runID uuid.UUID, doc Document) (*IngestReport, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: empty document", models.ErrInvalidInput)
	}

	hash := ContentHash(doc.Text)
	parsed, err := parser.Parse(doc.Text, parser.Options{Title: doc.Provenance.Title})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	law, err := buildLaw(parsed, doc.Provenance, doc.Text, hash)
	if err != nil {
		return nil, err
	}

	report := &IngestReport{
		RunID:          runID,
		Title:          law.Title,
		SourceRef:      law.SourceRef,
		ArticlesParsed: len(parsed.Articles),
		Warnings:       parsed.Warnings,
	}
	if report.Warnings == nil {
		report.Warnings = []models.ParseWarning{}
	}
	for _, w := range parsed.Warnings {
		s.log.Warn().
			Str("title", law.Title).
			Int("line", w.Line).
			Str("segment", w.Segment).
			Msg(w.Reason)
	}

	unlock, err := s.locks.Lock(ctx, repository.LawKey(law.Title, law.PublishDate))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var existing *models.Law
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		found, err := s.store.FindLaw(ctx, law.Title, law.PublishDate)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		existing = found
		return err
	})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		law.ID = existing.ID
	} else {
		law.ID = uuid.New()
	}

	if existing != nil && existing.ContentHash == hash && existing.ArchivePath != "" {
		law.ArchivePath = existing.ArchivePath
	} else if s.archive != nil {
		key, err := s.archive.Put(ctx, law.ID, hash, bytes.NewReader([]byte(doc.Text)))
		if err != nil {
			return nil, fmt.Errorf("failed to archive document: %w", err)
		}
		law.ArchivePath = key
	}

	var saved *repository.SaveResult
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		saved, err = s.store.SaveLaw(ctx, law, parsed.Articles)
		return err
	})
	if err != nil {
		return nil, err
	}

	report.LawID = saved.Law.ID
	report.ArchivePath = saved.Law.ArchivePath
	if !saved.Changed {
		report.Unchanged = true
		return report, nil
	}
	report.Created = saved.Created
	report.Updated = !saved.Created

	s.engine.IndexLaw(saved.Law, saved.Articles)
	s.resolver.PutLaw(saved.Law)
	tags := []string{cache.LawTag(saved.Law.ID.String()), cache.CorpusTag}
	s.cache.Invalidate(tags...)
	defer s.cache.Invalidate(tags...)

	if saved.Created {
		n, err := s.recordRevisions(ctx, saved.Law, parsed.Relations)
		report.Revisions = n
		if err != nil {
			s.incomplete(report, "revisions", err)
		}
	}

	n, err := s.linkCitations(ctx, saved.Law, saved.Articles)
	if err != nil {
		s.incomplete(report, "cross-references", err)
	} else {
		report.CrossReferences = n
	}

	err = s.pool.Do(ctx, func(ctx context.Context) error {
		if err := s.store.SetMetadata(ctx, MetaLastIngestAt, s.now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		return s.store.SetMetadata(ctx, MetaLastRunID, runID.String())
	})
	if err != nil {
		s.incomplete(report, "metadata", err)
	}
	return report, nil
}

func (s *IngestService) incomplete(report *IngestReport, step string, err error) {
	report.Incomplete = append(report.Incomplete, step+": "+err.Error())
	s.log.Warn().
		Err(err).
		Str("law_id", report.LawID.String()).
		Str("step", step).
		Msg("law committed but follow-up step failed")
}

// linkCitations replaces the cross-references whose citing articles belong
// to law. Citations naming this law itself, or a law or article that is not
// in the corpus, are skipped.
func (s *IngestService) linkCitations(ctx context.Context, law *models.Law, articles []models.Article) (int, error) {
	refType := models.CrossRefCitation
	if law.Category == models.CategoryJudicialInterpretation {
		refType = models.CrossRefInterpretation
	}

	targets := make(map[string]uuid.UUID)
	target := func(name string) uuid.UUID {
		key := normalize.Name(name)
		if id, ok := targets[key]; ok {
			return id
		}
		var id uuid.UUID
		if res, err := s.resolver.Resolve(ctx, name); err == nil && res.Best.LawID != law.ID {
			id = res.Best.LawID
		}
		targets[key] = id
		return id
	}

	var refs []models.CrossReference
	for _, a := range articles {
		for _, c := range parser.ExtractCitations(a.Content) {
			lawID := target(c.LawName)
			if lawID == uuid.Nil {
				continue
			}
			index, err := parser.ParseArticleRef(c.Article)
			if err != nil {
				continue
			}

			var cited *models.Article
			err = s.pool.Do(ctx, func(ctx context.Context) error {
				var err error
				cited, err = s.store.GetArticle(ctx, lawID, index)
				return err
			})
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			if err != nil {
				return 0, err
			}
			refs = append(refs, models.CrossReference{
				LawID:        lawID,
				ArticleIndex: cited.OrderingIndex,
				CitingLawID:  law.ID,
				CitingIndex:  a.OrderingIndex,
				Type:         refType,
			})
		}
	}

	err := s.pool.Do(ctx, func(ctx context.Context) error {
		return s.store.ReplaceCrossReferences(ctx, law.ID, refs)
	})
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}

// recordRevisions links a newly created law to the law it amends or
// interprets, and to the previous version of the same title
func (s *IngestService) recordRevisions(ctx context.Context, law *models.Law, relations []parser.Relation) (int, error) {
	var revs []models.Revision

	for _, rel := range relations {
		rev := models.Revision{LawID: law.ID, Type: rel.Type, Note: relationNote(rel)}
		if res, err := s.resolver.Resolve(ctx, rel.Target); err == nil && res.Best.LawID != law.ID {
			prior := res.Best.LawID
			rev.PriorLawID = &prior
		}
		revs = append(revs, rev)
	}

	var versions []models.Law
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		versions, err = s.store.LawsByTitle(ctx, law.Title)
		return err
	})
	if err != nil {
		return 0, err
	}
	for i := range versions {
		v := &versions[i]
		if v.ID != law.ID && v.PublishDate.Before(law.PublishDate) {
			prior := v.ID
			revs = append(revs, models.Revision{
				LawID:      law.ID,
				PriorLawID: &prior,
				Type:       models.RevisionAmendment,
				Note:       "supersedes version published " + v.PublishDate.Format("2006-01-02"),
			})
			break
		}
	}

	for i := range revs {
		err := s.pool.Do(ctx, func(ctx context.Context) error {
			return s.store.AppendRevision(ctx, &revs[i])
		})
		if err != nil {
			return i, err
		}
	}
	return len(revs), nil
}

func relationNote(rel parser.Relation) string {
	if rel.Type == models.RevisionInterpretation {
		return "interprets《" + rel.Target + "》"
	}
	return "amends《" + rel.Target + "》"
}

// PurgeLaw removes a law with its articles, aliases, revisions and archived
// text, and drops it from the index and resolver
func (s *IngestService) PurgeLaw(ctx context.Context, id uuid.UUID) error {
	var law *models.Law
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		law, err = s.store.GetLaw(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	unlock, err := s.locks.Lock(ctx, repository.LawKey(law.Title, law.PublishDate))
	if err != nil {
		return err
	}
	defer unlock()

	err = s.pool.Do(ctx, func(ctx context.Context) error {
		return s.store.PurgeLaw(ctx, id)
	})
	if err != nil {
		return err
	}

	s.engine.RemoveLaw(id)
	s.resolver.RemoveLaw(id)
	s.cache.Invalidate(cache.LawTag(id.String()), cache.CorpusTag)

	if s.archive != nil {
		if err := s.archive.Delete(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("law_id", id.String()).Msg("failed to delete archived text")
		}
	}
	s.log.Info().Str("law_id", id.String()).Str("title", law.Title).Msg("law purged")
	return nil
}

// Source returns the original text of a law. The archived copy is served
// when one exists, otherwise the stored content.
func (s *IngestService) Source(ctx context.Context, id uuid.UUID) (*models.Law, io.ReadCloser, error) {
	var law *models.Law
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		law, err = s.store.GetLaw(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if s.archive != nil && law.ArchivePath != "" {
		rc, err := s.archive.Get(ctx, law.ArchivePath)
		if err == nil {
			return law, rc, nil
		}
		if !errors.Is(err, storage.ErrNotArchived) {
			return nil, nil, err
		}
		s.log.Warn().Str("law_id", id.String()).Str("key", law.ArchivePath).Msg("archived text missing, serving stored content")
	}
	return law, io.NopCloser(strings.NewReader(law.Content)), nil
}

// buildLaw merges the parsed header with provenance. Provenance wins.
func buildLaw(parsed *parser.Result, prov Provenance, text, hash string) (*models.Law, error) {
	law := &models.Law{
		Title:            parsed.Title,
		ShortTitle:       parsed.ShortTitle,
		IssuingAuthority: strings.TrimSpace(prov.IssuingAuthority),
		DocumentNumber:   strings.TrimSpace(prov.DocumentNumber),
		SourceRef:        strings.TrimSpace(prov.SourceRef),
		Content:          text,
		Preamble:         parsed.Preamble,
		Structure:        parsed.Structure,
		ContentHash:      hash,
		Status:           models.StatusActive,
	}
	if law.Title == "" {
		return nil, fmt.Errorf("%w: document has no title", models.ErrInvalidInput)
	}

	var err error
	if prov.Category != "" {
		if law.Category, err = models.ParseCategory(prov.Category); err != nil {
			return nil, err
		}
	} else {
		law.Category = InferCategory(law.Title)
	}
	if prov.Status != "" {
		if law.Status, err = models.ParseStatus(prov.Status); err != nil {
			return nil, err
		}
	}

	publish, err := parseDate("publish_date", prov.PublishDate)
	if err != nil {
		return nil, err
	}
	switch {
	case publish != nil:
		law.PublishDate = *publish
	case parsed.PublishDate != nil:
		law.PublishDate = *parsed.PublishDate
	default:
		return nil, fmt.Errorf("%w: publish date missing for %q", models.ErrInvalidInput, law.Title)
	}

	if law.EffectiveDate, err = parseDate("effective_date", prov.EffectiveDate); err != nil {
		return nil, err
	}
	if law.EffectiveDate == nil {
		law.EffectiveDate = parsed.EffectiveDate
	}
	if law.ExpiryDate, err = parseDate("expiry_date", prov.ExpiryDate); err != nil {
		return nil, err
	}

	return law, nil
}

func parseDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", "20060102", "2006/01/02", "2006.01.02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q is not a date", models.ErrInvalidInput, field, s)
}

// InferCategory guesses a category from a title when provenance omits it
func InferCategory(title string) models.LawCategory {
	switch {
	case strings.Contains(title, "解释") || strings.Contains(title, "批复"):
		return models.CategoryJudicialInterpretation
	case strings.HasSuffix(title, "条例"):
		return models.CategoryAdministrativeRegulation
	case strings.HasSuffix(title, "规定") || strings.HasSuffix(title, "办法") || strings.HasSuffix(title, "细则"):
		return models.CategoryDepartmentalRule
	}
	return models.CategoryStatute
}
