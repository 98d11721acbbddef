package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sublatesublate-design/legal-database/cache"
	"github.com/sublatesublate-design/legal-database/logger"
	"github.com/sublatesublate-design/legal-database/metrics"
	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"
	"github.com/sublatesublate-design/legal-database/pool"
	"github.com/sublatesublate-design/legal-database/repository"
	"github.com/sublatesublate-design/legal-database/resolver"
	"github.com/sublatesublate-design/legal-database/search"
	"github.com/sublatesublate-design/legal-database/verify"

	"github.com/google/uuid"
)

// DefaultRequestTimeout bounds a tool call when none is configured
const DefaultRequestTimeout = 10 * time.Second

// LawService answers the read-side tool calls
type LawService struct {
	store      repository.Store
	engine     *search.Engine
	resolver   *resolver.Resolver
	cache      *cache.Cache
	pool       *pool.Pool
	metrics    *metrics.Metrics
	log        *logger.Logger
	thresholds verify.Thresholds
	timeout    time.Duration
	now        func() time.Time

	verifier *verify.Verifier
}

// LawServiceOption is a functional option for LawService
type LawServiceOption func(*LawService)

// WithStore sets the store
func WithStore(store repository.Store) LawServiceOption {
	return func(s *LawService) {
		s.store = store
	}
}

// WithEngine sets the search engine
func WithEngine(engine *search.Engine) LawServiceOption {
	return func(s *LawService) {
		s.engine = engine
	}
}

// WithResolver sets the alias resolver
func WithResolver(r *resolver.Resolver) LawServiceOption {
	return func(s *LawService) {
		s.resolver = r
	}
}

// WithCache sets the query-result cache
func WithCache(c *cache.Cache) LawServiceOption {
	return func(s *LawService) {
		s.cache = c
	}
}

// WithPool sets the store handle pool
func WithPool(p *pool.Pool) LawServiceOption {
	return func(s *LawService) {
		s.pool = p
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) LawServiceOption {
	return func(s *LawService) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) LawServiceOption {
	return func(s *LawService) {
		s.log = l
	}
}

// WithThresholds sets the citation classification bands
func WithThresholds(t verify.Thresholds) LawServiceOption {
	return func(s *LawService) {
		s.thresholds = t
	}
}

// WithRequestTimeout sets the per-call deadline
func WithRequestTimeout(d time.Duration) LawServiceOption {
	return func(s *LawService) {
		s.timeout = d
	}
}

// WithClock sets the time source used for validity checks
func WithClock(now func() time.Time) LawServiceOption {
	return func(s *LawService) {
		s.now = now
	}
}

// NewLawService creates a new law service. Store, engine and resolver are
// required; the rest fall back to defaults.
func NewLawService(opts ...LawServiceOption) (*LawService, error) {
	s := &LawService{
		thresholds: verify.DefaultThresholds(),
		timeout:    DefaultRequestTimeout,
		now:        time.Now,
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
	if err := s.thresholds.Validate(); err != nil {
		return nil, err
	}
	if s.cache == nil {
		s.cache = cache.New(cache.DefaultConfig())
	}
	if s.pool == nil {
		var observer pool.Observer
		if s.metrics != nil {
			observer = s.metrics
		}
		s.pool = pool.New(pool.DefaultConfig(), observer)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.Component("tools")

	reader := &corpusReader{s: s}
	s.verifier = verify.New(reader, reader, s.thresholds)
	return s, nil
}

// Cache returns the query-result cache
func (s *LawService) Cache() *cache.Cache {
	return s.cache
}

// Pool returns the store handle pool
func (s *LawService) Pool() *pool.Pool {
	return s.pool
}

// call runs one tool operation under the request timeout and records it
func (s *LawService) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && ctx.Err() != nil && !errors.Is(err, models.ErrTimeout) {
		err = fmt.Errorf("%w: %s: %v", models.ErrTimeout, op, err)
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordToolCall(op, Outcome(err), elapsed)
	}
	s.log.LogToolCall(op, elapsed, err)
	return err
}

// read runs a store read while holding a pool slot
func (s *LawService) read(ctx context.Context, op string, fn func(ctx context.Context) (int, error)) error {
	start := time.Now()
	var n int
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = fn(ctx)
		return err
	})
	s.log.LogDbOperation(op, time.Since(start), n, err)
	return err
}

// Outcome labels an error for metrics
func Outcome(err error) string {
	var ambiguous *models.AmbiguousError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ambiguous), errors.Is(err, models.ErrAmbiguousMatch):
		return "ambiguous"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, models.ErrValidationConflict):
		return "conflict"
	case errors.Is(err, models.ErrResourceExhausted):
		return "exhausted"
	case errors.Is(err, models.ErrTimeout):
		return "timeout"
	}
	return "error"
}

func cached[T any](ctx context.Context, c *cache.Cache, key string, tags []string, load func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.GetOrLoad(ctx, key, tags, func(ctx context.Context) (interface{}, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func indexKey(index float64) string {
	return strconv.FormatFloat(index, 'f', -1, 64)
}

// law reads a law by id through the cache. Cached values are shared and
// must not be modified.
func (s *LawService) law(ctx context.Context, id uuid.UUID) (*models.Law, error) {
	return cached(ctx, s.cache, cache.Key("law", id.String()), []string{cache.LawTag(id.String())},
		func(ctx context.Context) (*models.Law, error) {
			var law *models.Law
			err := s.read(ctx, "get_law", func(ctx context.Context) (int, error) {
				var err error
				law, err = s.store.GetLaw(ctx, id)
				return 1, err
			})
			return law, err
		})
}

// articles reads a law's ordered articles through the cache
func (s *LawService) articles(ctx context.Context, lawID uuid.UUID) ([]models.Article, error) {
	return cached(ctx, s.cache, cache.Key("articles", lawID.String()), []string{cache.LawTag(lawID.String())},
		func(ctx context.Context) ([]models.Article, error) {
			var arts []models.Article
			err := s.read(ctx, "get_articles", func(ctx context.Context) (int, error) {
				var err error
				arts, err = s.store.GetArticles(ctx, lawID)
				return len(arts), err
			})
			return arts, err
		})
}

// resolve maps a name to one law through the cache
func (s *LawService) resolve(ctx context.Context, name string) (*resolver.Resolution, error) {
	return cached(ctx, s.cache, cache.Key("resolve", normalize.Name(name)), []string{cache.CorpusTag},
		func(ctx context.Context) (*resolver.Resolution, error) {
			return s.resolver.Resolve(ctx, name)
		})
}

// Miss explains why a law reference did not lead to one law
type Miss struct {
	Reason     string             `json:"reason"`
	Candidates []models.Candidate `json:"candidates,omitempty"`
}

// lookupLaw accepts a law id or a free-form name. Expected misses come back
// as a Miss; the error is reserved for invalid input and infrastructure.
func (s *LawService) lookupLaw(ctx context.Context, ref string) (*models.Law, *Miss, error) {
	ref = strings.TrimSpace(ref)
	if normalize.Name(ref) == "" {
		return nil, nil, fmt.Errorf("%w: law title or id is required", models.ErrInvalidInput)
	}

	id, err := uuid.Parse(ref)
	if err != nil {
		res, rerr := s.resolve(ctx, ref)
		var ambiguous *models.AmbiguousError
		switch {
		case errors.As(rerr, &ambiguous):
			return nil, &Miss{Reason: verify.ReasonAmbiguous, Candidates: ambiguous.Candidates}, nil
		case errors.Is(rerr, models.ErrNotFound):
			return nil, &Miss{Reason: verify.ReasonLawNotFound}, nil
		case rerr != nil:
			return nil, nil, rerr
		}
		id = res.Best.LawID
	}

	law, err := s.law(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &Miss{Reason: verify.ReasonLawNotFound}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return law, nil, nil
}

// corpusReader adapts the cached reads to the verifier
type corpusReader struct {
	s *LawService
}

func (r *corpusReader) Resolve(ctx context.Context, name string) (*resolver.Resolution, error) {
	return r.s.resolve(ctx, name)
}

func (r *corpusReader) Law(ctx context.Context, id uuid.UUID) (*models.Law, error) {
	return r.s.law(ctx, id)
}

func (r *corpusReader) Article(ctx context.Context, lawID uuid.UUID, index float64) (*models.Article, error) {
	arts, err := r.s.articles(ctx, lawID)
	if err != nil {
		return nil, err
	}
	if i := findArticle(arts, index); i >= 0 {
		return &arts[i], nil
	}
	return nil, fmt.Errorf("article %v of law %s: %w", index, lawID, models.ErrNotFound)
}

func findArticle(arts []models.Article, index float64) int {
	for i := range arts {
		if arts[i].Covers(index) {
			return i
		}
	}
	return -1
}
