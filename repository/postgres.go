package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing pool
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects and pings. maxConns caps the pool when positive.
func OpenPostgres(ctx context.Context, connString string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const lawColumns = `
	id, title, short_title, category, issuing_authority, document_number,
	publish_date, effective_date, expiry_date, status, source_ref,
	content, preamble, structure, content_hash, archive_path,
	created_at, updated_at`

const lawSummaryColumns = `
	id, title, short_title, category, issuing_authority, document_number,
	publish_date, effective_date, expiry_date, status, source_ref,
	'' AS content, preamble, '{}'::jsonb AS structure, content_hash, archive_path,
	created_at, updated_at`

const articleColumns = `
	id, law_id, part, sub_part, chapter, section, chapter_path,
	number, ordering_index, range_end, content, created_at`

func scanLaw(row pgx.Row) (*models.Law, error) {
	law := &models.Law{}
	err := row.Scan(
		&law.ID,
		&law.Title,
		&law.ShortTitle,
		&law.Category,
		&law.IssuingAuthority,
		&law.DocumentNumber,
		&law.PublishDate,
		&law.EffectiveDate,
		&law.ExpiryDate,
		&law.Status,
		&law.SourceRef,
		&law.Content,
		&law.Preamble,
		&law.Structure,
		&law.ContentHash,
		&law.ArchivePath,
		&law.CreatedAt,
		&law.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return law, nil
}

func scanArticle(row pgx.Row) (*models.Article, error) {
	a := &models.Article{}
	err := row.Scan(
		&a.ID,
		&a.LawID,
		&a.Part,
		&a.SubPart,
		&a.Chapter,
		&a.Section,
		&a.ChapterPath,
		&a.Number,
		&a.OrderingIndex,
		&a.RangeEnd,
		&a.Content,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SaveLaw upserts the law keyed by (title, publish date) and replaces its
// articles inside one transaction holding a per-law advisory lock
func (s *PostgresStore) SaveLaw(ctx context.Context, law *models.Law, articles []models.Article) (*SaveResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	key := LawKey(law.Title, law.PublishDate)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return nil, fmt.Errorf("failed to lock law %s: %w", key, err)
	}

	existing, err := scanLaw(tx.QueryRow(ctx,
		`SELECT `+lawColumns+` FROM laws WHERE title = $1 AND publish_date = $2 FOR UPDATE`,
		law.Title, law.PublishDate))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read existing law: %w", err)
	}
	if existing != nil && law.ID != uuid.Nil && existing.ID != law.ID {
		return nil, fmt.Errorf("%w: %q published %s already exists as %s",
			models.ErrValidationConflict, law.Title, law.PublishDate.Format("2006-01-02"), existing.ID)
	}

	result := &SaveResult{}
	if existing != nil && sameRevision(existing, law) {
		arts, err := queryArticles(ctx, tx, existing.ID)
		if err != nil {
			return nil, err
		}
		result.Law, result.Articles = existing, arts
		return result, tx.Commit(ctx)
	}

	next := *law
	if existing != nil {
		next.ID = existing.ID
		if next.ArchivePath == "" {
			next.ArchivePath = existing.ArchivePath
		}
	} else if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO laws (
			id, title, short_title, category, issuing_authority, document_number,
			publish_date, effective_date, expiry_date, status, source_ref,
			content, preamble, structure, content_hash, archive_path
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			short_title = EXCLUDED.short_title,
			category = EXCLUDED.category,
			issuing_authority = EXCLUDED.issuing_authority,
			document_number = EXCLUDED.document_number,
			publish_date = EXCLUDED.publish_date,
			effective_date = EXCLUDED.effective_date,
			expiry_date = EXCLUDED.expiry_date,
			status = EXCLUDED.status,
			source_ref = EXCLUDED.source_ref,
			content = EXCLUDED.content,
			preamble = EXCLUDED.preamble,
			structure = EXCLUDED.structure,
			content_hash = EXCLUDED.content_hash,
			archive_path = EXCLUDED.archive_path,
			updated_at = NOW()
		RETURNING created_at, updated_at, (xmax = 0) AS inserted`,
		next.ID,
		next.Title,
		next.ShortTitle,
		next.Category,
		next.IssuingAuthority,
		next.DocumentNumber,
		next.PublishDate,
		next.EffectiveDate,
		next.ExpiryDate,
		next.Status,
		next.SourceRef,
		next.Content,
		next.Preamble,
		next.Structure,
		next.ContentHash,
		next.ArchivePath,
	).Scan(&next.CreatedAt, &next.UpdatedAt, &result.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q published %s: %v", models.ErrValidationConflict,
				law.Title, law.PublishDate.Format("2006-01-02"), err)
		}
		return nil, fmt.Errorf("failed to upsert law: %w", err)
	}

	prepared, err := prepareArticles(next.ID, articles, next.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM articles WHERE law_id = $1`, next.ID); err != nil {
		return nil, fmt.Errorf("failed to clear articles: %w", err)
	}

	batch := &pgx.Batch{}
	for _, a := range prepared {
		batch.Queue(`
			INSERT INTO articles (
				id, law_id, part, sub_part, chapter, section, chapter_path,
				number, ordering_index, range_end, content, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			a.ID, a.LawID, a.Part, a.SubPart, a.Chapter, a.Section, a.ChapterPath,
			a.Number, a.OrderingIndex, a.RangeEnd, a.Content, a.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("failed to insert articles: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit law: %w", err)
	}

	result.Changed = true
	result.Law = &next
	result.Articles = prepared
	return result, nil
}

// GetLaw retrieves a law by ID
func (s *PostgresStore) GetLaw(ctx context.Context, id uuid.UUID) (*models.Law, error) {
	law, err := scanLaw(s.db.QueryRow(ctx, `SELECT `+lawColumns+` FROM laws WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "law "+id.String())
	}
	return law, nil
}

// FindLaw retrieves a law by title and publish date
func (s *PostgresStore) FindLaw(ctx context.Context, title string, publishDate time.Time) (*models.Law, error) {
	law, err := scanLaw(s.db.QueryRow(ctx,
		`SELECT `+lawColumns+` FROM laws WHERE title = $1 AND publish_date = $2`, title, publishDate))
	if err != nil {
		return nil, notFound(err, "law "+title)
	}
	return law, nil
}

func (s *PostgresStore) queryLaws(ctx context.Context, query string, args ...interface{}) ([]models.Law, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query laws: %w", err)
	}
	defer rows.Close()

	var laws []models.Law
	for rows.Next() {
		law, err := scanLaw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan law: %w", err)
		}
		laws = append(laws, *law)
	}
	return laws, rows.Err()
}

// ListLaws returns every law without its full text
func (s *PostgresStore) ListLaws(ctx context.Context) ([]models.Law, error) {
	return s.queryLaws(ctx, `SELECT `+lawSummaryColumns+` FROM laws ORDER BY title, publish_date`)
}

// LawsByTitle returns every version of a title, newest publish date first
func (s *PostgresStore) LawsByTitle(ctx context.Context, title string) ([]models.Law, error) {
	core := strings.TrimFunc(title, func(r rune) bool {
		return unicode.IsSpace(r) || r == '《' || r == '》'
	})
	laws, err := s.queryLaws(ctx, `SELECT `+lawSummaryColumns+` FROM laws WHERE title = $1 ORDER BY publish_date DESC`, core)
	if err != nil {
		return nil, err
	}
	key := normalize.Name(title)
	out := laws[:0]
	for _, l := range laws {
		if normalize.Name(l.Title) == key {
			out = append(out, l)
		}
	}
	return out, nil
}

func queryArticles(ctx context.Context, q interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}, lawID uuid.UUID) ([]models.Article, error) {
	rows, err := q.Query(ctx, `SELECT `+articleColumns+` FROM articles WHERE law_id = $1 ORDER BY ordering_index`, lawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// GetArticles returns a law's articles in ordering-index order
func (s *PostgresStore) GetArticles(ctx context.Context, lawID uuid.UUID) ([]models.Article, error) {
	if _, err := s.GetLaw(ctx, lawID); err != nil {
		return nil, err
	}
	return queryArticles(ctx, s.db, lawID)
}

// GetArticle returns the article covering an ordering index
func (s *PostgresStore) GetArticle(ctx context.Context, lawID uuid.UUID, index float64) (*models.Article, error) {
	a, err := scanArticle(s.db.QueryRow(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE law_id = $1
			AND (ordering_index = $2 OR (range_end > 0 AND $2 = trunc($2) AND $2 BETWEEN ordering_index AND range_end))
		ORDER BY ordering_index
		LIMIT 1`, lawID, index))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("article %v of law %s", index, lawID))
	}
	return a, nil
}

// PurgeLaw removes a law; articles, aliases, revisions and cross-references
// cascade
func (s *PostgresStore) PurgeLaw(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM laws WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to purge law: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("law %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListAliases returns every alias ordered by alias text
func (s *PostgresStore) ListAliases(ctx context.Context) ([]models.Alias, error) {
	rows, err := s.db.Query(ctx, `
		SELECT alias, law_id, alias_type, confidence, created_at
		FROM law_aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer rows.Close()

	var aliases []models.Alias
	for rows.Next() {
		var a models.Alias
		if err := rows.Scan(&a.Alias, &a.LawID, &a.Type, &a.Confidence, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// UpsertAlias writes an alias unless an existing mapping has higher
// confidence, in which case ErrValidationConflict is returned and the
// existing row is untouched
func (s *PostgresStore) UpsertAlias(ctx context.Context, alias *models.Alias) error {
	alias.Alias = normalize.Name(alias.Alias)
	err := s.db.QueryRow(ctx, `
		INSERT INTO law_aliases (alias, law_id, alias_type, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (alias) DO UPDATE SET
			law_id = EXCLUDED.law_id,
			alias_type = EXCLUDED.alias_type,
			confidence = EXCLUDED.confidence
		WHERE law_aliases.confidence <= EXCLUDED.confidence
		RETURNING created_at`,
		alias.Alias, alias.LawID, alias.Type, alias.Confidence,
	).Scan(&alias.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("alias %q: %w", alias.Alias, models.ErrValidationConflict)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("alias target %s: %w", alias.LawID, models.ErrNotFound)
	}
	return err
}

// ListSynonyms returns every concept synonym
func (s *PostgresStore) ListSynonyms(ctx context.Context) ([]models.ConceptSynonym, error) {
	rows, err := s.db.Query(ctx, `SELECT id, term, canonical, created_at FROM concept_synonyms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query synonyms: %w", err)
	}
	defer rows.Close()

	var syns []models.ConceptSynonym
	for rows.Next() {
		var syn models.ConceptSynonym
		if err := rows.Scan(&syn.ID, &syn.Term, &syn.Canonical, &syn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan synonym: %w", err)
		}
		syns = append(syns, syn)
	}
	return syns, rows.Err()
}

// AddSynonym records a synonym; repeating an existing pair is a no-op
func (s *PostgresStore) AddSynonym(ctx context.Context, syn *models.ConceptSynonym) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO concept_synonyms (term, canonical) VALUES ($1, $2)
		ON CONFLICT (term, canonical) DO UPDATE SET term = EXCLUDED.term
		RETURNING id, created_at`,
		syn.Term, syn.Canonical,
	).Scan(&syn.ID, &syn.CreatedAt)
}

// AppendRevision records a revision
func (s *PostgresStore) AppendRevision(ctx context.Context, rev *models.Revision) error {
	if rev.ID == uuid.Nil {
		rev.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO revisions (id, law_id, prior_law_id, revision_type, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		rev.ID, rev.LawID, rev.PriorLawID, rev.Type, rev.Note,
	).Scan(&rev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append revision: %w", err)
	}
	return nil
}

// ListRevisions returns a law's revisions oldest first
func (s *PostgresStore) ListRevisions(ctx context.Context, lawID uuid.UUID) ([]models.Revision, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, law_id, prior_law_id, revision_type, note, created_at
		FROM revisions WHERE law_id = $1 ORDER BY created_at, id`, lawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var revs []models.Revision
	for rows.Next() {
		var r models.Revision
		if err := rows.Scan(&r.ID, &r.LawID, &r.PriorLawID, &r.Type, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// ReplaceCrossReferences swaps every link whose citing article belongs to
// citingLawID for refs in one transaction. Repeated links are stored once.
func (s *PostgresStore) ReplaceCrossReferences(ctx context.Context, citingLawID uuid.UUID, refs []models.CrossReference) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cross_references WHERE citing_law_id = $1`, citingLawID); err != nil {
		return fmt.Errorf("failed to clear cross-references: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range refs {
		batch.Queue(`
			INSERT INTO cross_references (law_id, article_index, citing_law_id, citing_index, ref_type)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (law_id, article_index, citing_law_id, citing_index) DO NOTHING`,
			r.LawID, r.ArticleIndex, citingLawID, r.CitingIndex, r.Type,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("cross-reference law: %w", models.ErrNotFound)
		}
		return fmt.Errorf("failed to insert cross-references: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cross-references: %w", err)
	}
	return nil
}

// CrossReferences returns the links pointing at one article
func (s *PostgresStore) CrossReferences(ctx context.Context, lawID uuid.UUID, index float64) ([]models.CrossReference, error) {
	rows, err := s.db.Query(ctx, `
		SELECT law_id, article_index, citing_law_id, citing_index, ref_type, created_at
		FROM cross_references WHERE law_id = $1 AND article_index = $2`, lawID, index)
	if err != nil {
		return nil, fmt.Errorf("failed to query cross-references: %w", err)
	}
	defer rows.Close()

	var refs []models.CrossReference
	for rows.Next() {
		var r models.CrossReference
		if err := rows.Scan(&r.LawID, &r.ArticleIndex, &r.CitingLawID, &r.CitingIndex, &r.Type, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cross-reference: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortCrossReferences(refs)
	return refs, nil
}

// SetMetadata writes a metadata value
func (s *PostgresStore) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO metadata (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	return err
}

// GetMetadata reads a metadata value
func (s *PostgresStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", notFound(err, "metadata "+key)
	}
	return value, nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.db.Close()
}
