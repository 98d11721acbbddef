package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaVersion is recorded in the metadata table after Migrate
const SchemaVersion = "4"

// SchemaStatement is one named DDL step
type SchemaStatement struct {
	Name string
	SQL  string
}

// Schema lists the DDL for the persisted store layout in dependency order.
// Every statement is idempotent.
var Schema = []SchemaStatement{
	{
		Name: "pg_trgm extension",
		SQL:  `CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	},
	{
		Name: "laws table",
		SQL: `
CREATE TABLE IF NOT EXISTS laws (
    id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    short_title TEXT NOT NULL DEFAULT '',
    category VARCHAR(40) NOT NULL CHECK (category IN ('statute', 'administrative_regulation', 'judicial_interpretation', 'departmental_rule')),
    issuing_authority TEXT NOT NULL DEFAULT '',
    document_number TEXT NOT NULL DEFAULT '',
    publish_date DATE NOT NULL,
    effective_date DATE,
    expiry_date DATE,
    status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'amended', 'repealed')),
    source_ref TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    preamble TEXT NOT NULL DEFAULT '',
    structure JSONB NOT NULL DEFAULT '{}'::jsonb,
    content_hash VARCHAR(64) NOT NULL,
    archive_path TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT laws_title_publish_unique UNIQUE (title, publish_date)
)`,
	},
	{
		Name: "articles table",
		SQL: `
CREATE TABLE IF NOT EXISTS articles (
    id UUID PRIMARY KEY,
    law_id UUID NOT NULL REFERENCES laws(id) ON DELETE CASCADE,
    part TEXT NOT NULL DEFAULT '',
    sub_part TEXT NOT NULL DEFAULT '',
    chapter TEXT NOT NULL DEFAULT '',
    section TEXT NOT NULL DEFAULT '',
    chapter_path TEXT NOT NULL DEFAULT '',
    number TEXT NOT NULL,
    ordering_index DOUBLE PRECISION NOT NULL,
    range_end DOUBLE PRECISION NOT NULL DEFAULT 0,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT articles_order_unique UNIQUE (law_id, ordering_index)
)`,
	},
	{
		Name: "law_aliases table",
		SQL: `
CREATE TABLE IF NOT EXISTS law_aliases (
    alias TEXT PRIMARY KEY,
    law_id UUID NOT NULL REFERENCES laws(id) ON DELETE CASCADE,
    alias_type VARCHAR(20) NOT NULL CHECK (alias_type IN ('common_shortname', 'abbreviation', 'keyword')),
    confidence DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	},
	{
		Name: "concept_synonyms table",
		SQL: `
CREATE TABLE IF NOT EXISTS concept_synonyms (
    id BIGSERIAL PRIMARY KEY,
    term TEXT NOT NULL,
    canonical TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT concept_synonyms_pair_unique UNIQUE (term, canonical)
)`,
	},
	{
		Name: "revisions table",
		SQL: `
CREATE TABLE IF NOT EXISTS revisions (
    id UUID PRIMARY KEY,
    law_id UUID NOT NULL REFERENCES laws(id) ON DELETE CASCADE,
    prior_law_id UUID REFERENCES laws(id) ON DELETE SET NULL,
    revision_type VARCHAR(20) NOT NULL CHECK (revision_type IN ('amendment', 'interpretation')),
    note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	},
	{
		Name: "cross_references table",
		SQL: `
CREATE TABLE IF NOT EXISTS cross_references (
    id BIGSERIAL PRIMARY KEY,
    law_id UUID NOT NULL REFERENCES laws(id) ON DELETE CASCADE,
    article_index DOUBLE PRECISION NOT NULL,
    citing_law_id UUID NOT NULL REFERENCES laws(id) ON DELETE CASCADE,
    citing_index DOUBLE PRECISION NOT NULL,
    ref_type VARCHAR(20) NOT NULL CHECK (ref_type IN ('interpretation', 'citation')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT cross_references_link_unique UNIQUE (law_id, article_index, citing_law_id, citing_index)
)`,
	},
	{
		Name: "metadata table",
		SQL: `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	},
	{
		Name: "laws_fts trigram mirror",
		SQL: `
CREATE TABLE IF NOT EXISTS laws_fts (
    law_id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL
)`,
	},
	{
		Name: "laws_fts sync triggers",
		SQL: `
CREATE OR REPLACE FUNCTION laws_fts_sync() RETURNS trigger AS $$
BEGIN
    IF TG_OP = 'DELETE' THEN
        DELETE FROM laws_fts WHERE law_id = OLD.id;
        RETURN OLD;
    ELSIF TG_OP = 'UPDATE' THEN
        UPDATE laws_fts SET title = NEW.title, content = NEW.content WHERE law_id = NEW.id;
        RETURN NEW;
    END IF;
    INSERT INTO laws_fts (law_id, title, content) VALUES (NEW.id, NEW.title, NEW.content);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS laws_fts_insert ON laws;
CREATE TRIGGER laws_fts_insert AFTER INSERT ON laws
    FOR EACH ROW EXECUTE FUNCTION laws_fts_sync();
DROP TRIGGER IF EXISTS laws_fts_update ON laws;
CREATE TRIGGER laws_fts_update AFTER UPDATE OF title, content ON laws
    FOR EACH ROW EXECUTE FUNCTION laws_fts_sync();
DROP TRIGGER IF EXISTS laws_fts_delete ON laws;
CREATE TRIGGER laws_fts_delete AFTER DELETE ON laws
    FOR EACH ROW EXECUTE FUNCTION laws_fts_sync();`,
	},
	{
		Name: "revisions append-only trigger",
		SQL: `
CREATE OR REPLACE FUNCTION revisions_append_only() RETURNS trigger AS $$
BEGIN
    IF NEW.law_id IS DISTINCT FROM OLD.law_id
        OR NEW.revision_type IS DISTINCT FROM OLD.revision_type
        OR NEW.note IS DISTINCT FROM OLD.note THEN
        RAISE EXCEPTION 'revisions are append-only';
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS revisions_no_update ON revisions;
CREATE TRIGGER revisions_no_update BEFORE UPDATE ON revisions
    FOR EACH ROW EXECUTE FUNCTION revisions_append_only();`,
	},
	{
		Name: "indexes",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_laws_fts_title_trgm ON laws_fts USING gin (title gin_trgm_ops);
CREATE INDEX IF NOT EXISTS idx_laws_fts_content_trgm ON laws_fts USING gin (content gin_trgm_ops);
CREATE INDEX IF NOT EXISTS idx_laws_status ON laws(status);
CREATE INDEX IF NOT EXISTS idx_laws_category ON laws(category);
CREATE INDEX IF NOT EXISTS idx_articles_law ON articles(law_id, ordering_index);
CREATE INDEX IF NOT EXISTS idx_aliases_law ON law_aliases(law_id);
CREATE INDEX IF NOT EXISTS idx_synonyms_term ON concept_synonyms(term);
CREATE INDEX IF NOT EXISTS idx_revisions_law ON revisions(law_id, created_at);
CREATE INDEX IF NOT EXISTS idx_cross_refs_citing ON cross_references(citing_law_id);`,
	},
}

// Migrate applies the schema and records its version
func Migrate(ctx context.Context, db *pgxpool.Pool, progress func(name string)) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt.SQL); err != nil {
			return fmt.Errorf("failed to apply %s: %w", stmt.Name, err)
		}
		if progress != nil {
			progress(stmt.Name)
		}
	}

	_, err := db.Exec(ctx, `
		INSERT INTO metadata (key, value) VALUES ('schema_version', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
