// Package storage archives the raw text of ingested documents so every
// stored revision can be re-parsed from its source.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ErrNotArchived is returned when a key has no archived document
var ErrNotArchived = errors.New("document not archived")

// Archive stores raw document text by law and content hash
type Archive interface {
	// Put stores a document revision and returns its key
	Put(ctx context.Context, lawID uuid.UUID, contentHash string, data io.Reader) (string, error)

	// Get opens an archived document by key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes every archived revision of a law
	Delete(ctx context.Context, lawID uuid.UUID) error
}

// Type represents the archive backend
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
	TypeNone  Type = "none"
)

// Config holds archive configuration
type Config struct {
	Type         Type
	LocalPath    string // for local storage
	S3Bucket     string // for S3 storage
	S3Region     string // for S3 storage
	AWSAccessKey string
	AWSSecretKey string
}

// New creates an archive for the configured backend. TypeNone returns a nil
// archive; ingestion then skips archiving.
func New(ctx context.Context, cfg Config) (Archive, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalArchive(cfg.LocalPath)
	case TypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET is required for S3 storage")
		}
		return NewS3Archive(ctx, cfg)
	case TypeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// lawPrefix groups a law's revisions under one directory
func lawPrefix(lawID uuid.UUID) string {
	id := lawID.String()
	return fmt.Sprintf("laws/%s/%s", id[:2], id)
}

// documentKey is content addressed: archiving the same text twice yields
// the same key
func documentKey(lawID uuid.UUID, contentHash string) string {
	if len(contentHash) > 32 {
		contentHash = contentHash[:32]
	}
	return fmt.Sprintf("%s/%s.txt", lawPrefix(lawID), contentHash)
}
