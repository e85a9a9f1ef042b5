// Package archive keeps the rendered documents of finalized interviews,
// on the local filesystem or in an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/interview-desk/internal/config"
)

// DocumentStore abstracts document storage backends.
type DocumentStore interface {
	// Save stores a document under key, replacing any previous version.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns a presigned download URL.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "s3".
	Type() string
}

// DocumentKey is the archive key of an interview's HTML document.
// Finalizing the same interview again overwrites it.
func DocumentKey(id int64) string {
	return fmt.Sprintf("interview_%d.html", id)
}

// New creates a DocumentStore based on config. Returns an error if S3 is
// configured but unreachable.
func New(cfg config.S3Config, exportDir string, log zerolog.Logger) (DocumentStore, error) {
	if !cfg.Enabled() {
		return NewLocalStore(exportDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")
	return s3store, nil
}
