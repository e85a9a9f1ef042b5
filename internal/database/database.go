package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Store persists interview records. Both backends implement it.
type Store interface {
	// Create inserts a new interview with empty transcription and notes
	// and returns its assigned id.
	Create(ctx context.Context, in NewInterview) (int64, error)
	// SetTranscription replaces the transcription of interview id.
	// Returns ErrNotFound if no such interview exists.
	SetTranscription(ctx context.Context, id int64, text string) error
	// SetNotes replaces the notes of interview id.
	// Returns ErrNotFound if no such interview exists.
	SetNotes(ctx context.Context, id int64, text string) error
	// GetByID returns the interview or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Interview, error)
	// ListAll returns every interview, most recently created first.
	ListAll(ctx context.Context) ([]Interview, error)
	Count(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
	Backend() string
	Close()
}

// Open returns the Store selected by databaseURL. postgres:// and
// postgresql:// URLs use a pgx pool; anything else is treated as an
// SQLite database file (sqlite://path, file:path or a bare path).
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		pg, err := ConnectPostgres(ctx, databaseURL, log)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case databaseURL == "":
		return nil, fmt.Errorf("empty database url")
	default:
		return OpenSQLite(sqlitePath(databaseURL), log), nil
	}
}

// sqlitePath strips the sqlite:// scheme. file: URIs and bare paths pass
// through unchanged.
func sqlitePath(databaseURL string) string {
	if rest, ok := strings.CutPrefix(databaseURL, "sqlite://"); ok {
		return rest
	}
	return databaseURL
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
