package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout matches CURRENT_TIMESTAMP as rendered by strftime below.
const sqliteTimeLayout = "2006-01-02 15:04:05"

const sqliteColumns = `id, interview_date, COALESCE(interviewer, ''), COALESCE(interviewee_info, ''),
	COALESCE(transcription, ''), COALESCE(notes, ''), COALESCE(metadata, ''),
	strftime('%Y-%m-%d %H:%M:%S', created_at)`

// SQLiteStore keeps interviews in a single SQLite file. It holds no
// connection between operations: every call opens the file, ensures the
// schema, runs one statement and closes it again.
type SQLiteStore struct {
	path string
	dsn  string
	log  zerolog.Logger
}

// OpenSQLite returns a store for the database file at path. The file and
// table are created on first access.
func OpenSQLite(path string, log zerolog.Logger) *SQLiteStore {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	log.Info().Str("path", path).Msg("using sqlite interview store")
	return &SQLiteStore{
		path: path,
		dsn:  path + sep + "_pragma=busy_timeout(5000)",
		log:  log,
	}
}

func (s *SQLiteStore) Backend() string { return "sqlite" }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close is a no-op; connections are released after every operation.
func (s *SQLiteStore) Close() {}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.withDB(ctx, "health check", func(db *sql.DB) error {
		return db.PingContext(ctx)
	})
}

func (s *SQLiteStore) Create(ctx context.Context, in NewInterview) (int64, error) {
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.withDB(ctx, "create interview", func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO interviews (interview_date, interviewer, interviewee_info, transcription, notes, metadata)
			VALUES (?, ?, ?, '', '', ?)
		`, in.Date.String(), in.Interviewer, in.IntervieweeInfo, meta)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug().Int64("interview_id", id).Msg("interview created")
	return id, nil
}

func (s *SQLiteStore) SetTranscription(ctx context.Context, id int64, text string) error {
	return s.update(ctx, "set transcription", `UPDATE interviews SET transcription = ? WHERE id = ?`, id, text)
}

func (s *SQLiteStore) SetNotes(ctx context.Context, id int64, text string) error {
	return s.update(ctx, "set notes", `UPDATE interviews SET notes = ? WHERE id = ?`, id, text)
}

func (s *SQLiteStore) update(ctx context.Context, op, query string, id int64, text string) error {
	return s.withDB(ctx, op, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, query, text, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*Interview, error) {
	var iv *Interview
	err := s.withDB(ctx, "get interview", func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM interviews WHERE id = ?`, id)
		var err error
		iv, err = scanSQLiteInterview(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return iv, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]Interview, error) {
	result := []Interview{}
	err := s.withDB(ctx, "list interviews", func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM interviews ORDER BY created_at DESC, id DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			iv, err := scanSQLiteInterview(rows)
			if err != nil {
				return err
			}
			result = append(result, *iv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.withDB(ctx, "count interviews", func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT count(*) FROM interviews`).Scan(&n)
	})
	return n, err
}

// withDB opens the database, ensures the schema and runs fn. Storage
// failures come back as *PersistenceError; ErrNotFound passes through.
func (s *SQLiteStore) withDB(ctx context.Context, op string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := s.ensureSchema(ctx, db); err != nil {
		return &PersistenceError{Op: "ensure schema", Err: err}
	}

	if err := fn(db); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

// ensureSchema creates the interviews table if it does not exist yet and
// applies pending migrations. Existing data is never touched. It runs on
// every open, so a file replaced or removed underneath the store gets its
// table back.
func (s *SQLiteStore) ensureSchema(ctx context.Context, db *sql.DB) error {
	var n int
	if err := db.QueryRowContext(ctx, sqliteTableExists).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		s.log.Info().Str("path", s.path).Msg("fresh database detected, creating interviews table")
		if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
			return err
		}
	}

	return migrate(ctx, sqliteConn{db}, sqliteMigrations, s.log)
}

type sqliteConn struct {
	db *sql.DB
}

func (c sqliteConn) applied(ctx context.Context, check string) (bool, error) {
	var ok bool
	err := c.db.QueryRowContext(ctx, check).Scan(&ok)
	return ok, err
}

func (c sqliteConn) exec(ctx context.Context, query string) error {
	_, err := c.db.ExecContext(ctx, query)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteInterview(row rowScanner) (*Interview, error) {
	var (
		iv        Interview
		date      string
		meta      string
		createdAt sql.NullString
	)
	if err := row.Scan(&iv.ID, &date, &iv.Interviewer, &iv.IntervieweeInfo,
		&iv.Transcription, &iv.Notes, &meta, &createdAt); err != nil {
		return nil, err
	}

	if d, err := ParseDate(date); err == nil {
		iv.Date = d
	}
	iv.Metadata = decodeMetadata(meta)
	if createdAt.Valid {
		t, err := time.ParseInLocation(sqliteTimeLayout, createdAt.String, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt.String, err)
		}
		iv.CreatedAt = t
	}
	return &iv, nil
}
