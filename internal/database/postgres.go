package database

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const postgresColumns = `id, interview_date, COALESCE(interviewer, ''), COALESCE(interviewee_info, ''),
	COALESCE(transcription, ''), COALESCE(notes, ''), COALESCE(metadata, ''), created_at`

// PostgresStore keeps interviews in a PostgreSQL table through a pgx pool.
type PostgresStore struct {
	Pool        *pgxpool.Pool
	schemaReady atomic.Bool
	log         zerolog.Logger
}

// ConnectPostgres opens a small pool and verifies the server is reachable.
// The schema is ensured lazily on first use.
func ConnectPostgres(ctx context.Context, databaseURL string, log zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, &PersistenceError{Op: "parse database url", Err: err}
	}

	cfg.MaxConns = 4
	cfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &PersistenceError{Op: "connect", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &PersistenceError{Op: "ping", Err: err}
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("database connected")

	return &PostgresStore{Pool: pool, log: log}, nil
}

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.log.Info().Msg("closing database pool")
	s.Pool.Close()
}

func (s *PostgresStore) Create(ctx context.Context, in NewInterview) (int64, error) {
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return 0, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}

	var id int64
	err = s.Pool.QueryRow(ctx, `
		INSERT INTO interviews (interview_date, interviewer, interviewee_info, transcription, notes, metadata)
		VALUES ($1, $2, $3, '', '', $4)
		RETURNING id
	`, in.Date.String(), in.Interviewer, in.IntervieweeInfo, meta).Scan(&id)
	if err != nil {
		return 0, &PersistenceError{Op: "create interview", Err: err}
	}
	return id, nil
}

func (s *PostgresStore) SetTranscription(ctx context.Context, id int64, text string) error {
	return s.update(ctx, "set transcription", `UPDATE interviews SET transcription = $2 WHERE id = $1`, id, text)
}

func (s *PostgresStore) SetNotes(ctx context.Context, id int64, text string) error {
	return s.update(ctx, "set notes", `UPDATE interviews SET notes = $2 WHERE id = $1`, id, text)
}

func (s *PostgresStore) update(ctx context.Context, op, query string, id int64, text string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, query, id, text)
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Interview, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	iv, err := scanPostgresInterview(s.Pool.QueryRow(ctx,
		`SELECT `+postgresColumns+` FROM interviews WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get interview", Err: err}
	}
	return iv, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Interview, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+postgresColumns+` FROM interviews ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, &PersistenceError{Op: "list interviews", Err: err}
	}
	defer rows.Close()

	result := []Interview{}
	for rows.Next() {
		iv, err := scanPostgresInterview(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan interview", Err: err}
		}
		result = append(result, *iv)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list interviews", Err: err}
	}
	return result, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM interviews`).Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count interviews", Err: err}
	}
	return n, nil
}

// ensureSchema checks for the interviews table and creates it if missing.
// If present, it only runs pending migrations.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s.schemaReady.Load() {
		return nil
	}

	var exists bool
	if err := s.Pool.QueryRow(ctx, postgresTableExists).Scan(&exists); err != nil {
		return &PersistenceError{Op: "ensure schema", Err: err}
	}
	if !exists {
		s.log.Info().Msg("fresh database detected, creating interviews table")
		if _, err := s.Pool.Exec(ctx, postgresSchema); err != nil {
			return &PersistenceError{Op: "ensure schema", Err: err}
		}
	}

	if err := migrate(ctx, postgresConn{s.Pool}, postgresMigrations, s.log); err != nil {
		return &PersistenceError{Op: "ensure schema", Err: err}
	}
	s.schemaReady.Store(true)
	return nil
}

type postgresConn struct {
	pool *pgxpool.Pool
}

func (c postgresConn) applied(ctx context.Context, check string) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx, check).Scan(&ok)
	return ok, err
}

func (c postgresConn) exec(ctx context.Context, query string) error {
	_, err := c.pool.Exec(ctx, query)
	return err
}

func scanPostgresInterview(row pgx.Row) (*Interview, error) {
	var (
		iv   Interview
		date string
		meta string
	)
	if err := row.Scan(&iv.ID, &date, &iv.Interviewer, &iv.IntervieweeInfo,
		&iv.Transcription, &iv.Notes, &meta, &iv.CreatedAt); err != nil {
		return nil, err
	}
	if d, err := ParseDate(date); err == nil {
		iv.Date = d
	}
	iv.Metadata = decodeMetadata(meta)
	return &iv, nil
}
