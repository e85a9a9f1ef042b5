package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	return OpenSQLite(filepath.Join(t.TempDir(), "interviews.db"), zerolog.Nop())
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestSQLiteCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Create(ctx, NewInterview{
		Date:            mustDate(t, "2024-05-01"),
		Interviewer:     "Anna",
		IntervieweeInfo: "Age 34",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	iv, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, iv.ID)
	assert.Equal(t, "2024-05-01", iv.Date.String())
	assert.Equal(t, "Anna", iv.Interviewer)
	assert.Equal(t, "Age 34", iv.IntervieweeInfo)
	assert.Equal(t, "", iv.Transcription)
	assert.Equal(t, "", iv.Notes)
	assert.Equal(t, map[string]any{}, iv.Metadata)
	assert.False(t, iv.CreatedAt.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), iv.CreatedAt, time.Minute)
}

func TestSQLiteCreatePreservesInputsVerbatim(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inputs := []NewInterview{
		{Date: mustDate(t, "2023-12-31"), Interviewer: "Jörg Müller", IntervieweeInfo: "Familie, 2 Kinder"},
		{Date: mustDate(t, "2024-02-29"), Interviewer: "O'Brien", IntervieweeInfo: `quote " and <tag> & ; DROP TABLE interviews`},
		{Date: mustDate(t, "2024-07-15"), Interviewer: "  spaced  ", IntervieweeInfo: ""},
	}
	for _, in := range inputs {
		id, err := s.Create(ctx, in)
		require.NoError(t, err)

		iv, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, in.Date.String(), iv.Date.String())
		assert.Equal(t, in.Interviewer, iv.Interviewer)
		assert.Equal(t, in.IntervieweeInfo, iv.IntervieweeInfo)
		assert.Empty(t, iv.Transcription)
		assert.Empty(t, iv.Notes)
	}
}

func TestSQLiteMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Create(ctx, NewInterview{
		Date:        mustDate(t, "2024-05-01"),
		Interviewer: "Anna",
		Metadata:    map[string]any{"consent": true, "station": "Aviary 2"},
	})
	require.NoError(t, err)

	iv, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, true, iv.Metadata["consent"])
	assert.Equal(t, "Aviary 2", iv.Metadata["station"])
}

func TestSQLiteUpdatesReplaceWholeField(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-01"), Interviewer: "Anna"})
	require.NoError(t, err)

	require.NoError(t, s.SetTranscription(ctx, id, "first draft"))
	require.NoError(t, s.SetTranscription(ctx, id, "second"))
	require.NoError(t, s.SetNotes(ctx, id, "liked the owls"))

	iv, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", iv.Transcription)
	assert.Equal(t, "liked the owls", iv.Notes)

	require.NoError(t, s.SetNotes(ctx, id, ""))
	iv, err = s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", iv.Transcription, "notes update must not touch transcription")
	assert.Equal(t, "", iv.Notes)
}

func TestSQLiteUnknownID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.SetTranscription(ctx, 42, "x"), ErrNotFound)
	assert.ErrorIs(t, s.SetNotes(ctx, 42, "x"), ErrNotFound)
}

func TestSQLiteListAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	list, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-01"), Interviewer: name})
		require.NoError(t, err)
	}

	list, err = s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{list[0].Interviewer, list[1].Interviewer, list[2].Interviewer})

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLiteListAllReflectsWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-01"), Interviewer: "Anna"})
	require.NoError(t, err)
	_, err = s.ListAll(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SetTranscription(ctx, id, "fresh"))
	list, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].Transcription)
}

func TestSQLiteSchemaCreationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "interviews.db")

	first := OpenSQLite(path, zerolog.Nop())
	id, err := first.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-01"), Interviewer: "Anna"})
	require.NoError(t, err)

	// A second store over the same file re-runs the existence check and
	// must keep the existing rows.
	second := OpenSQLite(path, zerolog.Nop())
	iv, err := second.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Anna", iv.Interviewer)

	next, err := second.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-02"), Interviewer: "Ben"})
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestSQLiteRecreatesTableWhenFileRemoved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-01"), Interviewer: "Anna"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(s.Path()))

	id, err := s.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-02"), Interviewer: "Ben"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	iv, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ben", iv.Interviewer)
}

func TestSQLiteIDsNotReused(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		id, err := s.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-01"), Interviewer: "x"})
		require.NoError(t, err)
		assert.False(t, seen[id], "id %d reused", id)
		seen[id] = true
	}
}

func TestSQLiteMigrationCreatesIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Count(ctx)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", s.Path())
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_interviews_created_at'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteUnreachableIsPersistenceError(t *testing.T) {
	ctx := context.Background()
	s := OpenSQLite(filepath.Join(t.TempDir(), "missing", "dir", "interviews.db"), zerolog.Nop())

	_, err := s.Create(ctx, NewInterview{Date: mustDate(t, "2024-05-01"), Interviewer: "Anna"})
	require.Error(t, err)

	var pe *PersistenceError
	assert.True(t, errors.As(err, &pe), "expected *PersistenceError, got %T: %v", err, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = s.GetByID(ctx, 1)
	assert.True(t, errors.As(err, &pe), "read path must surface storage failure, got %v", err)

	assert.Error(t, s.HealthCheck(ctx))
}
