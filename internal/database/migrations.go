package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// sqliteMigrations and postgresMigrations are applied in order after the
// interviews table exists. Each must be idempotent.
var sqliteMigrations = []migration{
	{
		name:  "add interviews created_at index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_interviews_created_at ON interviews (created_at DESC)`,
		check: `SELECT count(*) > 0 FROM sqlite_master WHERE type = 'index' AND name = 'idx_interviews_created_at'`,
	},
}

var postgresMigrations = []migration{
	{
		name:  "add interviews created_at index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_interviews_created_at ON interviews (created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_interviews_created_at')`,
	},
}

// migrationConn is the slice of a backend connection the runner needs.
type migrationConn interface {
	applied(ctx context.Context, check string) (bool, error)
	exec(ctx context.Context, sql string) error
}

// migrate runs all pending migrations. A failed check is treated as
// "not applied"; a failed apply stops the run and returns a MigrationError.
func migrate(ctx context.Context, conn migrationConn, list []migration, log zerolog.Logger) error {
	var pending []migration
	for _, m := range list {
		if m.check != "" {
			if ok, err := conn.applied(ctx, m.check); err == nil && ok {
				continue
			}
		}
		pending = append(pending, m)
	}

	applied := 0
	for _, m := range pending {
		if err := conn.exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	if applied > 0 {
		log.Info().Int("applied", applied).Msg("schema migrations complete")
	}
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Apply the following SQL manually to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
