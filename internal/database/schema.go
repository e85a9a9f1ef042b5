package database

// The interviews table. Columns mirror the export field set; interview_date
// is text (YYYY-MM-DD) and metadata is a serialized JSON object.

const sqliteTableExists = `SELECT count(name) FROM sqlite_master WHERE type = 'table' AND name = 'interviews'`

const sqliteSchema = `
CREATE TABLE interviews (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	interview_date TEXT NOT NULL,
	interviewer TEXT,
	interviewee_info TEXT,
	transcription TEXT,
	notes TEXT,
	metadata TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

const postgresTableExists = `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = current_schema() AND tablename = 'interviews')`

const postgresSchema = `
CREATE TABLE interviews (
	id bigserial PRIMARY KEY,
	interview_date text NOT NULL,
	interviewer text,
	interviewee_info text,
	transcription text,
	notes text,
	metadata text,
	created_at timestamptz NOT NULL DEFAULT now()
)`
