package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no interview exists for the given id.
var ErrNotFound = errors.New("interview not found")

// PersistenceError wraps a storage-layer failure: the database could not be
// reached, the schema could not be ensured, or a statement failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Interview is one persisted visitor interview.
//
// ID, Date, Interviewer, IntervieweeInfo and CreatedAt are fixed at creation.
// Transcription and Notes are replaced wholesale by SetTranscription/SetNotes.
type Interview struct {
	ID              int64          `json:"id"`
	Date            Date           `json:"interview_date"`
	Interviewer     string         `json:"interviewer"`
	IntervieweeInfo string         `json:"interviewee_info"`
	Transcription   string         `json:"transcription"`
	Notes           string         `json:"notes"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewInterview is the input for Store.Create.
type NewInterview struct {
	Date            Date
	Interviewer     string
	IntervieweeInfo string
	Metadata        map[string]any
}

// encodeMetadata serializes the metadata map for the text column.
// A nil map is stored as an empty object.
func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// decodeMetadata parses the metadata column. Empty or malformed values
// yield an empty map; the column is opaque to the store.
func decodeMetadata(raw string) map[string]any {
	m := map[string]any{}
	if raw == "" || raw == "null" {
		return m
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
