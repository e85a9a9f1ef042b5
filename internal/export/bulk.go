package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snarg/interview-desk/internal/database"
)

// Entry is one record in the bulk export. Field order is fixed by the
// struct and matches the interviews table.
type Entry struct {
	ID              int64          `json:"id"`
	InterviewDate   string         `json:"interview_date"`
	Interviewer     string         `json:"interviewer"`
	IntervieweeInfo string         `json:"interviewee_info"`
	Transcription   string         `json:"transcription"`
	Notes           string         `json:"notes"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       string         `json:"created_at"`
}

// NewEntry converts a record to its export form. Timestamps are rendered
// in UTC so exports are identical regardless of the server time zone.
func NewEntry(rec database.Interview) (Entry, error) {
	if rec.ID == 0 {
		return Entry{}, ErrInvalidRecord
	}
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	e := Entry{
		ID:              rec.ID,
		InterviewDate:   rec.Date.String(),
		Interviewer:     rec.Interviewer,
		IntervieweeInfo: rec.IntervieweeInfo,
		Transcription:   rec.Transcription,
		Notes:           rec.Notes,
		Metadata:        meta,
	}
	if !rec.CreatedAt.IsZero() {
		e.CreatedAt = rec.CreatedAt.UTC().Format(DisplayTimeLayout)
	}
	return e, nil
}

// RenderBulkExport serializes records as an indented JSON array with one
// object per record, in the given order. Non-ASCII text is kept as-is.
func RenderBulkExport(recs []database.Interview) ([]byte, error) {
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		e, err := NewEntry(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("encode bulk export: %w", err)
	}
	return buf.Bytes(), nil
}

// BulkFilename is the download name of a bulk export made at now.
func BulkFilename(now time.Time) string {
	return fmt.Sprintf("alle_interviews_%s.json", now.Format("20060102"))
}
