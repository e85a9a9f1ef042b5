// Package export renders interview records for people and for analysis:
// a print-ready HTML document, a PDF, and a bulk JSON export.
package export

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/snarg/interview-desk/internal/database"
)

// ErrInvalidRecord is returned for a record without an identifier.
var ErrInvalidRecord = errors.New("interview record has no id")

// Placeholder is rendered for metadata fields that are empty.
const Placeholder = "not available"

// NoTranscription is rendered in place of an empty transcription.
const NoTranscription = "No transcription available"

// DisplayTimeLayout formats timestamps in documents and exports.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// Options configures the document footer.
type Options struct {
	SiteName     string
	Organization string
	// Location used to display timestamps. Defaults to time.Local.
	Location *time.Location
	// Now overrides the generation time; used by tests.
	Now func() time.Time
}

// Renderer produces single-record documents.
type Renderer struct {
	opts Options
	tpl  *pongo2.Template
}

func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	tpl, err := pongo2.FromString(documentTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	return &Renderer{opts: opts, tpl: tpl}, nil
}

// documentFields is the text content shared by the HTML and PDF renderings.
type documentFields struct {
	ID            string
	Date          string
	Interviewer   string
	Interviewee   string
	CreatedAt     string
	Transcription string
	Notes         string
	GeneratedAt   string
}

func (r *Renderer) fields(rec *database.Interview) (documentFields, error) {
	if rec == nil || rec.ID == 0 {
		return documentFields{}, ErrInvalidRecord
	}
	f := documentFields{
		ID:            strconv.FormatInt(rec.ID, 10),
		Date:          orPlaceholder(rec.Date.String()),
		Interviewer:   orPlaceholder(rec.Interviewer),
		Interviewee:   orPlaceholder(rec.IntervieweeInfo),
		CreatedAt:     Placeholder,
		Transcription: rec.Transcription,
		Notes:         rec.Notes,
		GeneratedAt:   r.opts.Now().In(r.opts.Location).Format("2006-01-02 15:04"),
	}
	if !rec.CreatedAt.IsZero() {
		f.CreatedAt = rec.CreatedAt.In(r.opts.Location).Format(DisplayTimeLayout)
	}
	if f.Transcription == "" {
		f.Transcription = NoTranscription
	}
	return f, nil
}

// RenderDocument returns the print document for rec as HTML. Every record
// field is HTML-escaped, so record text cannot alter the document structure.
// The notes section is only present when notes are non-empty.
func (r *Renderer) RenderDocument(rec *database.Interview) ([]byte, error) {
	f, err := r.fields(rec)
	if err != nil {
		return nil, err
	}
	out, err := r.tpl.ExecuteBytes(pongo2.Context{
		"id":            f.ID,
		"date":          f.Date,
		"interviewer":   f.Interviewer,
		"interviewee":   f.Interviewee,
		"created_at":    f.CreatedAt,
		"transcription": f.Transcription,
		"notes":         f.Notes,
		"site_name":     r.opts.SiteName,
		"organization":  r.opts.Organization,
		"generated_at":  f.GeneratedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render interview %d: %w", rec.ID, err)
	}
	return out, nil
}

// DocumentFilename is the download name of an interview's HTML document.
func DocumentFilename(id int64) string {
	return fmt.Sprintf("interview_%d.html", id)
}

// PDFFilename is the download name of an interview's PDF document.
func PDFFilename(id int64) string {
	return fmt.Sprintf("interview_%d.pdf", id)
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

const documentTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Interview #{{ id }}</title>
<style>
@media print { body { margin: 0; } .no-print { display: none; } }
body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; line-height: 1.6; }
h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
h2 { color: #34495e; margin-top: 30px; }
.metadata { background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0; }
.metadata p { margin: 5px 0; }
.transcription { background: #ffffff; border: 1px solid #ddd; padding: 20px; border-radius: 5px; white-space: pre-wrap; word-wrap: break-word; margin: 20px 0; }
.notes { background: #fff9e6; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0; white-space: pre-wrap; }
.footer { margin-top: 50px; padding-top: 20px; border-top: 1px solid #ddd; text-align: center; color: #666; font-size: 12px; }
</style>
</head>
<body>
<h1>Interview Transcription #{{ id }}</h1>
<div class="metadata">
<h2>Interview Details</h2>
<p><strong>Date:</strong> {{ date }}</p>
<p><strong>Interviewer:</strong> {{ interviewer }}</p>
<p><strong>Interviewee:</strong> {{ interviewee }}</p>
<p><strong>Created at:</strong> {{ created_at }}</p>
</div>
<h2>Transcription</h2>
<div class="transcription">{{ transcription }}</div>
{% if notes %}<h2>Notes</h2>
<div class="notes">{{ notes }}</div>
{% endif %}<div class="footer">
{% if site_name %}<p>{{ site_name }}</p>{% endif %}
{% if organization %}<p>{{ organization }}</p>{% endif %}
<p>Generated at: {{ generated_at }}</p>
</div>
<div class="no-print" style="margin-top: 30px; text-align: center;">
<button onclick="window.print()" style="padding: 10px 20px; background: #3498db; color: white; border: none; border-radius: 5px; cursor: pointer;">Print / Save as PDF</button>
</div>
</body>
</html>
`
