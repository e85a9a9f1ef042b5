package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/interview-desk/internal/archive"
	"github.com/snarg/interview-desk/internal/database"
	"github.com/snarg/interview-desk/internal/events"
	"github.com/snarg/interview-desk/internal/export"
	"github.com/snarg/interview-desk/internal/metrics"
	"github.com/snarg/interview-desk/internal/session"
)

type InterviewsHandler struct {
	store    database.Store
	session  *session.Session
	renderer *export.Renderer
	archive  archive.DocumentStore
	events   events.Publisher
	now      func() time.Time
	log      zerolog.Logger
}

func NewInterviewsHandler(store database.Store, sess *session.Session, renderer *export.Renderer, docs archive.DocumentStore, pub events.Publisher, log zerolog.Logger) *InterviewsHandler {
	return &InterviewsHandler{
		store:    store,
		session:  sess,
		renderer: renderer,
		archive:  docs,
		events:   pub,
		now:      time.Now,
		log:      log,
	}
}

type createInterviewRequest struct {
	Date            string         `json:"date"`
	Interviewer     string         `json:"interviewer"`
	IntervieweeInfo string         `json:"interviewee_info"`
	Consent         bool           `json:"consent"`
	Metadata        map[string]any `json:"metadata"`
}

// CreateInterview stores a new interview and starts a transcript session
// on it. Requires recorded consent and an interviewer name; the date
// defaults to today.
func (h *InterviewsHandler) CreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !req.Consent {
		WriteError(w, http.StatusBadRequest, "consent is required")
		return
	}
	if strings.TrimSpace(req.Interviewer) == "" {
		WriteError(w, http.StatusBadRequest, "interviewer is required")
		return
	}

	date := database.NewDate(h.now())
	if strings.TrimSpace(req.Date) != "" {
		d, err := database.ParseDate(req.Date)
		if err != nil {
			WriteErrorDetail(w, http.StatusBadRequest, "invalid date", err.Error())
			return
		}
		date = d
	}

	id, err := h.store.Create(r.Context(), database.NewInterview{
		Date:            date,
		Interviewer:     req.Interviewer,
		IntervieweeInfo: req.IntervieweeInfo,
		Metadata:        req.Metadata,
	})
	if err != nil {
		WriteDomainError(w, r, "failed to create interview", err)
		return
	}
	metrics.InterviewsCreatedTotal.Inc()
	h.events.Publish(events.Event{Type: events.InterviewCreated, InterviewID: id})

	if err := h.session.Start(r.Context(), id); err != nil {
		WriteDomainError(w, r, "failed to start session", err)
		return
	}
	iv, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		WriteDomainError(w, r, "failed to load interview", err)
		return
	}
	h.log.Info().Int64("interview_id", id).Str("interviewer", req.Interviewer).Msg("interview created")

	WriteJSON(w, http.StatusCreated, map[string]any{
		"interview": iv,
		"session":   h.session.Snapshot(),
	})
}

// InterviewSummary is one row of the overview list.
type InterviewSummary struct {
	ID               int64         `json:"id"`
	Date             database.Date `json:"interview_date"`
	Interviewer      string        `json:"interviewer"`
	IntervieweeInfo  string        `json:"interviewee_info"`
	TranscriptLength int           `json:"transcript_length"`
	HasNotes         bool          `json:"has_notes"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ListInterviews returns the overview, newest first.
func (h *InterviewsHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAll(r.Context())
	if err != nil {
		WriteDomainError(w, r, "failed to list interviews", err)
		return
	}
	out := make([]InterviewSummary, 0, len(list))
	for _, iv := range list {
		out = append(out, InterviewSummary{
			ID:               iv.ID,
			Date:             iv.Date,
			Interviewer:      iv.Interviewer,
			IntervieweeInfo:  iv.IntervieweeInfo,
			TranscriptLength: utf8.RuneCountInString(iv.Transcription),
			HasNotes:         iv.Notes != "",
			CreatedAt:        iv.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"interviews": out,
		"total":      len(out),
	})
}

func (h *InterviewsHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	iv, ok := h.load(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, iv)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// UpdateNotes replaces the notes of any interview; the transcription is
// left untouched.
func (h *InterviewsHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid interview id")
		return
	}
	var req notesRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.store.SetNotes(r.Context(), id, req.Notes); err != nil {
		WriteDomainError(w, r, "failed to save notes", err)
		return
	}
	h.events.Publish(events.Event{Type: events.NotesSaved, InterviewID: id})
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "notes": req.Notes})
}

// GetDocument downloads the HTML print document.
func (h *InterviewsHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	iv, ok := h.load(w, r)
	if !ok {
		return
	}
	body, err := h.renderer.RenderDocument(iv)
	if err != nil {
		WriteDomainError(w, r, "failed to render document", err)
		return
	}
	metrics.DocumentsRenderedTotal.WithLabelValues("html").Inc()
	WriteAttachment(w, "text/html; charset=utf-8", export.DocumentFilename(iv.ID), body)
}

// GetDocumentPDF downloads the document as PDF.
func (h *InterviewsHandler) GetDocumentPDF(w http.ResponseWriter, r *http.Request) {
	iv, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.RenderPDF(iv, &buf); err != nil {
		WriteDomainError(w, r, "failed to render pdf", err)
		return
	}
	metrics.DocumentsRenderedTotal.WithLabelValues("pdf").Inc()
	WriteAttachment(w, "application/pdf", export.PDFFilename(iv.ID), buf.Bytes())
}

// GetArchivedDocument returns the document archived at the last finalize.
// S3 archives redirect to a presigned URL; local archives are streamed.
func (h *InterviewsHandler) GetArchivedDocument(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid interview id")
		return
	}
	key := archive.DocumentKey(id)
	if !h.archive.Exists(r.Context(), key) {
		WriteError(w, http.StatusNotFound, "no archived document")
		return
	}

	url, err := h.archive.URL(r.Context(), key)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("key", key).Msg("presign archived document failed")
	} else if url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.archive.Open(r.Context(), key)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("open archived document failed")
		WriteError(w, http.StatusInternalServerError, "failed to open archived document")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, key))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

// ExportAll downloads every interview as one JSON file.
func (h *InterviewsHandler) ExportAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAll(r.Context())
	if err != nil {
		WriteDomainError(w, r, "failed to list interviews", err)
		return
	}
	body, err := export.RenderBulkExport(list)
	if err != nil {
		WriteDomainError(w, r, "failed to export interviews", err)
		return
	}
	metrics.DocumentsRenderedTotal.WithLabelValues("json").Inc()
	WriteAttachment(w, "application/json; charset=utf-8", export.BulkFilename(h.now()), body)
}

func (h *InterviewsHandler) load(w http.ResponseWriter, r *http.Request) (*database.Interview, bool) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid interview id")
		return nil, false
	}
	iv, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		WriteDomainError(w, r, "failed to load interview", err)
		return nil, false
	}
	return iv, true
}
