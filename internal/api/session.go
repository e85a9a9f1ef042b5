package api

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/interview-desk/internal/archive"
	"github.com/snarg/interview-desk/internal/database"
	"github.com/snarg/interview-desk/internal/events"
	"github.com/snarg/interview-desk/internal/export"
	"github.com/snarg/interview-desk/internal/metrics"
	"github.com/snarg/interview-desk/internal/session"
)

// SessionHandler exposes the single transcript session to the capture page.
type SessionHandler struct {
	session  *session.Session
	renderer *export.Renderer
	archive  archive.DocumentStore
	events   events.Publisher
	log      zerolog.Logger
}

func NewSessionHandler(sess *session.Session, renderer *export.Renderer, docs archive.DocumentStore, pub events.Publisher, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		session:  sess,
		renderer: renderer,
		archive:  docs,
		events:   pub,
		log:      log,
	}
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

type startSessionRequest struct {
	ID int64 `json:"id"`
}

// StartSession resumes transcription of an existing interview, seeded with
// its stored transcription. Any unsaved session is discarded.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.session.Start(r.Context(), req.ID); err != nil {
		WriteDomainError(w, r, "failed to start session", err)
		return
	}
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// PostSegment applies one recognition result.
func (h *SessionHandler) PostSegment(w http.ResponseWriter, r *http.Request) {
	var seg session.Segment
	if err := DecodeJSON(r, &seg); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.session.ApplySegment(seg); err != nil {
		WriteDomainError(w, r, "failed to apply segment", err)
		return
	}
	kind := "interim"
	if seg.IsFinal {
		kind = "final"
	}
	metrics.SegmentsTotal.WithLabelValues(kind).Inc()
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

type textRequest struct {
	Text string `json:"text"`
}

// PutText replaces the working text with the operator's edit.
func (h *SessionHandler) PutText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.session.SetText(req.Text); err != nil {
		WriteDomainError(w, r, "failed to set text", err)
		return
	}
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// Save persists the working text; the session stays active.
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	err := h.session.Save(r.Context())
	metrics.TranscriptSavesTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		WriteDomainError(w, r, "failed to save transcription", err)
		return
	}
	snap := h.session.Snapshot()
	h.events.Publish(events.Event{
		Type:        events.TranscriptSaved,
		InterviewID: snap.InterviewID,
		Length:      utf8.RuneCountInString(snap.WorkingText),
	})
	WriteJSON(w, http.StatusOK, snap)
}

func (h *SessionHandler) PutNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.session.SaveNotes(r.Context(), req.Notes); err != nil {
		WriteDomainError(w, r, "failed to save notes", err)
		return
	}
	snap := h.session.Snapshot()
	h.events.Publish(events.Event{Type: events.NotesSaved, InterviewID: snap.InterviewID})
	WriteJSON(w, http.StatusOK, map[string]any{"id": snap.InterviewID, "notes": req.Notes})
}

// FinalizeResponse is returned by Finalize. DocumentKey is empty when the
// document could not be archived; the interview is finalized regardless.
type FinalizeResponse struct {
	Interview   *database.Interview `json:"interview"`
	DocumentKey string              `json:"document_key,omitempty"`
	DocumentURL string              `json:"document_url,omitempty"`
}

// Finalize saves the working text, ends the session and archives the
// rendered document.
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	iv, err := h.session.Finalize(r.Context())
	metrics.TranscriptSavesTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		WriteDomainError(w, r, "failed to finalize interview", err)
		return
	}
	metrics.InterviewsFinalizedTotal.Inc()

	resp := FinalizeResponse{Interview: iv}
	if key, err := h.archiveDocument(r.Context(), iv); err != nil {
		h.log.Error().Err(err).Int64("interview_id", iv.ID).Msg("archive document failed")
	} else {
		resp.DocumentKey = key
		if url, err := h.archive.URL(r.Context(), key); err == nil {
			resp.DocumentURL = url
		}
	}

	h.events.Publish(events.Event{
		Type:        events.InterviewFinalized,
		InterviewID: iv.ID,
		Length:      utf8.RuneCountInString(iv.Transcription),
		DocumentKey: resp.DocumentKey,
	})
	h.log.Info().Int64("interview_id", iv.ID).Str("document_key", resp.DocumentKey).Msg("interview finalized")
	WriteJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) archiveDocument(ctx context.Context, iv *database.Interview) (string, error) {
	body, err := h.renderer.RenderDocument(iv)
	if err != nil {
		return "", err
	}
	metrics.DocumentsRenderedTotal.WithLabelValues("html").Inc()

	key := archive.DocumentKey(iv.ID)
	err = h.archive.Save(ctx, key, body, "text/html; charset=utf-8")
	metrics.ArchiveWritesTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return "", err
	}
	return key, nil
}

// Abandon ends the session without saving.
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.session.ActiveID(); ok {
		h.log.Info().Int64("interview_id", id).Msg("session abandoned")
	}
	h.session.Abandon()
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}
