// Package session holds the working transcript of the interview currently
// being captured.
//
// A Session is either Inactive or Active(id). Start always moves to
// Active(id), discarding whatever was in the buffer before. Save writes the
// buffer to the store and stays Active. Finalize saves, then returns to
// Inactive. The buffer is never written to the store implicitly.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/snarg/interview-desk/internal/database"
)

// ErrNoActiveSession is returned by operations that need an active interview.
var ErrNoActiveSession = errors.New("no active interview session")

// Store is the subset of database.Store the session writes through.
type Store interface {
	GetByID(ctx context.Context, id int64) (*database.Interview, error)
	SetTranscription(ctx context.Context, id int64, text string) error
	SetNotes(ctx context.Context, id int64, text string) error
}

type State string

const (
	Inactive State = "inactive"
	Active   State = "active"
)

// Segment is one recognition result from the capture adapter.
// Only final segments reach the working text.
type Segment struct {
	IsFinal bool   `json:"is_final"`
	Text    string `json:"text"`
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	State       State  `json:"state"`
	InterviewID int64  `json:"interview_id,omitempty"`
	WorkingText string `json:"working_text"`
	Interim     string `json:"interim,omitempty"`
}

// Session is the single transcript buffer owned by the server.
// All methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	store    Store
	log      zerolog.Logger
	activeID int64 // 0 while inactive
	working  string
	interim  string
}

func New(store Store, log zerolog.Logger) *Session {
	return &Session{store: store, log: log}
}

// Start loads interview id and activates the session, seeding the buffer
// with the stored transcription. Any previous session is discarded
// without saving.
func (s *Session) Start(ctx context.Context, id int64) error {
	iv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("start session for interview %d: %w", id, err)
	}
	s.StartWithSeed(id, iv.Transcription)
	return nil
}

// StartWithSeed activates the session for id with the given seed text.
func (s *Session) StartWithSeed(id int64, seed string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != 0 && s.activeID != id {
		s.log.Info().
			Int64("previous_interview_id", s.activeID).
			Int("discarded_chars", len(s.working)).
			Msg("discarding previous session")
	}
	s.activeID = id
	s.working = seed
	s.interim = ""
	s.log.Info().Int64("interview_id", id).Msg("session started")
}

// ApplySegment feeds one capture result into the session. A final segment
// is trimmed and appended with one trailing space; an interim segment only
// replaces the display-only interim text.
func (s *Session) ApplySegment(seg Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == 0 {
		return ErrNoActiveSession
	}
	if !seg.IsFinal {
		s.interim = seg.Text
		return nil
	}
	s.interim = ""
	if text := strings.TrimSpace(seg.Text); text != "" {
		s.working += text + " "
	}
	return nil
}

// ApplyCaptureSegment appends a finalized segment.
func (s *Session) ApplyCaptureSegment(text string) error {
	return s.ApplySegment(Segment{IsFinal: true, Text: text})
}

// SetText replaces the working text. Later capture segments append to
// this text, not to whatever preceded the edit.
func (s *Session) SetText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == 0 {
		return ErrNoActiveSession
	}
	s.working = text
	return nil
}

// Save writes the working text to the active interview's transcription.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Session) saveLocked(ctx context.Context) error {
	if s.activeID == 0 {
		return ErrNoActiveSession
	}
	if err := s.store.SetTranscription(ctx, s.activeID, s.working); err != nil {
		return fmt.Errorf("save transcription for interview %d: %w", s.activeID, err)
	}
	s.log.Debug().Int64("interview_id", s.activeID).Int("chars", len(s.working)).Msg("transcription saved")
	return nil
}

// SaveNotes replaces the notes of the active interview.
func (s *Session) SaveNotes(ctx context.Context, notes string) error {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()

	if id == 0 {
		return ErrNoActiveSession
	}
	if err := s.store.SetNotes(ctx, id, notes); err != nil {
		return fmt.Errorf("save notes for interview %d: %w", id, err)
	}
	return nil
}

// Finalize saves the working text, ends the session and returns the
// stored record. If the save or the read-back fails the session stays
// active so the operator can retry.
func (s *Session) Finalize(ctx context.Context) (*database.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(ctx); err != nil {
		return nil, err
	}
	iv, err := s.store.GetByID(ctx, s.activeID)
	if err != nil {
		return nil, fmt.Errorf("reload interview %d: %w", s.activeID, err)
	}

	s.log.Info().Int64("interview_id", s.activeID).Msg("session finalized")
	s.clearLocked()
	return iv, nil
}

// Abandon ends the session without writing anything.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != 0 {
		s.log.Info().Int64("interview_id", s.activeID).Msg("session abandoned")
	}
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.activeID = 0
	s.working = ""
	s.interim = ""
}

// ActiveID returns the active interview id and whether a session is active.
func (s *Session) ActiveID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID, s.activeID != 0
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == 0 {
		return Snapshot{State: Inactive}
	}
	return Snapshot{
		State:       Active,
		InterviewID: s.activeID,
		WorkingText: s.working,
		Interim:     s.interim,
	}
}
