package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/interview-desk/internal/archive"
	"github.com/snarg/interview-desk/internal/config"
	"github.com/snarg/interview-desk/internal/database"
	"github.com/snarg/interview-desk/internal/events"
	"github.com/snarg/interview-desk/internal/export"
	"github.com/snarg/interview-desk/internal/session"
)

// recordingPublisher collects published events.
type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) { p.events = append(p.events, ev) }
func (p *recordingPublisher) Close()                  {}

func (p *recordingPublisher) types() []string {
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	handler   http.Handler
	store     *database.SQLiteStore
	session   *session.Session
	exportDir string
	events    *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()

	store := database.OpenSQLite(filepath.Join(dir, "interviews.db"), log)
	sess := session.New(store, log)
	renderer, err := export.NewRenderer(export.Options{SiteName: "Wild Bird Care Station", Location: time.UTC})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	exportDir := filepath.Join(dir, "exports")
	pub := &recordingPublisher{}

	h := NewRouter(ServerOptions{
		Config: &config.Config{
			CaptureLang:    "de-CH",
			SiteName:       "Wild Bird Care Station",
			MetricsEnabled: true,
		},
		Store:     store,
		Session:   sess,
		Renderer:  renderer,
		Archive:   archive.NewLocalStore(exportDir),
		Events:    pub,
		WebFS:     fstest.MapFS{"index.html": {Data: []byte("<html>capture</html>")}},
		Version:   "test",
		StartTime: time.Now(),
		Log:       log,
	})
	return &testEnv{handler: h, store: store, session: sess, exportDir: exportDir, events: pub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func createAnna(t *testing.T, e *testEnv) int64 {
	t.Helper()
	rec := e.do(t, "POST", "/api/v1/interviews", map[string]any{
		"date":             "2024-05-01",
		"interviewer":      "Anna",
		"interviewee_info": "Age 34",
		"consent":          true,
	})
	expectStatus(t, rec, http.StatusCreated)
	var resp struct {
		Interview database.Interview `json:"interview"`
		Session   session.Snapshot   `json:"session"`
	}
	decode(t, rec, &resp)
	return resp.Interview.ID
}

func TestEndToEndCaptureAndExport(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, "POST", "/api/v1/interviews", map[string]any{
		"date":             "2024-05-01",
		"interviewer":      "Anna",
		"interviewee_info": "Age 34",
		"consent":          true,
	})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		Interview database.Interview `json:"interview"`
		Session   session.Snapshot   `json:"session"`
	}
	decode(t, rec, &created)
	if created.Interview.ID != 1 {
		t.Fatalf("id = %d, want 1", created.Interview.ID)
	}
	if created.Interview.Transcription != "" {
		t.Errorf("new interview has transcription %q", created.Interview.Transcription)
	}
	if created.Session.State != session.Active || created.Session.InterviewID != 1 {
		t.Fatalf("session not started on new interview: %+v", created.Session)
	}

	for _, seg := range []map[string]any{
		{"is_final": false, "text": "Hel"},
		{"is_final": true, "text": "Hello"},
		{"is_final": true, "text": "world"},
	} {
		expectStatus(t, e.do(t, "POST", "/api/v1/session/segments", seg), http.StatusOK)
	}
	rec = e.do(t, "GET", "/api/v1/session", nil)
	var snap session.Snapshot
	decode(t, rec, &snap)
	if snap.WorkingText != "Hello world " {
		t.Fatalf("working text = %q, want %q", snap.WorkingText, "Hello world ")
	}

	expectStatus(t, e.do(t, "POST", "/api/v1/session/save", nil), http.StatusOK)
	rec = e.do(t, "GET", "/api/v1/interviews/1", nil)
	var stored database.Interview
	decode(t, rec, &stored)
	if stored.Transcription != "Hello world " {
		t.Errorf("stored transcription = %q", stored.Transcription)
	}

	rec = e.do(t, "POST", "/api/v1/session/finalize", nil)
	expectStatus(t, rec, http.StatusOK)
	var fin FinalizeResponse
	decode(t, rec, &fin)
	if fin.Interview.Transcription != "Hello world " {
		t.Errorf("finalized transcription = %q", fin.Interview.Transcription)
	}
	if fin.DocumentKey != "interview_1.html" {
		t.Errorf("document key = %q", fin.DocumentKey)
	}
	archived, err := os.ReadFile(filepath.Join(e.exportDir, "interview_1.html"))
	if err != nil {
		t.Fatalf("archived document: %v", err)
	}
	if !strings.Contains(string(archived), "Hello world ") {
		t.Error("archived document lacks transcription")
	}

	rec = e.do(t, "GET", "/api/v1/session", nil)
	decode(t, rec, &snap)
	if snap.State != session.Inactive {
		t.Errorf("session state after finalize = %q", snap.State)
	}

	rec = e.do(t, "GET", "/api/v1/interviews/1/document", nil)
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="interview_1.html"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	doc := rec.Body.String()
	for _, want := range []string{"Interview #1", "Hello world ", "Anna", "Age 34", "2024-05-01"} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}

	rec = e.do(t, "GET", "/api/v1/export", nil)
	expectStatus(t, rec, http.StatusOK)
	var entries []map[string]any
	decode(t, rec, &entries)
	if len(entries) != 1 || entries[0]["transcription"] != "Hello world " {
		t.Errorf("bulk export = %v", entries)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "alle_interviews_") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	want := []string{events.InterviewCreated, events.TranscriptSaved, events.InterviewFinalized}
	if got := e.events.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestCreateInterviewValidation(t *testing.T) {
	e := newTestEnv(t)

	cases := []struct {
		name string
		body any
	}{
		{"no_consent", map[string]any{"interviewer": "Anna", "consent": false}},
		{"blank_interviewer", map[string]any{"interviewer": "   ", "consent": true}},
		{"bad_date", map[string]any{"interviewer": "Anna", "consent": true, "date": "01.05.2024"}},
		{"date_with_trailing_text", map[string]any{"interviewer": "Anna", "consent": true, "date": "2024-05-01garbage"}},
		{"malformed_json", `{"interviewer":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, e.do(t, "POST", "/api/v1/interviews", tc.body), http.StatusBadRequest)
		})
	}

	n, err := e.store.Count(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rejected requests created %d interviews", n)
	}
}

func TestCreateInterviewDefaultsDate(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, "POST", "/api/v1/interviews", map[string]any{"interviewer": "Anna", "consent": true})
	expectStatus(t, rec, http.StatusCreated)
	var resp struct {
		Interview database.Interview `json:"interview"`
	}
	decode(t, rec, &resp)
	if resp.Interview.Date.IsZero() {
		t.Error("date not defaulted")
	}
}

func TestUnknownInterview(t *testing.T) {
	e := newTestEnv(t)
	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/interviews/99"},
		{"GET", "/api/v1/interviews/99/document"},
		{"GET", "/api/v1/interviews/99/document.pdf"},
		{"PUT", "/api/v1/interviews/99/notes"},
		{"POST", "/api/v1/session/start"},
	} {
		var body any = map[string]any{"notes": "x", "id": 99}
		rec := e.do(t, tc.method, tc.path, body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, rec.Code)
		}
	}
	expectStatus(t, e.do(t, "GET", "/api/v1/interviews/abc", nil), http.StatusBadRequest)
}

func TestSessionEndpointsWithoutActiveSession(t *testing.T) {
	e := newTestEnv(t)
	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{"POST", "/api/v1/session/segments", map[string]any{"is_final": true, "text": "hi"}},
		{"PUT", "/api/v1/session/text", map[string]any{"text": "hi"}},
		{"POST", "/api/v1/session/save", nil},
		{"PUT", "/api/v1/session/notes", map[string]any{"notes": "hi"}},
		{"POST", "/api/v1/session/finalize", nil},
	} {
		rec := e.do(t, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusConflict {
			t.Errorf("%s %s = %d, want 409", tc.method, tc.path, rec.Code)
		}
	}
	// abandon is always allowed
	expectStatus(t, e.do(t, "DELETE", "/api/v1/session", nil), http.StatusOK)
}

func TestEditThenSave(t *testing.T) {
	e := newTestEnv(t)
	id := createAnna(t, e)

	expectStatus(t, e.do(t, "POST", "/api/v1/session/segments", map[string]any{"is_final": true, "text": "helo"}), http.StatusOK)
	expectStatus(t, e.do(t, "PUT", "/api/v1/session/text", map[string]any{"text": "Hello, corrected. "}), http.StatusOK)
	expectStatus(t, e.do(t, "POST", "/api/v1/session/segments", map[string]any{"is_final": true, "text": "more"}), http.StatusOK)
	expectStatus(t, e.do(t, "POST", "/api/v1/session/save", nil), http.StatusOK)

	iv, err := e.store.GetByID(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}
	if iv.Transcription != "Hello, corrected. more " {
		t.Errorf("transcription = %q", iv.Transcription)
	}
}

func TestNotesNeverTouchTranscription(t *testing.T) {
	e := newTestEnv(t)
	id := createAnna(t, e)
	if err := e.store.SetTranscription(t.Context(), id, "kept"); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, e.do(t, "PUT", "/api/v1/interviews/1/notes", map[string]any{"notes": "owl questions"}), http.StatusOK)
	iv, _ := e.store.GetByID(t.Context(), id)
	if iv.Notes != "owl questions" || iv.Transcription != "kept" {
		t.Errorf("after notes update: notes=%q transcription=%q", iv.Notes, iv.Transcription)
	}

	// session notes go to the active interview
	expectStatus(t, e.do(t, "PUT", "/api/v1/session/notes", map[string]any{"notes": "second"}), http.StatusOK)
	iv, _ = e.store.GetByID(t.Context(), id)
	if iv.Notes != "second" || iv.Transcription != "kept" {
		t.Errorf("after session notes: notes=%q transcription=%q", iv.Notes, iv.Transcription)
	}
}

func TestResumeAndAbandon(t *testing.T) {
	e := newTestEnv(t)
	id := createAnna(t, e)
	if err := e.store.SetTranscription(t.Context(), id, "earlier "); err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, "POST", "/api/v1/session/start", map[string]any{"id": id})
	expectStatus(t, rec, http.StatusOK)
	var snap session.Snapshot
	decode(t, rec, &snap)
	if snap.WorkingText != "earlier " {
		t.Errorf("resumed working text = %q", snap.WorkingText)
	}

	expectStatus(t, e.do(t, "POST", "/api/v1/session/segments", map[string]any{"is_final": true, "text": "discard me"}), http.StatusOK)
	expectStatus(t, e.do(t, "DELETE", "/api/v1/session", nil), http.StatusOK)

	iv, _ := e.store.GetByID(t.Context(), id)
	if iv.Transcription != "earlier " {
		t.Errorf("abandon wrote %q", iv.Transcription)
	}
}

func TestListInterviews(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, "GET", "/api/v1/interviews", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"interviews":[]`) {
		t.Errorf("empty list body = %s", rec.Body.String())
	}

	createAnna(t, e)
	expectStatus(t, e.do(t, "POST", "/api/v1/session/segments", map[string]any{"is_final": true, "text": "Grüezi"}), http.StatusOK)
	expectStatus(t, e.do(t, "POST", "/api/v1/session/save", nil), http.StatusOK)
	createAnna(t, e)

	rec = e.do(t, "GET", "/api/v1/interviews", nil)
	var resp struct {
		Interviews []InterviewSummary `json:"interviews"`
		Total      int                `json:"total"`
	}
	decode(t, rec, &resp)
	if resp.Total != 2 || len(resp.Interviews) != 2 {
		t.Fatalf("total = %d, len = %d", resp.Total, len(resp.Interviews))
	}
	if resp.Interviews[0].ID != 2 {
		t.Errorf("first listed id = %d, want newest (2)", resp.Interviews[0].ID)
	}
	if resp.Interviews[1].TranscriptLength != len([]rune("Grüezi ")) {
		t.Errorf("transcript length = %d", resp.Interviews[1].TranscriptLength)
	}
}

// presignedArchive is a local archive that hands out download URLs like S3.
type presignedArchive struct {
	*archive.LocalStore
}

func (a presignedArchive) URL(_ context.Context, key string) (string, error) {
	return "https://archive.example/" + key + "?X-Amz-Expires=3600", nil
}

func TestArchivedDocument(t *testing.T) {
	e := newTestEnv(t)
	createAnna(t, e)

	expectStatus(t, e.do(t, "GET", "/api/v1/interviews/1/archived", nil), http.StatusNotFound)

	expectStatus(t, e.do(t, "POST", "/api/v1/session/segments", map[string]any{"is_final": true, "text": "Hello"}), http.StatusOK)
	expectStatus(t, e.do(t, "POST", "/api/v1/session/finalize", nil), http.StatusOK)

	rec := e.do(t, "GET", "/api/v1/interviews/1/archived", nil)
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="interview_1.html"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "Hello ") {
		t.Error("archived document lacks transcription")
	}

	expectStatus(t, e.do(t, "GET", "/api/v1/interviews/abc/archived", nil), http.StatusBadRequest)
}

func TestArchivedDocumentRedirectsToPresignedURL(t *testing.T) {
	local := archive.NewLocalStore(t.TempDir())
	if err := local.Save(context.Background(), archive.DocumentKey(7), []byte("<html></html>"), "text/html"); err != nil {
		t.Fatal(err)
	}
	h := NewInterviewsHandler(nil, nil, nil, presignedArchive{local}, events.Nop{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetArchivedDocument(rec, newRequestWithChiParam("id", "7"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://archive.example/interview_7.html?X-Amz-Expires=3600" {
		t.Errorf("Location = %q", loc)
	}
}

func TestDocumentPDF(t *testing.T) {
	e := newTestEnv(t)
	createAnna(t, e)

	rec := e.do(t, "GET", "/api/v1/interviews/1/document.pdf", nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestExportEmpty(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, "GET", "/api/v1/export", nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty export = %q", rec.Body.String())
	}
}

func TestHealthSettingsAndWeb(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, "GET", "/api/v1/health", nil)
	expectStatus(t, rec, http.StatusOK)
	var health HealthResponse
	decode(t, rec, &health)
	if health.Status != "healthy" || health.Backend != "sqlite" || health.Archive != "local" {
		t.Errorf("health = %+v", health)
	}
	if health.Checks["mqtt"] != "not_configured" {
		t.Errorf("mqtt check = %q", health.Checks["mqtt"])
	}

	rec = e.do(t, "GET", "/api/v1/settings", nil)
	var s Settings
	decode(t, rec, &s)
	if s.CaptureLang != "de-CH" || s.SiteName != "Wild Bird Care Station" {
		t.Errorf("settings = %+v", s)
	}

	rec = e.do(t, "GET", "/", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "capture") {
		t.Errorf("index body = %q", rec.Body.String())
	}

	rec = e.do(t, "GET", "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "interview_desk_http_requests_total") {
		t.Error("metrics missing http counter")
	}
}

func TestHealthUnhealthyStore(t *testing.T) {
	log := zerolog.Nop()
	store := database.OpenSQLite(filepath.Join(t.TempDir(), "missing", "interviews.db"), log)
	h := NewHealthHandler(store, archive.NewLocalStore(t.TempDir()), events.Nop{}, "test", time.Now())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSaveFailureIsReported(t *testing.T) {
	e := newTestEnv(t)
	createAnna(t, e)

	// Make the database file unreachable
	if err := os.Remove(e.store.Path()); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(e.store.Path(), 0o755); err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, "POST", "/api/v1/session/save", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	rec = e.do(t, "POST", "/api/v1/session/finalize", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)

	var snap session.Snapshot
	decode(t, e.do(t, "GET", "/api/v1/session", nil), &snap)
	if snap.State != session.Active {
		t.Error("failed finalize ended the session")
	}
}
