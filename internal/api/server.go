package api

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/interview-desk/internal/archive"
	"github.com/snarg/interview-desk/internal/config"
	"github.com/snarg/interview-desk/internal/database"
	"github.com/snarg/interview-desk/internal/events"
	"github.com/snarg/interview-desk/internal/export"
	"github.com/snarg/interview-desk/internal/metrics"
	"github.com/snarg/interview-desk/internal/session"
)

type ServerOptions struct {
	Config    *config.Config
	Store     database.Store
	Session   *session.Session
	Renderer  *export.Renderer
	Archive   archive.DocumentStore
	Events    events.Publisher // nil disables notifications
	WebFS     fs.FS            // nil serves no capture page
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the HTTP routes. Split from NewServer for tests.
func NewRouter(opts ServerOptions) http.Handler {
	pub := opts.Events
	if pub == nil {
		pub = events.Nop{}
	}

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	if opts.Config.MetricsEnabled {
		r.Use(metrics.InstrumentHandler)
		r.Handle("/metrics", promhttp.Handler())
	}

	health := NewHealthHandler(opts.Store, opts.Archive, pub, opts.Version, opts.StartTime)
	interviews := NewInterviewsHandler(opts.Store, opts.Session, opts.Renderer, opts.Archive, pub, opts.Log)
	sess := NewSessionHandler(opts.Session, opts.Renderer, opts.Archive, pub, opts.Log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.ServeHTTP)
		r.Get("/settings", SettingsHandler(SettingsFromConfig(opts.Config)))

		r.Post("/interviews", interviews.CreateInterview)
		r.Get("/interviews", interviews.ListInterviews)
		r.Get("/interviews/{id}", interviews.GetInterview)
		r.Put("/interviews/{id}/notes", interviews.UpdateNotes)
		r.Get("/interviews/{id}/document", interviews.GetDocument)
		r.Get("/interviews/{id}/document.pdf", interviews.GetDocumentPDF)
		r.Get("/interviews/{id}/archived", interviews.GetArchivedDocument)
		r.Get("/export", interviews.ExportAll)

		r.Get("/session", sess.GetSession)
		r.Delete("/session", sess.Abandon)
		r.Post("/session/start", sess.StartSession)
		r.Post("/session/segments", sess.PostSegment)
		r.Put("/session/text", sess.PutText)
		r.Post("/session/save", sess.Save)
		r.Put("/session/notes", sess.PutNotes)
		r.Post("/session/finalize", sess.Finalize)
	})

	if opts.WebFS != nil {
		r.Handle("/*", WebHandler(opts.WebFS))
	}

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
