// Package web serves the control page, the JSON status and the update endpoint.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-scheduler/internal/control"
	"github.com/sweeney/light-scheduler/internal/ota"
	"github.com/sweeney/light-scheduler/internal/status"
)

// maxFormBytes bounds a control form body.
const maxFormBytes = 1024

// Plain-text error bodies.
const (
	msgParseError   = "request parse error"
	msgStorageError = "storage error"
)

// Controller is the control surface used by the page.
type Controller interface {
	Query(ctx context.Context) (control.View, error)
	Handle(ctx context.Context, body []byte) (control.View, error)
}

// Updater runs an OTA update and then restarts.
type Updater interface {
	Run(ctx context.Context, image io.Reader) ota.Result
	Restart(res ota.Result)
}

// Server serves the control page over HTTP.
type Server struct {
	httpServer *http.Server
	control    Controller
	updater    Updater
	tracker    *status.Tracker
	log        zerolog.Logger
}

// New creates a Server. updater may be nil to disable /ota and tracker may
// be nil to disable /index.json.
func New(addr string, c Controller, u Updater, tracker *status.Tracker) *Server {
	s := &Server{
		control: c,
		updater: u,
		tracker: tracker,
		log:     log.With().Str("component", "web").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ota", s.handleOTA)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}

	var (
		view control.View
		err  error
	)
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		view, err = s.control.Query(r.Context())
	case http.MethodPost:
		var body []byte
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBytes))
		if err != nil {
			s.log.Warn().Err(err).Msg("read form body")
			http.Error(w, msgParseError, http.StatusBadRequest)
			return
		}
		view, err = s.control.Handle(r.Context(), body)
	default:
		methodNotAllowed(w, "GET, HEAD, POST")
		return
	}

	var pe *control.ParseError
	switch {
	case errors.As(err, &pe):
		http.Error(w, msgParseError, http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, msgStorageError, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.pageData(view)); err != nil {
		s.log.Error().Err(err).Msg("render page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleOTA streams the body into the updater, reports the outcome and then
// restarts whatever happened. The response is best-effort: the restart may
// cut it short.
func (s *Server) handleOTA(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	s.log.Warn().Str("remote", r.RemoteAddr).Int64("length", r.ContentLength).Msg("ota update requested")
	res := s.updater.Run(r.Context(), r.Body)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if res.OK() {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok, restarting\n")
	} else {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, res.Err.Error()+", restarting\n")
	}
	if err := http.NewResponseController(w).Flush(); err != nil {
		s.log.Debug().Err(err).Msg("flush ota response")
	}

	s.updater.Restart(res)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
