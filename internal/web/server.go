// Package web provides the HTTP status page and control surface.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/status"
)

// Commander applies a command on the loop goroutine and waits for it.
type Commander interface {
	Submit(ctx context.Context, cmd logic.Command) ([]logic.Event, error)
}

// Server serves the status page and control endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commander  Commander
}

// New creates a Server that reads state from tracker, sends control
// requests to commander and serves metrics on /metrics. metrics may be nil.
func New(addr string, tracker *status.Tracker, commander Commander, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, commander: commander}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.json", s.handleJSON).Methods("GET")
	r.HandleFunc("/api/state", s.handleState).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
	r.HandleFunc("/select", s.control(logic.CommandSelect)).Methods("GET", "POST")
	r.HandleFunc("/increase", s.control(logic.CommandIncrease)).Methods("GET", "POST")
	r.HandleFunc("/decrease", s.control(logic.CommandDecrease)).Methods("GET", "POST")
	r.HandleFunc("/activate", s.control(logic.CommandActivate)).Methods("GET", "POST")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router.
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
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatController(snap))
}

// control submits the command and redirects to the status page. A mode
// outside 1..4, or a missing one where the command needs it, leaves the
// state alone but still redirects.
func (s *Server) control(kind logic.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer http.Redirect(w, r, "/", http.StatusSeeOther)

		cmd := logic.Command{Kind: kind, Mode: logic.ModeNone, Source: logic.SourceNetwork}
		if raw := r.FormValue("mode"); raw != "" {
			m, ok := parseMode(raw)
			if !ok {
				log.Printf("http: %s ignored, invalid mode %q", kind, raw)
				return
			}
			cmd.Mode = m
		}
		if cmd.Kind.NeedsMode() && cmd.Mode == logic.ModeNone {
			log.Printf("http: %s ignored, missing mode", kind)
			return
		}

		if _, err := s.commander.Submit(r.Context(), cmd); err != nil {
			log.Printf("http: %s: %v", kind, err)
		}
	}
}

// parseMode reads a 1-based mode number. Zero means no mode, as on the
// MQTT command topic.
func parseMode(raw string) (logic.Mode, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return logic.ModeNone, false
	}
	if n == 0 {
		return logic.ModeNone, true
	}
	return logic.ParseMode(n)
}
