// Package web provides the HTTP interface of the gpio-monitor daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
	"github.com/sweeney/gpio-monitor/internal/status"
)

// maxSettle bounds how long an update request waits for the pin to settle.
const maxSettle = time.Second

// PinService is the part of the monitor the web pages use.
// *monitor.Monitor implements it.
type PinService interface {
	Snapshot() []monitor.Pin
	Pin(id uint8) (monitor.Pin, bool)
	Register(id uint8, label string, pull gpio.Pull) error
	Update(id uint8, label string, pull gpio.Pull) error
	Unregister(id uint8) error
	Debounce() time.Duration
	Board() gpio.Board
}

// Server serves the pin pages over HTTP.
type Server struct {
	httpServer *http.Server
	pins       PinService
	tracker    *status.Tracker
	metrics    http.Handler
	sleep      func(time.Duration)
}

// New creates a Server for the given pins. tracker may be nil, in which
// case /status.json is not served.
func New(addr string, pins PinService, tracker *status.Tracker) *Server {
	s := &Server{
		pins:    pins,
		tracker: tracker,
		metrics: newMetricsHandler(pins),
		sleep:   time.Sleep,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/settings.html", s.handleSettings)
	mux.HandleFunc("/delete.html", s.handleDelete)
	mux.HandleFunc("/pins.json", s.handlePins)
	mux.HandleFunc("/metrics", s.handleMetrics)
	if tracker != nil {
		mux.HandleFunc("/status.json", s.handleStatus)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router.
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
		s.notFound(w)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	render(w, indexTmpl, page{Pins: s.pins.Snapshot()})
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(status.FormatPins(s.pins.Snapshot()))
	w.Write([]byte("\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	render(w, notFoundTmpl, nil)
}
