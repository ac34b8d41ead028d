// Package httpserver is the cleartext HTTP/2 (h2c) front door: it binds
// internal/router's trie to the external API table (spec.md §6) and
// hands each matched request to internal/pipeline, materializing a
// respwriter.Writer per request so the reply can be delivered from
// whichever lane eventually produces it.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/matgreaves/urishort/internal/observability"
	"github.com/matgreaves/urishort/internal/pipeline"
	"github.com/matgreaves/urishort/internal/respwriter"
	"github.com/matgreaves/urishort/internal/router"
)

var (
	ErrAlreadyRunning = errors.New("httpserver: already running")
	ErrNotStarted     = errors.New("httpserver: not started")
)

// Config configures the server.
type Config struct {
	Addr string
}

// Server is the HTTP/2 ingress adapter (spec.md §4.7, C6).
type Server struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	provider *observability.Provider
	router   *router.Router
	httpSrv  *http.Server
	ln       net.Listener
}

// New builds a Server and registers the fixed route table: POST
// /shorten, GET/DELETE /{code}. GET /health is answered directly by the
// server, before the router and the pipeline are consulted.
func New(cfg Config, p *pipeline.Pipeline, provider *observability.Provider) *Server {
	s := &Server{cfg: cfg, pipeline: p, provider: provider, router: router.New()}
	s.router.Post("/shorten", pipeline.RouteShorten)
	s.router.Get("/:code", pipeline.RouteResolve)
	s.router.Delete("/:code", pipeline.RouteDelete)

	h2s := &http2.Server{}
	s.httpSrv = &http.Server{
		Handler: h2c.NewHandler(http.HandlerFunc(s.serveHTTP), h2s),
	}
	return s
}

// Start binds the listener and begins serving in the background.
// Returns ErrAlreadyRunning if already started.
func (s *Server) Start() error {
	if s.ln != nil {
		return ErrAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.provider.Logger().Error("httpserver: serve error", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address. Valid only after Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop gracefully shuts the server down, waiting up to the given
// timeout for in-flight requests to complete.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return ErrNotStarted
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
		return
	}

	match, ok := s.router.Match(r.Method, r.URL.Path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	route, ok := match.Handler.(pipeline.Route)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(r.Body, 1<<20))
	}

	tc := extractTraceContext(r)

	done := make(chan struct{})
	handle := respwriter.New(func(status int, headers map[string]string, respBody []byte) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write(respBody)
		close(done)
	}, nil)

	s.pipeline.Accept(route, match.Params["code"], body, handle, tc)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.provider.Logger().Error("httpserver: response timed out", "path", r.URL.Path)
	}
}

func extractTraceContext(r *http.Request) observability.TraceContext {
	if header := r.Header.Get("traceparent"); header != "" {
		if tc, err := observability.FromTraceparent(header); err == nil {
			if baggage := r.Header.Get("baggage"); baggage != "" {
				if withBaggage, err := observability.ParseBaggageHeader(tc, baggage); err == nil {
					return withBaggage
				}
			}
			return tc
		}
	}
	return observability.NewTraceContext()
}
