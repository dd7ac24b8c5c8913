// Package proxy orchestrates the request lifecycle: rate limiting, .xiino
// dispatch, fetch, transcode and response assembly.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/openxiino/dataserver/internal/config"
	"github.com/openxiino/dataserver/internal/cookies"
	"github.com/openxiino/dataserver/internal/db"
	"github.com/openxiino/dataserver/internal/fetch"
	"github.com/openxiino/dataserver/internal/imageproc"
	"github.com/openxiino/dataserver/internal/logging"
	"github.com/openxiino/dataserver/internal/pages"
	"github.com/openxiino/dataserver/internal/transcoder"
)

// Server is the proxy's downstream face.
type Server struct {
	cfg        *config.Config
	log        hclog.Logger
	router     chi.Router
	httpServer *http.Server

	fetcher    *fetch.Client
	processor  *imageproc.Processor
	transcoder *transcoder.Transcoder
	bridge     *cookies.Bridge
	pages      *pages.Pages
	limiter    *rateLimiter
}

// New wires up the proxy from configuration. database may be nil for
// in-memory cookie jars.
func New(cfg *config.Config, database *db.DB) (*Server, error) {
	fetcher, err := fetch.New(cfg, logging.Named("fetch"))
	if err != nil {
		return nil, fmt.Errorf("building fetcher: %w", err)
	}
	s := &Server{
		cfg:        cfg,
		log:        logging.Named("server"),
		fetcher:    fetcher,
		processor:  imageproc.New(cfg, logging.Named("image")),
		transcoder: transcoder.New(cfg, logging.Named("html")),
		bridge:     cookies.NewBridge(database, logging.Named("cookies")),
		pages:      pages.New(cfg),
		limiter:    newRateLimiter(cfg.Security.MaxRequestsPerMin),
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// One catch-all: Xiino devices encode capabilities as path segments,
	// so every path is ours.
	r.HandleFunc("/*", s.handleRequest)
	r.HandleFunc("/", s.handleRequest)

	return r
}

// Router exposes the router for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info("dataserver listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
