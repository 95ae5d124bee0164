// Package server exposes the scraper over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-douban/config"
	"github.com/aluiziolira/go-scrape-douban/fetcher"
	"github.com/aluiziolira/go-scrape-douban/models"
	"github.com/aluiziolira/go-scrape-douban/scraper"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// fallbackHint points callers at the manual route when automated scraping
// is not possible.
const fallbackHint = "open book.douban.com/mine?status=collect in a logged-in browser and export the shelf with the browser console script"

// StrategyFactory picks the fetch strategy for a request.
type StrategyFactory func(mode string, cfg *config.Config) (fetcher.Strategy, error)

// Server handles scrape requests. Each request runs its own scraper; the
// metrics bundle is shared.
type Server struct {
	cfg        *config.Config
	metrics    *scraper.Metrics
	strategies StrategyFactory
	mux        *http.ServeMux
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics shares metrics with the caller.
func WithMetrics(metrics *scraper.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithStrategyFactory replaces fetcher.Select.
func WithStrategyFactory(factory StrategyFactory) Option {
	return func(s *Server) {
		s.strategies = factory
	}
}

// New builds the server and its routes.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		strategies: fetcher.Select,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = scraper.NewMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/douban/scrape", s.handleScrape)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	s.mux = mux
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

type scrapeRequest struct {
	Cookies string `json:"cookies"`
	Method  string `json:"method"`
}

type scrapeResponse struct {
	*models.CollectionResult
	Message string `json:"message"`
	Method  string `json:"method"`
	State   string `json:"state"`
	Partial bool   `json:"partial,omitempty"`
}

type errorResponse struct {
	Error            string   `json:"error"`
	Details          string   `json:"details,omitempty"`
	Suggestion       string   `json:"suggestion,omitempty"`
	Fallback         string   `json:"fallback"`
	SupportedMethods []string `json:"supportedMethods,omitempty"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:    "invalid request body",
			Details:  err.Error(),
			Fallback: fallbackHint,
		})
		return
	}

	mode := config.NormalizeMode(req.Method)
	cfg := s.cfg.Clone()
	cfg.Mode = mode
	// No display is available to a server process.
	cfg.Headless = true

	strategy, err := s.strategies(mode, cfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:            "unsupported method",
			Details:          err.Error(),
			Fallback:         fallbackHint,
			SupportedMethods: []string{config.ModeHTTP, config.ModeBrowser},
		})
		return
	}

	sc, err := scraper.NewScraper(cfg, scraper.WithStrategy(strategy), scraper.WithMetrics(s.metrics))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:    "scraper misconfigured",
			Details:  err.Error(),
			Fallback: fallbackHint,
		})
		return
	}

	collection, result, err := sc.Collect(r.Context(), req.Cookies)
	if err != nil {
		slog.Error("scrape request failed",
			slog.String("method", mode),
			slog.String("error_type", fetcher.ErrorType(err)),
			slog.Any("error", err),
		)
		status, resp := scrapeError(err)
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, scrapeResponse{
		CollectionResult: collection,
		Message:          fmt.Sprintf("scraped %d books", collection.Count),
		Method:           mode,
		State:            string(result.State),
		Partial:          result.State != models.StateDone,
	})
}

func scrapeError(err error) (int, errorResponse) {
	if errors.Is(err, fetcher.ErrAuthRequired) {
		return http.StatusUnauthorized, errorResponse{
			Error:      "login required",
			Details:    err.Error(),
			Suggestion: "check that the cookies come from a logged-in douban session and have not expired",
			Fallback:   fallbackHint,
		}
	}
	return http.StatusBadGateway, errorResponse{
		Error:      "scrape failed",
		Details:    err.Error(),
		Suggestion: "the site may be rate limiting or its page layout changed; retry later or use the browser method",
		Fallback:   fallbackHint,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("write response", slog.Any("error", err))
	}
}
