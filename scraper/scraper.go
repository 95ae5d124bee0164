// Package scraper walks the paginated read shelf and accumulates records.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-douban/config"
	"github.com/aluiziolira/go-scrape-douban/fetcher"
	"github.com/aluiziolira/go-scrape-douban/models"
	"github.com/aluiziolira/go-scrape-douban/parser"
	"github.com/aluiziolira/go-scrape-douban/pipeline"
)

// Scraper drives one fetch strategy page by page until the shelf is
// exhausted, the page ceiling is hit, or a failure stops the run.
type Scraper struct {
	cfg       *config.Config
	strategy  fetcher.Strategy
	extractor *parser.Extractor
	Metrics   *Metrics
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithStrategy overrides the strategy selected from cfg.Mode.
func WithStrategy(strategy fetcher.Strategy) Option {
	return func(s *Scraper) {
		s.strategy = strategy
	}
}

// WithExtractor overrides the default record extractor.
func WithExtractor(extractor *parser.Extractor) Option {
	return func(s *Scraper) {
		s.extractor = extractor
	}
}

// WithMetrics shares a metrics bundle between scrapers.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Scraper) {
		s.Metrics = metrics
	}
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Scraper{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.strategy == nil {
		strategy, err := fetcher.Select(cfg.Mode, cfg)
		if err != nil {
			return nil, err
		}
		s.strategy = strategy
	}
	if s.extractor == nil {
		s.extractor = parser.NewExtractor()
	}
	if s.Metrics == nil {
		s.Metrics = NewMetrics()
	}
	return s, nil
}

// Strategy returns the name of the fetch strategy in use.
func (s *Scraper) Strategy() string {
	return s.strategy.Name()
}

// Run scrapes every page reachable with credentials.
//
// An auth wall anywhere returns an error and no records. A transport
// failure on the first page returns an error; on a later page the records
// gathered so far are returned with state transport_failed and a nil error.
// Cancelling ctx stops the run between pages with state canceled.
func (s *Scraper) Run(ctx context.Context, credentials string) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	name := s.strategy.Name()
	result := &models.ScraperResult{
		Records:      []models.RawRecord{},
		State:        models.StateFetching,
		Strategy:     name,
		StartTime:    time.Now(),
		FailedPage:   -1,
		ErrorsByType: make(map[string]int),
	}
	defer s.finish(result)

	sess, err := s.strategy.Open(ctx, credentials)
	if err != nil {
		s.recordError(result, err)
		result.State = models.StateTransportFailed
		result.FailedPage = 0
		result.StopErr = err
		return result, fmt.Errorf("open %s session: %w", name, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("close fetch session", slog.String("strategy", name), slog.Any("error", err))
		}
	}()

	seen, err := lru.New[string, struct{}](s.cfg.DedupeMaxSize)
	if err != nil {
		return result, fmt.Errorf("create dedupe cache: %w", err)
	}
	pacer := newThrottle(s.cfg.Delay)

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			s.cancel(result, page, err)
			return result, nil
		}
		if page >= s.cfg.MaxPages {
			slog.Info("page ceiling reached", slog.Int("pages", page))
			result.State = models.StateDone
			return result, nil
		}
		if err := pacer.Wait(ctx); err != nil {
			s.cancel(result, page, err)
			return result, nil
		}

		target, err := fetcher.PageURL(s.cfg.ListURL, page, s.cfg.PageSize)
		if err != nil {
			result.State = models.StateTransportFailed
			result.StopErr = err
			return result, err
		}

		result.State = models.StateFetching
		slog.Debug("fetching page", slog.Int("page", page), slog.String("url", target))

		started := time.Now()
		markup, err := sess.FetchPage(ctx, page, target)
		pacer.Done()
		s.Metrics.ObserveFetch(name, time.Since(started))
		result.RequestCount++

		if err != nil {
			switch {
			case errors.Is(err, fetcher.ErrAuthRequired):
				s.Metrics.IncRequest(name, "auth_required")
				s.recordError(result, err)
				slog.Error("login wall served", slog.Int("page", page), slog.String("url", target))
				result.State = models.StateAuthFailed
				result.Records = []models.RawRecord{}
				result.FailedPage = page
				result.FailedURL = target
				result.StopErr = err
				return result, err
			case ctx.Err() != nil:
				s.cancel(result, page, ctx.Err())
				return result, nil
			}

			s.Metrics.IncRequest(name, "error")
			s.recordError(result, err)
			result.State = models.StateTransportFailed
			result.FailedPage = page
			result.FailedURL = target
			result.StopErr = err
			if page == 0 {
				slog.Error("first page failed", slog.String("url", target), slog.Any("error", err))
				return result, err
			}
			slog.Warn("page failed, keeping partial results",
				slog.Int("page", page),
				slog.String("url", target),
				slog.String("error_type", fetcher.ErrorType(err)),
				slog.Int("records", len(result.Records)),
				slog.Any("error", err),
			)
			return result, nil
		}

		s.Metrics.IncRequest(name, "ok")
		result.PageCount++
		result.State = models.StateExtracting

		records := s.extractor.Extract(markup)
		s.Metrics.AddRecords(len(records))
		if len(records) == 0 {
			slog.Debug("empty page, shelf exhausted", slog.Int("page", page))
			result.State = models.StateDone
			return result, nil
		}

		for _, record := range records {
			if seen.Contains(record.ID) {
				result.DuplicateCount++
				s.Metrics.IncDuplicate()
				continue
			}
			seen.Add(record.ID, struct{}{})
			result.Records = append(result.Records, record)
		}

		slog.Debug("page extracted",
			slog.Int("page", page),
			slog.Int("records", len(records)),
			slog.Int("total", len(result.Records)),
		)
	}
}

// Collect runs the scrape and normalizes the records. The collection is
// always non-nil, empty when the run failed before yielding records.
func (s *Scraper) Collect(ctx context.Context, credentials string) (*models.CollectionResult, *models.ScraperResult, error) {
	result, err := s.Run(ctx, credentials)
	return pipeline.Normalize(result.Records), result, err
}

func (s *Scraper) cancel(result *models.ScraperResult, page int, err error) {
	slog.Info("run canceled", slog.Int("page", page), slog.Int("records", len(result.Records)))
	result.State = models.StateCanceled
	result.StopErr = err
}

func (s *Scraper) recordError(result *models.ScraperResult, err error) {
	label := fetcher.ErrorType(err)
	result.ErrorsByType[label]++
	s.Metrics.IncError(label)
}

func (s *Scraper) finish(result *models.ScraperResult) {
	result.EndTime = time.Now()
	s.Metrics.IncRun(string(result.State))
	slog.Info("run finished",
		slog.String("strategy", result.Strategy),
		slog.String("state", string(result.State)),
		slog.Int("pages", result.PageCount),
		slog.Int("records", len(result.Records)),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
}
