package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aluiziolira/go-scrape-douban/config"
	"github.com/aluiziolira/go-scrape-douban/models"
	"github.com/aluiziolira/go-scrape-douban/pipeline"
	"github.com/aluiziolira/go-scrape-douban/scraper"
)

type scrapeOptions struct {
	cookies        string
	mode           string
	listURL        string
	pages          int
	delay          time.Duration
	timeout        time.Duration
	output         string
	format         string
	metricsAddr    string
	chromePath     string
	headless       bool
	blockResources bool
}

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	opts := &scrapeOptions{}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the read shelf and write it to a file",
		Long: `Scrape fetches the read shelf with the supplied session cookies and
writes the normalized collection as JSON, CSV or both.

Examples:
  # Direct HTTP requests (default)
  doubanshelf scrape --cookies 'bid=...; dbcl2="..."; ck=...'

  # Render pages in headless Chrome
  doubanshelf scrape --mode browser --cookies "$DOUBAN_COOKIES"

  # Write CSV and JSON side by side
  doubanshelf scrape --format dual --output output/shelf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, opts)
		},
	}

	opts.bind(cmd.Flags(), defaults)
	return cmd
}

func (o *scrapeOptions) bind(flags *pflag.FlagSet, defaults *config.Config) {
	flags.StringVarP(&o.cookies, "cookies", "c", "", "Raw Cookie header of a logged-in session")
	flags.StringVarP(&o.mode, "mode", "m", defaults.Mode, "Fetch mode: http or browser")
	flags.StringVar(&o.listURL, "list-url", defaults.ListURL, "Shelf listing URL")
	flags.IntVarP(&o.pages, "pages", "p", defaults.MaxPages, "Maximum listing pages to scrape")
	flags.DurationVar(&o.delay, "delay", defaults.Delay, "Delay between page requests")
	flags.DurationVar(&o.timeout, "timeout", defaults.Timeout, "Per-page timeout")
	flags.StringVarP(&o.output, "output", "o", defaults.OutputFile, "Output file path")
	flags.StringVarP(&o.format, "format", "f", defaults.OutputFormat, "Output format: csv, json, or dual")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&o.chromePath, "chrome-path", "", "Chrome executable for browser mode")
	flags.BoolVar(&o.headless, "headless", defaults.Headless, "Run Chrome headless in browser mode")
	flags.BoolVar(&o.blockResources, "block-resources", defaults.BlockResources, "Abort stylesheet, font and image requests in headless browser mode")
}

// apply copies the flags the user set onto cfg.
func (o *scrapeOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("cookies") {
		cfg.Cookies = o.cookies
	}
	if flags.Changed("mode") {
		cfg.Mode = config.NormalizeMode(o.mode)
	}
	if flags.Changed("list-url") {
		cfg.ListURL = o.listURL
	}
	if flags.Changed("pages") {
		cfg.MaxPages = o.pages
	}
	if flags.Changed("delay") {
		cfg.Delay = o.delay
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("output") {
		cfg.OutputFile = o.output
	}
	if flags.Changed("format") {
		cfg.OutputFormat = strings.ToLower(o.format)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if flags.Changed("chrome-path") {
		cfg.ChromePath = o.chromePath
	}
	if flags.Changed("headless") {
		cfg.Headless = o.headless
	}
	if flags.Changed("block-resources") {
		cfg.BlockResources = o.blockResources
	}
}

func runScrape(cmd *cobra.Command, opts *scrapeOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Cookies == "" {
		slog.Warn("no cookies supplied, the shelf will most likely be behind the login wall")
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	slog.Info("starting scrape",
		slog.String("list_url", cfg.ListURL),
		slog.String("mode", s.Strategy()),
		slog.Int("pages", cfg.MaxPages),
	)

	collection, result, err := s.Collect(ctx, cfg.Cookies)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	if err := writeCollection(cfg, collection); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), result, collection, cfg.OutputFile)
	return nil
}

func writeCollection(cfg *config.Config, collection *models.CollectionResult) error {
	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	if err := writer.Write(collection); err != nil {
		writer.Close()
		return fmt.Errorf("writing output: %w", err)
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return fmt.Errorf("output validation failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, result *models.ScraperResult, collection *models.CollectionResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	fmt.Fprintf(w, "  Books:         %d\n", collection.Count)
	fmt.Fprintf(w, "  State:         %s\n", result.State)
	fmt.Fprintf(w, "  Mode:          %s\n", result.Strategy)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Duplicates:    %d\n", result.DuplicateCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if result.FailedURL != "" {
		fmt.Fprintf(w, "  Stopped at:    page %d (%s)\n", result.FailedPage, result.FailedURL)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}
