// Package fetcher retrieves the raw markup of one shelf listing page.
//
// Two strategies satisfy the same contract: HTTPStrategy issues plain GET
// requests through a colly collector, BrowserStrategy renders the page in a
// headless Chrome driven by chromedp. A Strategy opens a Session per run;
// the Session owns the transport resource and must be closed.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aluiziolira/go-scrape-douban/config"
	"github.com/aluiziolira/go-scrape-douban/parser"
)

// Strategy creates sessions bound to one set of credentials.
type Strategy interface {
	Name() string
	Open(ctx context.Context, credentials string) (Session, error)
}

// Session fetches listing pages. FetchPage returns ErrAuthRequired when the
// login wall is served and a *FetchError on transport failure. Close is
// idempotent.
type Session interface {
	FetchPage(ctx context.Context, page int, target string) (string, error)
	Close() error
}

// Select returns the strategy for mode. Empty and legacy mode names are
// accepted, see config.NormalizeMode.
func Select(mode string, cfg *config.Config) (Strategy, error) {
	switch config.NormalizeMode(mode) {
	case config.ModeHTTP:
		return NewHTTPStrategy(cfg), nil
	case config.ModeBrowser:
		return NewBrowserStrategy(cfg), nil
	default:
		return nil, fmt.Errorf("%w %q (supported: %s, %s)", ErrUnsupportedMode, mode, config.ModeHTTP, config.ModeBrowser)
	}
}

// PageURL returns listURL with start set to page*pageSize.
func PageURL(listURL string, page, pageSize int) (string, error) {
	parsed, err := url.Parse(listURL)
	if err != nil {
		return "", fmt.Errorf("invalid list url %s: %w", listURL, err)
	}

	query := parsed.Query()
	query.Set("start", strconv.Itoa(page*pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func checkMarkup(page int, markup string) (string, error) {
	if parser.HasLoginWall(markup) {
		return "", fmt.Errorf("page %d: %w", page, ErrAuthRequired)
	}
	return markup, nil
}
