package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-douban/config"
	"github.com/aluiziolira/go-scrape-douban/fetcher"
)

type stubStrategy struct {
	pages []string
	err   error
	creds *string
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Open(_ context.Context, credentials string) (fetcher.Session, error) {
	if s.creds != nil {
		*s.creds = credentials
	}
	return &stubSession{strategy: s}, nil
}

type stubSession struct {
	strategy *stubStrategy
}

func (s *stubSession) FetchPage(_ context.Context, page int, target string) (string, error) {
	if page < len(s.strategy.pages) {
		return s.strategy.pages[page], nil
	}
	if s.strategy.err != nil {
		return "", s.strategy.err
	}
	return "", nil
}

func (s *stubSession) Close() error { return nil }

func onePage(ids ...int) string {
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="subject-item"><div class="info"><h2><a href="https://book.douban.com/subject/%d/">Book %d</a></h2></div></li>`, id, id)
	}
	return b.String()
}

func newTestServer(t *testing.T, strategy *stubStrategy) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Delay = 0

	srv := New(cfg, WithStrategyFactory(func(mode string, c *config.Config) (fetcher.Strategy, error) {
		if _, err := fetcher.Select(mode, c); err != nil {
			return nil, err
		}
		return strategy, nil
	}))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/douban/scrape", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestScrapeSuccess(t *testing.T) {
	var creds string
	ts := newTestServer(t, &stubStrategy{pages: []string{onePage(1, 2, 3)}, creds: &creds})

	resp, body := post(t, ts, `{"cookies":"ck=abc; bid=x","method":"axios"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ck=abc; bid=x", creds)
	assert.Equal(t, float64(3), body["count"])
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, "http", body["method"])
	assert.Equal(t, "done", body["state"])
	assert.Contains(t, body["message"], "3")
	assert.Len(t, body["collections"], 3)
}

func TestScrapeDefaultsToHTTP(t *testing.T) {
	ts := newTestServer(t, &stubStrategy{})

	resp, body := post(t, ts, `{"cookies":""}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http", body["method"])
	assert.Equal(t, float64(0), body["count"])
}

func TestScrapePartialResult(t *testing.T) {
	ts := newTestServer(t, &stubStrategy{
		pages: []string{onePage(1, 2)},
		err:   &fetcher.FetchError{Page: 1, Err: errors.New("reset")},
	})

	resp, body := post(t, ts, `{"cookies":"ck=1","method":"http"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, "transport_failed", body["state"])
	assert.Equal(t, true, body["partial"])
}

func TestScrapeErrors(t *testing.T) {
	tests := []struct {
		name     string
		strategy *stubStrategy
		body     string
		status   int
	}{
		{
			name:     "bad json",
			strategy: &stubStrategy{},
			body:     `{"cookies":`,
			status:   http.StatusBadRequest,
		},
		{
			name:     "unsupported method",
			strategy: &stubStrategy{},
			body:     `{"cookies":"ck=1","method":"selenium"}`,
			status:   http.StatusBadRequest,
		},
		{
			name:     "login wall",
			strategy: &stubStrategy{err: fmt.Errorf("page 0: %w", fetcher.ErrAuthRequired)},
			body:     `{"cookies":"ck=expired"}`,
			status:   http.StatusUnauthorized,
		},
		{
			name:     "first page transport failure",
			strategy: &stubStrategy{err: &fetcher.FetchError{Page: 0, Err: fetcher.ErrForbidden{Err: errors.New("403")}}},
			body:     `{"cookies":"ck=1","method":"puppeteer"}`,
			status:   http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.strategy)
			resp, body := post(t, ts, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["fallback"])
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, &stubStrategy{pages: []string{onePage(7)}})
	post(t, ts, `{"cookies":"ck=1"}`)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var b strings.Builder
	_, err = io.Copy(&b, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, b.String(), `scraper_runs_total{state="done"} 1`)
}

func TestScrapeRejectsGet(t *testing.T) {
	ts := newTestServer(t, &stubStrategy{})
	resp, err := http.Get(ts.URL + "/api/douban/scrape")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
