package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// PageSize is the number of entries Douban renders per shelf page.
	PageSize = 15
	// MaxPages caps how many shelf pages a single run may visit.
	MaxPages = 50

	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

// Config holds scraper configuration.
type Config struct {
	ListURL        string        `yaml:"list_url"`
	CookieDomain   string        `yaml:"cookie_domain"`
	Cookies        string        `yaml:"cookies"`
	Mode           string        `yaml:"mode"` // http or browser
	PageSize       int           `yaml:"page_size"`
	MaxPages       int           `yaml:"max_pages"`
	Delay          time.Duration `yaml:"delay"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRedirects   int           `yaml:"max_redirects"`
	DedupeMaxSize  int           `yaml:"dedupe_max_size"`
	UserAgent      string        `yaml:"user_agent"`
	Headless       bool          `yaml:"headless"`
	BlockResources bool          `yaml:"block_resources"`
	ChromePath     string        `yaml:"chrome_path"`
	RenderWait     time.Duration `yaml:"render_wait"`
	OutputFile     string        `yaml:"output_file"`
	OutputFormat   string        `yaml:"output_format"` // csv, json, or dual
	MetricsAddr    string        `yaml:"metrics_addr"`
	ListenAddr     string        `yaml:"listen_addr"`
	Verbose        bool          `yaml:"verbose"`
}

// DefaultConfig returns the settings the shelf scraper ships with.
func DefaultConfig() *Config {
	return &Config{
		ListURL:        "https://book.douban.com/mine?status=collect",
		CookieDomain:   ".douban.com",
		Mode:           ModeHTTP,
		PageSize:       PageSize,
		MaxPages:       MaxPages,
		Delay:          time.Second,
		Timeout:        20 * time.Second,
		MaxRedirects:   5,
		DedupeMaxSize:  PageSize * MaxPages,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Headless:       true,
		BlockResources: true,
		RenderWait:     time.Second,
		OutputFile:     "output/collection.json",
		OutputFormat:   "json",
		ListenAddr:     ":8080",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.ListURL == "" {
		return fmt.Errorf("list URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.ListURL)
	if err != nil {
		return fmt.Errorf("invalid list URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("list URL must include a host")
	}

	if c.CookieDomain == "" {
		return fmt.Errorf("cookie domain cannot be empty")
	}
	if c.Mode != ModeHTTP && c.Mode != ModeBrowser {
		return fmt.Errorf("mode must be %s or %s", ModeHTTP, ModeBrowser)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.MaxPages > MaxPages {
		return fmt.Errorf("max pages cannot exceed %d", MaxPages)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects cannot be negative")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.RenderWait < 0 {
		return fmt.Errorf("render wait cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// Clone returns a shallow copy that callers may mutate freely.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}

// NormalizeMode maps the mode names used by older clients onto ours.
func NormalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeHTTP, "axios", "static":
		return ModeHTTP
	case ModeBrowser, "puppeteer", "chrome":
		return ModeBrowser
	default:
		return strings.ToLower(strings.TrimSpace(mode))
	}
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overrides fields from the SCRAPER_* and DOUBAN_* variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("DOUBAN_COOKIES"); ok {
		c.Cookies = value
	}
	if value, ok := EnvString("SCRAPER_MODE"); ok {
		c.Mode = NormalizeMode(value)
	}
	if value, ok, err := EnvInt("SCRAPER_PAGES"); err != nil {
		return err
	} else if ok {
		c.MaxPages = value
	}
	if value, ok, err := EnvInt("SCRAPER_DELAY_MS"); err != nil {
		return err
	} else if ok {
		c.Delay = time.Duration(value) * time.Millisecond
	}
	if value, ok := EnvString("SCRAPER_OUTPUT"); ok {
		c.OutputFile = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok := EnvString("SCRAPER_CHROME_PATH"); ok {
		c.ChromePath = value
	}
	return nil
}
