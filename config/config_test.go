package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "unknown mode",
			mutate: func(cfg *Config) {
				cfg.Mode = "selenium"
			},
			wantErr: "mode",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "max pages above ceiling",
			mutate: func(cfg *Config) {
				cfg.MaxPages = MaxPages + 1
			},
			wantErr: "max pages",
		},
		{
			name: "empty list url",
			mutate: func(cfg *Config) {
				cfg.ListURL = ""
			},
			wantErr: "list URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.ListURL = "http://"
			},
			wantErr: "list URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "negative delay",
			mutate: func(cfg *Config) {
				cfg.Delay = -time.Millisecond
			},
			wantErr: "delay",
		},
		{
			name: "bad output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.PageSize != 15 || cfg.MaxPages != 50 {
		t.Fatalf("page size/max pages = %d/%d, want 15/50", cfg.PageSize, cfg.MaxPages)
	}
}

func TestNormalizeMode(t *testing.T) {
	tests := map[string]string{
		"":          ModeHTTP,
		"axios":     ModeHTTP,
		"HTTP":      ModeHTTP,
		"puppeteer": ModeBrowser,
		" browser ": ModeBrowser,
		"selenium":  "selenium",
	}
	for input, want := range tests {
		if got := NormalizeMode(input); got != want {
			t.Errorf("NormalizeMode(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "mode: puppeteer\nmax_pages: 3\ndelay: 250ms\ncookies: \"from=file\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOUBAN_COOKIES", "dbcl2=abc; ck=xyz")
	t.Setenv("SCRAPER_PAGES", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeBrowser {
		t.Fatalf("mode = %q, want %q", cfg.Mode, ModeBrowser)
	}
	if cfg.MaxPages != 3 {
		t.Fatalf("max pages = %d, want 3", cfg.MaxPages)
	}
	if cfg.Delay != 250*time.Millisecond {
		t.Fatalf("delay = %v, want 250ms", cfg.Delay)
	}
	if cfg.Cookies != "dbcl2=abc; ck=xyz" {
		t.Fatalf("cookies = %q, env should win over file", cfg.Cookies)
	}
	if cfg.PageSize != PageSize {
		t.Fatalf("page size = %d, keys absent from the file keep defaults", cfg.PageSize)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("err = %v, want ErrConfigNotFound", err)
	}
}

func TestApplyEnvRejectsBadInt(t *testing.T) {
	t.Setenv("SCRAPER_PAGES", "many")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "SCRAPER_PAGES") {
		t.Fatalf("expected SCRAPER_PAGES error, got %v", err)
	}
}
