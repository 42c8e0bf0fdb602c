package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}
	if err := ValidateURL(cfg.Site.ListingURL); err != nil {
		return fmt.Errorf("site.listing_url: %w", err)
	}
	if cfg.Site.CategoryID == "" {
		return fmt.Errorf("site.category_id must not be empty")
	}

	if err := ValidateURL(cfg.API.Endpoint); err != nil {
		return fmt.Errorf("api.endpoint: %w", err)
	}
	if cfg.API.DailyLimit < 1 {
		return fmt.Errorf("api.daily_limit must be >= 1, got %d", cfg.API.DailyLimit)
	}

	if cfg.Fetcher.APITimeout <= 0 || cfg.Fetcher.PageTimeout <= 0 {
		return fmt.Errorf("fetcher timeouts must be > 0")
	}
	if cfg.Fetcher.RequestDelay < 0 {
		return fmt.Errorf("fetcher.request_delay must be >= 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.BackoffFactor < 1 {
		return fmt.Errorf("fetcher.backoff_factor must be >= 1, got %g", cfg.Fetcher.BackoffFactor)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}

	if cfg.Crawl.PageSize < 1 || cfg.Crawl.PageSize > 100 {
		return fmt.Errorf("crawl.page_size must be 1-100 (site cap), got %d", cfg.Crawl.PageSize)
	}
	if cfg.Crawl.MaxPagesPerKeyword < 1 {
		return fmt.Errorf("crawl.max_pages_per_keyword must be >= 1, got %d", cfg.Crawl.MaxPagesPerKeyword)
	}
	if cfg.Crawl.ListingPageCap < 1 {
		return fmt.Errorf("crawl.listing_page_cap must be >= 1, got %d", cfg.Crawl.ListingPageCap)
	}
	if cfg.Crawl.AnchorDocID < 1 {
		return fmt.Errorf("crawl.anchor_doc_id must be >= 1, got %d", cfg.Crawl.AnchorDocID)
	}
	if cfg.Crawl.CheckpointInterval < 1 {
		return fmt.Errorf("crawl.checkpoint_interval must be >= 1, got %d", cfg.Crawl.CheckpointInterval)
	}

	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path must not be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a crawl target.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
