package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("MEDICRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("medicrawl")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".medicrawl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("site.base_url", cfg.Site.BaseURL)
	v.SetDefault("site.entry_path", cfg.Site.EntryPath)
	v.SetDefault("site.listing_url", cfg.Site.ListingURL)
	v.SetDefault("site.category_id", cfg.Site.CategoryID)

	v.SetDefault("api.endpoint", cfg.API.Endpoint)
	v.SetDefault("api.client_id", cfg.API.ClientID)
	v.SetDefault("api.client_secret", cfg.API.ClientSecret)
	v.SetDefault("api.daily_limit", cfg.API.DailyLimit)

	v.SetDefault("fetcher.api_timeout", cfg.Fetcher.APITimeout)
	v.SetDefault("fetcher.page_timeout", cfg.Fetcher.PageTimeout)
	v.SetDefault("fetcher.request_delay", cfg.Fetcher.RequestDelay)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.backoff_factor", cfg.Fetcher.BackoffFactor)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.referer", cfg.Fetcher.Referer)

	v.SetDefault("crawl.page_size", cfg.Crawl.PageSize)
	v.SetDefault("crawl.max_pages_per_keyword", cfg.Crawl.MaxPagesPerKeyword)
	v.SetDefault("crawl.listing_page_cap", cfg.Crawl.ListingPageCap)
	v.SetDefault("crawl.anchor_doc_id", cfg.Crawl.AnchorDocID)
	v.SetDefault("crawl.max_scan_range", cfg.Crawl.MaxScanRange)
	v.SetDefault("crawl.checkpoint_interval", cfg.Crawl.CheckpointInterval)
	v.SetDefault("crawl.max_items", cfg.Crawl.MaxItems)

	v.SetDefault("storage.db_path", cfg.Storage.DBPath)
	v.SetDefault("storage.json_dir", cfg.Storage.JSONDir)
	v.SetDefault("storage.image_dir", cfg.Storage.ImageDir)
	v.SetDefault("storage.checkpoint_dir", cfg.Storage.CheckpointDir)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
