package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for medicrawl.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"     yaml:"site"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Crawl    CrawlConfig    `mapstructure:"crawl"    yaml:"crawl"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// SiteConfig describes the target encyclopedia site.
type SiteConfig struct {
	BaseURL    string `mapstructure:"base_url"    yaml:"base_url"`
	EntryPath  string `mapstructure:"entry_path"  yaml:"entry_path"`
	ListingURL string `mapstructure:"listing_url" yaml:"listing_url"`
	CategoryID string `mapstructure:"category_id" yaml:"category_id"`
}

// APIConfig holds the keyed search API credentials and endpoint.
type APIConfig struct {
	Endpoint     string `mapstructure:"endpoint"      yaml:"endpoint"`
	ClientID     string `mapstructure:"client_id"     yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	DailyLimit   int    `mapstructure:"daily_limit"   yaml:"daily_limit"`
}

// FetcherConfig controls the HTTP fetcher.
type FetcherConfig struct {
	APITimeout      time.Duration `mapstructure:"api_timeout"      yaml:"api_timeout"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"     yaml:"page_timeout"`
	RequestDelay    time.Duration `mapstructure:"request_delay"    yaml:"request_delay"`
	MaxRetries      int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"      yaml:"retry_delay"`
	BackoffFactor   float64       `mapstructure:"backoff_factor"   yaml:"backoff_factor"`
	FollowRedirects bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"    yaml:"max_body_size"`
	UserAgent       string        `mapstructure:"user_agent"       yaml:"user_agent"`
	Referer         string        `mapstructure:"referer"          yaml:"referer"`
}

// CrawlConfig controls the discovery strategies.
type CrawlConfig struct {
	PageSize           int   `mapstructure:"page_size"            yaml:"page_size"`
	MaxPagesPerKeyword int   `mapstructure:"max_pages_per_keyword" yaml:"max_pages_per_keyword"`
	ListingPageCap     int   `mapstructure:"listing_page_cap"     yaml:"listing_page_cap"`
	AnchorDocID        int64 `mapstructure:"anchor_doc_id"        yaml:"anchor_doc_id"`
	MaxScanRange       int   `mapstructure:"max_scan_range"       yaml:"max_scan_range"`
	CheckpointInterval int   `mapstructure:"checkpoint_interval"  yaml:"checkpoint_interval"`
	MaxItems           int   `mapstructure:"max_items"            yaml:"max_items"`
}

// StorageConfig controls on-disk artifacts.
type StorageConfig struct {
	DBPath        string `mapstructure:"db_path"        yaml:"db_path"`
	JSONDir       string `mapstructure:"json_dir"       yaml:"json_dir"`
	ImageDir      string `mapstructure:"image_dir"      yaml:"image_dir"`
	CheckpointDir string `mapstructure:"checkpoint_dir" yaml:"checkpoint_dir"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:    "https://terms.naver.com",
			EntryPath:  "/entry.naver",
			ListingURL: "https://terms.naver.com/medicineSearch.naver",
			CategoryID: "51000",
		},
		API: APIConfig{
			Endpoint:   "https://openapi.naver.com/v1/search/encyc.json",
			DailyLimit: 25000,
		},
		Fetcher: FetcherConfig{
			APITimeout:      10 * time.Second,
			PageTimeout:     15 * time.Second,
			RequestDelay:    500 * time.Millisecond,
			MaxRetries:      3,
			RetryDelay:      1 * time.Second,
			BackoffFactor:   2.0,
			FollowRedirects: false,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Referer:         "https://search.naver.com/",
		},
		Crawl: CrawlConfig{
			PageSize:           100,
			MaxPagesPerKeyword: 10,
			ListingPageCap:     100,
			AnchorDocID:        2134746,
			MaxScanRange:       1000,
			CheckpointInterval: 100,
			MaxItems:           0,
		},
		Storage: StorageConfig{
			DBPath:        "data/medicines.db",
			JSONDir:       "data/json",
			ImageDir:      "data/images",
			CheckpointDir: "checkpoints",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
