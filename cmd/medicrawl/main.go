package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medicrawl/internal/config"
	"medicrawl/internal/engine"
	"medicrawl/internal/fetcher"
	"medicrawl/internal/media"
	"medicrawl/internal/parser"
	"medicrawl/internal/quota"
	"medicrawl/internal/storage"
	"medicrawl/internal/types"
)

var (
	cfgFile      string
	verbose      bool
	logJSON      bool
	keywordsFlag string
	anchorFlag   int64
	maxItems     int
	delayFlag    string
	noImages     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medicrawl",
		Short: "medicrawl — Naver encyclopedia medicine dictionary crawler",
		Long: `medicrawl collects medicine records from the Naver encyclopedia's
medicine dictionary into a local SQLite database, with per-record JSON
snapshots and package images.

Discovery strategies:
  crawl    — keyword search via the keyed API (quota-limited)
  scan     — document id range scan around a known anchor
  listing  — category listing page walk
  url      — a single entry URL
  resume   — continue a keyword crawl from the latest checkpoint
  retry    — re-run the URLs in the failure ledger`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(listingCmd())
	rootCmd.AddCommand(urlCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(retryCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a strategy command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.Store
	engine *engine.Engine
	ledger *storage.FailureLedger
	quota  *quota.DailyCounter
	ctx    context.Context
	stop   context.CancelFunc
	start  time.Time
}

// setup loads config, builds the component graph, and installs signal
// handling. Every strategy command calls it first.
func setup() (*app, error) {
	logger := buildLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Flags win over the config file's logging section.
	if !verbose && !logJSON {
		logger = loggerFromConfig(cfg)
	}

	store, err := storage.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	counter, err := quota.NewDailyCounter(store.DB(), cfg.API.DailyLimit, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init quota counter: %w", err)
	}

	pageFetcher, err := fetcher.New(cfg, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	searchClient := fetcher.NewSearchClient(cfg, counter, logger)

	host, err := hostOf(cfg.Site.BaseURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	classifier := parser.NewClassifier(host, cfg.Site.EntryPath, cfg.Site.CategoryID, logger)
	extractor, err := parser.NewExtractor(cfg.Site.BaseURL, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create extractor: %w", err)
	}

	snapshots, err := storage.NewSnapshotWriter(cfg.Storage.JSONDir, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	var images engine.ImageDownloader
	if !noImages {
		dl, err := media.NewDownloader(cfg.Storage.ImageDir, pageFetcher, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		images = dl
	}

	checkpoints := storage.NewCheckpointManager(cfg.Storage.CheckpointDir, logger)

	completed, err := storage.LoadCompletedKeywords(
		filepath.Join(cfg.Storage.CheckpointDir, "completed_keywords.txt"))
	if err != nil {
		store.Close()
		return nil, err
	}

	ledger, err := storage.NewFailureLedger(
		filepath.Join(cfg.Storage.CheckpointDir, "failed_urls.jsonl"), logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	eng := engine.New(cfg, engine.Deps{
		Fetcher:     pageFetcher,
		Search:      searchClient,
		Classifier:  classifier,
		Extractor:   extractor,
		Store:       store,
		Snapshots:   snapshots,
		Images:      images,
		Checkpoints: checkpoints,
		Completed:   completed,
		Ledger:      ledger,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		engine: eng,
		ledger: ledger,
		quota:  counter,
		ctx:    ctx,
		stop:   stop,
		start:  time.Now(),
	}, nil
}

// finish prints the run summary and releases resources. A quota stop or
// a SIGINT is a clean exit, not a failure.
func (a *app) finish(err error) error {
	a.stop()
	a.ledger.Close()
	a.store.Close()

	stats := a.engine.Stats().Snapshot()
	elapsed := time.Since(a.start).Round(time.Millisecond)

	a.logger.Info("run complete",
		"elapsed", elapsed,
		"processed", stats["processed"],
		"saved", stats["saved"],
		"failed", stats["failed"],
	)

	fmt.Printf("\nCrawl finished in %s\n", elapsed)
	fmt.Printf("  Processed:   %v\n", stats["processed"])
	fmt.Printf("  Saved:       %v new, %v updated\n", stats["saved"], stats["updated"])
	fmt.Printf("  Duplicates:  %v\n", stats["duplicates"])
	fmt.Printf("  Skipped:     %v (non-medicine or already stored)\n", stats["skipped"])
	fmt.Printf("  Not found:   %v\n", stats["not_found"])
	fmt.Printf("  Invalid:     %v\n", stats["invalid"])
	fmt.Printf("  Failed:      %v\n", stats["failed"])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrQuotaExhausted):
		fmt.Println("\nDaily API quota exhausted; progress checkpointed. Run again tomorrow or use `resume`.")
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Println("\nInterrupted; progress checkpointed. Use `resume` to continue.")
		return nil
	default:
		return err
	}
}

func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl via keyword search (API quota-limited)",
		Long: `Walks a keyword list through the search API, fetching every medicine
entry the results link to. Without --keywords a built-in seed list of
Korean initial consonants, the alphabet, and common drug categories is
used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			keywords := engine.DefaultKeywords()
			if keywordsFlag != "" {
				keywords = splitKeywords(keywordsFlag)
			}
			a.logger.Info("keyword crawl starting", "keywords", len(keywords))
			return a.finish(a.engine.CrawlKeywords(a.ctx, keywords, nil))
		},
	}
	cmd.Flags().StringVarP(&keywordsFlag, "keywords", "k", "", "comma-separated keywords (default: built-in seed list)")
	addCommonFlags(cmd)
	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a document id range around a known anchor",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			anchor := anchorFlag
			if anchor == 0 {
				anchor = a.cfg.Crawl.AnchorDocID
			}
			a.logger.Info("id range scan starting", "anchor", anchor)
			return a.finish(a.engine.ScanRange(a.ctx, anchor))
		},
	}
	cmd.Flags().Int64Var(&anchorFlag, "anchor", 0, "anchor document id (default: configured anchor)")
	addCommonFlags(cmd)
	return cmd
}

func listingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listing",
		Short: "Walk the category listing pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			a.logger.Info("listing crawl starting", "cap", a.cfg.Crawl.ListingPageCap)
			return a.finish(a.engine.CrawlListing(a.ctx))
		},
	}
	addCommonFlags(cmd)
	return cmd
}

func urlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url [entry-url...]",
		Short: "Process one or more entry URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range args {
				if err := config.ValidateURL(raw); err != nil {
					return fmt.Errorf("invalid URL %q: %w", raw, err)
				}
			}
			a, err := setup()
			if err != nil {
				return err
			}
			var runErr error
			for _, raw := range args {
				if a.ctx.Err() != nil {
					runErr = a.ctx.Err()
					break
				}
				a.engine.ProcessURL(a.ctx, raw)
			}
			return a.finish(runErr)
		},
	}
	addCommonFlags(cmd)
	return cmd
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a keyword crawl from the latest checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			cm := storage.NewCheckpointManager(a.cfg.Storage.CheckpointDir, a.logger)
			cp, err := cm.LoadLatest()
			if err != nil {
				return a.finish(err)
			}
			if cp == nil {
				fmt.Println("No checkpoint found; starting a fresh keyword crawl.")
			} else if cp.Strategy != "keyword" {
				fmt.Printf("Latest checkpoint is for the %q strategy; resume only supports keyword crawls.\n", cp.Strategy)
				return a.finish(nil)
			}
			keywords := engine.DefaultKeywords()
			if keywordsFlag != "" {
				keywords = splitKeywords(keywordsFlag)
			}
			return a.finish(a.engine.CrawlKeywords(a.ctx, keywords, cp))
		},
	}
	cmd.Flags().StringVarP(&keywordsFlag, "keywords", "k", "", "comma-separated keywords (must match the interrupted run)")
	addCommonFlags(cmd)
	return cmd
}

func retryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-run the URLs recorded in the failure ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			path := filepath.Join(a.cfg.Storage.CheckpointDir, "failed_urls.jsonl")
			failed, err := storage.ReadFailedURLs(path)
			if err != nil {
				return a.finish(err)
			}
			if len(failed) == 0 {
				fmt.Println("Failure ledger is empty; nothing to retry.")
				return a.finish(nil)
			}
			a.logger.Info("retrying failed urls", "count", len(failed))

			seen := map[string]bool{}
			var runErr error
			for _, entry := range failed {
				if seen[entry.URL] {
					continue
				}
				seen[entry.URL] = true
				if a.ctx.Err() != nil {
					runErr = a.ctx.Err()
					break
				}
				a.engine.ProcessURL(a.ctx, entry.URL)
			}
			return a.finish(runErr)
		},
	}
	addCommonFlags(cmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("medicrawl %s\n", config.Version)
		},
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "stop after N processed items (0 = unlimited)")
	cmd.Flags().StringVar(&delayFlag, "delay", "", "inter-request delay (e.g. 800ms)")
	cmd.Flags().BoolVar(&noImages, "no-images", false, "skip image downloads")
}

// buildLogger creates the process logger per flags and defaults.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// loggerFromConfig builds the logger from the config file's logging section.
func loggerFromConfig(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides folds flag values into the loaded config.
func applyCLIOverrides(cfg *config.Config) {
	if delayFlag != "" {
		if d, err := time.ParseDuration(delayFlag); err == nil {
			cfg.Fetcher.RequestDelay = d
		}
	}
	if maxItems > 0 {
		cfg.Crawl.MaxItems = maxItems
	}
}

func splitKeywords(raw string) []string {
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}
