package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"medicrawl/internal/config"
	"medicrawl/internal/quota"
	"medicrawl/internal/storage"
	"medicrawl/internal/types"
)

var (
	exportFormat string
	exportPath   string
)

// openReadOnly builds just enough of the stack for reporting commands.
func openReadOnly() (*config.Config, *storage.Store, error) {
	logger := buildLogger()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	store, err := storage.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, store, nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openReadOnly()
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := context.Background()

			count, err := store.Count(ctx)
			if err != nil {
				return err
			}

			counter, err := quota.NewDailyCounter(store.DB(), cfg.API.DailyLimit, buildLogger())
			if err != nil {
				return err
			}
			used, err := counter.Used(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Records:          %d\n", count)
			fmt.Printf("API calls today:  %d / %d\n", used, cfg.API.DailyLimit)

			cats, err := store.TopCategories(ctx, 10)
			if err != nil {
				return err
			}
			if len(cats) > 0 {
				fmt.Println("\nTop categories:")
				for _, c := range cats {
					fmt.Printf("  %-20s %d\n", c.Category, c.Count)
				}
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all records to JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openReadOnly()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.All(context.Background())
			if err != nil {
				return err
			}

			switch exportFormat {
			case "json":
				err = exportJSON(exportPath, records)
			case "csv":
				err = exportCSV(exportPath, records)
			default:
				return fmt.Errorf("unsupported format %q (json or csv)", exportFormat)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d records to %s\n", len(records), exportPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format: json, csv")
	cmd.Flags().StringVarP(&exportPath, "output", "o", "medicines_export.json", "output file path")
	return cmd
}

func exportJSON(path string, records []*types.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

func exportCSV(path string, records []*types.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"id", "url", "korean_name", "english_name", "category", "type",
		"company", "appearance", "insurance_code", "shape", "color", "size",
		"identification", "components", "efficacy", "precautions", "dosage",
		"storage", "period", "image_url", "image_path", "data_hash",
		"created_at", "updated_at",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10), r.URL, r.KoreanName, r.EnglishName,
			r.Category, r.Type, r.Company, r.Appearance, r.InsuranceCode,
			r.Shape, r.Color, r.Size, r.Identification, r.Components,
			r.Efficacy, r.Precautions, r.Dosage, r.Storage, r.Period,
			r.ImageURL, r.ImagePath, r.DataHash,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Site:\n")
			fmt.Printf("  Base URL:          %s\n", cfg.Site.BaseURL)
			fmt.Printf("  Entry Path:        %s\n", cfg.Site.EntryPath)
			fmt.Printf("  Listing URL:       %s\n", cfg.Site.ListingURL)
			fmt.Printf("  Category ID:       %s\n", cfg.Site.CategoryID)
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Endpoint:          %s\n", cfg.API.Endpoint)
			fmt.Printf("  Client ID set:     %v\n", cfg.API.ClientID != "")
			fmt.Printf("  Daily Limit:       %d\n", cfg.API.DailyLimit)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  API Timeout:       %s\n", cfg.Fetcher.APITimeout)
			fmt.Printf("  Page Timeout:      %s\n", cfg.Fetcher.PageTimeout)
			fmt.Printf("  Request Delay:     %s\n", cfg.Fetcher.RequestDelay)
			fmt.Printf("  Max Retries:       %d\n", cfg.Fetcher.MaxRetries)
			fmt.Printf("  Follow Redirects:  %v\n", cfg.Fetcher.FollowRedirects)
			fmt.Printf("\nCrawl:\n")
			fmt.Printf("  Page Size:         %d\n", cfg.Crawl.PageSize)
			fmt.Printf("  Anchor Doc ID:     %d\n", cfg.Crawl.AnchorDocID)
			fmt.Printf("  Max Scan Range:    %d\n", cfg.Crawl.MaxScanRange)
			fmt.Printf("  Listing Page Cap:  %d\n", cfg.Crawl.ListingPageCap)
			fmt.Printf("  Checkpoint Every:  %d items\n", cfg.Crawl.CheckpointInterval)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Database:          %s\n", cfg.Storage.DBPath)
			fmt.Printf("  JSON Snapshots:    %s\n", cfg.Storage.JSONDir)
			fmt.Printf("  Images:            %s\n", cfg.Storage.ImageDir)
			fmt.Printf("  Checkpoints:       %s\n", cfg.Storage.CheckpointDir)
			return nil
		},
	}
}
