// Package quota enforces the daily call ceiling of the keyed search API.
//
// The counter lives in the same SQLite database as the records, keyed by
// calendar date, so quota state survives restarts and resets naturally at
// midnight without any scheduled job.
package quota

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"medicrawl/internal/types"
)

// DailyCounter tracks API calls per calendar date against a fixed limit.
type DailyCounter struct {
	db     *sql.DB
	limit  int
	logger *slog.Logger
}

// NewDailyCounter creates a counter on the shared database handle,
// ensuring its table exists.
func NewDailyCounter(db *sql.DB, limit int, logger *slog.Logger) (*DailyCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS api_calls (
		date  TEXT    NOT NULL UNIQUE,
		count INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return nil, fmt.Errorf("init api_calls table: %w", err)
	}
	return &DailyCounter{
		db:     db,
		limit:  limit,
		logger: logger.With("component", "quota"),
	}, nil
}

// today returns the counter key for the current calendar date.
func today() string { return time.Now().Format("2006-01-02") }

// Used returns the number of calls recorded for today.
func (c *DailyCounter) Used(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count FROM api_calls WHERE date = ?`, today()).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return n, nil
}

// Remaining returns how many calls are left today.
func (c *DailyCounter) Remaining(ctx context.Context) (int, error) {
	used, err := c.Used(ctx)
	if err != nil {
		return 0, err
	}
	if used >= c.limit {
		return 0, nil
	}
	return c.limit - used, nil
}

// Allow returns types.ErrQuotaExhausted when today's count has reached
// the limit. Callers check it before any network traffic.
func (c *DailyCounter) Allow(ctx context.Context) error {
	used, err := c.Used(ctx)
	if err != nil {
		return err
	}
	if used >= c.limit {
		c.logger.Warn("daily quota exhausted", "used", used, "limit", c.limit)
		return types.ErrQuotaExhausted
	}
	return nil
}

// Record counts one call against today, atomically. The upsert keeps the
// increment race-free even with multiple crawler processes on one DB.
func (c *DailyCounter) Record(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO api_calls (date, count) VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET count = count + 1`, today())
	if err != nil {
		return fmt.Errorf("record api call: %w", err)
	}
	return nil
}
