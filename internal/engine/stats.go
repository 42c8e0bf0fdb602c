package engine

import (
	"sync/atomic"
	"time"
)

// Stats tracks crawl counters. Atomics keep the signal-handler summary
// print safe while a strategy loop is mid-item.
type Stats struct {
	Processed  atomic.Int64
	Saved      atomic.Int64
	Updated    atomic.Int64
	Duplicates atomic.Int64
	Skipped    atomic.Int64
	NotFound   atomic.Int64
	Invalid    atomic.Int64
	Failed     atomic.Int64
	StartTime  time.Time
}

// NewStats creates a stats block with the clock started.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// Snapshot returns a copy of the counters safe for reporting.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"processed":  s.Processed.Load(),
		"saved":      s.Saved.Load(),
		"updated":    s.Updated.Load(),
		"duplicates": s.Duplicates.Load(),
		"skipped":    s.Skipped.Load(),
		"not_found":  s.NotFound.Load(),
		"invalid":    s.Invalid.Load(),
		"failed":     s.Failed.Load(),
		"elapsed":    time.Since(s.StartTime).Round(time.Second).String(),
	}
}
