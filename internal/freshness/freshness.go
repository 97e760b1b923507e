// Package freshness stamps ModelRecords with sync-recency metadata and
// aggregates a site-wide freshness summary (spec §4.I).
package freshness

import (
	"fmt"
	"time"

	"github.com/R3E-Network/gguf-harvester/internal/model"
)

// Status buckets for a ModelRecord's staleness.
const (
	StatusFresh     = "fresh"
	StatusStale     = "stale"
	StatusVeryStale = "very_stale"
	StatusUnknown   = "unknown"
)

// StampRecord annotates rec with freshness data relative to runStart.
func StampRecord(rec *model.ModelRecord, runStart time.Time) {
	rec.Freshness.LastSyncedAt = runStart
	rec.Freshness.HoursSinceSync = 0

	if rec.LastModified.IsZero() {
		rec.Freshness.Status = StatusUnknown
		rec.Freshness.StalenessWarning = true
		return
	}

	hoursSinceModified := runStart.Sub(rec.LastModified).Hours()
	switch {
	case hoursSinceModified < 24:
		rec.Freshness.Status = StatusFresh
	case hoursSinceModified <= 25:
		rec.Freshness.Status = StatusStale
	default:
		rec.Freshness.Status = StatusVeryStale
	}
	rec.Freshness.StalenessWarning = hoursSinceModified > 25
}

// SiteMetadata is the aggregated freshness summary for a whole run.
type SiteMetadata struct {
	SyncDuration        time.Duration
	TotalModels         int
	ModelsWithTimestamp int
	ModelsWithoutTime   int
	MinModified         time.Time
	MaxModified         time.Time
	FreshnessScore      float64
	Warnings            []string
}

// Aggregate builds the site-wide FreshnessMetadata from stamped records.
func Aggregate(records []model.ModelRecord, syncDuration time.Duration) SiteMetadata {
	var meta SiteMetadata
	meta.SyncDuration = syncDuration
	meta.TotalModels = len(records)

	freshCount := 0
	for _, r := range records {
		if r.LastModified.IsZero() {
			meta.ModelsWithoutTime++
		} else {
			meta.ModelsWithTimestamp++
			if meta.MinModified.IsZero() || r.LastModified.Before(meta.MinModified) {
				meta.MinModified = r.LastModified
			}
			if r.LastModified.After(meta.MaxModified) {
				meta.MaxModified = r.LastModified
			}
		}
		if r.Freshness.Status == StatusFresh {
			freshCount++
		}
		if r.Freshness.StalenessWarning {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf("%s is %s", r.ID, r.Freshness.Status))
		}
	}

	if meta.TotalModels > 0 {
		meta.FreshnessScore = float64(freshCount) / float64(meta.TotalModels)
	}
	return meta
}

// Indicator is the per-site status artifact §4.I emits.
type Indicator struct {
	Color                string `json:"color"` // green, yellow, red
	Message              string `json:"message"`
	ShowStalenessWarning bool   `json:"showStalenessWarning"`
}

// BuildIndicator derives the site status indicator from the aggregate
// metadata and the hours elapsed since the run started.
func BuildIndicator(meta SiteMetadata, hoursSinceSync float64) Indicator {
	color := "green"
	switch {
	case hoursSinceSync > 25 || meta.FreshnessScore < 0.9:
		color = "red"
	case hoursSinceSync > 24 || meta.FreshnessScore < 0.98:
		color = "yellow"
	}

	return Indicator{
		Color:                color,
		Message:              fmt.Sprintf("Updated %.0f hours ago", hoursSinceSync),
		ShowStalenessWarning: hoursSinceSync > 25 || len(meta.Warnings) > 0,
	}
}
