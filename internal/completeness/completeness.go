// Package completeness implements the completeness verifier (spec §4.F):
// it compares the processed model set against the hub's total gguf-tagged
// count and against a recency sample, surfacing missing-model candidates.
package completeness

import (
	"context"
	"time"

	"github.com/R3E-Network/gguf-harvester/infrastructure/cache"
	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/hub"
	"github.com/R3E-Network/gguf-harvester/internal/model"
)

const countCacheTTL = 3600 * time.Second
const hubTotalKey = "hub_total_count"

// Status is the completeness threshold bucket.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
)

// Report is the outcome of one completeness check.
type Report struct {
	HubTotal           int64
	ProcessedWithFiles int
	Score              float64
	Status             Status
	MissingModels      []string
	CompleteDataRate   float64
	AccessibilityRate  float64
}

// Verifier checks dataset completeness against the hub.
type Verifier struct {
	client *hub.Client
	cache  *cache.Cache

	lastKnownTotal int64
}

// NewVerifier constructs a Verifier.
func NewVerifier(client *hub.Client) *Verifier {
	return &Verifier{
		client: client,
		cache: cache.NewCache(cache.CacheConfig{
			DefaultTTL:      countCacheTTL,
			MaxSize:         1,
			CleanupInterval: countCacheTTL,
		}),
	}
}

// hubTotal fetches the hub's total count of gguf-tagged models, cached for
// countCacheTTL. On a fetch error past expiry it falls back to the last
// known total rather than reporting zero coverage.
func (v *Verifier) hubTotal(ctx context.Context) int64 {
	if cached, ok := v.cache.Get(hubTotalKey); ok {
		if total, ok := cached.(int64); ok {
			return total
		}
	}

	total, err := v.client.CountModels(ctx)
	if err != nil {
		return v.lastKnownTotal
	}
	v.cache.Set(hubTotalKey, total, countCacheTTL)
	v.lastKnownTotal = total
	return total
}

// Verify computes the completeness report for a processed record set,
// sampling the first 100 entries of the hub's gguf-tagged listing for
// missing-model detection. The listing is taken in the order the hub
// returns it; no sort by modification time is requested.
func (v *Verifier) Verify(ctx context.Context, records []model.ModelRecord, completeRecords, accessibleFiles, totalFiles int) Report {
	processed := make(map[string]bool, len(records))
	withFiles := 0
	for _, r := range records {
		processed[r.ID] = true
		if len(r.Files) > 0 {
			withFiles++
		}
	}

	total := v.hubTotal(ctx)

	var score float64
	if total > 0 {
		score = 100 * float64(withFiles) / float64(total)
	}

	status := StatusCritical
	switch {
	case score >= 98:
		status = StatusExcellent
	case score >= 95:
		status = StatusGood
	case score >= 90:
		status = StatusWarning
	}

	var missing []string
	recent, err := v.client.ListModels(ctx, 100, 0)
	if err == nil {
		ids := make([]string, len(recent))
		for i, s := range recent {
			ids[i] = s.ID
		}
		missing = utils.Filter(ids, func(id string) bool { return !processed[id] })
	}

	var completeRate float64
	if len(records) > 0 {
		completeRate = 100 * float64(completeRecords) / float64(len(records))
	}

	var accessRate float64
	if totalFiles > 0 {
		accessRate = 100 * float64(accessibleFiles) / float64(totalFiles)
	}

	return Report{
		HubTotal:           total,
		ProcessedWithFiles: withFiles,
		Score:              score,
		Status:             status,
		MissingModels:      missing,
		CompleteDataRate:   completeRate,
		AccessibilityRate:  accessRate,
	}
}

// ShouldAlert reports whether this report's findings warrant an alert, and
// at what severity, per §4.F's thresholds.
func (r Report) ShouldAlert() (shouldAlert bool, severity string, reason string) {
	switch {
	case r.Score < 90:
		return true, "critical", "completeness score below 90"
	case r.Score < 95:
		return true, "warning", "completeness score below 95"
	case len(r.MissingModels) >= 50:
		return true, "warning", "missing-model count at or above 50"
	case r.CompleteDataRate < 80:
		return true, "warning", "complete-data rate below 80%"
	case r.AccessibilityRate < 90 && r.AccessibilityRate > 0:
		return true, "warning", "file-accessibility rate below 90%"
	default:
		return false, "", ""
	}
}
