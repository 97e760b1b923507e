package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/gguf-harvester/internal/model"
)

func refWithDownloads(id string, downloads int64, confidence float64) model.ModelRef {
	return model.ModelRef{
		ID:              id,
		ConfidenceScore: confidence,
		Attributes:      map[string]interface{}{"downloads": downloads},
	}
}

func TestMerge_DeduplicatesAcrossSources(t *testing.T) {
	recent := []model.ModelRef{refWithDownloads("a/model", 10, 1.0)}
	topK := []model.ModelRef{refWithDownloads("a/model", 10, 1.0), refWithDownloads("b/model", 5000, 1.0)}
	rankings := []model.TopRanking{{ModelID: "b/model", Rank: 1}}

	result := Merge(recent, topK, rankings)

	assert.Len(t, result.Merged, 2)
	var merged model.ModelRef
	for _, r := range result.Merged {
		if r.ID == "a/model" {
			merged = r
		}
	}
	assert.Equal(t, "merged", merged.DiscoveryMethod)
}

func TestMerge_PrefersHigherPrioritySource(t *testing.T) {
	recent := []model.ModelRef{refWithDownloads("a/model", 10, 0.5)}
	topK := []model.ModelRef{refWithDownloads("a/model", 10, 0.5)}
	rankings := []model.TopRanking{{ModelID: "a/model", Rank: 1}}

	result := Merge(recent, topK, rankings)

	assert.Len(t, result.Merged, 1)
	assert.Equal(t, string(model.RetentionSourceTop), result.Merged[0].Attributes["source"])
}

func TestMerge_IntegrityScoreCountsValidEntries(t *testing.T) {
	recent := []model.ModelRef{refWithDownloads("a/model", 10, 1.0)}
	result := Merge(recent, nil, nil)

	assert.Equal(t, 1.0, result.IntegrityScore)
}

func TestMerge_EmptyInputsProduceZeroScore(t *testing.T) {
	result := Merge(nil, nil, nil)

	assert.Empty(t, result.Merged)
	assert.Equal(t, 0.0, result.IntegrityScore)
}

func TestPriority_TopSourceOutranksRecent(t *testing.T) {
	top := priority(model.RetentionSourceTop, 1000, 1.0, 1)
	recent := priority(model.RetentionSourceRecent, 1000, 1.0, 0)

	assert.Greater(t, top, recent)
}

func TestPriority_HighRankBoostsScore(t *testing.T) {
	rank1 := priority(model.RetentionSourceTop, 1000, 1.0, 1)
	rank10 := priority(model.RetentionSourceTop, 1000, 1.0, 10)

	assert.Greater(t, rank1, rank10)
}

func TestChangeCategory(t *testing.T) {
	up := 1
	down := -1
	zero := 0

	assert.Equal(t, "new_entries", ChangeCategory(model.TopRanking{PreviousRank: nil}))
	assert.Equal(t, "moved_up", ChangeCategory(model.TopRanking{PreviousRank: &up, RankChange: 3}))
	assert.Equal(t, "moved_down", ChangeCategory(model.TopRanking{PreviousRank: &down, RankChange: -2}))
	assert.Equal(t, "no_change", ChangeCategory(model.TopRanking{PreviousRank: &zero, RankChange: 0}))
}

func TestCleanup_DisabledReturnsEmptySuccess(t *testing.T) {
	cfg := Config{CleanupEnabled: false}
	result := Cleanup(context.Background(), cfg, []model.RetentionMetadata{{ModelID: "a"}}, nil, time.Now())

	assert.True(t, result.Success)
	assert.Empty(t, result.Removed)
}

func TestCleanup_PreservesTopHighDownloadsAndRecent(t *testing.T) {
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -60)
	cfg := Config{
		CleanupEnabled:   true,
		RetentionDays:    30,
		CleanupBatchSize: 100,
		PreserveThreshold: 1000,
	}
	tracked := []model.RetentionMetadata{
		{ModelID: "current-top", FirstSeen: old, LastUpdated: old, DownloadCount: 1},
		{ModelID: "high-downloads", FirstSeen: old, LastUpdated: old, DownloadCount: 5000},
		{ModelID: "recent", FirstSeen: now, LastUpdated: now, DownloadCount: 1},
		{ModelID: "stale", FirstSeen: old, LastUpdated: old, DownloadCount: 1, FileSizeBytes: 42},
	}
	currentTop := map[string]bool{"current-top": true}

	result := Cleanup(context.Background(), cfg, tracked, currentTop, now)

	assert.Equal(t, []string{"stale"}, result.Removed)
	assert.Equal(t, int64(42), result.FreedBytes)
}

func TestCleanup_BatchesRemovals(t *testing.T) {
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -60)
	cfg := Config{CleanupEnabled: true, RetentionDays: 30, CleanupBatchSize: 1, PreserveThreshold: 1000}

	tracked := []model.RetentionMetadata{
		{ModelID: "one", FirstSeen: old, LastUpdated: old},
		{ModelID: "two", FirstSeen: old, LastUpdated: old},
	}

	result := Cleanup(context.Background(), cfg, tracked, nil, now)

	assert.ElementsMatch(t, []string{"one", "two"}, result.Removed)
}
