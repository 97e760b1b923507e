// Package retention implements the retention subsystem (spec §4.G): it
// keeps a bounded dataset of recent uploads and top-K most-downloaded
// models, merging the two views and cleaning up everything else.
package retention

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/discovery"
	"github.com/R3E-Network/gguf-harvester/internal/hub"
	"github.com/R3E-Network/gguf-harvester/internal/model"
)

// Config holds the retention subsystem's tunables, all with spec defaults.
type Config struct {
	RetentionDays          int
	TopModelsCount         int
	PreserveThreshold       int64
	CleanupEnabled         bool
	CleanupBatchSize       int
	RankingHistoryDays     int
	RankingHistoryEnabled  bool
	RecentModelsPriority   bool
}

// DefaultConfig returns spec.md §4.G / §6's defaults.
func DefaultConfig() Config {
	return Config{
		RetentionDays:         30,
		TopModelsCount:        20,
		PreserveThreshold:     1000,
		CleanupEnabled:        true,
		CleanupBatchSize:      100,
		RankingHistoryDays:    90,
		RankingHistoryEnabled: true,
		RecentModelsPriority:  true,
	}
}

// DateFilterResult is G1's output.
type DateFilterResult struct {
	Models    []model.ModelRef
	Cutoff    time.Time
	APICalls  int
	Duration  time.Duration
	Success   bool
}

// DateFilteredExtraction implements G1: retain models created since cutoff.
func DateFilteredExtraction(ctx context.Context, client *hub.Client, cfg Config, now time.Time) (DateFilterResult, error) {
	start := time.Now()
	cutoff := now.AddDate(0, 0, -cfg.RetentionDays).UTC()

	summaries, err := client.ListModels(ctx, 1000, 0)
	if err != nil {
		return DateFilterResult{Cutoff: cutoff, Success: false}, err
	}

	var refs []model.ModelRef
	for _, s := range summaries {
		if !discovery.LikelyHasGGUF(s.ID, s.Tags) {
			continue
		}
		attrs := map[string]interface{}{"downloads": s.Downloads, "tags": s.Tags}
		if s.CreatedAt == "" {
			if cfg.RecentModelsPriority {
				refs = append(refs, model.ModelRef{ID: s.ID, DiscoveryMethod: "date_filtered_no_date", ConfidenceScore: 0.8, Attributes: attrs})
			}
			continue
		}
		createdAt, perr := time.Parse(time.RFC3339, s.CreatedAt)
		if perr != nil {
			if cfg.RecentModelsPriority {
				refs = append(refs, model.ModelRef{ID: s.ID, DiscoveryMethod: "date_filtered_no_date", ConfidenceScore: 0.8, Attributes: attrs})
			}
			continue
		}
		attrs["created_at"] = createdAt.UTC()
		if !createdAt.UTC().Before(cutoff) {
			refs = append(refs, model.ModelRef{ID: s.ID, DiscoveryMethod: "date_filtered", ConfidenceScore: 1.0, Attributes: attrs})
		}
	}

	return DateFilterResult{
		Models:   refs,
		Cutoff:   cutoff,
		APICalls: 1,
		Duration: time.Since(start),
		Success:  true,
	}, nil
}

// TopKResult is G2's output.
type TopKResult struct {
	Rankings       []model.TopRanking
	Models         []model.ModelRef
	StabilityRatio float64
	NoChange       int
	MovedUp        int
	MovedDown      int
	NewEntries     int
	DroppedOut     int
}

// TopKMaintenance implements G2: fetch up to 2K candidates, keep top K by
// downloads, and compute rank deltas against the previous snapshot.
func TopKMaintenance(ctx context.Context, client *hub.Client, cfg Config, previous []model.TopRanking) (TopKResult, error) {
	summaries, err := client.ListModels(ctx, 2*cfg.TopModelsCount, 0)
	if err != nil {
		return TopKResult{}, err
	}

	sort.SliceStable(summaries, func(i, j int) bool { return summaries[i].Downloads > summaries[j].Downloads })
	if len(summaries) > cfg.TopModelsCount {
		summaries = summaries[:cfg.TopModelsCount]
	}

	prevByID := utils.SliceToMap(previous, func(p model.TopRanking) string { return p.ModelID })

	rankings := make([]model.TopRanking, 0, len(summaries))
	refs := make([]model.ModelRef, 0, len(summaries))
	var noChange, movedUp, movedDown, newEntries int

	for i, s := range summaries {
		rank := i + 1
		daysInTop := 1
		var prevRankPtr *int
		rankChange := 0

		if prev, ok := prevByID[s.ID]; ok {
			prevRankPtr = utils.Ptr(prev.Rank)
			rankChange = prev.Rank - rank
			daysInTop = prev.DaysInTop + 1
			switch {
			case rankChange == 0:
				noChange++
			case rankChange > 0:
				movedUp++
			default:
				movedDown++
			}
		} else {
			newEntries++
		}

		firstTop := time.Now().UTC()
		if prev, ok := prevByID[s.ID]; ok {
			firstTop = prev.FirstTopDate
		}

		rankings = append(rankings, model.TopRanking{
			ModelID:       s.ID,
			Rank:          rank,
			DownloadCount: s.Downloads,
			PreviousRank:  prevRankPtr,
			RankChange:    rankChange,
			DaysInTop:     daysInTop,
			FirstTopDate:  firstTop,
		})
		attrs := map[string]interface{}{"downloads": s.Downloads, "tags": s.Tags}
		if t, perr := time.Parse(time.RFC3339, s.CreatedAt); perr == nil {
			attrs["created_at"] = t.UTC()
		}
		refs = append(refs, model.ModelRef{
			ID: s.ID, DiscoveryMethod: "top_k", ConfidenceScore: 1.0,
			Attributes: attrs,
		})
	}

	currentIDs := make(map[string]bool, len(rankings))
	for _, r := range rankings {
		currentIDs[r.ModelID] = true
	}
	droppedOut := 0
	for _, p := range previous {
		if !currentIDs[p.ModelID] {
			droppedOut++
		}
	}

	var stability float64
	if cfg.TopModelsCount > 0 {
		stability = float64(noChange) / float64(cfg.TopModelsCount)
	}

	return TopKResult{
		Rankings:       rankings,
		Models:         refs,
		StabilityRatio: stability,
		NoChange:       noChange,
		MovedUp:        movedUp,
		MovedDown:      movedDown,
		NewEntries:     newEntries,
		DroppedOut:     droppedOut,
	}, nil
}

// mergeCandidate tracks a ModelRef plus the bookkeeping needed to compute
// priority and cross-source attribute merges.
type mergeCandidate struct {
	ref      model.ModelRef
	source   model.RetentionSource
	rank     int
	priority float64
	sources  map[model.RetentionSource]bool
}

// MergeResult is G3's output.
type MergeResult struct {
	Merged        []model.ModelRef
	IntegrityScore float64
}

// priority computes the source-weighted priority score from §4.G3.
func priority(source model.RetentionSource, downloads int64, confidence float64, rank int) float64 {
	base := 0.6
	switch source {
	case model.RetentionSourceTop:
		base = 1.0
	case model.RetentionSourceRecent:
		base = 0.8
	}

	p := base
	p += math.Min(0.2, math.Log10(float64(downloads)+1)/10)
	p += (confidence - 0.5) * 0.1
	if source == model.RetentionSourceTop && rank > 0 && rank <= 10 {
		p += float64(11-rank) * 0.01
	}
	return p
}

// Merge implements G3: normalize, prioritize, deduplicate, and validate
// integrity of the merged recent+top-K view.
func Merge(recent []model.ModelRef, topK []model.ModelRef, rankings []model.TopRanking) MergeResult {
	rankByID := make(map[string]int, len(rankings))
	for _, r := range rankings {
		rankByID[r.ModelID] = r.Rank
	}

	byID := make(map[string]*mergeCandidate)

	addAll := func(refs []model.ModelRef, source model.RetentionSource) {
		for _, ref := range refs {
			downloads := downloadsOf(ref)
			rank := rankByID[ref.ID]
			p := priority(source, downloads, ref.ConfidenceScore, rank)

			if existing, ok := byID[ref.ID]; ok {
				existing.sources[source] = true
				merged := mergeAttributes(existing.ref.Attributes, ref.Attributes)
				if p > existing.priority {
					existing.priority = p
					existing.ref = ref
					existing.source = source
					existing.rank = rank
				}
				existing.ref.Attributes = merged
			} else {
				sources := map[model.RetentionSource]bool{source: true}
				byID[ref.ID] = &mergeCandidate{ref: ref, source: source, rank: rank, priority: p, sources: sources}
			}
		}
	}

	addAll(recent, model.RetentionSourceRecent)
	addAll(topK, model.RetentionSourceTop)

	out := make([]model.ModelRef, 0, len(byID))
	validCount := 0
	for id, c := range byID {
		if len(c.sources) > 1 {
			c.ref.DiscoveryMethod = "merged"
		}
		c.ref.Attributes = mergeOrInit(c.ref.Attributes)
		c.ref.Attributes["priority"] = c.priority
		c.ref.Attributes["source"] = string(c.source)

		if id != "" && c.priority >= 0 && c.priority <= 2 && downloadsOf(c.ref) >= 0 {
			validCount++
		}
		out = append(out, c.ref)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	var score float64
	if len(out) > 0 {
		score = float64(validCount) / float64(len(out))
	}

	return MergeResult{Merged: out, IntegrityScore: score}
}

func downloadsOf(ref model.ModelRef) int64 {
	if ref.Attributes == nil {
		return 0
	}
	if v, ok := ref.Attributes["downloads"].(int64); ok {
		return v
	}
	return 0
}

func mergeOrInit(attrs map[string]interface{}) map[string]interface{} {
	if attrs == nil {
		return map[string]interface{}{}
	}
	return attrs
}

// mergeAttributes combines a duplicate group's attributes independent of
// which record is ultimately retained (§4.G3): downloads take the max,
// created_at/upload_date take the min, and tags union.
func mergeAttributes(dst, src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}

	dDownloads, _ := out["downloads"].(int64)
	if sDownloads, ok := src["downloads"].(int64); ok && sDownloads > dDownloads {
		out["downloads"] = sDownloads
	}

	for _, key := range []string{"created_at", "upload_date"} {
		dCreated, dOK := out[key].(time.Time)
		sCreated, sOK := src[key].(time.Time)
		switch {
		case dOK && sOK && sCreated.Before(dCreated):
			out[key] = sCreated
		case !dOK && sOK:
			out[key] = sCreated
		}
	}

	dTags, _ := out["tags"].([]string)
	sTags, _ := src["tags"].([]string)
	if dTags != nil || sTags != nil {
		out["tags"] = unionStrings(dTags, sTags)
	}

	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// CleanupResult is G4's output.
type CleanupResult struct {
	Removed      []string
	FreedBytes   int64
	Success      bool
}

// Cleanup implements G4: preserve current top-K, high-download, and recent
// models; everything else in the tracked set is eligible for removal, in
// batches, with freed-bytes accounting.
func Cleanup(ctx context.Context, cfg Config, tracked []model.RetentionMetadata, currentTopIDs map[string]bool, now time.Time) CleanupResult {
	if !cfg.CleanupEnabled {
		return CleanupResult{Success: true}
	}

	cutoff := now.AddDate(0, 0, -cfg.RetentionDays).UTC()

	var eligible []model.RetentionMetadata
	for _, m := range tracked {
		preserve := currentTopIDs[m.ModelID] ||
			m.DownloadCount >= cfg.PreserveThreshold ||
			!m.LastUpdated.Before(cutoff) ||
			!m.FirstSeen.Before(cutoff)
		if !preserve {
			eligible = append(eligible, m)
		}
	}

	var removed []string
	var freed int64
	for i := 0; i < len(eligible); i += cfg.CleanupBatchSize {
		end := i + cfg.CleanupBatchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		for _, m := range eligible[i:end] {
			removed = append(removed, m.ModelID)
			freed += m.FileSizeBytes
		}
	}

	return CleanupResult{Removed: removed, FreedBytes: freed, Success: true}
}

// ChangeCategory classifies a ranking entry's movement for reporting.
func ChangeCategory(r model.TopRanking) string {
	switch {
	case r.PreviousRank == nil:
		return "new_entries"
	case r.RankChange > 0:
		return "moved_up"
	case r.RankChange < 0:
		return "moved_down"
	default:
		return "no_change"
	}
}
