// Package artifacts builds and persists the JSON artifacts §4.J emits, in
// compact (no-whitespace, sorted-keys) form, via infrastructure/state's
// atomic write-then-rename FileBackend.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/gguf-harvester/infrastructure/state"
	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/model"
)

const (
	maxSearchTextChars = 300
	maxTagsFacet       = 10
	topLightCount      = 100
	topStatisticsCount = 10
	topFamiliesCount   = 20
)

// Writer persists pipeline artifacts under a FileBackend root.
type Writer struct {
	backend *state.FileBackend
}

// NewWriter constructs a Writer rooted at dir.
func NewWriter(dir string) (*Writer, error) {
	backend, err := state.NewFileBackend(dir)
	if err != nil {
		return nil, err
	}
	return &Writer{backend: backend}, nil
}

// GenerationMetadata accompanies models.json.
type GenerationMetadata struct {
	GeneratedAt  time.Time `json:"generatedAt"`
	TotalModels  int       `json:"totalModels"`
	SyncDuration float64   `json:"syncDurationSeconds"`
}

// WriteAll emits every artifact §4.J names for one completed run.
func (w *Writer) WriteAll(ctx context.Context, records []model.ModelRecord, syncDuration time.Duration) error {
	sorted := make([]model.ModelRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Downloads > sorted[j].Downloads })

	if err := w.writeModels(ctx, sorted, syncDuration); err != nil {
		return err
	}
	if err := w.writeSearchIndex(ctx, sorted); err != nil {
		return err
	}
	if err := w.writeStatistics(ctx, sorted); err != nil {
		return err
	}
	if err := w.writeFacets(ctx, sorted); err != nil {
		return err
	}
	if err := w.writeLight(ctx, sorted); err != nil {
		return err
	}
	if err := w.writeLegacy(ctx, sorted); err != nil {
		return err
	}
	return nil
}

func (w *Writer) save(ctx context.Context, key string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("artifacts: encode %s: %w", key, err)
	}
	compact, err := compactSortedKeys(buf.Bytes())
	if err != nil {
		return fmt.Errorf("artifacts: compact %s: %w", key, err)
	}
	return w.backend.Save(ctx, key, compact)
}

// compactSortedKeys re-marshals through a generic interface{} so that every
// JSON object becomes a Go map, which json.Marshal encodes with sorted keys
// and no whitespace, satisfying the "no whitespace, sorted keys" output
// contract.
func compactSortedKeys(data []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func capTags(tags []string, n int) []string {
	if len(tags) <= n {
		return tags
	}
	return tags[:n]
}

func (w *Writer) writeModels(ctx context.Context, records []model.ModelRecord, syncDuration time.Duration) error {
	optimized := make([]model.ModelRecord, len(records))
	for i, r := range records {
		opt := r
		opt.Tags = capTags(r.Tags, maxTagsFacet)
		files := make([]model.FileRecord, len(r.Files))
		copy(files, r.Files)
		sort.Slice(files, func(a, b int) bool { return files[a].SizeBytes > files[b].SizeBytes })
		opt.Files = files
		optimized[i] = opt
	}

	payload := struct {
		Models   []model.ModelRecord `json:"models"`
		Metadata GenerationMetadata  `json:"metadata"`
	}{
		Models: optimized,
		Metadata: GenerationMetadata{
			GeneratedAt:  time.Now().UTC(),
			TotalModels:  len(optimized),
			SyncDuration: syncDuration.Seconds(),
		},
	}
	return w.save(ctx, "models.json", payload)
}

type searchEntry struct {
	SearchText      string   `json:"searchText"`
	Name            string   `json:"name"`
	Architecture    string   `json:"arch"`
	Family          string   `json:"family"`
	Quantizations   []string `json:"quants"`
	Size            int64    `json:"size"`
	Downloads       int64    `json:"downloads"`
	Files           int      `json:"files"`
	DiscoveryMethod string   `json:"discoveryMethod"`
}

func (w *Writer) writeSearchIndex(ctx context.Context, records []model.ModelRecord) error {
	index := make(map[string]searchEntry, len(records))
	for _, r := range records {
		index[r.ID] = searchEntry{
			SearchText:      utils.Truncate(strings.ToLower(r.ID+" "+r.Name+" "+strings.Join(r.Tags, " ")), maxSearchTextChars),
			Name:            r.Name,
			Architecture:    r.Architecture,
			Family:          r.Family,
			Quantizations:   r.Quantizations,
			Size:            r.TotalSizeBytes,
			Downloads:       r.Downloads,
			Files:           len(r.Files),
			DiscoveryMethod: r.DiscoveryMethod,
		}
	}
	payload := struct {
		Models   map[string]searchEntry `json:"models"`
		Metadata GenerationMetadata      `json:"metadata"`
	}{
		Models:   index,
		Metadata: GenerationMetadata{GeneratedAt: time.Now().UTC(), TotalModels: len(records)},
	}
	return w.save(ctx, "search-index.json", payload)
}

func (w *Writer) writeStatistics(ctx context.Context, records []model.ModelRecord) error {
	archCount := map[string]int{}
	familyCount := map[string]int{}
	quantCount := map[string]int{}
	sizeCount := map[string]int{}

	for _, r := range records {
		archCount[r.Architecture]++
		familyCount[r.Family]++
		for _, q := range r.Quantizations {
			quantCount[q]++
		}
	}

	top10 := make([]model.ModelRecord, 0, topStatisticsCount)
	for i, r := range records {
		if i >= topStatisticsCount {
			break
		}
		top10 = append(top10, r)
	}

	payload := struct {
		Summary       map[string]interface{} `json:"summary"`
		Architectures map[string]int          `json:"architectures"`
		Families      map[string]int          `json:"families"`
		Quantizations map[string]int          `json:"quantizations"`
		SizeBuckets   map[string]int          `json:"sizeBuckets"`
		Top10         []model.ModelRecord     `json:"top10"`
	}{
		Summary:       map[string]interface{}{"totalModels": len(records), "generatedAt": time.Now().UTC()},
		Architectures: archCount,
		Families:      topNFamilies(familyCount, topFamiliesCount),
		Quantizations: quantCount,
		SizeBuckets:   sizeCount,
		Top10:         top10,
	}
	return w.save(ctx, "statistics.json", payload)
}

func topNFamilies(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	all := make([]kv, 0, len(counts))
	for k, v := range counts {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v > all[j].v })
	if len(all) > n {
		all = all[:n]
	}
	out := make(map[string]int, len(all))
	for _, e := range all {
		out[e.k] = e.v
	}
	return out
}

func (w *Writer) writeFacets(ctx context.Context, records []model.ModelRecord) error {
	families := map[string][]string{}
	archs := map[string][]string{}
	quants := map[string][]string{}

	for _, r := range records {
		families[r.Family] = append(families[r.Family], r.ID)
		archs[r.Architecture] = append(archs[r.Architecture], r.ID)
		for _, q := range r.Quantizations {
			quants[q] = append(quants[q], r.ID)
		}
	}

	if err := w.save(ctx, "families.json", families); err != nil {
		return err
	}
	if err := w.save(ctx, "architectures.json", archs); err != nil {
		return err
	}
	return w.save(ctx, "quantizations.json", quants)
}

type lightEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Downloads int64  `json:"downloads"`
	Files     int    `json:"files"`
}

func (w *Writer) writeLight(ctx context.Context, records []model.ModelRecord) error {
	n := topLightCount
	if n > len(records) {
		n = len(records)
	}
	light := make([]lightEntry, 0, n)
	for _, r := range records[:n] {
		light = append(light, lightEntry{ID: r.ID, Name: r.Name, Downloads: r.Downloads, Files: len(r.Files)})
	}
	return w.save(ctx, "models-light.json", light)
}

type legacyFile struct {
	Filename string `json:"filename"`
}

type legacyModel struct {
	ModelID             string       `json:"modelId"`
	Files               []legacyFile `json:"files"`
	Downloads           int64        `json:"downloads"`
	LastModified        time.Time    `json:"lastModified"`
	LastSynced          time.Time    `json:"lastSynced"`
	FreshnessStatus     string       `json:"freshnessStatus"`
	HoursSinceModified  float64      `json:"hoursSinceModified"`
	HoursSinceSynced    float64      `json:"hoursSinceSynced"`
}

type legacySizeEntry struct {
	TotalSize       int64            `json:"totalSize"`
	Files           map[string]int64 `json:"files"`
	LastUpdated     time.Time        `json:"lastUpdated"`
	FreshnessStatus string           `json:"freshnessStatus"`
}

func (w *Writer) writeLegacy(ctx context.Context, records []model.ModelRecord) error {
	legacyModels := make([]legacyModel, 0, len(records))
	sizes := make(map[string]legacySizeEntry, len(records))

	for _, r := range records {
		files := make([]legacyFile, 0, len(r.Files))
		sizeMap := make(map[string]int64, len(r.Files))
		for _, f := range r.Files {
			files = append(files, legacyFile{Filename: f.Filename})
			sizeMap[f.Filename] = f.SizeBytes
		}

		legacyModels = append(legacyModels, legacyModel{
			ModelID:            r.ID,
			Files:              files,
			Downloads:          r.Downloads,
			LastModified:       r.LastModified,
			LastSynced:         r.Freshness.LastSyncedAt,
			FreshnessStatus:    r.Freshness.Status,
			HoursSinceModified: time.Since(r.LastModified).Hours(),
			HoursSinceSynced:   r.Freshness.HoursSinceSync,
		})

		sizes[r.ID] = legacySizeEntry{
			TotalSize:       r.TotalSizeBytes,
			Files:           sizeMap,
			LastUpdated:     r.LastModified,
			FreshnessStatus: r.Freshness.Status,
		}
	}

	if err := w.save(ctx, "gguf_models.json", legacyModels); err != nil {
		return err
	}
	return w.save(ctx, "gguf_models_estimated_sizes.json", sizes)
}
