// Package enrich builds full ModelRecords from discovery's ModelRefs by
// fetching each repository's file tree and per-file metadata (spec §4.D).
package enrich

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/hub"
	"github.com/R3E-Network/gguf-harvester/internal/model"
)

// quantRule is one entry in the priority-ordered quantization label table;
// longer/more specific labels must be listed before their prefixes.
type quantRule struct {
	label   string
	pattern *regexp.Regexp
}

var quantTable = buildQuantTable([]string{
	"Q3_K_S", "Q3_K_M", "Q3_K_L",
	"Q4_K_S", "Q4_K_M",
	"Q5_K_S", "Q5_K_M",
	"Q2_K", "Q3_K", "Q4_K", "Q5_K", "Q6_K",
	"IQ2_XXS", "IQ2_XS", "IQ3_XXS", "IQ3_S", "IQ3_M", "IQ4_XS", "IQ4_NL",
	"Q4_0", "Q4_1", "Q5_0", "Q5_1", "Q8_0",
	"F16", "F32", "BF16",
})

func buildQuantTable(labels []string) []quantRule {
	rules := make([]quantRule, 0, len(labels))
	for _, l := range labels {
		rules = append(rules, quantRule{label: l, pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(l))})
	}
	sort.Slice(rules, func(i, j int) bool { return len(rules[i].label) > len(rules[j].label) })
	return rules
}

// Quantization derives the quantization label for a filename from the
// closed priority-ordered label set, with fallback rules for common
// alternate spellings.
func Quantization(filename string) string {
	for _, r := range quantTable {
		if r.pattern.MatchString(filename) {
			return r.label
		}
	}
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "fp16"):
		return "F16"
	case strings.Contains(lower, "int8"):
		return "Q8_0"
	case strings.Contains(lower, "int4"):
		return "Q4_0"
	default:
		return "Unknown"
	}
}

type archRule struct {
	pattern *regexp.Regexp
	name    string
}

var archTable = []archRule{
	{regexp.MustCompile(`(?i)llama-2|llama-3|llama`), "Llama"},
	{regexp.MustCompile(`(?i)mixtral`), "Mixtral"},
	{regexp.MustCompile(`(?i)mistral`), "Mistral"},
	{regexp.MustCompile(`(?i)qwen`), "Qwen"},
	{regexp.MustCompile(`(?i)gemma`), "Gemma"},
	{regexp.MustCompile(`(?i)phi`), "Phi"},
	{regexp.MustCompile(`(?i)falcon`), "Falcon"},
	{regexp.MustCompile(`(?i)gpt-?j|gpt-?neox`), "GPT-NeoX"},
}

// Architecture derives a model's architecture family from its id and tags.
func Architecture(id string, tags []string) string {
	haystack := id
	for _, t := range tags {
		haystack += " " + t
	}
	for _, r := range archTable {
		if r.pattern.MatchString(haystack) {
			return r.name
		}
	}
	return "Unknown"
}

type sizeRule struct {
	pattern  *regexp.Regexp
	category string
}

var sizeTable = []sizeRule{
	{regexp.MustCompile(`(?i)\b(1\.?3?b|2b|3b)\b`), "small"},
	{regexp.MustCompile(`(?i)\b(7b|8b|9b|11b|13b)\b`), "medium"},
	{regexp.MustCompile(`(?i)\b(20b|30b|34b|40b|70b)\b`), "large"},
	{regexp.MustCompile(`(?i)\b(120b|175b|180b)\b`), "xlarge"},
}

// SizeCategory derives a coarse parameter-count bucket from substrings in
// the model id.
func SizeCategory(id string) string {
	for _, r := range sizeTable {
		if r.pattern.MatchString(id) {
			return r.category
		}
	}
	return ""
}

// DisplayName derives a human-readable name from the last path segment of
// an id: hyphens/underscores become spaces, and the result is title-cased.
func DisplayName(id string) string {
	parts := strings.Split(id, "/")
	last := parts[len(parts)-1]
	last = strings.ReplaceAll(last, "-", " ")
	last = strings.ReplaceAll(last, "_", " ")
	words := strings.Fields(last)
	for i, w := range words {
		if len(w) == 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Enricher turns ModelRefs into ModelRecords.
type Enricher struct {
	client *hub.Client
	log    *logging.Logger
}

// NewEnricher constructs an Enricher.
func NewEnricher(client *hub.Client, log *logging.Logger) *Enricher {
	return &Enricher{client: client, log: log}
}

// Enrich builds a ModelRecord for one ModelRef. It returns (nil, nil) when
// the repository has zero .gguf files — per §4.D that is a drop, not an
// error.
func (e *Enricher) Enrich(ctx context.Context, ref model.ModelRef) (*model.ModelRecord, error) {
	files, err := e.client.ListRepoFiles(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("enrich %s: list repo files: %w", ref.ID, err)
	}

	var ggufFiles []hub.RepoFile
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f.Path), ".gguf") {
			ggufFiles = append(ggufFiles, f)
		}
	}
	if len(ggufFiles) == 0 {
		return nil, nil
	}

	info, infoErr := e.client.ModelInfoFor(ctx, ref.ID)

	records := make([]model.FileRecord, 0, len(ggufFiles))
	var totalSize int64
	quantSet := map[string]bool{}
	for _, f := range ggufFiles {
		fr := model.FileRecord{
			Filename:     f.Path,
			SizeBytes:    f.Size,
			SizeHuman:    humanSize(f.Size),
			Quantization: Quantization(f.Path),
			DownloadURL:  fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", ref.ID, f.Path),
		}
		totalSize += fr.SizeBytes
		quantSet[fr.Quantization] = true
		records = append(records, fr)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SizeBytes > records[j].SizeBytes })

	quants := utils.MapKeys(quantSet)
	sort.Strings(quants)

	var downloads int64
	var tags []string
	lastModified := time.Now().UTC()
	createdAt := time.Now().UTC()
	if infoErr == nil && info != nil {
		downloads = info.Downloads
		tags = info.Tags
		if t, perr := time.Parse(time.RFC3339, info.LastModified); perr == nil {
			lastModified = t
		}
		if t, perr := time.Parse(time.RFC3339, info.CreatedAt); perr == nil {
			createdAt = t
		}
	} else if e.log != nil {
		e.log.LogHubCall(ctx, "/api/models/"+ref.ID, "GET", 0, infoErr)
	}

	rec := &model.ModelRecord{
		ID:              ref.ID,
		Name:            utils.Coalesce(DisplayName(ref.ID), ref.ID),
		Family:          strings.SplitN(ref.ID, "/", 2)[0],
		Architecture:    Architecture(ref.ID, tags),
		Files:           records,
		Downloads:       downloads,
		Tags:            tags,
		TotalSizeBytes:  totalSize,
		Quantizations:   quants,
		LastModified:    lastModified,
		CreatedAt:       createdAt,
		DiscoveryMethod: ref.DiscoveryMethod,
		ConfidenceScore: ref.ConfidenceScore,
	}
	return rec, nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
