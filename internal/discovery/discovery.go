// Package discovery implements the multi-strategy model discovery engine
// (spec §4.C): several independent hub queries run, each isolated from the
// others' failures, then merged into one deduplicated candidate set.
package discovery

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/hub"
	"github.com/R3E-Network/gguf-harvester/internal/model"
)

// QuantizationLabels is the fixed label set strategy 2 searches for.
var QuantizationLabels = []string{
	"Q4_K_M", "Q4_K_S", "Q5_K_M", "Q5_K_S", "Q3_K_M", "Q3_K_S", "Q3_K_L",
	"Q6_K", "Q2_K", "Q8_0", "Q4_0", "Q4_1", "Q5_0", "Q5_1", "F16", "F32",
	"IQ1_S", "IQ1_M", "IQ2_XXS", "IQ2_XS", "IQ2_S", "IQ2_M",
	"IQ3_XXS", "IQ3_S", "IQ3_M", "IQ4_XS", "IQ4_NL", "BF16",
}

// ArchitectureFamilies is the fixed family set strategy 3 searches for.
var ArchitectureFamilies = []string{
	"llama", "llama-2", "llama-3", "mistral", "mixtral", "qwen", "qwen2",
	"gemma", "phi", "phi-3", "codellama", "vicuna", "alpaca", "chatglm",
	"baichuan", "yi", "deepseek", "internlm", "falcon", "mpt", "bloom",
	"opt", "pythia", "stablelm", "redpajama", "openllama",
}

// OrganizationAccounts is the fixed publisher list strategy 4 crawls.
var OrganizationAccounts = []string{
	"microsoft", "meta-llama", "mistralai", "google", "Qwen", "huggingface",
	"NousResearch", "teknium", "TheBloke", "bartowski", "QuantFactory",
	"unsloth", "mlabonne", "cognitivecomputations", "garage-bAInd",
	"stabilityai", "EleutherAI", "bigscience", "togethercomputer",
	"lmsys", "WizardLM", "Open-Orca", "ehartford", "jondurbin",
}

var quantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`q\d+_k_[msl]`),
	regexp.MustCompile(`q\d+_\d+`),
	regexp.MustCompile(`iq\d+_[a-z]+`),
	regexp.MustCompile(`f\d+`),
	regexp.MustCompile(`bf\d+`),
	regexp.MustCompile(`int\d+`),
}

var ggufSubstrings = []string{
	"gguf", "ggml", ".gguf", "-gguf", "_gguf",
	"q4_k_m", "q4_0", "q5_0", "q8_0", "f16", "f32",
}

// LikelyHasGGUF applies the §4.C heuristic against a repo id and its tags.
func LikelyHasGGUF(id string, tags []string) bool {
	haystack := strings.ToLower(id)
	for _, t := range tags {
		haystack += " " + strings.ToLower(t)
	}
	for _, s := range ggufSubstrings {
		if strings.Contains(haystack, s) {
			return true
		}
	}
	for _, p := range quantPatterns {
		if p.MatchString(haystack) {
			return true
		}
	}
	return false
}

// StrategyResult is the isolated outcome of one discovery strategy.
type StrategyResult struct {
	Name  string
	Refs  []model.ModelRef
	Err   error
}

// Report summarizes the merged outcome of all strategies, for metrics.
type Report struct {
	PerStrategyCount  map[string]int
	SumRaw            int
	UnionCount        int
	DedupeRate        float64
	SeenByMultiple    int
}

// Engine runs the four discovery strategies against a hub client.
type Engine struct {
	client *hub.Client
	log    *logging.Logger
	// Stagger is the pause between launching successive strategies.
	Stagger time.Duration
}

// NewEngine constructs a discovery Engine.
func NewEngine(client *hub.Client, log *logging.Logger) *Engine {
	return &Engine{client: client, log: log, Stagger: 200 * time.Millisecond}
}

// Run executes all strategies, isolating each one's failure, and returns the
// merged, deduplicated candidate set plus a Report. The engine succeeds (no
// error) if at least one strategy returned no error.
func (e *Engine) Run(ctx context.Context) ([]model.ModelRef, Report, error) {
	strategies := []func(context.Context) StrategyResult{
		e.runPrimary,
		e.runQuantizationTags,
		e.runArchitectureTags,
		e.runOrganizationCrawl,
	}

	results := make([]StrategyResult, 0, len(strategies))
	for _, strategy := range strategies {
		results = append(results, strategy(ctx))
		time.Sleep(e.Stagger)
	}

	var merr *multierror.Error
	anySucceeded := false
	report := Report{PerStrategyCount: map[string]int{}}
	for _, r := range results {
		report.PerStrategyCount[r.Name] = len(r.Refs)
		report.SumRaw += len(r.Refs)
		if r.Err != nil {
			merr = multierror.Append(merr, r.Err)
			if e.log != nil {
				e.log.LogDiscoveryStrategy(ctx, r.Name, len(r.Refs), 0, r.Err)
			}
			continue
		}
		anySucceeded = true
		if e.log != nil {
			e.log.LogDiscoveryStrategy(ctx, r.Name, len(r.Refs), 0, nil)
		}
	}

	if !anySucceeded {
		return nil, report, merr.ErrorOrNil()
	}

	merged, seenByMultiple := merge(results)
	report.UnionCount = len(merged)
	report.SeenByMultiple = seenByMultiple
	if report.SumRaw > 0 {
		report.DedupeRate = float64(report.SumRaw-report.UnionCount) / float64(report.SumRaw)
	}

	return merged, report, nil
}

func merge(results []StrategyResult) ([]model.ModelRef, int) {
	type entry struct {
		ref     model.ModelRef
		methods map[string]bool
		count   int
	}
	byID := make(map[string]*entry)

	for _, r := range results {
		for _, ref := range r.Refs {
			e, ok := byID[ref.ID]
			if !ok {
				e = &entry{ref: ref, methods: map[string]bool{}}
				byID[ref.ID] = e
			}
			if ref.ConfidenceScore > e.ref.ConfidenceScore {
				e.ref = ref
			}
			e.methods[ref.DiscoveryMethod] = true
			e.count++
		}
	}

	seenByMultiple := 0
	out := make([]model.ModelRef, 0, len(byID))
	for _, e := range byID {
		methods := utils.MapKeys(e.methods)
		sort.Strings(methods)
		e.ref.DiscoveryMethod = strings.Join(methods, ",")
		if e.ref.Attributes == nil {
			e.ref.Attributes = map[string]interface{}{}
		}
		e.ref.Attributes["discovery_count"] = e.count
		if len(methods) > 1 {
			seenByMultiple++
		}
		out = append(out, e.ref)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, seenByMultiple
}

func (e *Engine) runPrimary(ctx context.Context) StrategyResult {
	summaries, err := e.client.ListModels(ctx, 10000, 0)
	if err != nil {
		return StrategyResult{Name: "primary", Err: err}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Downloads > summaries[j].Downloads })

	refs := make([]model.ModelRef, 0, len(summaries))
	for _, s := range summaries {
		refs = append(refs, model.ModelRef{ID: s.ID, DiscoveryMethod: "primary", ConfidenceScore: 1.0})
	}
	return StrategyResult{Name: "primary", Refs: refs}
}

func (e *Engine) runQuantizationTags(ctx context.Context) StrategyResult {
	var refs []model.ModelRef
	var merr *multierror.Error
	for _, label := range QuantizationLabels {
		summaries, err := e.client.SearchModels(ctx, label, 100)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		for _, s := range summaries {
			if !LikelyHasGGUF(s.ID, s.Tags) {
				continue
			}
			refs = append(refs, model.ModelRef{ID: s.ID, DiscoveryMethod: "quantization_tags", ConfidenceScore: 0.8})
		}
	}
	return StrategyResult{Name: "quantization_tags", Refs: refs, Err: merr.ErrorOrNil()}
}

func (e *Engine) runArchitectureTags(ctx context.Context) StrategyResult {
	var refs []model.ModelRef
	var merr *multierror.Error
	for _, family := range ArchitectureFamilies {
		summaries, err := e.client.SearchModels(ctx, family+" gguf", 50)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		for _, s := range summaries {
			if !LikelyHasGGUF(s.ID, s.Tags) {
				continue
			}
			refs = append(refs, model.ModelRef{ID: s.ID, DiscoveryMethod: "architecture_tags", ConfidenceScore: 0.7})
		}
	}
	return StrategyResult{Name: "architecture_tags", Refs: refs, Err: merr.ErrorOrNil()}
}

func (e *Engine) runOrganizationCrawl(ctx context.Context) StrategyResult {
	var refs []model.ModelRef
	var merr *multierror.Error
	for _, org := range OrganizationAccounts {
		summaries, err := e.client.SearchModels(ctx, org, 100)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		for _, s := range summaries {
			if !strings.HasPrefix(s.ID, org+"/") {
				continue
			}
			refs = append(refs, model.ModelRef{ID: s.ID, DiscoveryMethod: "organization_crawl", ConfidenceScore: 0.9})
		}
	}
	return StrategyResult{Name: "organization_crawl", Refs: refs, Err: merr.ErrorOrNil()}
}
