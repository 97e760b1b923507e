// Package validate implements the schema validation and automatic repair
// engine (spec §4.E): rule-based field checks, a bounded set of repair
// heuristics, quality/completeness scoring, and a cached HEAD-based file
// accessibility check.
package validate

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/R3E-Network/gguf-harvester/internal/enrich"
	"github.com/R3E-Network/gguf-harvester/internal/model"
)

// AllowedQuantizations is the closed 25-label set §4.E's constraint check
// enforces for FileRecord.Quantization.
var AllowedQuantizations = map[string]bool{
	"Q2_K": true, "Q3_K_S": true, "Q3_K_M": true, "Q3_K_L": true,
	"Q4_K_S": true, "Q4_K_M": true, "Q5_K_S": true, "Q5_K_M": true,
	"Q6_K": true, "Q4_0": true, "Q4_1": true, "Q5_0": true, "Q5_1": true,
	"Q8_0": true, "IQ2_XXS": true, "IQ2_XS": true, "IQ3_XXS": true,
	"IQ3_S": true, "IQ3_M": true, "IQ4_XS": true, "IQ4_NL": true,
	"F16": true, "F32": true, "BF16": true, "Unknown": true,
}

var idPattern = regexp.MustCompile(`^[^/]+/[^/]+$`)

// Severity ranks a ValidationIssue.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

const (
	maxDescriptionLen = 300
	maxTagsLen        = 10
)

// Engine validates and repairs ModelRecords.
type Engine struct {
	structValidator *validator.Validate
	urlCache        *lru.Cache[string, cachedAccessibility]
	httpClient      *http.Client
	cacheMu         sync.Mutex
	concurrency     chan struct{}
}

type cachedAccessibility struct {
	accessible bool
	checkedAt  time.Time
}

const urlCacheTTL = 3600 * time.Second
const headConcurrency = 10

// NewEngine constructs a validation Engine.
func NewEngine() *Engine {
	cache, _ := lru.New[string, cachedAccessibility](10000)
	return &Engine{
		structValidator: validator.New(),
		urlCache:        cache,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		concurrency:      make(chan struct{}, headConcurrency),
	}
}

// Result is the outcome of validating (and possibly repairing) one record.
type Result struct {
	Issues          []model.ValidationIssue
	AutoFixesApplied int
	IsValid         bool
}

// Validate checks a record against the rule set, attempts auto-repair for
// fixable issues, and re-validates. It mutates rec in place when repairs are
// applied.
func (e *Engine) Validate(rec *model.ModelRecord) Result {
	issues := e.check(rec)
	fixes := e.repair(rec, issues)

	var final []model.ValidationIssue
	if fixes > 0 {
		final = e.check(rec)
	} else {
		final = issues
	}

	isValid := true
	for _, iss := range final {
		if iss.Severity == SeverityCritical || iss.Severity == SeverityError {
			isValid = false
			break
		}
	}

	quality := qualityScore(final)
	completeness := completenessScore(rec)

	rec.Validation = model.ValidationAnnotation{
		IsValid:           isValid,
		QualityScore:      quality,
		CompletenessScore: completeness,
		IssuesCount:       len(final),
		AutoFixesApplied:  fixes,
		ValidatedAt:       time.Now().UTC(),
	}

	return Result{Issues: final, AutoFixesApplied: fixes, IsValid: isValid}
}

func (e *Engine) check(rec *model.ModelRecord) []model.ValidationIssue {
	var issues []model.ValidationIssue

	if rec.ID == "" {
		issues = append(issues, issue(SeverityCritical, "id", "id is required", false))
	} else if !idPattern.MatchString(rec.ID) {
		issues = append(issues, issue(SeverityError, "id", "id must match owner/name", true))
	}

	if rec.Name == "" {
		issues = append(issues, issue(SeverityError, "name", "name is missing", true))
	}

	if len(rec.Files) == 0 {
		issues = append(issues, issue(SeverityCritical, "files", "record has no files", false))
	}

	if rec.Downloads < 0 {
		issues = append(issues, issue(SeverityError, "downloads", "downloads must be >= 0", true))
	}

	if len(rec.Tags) > maxTagsLen {
		issues = append(issues, issue(SeverityWarning, "tags", "tags exceed declared maximum", true))
	}

	var computedSize int64
	for _, f := range rec.Files {
		computedSize += f.SizeBytes
		if !strings.HasSuffix(strings.ToLower(f.Filename), ".gguf") {
			issues = append(issues, issue(SeverityError, "files.filename", "file is not a .gguf file: "+f.Filename, false))
		}
		if !strings.HasPrefix(f.DownloadURL, "https://") {
			issues = append(issues, issue(SeverityError, "files.download_url", "download_url must be https", false))
		}
		if !AllowedQuantizations[f.Quantization] {
			issues = append(issues, issue(SeverityWarning, "files.quantization", "unexpected quantization value: "+f.Quantization, true))
		}
	}
	if computedSize != rec.TotalSizeBytes {
		issues = append(issues, issue(SeverityWarning, "total_size_bytes", "does not match sum of file sizes", true))
	}

	return issues
}

func issue(severity, field, message string, autoFixable bool) model.ValidationIssue {
	return model.ValidationIssue{
		Category:    "schema",
		Severity:    severity,
		Field:       field,
		Message:     message,
		AutoFixable: autoFixable,
	}
}

// repair applies the bounded set of §4.E auto-fixes for fixable issues and
// returns the number applied.
func (e *Engine) repair(rec *model.ModelRecord, issues []model.ValidationIssue) int {
	applied := 0
	for _, iss := range issues {
		if !iss.AutoFixable {
			continue
		}
		switch iss.Field {
		case "name":
			rec.Name = enrich.DisplayName(rec.ID)
			applied++
		case "downloads":
			if rec.Downloads < 0 {
				rec.Downloads = 0
				applied++
			}
		case "tags":
			if len(rec.Tags) > maxTagsLen {
				rec.Tags = rec.Tags[:maxTagsLen]
				applied++
			}
		case "total_size_bytes":
			var sum int64
			for _, f := range rec.Files {
				sum += f.SizeBytes
			}
			rec.TotalSizeBytes = sum
			applied++
		case "id":
			// owner/name mismatch cannot be synthesized safely; skip.
		case "files.quantization":
			for i := range rec.Files {
				if !AllowedQuantizations[rec.Files[i].Quantization] {
					rec.Files[i].Quantization = enrich.Quantization(rec.Files[i].Filename)
					applied++
				}
			}
		}
	}

	if rec.Family == "" {
		parts := strings.SplitN(rec.ID, "/", 2)
		if len(parts) == 2 {
			rec.Family = parts[0]
			applied++
		}
	}
	if rec.Architecture == "" {
		rec.Architecture = enrich.Architecture(rec.ID, rec.Tags)
		applied++
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	return applied
}

func qualityScore(issues []model.ValidationIssue) float64 {
	score := 100.0
	for _, iss := range issues {
		switch iss.Severity {
		case SeverityCritical:
			score -= 25
		case SeverityError:
			score -= 10
		case SeverityWarning:
			score -= 5
		case SeverityInfo:
			score -= 1
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func completenessScore(rec *model.ModelRecord) float64 {
	required := []bool{rec.ID != "", rec.Name != "", len(rec.Files) > 0}
	optional := []bool{rec.Family != "", rec.Architecture != "", rec.Downloads > 0, len(rec.Tags) > 0, !rec.LastModified.IsZero()}

	present := 0
	for _, v := range required {
		if v {
			present++
		}
	}
	for _, v := range optional {
		if v {
			present++
		}
	}
	total := len(required) + len(optional)
	if total == 0 {
		return 0
	}
	return 100 * float64(present) / float64(total)
}

// ParseIntLenient parses a stringly-typed int field, defaulting to 0 on
// failure, per the downloads/likes repair rule.
func ParseIntLenient(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// CheckAccessible performs a cached HEAD request against a file's download
// URL, treating 2xx/3xx as accessible. Results are cached for 3600s.
func (e *Engine) CheckAccessible(ctx context.Context, url string) (bool, error) {
	e.cacheMu.Lock()
	if cached, ok := e.urlCache.Get(url); ok && time.Since(cached.checkedAt) < urlCacheTTL {
		e.cacheMu.Unlock()
		return cached.accessible, nil
	}
	e.cacheMu.Unlock()

	select {
	case e.concurrency <- struct{}{}:
		defer func() { <-e.concurrency }()
	case <-ctx.Done():
		return false, ctx.Err()
	}

	headCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(headCtx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("validate: build HEAD request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	accessible := false
	if err == nil {
		accessible = resp.StatusCode >= 200 && resp.StatusCode < 400
		resp.Body.Close()
	}

	e.cacheMu.Lock()
	e.urlCache.Add(url, cachedAccessibility{accessible: accessible, checkedAt: time.Now()})
	e.cacheMu.Unlock()

	if err != nil {
		return false, fmt.Errorf("validate: HEAD %s: %w", url, err)
	}
	return accessible, nil
}
