// Package orchestrator sequences the pipeline's phases (spec §4.H):
// discovery → enrichment → validation → completeness in full mode, or
// top-K → date-filter → merge → (cleanup) in retention mode, wrapping
// each critical phase with a rollback point and recovery handling.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
	"github.com/R3E-Network/gguf-harvester/infrastructure/metrics"
	"github.com/R3E-Network/gguf-harvester/infrastructure/state"
	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/alerts"
	cfgpkg "github.com/R3E-Network/gguf-harvester/internal/config"
	"github.com/R3E-Network/gguf-harvester/internal/completeness"
	"github.com/R3E-Network/gguf-harvester/internal/discovery"
	"github.com/R3E-Network/gguf-harvester/internal/enrich"
	"github.com/R3E-Network/gguf-harvester/internal/freshness"
	"github.com/R3E-Network/gguf-harvester/internal/hub"
	"github.com/R3E-Network/gguf-harvester/internal/model"
	"github.com/R3E-Network/gguf-harvester/internal/recovery"
	"github.com/R3E-Network/gguf-harvester/internal/retention"
	"github.com/R3E-Network/gguf-harvester/internal/validate"
)

// Orchestrator runs one end-to-end sync.
type Orchestrator struct {
	cfg        cfgpkg.Config
	hubClient  *hub.Client
	discovery  *discovery.Engine
	enricher   *enrich.Enricher
	validator  *validate.Engine
	completeness *completeness.Verifier
	recovery   *recovery.Layer
	dispatcher *alerts.Dispatcher
	state      *state.FileBackend
	meta       *state.PersistentState
	log        *logging.Logger
}

// New wires every component into an Orchestrator. stateBackend persists
// durable artifacts (retention snapshots, sync metadata) under cfg.DataDir.
func New(cfg cfgpkg.Config, hubClient *hub.Client, rec *recovery.Layer, dispatcher *alerts.Dispatcher, stateBackend *state.FileBackend, log *logging.Logger) *Orchestrator {
	meta, _ := state.NewPersistentState(state.Config{
		Backend:   stateBackend,
		KeyPrefix: "",
		MaxSize:   1024 * 1024,
		OnChangeHooks: []func(key string, oldValue, newValue []byte){
			func(key string, oldValue, newValue []byte) {
				if log != nil {
					log.Info(context.Background(), fmt.Sprintf("sync metadata updated: %s", key), map[string]interface{}{
						"previous_recorded": len(oldValue) > 0,
					})
				}
			},
		},
	})

	return &Orchestrator{
		cfg:          cfg,
		hubClient:    hubClient,
		discovery:    discovery.NewEngine(hubClient, log),
		enricher:     enrich.NewEnricher(hubClient, log),
		validator:    validate.NewEngine(),
		completeness: completeness.NewVerifier(hubClient),
		recovery:     rec,
		dispatcher:   dispatcher,
		state:        stateBackend,
		meta:         meta,
		log:          log,
	}
}

// Run executes one sync according to the configured/arbitrated mode and
// returns the completed UpdateReport.
func (o *Orchestrator) Run(ctx context.Context) (*model.UpdateReport, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.WorkflowTimeout)
	defer cancel()

	report := &model.UpdateReport{
		RunID:     uuid.NewString(),
		StartTime: time.Now().UTC(),
	}

	mode, prevMeta := o.arbitrateMode(ctx)
	report.Mode = model.SyncMode(mode)

	var err error
	switch mode {
	case cfgpkg.SyncModeRetention:
		err = o.runRetentionMode(ctx, report)
	default:
		err = o.runFullMode(ctx, report, mode, prevMeta)
	}

	report.EndTime = time.Now().UTC()
	failed := 0
	for _, p := range report.Phases {
		if !p.Success {
			failed++
		}
	}
	report.OverallSuccess = err == nil && failed == 0

	if err != nil && o.cfg.PreserveDataOnFailure {
		if point := o.recovery.LatestPoint(); point != nil {
			if rerr := o.recovery.RollbackTo(point); rerr == nil {
				report.RolledBack = true
			} else {
				report.Errors = append(report.Errors, fmt.Sprintf("emergency rollback failed: %v", rerr))
			}
		}
	}
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	runDuration := report.EndTime.Sub(report.StartTime)
	if metrics.Global() != nil {
		outcome := "success"
		if !report.OverallSuccess {
			outcome = "failure"
		}
		metrics.Global().RecordSyncRun(string(mode), outcome, runDuration)
		if report.RolledBack {
			metrics.Global().RecordRollback()
		}
	}
	if o.log != nil {
		o.log.Info(ctx, fmt.Sprintf("sync run %s finished in %s", report.RunID, utils.FormatDuration(runDuration)), map[string]interface{}{
			"mode":    string(mode),
			"success": report.OverallSuccess,
		})
	}

	if o.meta != nil {
		next := model.SyncMetadata{
			LastSyncTime:    report.StartTime,
			SyncMode:        report.Mode,
			ProcessedCount:  report.TotalProcessed,
			AddedCount:      report.TotalAdded,
			RemovedCount:    report.TotalRemoved,
			DurationSeconds: runDuration.Seconds(),
			Success:         report.OverallSuccess,
		}
		if len(report.Errors) > 0 {
			next.ErrorMessage = report.Errors[0]
		}
		if encoded, merr := json.Marshal(next); merr == nil {
			_ = o.meta.Save(ctx, "last_sync_metadata.json", encoded)
		}
	}

	return report, nil
}

// arbitrateMode implements §4.H's sync-mode arbitration: when the
// configured mode is "auto", incremental runs are chosen whenever the last
// recorded sync succeeded and falls within full_sync_threshold_hours;
// anything else (missing/unparseable metadata, a prior failure, or an
// expired threshold) conservatively falls back to full. The previous
// metadata (if any) is returned so runFullMode can apply the
// incremental-window filter and the change-ratio escalation check.
func (o *Orchestrator) arbitrateMode(ctx context.Context) (cfgpkg.SyncMode, *model.SyncMetadata) {
	if o.cfg.RetentionMode != cfgpkg.SyncModeAuto {
		return o.cfg.RetentionMode, nil
	}

	data, err := o.state.Load(ctx, "last_sync_metadata.json")
	if err != nil || len(data) == 0 {
		return cfgpkg.SyncModeFull, nil
	}

	var prev model.SyncMetadata
	if err := json.Unmarshal(data, &prev); err != nil {
		return cfgpkg.SyncModeFull, nil
	}

	if !prev.Success {
		return cfgpkg.SyncModeFull, &prev
	}

	threshold := time.Duration(o.cfg.FullSyncThresholdHours) * time.Hour
	if time.Since(prev.LastSyncTime) > threshold {
		return cfgpkg.SyncModeFull, &prev
	}

	return cfgpkg.SyncModeIncremental, &prev
}

func (o *Orchestrator) runFullMode(ctx context.Context, report *model.UpdateReport, mode cfgpkg.SyncMode, prevMeta *model.SyncMetadata) error {
	phase := func(name string, fn func() (int, error)) error {
		start := time.Now()
		count, err := fn()
		pr := model.PhaseResult{
			PhaseName:       name,
			Success:         err == nil,
			DurationSeconds: time.Since(start).Seconds(),
			DataCount:       count,
		}
		if err != nil {
			pr.ErrorMessage = err.Error()
		}
		report.Phases = append(report.Phases, pr)
		if o.log != nil {
			o.log.LogPhaseResult(ctx, name, time.Since(start), count, err)
		}
		return err
	}

	var refs []model.ModelRef
	var records []model.ModelRecord

	if err := phase("discovery", func() (int, error) {
		o.recovery.RequestRollbackPoint("discovery", []string{o.cfg.DataDir + "/last_sync_metadata.json"})
		r, _, err := o.discovery.Run(ctx)
		refs = r
		return len(refs), err
	}); err != nil {
		return err
	}

	if err := phase("enrichment", func() (int, error) {
		for _, ref := range refs {
			rec, err := o.enricher.Enrich(ctx, ref)
			if err != nil || rec == nil {
				continue
			}
			records = append(records, *rec)
		}

		if mode == cfgpkg.SyncModeIncremental {
			window := time.Duration(o.cfg.IncrementalWindowHours) * time.Hour
			cutoff := report.StartTime.Add(-window)
			filtered := make([]model.ModelRecord, 0, len(records))
			for _, r := range records {
				if r.LastModified.After(cutoff) {
					filtered = append(filtered, r)
				}
			}

			escalate := false
			if prevMeta != nil && prevMeta.ProcessedCount > 0 {
				ratio := math.Abs(float64(len(records)-prevMeta.ProcessedCount)) / float64(prevMeta.ProcessedCount)
				escalate = ratio > o.cfg.SignificantChangeThreshold
			}

			if escalate {
				mode = cfgpkg.SyncModeFull
				report.Mode = model.SyncMode(mode)
				if o.log != nil {
					o.log.Info(ctx, "escalating incremental sync to full: change ratio exceeded threshold", nil)
				}
			} else {
				records = filtered
			}
		}

		return len(records), nil
	}); err != nil {
		return err
	}

	if err := phase("validation", func() (int, error) {
		runStart := report.StartTime
		valid := 0
		for i := range records {
			res := o.validator.Validate(&records[i])
			freshness.StampRecord(&records[i], runStart)
			if res.IsValid {
				valid++
			}
		}
		return valid, nil
	}); err != nil {
		return err
	}

	if err := phase("completeness", func() (int, error) {
		complete := 0
		for _, r := range records {
			if len(r.Files) > 0 {
				complete++
			}
		}
		rep := o.completeness.Verify(ctx, records, complete, complete, len(records))
		if shouldAlert, severity, reason := rep.ShouldAlert(); shouldAlert && o.dispatcher != nil {
			o.dispatcher.Dispatch(ctx, alerts.Alert{
				Severity:         severity,
				Title:            "completeness check",
				Message:          reason,
				Timestamp:        time.Now().UTC(),
				Category:         "completeness",
				SuggestedActions: alerts.SuggestedActionsFor("completeness"),
			})
		}
		return len(records), nil
	}); err != nil {
		return err
	}

	report.TotalProcessed = len(records)
	report.TotalAdded = len(records)
	return nil
}

func (o *Orchestrator) runRetentionMode(ctx context.Context, report *model.UpdateReport) error {
	cfg := o.cfg.Retention
	now := time.Now().UTC()

	phase := func(name string, fn func() (int, error)) error {
		start := time.Now()
		count, err := fn()
		pr := model.PhaseResult{
			PhaseName:       name,
			Success:         err == nil,
			DurationSeconds: time.Since(start).Seconds(),
			DataCount:       count,
		}
		if err != nil {
			pr.ErrorMessage = err.Error()
		}
		report.Phases = append(report.Phases, pr)
		return err
	}

	var topResult retention.TopKResult
	var dateResult retention.DateFilterResult
	var mergeResult retention.MergeResult

	o.recovery.RequestRollbackPoint("retention", []string{
		o.cfg.DataDir + "/retention/top_models.json",
		o.cfg.DataDir + "/retention/top_rankings.json",
	})

	if err := phase("top_k_maintenance", func() (int, error) {
		primary := func(ctx context.Context) (interface{}, error) {
			return retention.TopKMaintenance(ctx, o.hubClient, cfg, nil)
		}
		lastSnapshot := func(ctx context.Context) (interface{}, error) {
			data, err := o.state.Load(ctx, "retention/top_rankings.json")
			if err != nil || len(data) == 0 {
				return nil, fmt.Errorf("orchestrator: no on-disk top-K snapshot available")
			}
			var rankings []model.TopRanking
			if err := json.Unmarshal(data, &rankings); err != nil {
				return nil, fmt.Errorf("orchestrator: decode on-disk top-K snapshot: %w", err)
			}
			refs := make([]model.ModelRef, 0, len(rankings))
			for _, r := range rankings {
				refs = append(refs, model.ModelRef{
					ID: r.ModelID, DiscoveryMethod: "top_k_snapshot", ConfidenceScore: 1.0,
					Attributes: map[string]interface{}{"downloads": r.DownloadCount},
				})
			}
			return retention.TopKResult{Rankings: rankings, Models: refs}, nil
		}
		recentWindow := func(ctx context.Context) (interface{}, error) {
			widened := cfg
			widened.TopModelsCount *= 2
			return retention.TopKMaintenance(ctx, o.hubClient, widened, nil)
		}

		result := o.recovery.FetchWithFallback(ctx, "top_k_maintenance", primary, lastSnapshot, recentWindow)
		if result.Err != nil {
			return 0, result.Err
		}
		r, ok := result.Value.(retention.TopKResult)
		if !ok {
			return 0, fmt.Errorf("orchestrator: unexpected top-K fallback result type")
		}
		topResult = r
		return len(r.Models), nil
	}); err != nil {
		return err
	}

	if err := phase("date_filtered_extraction", func() (int, error) {
		r, err := retention.DateFilteredExtraction(ctx, o.hubClient, cfg, now)
		dateResult = r
		return len(r.Models), err
	}); err != nil {
		return err
	}

	if err := phase("merge", func() (int, error) {
		mergeResult = retention.Merge(dateResult.Models, topResult.Models, topResult.Rankings)
		return len(mergeResult.Merged), nil
	}); err != nil {
		return err
	}

	if cfg.CleanupEnabled {
		if err := phase("cleanup", func() (int, error) {
			currentTop := make(map[string]bool, len(topResult.Rankings))
			for _, r := range topResult.Rankings {
				currentTop[r.ModelID] = true
			}
			result := retention.Cleanup(ctx, cfg, nil, currentTop, now)
			report.TotalRemoved = len(result.Removed)
			return len(result.Removed), nil
		}); err != nil {
			return err
		}
	}

	report.TotalProcessed = len(mergeResult.Merged)
	return nil
}
