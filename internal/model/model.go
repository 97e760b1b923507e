// Package model defines the data entities shared across the discovery,
// enrichment, validation, retention, and artifact-writing phases of the
// harvester pipeline.
package model

import "time"

// ModelRef is a candidate model identifier produced by the discovery
// engine. It is consumed and discarded at enrichment.
type ModelRef struct {
	ID              string                 `json:"id"`
	DiscoveryMethod string                 `json:"discovery_method"`
	ConfidenceScore float64                `json:"confidence_score"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
}

// FileRecord describes one GGUF file belonging to a model repository.
type FileRecord struct {
	Filename     string     `json:"filename"`
	SizeBytes    int64      `json:"size_bytes"`
	SizeHuman    string     `json:"size_human"`
	Quantization string     `json:"quantization"`
	DownloadURL  string     `json:"download_url"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// ValidationIssue is a transient finding raised during validation. It is
// never persisted alongside the model it was raised for.
type ValidationIssue struct {
	Category      string `json:"category"`
	Severity      string `json:"severity"`
	Field         string `json:"field,omitempty"`
	Message       string `json:"message"`
	SuggestedFix  string `json:"suggested_fix,omitempty"`
	AutoFixable   bool   `json:"auto_fixable"`
}

// ValidationAnnotation summarizes the outcome of validating a ModelRecord.
type ValidationAnnotation struct {
	IsValid            bool      `json:"is_valid"`
	QualityScore       float64   `json:"quality_score"`
	CompletenessScore  float64   `json:"completeness_score"`
	IssuesCount        int       `json:"issues_count"`
	AutoFixesApplied   int       `json:"auto_fixes_applied"`
	ValidatedAt        time.Time `json:"validated_at"`
}

// FreshnessAnnotation stamps a record with sync-recency information.
type FreshnessAnnotation struct {
	LastSyncedAt      time.Time `json:"last_synced_at"`
	HoursSinceSync    float64   `json:"hours_since_sync"`
	Status            string    `json:"status"` // fresh, stale, very_stale, unknown
	StalenessWarning  bool      `json:"staleness_warning"`
}

// ModelRecord is an enriched, validated model ready for retention ranking
// and artifact publication.
type ModelRecord struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Family          string     `json:"family"`
	Architecture    string     `json:"architecture"`
	Files           []FileRecord `json:"files"`
	Downloads       int64      `json:"downloads"`
	Tags            []string   `json:"tags"`
	TotalSizeBytes  int64      `json:"total_size_bytes"`
	Quantizations   []string   `json:"quantizations"`
	LastModified    time.Time  `json:"last_modified"`
	CreatedAt       time.Time  `json:"created_at"`
	DiscoveryMethod string     `json:"discovery_method"`
	ConfidenceScore float64    `json:"confidence_score"`

	Validation ValidationAnnotation `json:"validation"`
	Freshness  FreshnessAnnotation  `json:"freshness"`
}

// TopRanking is a retention-subsystem entry describing one model's position
// in the top-K-by-downloads ranking.
type TopRanking struct {
	ModelID       string     `json:"model_id"`
	Rank          int        `json:"rank"`
	DownloadCount int64      `json:"download_count"`
	PreviousRank  *int       `json:"previous_rank,omitempty"`
	RankChange    int        `json:"rank_change"`
	DaysInTop     int        `json:"days_in_top"`
	FirstTopDate  time.Time  `json:"first_top_date"`
}

// RetentionSource identifies why a model is tracked by the retention
// subsystem.
type RetentionSource string

const (
	RetentionSourceRecent  RetentionSource = "recent"
	RetentionSourceTop     RetentionSource = "top"
	RetentionSourceMerged  RetentionSource = "merged"
	RetentionSourceUnknown RetentionSource = "unknown"
)

// RetentionReason explains why a model is currently eligible for retention.
type RetentionReason string

const (
	RetentionReasonRecent             RetentionReason = "recent"
	RetentionReasonTopK               RetentionReason = "top_K"
	RetentionReasonHighDownloads      RetentionReason = "high_downloads"
	RetentionReasonRecentlyDiscovered RetentionReason = "recently_discovered"
	RetentionReasonExistingModel      RetentionReason = "existing_model"
)

// RetentionMetadata is the long-lived, per-model bookkeeping record the
// retention subsystem maintains across runs.
type RetentionMetadata struct {
	ModelID          string          `json:"model_id"`
	FirstSeen        time.Time       `json:"first_seen"`
	LastUpdated      time.Time       `json:"last_updated"`
	Source           RetentionSource `json:"source"`
	DownloadCount    int64           `json:"download_count"`
	RetentionReason  RetentionReason `json:"retention_reason"`
	CleanupEligible  bool            `json:"cleanup_eligible"`
	FileSizeBytes    int64           `json:"file_size_bytes"`
	FilePaths        []string        `json:"file_paths"`
}

// SyncMode identifies which orchestration mode produced a sync run.
type SyncMode string

const (
	SyncModeIncremental SyncMode = "incremental"
	SyncModeFull        SyncMode = "full"
	SyncModeRetention   SyncMode = "retention"
)

// SyncMetadata is persisted across runs to drive the orchestrator's
// full-vs-incremental decision and to report on the last run's outcome.
type SyncMetadata struct {
	LastSyncTime    time.Time `json:"last_sync_time"`
	SyncMode        SyncMode  `json:"sync_mode"`
	ProcessedCount  int       `json:"processed_count"`
	AddedCount      int       `json:"added_count"`
	UpdatedCount    int       `json:"updated_count"`
	RemovedCount    int       `json:"removed_count"`
	DurationSeconds float64   `json:"duration_seconds"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// PhaseResult records the outcome of one orchestrator pipeline phase.
type PhaseResult struct {
	PhaseName       string                 `json:"phase_name"`
	Success         bool                   `json:"success"`
	DurationSeconds float64                `json:"duration_seconds"`
	DataCount       int                    `json:"data_count"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Metrics         map[string]interface{} `json:"metrics,omitempty"`
}

// UpdateReport is the top-level artifact produced by one orchestrated sync
// run. It is held in memory only: the daemon keeps the latest one for the
// status server, and reports are not written to disk.
type UpdateReport struct {
	RunID           string        `json:"run_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Mode            SyncMode      `json:"mode"`
	Phases          []PhaseResult `json:"phases"`
	TotalProcessed  int           `json:"total_processed"`
	TotalAdded      int           `json:"total_added"`
	TotalUpdated    int           `json:"total_updated"`
	TotalRemoved    int           `json:"total_removed"`
	Errors          []string      `json:"errors,omitempty"`
	RolledBack      bool          `json:"rolled_back"`
	OverallSuccess  bool          `json:"overall_success"`
}
