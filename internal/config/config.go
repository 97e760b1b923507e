// Package config loads the harvester's runtime configuration from the
// environment (via infrastructure/config's env helpers and joho/godotenv),
// mirroring spec.md §6's recognized configuration options.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	infraconfig "github.com/R3E-Network/gguf-harvester/infrastructure/config"
	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/retention"
)

// SyncMode selects the top-level phase graph the orchestrator runs.
type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
	SyncModeRetention   SyncMode = "retention"
	SyncModeAuto        SyncMode = "auto"
)

// Config is the harvester daemon's full runtime configuration.
type Config struct {
	HubBaseURL string
	HubToken   string

	DataDir    string
	ReportsDir string
	BackupDir  string

	RetentionMode SyncMode
	Retention     retention.Config

	ForceFullSync               bool
	IncrementalWindowHours      int
	FullSyncThresholdHours      int
	SignificantChangeThreshold  float64

	MaxConcurrency    int
	RequestsPerSecond float64
	MaxRetries        int
	TimeoutSeconds    int

	MinCompletenessScore float64
	WarningThreshold     float64
	ExcellentThreshold   float64

	EnableFileVerification bool
	EnableAutomaticFixes   bool
	PreserveDataOnFailure  bool

	WorkflowTimeout time.Duration

	StatusAddr   string
	WebhookURL   string
	CronSchedule string
}

// Load reads a .env file (if present) and then the environment, applying
// spec.md §6's defaults for anything unset.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HubBaseURL: infraconfig.GetEnv("HUB_BASE_URL", "https://huggingface.co"),
		HubToken:   infraconfig.GetEnv("HUB_TOKEN", ""),

		DataDir:    infraconfig.GetEnv("DATA_DIR", "./data"),
		ReportsDir: infraconfig.GetEnv("REPORTS_DIR", "./reports"),
		BackupDir:  infraconfig.GetEnv("BACKUP_DIR", "./data/backups"),

		RetentionMode: SyncMode(infraconfig.GetEnv("RETENTION_MODE", string(SyncModeAuto))),

		ForceFullSync:              infraconfig.GetEnvBool("FORCE_FULL_SYNC", false),
		IncrementalWindowHours:     infraconfig.GetEnvInt("INCREMENTAL_WINDOW_HOURS", 48),
		FullSyncThresholdHours:     infraconfig.GetEnvInt("FULL_SYNC_THRESHOLD_HOURS", 168),
		SignificantChangeThreshold: infraconfig.GetEnvFloat("SIGNIFICANT_CHANGE_THRESHOLD", 0.1),

		MaxConcurrency:    infraconfig.GetEnvInt("MAX_CONCURRENCY", 50),
		RequestsPerSecond: infraconfig.GetEnvFloat("REQUESTS_PER_SECOND", 1.4),
		MaxRetries:        infraconfig.GetEnvInt("MAX_RETRIES", 5),
		TimeoutSeconds:    infraconfig.GetEnvInt("TIMEOUT_SECONDS", 30),

		MinCompletenessScore: infraconfig.GetEnvFloat("MIN_COMPLETENESS_SCORE", 90),
		WarningThreshold:     infraconfig.GetEnvFloat("WARNING_THRESHOLD", 95),
		ExcellentThreshold:   infraconfig.GetEnvFloat("EXCELLENT_THRESHOLD", 98),

		EnableFileVerification: infraconfig.GetEnvBool("ENABLE_FILE_VERIFICATION", true),
		EnableAutomaticFixes:   infraconfig.GetEnvBool("ENABLE_AUTOMATIC_FIXES", true),
		PreserveDataOnFailure:  infraconfig.GetEnvBool("PRESERVE_DATA_ON_FAILURE", true),

		WorkflowTimeout: infraconfig.GetEnvDuration("WORKFLOW_TIMEOUT", 6*time.Hour),

		StatusAddr:   infraconfig.GetEnv("STATUS_ADDR", ":8090"),
		WebhookURL:   infraconfig.GetEnv("ALERT_WEBHOOK_URL", ""),
		CronSchedule: infraconfig.GetEnv("SYNC_CRON_SCHEDULE", "0 */6 * * *"),
	}

	cfg.Retention = retention.Config{
		RetentionDays:         infraconfig.GetEnvInt("RETENTION_DAYS", 30),
		TopModelsCount:        infraconfig.GetEnvInt("TOP_MODELS_COUNT", 20),
		PreserveThreshold:     int64(infraconfig.GetEnvInt("PRESERVE_DOWNLOAD_THRESHOLD", 1000)),
		CleanupEnabled:        infraconfig.GetEnvBool("CLEANUP_ENABLED", true),
		CleanupBatchSize:      infraconfig.GetEnvInt("CLEANUP_BATCH_SIZE", 100),
		RankingHistoryDays:    infraconfig.GetEnvInt("RANKING_HISTORY_DAYS", 90),
		RankingHistoryEnabled: infraconfig.GetEnvBool("RANKING_HISTORY_ENABLED", true),
		RecentModelsPriority:  infraconfig.GetEnvBool("RECENT_MODELS_PRIORITY", true),
	}

	if cfg.Retention.RetentionDays <= 0 || cfg.Retention.RetentionDays > 365 {
		return cfg, fmt.Errorf("config: RETENTION_DAYS must be in (0, 365]")
	}
	if cfg.Retention.TopModelsCount <= 0 || cfg.Retention.TopModelsCount > 1000 {
		return cfg, fmt.Errorf("config: TOP_MODELS_COUNT must be in (0, 1000]")
	}
	if cfg.MaxConcurrency <= 0 {
		return cfg, fmt.Errorf("config: MAX_CONCURRENCY must be positive")
	}
	if !utils.Contains([]string{string(SyncModeFull), string(SyncModeRetention), string(SyncModeAuto)}, string(cfg.RetentionMode)) {
		return cfg, fmt.Errorf("config: RETENTION_MODE must be one of full, retention, auto")
	}

	return cfg, nil
}
