package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	// Use a custom registry for testing to avoid conflicts
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	if m.HubRequestsTotal == nil {
		t.Error("HubRequestsTotal should not be nil")
	}
	if m.HubRequestDuration == nil {
		t.Error("HubRequestDuration should not be nil")
	}
	if m.ErrorsTotal == nil {
		t.Error("ErrorsTotal should not be nil")
	}
}

func TestRecordHubRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	// Should not panic
	m.RecordHubRequest("list_models", "200", 100*time.Millisecond)
	m.RecordHubRequest("list_repo_files", "200", 200*time.Millisecond)
	m.RecordHubRequest("list_models", "429", 50*time.Millisecond)
}

func TestRecordError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	// Should not panic
	m.RecordError("network", "medium")
	m.RecordError("data", "high")
}

func TestRecordRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordRetry("hub.list_models")
	m.RecordRetry("hub.list_models")
}

func TestSetCircuitBreakerState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetCircuitBreakerState("hub.list_models", 0)
	m.SetCircuitBreakerState("hub.list_models", 2)
}

func TestDiscoveryAndValidationCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordDiscovery("list_models", 120)
	m.RecordValidation("valid", 100)
	m.RecordValidation("repaired", 15)
	m.RecordRepair()
}

func TestRetentionAndCompletenessGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetRetained(500)
	m.RecordPruned(20)
	m.SetCompletenessScore(97.5)
}

func TestRecordSyncRunAndRollback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordSyncRun("incremental", "success", 12*time.Second)
	m.RecordSyncRun("full", "failed", 90*time.Second)
	m.RecordRollback()
}

func TestUpdateUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)
	startTime := time.Now().Add(-1 * time.Hour)

	// Should not panic
	m.UpdateUptime(startTime)
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	// Verify metrics are registered
	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("Expected metrics to be registered")
	}
}
