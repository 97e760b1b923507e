package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistry_GetIsLazyAndStable(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	cb1 := r.Get("hub.list_models")
	cb2 := r.Get("hub.list_models")
	if cb1 != cb2 {
		t.Error("Get() should return the same breaker instance for the same key")
	}

	cb3 := r.Get("hub.list_repo_files")
	if cb1 == cb3 {
		t.Error("Get() should return distinct breakers for distinct keys")
	}
}

func TestRegistry_StateDefaultsToClosedForUnseenKey(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	if got := r.State("never.called"); got != StateClosed {
		t.Errorf("State() for unseen key = %v, want %v", got, StateClosed)
	}
}

func TestRegistry_StateTracksPerKeyFailures(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 2, Timeout: time.Minute})
	testErr := errors.New("boom")

	cb := r.Get("hub.list_models")
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error { return testErr })
	}

	if got := r.State("hub.list_models"); got != StateOpen {
		t.Errorf("State() = %v, want %v", got, StateOpen)
	}
	if got := r.State("hub.list_repo_files"); got != StateClosed {
		t.Errorf("State() for untouched key = %v, want %v", got, StateClosed)
	}
}

func TestRegistry_Keys(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	r.Get("hub.list_models")
	r.Get("hub.count_models")

	keys := r.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() returned %d keys, want 2", len(keys))
	}
}
