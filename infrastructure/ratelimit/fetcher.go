package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/R3E-Network/gguf-harvester/infrastructure/resilience"
)

// FetcherConfig configures the rate-limited fetcher that guards calls to the
// model hub API.
type FetcherConfig struct {
	// MaxConcurrency bounds the number of in-flight hub calls.
	MaxConcurrency int

	// HourlyLimit is the hub's requests-per-hour budget: 5000 for
	// authenticated callers, 1000 for anonymous ones.
	HourlyLimit float64

	// JitterFactor adds uniform jitter in [0, JitterFactor*wait] to sleeps.
	JitterFactor float64

	// BaseBackoff and MaxBackoff bound the exponential backoff applied after
	// consecutive rate-limit errors.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultFetcherConfig returns the spec-mandated defaults: 50 max
// concurrency, 5000 req/hour (authenticated), 0.1 jitter, 1s base / 60s cap
// backoff.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxConcurrency: 50,
		HourlyLimit:    5000,
		JitterFactor:   0.1,
		BaseBackoff:    1 * time.Second,
		MaxBackoff:     60 * time.Second,
	}
}

// AnonymousFetcherConfig is DefaultFetcherConfig with the lower anonymous
// hourly budget (1000 req/hour).
func AnonymousFetcherConfig() FetcherConfig {
	cfg := DefaultFetcherConfig()
	cfg.HourlyLimit = 1000
	return cfg
}

const outcomeWindowSize = 100

// Fetcher enforces a global concurrency bound and a sliding 60-second
// throughput window for calls to the model hub API, with adaptive throttling
// on rate-limit signals. It does not retry failed calls — that is the error
// recovery layer's concern.
type Fetcher struct {
	cfg FetcherConfig
	sem chan struct{}

	mu                  sync.Mutex
	window              []time.Time
	adaptiveFactor      float64
	consecutiveRateHits int
	outcomes            []bool // ring of up to outcomeWindowSize recent successes
}

// NewFetcher constructs a Fetcher from cfg, applying defaults for unset fields.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 50
	}
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = 5000
	}
	if cfg.JitterFactor <= 0 {
		cfg.JitterFactor = 0.1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 1 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}

	return &Fetcher{
		cfg:            cfg,
		sem:            make(chan struct{}, cfg.MaxConcurrency),
		adaptiveFactor: 1.0,
	}
}

// baseRPM returns hourly_limit / 60, the per-minute request budget.
func (f *Fetcher) baseRPM() float64 {
	return f.cfg.HourlyLimit / 60
}

func (f *Fetcher) targetRate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseRPM() * f.adaptiveFactor
}

func jitter(d time.Duration, factor float64) time.Duration {
	if d <= 0 || factor <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*factor*float64(d))
}

// Acquire blocks until the caller is permitted to perform one hub call: it
// takes a concurrency slot, then waits for the sliding 60s window to admit
// another request. The returned release func MUST be called exactly once,
// reporting whether the call succeeded and, if not, whether the failure was
// a rate-limit signal.
func (f *Fetcher) Acquire(ctx context.Context) (func(success bool, rateLimited bool), error) {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := f.waitForWindow(ctx); err != nil {
		<-f.sem
		return nil, err
	}

	return func(success bool, rateLimited bool) {
		f.reportOutcome(success, rateLimited)
		<-f.sem
	}, nil
}

// waitForWindow sleeps, if necessary, until the sliding 60-second window has
// room for another request at the current adaptive target rate.
func (f *Fetcher) waitForWindow(ctx context.Context) error {
	for {
		wait, ready := f.checkWindow()
		if ready {
			return nil
		}
		wait = jitter(wait, f.cfg.JitterFactor)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// checkWindow prunes the window of entries older than 60s and reports
// whether a new request can be admitted now, or how long to wait otherwise.
func (f *Fetcher) checkWindow() (wait time.Duration, ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-60 * time.Second)
	pruned := f.window[:0]
	for _, t := range f.window {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	f.window = pruned

	target := f.baseRPM() * f.adaptiveFactor
	if float64(len(f.window)) < target {
		f.window = append(f.window, now)
		return 0, true
	}

	oldest := f.window[0]
	return oldest.Add(60 * time.Second).Sub(now), false
}

// reportOutcome records a call's result and adjusts the adaptive_factor and,
// for rate-limit signals, sleeps out an exponential backoff before the
// release completes.
func (f *Fetcher) reportOutcome(success bool, rateLimited bool) {
	f.mu.Lock()
	f.outcomes = append(f.outcomes, success)
	if len(f.outcomes) > outcomeWindowSize {
		f.outcomes = f.outcomes[len(f.outcomes)-outcomeWindowSize:]
	}

	if rateLimited {
		f.consecutiveRateHits++
		n := f.consecutiveRateHits
		f.adaptiveFactor = maxFloat(0.1, f.adaptiveFactor-(0.1*(1+0.5*float64(n))))
		backoff := f.cfg.BaseBackoff * time.Duration(1<<uint(n-1))
		if backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
		f.mu.Unlock()
		time.Sleep(jitter(backoff, f.cfg.JitterFactor))
		return
	}

	if success {
		f.consecutiveRateHits = 0
		if f.adaptiveFactor < 1 && f.rollingSuccessRateLocked() > 0.95 {
			f.adaptiveFactor = minFloat(1.0, f.adaptiveFactor+0.05)
		}
	}
	f.mu.Unlock()
}

func (f *Fetcher) rollingSuccessRateLocked() float64 {
	if len(f.outcomes) == 0 {
		return 1.0
	}
	successes := 0
	for _, ok := range f.outcomes {
		if ok {
			successes++
		}
	}
	return float64(successes) / float64(len(f.outcomes))
}

// AdaptiveFactor returns the current adaptive throttling factor, in [0.1, 1.0].
func (f *Fetcher) AdaptiveFactor() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adaptiveFactor
}

// IsRateLimited classifies err (with an optional HTTP status code, 0 if
// unknown) and reports whether it represents a rate-limit signal per the
// error recovery layer's classification rules.
func IsRateLimited(err error, statusCode int) bool {
	if err == nil && statusCode == 0 {
		return false
	}
	return resilience.Classify(err, statusCode).Category == resilience.CategoryRateLimit
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
