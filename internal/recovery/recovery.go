// Package recovery ties error classification, circuit breaking, retry, and
// rollback-point management together into the error recovery layer (spec
// §4.B).
package recovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/R3E-Network/gguf-harvester/infrastructure/fallback"
	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
	"github.com/R3E-Network/gguf-harvester/infrastructure/resilience"
)

const maxRollbackPoints = 10

// cachedDatasetTTL bounds how old a cached fallback dataset may be before
// it is no longer offered as a fallback source (spec §4.B).
const cachedDatasetTTL = 24 * time.Hour

// RollbackPoint is a tagged snapshot of files backed up before a critical
// phase runs.
type RollbackPoint struct {
	Tag       string
	CreatedAt time.Time
	BackupDir string
	Files     map[string]string // original path -> backup path
}

// Layer is the error recovery layer: classification/action selection wired
// through resilience.Registry, plus bounded rollback-point tracking.
type Layer struct {
	Breakers *resilience.Registry
	Retry    resilience.RetryConfig
	log      *logging.Logger
	fallback *fallback.Handler

	mu         sync.Mutex
	points     []RollbackPoint
	backupRoot string
}

// NewLayer constructs a recovery Layer. backupRoot is the directory under
// which timestamped rollback-point backups are stored.
func NewLayer(backupRoot string, log *logging.Logger) *Layer {
	return &Layer{
		Breakers:   resilience.NewRegistry(resilience.DefaultConfig()),
		Retry:      resilience.DefaultRetryConfig(),
		log:        log,
		fallback:   fallback.NewHandler(fallback.DefaultConfig()),
		backupRoot: backupRoot,
	}
}

// Handle classifies err (with optional HTTP statusCode) and returns the
// recovery action to take.
func (l *Layer) Handle(err error, statusCode int) (resilience.Classification, resilience.Action) {
	c := resilience.Classify(err, statusCode)
	action := resilience.SelectAction(c)
	if resilience.IsNeverRetried(err, c) && action == resilience.ActionRetry {
		action = resilience.ActionSkip
	}
	return c, action
}

// RunWithRecovery executes fn under the named operation's circuit breaker
// and retry policy. Every retryable classification, rate_limit included,
// uses the same l.Retry delay schedule; rate-limit delays are not doubled.
func (l *Layer) RunWithRecovery(ctx context.Context, opKey string, fn func() error) error {
	breaker := l.Breakers.Get(opKey)
	cfg := l.Retry

	return resilience.Retry(ctx, cfg, func() error {
		err := breaker.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		c, action := l.Handle(err, 0)
		if l.log != nil {
			l.log.LogPhaseResult(ctx, opKey, 0, 0, err)
		}
		switch action {
		case resilience.ActionAbort, resilience.ActionSkip, resilience.ActionNotify:
			return backoffPermanent(err, c)
		default:
			return err
		}
	})
}

// backoffPermanent marks err as non-retryable so resilience.Retry's
// underlying cenkalti/backoff loop stops immediately instead of exhausting
// its attempt budget.
func backoffPermanent(err error, c resilience.Classification) error {
	return backoff.Permanent(fmt.Errorf("%s/%s: %w", c.Category, c.Severity, err))
}

// FetchWithFallback runs primary, falling back in order to lastSnapshot (the
// last successful top-K snapshot on disk) and recentWindow (an extended
// recent-window retry) when supplied, and finally to any dataset this Layer
// has cached under key within the last 24 hours (spec §4.B's fallback
// sources for recovery). A successful primary result is cached under key for
// later fallback use.
func (l *Layer) FetchWithFallback(ctx context.Context, key string, primary fallback.Func, lastSnapshot, recentWindow fallback.Func) *fallback.Result {
	sources := make([]fallback.Func, 0, 3)
	if lastSnapshot != nil {
		sources = append(sources, lastSnapshot)
	}
	if recentWindow != nil {
		sources = append(sources, recentWindow)
	}
	sources = append(sources, func(ctx context.Context) (interface{}, error) {
		if v, ok := l.fallback.GetCache(key); ok {
			return v, nil
		}
		return nil, fmt.Errorf("recovery: no cached dataset available for %s", key)
	})

	result := l.fallback.Execute(ctx, primary, sources...)
	if result.Err == nil && result.Source == "primary" {
		l.fallback.SetCache(key, result.Value, cachedDatasetTTL)
	}
	return result
}

// RequestRollbackPoint copies each named path into a timestamped backup
// directory and records the mapping. The ring buffer keeps at most the 10
// most recent points; the oldest is evicted (and its backups deleted) when
// full.
func (l *Layer) RequestRollbackPoint(tag string, paths []string) (*RollbackPoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	backupDir := filepath.Join(l.backupRoot, fmt.Sprintf("pre_update_%s", now.Format("20060102_150405")))
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("recovery: create backup dir: %w", err)
	}

	files := make(map[string]string, len(paths))
	for _, p := range paths {
		dest := filepath.Join(backupDir, filepath.Base(p))
		if err := copyFile(p, dest); err != nil {
			if os.IsNotExist(err) {
				continue // nothing to back up yet, e.g. first run
			}
			return nil, fmt.Errorf("recovery: backup %s: %w", p, err)
		}
		files[p] = dest
	}

	point := RollbackPoint{Tag: tag, CreatedAt: now, BackupDir: backupDir, Files: files}
	l.points = append(l.points, point)

	if len(l.points) > maxRollbackPoints {
		evicted := l.points[0]
		l.points = l.points[1:]
		os.RemoveAll(evicted.BackupDir)
	}

	return &point, nil
}

// RollbackTo restores every file listed in the point's backup mapping.
func (l *Layer) RollbackTo(point *RollbackPoint) error {
	for original, backup := range point.Files {
		if err := copyFile(backup, original); err != nil {
			return fmt.Errorf("recovery: restore %s: %w", original, err)
		}
	}
	return nil
}

// LatestPoint returns the most recently requested rollback point, or nil.
func (l *Layer) LatestPoint() *RollbackPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.points) == 0 {
		return nil
	}
	p := l.points[len(l.points)-1]
	return &p
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
