package content

import (
	"context"
	"fmt"
	"time"

	"github.com/hatimhtm/portfolio-web/internal/cryptoutil"
	"github.com/hatimhtm/portfolio-web/internal/log"
)

const (
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps the poll delay while SSM keeps failing.
	maxBackoff = 5 * time.Minute

	defaultStaleThreshold = 30 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollSSMError
	pollLoadError
	pollValidationError
)

// BundleFetcher is what the Watcher needs from a Loader.
type BundleFetcher interface {
	FetchCurrentBundleHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics is implemented by *metrics.ServerMetrics.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(stage string)
	ObserveBundleLoadDuration(d time.Duration)
	SetWatcherLastSuccess(t time.Time)
	SetWatcherStale(stale bool)
}

type WatcherOptions struct {
	Logger       log.Logger
	Loader       BundleFetcher
	Manager      *Manager
	PollInterval time.Duration

	// Validation defaults to DefaultValidationOptions.
	Validation *ValidationOptions

	// OnSwap runs on the poll goroutine after each swap. A panic in it is
	// logged and swallowed.
	OnSwap func(snap *Snapshot)

	Metrics WatcherMetrics

	// StaleThreshold is how long SSM may fail before content is reported
	// stale. Defaults to 30 minutes.
	StaleThreshold time.Duration
}

type Watcher struct {
	loader     BundleFetcher
	manager    *Manager
	logger     log.Logger
	interval   time.Duration
	validation ValidationOptions
	onSwap     func(*Snapshot)
	metrics    WatcherMetrics

	currentHash     string
	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	stale          bool

	pollCount int64
	swapCount int64

	now func() time.Time
}

type nopWatcherMetrics struct{}

func (nopWatcherMetrics) IncWatcherPolls()                        {}
func (nopWatcherMetrics) IncWatcherSwaps()                        {}
func (nopWatcherMetrics) IncWatcherError(string)                  {}
func (nopWatcherMetrics) ObserveBundleLoadDuration(time.Duration) {}
func (nopWatcherMetrics) SetWatcherLastSuccess(time.Time)         {}
func (nopWatcherMetrics) SetWatcherStale(bool)                    {}

func NewWatcher(opts WatcherOptions) *Watcher {
	w := &Watcher{
		loader:         opts.Loader,
		manager:        opts.Manager,
		logger:         opts.Logger,
		interval:       opts.PollInterval,
		validation:     DefaultValidationOptions(),
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		staleThreshold: opts.StaleThreshold,
		now:            time.Now,
	}
	if w.logger == nil {
		w.logger = log.Nop()
	}
	if w.metrics == nil {
		w.metrics = nopWatcherMetrics{}
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.staleThreshold <= 0 {
		w.staleThreshold = defaultStaleThreshold
	}
	if opts.Validation != nil {
		w.validation = *opts.Validation
	}

	// what was loaded at startup is not downloaded again on the first poll
	if snap, ok := w.manager.Get(); ok && snap.Meta.Source == SourceS3 {
		w.currentHash = snap.Meta.SHA256
	}
	w.lastSuccessAt = w.now()
	return w
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopping",
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-timer.C:
			timer.Reset(w.afterPoll(ctx, w.checkOnce(ctx)))
		}
	}
}

// afterPoll updates backoff and staleness state and returns the delay
// before the next poll.
func (w *Watcher) afterPoll(ctx context.Context, result pollResult) time.Duration {
	if result == pollSSMError {
		w.consecutiveErrs++
		next := w.backoffDuration()
		w.logger.Warn(ctx, "content watcher: backing off",
			"consecutive_errors", w.consecutiveErrs,
			"next_poll_in", next.String(),
		)
		if since := w.now().Sub(w.lastSuccessAt); since > w.staleThreshold && !w.stale {
			w.stale = true
			w.metrics.SetWatcherStale(true)
			w.logger.Error(ctx, fmt.Errorf("last successful SSM poll was %s ago", since.Truncate(time.Second)),
				"content watcher: content is stale")
		}
		return next
	}

	if w.consecutiveErrs > 0 {
		w.logger.Info(ctx, "content watcher: recovered", "had_consecutive_errors", w.consecutiveErrs)
		w.consecutiveErrs = 0
	}
	if w.stale {
		w.stale = false
		w.metrics.SetWatcherStale(false)
		w.logger.Info(ctx, "content watcher: staleness recovered")
	}
	return w.interval
}

// checkOnce runs one poll, compare and swap cycle.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	w.metrics.IncWatcherPolls()

	hash, err := w.loader.FetchCurrentBundleHash(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "content watcher: SSM poll failed")
		w.metrics.IncWatcherError("ssm")
		return pollSSMError
	}
	w.lastSuccessAt = w.now()
	w.metrics.SetWatcherLastSuccess(w.lastSuccessAt)

	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "content watcher: new bundle hash",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)

	start := time.Now()
	snap, err := w.loader.LoadHash(ctx, hash)
	w.metrics.ObserveBundleLoadDuration(time.Since(start))
	if err != nil {
		w.logger.Error(ctx, err, "content watcher: failed to load bundle", "hash", truncHash(hash))
		w.metrics.IncWatcherError("load")
		return pollLoadError
	}

	if err := ValidateSnapshot(snap, w.validation); err != nil {
		w.logger.Error(ctx, err, "content watcher: bundle failed validation, keeping current content",
			"rejected_hash", truncHash(hash),
		)
		w.metrics.IncWatcherError("validation")
		return pollValidationError
	}

	old := w.currentHash
	w.manager.Set(*snap)
	w.currentHash = hash
	w.swapCount++
	w.metrics.IncWatcherSwaps()

	w.logger.Info(ctx, "content watcher: bundle swapped",
		"old_hash", truncHash(old),
		"new_hash", truncHash(hash),
		"version", snap.Meta.Version,
		"total_swaps", w.swapCount,
	)

	if w.onSwap != nil {
		w.notifySwap(ctx, snap)
	}
	return pollSwapped
}

func (w *Watcher) notifySwap(ctx context.Context, snap *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r), "content watcher: OnSwap panicked")
		}
	}()
	w.onSwap(snap)
}

// backoffDuration doubles the interval per consecutive error, capped at
// maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	d := w.interval
	for i := 0; i < w.consecutiveErrs; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
