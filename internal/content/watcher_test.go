package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"
)

type spyWatcherMetrics struct {
	mu          sync.Mutex
	polls       int
	swaps       int
	errs        map[string]int
	loads       int
	lastSuccess time.Time
	stale       []bool
}

func (s *spyWatcherMetrics) IncWatcherPolls() { s.mu.Lock(); s.polls++; s.mu.Unlock() }
func (s *spyWatcherMetrics) IncWatcherSwaps() { s.mu.Lock(); s.swaps++; s.mu.Unlock() }
func (s *spyWatcherMetrics) IncWatcherError(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = map[string]int{}
	}
	s.errs[stage]++
}
func (s *spyWatcherMetrics) ObserveBundleLoadDuration(time.Duration) { s.mu.Lock(); s.loads++; s.mu.Unlock() }
func (s *spyWatcherMetrics) SetWatcherLastSuccess(t time.Time)       { s.mu.Lock(); s.lastSuccess = t; s.mu.Unlock() }
func (s *spyWatcherMetrics) SetWatcherStale(b bool)                  { s.mu.Lock(); s.stale = append(s.stale, b); s.mu.Unlock() }

func newTestWatcher(t *testing.T, f *fixture, mgr *Manager, m WatcherMetrics, onSwap func(*Snapshot)) *Watcher {
	t.Helper()
	return NewWatcher(WatcherOptions{
		Loader:       f.loader,
		Manager:      mgr,
		PollInterval: 10 * time.Second,
		Metrics:      m,
		OnSwap:       onSwap,
	})
}

func TestWatcher_SeedsHashFromManager(t *testing.T) {
	f := newFixture(t, nil)
	hash := f.publish(t, sitePages("1"))
	mgr := NewManager()
	if err := f.loader.LoadIntoManager(context.Background(), mgr); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t, f, mgr, nil, nil)
	if w.currentHash != hash {
		t.Fatalf("currentHash = %q, want %q", w.currentHash, hash)
	}

	gets := f.s3.gets
	if r := w.checkOnce(context.Background()); r != pollNoChange {
		t.Fatalf("result = %v, want no change", r)
	}
	if f.s3.gets != gets {
		t.Fatal("unchanged hash triggered a download")
	}
}

func TestWatcher_SeedSnapshotIsReplaced(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, sitePages("1"))
	mgr := NewManager()
	mgr.Set(SeedSnapshot(fstest.MapFS{"index.html": {Data: []byte("seed")}}, "seed"))

	w := newTestWatcher(t, f, mgr, nil, nil)
	if r := w.checkOnce(context.Background()); r != pollSwapped {
		t.Fatalf("result = %v, want swapped", r)
	}
	if mgr.Source() != SourceS3 {
		t.Fatalf("source = %s", mgr.Source())
	}
}

func TestWatcher_SwapsNewBundle(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, sitePages("1"))
	mgr := NewManager()
	_ = f.loader.LoadIntoManager(context.Background(), mgr)

	spy := &spyWatcherMetrics{}
	var swapped []string
	w := newTestWatcher(t, f, mgr, spy, func(s *Snapshot) { swapped = append(swapped, s.Meta.Version) })

	h2 := f.publish(t, sitePages("2"))
	if r := w.checkOnce(context.Background()); r != pollSwapped {
		t.Fatalf("result = %v, want swapped", r)
	}
	if mgr.ContentHash() != h2 || mgr.ContentVersion() != "2" {
		t.Fatalf("manager = %s %s", mgr.ContentHash(), mgr.ContentVersion())
	}
	if len(swapped) != 1 || swapped[0] != "2" {
		t.Fatalf("OnSwap calls = %v", swapped)
	}
	if spy.polls != 1 || spy.swaps != 1 || spy.loads != 1 || spy.lastSuccess.IsZero() {
		t.Fatalf("metrics = %+v", spy)
	}
}

func TestWatcher_RejectsInvalidBundle(t *testing.T) {
	f := newFixture(t, nil)
	h1 := f.publish(t, sitePages("1"))
	mgr := NewManager()
	_ = f.loader.LoadIntoManager(context.Background(), mgr)

	spy := &spyWatcherMetrics{}
	w := newTestWatcher(t, f, mgr, spy, nil)

	f.publish(t, map[string]string{"index.html": "only a home page"})
	if r := w.checkOnce(context.Background()); r != pollValidationError {
		t.Fatalf("result = %v, want validation error", r)
	}
	if mgr.ContentHash() != h1 {
		t.Fatal("invalid bundle was swapped in")
	}
	if spy.errs["validation"] != 1 {
		t.Fatalf("errors = %v", spy.errs)
	}
}

func TestWatcher_LoadError(t *testing.T) {
	f := newFixture(t, nil)
	mgr := NewManager()
	spy := &spyWatcherMetrics{}
	w := newTestWatcher(t, f, mgr, spy, nil)

	f.ssm.set(sha256hex([]byte("nothing uploaded")), nil)
	if r := w.checkOnce(context.Background()); r != pollLoadError {
		t.Fatalf("result = %v, want load error", r)
	}
	if spy.errs["load"] != 1 {
		t.Fatalf("errors = %v", spy.errs)
	}
}

func TestWatcher_OnSwapPanicIsContained(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, sitePages("1"))
	w := newTestWatcher(t, f, NewManager(), nil, func(*Snapshot) { panic("boom") })

	if r := w.checkOnce(context.Background()); r != pollSwapped {
		t.Fatalf("result = %v", r)
	}
}

func TestWatcher_BackoffAndStaleness(t *testing.T) {
	f := newFixture(t, nil)
	spy := &spyWatcherMetrics{}
	w := newTestWatcher(t, f, NewManager(), spy, nil)
	w.staleThreshold = time.Minute

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	w.lastSuccessAt = now

	f.ssm.set("", errors.New("ssm down"))
	ctx := context.Background()

	wants := []time.Duration{20 * time.Second, 40 * time.Second, 80 * time.Second}
	for i, want := range wants {
		if got := w.afterPoll(ctx, w.checkOnce(ctx)); got != want {
			t.Fatalf("poll %d: next = %v, want %v", i+1, got, want)
		}
	}
	if len(spy.stale) != 0 {
		t.Fatal("stale before threshold")
	}

	now = now.Add(2 * time.Minute)
	w.afterPoll(ctx, w.checkOnce(ctx))
	w.afterPoll(ctx, w.checkOnce(ctx))
	if len(spy.stale) != 1 || !spy.stale[0] {
		t.Fatalf("stale transitions = %v, want [true]", spy.stale)
	}

	f.publish(t, sitePages("1"))
	if got := w.afterPoll(ctx, w.checkOnce(ctx)); got != w.interval {
		t.Fatalf("after recovery next = %v, want %v", got, w.interval)
	}
	if w.consecutiveErrs != 0 || len(spy.stale) != 2 || spy.stale[1] {
		t.Fatalf("recovery: errs=%d stale=%v", w.consecutiveErrs, spy.stale)
	}
}

func TestWatcher_BackoffCapped(t *testing.T) {
	w := &Watcher{interval: 30 * time.Second, consecutiveErrs: 20}
	if got := w.backoffDuration(); got != maxBackoff {
		t.Fatalf("backoff = %v, want %v", got, maxBackoff)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	w := newTestWatcher(t, f, NewManager(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestTruncHash(t *testing.T) {
	if truncHash("0123456789abcdef") != "0123456789ab" || truncHash("abc") != "abc" {
		t.Fatal("truncHash")
	}
}
