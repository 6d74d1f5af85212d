package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// record is one identifier's state in the current window
type record struct {
	count  int
	expiry time.Time
	// denied is set once the window's first denial has been reported
	denied bool
}

// Window is the in-memory fixed-window limiter.
//
// Records live in an LRU bounded by capacity, and each record is dropped
// after ttl even if never read again. Window expiry is checked lazily on
// every call, so physical eviction only bounds memory.
type Window struct {
	// mu serializes the read-check-write on a record, the LRU's own lock
	// only covers single operations.
	mu      sync.Mutex
	records *expirable.LRU[string, record]

	capacity int
	ttl      time.Duration
	now      func() time.Time
	onEvict  func(id string)
}

type Option func(*Window)

// WithCapacity sets the maximum number of identifiers tracked at once.
// When full, the least recently used identifier is evicted.
func WithCapacity(n int) Option {
	return func(w *Window) {
		if n > 0 {
			w.capacity = n
		}
	}
}

// WithTTL sets how long a record survives without being written.
// It should be at least as long as any window passed to Allow.
func WithTTL(d time.Duration) Option {
	return func(w *Window) {
		if d > 0 {
			w.ttl = d
		}
	}
}

// WithClock replaces time.Now, used by tests to move through windows.
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
	}
}

// WithOnEvict sets a callback for records removed by capacity or TTL.
// It runs with the store locked and must not call back into the Window.
func WithOnEvict(fn func(id string)) Option {
	return func(w *Window) {
		w.onEvict = fn
	}
}

// NewWindow creates an in-memory limiter with a capacity of DefaultCapacity
// and a TTL of DefaultTTLFactor default windows.
func NewWindow(opts ...Option) *Window {
	w := &Window{
		capacity: DefaultCapacity,
		ttl:      DefaultPolicy().TTL(DefaultTTLFactor),
		now:      time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	w.records = expirable.NewLRU[string, record](w.capacity, func(id string, _ record) {
		if w.onEvict != nil {
			w.onEvict(id)
		}
	}, w.ttl)
	return w
}

// Allow reports whether id may make another request under limit per window.
//
// A limit of zero or less always denies. A window of zero or less starts a
// fresh window on every call. A window longer than the store TTL always
// denies, since the record could expire before the window ends.
func (w *Window) Allow(id string, limit int, window time.Duration) bool {
	if window > w.ttl {
		return false
	}
	return w.decide(id, limit, window).Allowed
}

// Decide is Allow for the Decider interface. It rejects invalid policies and
// windows longer than the store TTL, either of which would let records
// vanish or count wrongly.
func (w *Window) Decide(_ context.Context, id string, p Policy) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	if p.Window > w.ttl {
		return Decision{}, fmt.Errorf("%w: window %s exceeds store ttl %s", ErrInvalidPolicy, p.Window, w.ttl)
	}
	return w.decide(id, p.Limit, p.Window), nil
}

func (w *Window) decide(id string, limit int, window time.Duration) Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	rec, ok := w.records.Get(id)
	if !ok || now.After(rec.expiry) || window <= 0 {
		rec = record{expiry: now.Add(window)}
	}

	d := Decision{
		Limit:      limit,
		Reset:      rec.expiry,
		RetryAfter: rec.expiry.Sub(now),
	}

	if rec.count >= limit {
		d.Count = rec.count
		if !rec.denied {
			rec.denied = true
			d.FirstDenial = true
			w.records.Add(id, rec)
		}
		return d
	}

	rec.count++
	w.records.Add(id, rec)
	d.Allowed = true
	d.Count = rec.count
	return d
}

// Len is the number of identifiers currently held, including records whose
// window has ended but which have not been evicted yet.
func (w *Window) Len() int {
	return w.records.Len()
}
