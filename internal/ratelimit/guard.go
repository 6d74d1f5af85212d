package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hatimhtm/portfolio-web/internal/httpmw"
)

// deniedBody is the client-facing message on 429. It does not reveal the
// limit, remaining budget or window.
const deniedBody = `{"error":"Too many requests. Please try again later."}`

// Guard applies a Policy to requests through a Decider.
type Guard struct {
	decider Decider
	policy  Policy

	// OnDenied is called on every denied request, used for incrementing prometheus counters
	OnDenied func(id string)

	// OnFirstDenied is called once per identifier per window, used for logging
	OnFirstDenied func(id string)

	// OnError is called when the backend fails, the request is let through
	OnError func(id string, err error)
}

type GuardOption func(*Guard)

// WithOnDenied sets a callback for every denied request.
func WithOnDenied(fn func(id string)) GuardOption {
	return func(g *Guard) {
		g.OnDenied = fn
	}
}

// WithOnFirstDenied sets a callback for the first denial of a window.
func WithOnFirstDenied(fn func(id string)) GuardOption {
	return func(g *Guard) {
		g.OnFirstDenied = fn
	}
}

// WithOnError sets a callback for backend failures.
func WithOnError(fn func(id string, err error)) GuardOption {
	return func(g *Guard) {
		g.OnError = fn
	}
}

func NewGuard(d Decider, p Policy, opts ...GuardOption) *Guard {
	g := &Guard{decider: d, policy: p}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Guard) Policy() Policy { return g.policy }

// Identifier returns the rate limit key for r: the client IP resolved by
// httpmw.ClientIP, or FallbackIdentifier when there is none.
func Identifier(r *http.Request) string {
	if ip := httpmw.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return FallbackIdentifier
}

// Middleware rejects requests over the policy with 429. Backend errors fail
// open: the request proceeds and OnError fires.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identifier(r)

		d, err := g.decider.Decide(r.Context(), id, g.policy)
		if err != nil {
			if g.OnError != nil {
				g.OnError(id, err)
			}
			next.ServeHTTP(w, r)
			return
		}

		if !d.Allowed {
			if d.FirstDenial && g.OnFirstDenied != nil {
				g.OnFirstDenied(id)
			}
			if g.OnDenied != nil {
				g.OnDenied(id)
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(deniedBody))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds up to whole seconds, never below 1.
func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
