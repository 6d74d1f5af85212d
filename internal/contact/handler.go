package contact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hatimhtm/portfolio-web/internal/httpmw"
	"github.com/hatimhtm/portfolio-web/internal/log"
	"github.com/hatimhtm/portfolio-web/internal/metrics"
	"github.com/hatimhtm/portfolio-web/internal/relay"
)

// MaxBodyBytes caps the contact request bodies.
const MaxBodyBytes = 16 << 10

const (
	msgInvalidBody   = "Invalid request body."
	msgTooLarge      = "Request body too large."
	msgMissingFields = "Name, email, and project brief are required."
	msgInvalidEmail  = "Please provide a valid email address."
	msgRelayFailed   = "Failed to send message. Please try again or email directly."
	msgSent          = "Message sent successfully!"
)

// Recorder receives submission metrics. *metrics.ServerMetrics satisfies it.
type Recorder interface {
	IncSubmission(outcome string)
	ObserveRelayDuration(ctx context.Context, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) IncSubmission(string)                                {}
func (nopRecorder) ObserveRelayDuration(context.Context, time.Duration) {}

// API serves the contact routes. Limit, when set, wraps POST /api/contact
// only; the step check is neither limited nor relayed.
type API struct {
	relay   relay.Relay
	limit   func(http.Handler) http.Handler
	metrics Recorder
	newID   func() string
}

type Option func(*API)

// WithRateLimit installs the middleware that guards submissions.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(a *API) { a.limit = mw }
}

func WithMetrics(m Recorder) Option {
	return func(a *API) {
		if m != nil {
			a.metrics = m
		}
	}
}

func NewAPI(r relay.Relay, opts ...Option) *API {
	a := &API{
		relay:   r,
		metrics: nopRecorder{},
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes implements httpserver.RouteRegistrar.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/contact", func(r chi.Router) {
		r.Use(httpmw.Scope("contact"))
		r.Use(httpmw.MaxBody(MaxBodyBytes))
		r.Group(func(r chi.Router) {
			if a.limit != nil {
				r.Use(a.limit)
			}
			r.Post("/", a.submit)
		})
		r.Post("/step", a.step)
	})
}

type sentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := a.newID()
	logger := log.FromContext(ctx).With("submission_id", id)

	var s Submission
	if status, msg, ok := decode(r, &s); !ok {
		a.metrics.IncSubmission(metrics.OutcomeInvalidBody)
		logger.Debug(ctx, "contact: rejected body", "status", status)
		writeError(w, r, status, msg)
		return
	}

	if err := s.Validate(); err != nil {
		switch {
		case errors.Is(err, ErrInvalidEmail):
			a.metrics.IncSubmission(metrics.OutcomeInvalidEmail)
			writeError(w, r, http.StatusBadRequest, msgInvalidEmail)
		default:
			a.metrics.IncSubmission(metrics.OutcomeMissingFields)
			writeError(w, r, http.StatusBadRequest, msgMissingFields)
		}
		logger.Debug(ctx, "contact: invalid submission", "reason", err.Error())
		return
	}

	start := time.Now()
	err := a.relay.Send(ctx, relay.Message{Name: s.Name, Email: s.Email, Budget: s.Budget, Brief: s.Brief})
	a.metrics.ObserveRelayDuration(ctx, time.Since(start))
	if err != nil {
		a.metrics.IncSubmission(metrics.OutcomeRelayError)
		logger.Error(ctx, err, "contact: relay failed")
		writeError(w, r, http.StatusInternalServerError, msgRelayFailed)
		return
	}

	a.metrics.IncSubmission(metrics.OutcomeSent)
	logger.Info(ctx, "contact: submission relayed", "budget", s.Budget)
	writeJSON(w, r, http.StatusOK, sentResponse{Success: true, Message: msgSent, ID: id})
}

type stepRequest struct {
	Step int        `json:"step"`
	Form Submission `json:"form"`
}

type stepResponse struct {
	Step int  `json:"step"`
	OK   bool `json:"ok"`
}

func (a *API) step(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if status, msg, ok := decode(r, &req); !ok {
		writeError(w, r, status, msg)
		return
	}
	writeJSON(w, r, http.StatusOK, stepResponse{Step: req.Step, OK: CanAdvance(req.Step, req.Form)})
}

// decode reads one JSON object from the body. Bodies cut off by MaxBody map
// to 413, anything else unparseable to 400.
func decode(r *http.Request, v any) (int, string, bool) {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return 0, "", true
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge, msgTooLarge, false
	}
	return http.StatusBadRequest, msgInvalidBody, false
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).Warn(r.Context(), "contact: write response", "err", err)
	}
}
