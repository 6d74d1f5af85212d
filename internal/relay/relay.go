// Package relay forwards contact submissions to Formspree.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hatimhtm/portfolio-web/internal/otelx"
	"github.com/hatimhtm/portfolio-web/internal/xerrors"
)

const (
	formspreeBase = "https://formspree.io/f/"

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 1 << 10

	noBudget = "Not specified"
)

// ErrNotConfigured is returned when neither an endpoint nor a form id is set.
var ErrNotConfigured = errors.New("relay: no formspree endpoint or form id configured")

// Message is what gets relayed for one submission.
type Message struct {
	Name   string
	Email  string
	Budget string
	Brief  string
}

// Relay sends a message to the form service.
type Relay interface {
	Send(ctx context.Context, m Message) error
}

// StatusError is a non-2xx reply from the form service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: form service returned %d: %s", e.Code, e.Body)
}

type Options struct {
	// Endpoint is the full form URL and wins over FormID.
	Endpoint string
	FormID   string
	Timeout  time.Duration
	// PerSecond and Burst throttle outbound requests, zero disables the throttle.
	PerSecond float64
	Burst     int
	// Transport defaults to an otelhttp-wrapped http.DefaultTransport.
	Transport http.RoundTripper
}

// Endpoint resolves the form URL: explicit endpoint, then the URL derived
// from the form id.
func Endpoint(endpoint, formID string) (string, error) {
	if e := strings.TrimSpace(endpoint); e != "" {
		return e, nil
	}
	if id := strings.TrimSpace(formID); id != "" {
		return formspreeBase + url.PathEscape(id), nil
	}
	return "", ErrNotConfigured
}

// Formspree posts submissions as JSON to a Formspree form.
type Formspree struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewFormspree(o Options) (*Formspree, error) {
	endpoint, err := Endpoint(o.Endpoint, o.FormID)
	if err != nil {
		return nil, err
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}

	f := &Formspree{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   o.Timeout,
			Transport: otelx.Transport(o.Transport),
		},
	}
	if o.PerSecond > 0 {
		burst := o.Burst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(o.PerSecond), burst)
	}
	return f, nil
}

func (f *Formspree) Endpoint() string { return f.endpoint }

type formspreePayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Budget  string `json:"budget"`
	Brief   string `json:"brief"`
	Subject string `json:"_subject"`
}

func payloadFor(m Message) formspreePayload {
	budget := m.Budget
	if budget == "" {
		budget = noBudget
	}
	return formspreePayload{
		Name:    m.Name,
		Email:   m.Email,
		Budget:  budget,
		Brief:   m.Brief,
		Subject: "New Project Inquiry from " + m.Name,
	}
}

// Send posts m, waiting on the outbound throttle first. It returns a
// *StatusError for non-2xx replies.
func (f *Formspree) Send(ctx context.Context, m Message) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return xerrors.Wrap(err, "relay: throttled")
		}
	}

	body, err := json.Marshal(payloadFor(m))
	if err != nil {
		return xerrors.Wrap(err, "relay: encode")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(err, "relay: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return xerrors.Wrap(err, "relay: post")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return xerrors.WithStack(&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

// Disabled is used when no form is configured. Every Send fails with
// ErrNotConfigured so submissions surface as relay errors instead of
// disappearing.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return ErrNotConfigured }
