package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hatimhtm/portfolio-web/internal/health"
	"github.com/hatimhtm/portfolio-web/internal/httpmw"
	"github.com/hatimhtm/portfolio-web/internal/log"
)

// RouteRegistrar mounts a group of routes on the public router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type Options struct {
	Logger log.Logger
	Port   int

	UseRecoverMW bool
	OnPanic      func()

	// TrustedHops is passed to httpmw.ClientIPWithOptions.
	TrustedHops int

	MetricsMW func(http.Handler) http.Handler

	Health    health.Probe
	Readiness health.Probe

	// ContentInfo sets X-Content-Bundle-Version and X-Content-Hash.
	ContentInfo httpmw.ContentInfo

	// Routes are mounted in order before the site catch-all.
	Routes []RouteRegistrar

	// SiteHandler serves everything no route matched.
	SiteHandler http.Handler
}
