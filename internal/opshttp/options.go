package opshttp

import (
	"net/http"

	"github.com/hatimhtm/portfolio-web/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	UseRecoverMW bool
	// OnPanic runs after a recovered panic, e.g. to bump a counter.
	OnPanic func()
}
