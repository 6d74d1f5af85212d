package opshttp

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hatimhtm/portfolio-web/internal/health"
	"github.com/hatimhtm/portfolio-web/internal/log"
	"github.com/hatimhtm/portfolio-web/internal/metrics"
)

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_Probes(t *testing.T) {
	gate := &health.ShutdownGate{}
	h := NewHandler(log.Nop(), Options{Readiness: gate.Probe()})

	if rec := get(h, "/-/healthy"); rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("healthy = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(h, "/-/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready = %d", rec.Code)
	}

	gate.Set("shutting down")
	rec := get(h, "/-/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "shutting down") {
		t.Fatalf("ready while draining = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandler_Metrics(t *testing.T) {
	m := metrics.New()
	m.IncRateLimited()
	h := NewHandler(log.Nop(), Options{Metrics: m.Handler()})

	rec := get(h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "contact_rate_limited_total 1") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestHandler_Pprof(t *testing.T) {
	if rec := get(NewHandler(log.Nop(), Options{}), "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d, want 404", rec.Code)
	}
	if rec := get(NewHandler(log.Nop(), Options{EnablePprof: true}), "/debug/pprof/"); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled = %d, want 200", rec.Code)
	}
}

func TestStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	stop, err := Start(context.Background(), log.Nop(), Options{Port: port})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop(context.Background())

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/-/healthy"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
