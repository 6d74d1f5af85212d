package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"github.com/hatimhtm/portfolio-web/internal/cfg"
	"github.com/hatimhtm/portfolio-web/internal/contact"
	"github.com/hatimhtm/portfolio-web/internal/content"
	"github.com/hatimhtm/portfolio-web/internal/cryptoutil"
	"github.com/hatimhtm/portfolio-web/internal/health"
	"github.com/hatimhtm/portfolio-web/internal/httpserver"
	"github.com/hatimhtm/portfolio-web/internal/log"
	"github.com/hatimhtm/portfolio-web/internal/metrics"
	"github.com/hatimhtm/portfolio-web/internal/opshttp"
	"github.com/hatimhtm/portfolio-web/internal/otelx"
	"github.com/hatimhtm/portfolio-web/internal/prof"
	"github.com/hatimhtm/portfolio-web/internal/projects"
	"github.com/hatimhtm/portfolio-web/internal/ratelimit"
	"github.com/hatimhtm/portfolio-web/internal/relay"
	"github.com/hatimhtm/portfolio-web/internal/sitehandler"
	v "github.com/hatimhtm/portfolio-web/internal/version"
	"github.com/hatimhtm/portfolio-web/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	cfg.FillFormspreeFallback(&conf)

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl := lvl
	if conf.StacktraceLevel != "" {
		if stackLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
			os.Exit(1)
		}
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"drain_period", conf.DrainPeriod.String(),
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"contact_rate_policy", conf.ContactPolicy().String(),
		"ratelimit_store", conf.RateLimitStore,
		"enable_content_updates", conf.EnableContentUpdates,
		"content_s3_bucket", conf.ContentS3Bucket,
	)

	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}

	// the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion("server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// content: seed pages first, then the current bundle when updates are on
	contentMgr := content.NewManager()
	if seedFS, ok := webassets.SeedSiteFS(); ok {
		contentMgr.Set(content.SeedSnapshot(seedFS, vi.Version))
		L.Info(ctx, "loaded seed site content")
	} else {
		L.Warn(ctx, "no seed site content, serving maintenance until a bundle loads")
	}

	if conf.EnableContentUpdates {
		startContentUpdates(ctx, L, conf, contentMgr, m)
	}
	recordContent(m, contentMgr)

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Content:    contentMgr,
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	catalogue, err := projects.Load()
	if err != nil {
		L.Error(ctx, err, "failed to load project catalogue")
		os.Exit(1)
	}

	decider, storeProbe, closeStore, err := newRateLimitStore(ctx, L, conf, m)
	if err != nil {
		L.Error(ctx, err, "failed to create rate limit store")
		os.Exit(1)
	}
	defer closeStore()

	guard := ratelimit.NewGuard(decider, conf.ContactPolicy(),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimited() }),
		// logged once per window so a flood does not flood the logs
		ratelimit.WithOnFirstDenied(func(id string) {
			L.Warn(ctx, "contact rate limit triggered", "client_id", id, "policy", conf.ContactPolicy().String())
		}),
		ratelimit.WithOnError(func(id string, err error) {
			m.IncRateLimitError()
			L.Error(ctx, err, "rate limit store failed, allowing request", "client_id", id)
		}),
	)

	var formRelay relay.Relay
	fs, err := relay.NewFormspree(relay.Options{
		Endpoint:  conf.FormspreeEndpoint,
		FormID:    conf.FormspreeID,
		Timeout:   conf.RelayTimeout,
		PerSecond: conf.RelayPerSecond,
		Burst:     conf.RelayBurst,
	})
	if err != nil {
		L.Warn(ctx, "contact relay not configured, submissions will fail", "err", err)
		formRelay = relay.Disabled{}
	} else {
		L.Info(ctx, "contact relay configured", "endpoint", fs.Endpoint())
		formRelay = fs
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Named("content", health.CheckFunc(func(context.Context) error {
			return contentMgr.ReadyErr()
		})),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		TrustedHops:  conf.TrustedHops,
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		ContentInfo:  contentMgr,
		Routes: []httpserver.RouteRegistrar{
			projects.NewAPI(catalogue),
			contact.NewAPI(formRelay,
				contact.WithRateLimit(guard.Middleware),
				contact.WithMetrics(m),
			),
		},
		SiteHandler: siteHandler,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}

	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		// the site port stays ready through a redis outage since the guard
		// fails open; the admin port reports it
		Readiness:    health.All(readiness, storeProbe),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	L.Info(context.Background(), "draining for load balancer health checks", "drain", conf.DrainPeriod.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainPeriod):
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "otel shutdown")
	}
	stopProf()

	L.Info(shutdownCtx, "shutdown complete")
}

// newRateLimitStore builds the Decider for the configured store and, for
// redis, a readiness probe. The returned close func is never nil.
func newRateLimitStore(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (ratelimit.Decider, health.Probe, func(), error) {
	policy := conf.ContactPolicy()

	switch conf.RateLimitStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		// not fatal: the guard fails open until redis is reachable
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			L.Warn(ctx, "redis not reachable at startup", "addr", conf.RedisAddr, "err", err)
		}
		rw := ratelimit.NewRedisWindow(client)
		L.Info(ctx, "rate limit store ready", "store", rw.String())
		probe := health.Named("ratelimit", health.WithTimeout(time.Second, rw))
		return rw, probe, func() { _ = client.Close() }, nil

	default:
		w := ratelimit.NewWindow(
			ratelimit.WithCapacity(conf.ContactRateCapacity),
			ratelimit.WithTTL(policy.TTL(conf.ContactRateTTLFactor)),
			ratelimit.WithOnEvict(func(string) { m.IncRateLimitEviction() }),
		)
		L.Info(ctx, "rate limit store ready",
			"store", "memory",
			"capacity", conf.ContactRateCapacity,
			"ttl", policy.TTL(conf.ContactRateTTLFactor).String(),
		)
		return w, nil, func() {}, nil
	}
}

// startContentUpdates loads the current bundle and starts the watcher.
// Failures are logged and the seed keeps serving.
func startContentUpdates(ctx context.Context, L log.Logger, conf cfg.App, mgr *content.Manager, m *metrics.ServerMetrics) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config, content updates disabled")
		return
	}

	var verifier content.SignatureVerifier
	if conf.ContentSigningKeyARN != "" {
		verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), conf.ContentSigningKeyARN)
	}

	loader, err := content.NewLoader(ctx, content.LoaderOptions{
		Logger:    L,
		SSMParam:  conf.ContentSSMParam,
		S3Bucket:  conf.ContentS3Bucket,
		S3Prefix:  conf.ContentS3Prefix,
		Verifier:  verifier,
		SSMClient: ssm.NewFromConfig(awsCfg),
		S3Client:  s3.NewFromConfig(awsCfg),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create content loader, content updates disabled")
		return
	}

	if err := loader.LoadIntoManager(ctx, mgr); err != nil {
		L.Error(ctx, err, "failed to load content bundle, serving seed")
	} else {
		L.Info(ctx, "loaded content bundle",
			"content_version", mgr.ContentVersion(),
			"content_hash", mgr.ContentHash(),
		)
	}

	watcher := content.NewWatcher(content.WatcherOptions{
		Logger:       L,
		Loader:       loader,
		Manager:      mgr,
		PollInterval: conf.ContentPollInterval,
		Metrics:      m,
		OnSwap:       func(*content.Snapshot) { recordContent(m, mgr) },
	})
	go func() { _ = watcher.Run(ctx) }()
}

func recordContent(m *metrics.ServerMetrics, mgr *content.Manager) {
	m.SetContentSource(string(mgr.Source()))
	if h := mgr.ContentHash(); h != "" {
		m.SetContentBundle(h)
	}
	if t := mgr.LoadedAt(); !t.IsZero() {
		m.SetContentLoadedTimestamp(t)
	}
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
