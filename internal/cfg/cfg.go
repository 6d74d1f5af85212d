// Package cfg binds the server configuration to flags and environment variables.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hatimhtm/portfolio-web/internal/log"
	"github.com/hatimhtm/portfolio-web/internal/ratelimit"
)

// EnvPrefix is prepended to flag names to form environment variable names.
const EnvPrefix = "PORTFOLIO_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	TrustedHops int
	EnablePprof bool
	DrainPeriod time.Duration

	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	ContactRateLimit     int
	ContactRateWindow    time.Duration
	ContactRateCapacity  int
	ContactRateTTLFactor int
	RateLimitStore       string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int

	FormspreeEndpoint string
	FormspreeID       string
	RelayTimeout      time.Duration
	RelayPerSecond    float64
	RelayBurst        int

	EnableContentUpdates bool
	ContentSSMParam      string
	ContentS3Bucket      string
	ContentS3Prefix      string
	ContentSigningKeyARN string
	ContentPollInterval  time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "attach stack traces at or above this level (debug|info|warn|error)")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "include per-link error origins in error logs")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "site listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "reverse proxies in front of the server whose X-Forwarded-For entries are trusted (0..8)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "enable pprof on the admin port")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 15*time.Second, "how long readiness fails before listeners close on shutdown")

	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push continuous profiles to -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (x-scope-orgid)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export OTLP traces to -otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.IntVar(&c.ContactRateLimit, "contact-rate-limit", 5, "contact submissions admitted per client per window")
	fs.DurationVar(&c.ContactRateWindow, "contact-rate-window", time.Minute, "contact rate limit window")
	fs.IntVar(&c.ContactRateCapacity, "contact-rate-capacity", ratelimit.DefaultCapacity, "max client records held by the in-memory limiter")
	fs.IntVar(&c.ContactRateTTLFactor, "contact-rate-ttl-factor", 2, "in-memory records expire after this many windows")
	fs.StringVar(&c.RateLimitStore, "ratelimit-store", "memory", "rate limit backend (memory|redis)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis address (host:port) when -ratelimit-store=redis")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")

	fs.StringVar(&c.FormspreeEndpoint, "formspree-endpoint", "", "full formspree form URL (overrides -formspree-id)")
	fs.StringVar(&c.FormspreeID, "formspree-id", "", "formspree form id, posts to https://formspree.io/f/<id>")
	fs.DurationVar(&c.RelayTimeout, "relay-timeout", 10*time.Second, "timeout for a single relay request")
	fs.Float64Var(&c.RelayPerSecond, "relay-per-second", 1, "outbound relay requests per second")
	fs.IntVar(&c.RelayBurst, "relay-burst", 5, "outbound relay burst")

	fs.BoolVar(&c.EnableContentUpdates, "enable-content-updates", false, "load and refresh site bundles from S3/SSM")
	fs.StringVar(&c.ContentSSMParam, "content-ssm-param", "/app/portfolio-web/content/release/sha256", "ssm parameter holding the active bundle sha256")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "s3 bucket holding content bundles")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "portfolio-web/content/bundles", "s3 key prefix for content bundles")
	fs.StringVar(&c.ContentSigningKeyARN, "content-signing-key-arn", "", "KMS key ARN used to verify bundle signatures (optional)")
	fs.DurationVar(&c.ContentPollInterval, "content-poll-interval", 30*time.Second, "how often to check SSM for a new bundle")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		val, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, val)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, val); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// FillFormspreeFallback reads the unprefixed FORMSPREE_ENDPOINT and
// FORMSPREE_ID variables used by existing deployments when neither the
// flags nor their prefixed env vars set a value.
func FillFormspreeFallback(c *App) {
	if c.FormspreeEndpoint == "" {
		c.FormspreeEndpoint = strings.TrimSpace(os.Getenv("FORMSPREE_ENDPOINT"))
	}
	if c.FormspreeID == "" {
		c.FormspreeID = strings.TrimSpace(os.Getenv("FORMSPREE_ID"))
	}
}

// ContactPolicy is the fixed-window policy guarding the contact form.
func (c App) ContactPolicy() ratelimit.Policy {
	return ratelimit.Policy{Limit: c.ContactRateLimit, Window: c.ContactRateWindow}
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.DrainPeriod < 0 || c.DrainPeriod > 5*time.Minute {
		errs = append(errs, fmt.Errorf("invalid DRAIN_PERIOD %s (must be 0..5m)", c.DrainPeriod))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_HOPS %d (must be 0..8)", c.TrustedHops))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL: %w", err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL when ENABLE_PYROSCOPE=true (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if err := c.ContactPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("contact rate policy: %w", err))
	}
	if c.ContactRateCapacity < 1 {
		errs = append(errs, fmt.Errorf("CONTACT_RATE_CAPACITY must be positive (got %d)", c.ContactRateCapacity))
	}
	if c.ContactRateTTLFactor < 1 {
		errs = append(errs, fmt.Errorf("CONTACT_RATE_TTL_FACTOR must be at least 1 (got %d)", c.ContactRateTTLFactor))
	}
	switch c.RateLimitStore {
	case "memory":
	case "redis":
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port when RATELIMIT_STORE=redis (got %q)", c.RedisAddr))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid RATELIMIT_STORE %q (memory|redis)", c.RateLimitStore))
	}

	if c.FormspreeEndpoint != "" {
		if u, err := url.Parse(c.FormspreeEndpoint); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("FORMSPREE_ENDPOINT must be an https URL (got %q)", c.FormspreeEndpoint))
		}
	}
	if c.RelayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RELAY_TIMEOUT must be positive (got %s)", c.RelayTimeout))
	}
	if c.RelayPerSecond <= 0 || c.RelayBurst < 1 {
		errs = append(errs, fmt.Errorf("relay throttle must be positive (per-second %.2f, burst %d)", c.RelayPerSecond, c.RelayBurst))
	}

	if c.EnableContentUpdates {
		if c.ContentSSMParam == "" {
			errs = append(errs, errors.New("CONTENT_SSM_PARAM is required when ENABLE_CONTENT_UPDATES=true"))
		}
		if c.ContentS3Bucket == "" {
			errs = append(errs, errors.New("CONTENT_S3_BUCKET is required when ENABLE_CONTENT_UPDATES=true"))
		}
		if c.ContentPollInterval < time.Second {
			errs = append(errs, fmt.Errorf("CONTENT_POLL_INTERVAL must be at least 1s (got %s)", c.ContentPollInterval))
		}
	}

	return errors.Join(errs...)
}
