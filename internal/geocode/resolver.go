package geocode

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"zipenrich/internal/infrastructure"
	"zipenrich/pkg/contracts/domain"
)

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	// MinDelay is the minimum spacing between the starts of two calls
	MinDelay time.Duration
	// Timeout bounds each call; zero means no per-call timeout
	Timeout time.Duration
	Metrics *infrastructure.PipelineMetrics
}

// Stats counts resolver outcomes
type Stats struct {
	Calls    int `json:"calls"`
	Resolved int `json:"resolved"`
	NoResult int `json:"no_result"`
	Failures int `json:"failures"`
}

// Resolver turns coordinates into canonical postal codes, one throttled
// call at a time.
type Resolver struct {
	geocoder ReverseGeocoder
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
	requests metric.Int64Counter

	mu    sync.Mutex
	stats Stats
}

// NewResolver creates a resolver around geocoder
func NewResolver(geocoder ReverseGeocoder, opts ResolverOptions, logger *slog.Logger) *Resolver {
	limit := rate.Inf
	if opts.MinDelay > 0 {
		limit = rate.Every(opts.MinDelay)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		geocoder: geocoder,
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  opts.Timeout,
		logger:   logger,
	}
	if opts.Metrics != nil {
		r.requests = opts.Metrics.GeocodeRequests
	}
	return r
}

// ResolveLocation returns the canonical postal code at lat/lon. Every call
// waits for the rate limiter first, so the minimum delay holds whether the
// previous call succeeded or not. Failures are logged and reported as
// ("", false); they are never retried.
func (r *Resolver) ResolveLocation(ctx context.Context, lat, lon float64) (string, bool) {
	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.WarnContext(ctx, "geocode_skipped",
			slog.Float64("latitude", lat),
			slog.Float64("longitude", lon),
			slog.String("error", err.Error()))
		return "", false
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	addr, err := r.geocoder.Reverse(callCtx, lat, lon)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNoResult) {
			outcome = "no_result"
		} else if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		r.record(ctx, outcome)
		r.logger.WarnContext(ctx, "geocode_failed",
			slog.Float64("latitude", lat),
			slog.Float64("longitude", lon),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()))
		return "", false
	}

	zip, ok := FirstPostcode(addr.Postcode)
	if !ok {
		r.record(ctx, "no_result")
		r.logger.WarnContext(ctx, "geocode_failed",
			slog.Float64("latitude", lat),
			slog.Float64("longitude", lon),
			slog.String("outcome", "no_result"),
			slog.String("error", "response has no usable postcode"),
			slog.String("postcode", addr.Postcode))
		return "", false
	}

	r.record(ctx, "ok")
	r.logger.DebugContext(ctx, "geocode_resolved",
		slog.Float64("latitude", lat),
		slog.Float64("longitude", lon),
		slog.String("zip_code", zip))
	return zip, true
}

func (r *Resolver) record(ctx context.Context, outcome string) {
	r.mu.Lock()
	r.stats.Calls++
	switch outcome {
	case "ok":
		r.stats.Resolved++
	case "no_result":
		r.stats.NoResult++
	default:
		r.stats.Failures++
	}
	r.mu.Unlock()

	if r.requests != nil {
		r.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))
	}
}

// Stats returns a snapshot of the resolver counters
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// FirstPostcode picks the postal code from a postcode field. Services may
// return several codes for a coordinate on a boundary ("10003;10009" or
// "10003, 10009"); the first one that canonicalizes wins.
func FirstPostcode(raw string) (string, bool) {
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' }) {
		if zip, ok := domain.CanonicalZip(part); ok {
			return zip, true
		}
	}
	return "", false
}
