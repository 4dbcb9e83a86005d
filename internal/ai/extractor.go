// README: AI-backed extractor: availability gate, rate limit, per-user quota, timeout and error normalization.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wayfarer/internal/metrics"
	"wayfarer/internal/types"
)

// Options configures the AI extractor.
type Options struct {
	// ConfidenceThreshold downgrades successful results below it to failures.
	ConfidenceThreshold float64
	// Timeout bounds a single backend call.
	Timeout time.Duration
	// RPS and Burst configure the process-wide backend limiter. RPS <= 0 disables limiting.
	RPS   float64
	Burst int
}

// DefaultOptions mirrors the parser defaults.
func DefaultOptions() Options {
	return Options{ConfidenceThreshold: 0.6, Timeout: 5 * time.Second, RPS: 5, Burst: 10}
}

// Extractor wraps a Backend behind the same ParseResult contract as the deterministic extractor.
type Extractor struct {
	backend   Backend
	quota     Quota
	limiter   *rate.Limiter
	threshold float64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewExtractor builds the extractor. backend and quota may be nil.
func NewExtractor(backend Backend, quota Quota, opts Options, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Extractor{
		backend:   backend,
		quota:     quota,
		limiter:   limiter,
		threshold: opts.ConfidenceThreshold,
		timeout:   opts.Timeout,
		logger:    logger.Named("ai"),
	}
}

// Available reports whether a backend is configured and reachable. It does not consume quota.
func (e *Extractor) Available(ctx context.Context) bool {
	return e != nil && e.backend != nil && e.backend.Available(ctx)
}

// Extract calls the backend once. It never blocks past the configured timeout and never returns an error:
// every failure becomes an unsuccessful ParseResult with source=ai.
func (e *Extractor) Extract(ctx context.Context, text string, cls types.Classification, rc *RequestContext, userID string) types.ParseResult {
	if reason, ok := e.admit(ctx, userID); !ok {
		metrics.AIUnavailable.WithLabelValues(reason).Inc()
		e.logger.Debug("AI extraction skipped", zap.String("reason", reason))
		return types.Failed(types.SourceAI, 0, types.ErrBackendUnavailable.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.backend.ExtractTrip(callCtx, TripRequest{Text: text, Classification: cls, Context: rc})
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.AILatency.WithLabelValues("error").Observe(elapsed)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("AI backend timed out", zap.Duration("timeout", e.timeout))
			return types.Failed(types.SourceAI, 0, "AI extraction timed out")
		}
		if errors.Is(err, context.Canceled) {
			return types.Failed(types.SourceAI, 0, "AI extraction cancelled")
		}
		e.logger.Warn("AI backend error", zap.Error(err))
		return types.Failed(types.SourceAI, 0, "AI extraction failed")
	}
	metrics.AILatency.WithLabelValues("ok").Observe(elapsed)

	res := e.toResult(resp)
	metrics.ParseResults.WithLabelValues(string(types.SourceAI), metrics.Outcome(res.Success)).Inc()
	return res
}

// admit applies the availability, rate and quota gates in that order.
func (e *Extractor) admit(ctx context.Context, userID string) (string, bool) {
	if !e.Available(ctx) {
		return "backend", false
	}
	if e.limiter != nil && !e.limiter.Allow() {
		return "rate_limit", false
	}
	if e.quota != nil && userID != "" {
		ok, err := e.quota.Allow(ctx, userID)
		if err != nil {
			e.logger.Warn("quota check failed", zap.String("user_id", userID), zap.Error(err))
			return "quota_error", false
		}
		if !ok {
			return "quota", false
		}
	}
	return "", true
}

// toResult normalizes a backend response. Confidence is passed through, only clamped to [0,1].
func (e *Extractor) toResult(resp *TripResponse) types.ParseResult {
	if resp == nil {
		return types.Failed(types.SourceAI, 0, "AI extraction returned no result")
	}
	conf := resp.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	if resp.Error != "" {
		return types.Failed(types.SourceAI, conf, resp.Error)
	}

	var plan types.TripPlan
	for _, d := range resp.Destinations {
		city := strings.TrimSpace(d.City)
		if city == "" || d.Days <= 0 {
			e.logger.Debug("dropping invalid AI destination", zap.String("city", d.City), zap.Int("days", d.Days))
			continue
		}
		plan.Destinations = append(plan.Destinations, types.Destination{City: city, Days: d.Days})
	}
	if resp.Origin != nil {
		plan.Origin = strings.TrimSpace(*resp.Origin)
	}
	plan.StatedTotal = resp.TotalDays
	plan.Resolve()
	if len(plan.Destinations) == 0 {
		return types.Failed(types.SourceAI, conf, "AI extraction found no destinations")
	}
	if conf < e.threshold {
		return types.Failed(types.SourceAI, conf, "AI confidence below threshold")
	}

	prefs := make([]string, 0, len(resp.Preferences))
	for _, p := range resp.Preferences {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			prefs = append(prefs, p)
		}
	}
	return types.ParseResult{
		Success:     true,
		Confidence:  conf,
		Source:      types.SourceAI,
		Plan:        &plan,
		Preferences: prefs,
	}
}
