// README: Hybrid parser: classify, route between deterministic and AI extraction, merge results.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wayfarer/internal/ai"
	"wayfarer/internal/metrics"
	"wayfarer/internal/modules/classify"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/preference"
	"wayfarer/internal/types"
)

// ErrAllFailed is the caller-visible message of a turn no strategy could interpret.
const ErrAllFailed = "All parsing strategies failed"

// ParserOptions configures routing thresholds.
type ParserOptions struct {
	DeterministicThreshold float64
	AIThreshold            float64
	MaxProcessingTime      time.Duration
	EnableAIFallback       bool
}

func DefaultParserOptions() ParserOptions {
	return ParserOptions{
		DeterministicThreshold: 0.7,
		AIThreshold:            0.6,
		MaxProcessingTime:      5 * time.Second,
		EnableAIFallback:       true,
	}
}

// ParseContext is the conversation context a turn is interpreted against. All fields are optional.
type ParseContext struct {
	CurrentPlan    *types.TripPlan
	LastType       types.InputType
	Preferences    []string
	Constraints    []types.Constraint
	RecentMessages []string
	UserID         string
}

func (c *ParseContext) classifyContext() *classify.Context {
	if c == nil {
		return nil
	}
	return &classify.Context{CurrentPlan: c.CurrentPlan, LastType: c.LastType}
}

func (c *ParseContext) requestContext() *ai.RequestContext {
	if c == nil {
		return nil
	}
	return &ai.RequestContext{
		CurrentPlan:    c.CurrentPlan,
		Preferences:    c.Preferences,
		Constraints:    c.Constraints,
		RecentMessages: c.RecentMessages,
	}
}

func (c *ParseContext) userID() string {
	if c == nil {
		return ""
	}
	return c.UserID
}

// HybridParser is stateless; one instance serves every session.
type HybridParser struct {
	classifier *classify.Classifier
	det        *extract.Extractor
	prefs      *preference.Extractor
	ai         *ai.Extractor
	opts       ParserOptions
	logger     *zap.Logger
}

// NewHybridParser wires the strategies. aiX may be nil, in which case only deterministic extraction runs.
func NewHybridParser(det *extract.Extractor, prefs *preference.Extractor, aiX *ai.Extractor, opts ParserOptions, logger *zap.Logger) *HybridParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if det == nil {
		det = extract.NewExtractor(nil, logger)
	}
	if prefs == nil {
		prefs = preference.NewExtractor(logger)
	}
	if opts.MaxProcessingTime <= 0 {
		opts.MaxProcessingTime = DefaultParserOptions().MaxProcessingTime
	}
	return &HybridParser{
		classifier: classify.New(det, prefs, logger),
		det:        det,
		prefs:      prefs,
		ai:         aiX,
		opts:       opts,
		logger:     logger.Named("parser"),
	}
}

// Classify exposes the routing classification for callers that branch on it before parsing.
func (p *HybridParser) Classify(text string, pctx *ParseContext) types.Classification {
	cls := p.classifier.Classify(text, pctx.classifyContext())
	metrics.Classifications.WithLabelValues(string(cls.Type)).Inc()
	return cls
}

// Parse classifies text and extracts a plan from it.
func (p *HybridParser) Parse(ctx context.Context, text string, pctx *ParseContext) (types.ParseResult, types.Classification) {
	cls := p.Classify(text, pctx)
	return p.ParseClassified(ctx, text, cls, pctx), cls
}

// ParseClassified routes an already classified turn. The result always carries source=hybrid.
func (p *HybridParser) ParseClassified(ctx context.Context, text string, cls types.Classification, pctx *ParseContext) types.ParseResult {
	if cls.Has(types.FeatureContextContinuation) && pctx != nil && pctx.CurrentPlan != nil {
		metrics.Routes.WithLabelValues("continuation").Inc()
		return p.finish(p.continuation(text, cls, pctx.CurrentPlan), text)
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.MaxProcessingTime)
	defer cancel()

	runDet := cls.Type == types.InputStructured || cls.Complexity == types.ComplexitySimple
	runAI := p.opts.EnableAIFallback && p.ai != nil &&
		(cls.Type == types.InputConversational || cls.Type == types.InputModification || cls.Complexity == types.ComplexityComplex)

	var det, aiRes *types.ParseResult
	if runDet {
		r := p.det.Parse(text)
		metrics.ParseResults.WithLabelValues(string(types.SourceDeterministic), metrics.Outcome(r.Success)).Inc()
		if r.Success && r.Confidence >= p.opts.DeterministicThreshold {
			metrics.Routes.WithLabelValues("deterministic").Inc()
			return p.finish(r, text)
		}
		det = &r
	}
	if runAI {
		r := p.ai.Extract(ctx, text, cls, pctx.requestContext(), pctx.userID())
		if r.Success && r.Confidence < p.opts.AIThreshold {
			r = types.Failed(types.SourceAI, r.Confidence, "AI confidence below threshold")
		}
		aiRes = &r
	}
	// deterministic-only mode: an unavailable, disabled or failed AI path never fails the turn on its own
	fallback := det == nil && (aiRes == nil || !aiRes.Success)
	if fallback {
		r := p.det.Parse(text)
		metrics.ParseResults.WithLabelValues(string(types.SourceDeterministic), metrics.Outcome(r.Success)).Inc()
		det = &r
		if aiRes != nil {
			p.logger.Debug("AI path failed, using deterministic result",
				zap.String("detail", aiRes.Error), zap.Bool("deterministic_ok", r.Success))
		}
	}

	switch {
	case fallback:
		metrics.Routes.WithLabelValues("deterministic_fallback").Inc()
	case det != nil && aiRes != nil:
		metrics.Routes.WithLabelValues("both").Inc()
	case det != nil:
		metrics.Routes.WithLabelValues("deterministic").Inc()
	default:
		metrics.Routes.WithLabelValues("ai").Inc()
	}

	merged := Merge(cls, det, aiRes)
	if !merged.Success {
		p.logger.Info("turn not understood",
			zap.String("type", string(cls.Type)),
			zap.String("detail", merged.Error))
		merged.Error = ErrAllFailed
		return merged
	}
	return p.finish(merged, text)
}

// Merge reconciles the strategies that ran. Either argument may be nil when that strategy was not routed.
func Merge(cls types.Classification, det, aiRes *types.ParseResult) types.ParseResult {
	var out types.ParseResult
	switch {
	case det == nil && aiRes == nil:
		out = types.Failed(types.SourceHybrid, 0, "no extraction strategy applies")
	case aiRes == nil:
		out = *det
	case det == nil:
		out = *aiRes
	case det.Success != aiRes.Success:
		out = *det
		if aiRes.Success {
			out = *aiRes
		}
	case !det.Success:
		out = *det
		if aiRes.Confidence > det.Confidence {
			out = *aiRes
		}
	case cls.Type == types.InputStructured && det.Confidence > 0.6:
		out = *det
	case cls.Type == types.InputConversational && aiRes.Confidence > 0.5:
		out = *aiRes
	default:
		out = *det
		if aiRes.Confidence > det.Confidence {
			out = *aiRes
		}
	}
	out.Source = types.SourceHybrid
	return out
}

// continuation applies the origin of a follow-up turn to the current plan.
func (p *HybridParser) continuation(text string, cls types.Classification, current *types.TripPlan) types.ParseResult {
	x := p.det.Extract(text)
	plan := current.Clone()
	plan.Origin = x.Plan.Origin
	plan.Resolve()
	return types.ParseResult{Success: true, Confidence: cls.Confidence, Source: types.SourceHybrid, Plan: &plan}
}

// finish tags the result and attaches preferences and constraints found by the preference extractor.
func (p *HybridParser) finish(r types.ParseResult, text string) types.ParseResult {
	r.Source = types.SourceHybrid
	extra := p.prefs.Extract(text)
	set := types.NewPreferenceSet(r.Preferences...)
	set.Add(extra.Preferences...)
	if len(set) > 0 {
		r.Preferences = set.Sorted()
	}
	r.Constraints = types.MergeConstraints(r.Constraints, extra.Constraints)
	if len(r.Constraints) == 0 {
		r.Constraints = nil
	}
	return r
}
