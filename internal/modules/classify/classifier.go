// README: Feature-heuristic classifier that routes a turn to the right extraction strategy.
package classify

import (
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/preference"
	"wayfarer/internal/types"
)

// Context is the slice of conversation state the classifier reads.
type Context struct {
	CurrentPlan *types.TripPlan
	LastType    types.InputType
}

func (c *Context) hasPlan() bool {
	return c != nil && c.CurrentPlan != nil && len(c.CurrentPlan.Destinations) > 0
}

var (
	modificationRe = regexp.MustCompile(`(?i)\b(?:add|remove|drop|delete|skip|cut|extend|shorten|replace|swap|switch|instead\s+of|change|make\s+it|more\s+days?|fewer\s+days?|less\s+days?|extra\s+days?|longer|shorter|no\s+longer|rather\s+than)\b`)
	questionRe     = regexp.MustCompile(`(?i)^\s*(?:what|which|where|when|how|why|who|is|are|can|could|should|do|does|will|would)\b`)
	planningVerbRe = regexp.MustCompile(`(?i)\b(?:plan|planning|visit|visiting|go|going|travel|traveling|travelling|trip|spend|spending|stay|staying|fly|flying|book|itinerary|head|heading)\b`)
	chattyRe       = regexp.MustCompile(`(?i)\b(?:i'd\s+(?:like|love)|i\s+would\s+(?:like|love)|we'd\s+(?:like|love)|i\s+want|we\s+want|somewhere|something|maybe|thinking\s+(?:about|of)|dreaming|ideas?|suggest|recommend|not\s+sure|warm|sunny)\b`)
	relativeRe     = regexp.MustCompile(`(?i)\b(?:there|that\s+city|that\s+place|the\s+first|the\s+last|the\s+second|both|it)\b`)
)

// Classifier scores text against feature heuristics. It is stateless and deterministic.
type Classifier struct {
	extractor *extract.Extractor
	prefs     *preference.Extractor
	logger    *zap.Logger
}

func New(extractor *extract.Extractor, prefs *preference.Extractor, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.NewExtractor(nil, logger)
	}
	if prefs == nil {
		prefs = preference.NewExtractor(logger)
	}
	return &Classifier{extractor: extractor, prefs: prefs, logger: logger.Named("classify")}
}

// Classify applies the decision order; the first matching rule wins.
func (c *Classifier) Classify(text string, ctx *Context) types.Classification {
	x := c.extractor.Extract(text)
	f := map[types.Feature]bool{
		types.FeatureExplicitDuration:  x.HasDuration,
		types.FeatureExplicitCities:    len(x.Cities) > 0,
		types.FeatureOrigin:            x.Plan.Origin != "",
		types.FeatureModification:      modificationRe.MatchString(text),
		types.FeatureQuestion:          strings.Contains(text, "?") || questionRe.MatchString(text),
		types.FeaturePlanningVerb:      planningVerbRe.MatchString(text),
		types.FeatureRelativeReference: relativeRe.MatchString(text),
		types.FeatureMultiDestination:  len(x.Cities) > 1,
		types.FeatureContextPlan:       ctx.hasPlan(),
	}
	natural := c.prefs.Signals(text) + len(chattyRe.FindAllString(text, -1))
	f[types.FeaturePreference] = natural > 0
	structured := count(f[types.FeatureExplicitDuration], f[types.FeatureExplicitCities], f[types.FeatureOrigin])

	cls := types.Classification{Features: f}
	switch {
	case f[types.FeatureModification] && ctx.hasPlan():
		cls.Type = types.InputModification
		cls.Confidence = capAt(0.6+0.1*float64(count(f[types.FeatureExplicitCities], f[types.FeatureExplicitDuration], f[types.FeatureOrigin])), 0.9)
		switch {
		case f[types.FeatureRelativeReference] && !f[types.FeatureExplicitCities]:
			cls.Complexity = types.ComplexityComplex
		case f[types.FeatureExplicitCities] || f[types.FeatureExplicitDuration] || f[types.FeatureOrigin]:
			cls.Complexity = types.ComplexitySimple
		default:
			cls.Complexity = types.ComplexityMedium
		}

	case f[types.FeatureModification]:
		// a diff needs a base plan
		cls.Type = types.InputAmbiguous
		cls.Confidence = ambiguousConfidence(structured)
		cls.Complexity = types.ComplexityComplex

	case f[types.FeatureQuestion] && !f[types.FeaturePlanningVerb]:
		cls.Type = types.InputQuestion
		cls.Confidence = 0.7
		cls.Complexity = types.ComplexitySimple

	case ctx.hasPlan() && f[types.FeatureOrigin] && !f[types.FeatureExplicitCities] && !f[types.FeatureExplicitDuration]:
		f[types.FeatureContextContinuation] = true
		cls.Type = types.InputStructured
		if ctx.LastType == types.InputConversational {
			cls.Type = ctx.LastType
		}
		cls.Confidence = 0.7
		cls.Complexity = types.ComplexitySimple

	case natural > structured:
		cls.Type = types.InputConversational
		cls.Confidence = capAt(0.5+0.1*float64(natural), 0.85)
		cls.Complexity = types.ComplexityMedium
		if !f[types.FeatureExplicitCities] {
			cls.Complexity = types.ComplexityComplex
		}

	case f[types.FeatureExplicitDuration] && f[types.FeatureExplicitCities]:
		cls.Type = types.InputStructured
		cls.Confidence = capAt(0.5+0.2*float64(structured), 0.95)
		cls.Complexity = types.ComplexitySimple
		if f[types.FeatureMultiDestination] {
			cls.Complexity = types.ComplexityMedium
		}

	default:
		cls.Type = types.InputAmbiguous
		cls.Confidence = ambiguousConfidence(structured + natural)
		cls.Complexity = types.ComplexityComplex
	}

	c.logger.Debug("classified",
		zap.String("type", string(cls.Type)),
		zap.Float64("confidence", cls.Confidence),
		zap.String("complexity", string(cls.Complexity)))
	return cls
}

// ambiguousConfidence stays below 0.5 however many weak signals are present.
func ambiguousConfidence(signals int) float64 {
	return capAt(0.2+0.1*float64(signals), 0.45)
}

func capAt(v, limit float64) float64 {
	return math.Round(math.Min(v, limit)*100) / 100
}

func count(flags ...bool) int {
	n := 0
	for _, b := range flags {
		if b {
			n++
		}
	}
	return n
}
