// README: Classification result used to route extraction strategy.
package types

// InputType is the categorical judgment of a user turn.
type InputType string

const (
	InputStructured     InputType = "structured"
	InputConversational InputType = "conversational"
	InputModification   InputType = "modification"
	InputQuestion       InputType = "question"
	InputAmbiguous      InputType = "ambiguous"
)

// Complexity estimates how hard the input is for pattern extraction.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Feature names a boolean signal observed in the input.
type Feature string

const (
	FeatureExplicitDuration    Feature = "has_explicit_duration"
	FeatureExplicitCities      Feature = "has_explicit_cities"
	FeatureOrigin              Feature = "has_origin"
	FeatureModification        Feature = "is_modification_language"
	FeatureQuestion            Feature = "has_question"
	FeaturePlanningVerb        Feature = "has_planning_verb"
	FeaturePreference          Feature = "has_preference_language"
	FeatureRelativeReference   Feature = "has_relative_reference"
	FeatureMultiDestination    Feature = "has_multiple_destinations"
	FeatureContextPlan         Feature = "has_context_plan"
	FeatureContextContinuation Feature = "is_context_continuation"
)

// Classification is a pure function of (text, context).
type Classification struct {
	Type       InputType        `json:"type"`
	Confidence float64          `json:"confidence"`
	Complexity Complexity       `json:"complexity"`
	Features   map[Feature]bool `json:"features"`
}

// Has reports whether the named feature fired.
func (c Classification) Has(f Feature) bool {
	return c.Features[f]
}
