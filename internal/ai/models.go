// README: Request/response shapes exchanged with the language-model backend.
package ai

import "wayfarer/internal/types"

// TripRequest is the single call made to the backend.
type TripRequest struct {
	Text           string               `json:"text"`
	Classification types.Classification `json:"classification"`
	Context        *RequestContext      `json:"context,omitempty"`
}

// RequestContext is the serialized conversation context the backend may use to resolve
// relative references such as "add 2 more days there".
type RequestContext struct {
	CurrentPlan    *types.TripPlan    `json:"current_plan,omitempty"`
	Preferences    []string           `json:"preferences,omitempty"`
	Constraints    []types.Constraint `json:"constraints,omitempty"`
	RecentMessages []string           `json:"recent_messages,omitempty"`
}

// TripResponse captures the structured output from the AI model.
type TripResponse struct {
	Destinations []types.Destination `json:"destinations"`

	// Origin is nullable because most requests never mention one.
	Origin *string `json:"origin,omitempty"`

	TotalDays   int      `json:"total_days"`
	Preferences []string `json:"preferences,omitempty"`

	// Confidence is the model's own estimate and is passed through unmodified.
	Confidence float64 `json:"confidence"`

	// Error is set by the model when it cannot interpret the message at all.
	Error string `json:"error,omitempty"`
}
