// README: Contract for the language-model backend used by the AI-backed trip extractor.
package ai

import (
	"context"
)

// Backend is the language-model capability: text plus context in, structured trip fields out.
// This interface allows for swapping different AI providers (Gemini, a fake in tests, etc.).
type Backend interface {
	// ExtractTrip interprets the user's message against the serialized conversation context.
	ExtractTrip(ctx context.Context, req TripRequest) (*TripResponse, error)

	// Available reports whether the backend can currently accept calls.
	Available(ctx context.Context) bool
}

// Quota gates AI calls per caller. Allow consumes one unit when it returns true.
type Quota interface {
	Allow(ctx context.Context, userID string) (bool, error)
}
