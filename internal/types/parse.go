// README: Parse result contract shared by extractors and the hybrid parser.
package types

// Source identifies which strategy produced a ParseResult.
type Source string

const (
	SourceDeterministic Source = "deterministic"
	SourceAI            Source = "ai"
	SourceHybrid        Source = "hybrid"
)

// ParseResult is the output of one extraction strategy or of the merged pipeline.
// Confidence is a heuristic score, not a probability.
type ParseResult struct {
	Success     bool         `json:"success"`
	Confidence  float64      `json:"confidence"`
	Source      Source       `json:"source"`
	Plan        *TripPlan    `json:"plan,omitempty"`
	Preferences []string     `json:"preferences,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Failed builds an unsuccessful result for the given source.
func Failed(src Source, confidence float64, msg string) ParseResult {
	return ParseResult{Success: false, Confidence: confidence, Source: src, Error: msg}
}
