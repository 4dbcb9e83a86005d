// README: Gemini-backed implementation of the trip extraction backend (JSON response mode).
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements Backend using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	model := client.GenerativeModel(modelName)

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	// Extraction should be repeatable, keep temperature low.
	model.SetTemperature(0.2)

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

// Available reports whether the client was constructed.
func (p *GeminiProvider) Available(ctx context.Context) bool {
	return p != nil && p.client != nil && p.model != nil
}

// ExtractTrip asks the model for the trip fields of one user message.
func (p *GeminiProvider) ExtractTrip(ctx context.Context, req TripRequest) (*TripResponse, error) {
	prompt, err := buildTripPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}

	return decodeTripResponse(responseText.String())
}

// decodeTripResponse parses the model output, tolerating markdown code fences.
func decodeTripResponse(raw string) (*TripResponse, error) {
	clean := cleanJSONString(raw)
	var result TripResponse
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	return &result, nil
}

// buildTripPrompt constructs the instructions for the AI.
func buildTripPrompt(req TripRequest) (string, error) {
	contextJSON := "NONE"
	if req.Context != nil {
		b, err := json.Marshal(req.Context)
		if err != nil {
			return "", fmt.Errorf("marshal request context: %w", err)
		}
		contextJSON = string(b)
	}

	return fmt.Sprintf(`Role: You extract structured trip plans from travel requests.

Conversation context (JSON, may be NONE):
%s

Classifier hint: type=%s complexity=%s

RULES:
1. List destinations in the order the traveler mentions them. Use the city name as written, title-cased.
2. "days" must be a positive integer. weekend=3 days, week=7 days, month=30 days.
3. When the traveler gives per-city days AND an overall total that disagree, trust the per-city days.
4. Resolve relative references ("there", "that city", "the first one") against current_plan.
5. If the message changes an existing plan, return the FULL updated plan, not only the change.
6. "origin" is where the traveler departs from. Use null when unknown and not in context.
7. "preferences" are short lowercase tags such as "romantic", "budget-friendly", "beach", "cultural".
8. "confidence" is your estimate in [0,1] that the plan matches what the traveler meant.
9. If no destination with a day count can be determined, return an empty list and set "error".

Output JSON Schema:
{
  "destinations": [{"city": "string", "days": integer}],
  "origin": "string or null",
  "total_days": integer,
  "preferences": ["string"],
  "confidence": number,
  "error": "string (optional)"
}

User Message: %s`, contextJSON, req.Classification.Type, req.Classification.Complexity, req.Text), nil
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
