package ai

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wayfarer/internal/types"
)

type fakeBackend struct {
	available bool
	resp      *TripResponse
	err       error
	block     bool
	calls     atomic.Int32
	lastReq   TripRequest
}

func (f *fakeBackend) Available(context.Context) bool { return f.available }

func (f *fakeBackend) ExtractTrip(ctx context.Context, req TripRequest) (*TripResponse, error) {
	f.calls.Add(1)
	f.lastReq = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

type fakeQuota struct {
	allow bool
	err   error
}

func (q fakeQuota) Allow(context.Context, string) (bool, error) { return q.allow, q.err }

func strPtr(s string) *string { return &s }

func noLimit() Options {
	return Options{ConfidenceThreshold: 0.6, Timeout: time.Second}
}

func TestExtractor_Unavailable(t *testing.T) {
	ctx := context.Background()
	cls := types.Classification{Type: types.InputConversational}

	res := NewExtractor(nil, nil, noLimit(), zap.NewNop()).Extract(ctx, "somewhere warm", cls, nil, "")
	assert.False(t, res.Success)
	assert.Equal(t, types.SourceAI, res.Source)
	assert.Equal(t, "AI parser not available", res.Error)

	fb := &fakeBackend{available: false}
	res = NewExtractor(fb, nil, noLimit(), zap.NewNop()).Extract(ctx, "somewhere warm", cls, nil, "")
	assert.Equal(t, types.ErrBackendUnavailable.Error(), res.Error)
	assert.Zero(t, fb.calls.Load())
}

func TestExtractor_PassesConfidenceThrough(t *testing.T) {
	fb := &fakeBackend{available: true, resp: &TripResponse{
		Destinations: []types.Destination{{City: " Paris ", Days: 4}, {City: "Nowhere", Days: 0}, {City: "Rome", Days: 3}},
		Origin:       strPtr("Boston"),
		TotalDays:    10,
		Preferences:  []string{"Romantic", " "},
		Confidence:   0.73,
	}}
	e := NewExtractor(fb, nil, noLimit(), zap.NewNop())
	rc := &RequestContext{Preferences: []string{"beach"}}

	res := e.Extract(context.Background(), "a romantic week or so in Paris and Rome", types.Classification{Type: types.InputConversational}, rc, "")
	require.True(t, res.Success)
	assert.Equal(t, types.SourceAI, res.Source)
	assert.Equal(t, 0.73, res.Confidence)
	assert.Equal(t, []types.Destination{{City: "Paris", Days: 4}, {City: "Rome", Days: 3}}, res.Plan.Destinations)
	assert.Equal(t, "Boston", res.Plan.Origin)
	assert.Equal(t, 7, res.Plan.TotalDays)
	assert.NotEmpty(t, res.Plan.Warnings)
	assert.Equal(t, []string{"romantic"}, res.Preferences)
	assert.Same(t, rc, fb.lastReq.Context)
}

func TestExtractor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		wantErr string
	}{
		{"below threshold", &fakeBackend{available: true, resp: &TripResponse{Destinations: []types.Destination{{City: "Paris", Days: 3}}, Confidence: 0.4}}, "AI confidence below threshold"},
		{"model error", &fakeBackend{available: true, resp: &TripResponse{Error: "no trip found", Confidence: 0.2}}, "no trip found"},
		{"no destinations", &fakeBackend{available: true, resp: &TripResponse{Confidence: 0.9}}, "AI extraction found no destinations"},
		{"transport error", &fakeBackend{available: true, err: errors.New("boom")}, "AI extraction failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewExtractor(tt.backend, nil, noLimit(), zap.NewNop()).Extract(context.Background(), "x", types.Classification{}, nil, "")
			assert.False(t, res.Success)
			assert.Nil(t, res.Plan)
			assert.Equal(t, tt.wantErr, res.Error)
		})
	}
}

func TestExtractor_Timeout(t *testing.T) {
	fb := &fakeBackend{available: true, block: true}
	e := NewExtractor(fb, nil, Options{ConfidenceThreshold: 0.6, Timeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	res := e.Extract(context.Background(), "x", types.Classification{}, nil, "")
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, "AI extraction timed out", res.Error)
}

func TestExtractor_RateLimitAndQuota(t *testing.T) {
	ok := &TripResponse{Destinations: []types.Destination{{City: "Paris", Days: 3}}, Confidence: 0.9}

	fb := &fakeBackend{available: true, resp: ok}
	e := NewExtractor(fb, nil, Options{ConfidenceThreshold: 0.6, Timeout: time.Second, RPS: 0.001, Burst: 1}, zap.NewNop())
	assert.True(t, e.Extract(context.Background(), "x", types.Classification{}, nil, "").Success)
	res := e.Extract(context.Background(), "x", types.Classification{}, nil, "")
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrBackendUnavailable.Error(), res.Error)
	assert.EqualValues(t, 1, fb.calls.Load())

	fb = &fakeBackend{available: true, resp: ok}
	e = NewExtractor(fb, fakeQuota{allow: false}, noLimit(), zap.NewNop())
	assert.False(t, e.Extract(context.Background(), "x", types.Classification{}, nil, "u1").Success)
	// anonymous callers are not metered
	assert.True(t, e.Extract(context.Background(), "x", types.Classification{}, nil, "").Success)

	e = NewExtractor(fb, fakeQuota{err: errors.New("db down")}, noLimit(), zap.NewNop())
	assert.Equal(t, types.ErrBackendUnavailable.Error(), e.Extract(context.Background(), "x", types.Classification{}, nil, "u1").Error)
}

func TestDecodeTripResponse(t *testing.T) {
	raw := "```json\n{\"destinations\":[{\"city\":\"Lisbon\",\"days\":3}],\"origin\":null,\"total_days\":3,\"confidence\":0.8}\n```"
	resp, err := decodeTripResponse(raw)
	require.NoError(t, err)
	assert.Nil(t, resp.Origin)
	assert.Equal(t, []types.Destination{{City: "Lisbon", Days: 3}}, resp.Destinations)

	_, err = decodeTripResponse("not json")
	assert.Error(t, err)
}

func TestBuildTripPrompt(t *testing.T) {
	prompt, err := buildTripPrompt(TripRequest{
		Text:           "add 2 more days there",
		Classification: types.Classification{Type: types.InputModification, Complexity: types.ComplexityComplex},
		Context:        &RequestContext{CurrentPlan: &types.TripPlan{Destinations: []types.Destination{{City: "Rome", Days: 3}}, TotalDays: 3}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(prompt, "User Message: add 2 more days there"))
	assert.Contains(t, prompt, `"city":"Rome"`)
	assert.Contains(t, prompt, "type=modification complexity=complex")
}
