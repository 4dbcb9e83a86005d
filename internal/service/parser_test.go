package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wayfarer/internal/ai"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/preference"
	"wayfarer/internal/types"
)

type fakeBackend struct {
	resp  *ai.TripResponse
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeBackend) Available(context.Context) bool { return true }

func (f *fakeBackend) ExtractTrip(ctx context.Context, req ai.TripRequest) (*ai.TripResponse, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

type offlineBackend struct{ calls atomic.Int32 }

func (o *offlineBackend) Available(context.Context) bool { return false }

func (o *offlineBackend) ExtractTrip(context.Context, ai.TripRequest) (*ai.TripResponse, error) {
	o.calls.Add(1)
	return nil, errors.New("offline backend called")
}

func tripResponse(conf float64, dests ...types.Destination) *ai.TripResponse {
	total := 0
	for _, d := range dests {
		total += d.Days
	}
	return &ai.TripResponse{Destinations: dests, TotalDays: total, Confidence: conf}
}

func newParser(backend ai.Backend, opts ParserOptions) *HybridParser {
	log := zap.NewNop()
	var aiX *ai.Extractor
	if backend != nil {
		aiX = ai.NewExtractor(backend, nil, ai.Options{ConfidenceThreshold: opts.AIThreshold, Timeout: time.Second}, log)
	}
	return NewHybridParser(extract.NewExtractor(nil, log), preference.NewExtractor(log), aiX, opts, log)
}

func TestParse_StructuredShortCircuitsAI(t *testing.T) {
	backend := &fakeBackend{resp: tripResponse(0.99, types.Destination{City: "Berlin", Days: 3})}
	p := newParser(backend, DefaultParserOptions())

	res, cls := p.Parse(context.Background(), "5 days in London", nil)
	require.True(t, res.Success)
	assert.Equal(t, types.InputStructured, cls.Type)
	assert.Equal(t, types.SourceHybrid, res.Source)
	assert.Equal(t, []types.Destination{{City: "London", Days: 5}}, res.Plan.Destinations)
	assert.Equal(t, 5, res.Plan.TotalDays)
	assert.Zero(t, backend.calls.Load())
}

func TestParse_ClearStructuredInputMatchesDeterministic(t *testing.T) {
	backend := &fakeBackend{resp: tripResponse(0.99, types.Destination{City: "Berlin", Days: 3})}
	p := newParser(backend, DefaultParserOptions())
	det := extract.NewExtractor(nil, zap.NewNop())

	inputs := []string{
		"5 days in London",
		"2 weeks in Lisbon and Granada from Boston",
		"2 weeks in Lisbon and Granada, 10 days lisbon, 4 granada",
		"Flying from Boston to Tokyo for a week",
	}
	checked := 0
	for _, in := range inputs {
		res, cls := p.Parse(context.Background(), in, nil)
		if cls.Type != types.InputStructured || cls.Confidence < 0.9 {
			continue
		}
		checked++
		want := det.Parse(in)
		require.True(t, want.Success, in)
		require.True(t, res.Success, in)
		if diff := cmp.Diff(want.Plan.Destinations, res.Plan.Destinations); diff != "" {
			t.Errorf("%q destinations mismatch (-det +hybrid):\n%s", in, diff)
		}
		assert.Equal(t, want.Plan.Origin, res.Plan.Origin, in)
		assert.Equal(t, want.Plan.TotalDays, res.Plan.TotalDays, in)
	}
	assert.Positive(t, checked)
	assert.Zero(t, backend.calls.Load())
}

func TestParse_LisbonGranadaScenario(t *testing.T) {
	p := newParser(nil, DefaultParserOptions())
	res, _ := p.Parse(context.Background(), "2 weeks in Lisbon and Granada, 10 days lisbon, 4 granada", nil)
	require.True(t, res.Success)
	assert.Equal(t, []types.Destination{{City: "Lisbon", Days: 10}, {City: "Granada", Days: 4}}, res.Plan.Destinations)
	assert.Equal(t, 14, res.Plan.TotalDays)
	assert.Empty(t, res.Plan.Origin)
}

func TestParse_ConversationalUsesAI(t *testing.T) {
	backend := &fakeBackend{resp: tripResponse(0.8, types.Destination{City: "Bali", Days: 7})}
	backend.resp.Preferences = []string{"Beach"}
	p := newParser(backend, DefaultParserOptions())

	res, cls := p.Parse(context.Background(), "I'd love a romantic beach getaway somewhere warm", nil)
	assert.Equal(t, types.InputConversational, cls.Type)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, types.SourceHybrid, res.Source)
	assert.Equal(t, "Bali", res.Plan.Destinations[0].City)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Contains(t, res.Preferences, "romantic")
	assert.Contains(t, res.Preferences, "beach")
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestParse_DeterministicOnlyWhenAIUnavailable(t *testing.T) {
	const text = "I'd love a romantic beach trip, 5 days in Paris and 3 days in Nice"
	want := []types.Destination{{City: "Paris", Days: 5}, {City: "Nice", Days: 3}}

	cases := []struct {
		name    string
		backend ai.Backend
		opts    func(*ParserOptions)
	}{
		{name: "backend offline", backend: &offlineBackend{}},
		{name: "no backend configured"},
		{name: "AI disabled", backend: &fakeBackend{resp: tripResponse(0.9, types.Destination{City: "Bali", Days: 7})},
			opts: func(o *ParserOptions) { o.EnableAIFallback = false }},
		{name: "backend error", backend: &fakeBackend{err: errors.New("503 from upstream")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultParserOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}
			res, cls := newParser(tc.backend, opts).Parse(context.Background(), text, nil)
			assert.NotEqual(t, types.InputStructured, cls.Type)
			require.True(t, res.Success, res.Error)
			assert.Equal(t, types.SourceHybrid, res.Source)
			assert.Equal(t, want, res.Plan.Destinations)
			assert.Equal(t, 8, res.Plan.TotalDays)
			assert.Contains(t, res.Preferences, "beach")
		})
	}

	offline := &offlineBackend{}
	_, _ = newParser(offline, DefaultParserOptions()).Parse(context.Background(), text, nil)
	assert.Zero(t, offline.calls.Load())
}

func TestParse_Failures(t *testing.T) {
	cases := []struct {
		name    string
		backend ai.Backend
		text    string
		opts    func(*ParserOptions)
	}{
		{name: "ambiguous without AI", text: "Europe"},
		{name: "conversational with AI disabled", backend: &fakeBackend{resp: tripResponse(0.9, types.Destination{City: "Bali", Days: 7})},
			text: "I'd love a romantic beach getaway somewhere warm", opts: func(o *ParserOptions) { o.EnableAIFallback = false }},
		{name: "AI below threshold", backend: &fakeBackend{resp: tripResponse(0.3, types.Destination{City: "Bali", Days: 7})},
			text: "I'd love a romantic beach getaway somewhere warm"},
		{name: "AI finds nothing", backend: &fakeBackend{resp: &ai.TripResponse{Confidence: 0.9, Error: "no destination"}},
			text: "Europe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultParserOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}
			res, _ := newParser(tc.backend, opts).Parse(context.Background(), tc.text, nil)
			assert.False(t, res.Success)
			assert.Nil(t, res.Plan)
			assert.Equal(t, ErrAllFailed, res.Error)
			assert.Equal(t, types.SourceHybrid, res.Source)
		})
	}
}

func TestParse_EuropeIsAmbiguous(t *testing.T) {
	res, cls := newParser(nil, DefaultParserOptions()).Parse(context.Background(), "Europe", nil)
	assert.Equal(t, types.InputAmbiguous, cls.Type)
	assert.Less(t, cls.Confidence, 0.5)
	assert.False(t, res.Success)
}

func TestParse_AITimeoutIsBounded(t *testing.T) {
	opts := DefaultParserOptions()
	opts.MaxProcessingTime = 30 * time.Millisecond
	p := newParser(&fakeBackend{block: true}, opts)

	start := time.Now()
	res, _ := p.Parse(context.Background(), "I'd love a romantic beach getaway somewhere warm", nil)
	assert.False(t, res.Success)
	assert.Equal(t, ErrAllFailed, res.Error)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestParse_Continuation(t *testing.T) {
	p := newParser(nil, DefaultParserOptions())
	current := &types.TripPlan{Destinations: []types.Destination{{City: "London", Days: 5}}, TotalDays: 5}

	res, cls := p.Parse(context.Background(), "from NYC", &ParseContext{CurrentPlan: current, LastType: types.InputStructured})
	assert.True(t, cls.Has(types.FeatureContextContinuation))
	require.True(t, res.Success)
	assert.Equal(t, "NYC", res.Plan.Origin)
	assert.Equal(t, []types.Destination{{City: "London", Days: 5}}, res.Plan.Destinations)
	assert.Equal(t, 5, res.Plan.TotalDays)
	assert.Empty(t, current.Origin)
}

func TestParse_Idempotent(t *testing.T) {
	p := newParser(nil, DefaultParserOptions())
	for _, in := range []string{"5 days in London", "Europe", "2 weeks in Lisbon and Granada, 10 days lisbon, 4 granada"} {
		r1, c1 := p.Parse(context.Background(), in, nil)
		r2, c2 := p.Parse(context.Background(), in, nil)
		assert.Equal(t, c1, c2, in)
		assert.Equal(t, r1, r2, in)
	}
}

func TestMerge(t *testing.T) {
	plan := func(city string) *types.TripPlan {
		return &types.TripPlan{Destinations: []types.Destination{{City: city, Days: 3}}, TotalDays: 3}
	}
	ok := func(src types.Source, conf float64, city string) *types.ParseResult {
		return &types.ParseResult{Success: true, Confidence: conf, Source: src, Plan: plan(city)}
	}
	fail := func(src types.Source, conf float64) *types.ParseResult {
		r := types.Failed(src, conf, "nope")
		return &r
	}
	structured := types.Classification{Type: types.InputStructured}
	conversational := types.Classification{Type: types.InputConversational}
	ambiguous := types.Classification{Type: types.InputAmbiguous}

	cases := []struct {
		name     string
		cls      types.Classification
		det, ai  *types.ParseResult
		success  bool
		wantCity string
		wantConf float64
	}{
		{"only deterministic ran", structured, ok(types.SourceDeterministic, 0.5, "Paris"), nil, true, "Paris", 0.5},
		{"only AI ran", ambiguous, nil, ok(types.SourceAI, 0.7, "Rome"), true, "Rome", 0.7},
		{"only AI succeeded", structured, fail(types.SourceDeterministic, 0.9), ok(types.SourceAI, 0.1, "Rome"), true, "Rome", 0.1},
		{"only deterministic succeeded", conversational, ok(types.SourceDeterministic, 0.2, "Paris"), fail(types.SourceAI, 0.9), true, "Paris", 0.2},
		{"both failed keeps higher", ambiguous, fail(types.SourceDeterministic, 0.1), fail(types.SourceAI, 0.3), false, "", 0.3},
		{"structured prefers deterministic", structured, ok(types.SourceDeterministic, 0.65, "Paris"), ok(types.SourceAI, 0.9, "Rome"), true, "Paris", 0.65},
		{"structured low deterministic takes higher", structured, ok(types.SourceDeterministic, 0.55, "Paris"), ok(types.SourceAI, 0.9, "Rome"), true, "Rome", 0.9},
		{"conversational prefers AI", conversational, ok(types.SourceDeterministic, 0.9, "Paris"), ok(types.SourceAI, 0.55, "Rome"), true, "Rome", 0.55},
		{"conversational weak AI takes higher", conversational, ok(types.SourceDeterministic, 0.6, "Paris"), ok(types.SourceAI, 0.4, "Rome"), true, "Paris", 0.6},
		{"otherwise higher confidence", ambiguous, ok(types.SourceDeterministic, 0.6, "Paris"), ok(types.SourceAI, 0.7, "Rome"), true, "Rome", 0.7},
		{"nothing ran", ambiguous, nil, nil, false, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Merge(tc.cls, tc.det, tc.ai)
			assert.Equal(t, types.SourceHybrid, got.Source)
			assert.Equal(t, tc.success, got.Success)
			assert.Equal(t, tc.wantConf, got.Confidence)
			if tc.wantCity != "" {
				require.NotNil(t, got.Plan)
				assert.Equal(t, tc.wantCity, got.Plan.Destinations[0].City)
			}
		})
	}
}
