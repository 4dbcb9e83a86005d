package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wayfarer/internal/ai"
	"wayfarer/internal/modules/modify"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/types"
)

func newConversation(backend ai.Backend) (*Conversation, *session.Manager) {
	mgr := session.NewManager(session.NewMemoryStore(100, time.Hour, 0, nil), session.NewKeyedMutex(), nil)
	return NewConversation(newParser(backend, DefaultParserOptions()), nil, mgr, zap.NewNop()), mgr
}

func seed(t *testing.T, mgr *session.Manager, id string, dests ...types.Destination) {
	t.Helper()
	plan := types.TripPlan{Destinations: dests}
	plan.Resolve()
	_, err := mgr.ApplyTurn(context.Background(), id, session.Turn{
		Text:   "seed",
		Type:   types.InputStructured,
		Result: types.ParseResult{Success: true, Confidence: 0.9, Source: types.SourceHybrid, Plan: &plan},
	})
	require.NoError(t, err)
}

func TestConversation_LondonThenOrigin(t *testing.T) {
	c, _ := newConversation(nil)
	ctx := context.Background()

	first, err := c.Parse(ctx, "5 days in London", "s1", "")
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, types.InputStructured, first.Classification.Type)
	assert.Contains(t, first.Reply, "Where will you be starting from?")

	second, err := c.Parse(ctx, "from NYC", "s1", "")
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.True(t, second.Classification.Has(types.FeatureContextContinuation))
	assert.Equal(t, []types.Destination{{City: "London", Days: 5}}, second.Plan.Destinations)
	assert.Equal(t, "NYC", second.Plan.Origin)
	assert.Equal(t, 5, second.Plan.TotalDays)
	assert.Nil(t, second.Error)

	st, err := c.State(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, st.History, 4)
	assert.Equal(t, "NYC", st.CurrentPlan.Origin)
}

func TestConversation_AsksForMissingDays(t *testing.T) {
	c, _ := newConversation(nil)
	ctx := context.Background()

	resp, err := c.Parse(ctx, "Paris for 5 days and Rome", "s1", "")
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, []types.Destination{{City: "Paris", Days: 5}}, resp.Plan.Destinations)
	assert.Equal(t, []string{"Rome"}, resp.Plan.Pending)
	assert.Contains(t, resp.Reply, "How many days would you like in Rome?")

	st, err := c.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Rome"}, st.CurrentPlan.Pending)
}

func TestConversation_FailedTurnDoesNotTouchState(t *testing.T) {
	c, _ := newConversation(nil)
	ctx := context.Background()

	resp, err := c.Parse(ctx, "Europe", "s1", "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Plan)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrAllFailed, *resp.Error)
	assert.Equal(t, types.InputAmbiguous, resp.Classification.Type)
	assert.NotEmpty(t, resp.Reply)

	_, err = c.State(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestConversation_GeneratesSessionID(t *testing.T) {
	c, _ := newConversation(nil)
	resp, err := c.Parse(context.Background(), "5 days in London", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)

	st, err := c.State(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 5, st.CurrentPlan.TotalDays)
}

func TestConversation_RemoveUnknownDestination(t *testing.T) {
	c, mgr := newConversation(nil)
	ctx := context.Background()
	seed(t, mgr, "s1", types.Destination{City: "Paris", Days: 5})

	resp, err := c.ApplyModification(ctx, "remove Tokyo", "s1", "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Diff)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "Tokyo")
	assert.Contains(t, *resp.Error, "Paris")
	assert.Contains(t, resp.Reply, "Tokyo")
	assert.Contains(t, resp.Reply, "Paris")

	st, err := c.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []types.Destination{{City: "Paris", Days: 5}}, st.CurrentPlan.Destinations)
	assert.Len(t, st.History, 2)
}

func TestConversation_WholeTripRescale(t *testing.T) {
	c, mgr := newConversation(nil)
	ctx := context.Background()
	seed(t, mgr, "s1", types.Destination{City: "London", Days: 6}, types.Destination{City: "Paris", Days: 4})

	resp, err := c.ApplyModification(ctx, "extend the whole trip to 2 weeks", "s1", "")
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Reply)
	assert.Equal(t, 14, resp.Plan.TotalDays)
	assert.Equal(t, []types.Destination{{City: "London", Days: 8}, {City: "Paris", Days: 6}}, resp.Plan.Destinations)
	require.NotNil(t, resp.Diff)
	assert.Equal(t, []modify.Kind{modify.KindChangeDuration}, resp.Diff.Kinds())
}

func TestConversation_ParseRoutesModifications(t *testing.T) {
	c, mgr := newConversation(nil)
	ctx := context.Background()
	seed(t, mgr, "s1", types.Destination{City: "Paris", Days: 5})

	resp, err := c.Parse(ctx, "remove Tokyo", "s1", "")
	require.NoError(t, err)
	assert.Equal(t, types.InputModification, resp.Classification.Type)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "Tokyo")
}

func TestConversation_NoPlanToModify(t *testing.T) {
	c, _ := newConversation(nil)
	resp, err := c.ApplyModification(context.Background(), "remove Paris", "fresh", "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Reply, "no trip to change yet")

	_, err = c.State(context.Background(), "fresh")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestConversation_AddThenUndo(t *testing.T) {
	c, mgr := newConversation(nil)
	ctx := context.Background()
	seed(t, mgr, "s1", types.Destination{City: "Paris", Days: 5})

	resp, err := c.ApplyModification(ctx, "add Rome for 3 days", "s1", "")
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Reply)
	assert.Equal(t, 8, resp.Plan.TotalDays)
	assert.Contains(t, resp.Reply, "Done: added Rome for 3 days")

	more, err := c.ApplyModification(ctx, "add 2 more days there", "s1", "")
	require.NoError(t, err)
	require.True(t, more.Success, more.Reply)
	assert.Equal(t, []types.Destination{{City: "Paris", Days: 5}, {City: "Rome", Days: 5}}, more.Plan.Destinations)

	st, err := c.Undo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 8, st.CurrentPlan.TotalDays)

	_, err = c.Undo(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrNothingToUndo)
}

func TestConversation_AIReplacesUnrecognizedModification(t *testing.T) {
	backend := &fakeBackend{resp: tripResponse(0.9, types.Destination{City: "Kyoto", Days: 4}, types.Destination{City: "Osaka", Days: 2})}
	c, mgr := newConversation(backend)
	ctx := context.Background()
	seed(t, mgr, "s1", types.Destination{City: "Paris", Days: 5})
	_, err := c.Parse(ctx, "from Boston", "s1", "")
	require.NoError(t, err)

	resp, err := c.ApplyModification(ctx, "hmm, let's go somewhere totally different", "s1", "")
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Reply)
	assert.Equal(t, []modify.Kind{modify.KindReplacePlan}, resp.Diff.Kinds())
	assert.Equal(t, []string{"Kyoto", "Osaka"}, resp.Plan.Cities())
	assert.Equal(t, "Boston", resp.Plan.Origin)
	assert.Equal(t, 6, resp.Plan.TotalDays)
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestConversation_Clear(t *testing.T) {
	c, mgr := newConversation(nil)
	seed(t, mgr, "s1", types.Destination{City: "Paris", Days: 5})
	require.NoError(t, c.Clear(context.Background(), "s1"))
	_, err := c.State(context.Background(), "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestConversation_SessionsAreIndependent(t *testing.T) {
	c, _ := newConversation(nil)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Parse(ctx, fmt.Sprintf("%d days in London", i+1), fmt.Sprintf("s-%d", i), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		st, err := c.State(ctx, fmt.Sprintf("s-%d", i))
		require.NoError(t, err)
		assert.Equal(t, i+1, st.CurrentPlan.TotalDays)
	}
}
