package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/types"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(100, time.Hour, 0, nil), NewKeyedMutex(), nil)
}

func okResult(plan *types.TripPlan, prefs ...string) types.ParseResult {
	return types.ParseResult{Success: true, Confidence: 0.9, Source: types.SourceHybrid, Plan: plan, Preferences: prefs}
}

func TestApplyTurnRecordsPlanAndHistory(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	st, err := m.ApplyTurn(ctx, "s1", Turn{
		UserID: "u1",
		Text:   "5 days in London",
		Type:   types.InputStructured,
		Result: okResult(planOf(types.Destination{City: "London", Days: 5}), "museums"),
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, 5, st.CurrentPlan.TotalDays)
	assert.Equal(t, "London", st.LastCity)
	assert.Equal(t, types.InputStructured, st.LastType)
	require.Len(t, st.History, 2)
	assert.Equal(t, RoleUser, st.History[0].Role)
	assert.Equal(t, RoleAssistant, st.History[1].Role)
	assert.Equal(t, "London (5 days), 5 days total", st.History[1].Content)
	assert.Equal(t, 2, st.Metadata.MessageCount)

	st, err = m.ApplyTurn(ctx, "s1", Turn{
		Text:   "somewhere with food",
		Type:   types.InputConversational,
		Result: okResult(planOf(types.Destination{City: "London", Days: 5}), "food"),
		Reply:  "noted",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"food", "museums"}, st.Preferences.Sorted())
	assert.Equal(t, "noted", st.History[3].Content)
}

func TestFailedTurnLeavesStateUnchanged(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.ApplyTurn(ctx, "s1", Turn{Text: "Europe", Result: types.Failed(types.SourceHybrid, 0.2, "All parsing strategies failed")})
	assert.ErrorIs(t, err, types.ErrParseFailure)
	_, err = m.GetState(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ApplyTurn(ctx, "s1", Turn{Text: "Paris", Result: okResult(planOf(types.Destination{City: "Paris", Days: 3}))})
	require.NoError(t, err)

	_, err = m.Update(ctx, "s1", "", func(st *State) error {
		st.CurrentPlan.Destinations = nil
		st.AddMessage(RoleUser, "broken", time.Now())
		return errors.New("boom")
	})
	require.Error(t, err)

	st, err := m.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris"}, st.CurrentPlan.Cities())
	assert.Len(t, st.History, 2)
}

func TestCancelledTurnIsNotStored(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := m.Update(ctx, "s1", "", func(st *State) error {
		st.AddMessage(RoleUser, "late", time.Now())
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.GetState(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUndoRestoresOnce(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.ApplyTurn(ctx, "s1", Turn{Text: "5 days in London", Result: okResult(planOf(types.Destination{City: "London", Days: 5}))})
	require.NoError(t, err)
	_, err = m.ApplyTurn(ctx, "s1", Turn{Text: "add Paris", Result: okResult(planOf(
		types.Destination{City: "London", Days: 5},
		types.Destination{City: "Paris", Days: 3},
	), "romantic")})
	require.NoError(t, err)

	st, err := m.Undo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"London"}, st.CurrentPlan.Cities())
	assert.False(t, st.Preferences.Has("romantic"))
	assert.Equal(t, "London", st.LastCity)

	_, err = m.Undo(ctx, "s1")
	assert.ErrorIs(t, err, ErrNothingToUndo)

	_, err = m.Undo(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClear(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, err := m.ApplyTurn(ctx, "s1", Turn{Text: "x", Result: okResult(planOf(types.Destination{City: "Rome", Days: 2}))})
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, "s1"))
	require.NoError(t, m.Clear(ctx, "s1"))
	_, err = m.GetState(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryIsBounded(t *testing.T) {
	st := NewState("s", time.Now())
	for i := 0; i < MaxHistory+10; i++ {
		st.AddMessage(RoleUser, fmt.Sprintf("m%d", i), time.Now())
	}
	assert.Len(t, st.History, MaxHistory)
	assert.Equal(t, "m10", st.History[0].Content)
	assert.Equal(t, MaxHistory+10, st.Metadata.MessageCount)
	assert.Equal(t, []string{"user: m108", "user: m109"}, st.RecentMessages(2))
}

func TestConcurrentTurnsSerializePerSession(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, err := m.ApplyTurn(ctx, "s1", Turn{Text: "1 day in Oslo", Result: okResult(planOf(types.Destination{City: "Oslo", Days: 1}))})
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := m.Update(ctx, "s1", "", func(st *State) error {
				st.CurrentPlan.Destinations[0].Days++
				st.CurrentPlan.Resolve()
				return nil
			})
			errs <- err
		}()
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("other-%d", i)
			_, err := m.ApplyTurn(ctx, id, Turn{Text: "x", Result: okResult(planOf(types.Destination{City: "Rome", Days: i + 1}))})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := m.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1+workers, st.CurrentPlan.TotalDays)
	assert.True(t, st.CurrentPlan.Consistent())

	for i := 0; i < workers; i++ {
		other, err := m.GetState(ctx, fmt.Sprintf("other-%d", i))
		require.NoError(t, err)
		assert.Equal(t, i+1, other.CurrentPlan.TotalDays)
	}
}

func TestUpdateHidesOtherUsersSessions(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, err := m.ApplyTurn(ctx, "s1", Turn{UserID: "alice", Text: "x", Result: okResult(planOf(types.Destination{City: "Rome", Days: 2}))})
	require.NoError(t, err)

	_, err = m.Update(ctx, "s1", "bob", func(st *State) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := m.Update(ctx, "s1", "", func(st *State) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "alice", st.UserID)
}
