package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wayfarer/internal/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryStore(capacity int, ttl time.Duration) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(capacity, ttl, 0, nil)
	s.now = clock.now
	return s, clock
}

func planOf(dests ...types.Destination) *types.TripPlan {
	p := types.TripPlan{Destinations: dests}
	p.Resolve()
	return &p
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s, clock := newTestMemoryStore(10, time.Hour)
	ctx := context.Background()

	st := NewState("s1", clock.now())
	st.CurrentPlan = planOf(types.Destination{City: "Paris", Days: 5})
	require.NoError(t, s.Put(ctx, st))

	st.CurrentPlan.Destinations[0].Days = 99
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.CurrentPlan.Destinations[0].Days)

	got.CurrentPlan.Destinations[0].City = "Rome"
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Paris", again.CurrentPlan.Destinations[0].City)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s, clock := newTestMemoryStore(2, 0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NewState("a", clock.now())))
	require.NoError(t, s.Put(ctx, NewState("b", clock.now())))
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, NewState("c", clock.now())))

	assert.Equal(t, 2, s.Len())
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryStoreExpiresIdleSessions(t *testing.T) {
	s, clock := newTestMemoryStore(10, 30*time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NewState("idle", clock.now())))
	require.NoError(t, s.Put(ctx, NewState("busy", clock.now())))

	clock.advance(20 * time.Minute)
	_, err := s.Get(ctx, "busy")
	require.NoError(t, err)

	clock.advance(20 * time.Minute)
	_, err = s.Get(ctx, "idle")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, s.Len())

	clock.advance(31 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreJanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewMemoryStore(10, time.Millisecond, time.Millisecond, nil)
	require.NoError(t, s.Put(context.Background(), NewState("x", time.Now())))
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	st := NewState("r1", time.Now().UTC())
	st.CurrentPlan = planOf(types.Destination{City: "London", Days: 5})
	st.CurrentPlan.Origin = "NYC"
	st.MergePreferences([]string{"museums", "food"}, []types.Constraint{{Type: types.ConstraintDietary, Value: "vegetarian", Priority: types.PriorityHigh}})
	st.AddMessage(RoleUser, "5 days in London", time.Now().UTC())
	require.NoError(t, s.Put(ctx, st))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "NYC", got.CurrentPlan.Origin)
	assert.Equal(t, 5, got.CurrentPlan.TotalDays)
	assert.Equal(t, []string{"food", "museums"}, got.Preferences.Sorted())
	require.Len(t, got.Constraints, 1)
	assert.Equal(t, "vegetarian", got.Constraints[0].Value)
	require.Len(t, got.History, 1)
	assert.Equal(t, RoleUser, got.History[0].Role)

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, st))
	require.NoError(t, s.Delete(ctx, "r1"))
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// failingExpire makes every EXPIRE command fail while other commands pass through.
type failingExpire struct{}

func (failingExpire) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failingExpire) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "expire" {
			err := errors.New("READONLY You can't write against a read only replica")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failingExpire) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStoreSlidesTTL(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NewState("r1", time.Now().UTC())))
	mr.FastForward(40 * time.Second)
	_, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	_, err = s.Get(ctx, "r1")
	require.NoError(t, err)

	rdb.AddHook(failingExpire{})
	_, err = s.Get(ctx, "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh session ttl")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisLockerExcludesAndReleases(t *testing.T) {
	_, rdb := newMiniredis(t)
	l := NewRedisLocker(rdb, time.Second)

	unlock, err := l.Lock(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "s1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Lock(context.Background(), "s2")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "s1")
	require.NoError(t, err)
	again()
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, k.Held())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.Equal(t, 0, k.Held())
}
