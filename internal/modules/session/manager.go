// README: Conversation state manager: serialized per-session turns over a Store and a Locker.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"wayfarer/internal/types"
)

// Turn is one user message together with the outcome the caller computed for it.
type Turn struct {
	UserID string
	Text   string
	Type   types.InputType
	Result types.ParseResult
	// Reply is the assistant text appended after the user message. Empty means the plan summary.
	Reply string
	// LastCity is the city the turn referred to most recently, used to resolve "there".
	LastCity string
	// Preferences, when non-nil, replaces the preference set instead of being unioned in.
	// Only explicit removals in a modification set it.
	Preferences types.PreferenceSet
}

type Manager struct {
	store  Store
	locker Locker
	now    func() time.Time
	logger *zap.Logger
}

func NewManager(store Store, locker Locker, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Manager{store: store, locker: locker, now: time.Now, logger: logger.Named("session")}
}

// GetState returns a copy of the session state, or ErrNotFound.
func (m *Manager) GetState(ctx context.Context, id string) (*State, error) {
	return m.store.Get(ctx, id)
}

// Update runs fn on a private copy of the session state while holding the session lock.
// The copy is stored only when fn succeeds and ctx is still live, so a failed or abandoned
// turn leaves the stored state untouched. A missing session is created.
func (m *Manager) Update(ctx context.Context, id, userID string, fn func(*State) error) (*State, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("session id required")
	}
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		st = NewState(id, m.now())
	} else if err != nil {
		return nil, err
	}
	switch {
	case st.UserID == "":
		st.UserID = userID
	case userID != "" && st.UserID != userID:
		// another user's session is indistinguishable from a missing one
		return nil, ErrNotFound
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, st); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// ApplyTurn records a successful turn under the session lock. A failed result mutates nothing.
func (m *Manager) ApplyTurn(ctx context.Context, id string, turn Turn) (*State, error) {
	if !turn.Result.Success || turn.Result.Plan == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrParseFailure, turn.Result.Error)
	}
	return m.Update(ctx, id, turn.UserID, func(st *State) error {
		return st.ApplyTurn(turn, m.now())
	})
}

// Undo restores the plan, preferences and constraints from before the last applied turn.
func (m *Manager) Undo(ctx context.Context, id string) (*State, error) {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	st, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := st.Undo(); err != nil {
		return nil, err
	}
	st.Metadata.LastActivity = m.now()
	if err := m.store.Put(ctx, st); err != nil {
		return nil, err
	}
	m.logger.Debug("undo applied", zap.String("session_id", id))
	return st.Clone(), nil
}

// Clear drops the session. Clearing an unknown session is not an error.
func (m *Manager) Clear(ctx context.Context, id string) error {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return m.store.Delete(ctx, id)
}
