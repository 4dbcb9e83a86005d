// README: Conversation state model (per-session plan, history, preferences, constraints, undo snapshot).
package session

import (
	"errors"
	"fmt"
	"time"

	"wayfarer/internal/types"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrLockTimeout   = errors.New("session is busy")
)

// MaxHistory bounds the messages retained per session; older ones are dropped first.
const MaxHistory = 100

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        types.ID  `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Metadata struct {
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Snapshot is the part of a state restored by a single-level undo.
type Snapshot struct {
	Plan        *types.TripPlan     `json:"plan,omitempty"`
	Preferences types.PreferenceSet `json:"preferences"`
	Constraints []types.Constraint  `json:"constraints,omitempty"`
	LastCity    string              `json:"last_city,omitempty"`
}

// State is one session's conversation state. It is exclusively owned by its session.
type State struct {
	SessionID   string              `json:"session_id"`
	UserID      string              `json:"user_id,omitempty"`
	CurrentPlan *types.TripPlan     `json:"current_plan,omitempty"`
	History     []Message           `json:"history"`
	Preferences types.PreferenceSet `json:"preferences"`
	Constraints []types.Constraint  `json:"constraints"`
	LastType    types.InputType     `json:"last_type,omitempty"`
	LastCity    string              `json:"last_city,omitempty"`
	Previous    *Snapshot           `json:"previous,omitempty"`
	Metadata    Metadata            `json:"metadata"`
}

// NewState creates an empty state for id.
func NewState(id string, now time.Time) *State {
	return &State{
		SessionID:   id,
		Preferences: types.NewPreferenceSet(),
		Metadata:    Metadata{StartTime: now, LastActivity: now},
	}
}

// Clone returns a deep copy; mutations on the copy never reach the stored state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.CurrentPlan = clonePlan(s.CurrentPlan)
	out.History = append([]Message(nil), s.History...)
	out.Preferences = s.Preferences.Clone()
	out.Constraints = append([]types.Constraint(nil), s.Constraints...)
	if s.Previous != nil {
		prev := s.snapshotCopy(*s.Previous)
		out.Previous = &prev
	}
	return &out
}

func (s *State) snapshotCopy(snap Snapshot) Snapshot {
	return Snapshot{
		Plan:        clonePlan(snap.Plan),
		Preferences: snap.Preferences.Clone(),
		Constraints: append([]types.Constraint(nil), snap.Constraints...),
		LastCity:    snap.LastCity,
	}
}

// Checkpoint records the current plan, preferences and constraints for Undo.
func (s *State) Checkpoint() {
	snap := s.snapshotCopy(Snapshot{Plan: s.CurrentPlan, Preferences: s.Preferences, Constraints: s.Constraints, LastCity: s.LastCity})
	s.Previous = &snap
}

// Undo restores the last checkpoint once.
func (s *State) Undo() error {
	if s.Previous == nil {
		return ErrNothingToUndo
	}
	s.CurrentPlan = s.Previous.Plan
	s.Preferences = s.Previous.Preferences
	s.Constraints = s.Previous.Constraints
	s.LastCity = s.Previous.LastCity
	s.Previous = nil
	return nil
}

// ApplyTurn checkpoints the state, then replaces the plan, merges preferences and constraints,
// and appends the user message with the assistant reply.
func (s *State) ApplyTurn(turn Turn, now time.Time) error {
	res := turn.Result
	if !res.Success || res.Plan == nil {
		return fmt.Errorf("%w: %s", types.ErrParseFailure, res.Error)
	}
	s.Checkpoint()
	plan := res.Plan.Clone()
	s.CurrentPlan = &plan
	if turn.Preferences != nil {
		s.Preferences = turn.Preferences.Clone()
	}
	s.MergePreferences(res.Preferences, res.Constraints)
	s.LastType = turn.Type
	if turn.LastCity != "" {
		s.LastCity = turn.LastCity
	} else if n := len(plan.Destinations); n > 0 {
		s.LastCity = plan.Destinations[n-1].City
	}
	reply := turn.Reply
	if reply == "" {
		reply = plan.Summary()
	}
	s.AddMessage(RoleUser, turn.Text, now)
	s.AddMessage(RoleAssistant, reply, now)
	return nil
}

// AddMessage appends to history and updates activity metadata.
func (s *State) AddMessage(role Role, content string, now time.Time) {
	s.History = append(s.History, Message{ID: types.NewID(), Role: role, Content: content, Timestamp: now})
	if len(s.History) > MaxHistory {
		s.History = append([]Message(nil), s.History[len(s.History)-MaxHistory:]...)
	}
	s.Metadata.MessageCount++
	s.Metadata.LastActivity = now
}

// MergePreferences unions tags and constraints into the state; nothing is removed.
func (s *State) MergePreferences(tags []string, constraints []types.Constraint) {
	if s.Preferences == nil {
		s.Preferences = types.NewPreferenceSet()
	}
	s.Preferences.Add(tags...)
	s.Constraints = types.MergeConstraints(s.Constraints, constraints)
}

// RecentMessages returns the content of up to n latest messages, oldest first.
func (s *State) RecentMessages(n int) []string {
	start := len(s.History) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(s.History)-start)
	for _, m := range s.History[start:] {
		out = append(out, string(m.Role)+": "+m.Content)
	}
	return out
}

func clonePlan(p *types.TripPlan) *types.TripPlan {
	if p == nil {
		return nil
	}
	c := p.Clone()
	return &c
}
