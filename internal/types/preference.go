// README: Soft preferences and hard constraints accumulated per session.
package types

import (
	"encoding/json"
	"sort"
)

// PreferenceSet is an unordered set of normalized tags; duplicates collapse.
type PreferenceSet map[string]struct{}

// NewPreferenceSet builds a set from tags.
func NewPreferenceSet(tags ...string) PreferenceSet {
	s := make(PreferenceSet, len(tags))
	s.Add(tags...)
	return s
}

func (s PreferenceSet) Add(tags ...string) {
	for _, t := range tags {
		if t != "" {
			s[t] = struct{}{}
		}
	}
}

func (s PreferenceSet) Remove(tags ...string) {
	for _, t := range tags {
		delete(s, t)
	}
}

func (s PreferenceSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Sorted returns the tags in lexical order for stable output.
func (s PreferenceSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s PreferenceSet) Clone() PreferenceSet {
	out := make(PreferenceSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

func (s PreferenceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *PreferenceSet) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewPreferenceSet(tags...)
	return nil
}

// ConstraintType classifies a hard constraint.
type ConstraintType string

const (
	ConstraintDuration      ConstraintType = "duration"
	ConstraintBudget        ConstraintType = "budget"
	ConstraintAccessibility ConstraintType = "accessibility"
	ConstraintDietary       ConstraintType = "dietary"
	ConstraintOther         ConstraintType = "other"
)

// Priority of a constraint.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Constraint is a hard requirement. Amount carries numeric payloads (days, currency units),
// Value carries textual ones (e.g. "wheelchair", "vegetarian").
type Constraint struct {
	Type     ConstraintType `json:"type"`
	Amount   int            `json:"amount,omitempty"`
	Currency string         `json:"currency,omitempty"`
	Value    string         `json:"value,omitempty"`
	Priority Priority       `json:"priority"`
}

// Key identifies a constraint for union semantics: one budget, one max duration,
// any number of distinct accessibility/dietary values.
func (c Constraint) Key() string {
	switch c.Type {
	case ConstraintBudget, ConstraintDuration:
		return string(c.Type)
	default:
		return string(c.Type) + ":" + c.Value
	}
}

// MergeConstraints unions incoming into existing, keeping order of first appearance.
// A newer budget or duration ceiling replaces the older one in place.
func MergeConstraints(existing, incoming []Constraint) []Constraint {
	out := append([]Constraint(nil), existing...)
	for _, c := range incoming {
		replaced := false
		for i := range out {
			if out[i].Key() == c.Key() {
				out[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	return out
}
