// README: Plan diff model and all-or-nothing application against a trip plan.
package modify

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"wayfarer/internal/modules/extract"
	"wayfarer/internal/types"
)

// Kind names one diff operation.
type Kind string

const (
	KindAddDestination    Kind = "add_destination"
	KindRemoveDestination Kind = "remove_destination"
	KindChangeDuration    Kind = "change_duration"
	KindChangeOrigin      Kind = "change_origin"
	KindUpdatePreferences Kind = "update_preferences"
	KindSwapDestination   Kind = "swap_destination"
	KindReplacePlan       Kind = "replace_plan"
)

// ErrUnrecognized is returned when no change to the current plan could be identified.
var ErrUnrecognized = errors.New("could not identify a change to the current plan")

// Op is one operation of a PlanDiff.
//
// change_duration targets one destination when City is set (Days absolute, or Delta relative)
// and the whole trip otherwise (TotalDays absolute, or Delta relative).
type Op struct {
	Kind              Kind            `json:"kind"`
	City              string          `json:"city,omitempty"`
	NewCity           string          `json:"new_city,omitempty"`
	Days              int             `json:"days,omitempty"`
	Delta             int             `json:"delta,omitempty"`
	TotalDays         int             `json:"total_days,omitempty"`
	Origin            string          `json:"origin,omitempty"`
	AddPreferences    []string        `json:"add_preferences,omitempty"`
	RemovePreferences []string        `json:"remove_preferences,omitempty"`
	Plan              *types.TripPlan `json:"plan,omitempty"`
}

// PlanDiff is a validated, atomic transformation of a plan.
type PlanDiff struct {
	Ops []Op `json:"ops"`
}

// ReplacePlan wraps a complete plan as a single-op diff.
func ReplacePlan(plan types.TripPlan) PlanDiff {
	p := plan.Clone()
	return PlanDiff{Ops: []Op{{Kind: KindReplacePlan, Plan: &p}}}
}

// Kinds lists op kinds in order.
func (d PlanDiff) Kinds() []Kind {
	out := make([]Kind, len(d.Ops))
	for i, op := range d.Ops {
		out[i] = op.Kind
	}
	return out
}

// Empty reports whether the diff has no operations.
func (d PlanDiff) Empty() bool { return len(d.Ops) == 0 }

// Apply transforms plan and prefs. Either every op succeeds and the result satisfies the plan
// invariants, or the inputs are returned untouched together with the first error.
func (d PlanDiff) Apply(plan types.TripPlan, prefs types.PreferenceSet) (types.TripPlan, types.PreferenceSet, error) {
	next := plan.Clone()
	nextPrefs := prefs.Clone()
	for _, op := range d.Ops {
		if err := applyOp(&next, nextPrefs, op); err != nil {
			return plan, prefs, err
		}
	}
	next.Resolve()
	if err := next.Validate(); err != nil {
		return plan, prefs, &types.InvalidModificationError{Current: plan.Cities(), Reason: err.Error()}
	}
	return next, nextPrefs, nil
}

func applyOp(p *types.TripPlan, prefs types.PreferenceSet, op Op) error {
	switch op.Kind {
	case KindAddDestination:
		if i := indexOf(*p, op.City); i >= 0 {
			return &types.InvalidModificationError{Value: op.City, Current: p.Cities(), Reason: "is already in the plan"}
		}
		if op.Days <= 0 {
			return &types.InvalidModificationError{Value: op.City, Reason: "needs a positive number of days"}
		}
		p.Destinations = append(p.Destinations, types.Destination{City: op.City, Days: op.Days})
		p.StatedTotal = 0

	case KindRemoveDestination:
		i := indexOf(*p, op.City)
		if i < 0 {
			return &types.InvalidModificationError{Value: op.City, Current: p.Cities(), Reason: "is not in the current plan"}
		}
		if len(p.Destinations) == 1 {
			return &types.InvalidModificationError{Value: op.City, Current: p.Cities(), Reason: "is the only destination left; name a replacement instead"}
		}
		p.Destinations = append(p.Destinations[:i:i], p.Destinations[i+1:]...)
		p.StatedTotal = 0

	case KindChangeDuration:
		if op.City == "" {
			return rescale(p, op)
		}
		i := indexOf(*p, op.City)
		if i < 0 {
			return &types.InvalidModificationError{Value: op.City, Current: p.Cities(), Reason: "is not in the current plan"}
		}
		days := op.Days
		if op.Delta != 0 {
			days = p.Destinations[i].Days + op.Delta
		}
		if days <= 0 {
			return &types.InvalidModificationError{Value: op.City, Current: p.Cities(), Reason: fmt.Sprintf("would be left with %d days", days)}
		}
		p.Destinations[i].Days = days
		p.StatedTotal = 0

	case KindChangeOrigin:
		if strings.TrimSpace(op.Origin) == "" {
			return &types.InvalidModificationError{Reason: "new origin is empty"}
		}
		p.Origin = op.Origin

	case KindUpdatePreferences:
		prefs.Add(op.AddPreferences...)
		prefs.Remove(op.RemovePreferences...)

	case KindSwapDestination:
		i := indexOf(*p, op.City)
		if i < 0 {
			return &types.InvalidModificationError{Value: op.City, Current: p.Cities(), Reason: "is not in the current plan"}
		}
		if j := indexOf(*p, op.NewCity); j >= 0 && j != i {
			return &types.InvalidModificationError{Value: op.NewCity, Current: p.Cities(), Reason: "is already in the plan"}
		}
		p.Destinations[i].City = op.NewCity

	case KindReplacePlan:
		if op.Plan == nil {
			return &types.InvalidModificationError{Reason: "replacement plan is empty"}
		}
		origin := p.Origin
		*p = op.Plan.Clone()
		if p.Origin == "" {
			p.Origin = origin
		}

	default:
		return fmt.Errorf("unknown modification kind %q", op.Kind)
	}
	return nil
}

// rescale resizes the whole trip, keeping each destination's share of the old total.
// Shares are rounded and the rounding remainder goes to the last destination.
func rescale(p *types.TripPlan, op Op) error {
	old := p.DaySum()
	target := op.TotalDays
	if op.Delta != 0 {
		target = old + op.Delta
	}
	n := len(p.Destinations)
	if n == 0 || old <= 0 {
		return &types.InvalidModificationError{Reason: "there is no trip to resize yet"}
	}
	if target < n {
		return &types.InvalidModificationError{Value: fmt.Sprintf("%d days", target), Current: p.Cities(), Reason: "is too short for every destination to keep at least one day"}
	}
	sized := make([]int, n)
	sum := 0
	for i := 0; i < n-1; i++ {
		sized[i] = int(math.Round(float64(p.Destinations[i].Days) * float64(target) / float64(old)))
		if sized[i] <= 0 {
			sized[i] = 1
		}
		sum += sized[i]
	}
	sized[n-1] = target - sum
	if sized[n-1] <= 0 {
		return &types.InvalidModificationError{Value: fmt.Sprintf("%d days", target), Current: p.Cities(), Reason: "cannot be split across the current destinations"}
	}
	for i := range p.Destinations {
		p.Destinations[i].Days = sized[i]
	}
	p.StatedTotal = 0
	return nil
}

func indexOf(p types.TripPlan, city string) int {
	if city == "" {
		return -1
	}
	for i, d := range p.Destinations {
		if strings.EqualFold(d.City, city) {
			return i
		}
	}
	for i, d := range p.Destinations {
		if extract.SameCity(d.City, city) {
			return i
		}
	}
	return -1
}

// Summary renders the diff for the assistant reply.
func (d PlanDiff) Summary() string {
	parts := make([]string, 0, len(d.Ops))
	for _, op := range d.Ops {
		switch op.Kind {
		case KindAddDestination:
			parts = append(parts, fmt.Sprintf("added %s for %d days", op.City, op.Days))
		case KindRemoveDestination:
			parts = append(parts, "removed "+op.City)
		case KindChangeDuration:
			switch {
			case op.City != "" && op.Delta > 0:
				parts = append(parts, fmt.Sprintf("added %d days to %s", op.Delta, op.City))
			case op.City != "" && op.Delta < 0:
				parts = append(parts, fmt.Sprintf("took %d days off %s", -op.Delta, op.City))
			case op.City != "":
				parts = append(parts, fmt.Sprintf("set %s to %d days", op.City, op.Days))
			case op.Delta != 0:
				parts = append(parts, fmt.Sprintf("resized the trip by %+d days", op.Delta))
			default:
				parts = append(parts, fmt.Sprintf("resized the trip to %d days", op.TotalDays))
			}
		case KindChangeOrigin:
			parts = append(parts, "changed the origin to "+op.Origin)
		case KindUpdatePreferences:
			if len(op.AddPreferences) > 0 {
				parts = append(parts, "noted "+strings.Join(op.AddPreferences, ", "))
			}
			if len(op.RemovePreferences) > 0 {
				parts = append(parts, "dropped "+strings.Join(op.RemovePreferences, ", "))
			}
		case KindSwapDestination:
			parts = append(parts, fmt.Sprintf("swapped %s for %s", op.City, op.NewCity))
		case KindReplacePlan:
			parts = append(parts, "updated the plan")
		}
	}
	return strings.Join(parts, "; ")
}
