// README: Trip plan value objects (destinations, origin, day totals).
package types

import (
	"fmt"
	"strings"
)

// Destination is one stop of a trip. Days is always positive once stored in a plan.
type Destination struct {
	City string `json:"city"`
	Days int    `json:"days"`
}

// TripPlan is the structured interpretation of a trip request.
//
// TotalDays always equals the sum of destination days once the plan is resolved.
// StatedTotal keeps the aggregate the user typed ("2 weeks"), which is only a hint:
// when it disagrees with the per-destination sum the sum wins and Warnings records it.
// Pending lists cities named in the same turn without a usable day count; they are not
// destinations yet, and Warnings names them too.
type TripPlan struct {
	Destinations []Destination `json:"destinations"`
	Origin       string        `json:"origin,omitempty"`
	TotalDays    int           `json:"total_days"`
	StatedTotal  int           `json:"stated_total,omitempty"`
	Pending      []string      `json:"pending,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// DaySum returns the sum of destination days.
func (p TripPlan) DaySum() int {
	sum := 0
	for _, d := range p.Destinations {
		sum += d.Days
	}
	return sum
}

// Consistent reports whether the totalDays invariant holds and every destination has positive days.
func (p TripPlan) Consistent() bool {
	for _, d := range p.Destinations {
		if d.Days <= 0 {
			return false
		}
	}
	return p.TotalDays == p.DaySum()
}

// Resolve re-derives TotalDays from the destinations and flags a disagreeing stated total.
// Pending cities are kept only while they are still missing from the destinations.
func (p *TripPlan) Resolve() {
	p.TotalDays = p.DaySum()
	p.Warnings = p.Warnings[:0:0]
	if p.StatedTotal > 0 && len(p.Destinations) > 0 && p.StatedTotal != p.TotalDays {
		p.Warnings = append(p.Warnings, fmt.Sprintf("stated total of %d days differs from per-destination sum of %d days", p.StatedTotal, p.TotalDays))
	}
	pending := p.Pending
	p.Pending = nil
	for _, city := range pending {
		p.FlagPending(city)
	}
}

// FlagPending records a named city that has no day count yet.
func (p *TripPlan) FlagPending(city string) {
	for _, d := range p.Destinations {
		if strings.EqualFold(d.City, city) {
			return
		}
	}
	for _, c := range p.Pending {
		if strings.EqualFold(c, city) {
			return
		}
	}
	p.Pending = append(p.Pending, city)
	p.Warnings = append(p.Warnings, fmt.Sprintf("no day count given for %s", city))
}

// Validate checks the invariants a plan must satisfy before it is handed to a caller.
func (p TripPlan) Validate() error {
	if len(p.Destinations) == 0 {
		return fmt.Errorf("plan has no destinations")
	}
	for _, d := range p.Destinations {
		if strings.TrimSpace(d.City) == "" {
			return fmt.Errorf("destination with empty city")
		}
		if d.Days <= 0 {
			return fmt.Errorf("destination %s has non-positive days (%d)", d.City, d.Days)
		}
	}
	if p.TotalDays != p.DaySum() {
		return fmt.Errorf("total days %d does not match destination sum %d", p.TotalDays, p.DaySum())
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing session state.
func (p TripPlan) Clone() TripPlan {
	out := p
	out.Destinations = append([]Destination(nil), p.Destinations...)
	out.Pending = append([]string(nil), p.Pending...)
	out.Warnings = append([]string(nil), p.Warnings...)
	return out
}

// Cities lists destination names in plan order.
func (p TripPlan) Cities() []string {
	out := make([]string, len(p.Destinations))
	for i, d := range p.Destinations {
		out[i] = d.City
	}
	return out
}

// Summary renders a short human-readable description of the plan.
func (p TripPlan) Summary() string {
	parts := make([]string, len(p.Destinations))
	for i, d := range p.Destinations {
		unit := "days"
		if d.Days == 1 {
			unit = "day"
		}
		parts[i] = fmt.Sprintf("%s (%d %s)", d.City, d.Days, unit)
	}
	s := strings.Join(parts, ", ")
	if p.Origin != "" {
		s += " from " + p.Origin
	}
	return fmt.Sprintf("%s, %d days total", s, p.TotalDays)
}
