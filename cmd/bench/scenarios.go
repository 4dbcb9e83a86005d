// README: Multi-turn conversation scenarios replayed against the trip API, one session each.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"wayfarer/internal/types"
)

// turnResponse is the subset of the parse and modify responses the scenarios inspect.
type turnResponse struct {
	SessionID      string               `json:"session_id"`
	Success        bool                 `json:"success"`
	Plan           *types.TripPlan      `json:"plan"`
	Classification types.Classification `json:"classification"`
	Reply          string               `json:"reply"`
	Error          *string              `json:"error"`
}

type sessionResponse struct {
	CurrentPlan *types.TripPlan `json:"current_plan"`
}

type turn struct {
	// path is "parse" or "modify".
	path  string
	text  string
	check func(turnResponse) error
}

type scenario struct {
	name  string
	turns []turn
	// final, when set, inspects the stored session after the last turn.
	final func(sessionResponse) error
}

func scenarios() []scenario {
	return []scenario{
		{
			name: "Lisbon and Granada with explicit counts",
			turns: []turn{{
				path: "parse",
				text: "2 weeks in Lisbon and Granada, 10 days lisbon, 4 granada",
				check: expectPlan([]types.Destination{{City: "Lisbon", Days: 10}, {City: "Granada", Days: 4}}, "", 14),
			}},
		},
		{
			name: "London then origin follow-up",
			turns: []turn{
				{path: "parse", text: "5 days in London", check: expectPlan([]types.Destination{{City: "London", Days: 5}}, "", 5)},
				{path: "parse", text: "from NYC", check: expectPlan([]types.Destination{{City: "London", Days: 5}}, "NYC", 5)},
			},
			final: func(s sessionResponse) error {
				if s.CurrentPlan == nil || s.CurrentPlan.Origin != "NYC" {
					return fmt.Errorf("stored plan lost the origin")
				}
				return nil
			},
		},
		{
			name: "Europe alone is ambiguous",
			turns: []turn{{
				path: "parse",
				text: "Europe",
				check: func(r turnResponse) error {
					if r.Success {
						return fmt.Errorf("expected failure")
					}
					if r.Classification.Type != types.InputAmbiguous || r.Classification.Confidence >= 0.5 {
						return fmt.Errorf("classification %s/%.2f", r.Classification.Type, r.Classification.Confidence)
					}
					if r.Error == nil || *r.Error == "" {
						return fmt.Errorf("missing error")
					}
					return nil
				},
			}},
		},
		{
			name: "Remove a city that is not in the plan",
			turns: []turn{
				{path: "parse", text: "5 days in Paris", check: expectPlan([]types.Destination{{City: "Paris", Days: 5}}, "", 5)},
				{path: "modify", text: "remove Tokyo", check: func(r turnResponse) error {
					if r.Success {
						return fmt.Errorf("expected rejection")
					}
					if r.Error == nil || !strings.Contains(*r.Error, "Tokyo") {
						return fmt.Errorf("error does not name Tokyo: %v", r.Error)
					}
					if !strings.Contains(r.Reply, "Paris") {
						return fmt.Errorf("reply does not list the plan: %q", r.Reply)
					}
					return nil
				}},
			},
			final: func(s sessionResponse) error {
				if s.CurrentPlan == nil || len(s.CurrentPlan.Destinations) != 1 || s.CurrentPlan.Destinations[0].City != "Paris" {
					return fmt.Errorf("plan changed after a rejected modification")
				}
				return nil
			},
		},
		{
			name: "Whole-trip rescale",
			turns: []turn{
				{path: "parse", text: "London for 6 days, Paris for 4 days", check: expectPlan([]types.Destination{{City: "London", Days: 6}, {City: "Paris", Days: 4}}, "", 10)},
				{path: "modify", text: "extend the whole trip to 2 weeks", check: func(r turnResponse) error {
					if !r.Success || r.Plan == nil {
						return fmt.Errorf("modification failed: %v", r.Error)
					}
					if r.Plan.TotalDays != 14 || r.Plan.DaySum() != 14 {
						return fmt.Errorf("total=%d sum=%d", r.Plan.TotalDays, r.Plan.DaySum())
					}
					if len(r.Plan.Destinations) != 2 || r.Plan.Destinations[0].Days <= r.Plan.Destinations[1].Days {
						return fmt.Errorf("not proportional: %s", r.Plan.Summary())
					}
					return nil
				}},
			},
		},
	}
}

func expectPlan(want []types.Destination, origin string, total int) func(turnResponse) error {
	return func(r turnResponse) error {
		if !r.Success || r.Plan == nil {
			return fmt.Errorf("parse failed: %v", r.Error)
		}
		if diff := cmp.Diff(want, r.Plan.Destinations); diff != "" {
			return fmt.Errorf("destinations (-want +got): %s", diff)
		}
		if r.Plan.Origin != origin || r.Plan.TotalDays != total {
			return fmt.Errorf("origin=%q total=%d", r.Plan.Origin, r.Plan.TotalDays)
		}
		return nil
	}
}

func (sc scenario) testCase(base string) TestCase {
	return TestCase{
		Name:     "Scenario: " + sc.name,
		Focus:    "conversation",
		Parallel: true,
		Run: func(ctx context.Context, r *Runner) Result {
			sessionID := "bench-" + uuid.NewString()
			for i, t := range sc.turns {
				body := map[string]any{"text": t.text, "session_id": sessionID}
				status, raw, err := r.do(ctx, http.MethodPost, base+"/api/trips/"+t.path, body)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: StatusFail, Note: fmt.Sprintf("turn %d: status=%d", i+1, status)}
				}
				var resp turnResponse
				if err := json.Unmarshal(raw, &resp); err != nil {
					return Result{Status: StatusFail, Note: fmt.Sprintf("turn %d: %v", i+1, err)}
				}
				if err := t.check(resp); err != nil {
					return Result{Status: StatusFail, Note: fmt.Sprintf("turn %d %q: %v", i+1, t.text, err)}
				}
			}
			if sc.final != nil {
				status, raw, err := r.do(ctx, http.MethodGet, base+"/api/sessions/"+sessionID, nil)
				if err != nil || status != http.StatusOK {
					return Result{Status: StatusFail, Note: fmt.Sprintf("session fetch: status=%d err=%v", status, err)}
				}
				var st sessionResponse
				if err := json.Unmarshal(raw, &st); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if err := sc.final(st); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
			}
			// sessions are not kept after the run
			_, _, _ = r.do(ctx, http.MethodDelete, base+"/api/sessions/"+sessionID, nil)
			return Result{Status: StatusPass, Note: fmt.Sprintf("turns=%d", len(sc.turns))}
		},
	}
}
