// README: Caller-facing conversation API: parse turns, apply modifications, undo, inspect and clear sessions.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"wayfarer/internal/modules/modify"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/types"
)

// recentTurns is how many history messages are sent to the AI backend as context.
const recentTurns = 6

// ParseResponse is the outcome of one parsed turn.
type ParseResponse struct {
	SessionID      string               `json:"session_id"`
	Success        bool                 `json:"success"`
	Plan           *types.TripPlan      `json:"plan"`
	Classification types.Classification `json:"classification"`
	Source         types.Source         `json:"source"`
	Confidence     float64              `json:"confidence"`
	Preferences    []string             `json:"preferences,omitempty"`
	Constraints    []types.Constraint   `json:"constraints,omitempty"`
	Diff           *modify.PlanDiff     `json:"diff,omitempty"`
	Reply          string               `json:"reply,omitempty"`
	Error          *string              `json:"error"`
}

// ModifyResponse is the outcome of one modification turn.
type ModifyResponse struct {
	SessionID string           `json:"session_id"`
	Success   bool             `json:"success"`
	Plan      *types.TripPlan  `json:"plan"`
	Diff      *modify.PlanDiff `json:"diff"`
	Reply     string           `json:"reply,omitempty"`
	Error     *string          `json:"error"`
}

// errTurnRejected aborts a session update without storing it; the response is already built.
var errTurnRejected = errors.New("turn rejected")

// Conversation ties the parser, the modification resolver and the session manager together.
type Conversation struct {
	parser   *HybridParser
	resolver *modify.Resolver
	sessions *session.Manager
	logger   *zap.Logger
}

func NewConversation(parser *HybridParser, resolver *modify.Resolver, sessions *session.Manager, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = modify.NewResolver(parser.det, modify.DefaultOptions(), logger)
	}
	return &Conversation{parser: parser, resolver: resolver, sessions: sessions, logger: logger.Named("conversation")}
}

// Parse interprets one user turn. A turn classified as a modification of the current plan is
// resolved as a diff. The session is only updated when the turn succeeds.
func (c *Conversation) Parse(ctx context.Context, text, sessionID, userID string) (ParseResponse, error) {
	if sessionID == "" {
		sessionID = string(types.NewID())
	}
	resp := ParseResponse{SessionID: sessionID}

	_, err := c.sessions.Update(ctx, sessionID, userID, func(st *session.State) error {
		pctx := parseContext(st, userID)
		cls := c.parser.Classify(text, pctx)
		resp.Classification = cls

		if cls.Type == types.InputModification {
			m := c.modify(ctx, st, text, cls, userID)
			resp.Success, resp.Plan, resp.Diff, resp.Reply, resp.Error = m.Success, m.Plan, m.Diff, m.Reply, m.Error
			resp.Source = types.SourceHybrid
			resp.Confidence = cls.Confidence
			if !m.Success {
				return errTurnRejected
			}
			return nil
		}

		res := c.parser.ParseClassified(ctx, text, cls, pctx)
		resp.Source = res.Source
		resp.Confidence = res.Confidence
		resp.Preferences = res.Preferences
		resp.Constraints = res.Constraints
		if !res.Success {
			resp.Reply = clarifyParse(cls)
			resp.Error = errString(res.Error)
			return errTurnRejected
		}
		reply := planReply(*res.Plan)
		if err := st.ApplyTurn(session.Turn{Text: text, Type: cls.Type, Result: res, Reply: reply}, time.Now()); err != nil {
			return err
		}
		resp.Success = true
		resp.Plan = st.CurrentPlan
		resp.Reply = reply
		return nil
	})
	if err != nil && !errors.Is(err, errTurnRejected) {
		return resp, err
	}
	return resp, nil
}

// ApplyModification resolves text as a change to the session's current plan and applies it atomically.
func (c *Conversation) ApplyModification(ctx context.Context, text, sessionID, userID string) (ModifyResponse, error) {
	if sessionID == "" {
		sessionID = string(types.NewID())
	}
	var resp ModifyResponse
	_, err := c.sessions.Update(ctx, sessionID, userID, func(st *session.State) error {
		cls := c.parser.Classify(text, parseContext(st, userID))
		resp = c.modify(ctx, st, text, cls, userID)
		if !resp.Success {
			return errTurnRejected
		}
		return nil
	})
	resp.SessionID = sessionID
	if err != nil && !errors.Is(err, errTurnRejected) {
		return resp, err
	}
	return resp, nil
}

// modify resolves and applies a diff to st. st is only changed when the response is successful.
func (c *Conversation) modify(ctx context.Context, st *session.State, text string, cls types.Classification, userID string) ModifyResponse {
	diff, err := c.resolver.Resolve(text, st.CurrentPlan, &modify.Context{LastCity: st.LastCity, Preferences: st.Preferences})
	if errors.Is(err, modify.ErrUnrecognized) {
		if fallback, ok := c.aiReplacement(ctx, st, text, cls, userID); ok {
			diff, err = fallback, nil
		}
	}
	if err != nil {
		c.logger.Info("modification rejected", zap.String("session_id", st.SessionID), zap.Error(err))
		return ModifyResponse{Reply: clarifyModification(err), Error: errString(err.Error())}
	}

	plan, prefs, err := diff.Apply(*st.CurrentPlan, st.Preferences)
	if err != nil {
		return ModifyResponse{Reply: clarifyModification(err), Error: errString(err.Error())}
	}
	reply := "Done: " + diff.Summary() + ". " + planReply(plan)
	turn := session.Turn{
		Text:        text,
		Type:        types.InputModification,
		Result:      types.ParseResult{Success: true, Confidence: cls.Confidence, Source: types.SourceHybrid, Plan: &plan},
		Reply:       reply,
		LastCity:    modify.LastCity(diff),
		Preferences: prefs,
	}
	if err := st.ApplyTurn(turn, time.Now()); err != nil {
		return ModifyResponse{Reply: clarifyModification(err), Error: errString(err.Error())}
	}
	return ModifyResponse{Success: true, Plan: st.CurrentPlan, Diff: &diff, Reply: reply}
}

// aiReplacement asks the AI extractor for a complete plan given the conversation context.
func (c *Conversation) aiReplacement(ctx context.Context, st *session.State, text string, cls types.Classification, userID string) (modify.PlanDiff, bool) {
	p := c.parser
	if p.ai == nil || !p.opts.EnableAIFallback || st.CurrentPlan == nil {
		return modify.PlanDiff{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.MaxProcessingTime)
	defer cancel()
	res := p.ai.Extract(ctx, text, cls, parseContext(st, userID).requestContext(), userID)
	if !res.Success || res.Plan == nil || res.Confidence < p.opts.AIThreshold {
		return modify.PlanDiff{}, false
	}
	diff := modify.ReplacePlan(*res.Plan)
	if len(res.Preferences) > 0 {
		diff.Ops = append(diff.Ops, modify.Op{Kind: modify.KindUpdatePreferences, AddPreferences: res.Preferences})
	}
	return diff, true
}

// State returns a copy of the session state.
func (c *Conversation) State(ctx context.Context, sessionID string) (*session.State, error) {
	return c.sessions.GetState(ctx, sessionID)
}

// Undo restores the plan from before the last applied turn.
func (c *Conversation) Undo(ctx context.Context, sessionID string) (*session.State, error) {
	return c.sessions.Undo(ctx, sessionID)
}

func (c *Conversation) Clear(ctx context.Context, sessionID string) error {
	return c.sessions.Clear(ctx, sessionID)
}

func parseContext(st *session.State, userID string) *ParseContext {
	return &ParseContext{
		CurrentPlan:    st.CurrentPlan,
		LastType:       st.LastType,
		Preferences:    st.Preferences.Sorted(),
		Constraints:    st.Constraints,
		RecentMessages: st.RecentMessages(recentTurns),
		UserID:         userID,
	}
}

func planReply(p types.TripPlan) string {
	var b strings.Builder
	b.WriteString(p.Summary())
	b.WriteString(".")
	for _, w := range p.Warnings {
		b.WriteString(" Note: " + w + ".")
	}
	if len(p.Pending) > 0 {
		b.WriteString(" How many days would you like in " + joinNames(p.Pending) + "?")
	}
	if p.Origin == "" {
		b.WriteString(" Where will you be starting from?")
	}
	return b.String()
}

// joinNames renders "A", "A and B" or "A, B and C".
func joinNames(names []string) string {
	if len(names) < 2 {
		return strings.Join(names, "")
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func clarifyParse(cls types.Classification) string {
	switch cls.Type {
	case types.InputQuestion:
		return "I can help plan a trip. Tell me where you want to go and for how long, for example \"5 days in London\"."
	case types.InputConversational:
		return "That sounds lovely. Which cities do you have in mind, and how many days would you like to spend?"
	case types.InputStructured:
		return "I caught part of that. Could you give the number of days for each destination?"
	default:
		return "Could you tell me which cities you'd like to visit and how many days you have?"
	}
}

func clarifyModification(err error) string {
	var inv *types.InvalidModificationError
	if !errors.As(err, &inv) {
		if errors.Is(err, modify.ErrUnrecognized) {
			return "I'm not sure what to change. You can add or remove a city, change the number of days, or set where you're starting from."
		}
		return "I couldn't apply that change: " + err.Error() + "."
	}
	var b strings.Builder
	switch {
	case inv.Reason == "there is no plan to modify yet":
		return "There's no trip to change yet. Tell me where you'd like to go first, for example \"5 days in Rome\"."
	case inv.Value != "":
		fmt.Fprintf(&b, "I couldn't do that: %s %s.", inv.Value, inv.Reason)
	default:
		fmt.Fprintf(&b, "I couldn't do that: %s.", inv.Reason)
	}
	if len(inv.Current) > 0 {
		fmt.Fprintf(&b, " Your trip currently includes %s.", strings.Join(inv.Current, ", "))
	}
	return b.String()
}

func errString(s string) *string {
	if s == "" {
		s = ErrAllFailed
	}
	return &s
}
