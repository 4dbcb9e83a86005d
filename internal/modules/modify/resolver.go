// README: Modification resolver: turns follow-up text into a PlanDiff against the current plan.
package modify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wayfarer/internal/metrics"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/preference"
	"wayfarer/internal/types"
)

// Options bounds the scale of a single modification.
type Options struct {
	MaxDestinations int
	MaxOps          int
}

func DefaultOptions() Options {
	return Options{MaxDestinations: 12, MaxOps: 6}
}

// Context carries what relative references resolve against.
type Context struct {
	// LastCity is the destination most recently mentioned in the conversation ("there").
	LastCity    string
	Preferences types.PreferenceSet
}

type verbClass int

const (
	verbNone verbClass = iota
	verbAdd
	verbRemove
	verbExtend
	verbShorten
	verbSet
	verbStay
)

var verbClasses = map[string]verbClass{
	"add": verbAdd, "include": verbAdd, "throw in": verbAdd, "tack on": verbAdd, "squeeze in": verbAdd,
	"give": verbAdd, "also visit": verbAdd, "visit": verbAdd, "go to": verbAdd, "see": verbAdd,
	"remove": verbRemove, "drop": verbRemove, "delete": verbRemove, "skip": verbRemove, "cut": verbRemove,
	"take out": verbRemove, "take off": verbRemove, "get rid of": verbRemove, "lose": verbRemove,
	"subtract": verbRemove, "scrap": verbRemove, "ditch": verbRemove,
	"extend": verbExtend, "lengthen": verbExtend, "stretch": verbExtend, "prolong": verbExtend,
	"shorten": verbShorten, "reduce": verbShorten, "trim": verbShorten,
	"make": verbSet, "change": verbSet, "set": verbSet, "switch": verbSet, "swap": verbSet,
	"replace": verbSet, "update": verbSet,
	"stay": verbStay, "spend": verbStay,
}

var (
	verbRe         = regexp.MustCompile(`(?i)^(add|include|throw\s+in|tack\s+on|squeeze\s+in|give|also\s+visit|visit|go\s+to|see|remove|drop|delete|skip|cut|take\s+out|take\s+off|get\s+rid\s+of|lose|subtract|scrap|ditch|extend|lengthen|stretch|prolong|shorten|reduce|trim|make|change|set|switch|swap|replace|update|stay|spend)\b\s*`)
	leadFillerRe   = regexp.MustCompile(`(?i)^(?:\s*(?:oh|ok|okay|actually|please|hmm|also|and|so|but|wait|then|hey|well|now)\b[\s,]*|\s*(?:can|could|would|will)\s+(?:you|we)\s+|\s*(?:i|we)(?:'d|\s+would)\s+(?:like|love|rather)\s+(?:to\s+)?|\s*(?:i|we)\s+(?:want|need)\s+to\s+|\s*let'?s\s+|\s*let\s+us\s+)+`)
	trailFillerRe  = regexp.MustCompile(`(?i)(?:[\s,]*(?:\binstead\b|\bplease\b|\bthanks\b|\bthank\s+you\b|[.!?]))+\s*$`)
	intensifierRe  = regexp.MustCompile(`(?i)\b(?:more|extra|additional|another)\s+`)
	removalCueRe   = regexp.MustCompile(`(?i)^(?:no|less|fewer|without|skip|drop|remove|not|don'?t|stop|cut)\b`)
	clauseSepRe    = regexp.MustCompile(`(?i)\s*;\s*|\s*,\s*(?:and\s+|then\s+)?|\s+(?:and\s+then|then|also|plus|and)\s+|[.!?]+\s+`)
	clauseCueRe    = regexp.MustCompile(`(?i)^(?:no|less|fewer|without|only|just|from|flying|departing|leaving)\b`)
	originChangeRe = regexp.MustCompile(`(?i)\b(?:origin|departure(?:\s+city)?|starting\s+(?:point|city)|home\s+(?:city|airport))\b.*?\b(?:to|is|as|from)\s+(.+)$`)
	tripWordRe     = regexp.MustCompile(`(?i)\b(?:trip|vacation|holiday|itinerary|journey|everything|overall|in\s+total)\b`)
	shrinkRe       = regexp.MustCompile(`(?i)\b(?:shorten|reduce|trim|cut|remove|subtract|take\s+off|lose|fewer|less)\b`)
	bySuffixRe     = regexp.MustCompile(`(?i)\bby\s*$`)
	targetTailRe   = regexp.MustCompile(`(?i)\s*(?:\bto\b|\bfor\b|\bby\b|\bat\b|\bbe\b|=|:)\s*$`)
	refPrepRe      = regexp.MustCompile(`(?i)^(?:(?:days?|nights?|to|in|at|on|from|off|for|of)\s+)+`)
	swapRe         = regexp.MustCompile(`(?i)^(.+?)\s+(?:with|for|to|into|by)\s+(.+)$`)
	insteadRe      = regexp.MustCompile(`(?i)^(.+?)\s+instead\s+of\s+(.+)$`)
	nameSepRe      = regexp.MustCompile(`(?i)\s*,\s*(?:and\s+)?|\s+and\s+|\s*&\s*`)
	ordinalRe      = regexp.MustCompile(`(?i)^(?:the\s+)?(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|last|\d{1,2}(?:st|nd|rd|th))(?:\s+(?:one|stop|city|destination|place|leg))?$`)
)

// Resolver interprets modification text. It is stateless; all context arrives per call.
type Resolver struct {
	extractor *extract.Extractor
	matcher   extract.CityMatcher
	opts      Options
	logger    *zap.Logger
}

func NewResolver(extractor *extract.Extractor, opts Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.NewExtractor(nil, logger)
	}
	def := DefaultOptions()
	if opts.MaxDestinations <= 0 {
		opts.MaxDestinations = def.MaxDestinations
	}
	if opts.MaxOps <= 0 {
		opts.MaxOps = def.MaxOps
	}
	return &Resolver{extractor: extractor, matcher: extractor.Matcher(), opts: opts, logger: logger.Named("modify")}
}

// Resolve builds a diff for text against plan. The diff is validated by a dry run before it is
// returned, so a nil error means Apply will succeed on the same plan.
func (r *Resolver) Resolve(text string, plan *types.TripPlan, rctx *Context) (PlanDiff, error) {
	diff, err := r.resolve(text, plan, rctx)
	kind := "none"
	if len(diff.Ops) > 0 {
		kind = string(diff.Ops[0].Kind)
	}
	metrics.Modifications.WithLabelValues(kind, metrics.Outcome(err == nil)).Inc()
	if err != nil {
		r.logger.Debug("modification rejected", zap.String("text", text), zap.Error(err))
	}
	return diff, err
}

func (r *Resolver) resolve(text string, plan *types.TripPlan, rctx *Context) (PlanDiff, error) {
	if plan == nil || len(plan.Destinations) == 0 {
		return PlanDiff{}, &types.InvalidModificationError{Reason: "there is no plan to modify yet"}
	}
	if rctx == nil {
		rctx = &Context{}
	}

	clauses := splitClauses(text)
	if len(clauses) > r.opts.MaxOps {
		return PlanDiff{}, moreSpecific(fmt.Sprintf("that is %d changes at once", len(clauses)))
	}

	working := plan.Clone()
	scratch := rctx.Preferences.Clone()
	lastCity := rctx.LastCity
	var diff PlanDiff
	for _, clause := range clauses {
		ops, err := r.parseClause(clause, working, lastCity)
		if err != nil {
			return PlanDiff{}, err
		}
		for _, op := range ops {
			if err := applyOp(&working, scratch, op); err != nil {
				return PlanDiff{}, err
			}
			if op.NewCity != "" {
				lastCity = op.NewCity
			} else if op.City != "" && op.Kind != KindRemoveDestination {
				lastCity = op.City
			}
			diff.Ops = append(diff.Ops, op)
		}
	}

	switch {
	case diff.Empty():
		return PlanDiff{}, ErrUnrecognized
	case len(diff.Ops) > r.opts.MaxOps:
		return PlanDiff{}, moreSpecific(fmt.Sprintf("that is %d changes at once", len(diff.Ops)))
	case len(working.Destinations) > r.opts.MaxDestinations:
		return PlanDiff{}, moreSpecific(fmt.Sprintf("that would make %d destinations, more than %d I can plan at once", len(working.Destinations), r.opts.MaxDestinations))
	}
	if _, _, err := diff.Apply(*plan, rctx.Preferences); err != nil {
		return PlanDiff{}, err
	}
	return diff, nil
}

// LastCity returns the destination a diff touched last, for resolving "there" on the next turn.
func LastCity(d PlanDiff) string {
	for i := len(d.Ops) - 1; i >= 0; i-- {
		op := d.Ops[i]
		if op.NewCity != "" {
			return op.NewCity
		}
		if op.City != "" && op.Kind != KindRemoveDestination {
			return op.City
		}
	}
	return ""
}

func (r *Resolver) parseClause(raw string, plan types.TripPlan, lastCity string) ([]Op, error) {
	c := strings.TrimSpace(leadFillerRe.ReplaceAllString(strings.TrimSpace(raw), ""))
	c = strings.TrimSpace(trailFillerRe.ReplaceAllString(c, ""))
	removal := removalCueRe.MatchString(c)
	relative := intensifierRe.MatchString(c)
	c = strings.TrimSpace(intensifierRe.ReplaceAllString(c, ""))
	if c == "" {
		return nil, nil
	}

	if op, ok := r.originChange(c); ok {
		return []Op{op}, nil
	}

	verb, rest := verbNone, c
	if m := verbRe.FindStringSubmatch(c); m != nil {
		verb = verbClasses[strings.Join(strings.Fields(strings.ToLower(m[1])), " ")]
		rest = strings.TrimSpace(c[len(m[0]):])
	}

	if tripWordRe.MatchString(c) && !mentionsAny(c, plan) {
		if d, ok := firstDuration(c); ok {
			return r.wholeTrip(c, d, verb)
		}
	}

	switch verb {
	case verbRemove:
		return r.removeClause(rest, plan, lastCity)
	case verbAdd:
		return r.addClause(rest, plan, lastCity)
	case verbExtend, verbShorten:
		return r.resizeClause(rest, plan, lastCity, verb == verbShorten)
	case verbSet:
		return r.setClause(rest, plan, lastCity, removal)
	case verbStay:
		return r.stayClause(rest, plan, lastCity, relative)
	}
	return r.bareClause(c, plan, lastCity, removal, relative)
}

func (r *Resolver) originChange(c string) (Op, bool) {
	if m := originChangeRe.FindStringSubmatch(c); m != nil {
		if name, ok := r.matcher.Normalize(m[1]); ok {
			return Op{Kind: KindChangeOrigin, Origin: name}, true
		}
	}
	x := r.extractor.Extract(c)
	if x.Plan.Origin != "" && len(x.Cities) == 0 && !x.HasDuration {
		return Op{Kind: KindChangeOrigin, Origin: x.Plan.Origin}, true
	}
	return Op{}, false
}

func (r *Resolver) wholeTrip(c string, d extract.Duration, verb verbClass) ([]Op, error) {
	by := bySuffixRe.MatchString(c[:d.Start])
	sign := 1
	if verb == verbShorten || verb == verbRemove || shrinkRe.MatchString(c[:d.Start]) {
		sign = -1
	}
	if by || verb == verbAdd || verb == verbRemove {
		return []Op{{Kind: KindChangeDuration, Delta: sign * d.Days}}, nil
	}
	return []Op{{Kind: KindChangeDuration, TotalDays: d.Days}}, nil
}

func (r *Resolver) removeClause(rest string, plan types.TripPlan, lastCity string) ([]Op, error) {
	if d, after, ok := leadingDuration(rest); ok {
		city, in, err := r.resolveRef(after, plan, lastCity)
		if err != nil {
			return nil, err
		}
		if !in {
			return nil, notInPlan(city, plan)
		}
		return []Op{{Kind: KindChangeDuration, City: city, Delta: -d.Days}}, nil
	}
	if tags := preference.Tags(rest); len(tags) > 0 && !mentionsAny(rest, plan) {
		return []Op{{Kind: KindUpdatePreferences, RemovePreferences: tags}}, nil
	}
	var ops []Op
	for _, item := range splitNames(rest) {
		city, _, err := r.resolveRef(item, plan, lastCity)
		if err != nil {
			return nil, err
		}
		ops = append(ops, Op{Kind: KindRemoveDestination, City: city})
	}
	return ops, nil
}

func (r *Resolver) addClause(rest string, plan types.TripPlan, lastCity string) ([]Op, error) {
	if d, after, ok := leadingDuration(rest); ok {
		city, in, err := r.resolveRef(after, plan, lastCity)
		if err != nil {
			return nil, err
		}
		if in {
			return []Op{{Kind: KindChangeDuration, City: city, Delta: d.Days}}, nil
		}
		return []Op{{Kind: KindAddDestination, City: city, Days: d.Days}}, nil
	}

	x := r.extractor.Extract(rest)
	var ops []Op
	for _, dest := range x.Plan.Destinations {
		if i := indexOf(plan, dest.City); i >= 0 {
			ops = append(ops, Op{Kind: KindChangeDuration, City: plan.Destinations[i].City, Delta: dest.Days})
			continue
		}
		ops = append(ops, Op{Kind: KindAddDestination, City: dest.City, Days: dest.Days})
	}
	if len(x.Pending) > 0 {
		return nil, &types.InvalidModificationError{Value: x.Pending[0], Reason: "needs a number of days"}
	}
	if len(ops) > 0 {
		return ops, nil
	}
	if tags := preference.Tags(rest); len(tags) > 0 {
		return []Op{{Kind: KindUpdatePreferences, AddPreferences: tags}}, nil
	}
	if name, ok := r.matcher.Normalize(rest); ok {
		if indexOf(plan, name) >= 0 {
			return nil, &types.InvalidModificationError{Value: name, Current: plan.Cities(), Reason: "is already in the plan"}
		}
		return nil, &types.InvalidModificationError{Value: name, Reason: "needs a number of days"}
	}
	return nil, nil
}

func (r *Resolver) resizeClause(rest string, plan types.TripPlan, lastCity string, shrink bool) ([]Op, error) {
	d, ok := firstDuration(rest)
	if !ok {
		return nil, moreSpecific("by how many days")
	}
	before := rest[:d.Start]
	by := bySuffixRe.MatchString(before)
	target := strings.TrimSpace(targetTailRe.ReplaceAllString(before, ""))
	sign := 1
	if shrink {
		sign = -1
	}
	if target == "" {
		if by {
			return []Op{{Kind: KindChangeDuration, Delta: sign * d.Days}}, nil
		}
		return []Op{{Kind: KindChangeDuration, TotalDays: d.Days}}, nil
	}
	city, in, err := r.resolveRef(target, plan, lastCity)
	if err != nil {
		return nil, err
	}
	if !in {
		return nil, notInPlan(city, plan)
	}
	if by {
		return []Op{{Kind: KindChangeDuration, City: city, Delta: sign * d.Days}}, nil
	}
	return []Op{{Kind: KindChangeDuration, City: city, Days: d.Days}}, nil
}

func (r *Resolver) setClause(rest string, plan types.TripPlan, lastCity string, removal bool) ([]Op, error) {
	if m := swapRe.FindStringSubmatch(rest); m != nil {
		if _, _, isDur := leadingDuration(m[2]); !isDur {
			if old, in, err := r.resolveRef(m[1], plan, lastCity); err == nil && in {
				if name, ok := r.matcher.Normalize(m[2]); ok && !isPronoun(m[2]) {
					return []Op{{Kind: KindSwapDestination, City: old, NewCity: name}}, nil
				}
			}
		}
	}

	if d, ok := firstDuration(rest); ok {
		before := rest[:d.Start]
		by := bySuffixRe.MatchString(before)
		target := strings.TrimSpace(targetTailRe.ReplaceAllString(before, ""))
		if after := strings.TrimSpace(refPrepRe.ReplaceAllString(strings.TrimSpace(rest[d.End:]), "")); after != "" && mentionsAny(after, plan) {
			target = after
		}
		city, in, err := r.resolveRef(target, plan, lastCity)
		if err != nil {
			return nil, err
		}
		if !in {
			return nil, notInPlan(city, plan)
		}
		if by {
			sign := 1
			if shrinkRe.MatchString(rest) {
				sign = -1
			}
			return []Op{{Kind: KindChangeDuration, City: city, Delta: sign * d.Days}}, nil
		}
		return []Op{{Kind: KindChangeDuration, City: city, Days: d.Days}}, nil
	}

	if tags := preference.Tags(rest); len(tags) > 0 {
		if removal {
			return []Op{{Kind: KindUpdatePreferences, RemovePreferences: tags}}, nil
		}
		return []Op{{Kind: KindUpdatePreferences, AddPreferences: tags}}, nil
	}
	return nil, nil
}

func (r *Resolver) stayClause(rest string, plan types.TripPlan, lastCity string, relative bool) ([]Op, error) {
	x := r.extractor.Extract(rest)
	if len(x.Plan.Destinations) > 0 {
		var ops []Op
		for _, dest := range x.Plan.Destinations {
			if i := indexOf(plan, dest.City); i >= 0 {
				ops = append(ops, Op{Kind: KindChangeDuration, City: plan.Destinations[i].City, Days: dest.Days})
				continue
			}
			ops = append(ops, Op{Kind: KindAddDestination, City: dest.City, Days: dest.Days})
		}
		return ops, nil
	}
	d, ok := firstDuration(rest)
	if !ok {
		return nil, nil
	}
	city, in, err := r.resolveRef(strings.TrimSpace(rest[d.End:]), plan, lastCity)
	if err != nil {
		return nil, err
	}
	if !in {
		return nil, notInPlan(city, plan)
	}
	if relative {
		return []Op{{Kind: KindChangeDuration, City: city, Delta: d.Days}}, nil
	}
	return []Op{{Kind: KindChangeDuration, City: city, Days: d.Days}}, nil
}

// bareClause handles clauses without a leading verb: "Rome instead of Paris", "only 2 days in Rome",
// "no nightlife", "2 days there".
func (r *Resolver) bareClause(c string, plan types.TripPlan, lastCity string, removal, relative bool) ([]Op, error) {
	if m := insteadRe.FindStringSubmatch(c); m != nil {
		if old, in, err := r.resolveRef(m[2], plan, lastCity); err == nil && in {
			x := r.extractor.Extract(m[1])
			if len(x.Plan.Destinations) == 1 {
				dest := x.Plan.Destinations[0]
				if extract.SameCity(dest.City, old) {
					return []Op{{Kind: KindChangeDuration, City: old, Days: dest.Days}}, nil
				}
				return []Op{
					{Kind: KindSwapDestination, City: old, NewCity: dest.City},
					{Kind: KindChangeDuration, City: dest.City, Days: dest.Days},
				}, nil
			}
			if name, ok := r.matcher.Normalize(m[1]); ok && !isPronoun(m[1]) {
				return []Op{{Kind: KindSwapDestination, City: old, NewCity: name}}, nil
			}
		}
	}

	if removal {
		if tags := preference.Tags(c); len(tags) > 0 && !mentionsAny(c, plan) {
			return []Op{{Kind: KindUpdatePreferences, RemovePreferences: tags}}, nil
		}
		var ops []Op
		for _, d := range plan.Destinations {
			if mentions(c, d.City) {
				ops = append(ops, Op{Kind: KindRemoveDestination, City: d.City})
			}
		}
		if len(ops) > 0 {
			return ops, nil
		}
	}

	x := r.extractor.Extract(c)
	if len(x.Plan.Destinations) > 0 {
		var ops []Op
		for _, dest := range x.Plan.Destinations {
			i := indexOf(plan, dest.City)
			switch {
			case i >= 0 && relative:
				ops = append(ops, Op{Kind: KindChangeDuration, City: plan.Destinations[i].City, Delta: dest.Days})
			case i >= 0:
				ops = append(ops, Op{Kind: KindChangeDuration, City: plan.Destinations[i].City, Days: dest.Days})
			default:
				ops = append(ops, Op{Kind: KindAddDestination, City: dest.City, Days: dest.Days})
			}
		}
		return ops, nil
	}

	if d, after, ok := leadingDuration(c); ok && len(x.Cities) == 0 {
		city, in, err := r.resolveRef(after, plan, lastCity)
		if err != nil {
			return nil, err
		}
		if !in {
			return nil, notInPlan(city, plan)
		}
		if relative {
			return []Op{{Kind: KindChangeDuration, City: city, Delta: d.Days}}, nil
		}
		return []Op{{Kind: KindChangeDuration, City: city, Days: d.Days}}, nil
	}

	if tags := preference.Tags(c); len(tags) > 0 {
		return []Op{{Kind: KindUpdatePreferences, AddPreferences: tags}}, nil
	}
	return nil, nil
}

// resolveRef maps a target phrase to a destination name. inPlan reports whether it names a current destination.
func (r *Resolver) resolveRef(target string, plan types.TripPlan, lastCity string) (string, bool, error) {
	t := strings.TrimSpace(refPrepRe.ReplaceAllString(strings.TrimSpace(target), ""))
	t = strings.Trim(t, " .,!?")
	switch strings.ToLower(t) {
	case "", "there", "it", "that", "here", "that city", "that place", "that one", "this city", "this place":
		if i := indexOf(plan, lastCity); i >= 0 {
			return plan.Destinations[i].City, true, nil
		}
		if len(plan.Destinations) == 1 {
			return plan.Destinations[0].City, true, nil
		}
		return "", false, moreSpecific("which destination do you mean")
	}
	if m := ordinalRe.FindStringSubmatch(t); m != nil {
		i := ordinalIndex(m[1], len(plan.Destinations))
		if i < 0 || i >= len(plan.Destinations) {
			return "", false, &types.InvalidModificationError{Value: t, Current: plan.Cities(), Reason: fmt.Sprintf("is past the end of a %d-stop plan", len(plan.Destinations))}
		}
		return plan.Destinations[i].City, true, nil
	}
	name, ok := r.matcher.Normalize(t)
	if !ok {
		return "", false, &types.InvalidModificationError{Value: t, Current: plan.Cities(), Reason: "is not a destination I recognize"}
	}
	if i := indexOf(plan, name); i >= 0 {
		return plan.Destinations[i].City, true, nil
	}
	// a new city must be capitalized or known; lowercase phrases are not place names
	if t == strings.ToLower(t) && !r.matcher.Known(name) {
		return "", false, ErrUnrecognized
	}
	return name, false, nil
}

var ordinalWords = map[string]int{
	"first": 0, "second": 1, "third": 2, "fourth": 3, "fifth": 4,
	"sixth": 5, "seventh": 6, "eighth": 7, "ninth": 8, "tenth": 9,
}

// ordinalIndex maps an ordinal word or numeral ("2nd") to a zero-based destination index.
func ordinalIndex(word string, n int) int {
	word = strings.ToLower(word)
	if word == "last" {
		return n - 1
	}
	if i, ok := ordinalWords[word]; ok {
		return i
	}
	v, err := strconv.Atoi(strings.TrimRight(word, "stndrh"))
	if err != nil {
		return -1
	}
	return v - 1
}

func splitClauses(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var clauses []string
	prev := 0
	for _, sep := range clauseSepRe.FindAllStringIndex(text, -1) {
		piece := strings.TrimSpace(text[prev:sep[0]])
		if piece != "" {
			if len(clauses) > 0 && !startsClause(piece) {
				clauses[len(clauses)-1] += text[sepStart(text, prev):sep[0]]
			} else {
				clauses = append(clauses, piece)
			}
		}
		prev = sep[1]
	}
	if piece := strings.TrimSpace(text[prev:]); piece != "" {
		if len(clauses) > 0 && !startsClause(piece) {
			clauses[len(clauses)-1] += text[sepStart(text, prev):]
		} else {
			clauses = append(clauses, piece)
		}
	}
	return clauses
}

// sepStart walks back from a piece start to include the separator that preceded it.
func sepStart(text string, pieceStart int) int {
	for _, sep := range clauseSepRe.FindAllStringIndex(text, -1) {
		if sep[1] == pieceStart {
			return sep[0]
		}
	}
	return pieceStart
}

func startsClause(piece string) bool {
	p := strings.TrimSpace(leadFillerRe.ReplaceAllString(piece, ""))
	if verbRe.MatchString(p) || clauseCueRe.MatchString(p) || insteadRe.MatchString(p) {
		return true
	}
	_, _, ok := leadingDuration(intensifierRe.ReplaceAllString(p, ""))
	return ok
}

func splitNames(s string) []string {
	var out []string
	for _, part := range nameSepRe.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func leadingDuration(s string) (extract.Duration, string, bool) {
	t := strings.TrimSpace(s)
	durs := extract.FindDurations(t)
	if len(durs) == 0 || durs[0].Start != 0 || !durs[0].Valid() {
		return extract.Duration{}, s, false
	}
	return durs[0], t[durs[0].End:], true
}

func firstDuration(s string) (extract.Duration, bool) {
	for _, d := range extract.FindDurations(s) {
		if d.Valid() {
			return d, true
		}
	}
	return extract.Duration{}, false
}

func mentions(text, city string) bool {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(city) + `\b`)
	return err == nil && re.MatchString(text)
}

func mentionsAny(text string, plan types.TripPlan) bool {
	for _, d := range plan.Destinations {
		if mentions(text, d.City) {
			return true
		}
	}
	return false
}

func isPronoun(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "it", "there", "that", "this", "here", "them":
		return true
	}
	return false
}

func notInPlan(city string, plan types.TripPlan) error {
	return &types.InvalidModificationError{Value: city, Current: plan.Cities(), Reason: "is not in the current plan"}
}

func moreSpecific(reason string) error {
	return &types.InvalidModificationError{Reason: reason + "; please be more specific"}
}
