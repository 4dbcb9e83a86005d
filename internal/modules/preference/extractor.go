// README: Keyword-based preference tags and hard-constraint extraction (budget, max duration, accessibility, dietary).
package preference

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wayfarer/internal/modules/extract"
	"wayfarer/internal/types"
)

// Result is the output of one extraction pass. Preferences are sorted.
type Result struct {
	Preferences []string           `json:"preferences"`
	Constraints []types.Constraint `json:"constraints"`
}

// Empty reports whether nothing was recognized.
func (r Result) Empty() bool { return len(r.Preferences) == 0 && len(r.Constraints) == 0 }

type tagRule struct {
	tag string
	re  *regexp.Regexp
}

func keywords(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), "-", `[\s-]?`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

var preferenceRules = []tagRule{
	{"romantic", keywords("romantic", "romance", "honeymoon", "anniversary", "couples")},
	{"budget-friendly", keywords("budget-friendly", "on a budget", "budget trip", "budget travel", "cheap", "affordable", "inexpensive", "low-cost", "backpacking")},
	{"luxury", keywords("luxury", "luxurious", "upscale", "five-star", "5-star", "high-end")},
	{"beach", keywords("beach", "beaches", "seaside", "coast", "coastal", "island", "islands")},
	{"cultural", keywords("culture", "cultural", "museum", "museums", "history", "historic", "historical", "art", "architecture")},
	{"adventure", keywords("adventure", "adventurous", "hiking", "trekking", "outdoor", "outdoors", "diving")},
	{"nature", keywords("nature", "mountains", "national park", "national parks", "wildlife", "scenic")},
	{"food", keywords("food", "foodie", "culinary", "restaurants", "cuisine", "wine", "street food")},
	{"nightlife", keywords("nightlife", "bars", "clubs", "clubbing", "party")},
	{"family-friendly", keywords("family-friendly", "family", "kids", "children", "toddler")},
	{"relaxing", keywords("relax", "relaxing", "relaxed", "spa", "slow-paced", "chill", "laid-back")},
	{"shopping", keywords("shopping", "markets", "boutiques")},
}

var accessibilityRules = []tagRule{
	{"wheelchair", keywords("wheelchair", "wheelchair-accessible")},
	{"limited-mobility", keywords("limited mobility", "mobility issues", "mobility")},
	{"step-free", keywords("step-free", "no stairs")},
	{"accessible", keywords("accessible", "accessibility")},
}

var dietaryRules = []tagRule{
	{"vegetarian", keywords("vegetarian")},
	{"vegan", keywords("vegan")},
	{"gluten-free", keywords("gluten-free", "celiac", "coeliac")},
	{"halal", keywords("halal")},
	{"kosher", keywords("kosher")},
	{"nut-free", keywords("nut allergy", "nut-free", "peanut allergy")},
	{"dairy-free", keywords("dairy-free", "lactose intolerant", "lactose")},
	{"pescatarian", keywords("pescatarian")},
}

// maxBudget caps a parsed spending ceiling; larger figures are treated as noise.
const maxBudget = 100_000_000

var (
	ceilingRe = regexp.MustCompile(`(?i)\b(?:no\s+more\s+than|at\s+most|max(?:imum)?(?:\s+of)?|up\s+to|under|less\s+than|within)\s+`)
	budgetRe  = regexp.MustCompile(`(?i)\b(under|below|less\s+than|max(?:imum)?(?:\s+of)?|at\s+most|no\s+more\s+than|up\s+to|within|budget(?:\s+(?:of|is))?:?|around|about|roughly)\s*([$€£])?\s*(\d[\d,]*)(?:\.\d+)?\s*(k\b)?\s*(usd|eur|gbp|dollars?|euros?|pounds?|bucks)?\b`)
	dayUnitRe = regexp.MustCompile(`(?i)^\s*(?:days?|nights?|weeks?|weekends?|months?|hours?|km|miles?|people|persons?|travell?ers?|adults?)\b`)
)

var currencies = map[string]string{
	"$": "USD", "usd": "USD", "dollar": "USD", "dollars": "USD", "bucks": "USD",
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"£": "GBP", "gbp": "GBP", "pound": "GBP", "pounds": "GBP",
}

// Extractor runs keyword matching. It is cheap and has no external dependencies, so it runs on every turn.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger.Named("preference")}
}

// Extract returns preference tags and hard constraints found in text.
func (e *Extractor) Extract(text string) Result {
	res := Result{Preferences: Tags(text)}

	if c, ok := maxDuration(text); ok {
		res.Constraints = append(res.Constraints, c)
	}
	if c, ok := e.budget(text); ok {
		res.Constraints = append(res.Constraints, c)
	}
	for _, r := range accessibilityRules {
		if r.re.MatchString(text) {
			res.Constraints = append(res.Constraints, types.Constraint{Type: types.ConstraintAccessibility, Value: r.tag, Priority: types.PriorityHigh})
		}
	}
	for _, r := range dietaryRules {
		if r.re.MatchString(text) {
			res.Constraints = append(res.Constraints, types.Constraint{Type: types.ConstraintDietary, Value: r.tag, Priority: types.PriorityHigh})
		}
	}
	return res
}

// Tags returns the sorted preference tags mentioned in text.
func Tags(text string) []string {
	var out []string
	for _, r := range preferenceRules {
		if r.re.MatchString(text) {
			out = append(out, r.tag)
		}
	}
	sort.Strings(out)
	return out
}

// Signals counts distinct preference and constraint cues, used by the classifier
// to judge whether natural-language phrasing dominates.
func (e *Extractor) Signals(text string) int {
	res := e.Extract(text)
	return len(res.Preferences) + len(res.Constraints)
}

// maxDuration recognizes a duration ceiling such as "no more than 10 days".
func maxDuration(text string) (types.Constraint, bool) {
	for _, m := range ceilingRe.FindAllStringIndex(text, -1) {
		durs := extract.FindDurations(text[m[1]:])
		if len(durs) == 0 || durs[0].Start != 0 || !durs[0].Valid() {
			continue
		}
		return types.Constraint{Type: types.ConstraintDuration, Amount: durs[0].Days, Priority: types.PriorityHigh}, true
	}
	return types.Constraint{}, false
}

// budget recognizes a spending ceiling from the number adjacent to a budget cue.
func (e *Extractor) budget(text string) (types.Constraint, bool) {
	for _, m := range budgetRe.FindAllStringSubmatchIndex(text, -1) {
		cue := strings.ToLower(text[m[2]:m[3]])
		symbol := group(text, m, 2)
		word := strings.ToLower(group(text, m, 5))
		if symbol == "" && word == "" && !strings.HasPrefix(cue, "budget") {
			continue
		}
		if word == "" && dayUnitRe.MatchString(text[m[7]:]) {
			continue
		}
		amount, err := strconv.Atoi(strings.ReplaceAll(group(text, m, 3), ",", ""))
		if err != nil || amount <= 0 {
			e.logger.Debug("ignoring unusable budget amount", zap.String("text", text[m[0]:m[1]]))
			continue
		}
		if group(text, m, 4) != "" {
			if amount > maxBudget/1000 {
				amount = maxBudget + 1
			} else {
				amount *= 1000
			}
		}
		if amount > maxBudget {
			e.logger.Debug("ignoring implausible budget amount", zap.String("text", text[m[0]:m[1]]))
			continue
		}
		currency := currencies[symbol]
		if word != "" {
			currency = currencies[word]
		}
		return types.Constraint{Type: types.ConstraintBudget, Amount: amount, Currency: currency, Priority: budgetPriority(cue)}, true
	}
	return types.Constraint{}, false
}

func budgetPriority(cue string) types.Priority {
	switch {
	case strings.HasPrefix(cue, "around"), strings.HasPrefix(cue, "about"), strings.HasPrefix(cue, "roughly"):
		return types.PriorityLow
	case strings.HasPrefix(cue, "budget"):
		return types.PriorityMedium
	default:
		return types.PriorityHigh
	}
}

func group(text string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}
