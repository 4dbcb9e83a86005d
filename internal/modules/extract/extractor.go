// README: Deterministic pattern-based trip extractor (destinations, day counts, origin, totals).
package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"wayfarer/internal/types"
)

const (
	cityPattern    = `\p{L}[\p{L}'.\-]*(?:\s+\p{Lu}[\p{L}'.\-]*)*`
	capCityPattern = `\p{Lu}[\p{L}'.\-]*(?:\s+\p{Lu}[\p{L}'.\-]*)*`
	listSepPattern = `(?:\s*,\s*(?:(?i:and|then)\s+)?|\s+(?i:and|then|plus)\s+|\s*[&/]\s*)`
)

var (
	destAnchorRe    = regexp.MustCompile(`\b(?i:in|to|visit|visiting|see|seeing|explore|exploring|around|through|between|across|then|touring|tour)\s+`)
	cityListRe      = regexp.MustCompile(`^(?:` + cityPattern + `(?:` + listSepPattern + cityPattern + `)*)`)
	listSepRe       = regexp.MustCompile(listSepPattern)
	originRe        = regexp.MustCompile(`\b(?i:flying\s+out\s+of|flying\s+from|departing\s+from|departing|leaving\s+from|leaving|coming\s+from|starting\s+from|based\s+in|currently\s+in|living\s+in|from)\s+(` + capCityPattern + `)`)
	capTokenRe      = regexp.MustCompile(`(?:^|[^\p{L}'])(` + capCityPattern + `)`)
	eachRe          = regexp.MustCompile(`(` + durPattern + `)\s+(?i:each|apiece|per\s+city|per\s+destination|in\s+each|at\s+each)\b|\b(?i:each)\s+(?i:for\s+)?(` + durPattern + `)`)
	aggregateLeadRe = regexp.MustCompile(`^\s*(?i:in|to|across|around|through|between|exploring|visiting|touring|split\s+between)\s+`)
	postDurLeadRe   = regexp.MustCompile(`^(?:\s+(?i:for)\s+|\s*[:\-–]\s*|\s+)` + durPattern)
	sentenceEndRe   = regexp.MustCompile(`[.!?]\s*$`)
)

// strong anchors admit a lowercase city that is not in the known list ("5 days in tbilisi").
var strongAnchors = map[string]bool{
	"in": true, "visit": true, "visiting": true, "explore": true, "exploring": true, "touring": true,
}

// Extraction is the partial plan recovered from one piece of text.
type Extraction struct {
	Plan types.TripPlan
	// Cities lists every destination candidate in narrative order, including pending ones.
	Cities []string
	// Pending cities were recognized but no positive day count could be attached.
	Pending []string
	// Dropped records rejected tokens and invalid counts (logged, never surfaced to users).
	Dropped      []string
	HasDuration  bool
	ExplicitDays bool
	AllAnchored  bool
}

// Extractor performs deterministic extraction. It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	matcher  CityMatcher
	logger   *zap.Logger
	patterns *cache.Cache
}

// countPatterns are the per-city day count regexps, compiled once per city name.
type countPatterns struct {
	prefix  *regexp.Regexp
	postfix *regexp.Regexp
}

// NewExtractor builds an extractor. A nil matcher falls back to the lexical matcher.
func NewExtractor(matcher CityMatcher, logger *zap.Logger) *Extractor {
	if matcher == nil {
		matcher = NewLexicalMatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{matcher: matcher, logger: logger.Named("extract"), patterns: cache.New(time.Hour, 10*time.Minute)}
}

// Matcher exposes the city matcher so other components compare names with the same policy.
func (e *Extractor) Matcher() CityMatcher { return e.matcher }

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

type mention struct {
	name     string
	pos      int
	anchored bool
}

type countCandidate struct {
	city     int
	days     int
	num      span
	priority int
}

// Extract never fails: malformed input yields an empty destination list.
func (e *Extractor) Extract(text string) Extraction {
	var x Extraction
	text = strings.TrimSpace(text)
	if text == "" {
		return x
	}

	origin, originSpans := e.findOrigin(text)
	x.Plan.Origin = origin

	durations := FindDurations(text)
	x.HasDuration = len(durations) > 0

	cities := e.findCities(text, originSpans, &x)

	var consumed []span
	isConsumed := func(s span) bool {
		for _, c := range consumed {
			if c.overlaps(s) {
				return true
			}
		}
		return false
	}

	each := 0
	for _, m := range eachRe.FindAllStringSubmatchIndex(text, -1) {
		g := 2
		if m[2] < 0 {
			g = 4
		}
		days, ok := parseDurationPhrase(text[m[g]:m[g+1]])
		consumed = append(consumed, span{m[g], m[g+1]})
		if !ok || days <= 0 {
			x.Dropped = append(x.Dropped, text[m[g]:m[g+1]])
			continue
		}
		if each == 0 {
			each = days
		}
	}

	aggregate := 0
	for _, d := range durations {
		ds := span{d.Start, d.End}
		if isConsumed(ds) {
			continue
		}
		lead := aggregateLeadRe.FindString(text[d.End:])
		if lead == "" {
			continue
		}
		list := cityListRe.FindString(text[d.End+len(lead):])
		if e.countKnownInList(list, cities) < 2 {
			continue
		}
		consumed = append(consumed, ds)
		if !d.Valid() {
			x.Dropped = append(x.Dropped, d.Text)
			continue
		}
		if aggregate == 0 {
			aggregate = d.Days
		}
	}

	days := make([]int, len(cities))
	for _, c := range e.countCandidates(text, cities) {
		if days[c.city] > 0 || isConsumed(c.num) {
			continue
		}
		consumed = append(consumed, c.num)
		if c.days <= 0 {
			x.Dropped = append(x.Dropped, text[c.num.start:c.num.end])
			e.logger.Debug("discarding non-positive day count",
				zap.String("city", cities[c.city].name), zap.Int("days", c.days))
			continue
		}
		days[c.city] = c.days
	}

	stated := aggregate
	for _, d := range durations {
		if isConsumed(span{d.Start, d.End}) {
			continue
		}
		if !d.Valid() {
			x.Dropped = append(x.Dropped, d.Text)
			e.logger.Debug("discarding non-positive duration", zap.String("phrase", d.Text))
			continue
		}
		if stated == 0 {
			stated = d.Days
		}
	}

	var unassigned []int
	sumExplicit := 0
	for i := range cities {
		if days[i] > 0 {
			sumExplicit += days[i]
		} else {
			unassigned = append(unassigned, i)
		}
	}
	x.ExplicitDays = len(unassigned) == 0
	switch {
	case len(unassigned) == 0:
	case each > 0:
		for _, i := range unassigned {
			days[i] = each
		}
		x.ExplicitDays = true
	case stated > 0:
		remaining := stated - sumExplicit
		n := len(unassigned)
		if remaining >= n {
			base := remaining / n
			for _, i := range unassigned {
				days[i] = base
			}
			days[unassigned[n-1]] += remaining % n
		}
	}

	x.AllAnchored = len(cities) > 0
	for i, c := range cities {
		x.Cities = append(x.Cities, c.name)
		if !c.anchored {
			x.AllAnchored = false
		}
		if days[i] <= 0 {
			x.Pending = append(x.Pending, c.name)
			e.logger.Debug("dropping city without day count", zap.String("city", c.name))
			continue
		}
		x.Plan.Destinations = append(x.Plan.Destinations, types.Destination{City: c.name, Days: days[i]})
	}
	if len(x.Pending) > 0 {
		x.ExplicitDays = false
	}
	x.Plan.StatedTotal = stated
	x.Plan.Pending = append([]string(nil), x.Pending...)
	x.Plan.Resolve()
	if len(x.Plan.Destinations) == 0 {
		x.Plan.TotalDays = stated
	}
	return x
}

// Parse runs Extract and scores the result.
func (e *Extractor) Parse(text string) types.ParseResult {
	x := e.Extract(text)
	return e.Result(x)
}

// Result converts an extraction into a scored ParseResult.
func (e *Extractor) Result(x Extraction) types.ParseResult {
	conf := Confidence(x)
	if len(x.Plan.Destinations) == 0 {
		return types.Failed(types.SourceDeterministic, conf, "no destination with a day count found")
	}
	plan := x.Plan.Clone()
	return types.ParseResult{
		Success:    true,
		Confidence: conf,
		Source:     types.SourceDeterministic,
		Plan:       &plan,
	}
}

// Confidence is additive over corroborating signals so it never decreases as signals are added.
func Confidence(x Extraction) float64 {
	if len(x.Plan.Destinations) == 0 {
		if x.HasDuration || len(x.Cities) > 0 || x.Plan.Origin != "" {
			return 0.1
		}
		return 0
	}
	c := 0.4
	if x.ExplicitDays {
		c += 0.2
	}
	if x.Plan.Origin != "" {
		c += 0.1
	}
	if len(x.Pending) == 0 && (x.Plan.StatedTotal == 0 || x.Plan.StatedTotal == x.Plan.DaySum()) {
		c += 0.15
	}
	if x.AllAnchored {
		c += 0.1
	}
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func (e *Extractor) findOrigin(text string) (string, []span) {
	var spans []span
	origin := ""
	for _, m := range originRe.FindAllStringSubmatchIndex(text, -1) {
		name, ok := e.matcher.Normalize(text[m[2]:m[3]])
		if !ok {
			continue
		}
		spans = append(spans, span{m[0], m[1]})
		if origin == "" {
			origin = name
		}
	}
	return origin, spans
}

func (e *Extractor) findCities(text string, originSpans []span, x *Extraction) []mention {
	var out []mention
	inOrigin := func(pos int) bool {
		for _, s := range originSpans {
			if pos >= s.start && pos < s.end {
				return true
			}
		}
		return false
	}
	add := func(name string, pos int, anchored bool) {
		for i := range out {
			if e.matcher.Same(out[i].name, name) {
				out[i].anchored = out[i].anchored || anchored
				if pos < out[i].pos {
					out[i].pos = pos
				}
				return
			}
		}
		out = append(out, mention{name: name, pos: pos, anchored: anchored})
	}

	// explicit: cities following a destination anchor
	for _, a := range destAnchorRe.FindAllStringIndex(text, -1) {
		if inOrigin(a[0]) {
			continue
		}
		anchor := strings.ToLower(strings.TrimSpace(text[a[0]:a[1]]))
		list := cityListRe.FindString(text[a[1]:])
		if list == "" {
			continue
		}
		offset := a[1]
		items := splitList(list)
		for i, item := range items {
			raw := item.text
			lower := startsLower(raw)
			if lower && !e.matcher.Known(raw) && (i > 0 || !strongAnchors[anchor] || strings.HasSuffix(strings.ToLower(raw), "ing")) {
				if !isStopword(raw) {
					x.Dropped = append(x.Dropped, raw)
					e.logger.Debug("dropping unanchored lowercase token", zap.String("token", raw))
				}
				break
			}
			name, ok := e.matcher.Normalize(raw)
			if !ok {
				if !isStopword(raw) {
					x.Dropped = append(x.Dropped, raw)
					e.logger.Debug("dropping city-like token", zap.String("token", raw))
				}
				break
			}
			add(name, offset+item.offset, true)
		}
	}

	// inferred: capitalized tokens outside origin phrases
	for _, m := range capTokenRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if inOrigin(start) {
			continue
		}
		raw := text[start:end]
		if sentenceStart(text, start) && !e.matcher.Known(firstWord(raw)) && !e.matcher.Known(raw) &&
			!postDurLeadRe.MatchString(text[end:]) {
			continue
		}
		name, ok := e.matcher.Normalize(raw)
		if !ok {
			continue
		}
		add(name, start, false)
	}

	// inferred: well-known city names written in lowercase
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		lower = ""
	}
	for _, known := range knownCities {
		for _, pos := range wordIndexes(lower, known) {
			if inOrigin(pos) {
				continue
			}
			if name, ok := e.matcher.Normalize(text[pos : pos+len(known)]); ok {
				add(name, pos, false)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

// countKnownInList counts list items that match an already collected city.
func (e *Extractor) countKnownInList(list string, cities []mention) int {
	n := 0
	for _, item := range splitList(list) {
		for _, c := range cities {
			if e.matcher.Same(c.name, item.text) {
				n++
				break
			}
		}
	}
	return n
}

// countCandidates finds per-city day counts. Prefix forms ("10 days lisbon", "4 granada")
// outrank postfix forms ("Paris for 3 days").
func (e *Extractor) countCandidates(text string, cities []mention) []countCandidate {
	var out []countCandidate
	for i, c := range cities {
		pats := e.countPatterns(c.name)
		for _, m := range pats.prefix.FindAllStringSubmatchIndex(text, -1) {
			if d, ok := countValue(text[m[2]:m[3]]); ok {
				out = append(out, countCandidate{city: i, days: d, num: span{m[2], m[3]}, priority: 0})
			}
		}
		for _, m := range pats.postfix.FindAllStringSubmatchIndex(text, -1) {
			if d, ok := countValue(text[m[2]:m[3]]); ok {
				out = append(out, countCandidate{city: i, days: d, num: span{m[2], m[3]}, priority: 1})
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].priority != out[b].priority {
			return out[a].priority < out[b].priority
		}
		return out[a].num.start < out[b].num.start
	})
	return out
}

func (e *Extractor) countPatterns(city string) countPatterns {
	key := strings.ToLower(city)
	if v, ok := e.patterns.Get(key); ok {
		e.patterns.SetDefault(key, v)
		return v.(countPatterns)
	}
	name := cityRegexp(city)
	p := countPatterns{
		prefix:  regexp.MustCompile(`(` + durPattern + `|\b\d+)\s+(?:(?i:in|at|for|exploring|around|of)\s+)?(?i:` + name + `)\b`),
		postfix: regexp.MustCompile(`(?i:` + name + `)(?:\s+(?i:for)\s+|\s*[:\-–]\s*|\s+)(` + durPattern + `|\b\d+\b)`),
	}
	e.patterns.SetDefault(key, p)
	return p
}

// countValue parses a duration phrase or a bare number of days.
func countValue(s string) (int, bool) {
	d, ok := parseDurationPhrase(s)
	if !ok {
		return 0, false
	}
	if isDigits(s) && d > maxBareDays {
		return 0, false
	}
	return d, true
}

type listItem struct {
	text   string
	offset int
}

func splitList(list string) []listItem {
	var out []listItem
	prev := 0
	for _, sep := range listSepRe.FindAllStringIndex(list, -1) {
		if sep[0] > prev {
			out = append(out, listItem{text: list[prev:sep[0]], offset: prev})
		}
		prev = sep[1]
	}
	if prev < len(list) {
		out = append(out, listItem{text: list[prev:], offset: prev})
	}
	return out
}

func cityRegexp(name string) string {
	parts := strings.Fields(name)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return `\b` + strings.Join(parts, `\s+`)
}

func wordIndexes(haystack, needle string) []int {
	var out []int
	from := 0
	for {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return out
		}
		pos := from + i
		end := pos + len(needle)
		if (pos == 0 || !isWordByte(haystack[pos-1])) && (end == len(haystack) || !isWordByte(haystack[end])) {
			out = append(out, pos)
		}
		from = pos + 1
	}
}

func isWordByte(b byte) bool {
	return b == '\'' || b == '-' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}

func sentenceStart(text string, pos int) bool {
	before := strings.TrimRight(text[:pos], " \t\n\"'(")
	return before == "" || sentenceEndRe.MatchString(before)
}

func startsLower(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r)
	}
	return false
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return s
}

func isDigits(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
