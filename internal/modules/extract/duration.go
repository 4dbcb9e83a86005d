// README: Duration phrase recognition ("5 days", "a week", "weekend", "two months").
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Fixed day counts for calendar phrases.
const (
	DaysPerWeek      = 7
	DaysPerWeekend   = 3
	DaysPerFortnight = 14
	DaysPerMonth     = 30

	// bare numbers ("4 granada") above this are treated as years or prices, not days.
	maxBareDays = 60
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15, "twenty": 20,
	"thirty": 30, "couple": 2, "few": 3,
}

const (
	numPattern  = `(?:-\d+|\b\d+|\b(?i:(?:a\s+)?couple(?:\s+of)?|(?:a\s+)?few|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|twenty|thirty))`
	unitPattern = `(?i:days?|nights?|weekends?|weeks?|wks?|fortnights?|months?)`
	durPattern  = `(?:` + numPattern + `[\s-]*` + unitPattern + `\b|\b(?i:this|next|the|long|a)\s+(?i:weekend)\b|\b(?i:fortnight)\b)`
)

var durationRe = regexp.MustCompile(durPattern)

// Duration is one recognized duration phrase and its position in the source text.
type Duration struct {
	Text  string
	Days  int
	Start int
	End   int
}

// Valid reports whether the phrase yields a usable positive day count.
func (d Duration) Valid() bool { return d.Days > 0 }

// FindDurations returns every duration phrase in text, in order of appearance.
// Zero or negative counts are returned with Days <= 0 so callers can discard them.
func FindDurations(text string) []Duration {
	idx := durationRe.FindAllStringIndex(text, -1)
	out := make([]Duration, 0, len(idx))
	for _, m := range idx {
		phrase := text[m[0]:m[1]]
		days, ok := parseDurationPhrase(phrase)
		if !ok {
			continue
		}
		out = append(out, Duration{Text: phrase, Days: days, Start: m[0], End: m[1]})
	}
	return out
}

// ParseDuration returns the day count of the first valid duration phrase in text.
func ParseDuration(text string) (int, bool) {
	for _, d := range FindDurations(text) {
		if d.Valid() {
			return d.Days, true
		}
	}
	return 0, false
}

// parseDurationPhrase converts a matched phrase into days. A phrase made only of digits is a bare day count.
func parseDurationPhrase(phrase string) (int, bool) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if n, err := strconv.Atoi(p); err == nil {
		return n, true
	}
	p = strings.ReplaceAll(p, "-", " ")
	// restore a leading minus sign stripped above
	if strings.HasPrefix(strings.TrimSpace(phrase), "-") {
		p = "-" + strings.TrimSpace(p)
	}
	fields := strings.Fields(p)
	if len(fields) == 0 {
		return 0, false
	}

	unit := fields[len(fields)-1]
	var perUnit int
	switch {
	case strings.HasPrefix(unit, "weekend"):
		perUnit = DaysPerWeekend
	case strings.HasPrefix(unit, "fortnight"):
		perUnit = DaysPerFortnight
	case strings.HasPrefix(unit, "week"), strings.HasPrefix(unit, "wk"):
		perUnit = DaysPerWeek
	case strings.HasPrefix(unit, "month"):
		perUnit = DaysPerMonth
	case strings.HasPrefix(unit, "day"), strings.HasPrefix(unit, "night"):
		perUnit = 1
	default:
		return 0, false
	}

	qty := 1
	for _, f := range fields[:len(fields)-1] {
		if n, err := strconv.Atoi(f); err == nil {
			qty = n
			break
		}
		if n, ok := numberWords[f]; ok {
			qty = n
			if f != "a" && f != "an" {
				break
			}
		}
	}
	return qty * perUnit, true
}
