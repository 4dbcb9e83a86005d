// README: City-name matching policy (string-level, case-insensitive, substring-tolerant).
package extract

import (
	"strings"
	"unicode"
)

// CityMatcher isolates city validation and comparison so a stricter gazetteer-backed
// implementation can replace the lexical one without touching extraction or routing.
type CityMatcher interface {
	// Normalize validates a city-like token and returns its display form.
	Normalize(raw string) (string, bool)
	// Known reports whether a token names a city even without an anchoring preposition.
	Known(token string) bool
	// Same reports whether two names refer to the same place.
	Same(a, b string) bool
}

// LexicalMatcher accepts any city-like token that is not a stopword.
type LexicalMatcher struct {
	known map[string]bool
}

// NewLexicalMatcher returns a matcher seeded with a small list of well-known cities,
// plus any extra names supplied by configuration.
func NewLexicalMatcher(extraKnown ...string) *LexicalMatcher {
	known := make(map[string]bool, len(knownCities)+len(extraKnown))
	for _, c := range knownCities {
		known[c] = true
	}
	for _, c := range extraKnown {
		known[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return &LexicalMatcher{known: known}
}

func (m *LexicalMatcher) Normalize(raw string) (string, bool) {
	words := strings.Fields(strings.Trim(raw, " \t\n.,!?;:'\"()"))
	for len(words) > 0 && isStopword(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && isStopword(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return "", false
	}
	for i, w := range words {
		w = strings.Trim(w, ".,!?;:'\"()")
		if isStopword(w) || !isCityWord(w) {
			return "", false
		}
		words[i] = displayWord(w)
	}
	name := strings.Join(words, " ")
	if len([]rune(name)) < 2 {
		return "", false
	}
	if len([]rune(name)) == 2 && name != strings.ToUpper(name) {
		return "", false
	}
	return name, true
}

func (m *LexicalMatcher) Known(token string) bool {
	return m.known[strings.ToLower(strings.TrimSpace(token))]
}

// Same compares case-insensitively and tolerates one name containing the other
// ("Korea" matches "South Korea").
func (m *LexicalMatcher) Same(a, b string) bool {
	return SameCity(a, b)
}

// SameCity is the tolerant comparison shared by matchers.
func SameCity(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return containsWord(a, b) || containsWord(b, a)
}

func containsWord(haystack, needle string) bool {
	i := strings.Index(haystack, needle)
	for i >= 0 {
		before := i == 0 || haystack[i-1] == ' '
		end := i + len(needle)
		after := end == len(haystack) || haystack[end] == ' '
		if before && after {
			return true
		}
		next := strings.Index(haystack[i+1:], needle)
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

func isCityWord(w string) bool {
	letters := 0
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == '\'' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return letters > 0
}

// displayWord title-cases a word unless it is a short all-caps code like NYC or LA.
func displayWord(w string) string {
	if w == strings.ToUpper(w) && len([]rune(w)) <= 3 {
		return w
	}
	r := []rune(strings.ToLower(w))
	r[0] = unicode.ToUpper(r[0])
	for i := 1; i < len(r); i++ {
		if r[i-1] == '-' || r[i-1] == '\'' {
			r[i] = unicode.ToUpper(r[i])
		}
	}
	return string(r)
}

func isStopword(w string) bool {
	return stopwords[strings.ToLower(strings.Trim(w, ".,!?;:'\"()"))]
}

var knownCities = []string{
	"amsterdam", "athens", "auckland", "bangkok", "barcelona", "beijing", "berlin",
	"boston", "budapest", "buenos aires", "cairo", "cape town", "chicago", "copenhagen",
	"delhi", "dubai", "dublin", "edinburgh", "florence", "granada", "hanoi", "havana",
	"hong kong", "istanbul", "kyoto", "lisbon", "london", "los angeles", "madrid",
	"marrakech", "melbourne", "mexico city", "miami", "milan", "montreal", "mumbai",
	"munich", "naples", "new york", "nyc", "osaka", "oslo", "paris", "porto",
	"prague", "reykjavik", "rio", "rome", "san francisco", "santorini", "seattle",
	"seoul", "seville", "shanghai", "singapore", "stockholm", "sydney", "taipei",
	"tokyo", "toronto", "vancouver", "venice", "vienna", "zurich",
}

var stopwords = func() map[string]bool {
	words := []string{
		// articles, pronouns, connectives
		"a", "an", "the", "i", "i'm", "i'd", "we", "we're", "we'd", "my", "our", "me", "us",
		"you", "your", "it", "its", "it's", "this", "that", "there", "here", "these", "those",
		"and", "or", "but", "then", "also", "plus", "with", "without", "for", "from", "to",
		"in", "at", "on", "of", "by", "about", "around", "through", "between", "into", "via",
		"each", "every", "all", "some", "any", "more", "less", "fewer", "extra", "other",
		"just", "only", "maybe", "perhaps", "please", "thanks", "thank", "hi", "hello", "hey",
		"yes", "no", "not", "ok", "okay", "so", "too", "very", "really", "actually", "instead",
		"what", "where", "when", "which", "who", "why", "how", "is", "are", "was", "be",
		"can", "could", "should", "would", "will", "do", "does", "did", "have", "has", "had",
		// travel verbs and nouns
		"plan", "planning", "trip", "trips", "travel", "traveling", "travelling", "visit",
		"visiting", "see", "seeing", "go", "going", "fly", "flying", "head", "heading",
		"stay", "staying", "spend", "spending", "explore", "exploring", "tour", "touring",
		"want", "need", "like", "love", "make", "add", "remove", "drop", "skip", "cut",
		"change", "extend", "shorten", "swap", "replace", "delete", "keep", "book",
		"itinerary", "vacation", "holiday", "holidays", "honeymoon", "getaway", "journey",
		"total", "overall", "whole", "entire", "city", "cities", "country", "place", "places",
		"day", "days", "night", "nights", "week", "weeks", "weekend", "weekends", "month",
		"months", "fortnight", "morning", "evening", "afternoon", "tonight", "today",
		"tomorrow", "summer", "winter", "spring", "autumn", "fall", "season",
		"january", "february", "march", "april", "may", "june", "july", "august",
		"september", "october", "november", "december",
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
		"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
		"couple", "few", "several", "first", "last", "next", "long", "short",
		"budget", "cheap", "luxury", "style", "advance", "mind", "person", "people",
		"family", "friends", "kids", "home", "work", "somewhere", "anywhere", "abroad",
		"flight", "flights", "hotel", "hotels", "beach", "beaches", "food", "culture",
		"romantic", "relaxing", "adventure", "nature", "museums", "shopping", "nightlife",
		"origin", "destination", "destinations", "stop", "stops", "leg", "legs",
		"currently", "based", "living", "departing", "leaving", "coming", "starting",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
