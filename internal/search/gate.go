package search

import (
	"regexp"
	"strings"
)

var (
	contractions = strings.NewReplacer(
		"what's", "what is",
		"who's", "who is",
		"where's", "where is",
		"how's", "how is",
		"it's", "it is",
		"what're", "what are",
	)

	nonWord = regexp.MustCompile(`[^a-z0-9\s]+`)
	spaces  = regexp.MustCompile(`\s+`)

	// Definitional or conversational questions that a model answers without
	// fresh data.
	vaguePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^what (is|are) (a |an |the )?\w+$`),
		regexp.MustCompile(`^what about (a |an |the )?\w+$`),
		regexp.MustCompile(`^is (a |an |the )?\w+$`),
		regexp.MustCompile(`^explain\b`),
		regexp.MustCompile(`^define\b`),
		regexp.MustCompile(`^tell me about\b`),
		regexp.MustCompile(`^how does \w+ work$`),
	}

	timeKeywords = map[string]bool{
		"today": true, "tonight": true, "tomorrow": true, "yesterday": true,
		"latest": true, "current": true, "currently": true, "now": true,
		"recent": true, "recently": true, "live": true, "update": true, "updates": true,
		"news": true, "headlines": true, "weather": true, "forecast": true,
		"temperature": true, "stock": true, "stocks": true, "price": true,
		"prices": true, "rate": true, "score": true, "scores": true,
		"ceo": true, "election": true, "released": true,
	}

	stopWords = map[string]bool{
		"what": true, "is": true, "the": true, "about": true, "a": true, "an": true,
	}
)

// Normalize lowercases q, expands common contractions and strips punctuation.
func Normalize(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.ReplaceAll(q, "’", "'")
	q = contractions.Replace(q)
	q = nonWord.ReplaceAllString(q, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(q, " "))
}

// ShouldSearch vetoes search for queries that are vague, not time-sensitive,
// or too short to be a useful search query. It is applied after the model
// already asked to search.
func ShouldSearch(query string) bool {
	q := Normalize(query)
	if q == "" {
		metricGate.WithLabelValues("empty").Inc()
		return false
	}
	for _, p := range vaguePatterns {
		if p.MatchString(q) {
			metricGate.WithLabelValues("vague").Inc()
			return false
		}
	}
	words := strings.Fields(q)
	timely := false
	content := 0
	for _, w := range words {
		if timeKeywords[w] {
			timely = true
		}
		if !stopWords[w] {
			content++
		}
	}
	if !timely {
		metricGate.WithLabelValues("not_timely").Inc()
		return false
	}
	if content < 2 {
		metricGate.WithLabelValues("too_short").Inc()
		return false
	}
	metricGate.WithLabelValues("allowed").Inc()
	return true
}
