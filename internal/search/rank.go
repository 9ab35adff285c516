package search

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"unicode"
)

// Rank orders results by evidence quality for query, best first. Ties keep
// the search engine's order.
func Rank(query string, results []Result) []Result {
	type scored struct {
		r     Result
		score float64
	}
	items := make([]scored, len(results))
	for i, r := range results {
		items[i] = scored{r: r, score: Score(query, r)}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })

	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = it.r
	}
	return out
}

// Score rates a single result between 0 and 1 from its title, snippet
// length, scheme and term overlap with query.
func Score(query string, r Result) float64 {
	score := 0.20

	title := strings.TrimSpace(r.Title)
	if title != "" && title != strings.TrimSpace(r.URL) {
		score += 0.16
	}

	switch n := len([]rune(strings.TrimSpace(r.Snippet))); {
	case n >= 280:
		score += 0.24
	case n >= 120:
		score += 0.17
	case n >= 50:
		score += 0.10
	}

	if u, err := url.Parse(strings.TrimSpace(r.URL)); err == nil && strings.EqualFold(u.Scheme, "https") {
		score += 0.06
	}

	score += overlap(query, title+" "+r.Snippet)
	return math.Min(1, math.Round(score*1000)/1000)
}

func overlap(query, text string) float64 {
	q := tokens(query)
	if len(q) == 0 {
		return 0
	}
	t := tokens(text)
	matches := 0
	for tok := range q {
		if _, ok := t[tok]; ok {
			matches++
		}
	}
	denominator := min(len(q), 8)
	return math.Min(0.24, float64(matches)/float64(denominator)*0.24)
}

func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) > 2 {
			set[f] = struct{}{}
		}
	}
	return set
}
