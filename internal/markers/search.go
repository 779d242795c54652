package markers

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joeblew999/plat-wikimap/internal/metrics"
)

// MinSearchLength is the shortest pattern that produces results.
const MinSearchLength = 3

// Results maps each layer with matches to its matching markers.
type Results map[*Layer][]*Marker

// Count returns the total number of matches.
func (r Results) Count() int {
	n := 0
	for _, ms := range r {
		n += len(ms)
	}
	return n
}

// Flatten returns the matches ordered by the given layer order, then name.
func (r Results) Flatten(order []*Layer) []*Marker {
	var out []*Marker
	for _, l := range order {
		out = append(out, r[l]...)
	}
	return out
}

// SearchPattern compiles user text into a case-insensitive literal
// substring matcher. It returns nil for patterns shorter than
// MinSearchLength runes.
func SearchPattern(text string) *regexp.Regexp {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinSearchLength {
		return nil
	}
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(text))
}

// Search matches text against marker names in every layer. Text is taken
// literally, not as a regular expression.
func Search(text string, layers []*Layer) Results {
	metrics.SearchTotal.Inc()
	res := Results{}
	re := SearchPattern(text)
	if re == nil {
		return res
	}
	for _, l := range layers {
		if found := l.Find(re); len(found) > 0 {
			res[l] = found
		}
	}
	return res
}
