package board

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"sampleflow/pkg/domain"
)

var samplingDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04",
	"02.01.2006",
	"2006/01/02",
}

// ParseSamplingDate parses the date formats seen in sample records.
func ParseSamplingDate(raw string) (time.Time, bool) {
	for _, layout := range samplingDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// newCollator returns a locale-aware collator comparing digit runs numerically,
// so S-2 sorts before S-10. Collators are not safe for concurrent use.
func newCollator() *collate.Collator {
	return collate.New(language.English, collate.Numeric, collate.IgnoreCase)
}

// CompareIDs orders two sample ids the way boards display them.
func CompareIDs(a, b string) int {
	return compareIDs(newCollator(), a, b)
}

// compareIDs collates ids and falls back to byte order for ids the collator
// treats as equal, such as ones differing only in case.
func compareIDs(coll *collate.Collator, a, b string) int {
	if c := coll.CompareString(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// sortCards orders cards by pref. Without a key cards are ordered by id.
// Ties always break on id ascending, whatever the chosen direction, and
// unparsable sampling dates always sort last.
func sortCards(cards []Card, pref domain.SortPreference) {
	coll := newCollator()
	byID := func(a, b Card) bool { return compareIDs(coll, a.ID, b.ID) < 0 }
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		var cmp int
		switch pref.Key {
		case domain.SortSampleID:
			cmp = compareIDs(coll, a.ID, b.ID)
		case domain.SortSamplingDate:
			ta, oka := ParseSamplingDate(samplingDate(a))
			tb, okb := ParseSamplingDate(samplingDate(b))
			switch {
			case !oka && !okb:
				return byID(a, b)
			case !oka:
				return false
			case !okb:
				return true
			}
			cmp = ta.Compare(tb)
		case domain.SortCompleted:
			cmp = a.CompletedMethods() - b.CompletedMethods()
		}
		if cmp == 0 {
			return byID(a, b)
		}
		if pref.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func samplingDate(c Card) string {
	if c.Sample != nil {
		return c.Sample.SamplingDate
	}
	if c.Batch != nil {
		return c.Batch.Date
	}
	return ""
}
