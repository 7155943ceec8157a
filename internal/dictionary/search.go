package dictionary

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultLimit caps search results so the panel stays scannable for a child.
const DefaultLimit = 8

// Query describes one dictionary search.
type Query struct {
	Text string
	// HSK restricts results to one level; zero means all levels.
	HSK int
	// Limit caps the result count; zero means DefaultLimit.
	Limit int
}

type scored struct {
	entry Entry
	score int
	order int
}

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// fold lowercases and strips diacritics so "nǐ hǎo", "ni hao" and
// "NI HAO" all compare equal. Tone marks on pinyin are combining marks
// after NFD, so they fold away with French accents.
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Search ranks entries against the query text. Matches on the hanzi
// headword outrank pinyin matches, which outrank gloss matches, and
// exact matches outrank prefixes, which outrank substrings.
func (d *Dictionary) Search(q Query) []Entry {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil
	}
	folded := fold(text)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var hits []scored
	for i, e := range d.entries {
		if q.HSK > 0 && e.HSK != q.HSK {
			continue
		}
		if s := scoreEntry(e, text, folded); s > 0 {
			hits = append(hits, scored{entry: e, score: s, order: i})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out
}

func scoreEntry(e Entry, text, folded string) int {
	pinyin := fold(e.Pinyin)
	pinyinTight := strings.ReplaceAll(pinyin, " ", "")
	french := fold(e.French)
	english := fold(e.English)

	switch {
	case e.Hanzi == text:
		return 120
	case pinyin == folded || pinyinTight == folded:
		return 110
	case french == folded || english == folded:
		return 100
	case strings.HasPrefix(e.Hanzi, text):
		return 80
	case strings.HasPrefix(pinyin, folded) || strings.HasPrefix(pinyinTight, folded):
		return 70
	case strings.HasPrefix(french, folded) || strings.HasPrefix(english, folded):
		return 65
	case strings.Contains(e.Hanzi, text),
		strings.Contains(pinyin, folded),
		strings.Contains(french, folded),
		strings.Contains(english, folded):
		return 60
	}
	return 0
}
