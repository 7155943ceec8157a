package dictionary

import (
	"regexp"

	"github.com/wisemama/wisemama/internal/lessons"
)

var cjkRuns = regexp.MustCompile(`[\x{3400}-\x{9FFF}]+`)

// Tokenize splits free text into dictionary words. Non-CJK text is
// discarded; each CJK run is segmented by greedy longest match against
// the headword list, with unknown characters passed through as
// single-character tokens.
func (d *Dictionary) Tokenize(text string) []string {
	var tokens []string
	for _, run := range cjkRuns.FindAllString(text, -1) {
		tokens = append(tokens, d.segment(run)...)
	}
	return tokens
}

func (d *Dictionary) segment(run string) []string {
	var tokens []string
	remaining := []rune(run)
	for len(remaining) > 0 {
		match := ""
		for _, word := range d.words {
			w := []rune(word)
			if len(w) > len(remaining) {
				continue
			}
			if string(remaining[:len(w)]) == word {
				match = word
				break
			}
		}
		if match == "" {
			match = string(remaining[0])
		}
		tokens = append(tokens, match)
		remaining = remaining[len([]rune(match)):]
	}
	return tokens
}

// CardsFromText segments pasted text and builds one card per distinct
// word, enriched with pinyin and glosses where the dictionary knows the
// word. This is the engine behind the paste-a-story lesson import.
func (d *Dictionary) CardsFromText(text string) []lessons.Card {
	seen := map[string]bool{}
	var cards []lessons.Card
	for _, token := range d.Tokenize(text) {
		if seen[token] {
			continue
		}
		seen[token] = true

		card := lessons.NewCard()
		card.Hanzi = token
		if entry, ok := d.FindByHanzi(token); ok {
			card.Pinyin = entry.Pinyin
			card.French = entry.French
			card.English = entry.English
		}
		cards = append(cards, card)
	}
	return cards
}
