// Package dictionary bundles a small Mandarin word list with lookup and
// text segmentation helpers. It backs the word search screen and the
// text-to-lesson import.
package dictionary

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed data/cedict-mini.json
var embeddedData embed.FS

// Entry is one dictionary headword.
type Entry struct {
	Hanzi   string `json:"hanzi"`
	Pinyin  string `json:"pinyin"`
	French  string `json:"french"`
	English string `json:"english"`
	HSK     int    `json:"hsk"`
}

// Dictionary is an immutable in-memory word list. All lookups are
// safe for concurrent use.
type Dictionary struct {
	entries []Entry
	byHanzi map[string]int

	// Headwords sorted longest-first, for greedy segmentation.
	words []string
}

// Load builds the dictionary from the embedded word list.
func Load() (*Dictionary, error) {
	data, err := embeddedData.ReadFile("data/cedict-mini.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded dictionary: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse embedded dictionary: %w", err)
	}
	return New(entries), nil
}

// New builds a dictionary from an explicit entry list.
func New(entries []Entry) *Dictionary {
	d := &Dictionary{
		entries: entries,
		byHanzi: make(map[string]int, len(entries)),
		words:   make([]string, 0, len(entries)),
	}
	for i, e := range entries {
		if _, seen := d.byHanzi[e.Hanzi]; !seen {
			d.byHanzi[e.Hanzi] = i
			d.words = append(d.words, e.Hanzi)
		}
	}
	sort.Slice(d.words, func(i, j int) bool {
		if len(d.words[i]) != len(d.words[j]) {
			return len(d.words[i]) > len(d.words[j])
		}
		return d.words[i] < d.words[j]
	})
	return d
}

// Size reports the number of entries.
func (d *Dictionary) Size() int {
	return len(d.entries)
}

// FindByHanzi returns the entry for an exact headword, if present.
func (d *Dictionary) FindByHanzi(hanzi string) (Entry, bool) {
	i, ok := d.byHanzi[hanzi]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// HSKLevels returns the distinct HSK levels present, ascending.
func (d *Dictionary) HSKLevels() []int {
	seen := map[int]bool{}
	var levels []int
	for _, e := range d.entries {
		if e.HSK > 0 && !seen[e.HSK] {
			seen[e.HSK] = true
			levels = append(levels, e.HSK)
		}
	}
	sort.Ints(levels)
	return levels
}
