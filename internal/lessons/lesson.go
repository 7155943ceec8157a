// Package lessons holds the flashcard lesson model and its store-backed
// service. Lessons are persisted as one JSON document in app state; all
// audio records reference cards through the composite card key.
package lessons

import (
	"crypto/sha256"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

//go:embed data/lessons.json
var defaultData embed.FS

// Card is one flashcard inside a lesson.
type Card struct {
	ID       string `json:"id"`
	Hanzi    string `json:"hanzi"`
	Pinyin   string `json:"pinyin"`
	French   string `json:"french"`
	English  string `json:"english"`
	ImageURL string `json:"imageUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// Lesson is an ordered collection of flashcards.
type Lesson struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Cards []Card `json:"cards"`
}

// CardKey builds the composite "{lessonId}:{cardId}" identifier that scopes
// audio records to one flashcard. The audio side treats it as opaque.
func CardKey(lessonID, cardID string) string {
	return lessonID + ":" + cardID
}

// NewLessonID returns a fresh unique lesson identifier.
func NewLessonID() string {
	return "lesson-" + uuid.NewString()
}

// NewCardID returns a fresh unique card identifier.
func NewCardID() string {
	return "card-" + uuid.NewString()
}

// NewCard returns an empty card with a generated id.
func NewCard() Card {
	return Card{ID: NewCardID()}
}

// Normalize repairs a lesson list decoded from untrusted storage or pack
// files: missing ids are generated and missing titles get a positional
// default. Card content is kept as-is.
func Normalize(input []Lesson) []Lesson {
	out := make([]Lesson, 0, len(input))
	for i, lesson := range input {
		if lesson.ID == "" {
			lesson.ID = NewLessonID()
		}
		if lesson.Title == "" {
			lesson.Title = fmt.Sprintf("Lesson %d", i+1)
		}
		cards := make([]Card, 0, len(lesson.Cards))
		for _, card := range lesson.Cards {
			if card.ID == "" {
				card.ID = NewCardID()
			}
			cards = append(cards, card)
		}
		lesson.Cards = cards
		out = append(out, lesson)
	}
	return out
}

// Decode parses a JSON lesson document: either a list of lessons or a single
// lesson object. The result is normalized.
func Decode(data []byte) ([]Lesson, error) {
	var list []Lesson
	if err := json.Unmarshal(data, &list); err == nil {
		return Normalize(list), nil
	}

	var single Lesson
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("not a lesson document: %w", err)
	}
	return Normalize([]Lesson{single}), nil
}

// Fingerprint returns a stable content hash of the lesson's teaching
// material. Ids are excluded so re-generated ids do not count as changes;
// pack sync uses this to skip lessons that are already up to date.
func Fingerprint(lesson Lesson) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	parts := []string{normalizePart(lesson.Title)}
	for _, card := range lesson.Cards {
		parts = append(parts,
			normalizePart(card.Hanzi),
			normalizePart(card.Pinyin),
			normalizePart(card.French),
			normalizePart(card.English),
		)
	}

	hashBytes := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return fmt.Sprintf("%x", hashBytes)
}

// DefaultLessons returns the built-in starter lessons.
func DefaultLessons() []Lesson {
	data, err := defaultData.ReadFile("data/lessons.json")
	if err != nil {
		return nil
	}
	list, err := Decode(data)
	if err != nil {
		return nil
	}
	return list
}
