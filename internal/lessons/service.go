package lessons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wisemama/wisemama/internal/storage"
)

// StateStore is the persistence contract for app-state JSON documents.
// *storage.DB satisfies it.
type StateStore interface {
	GetState(ctx context.Context, key string) ([]byte, error)
	PutState(ctx context.Context, key string, value []byte) error
}

// ErrNotFound is returned when a lesson or card id does not exist.
var ErrNotFound = errors.New("lessons: not found")

// Service owns the lesson list. It keeps an in-memory working copy and
// writes the whole list back as one JSON document on every mutation.
type Service struct {
	store  StateStore
	logger *slog.Logger

	mu      sync.Mutex
	lessons []Lesson
}

// NewService creates a lesson service over store.
func NewService(store StateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Load reads the stored lesson list. A missing or unreadable document falls
// back to the built-in starter lessons, mirroring a first launch.
func (s *Service) Load(ctx context.Context) error {
	data, err := s.store.GetState(ctx, storage.StateLessons)
	if err != nil {
		return fmt.Errorf("failed to load lessons: %w", err)
	}

	list := DefaultLessons()
	if data != nil {
		decoded, err := Decode(data)
		if err != nil || len(decoded) == 0 {
			s.logger.Warn("stored lessons unreadable, using defaults", "error", err)
		} else {
			list = decoded
		}
	}

	s.mu.Lock()
	s.lessons = list
	s.mu.Unlock()
	return nil
}

// Lessons returns a copy of the current lesson list.
func (s *Service) Lessons() []Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyLessons(s.lessons)
}

// Lesson returns one lesson by id.
func (s *Service) Lesson(id string) (Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lessons {
		if l.ID == id {
			return copyLesson(l), nil
		}
	}
	return Lesson{}, ErrNotFound
}

// Card returns one card by lesson and card id.
func (s *Service) Card(lessonID, cardID string) (Card, error) {
	lesson, err := s.Lesson(lessonID)
	if err != nil {
		return Card{}, err
	}
	for _, c := range lesson.Cards {
		if c.ID == cardID {
			return c, nil
		}
	}
	return Card{}, ErrNotFound
}

// AddLesson appends a new empty lesson with one blank card and returns it.
func (s *Service) AddLesson(ctx context.Context) (Lesson, error) {
	lesson := Lesson{
		ID:    NewLessonID(),
		Title: "New lesson",
		Cards: []Card{NewCard()},
	}

	s.mu.Lock()
	s.lessons = append(s.lessons, lesson)
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		return Lesson{}, err
	}
	return lesson, nil
}

// RemoveLesson deletes a lesson by id. Removing an unknown id is a no-op.
func (s *Service) RemoveLesson(ctx context.Context, lessonID string) error {
	s.mu.Lock()
	kept := s.lessons[:0]
	for _, l := range s.lessons {
		if l.ID != lessonID {
			kept = append(kept, l)
		}
	}
	s.lessons = kept
	s.mu.Unlock()

	return s.persist(ctx)
}

// UpdateTitle renames a lesson.
func (s *Service) UpdateTitle(ctx context.Context, lessonID, title string) error {
	err := s.mutateLesson(lessonID, func(l *Lesson) error {
		l.Title = title
		return nil
	})
	if err != nil {
		return err
	}
	return s.persist(ctx)
}

// AddCard appends a blank card to a lesson and returns it.
func (s *Service) AddCard(ctx context.Context, lessonID string) (Card, error) {
	card := NewCard()
	err := s.mutateLesson(lessonID, func(l *Lesson) error {
		l.Cards = append(l.Cards, card)
		return nil
	})
	if err != nil {
		return Card{}, err
	}
	if err := s.persist(ctx); err != nil {
		return Card{}, err
	}
	return card, nil
}

// UpdateCard replaces the card with card.ID inside a lesson.
func (s *Service) UpdateCard(ctx context.Context, lessonID string, card Card) error {
	err := s.mutateLesson(lessonID, func(l *Lesson) error {
		for i := range l.Cards {
			if l.Cards[i].ID == card.ID {
				l.Cards[i] = card
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	return s.persist(ctx)
}

// RemoveCard deletes a card from a lesson.
func (s *Service) RemoveCard(ctx context.Context, lessonID, cardID string) error {
	err := s.mutateLesson(lessonID, func(l *Lesson) error {
		kept := l.Cards[:0]
		for _, c := range l.Cards {
			if c.ID != cardID {
				kept = append(kept, c)
			}
		}
		l.Cards = kept
		return nil
	})
	if err != nil {
		return err
	}
	return s.persist(ctx)
}

// MoveCard shifts a card up (-1) or down (+1) within its lesson. Moves past
// either end are no-ops.
func (s *Service) MoveCard(ctx context.Context, lessonID, cardID string, direction int) error {
	err := s.mutateLesson(lessonID, func(l *Lesson) error {
		for i, c := range l.Cards {
			if c.ID != cardID {
				continue
			}
			j := i + direction
			if j < 0 || j >= len(l.Cards) {
				return nil
			}
			l.Cards[i], l.Cards[j] = l.Cards[j], l.Cards[i]
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	return s.persist(ctx)
}

// AppendLesson adds an already-built lesson, as produced by the text import.
func (s *Service) AppendLesson(ctx context.Context, lesson Lesson) error {
	normalized := Normalize([]Lesson{lesson})

	s.mu.Lock()
	s.lessons = append(s.lessons, normalized...)
	s.mu.Unlock()

	return s.persist(ctx)
}

// Upsert inserts or replaces a lesson by id, used by pack sync. It reports
// whether anything changed; an identical fingerprint is left untouched.
func (s *Service) Upsert(ctx context.Context, lesson Lesson) (bool, error) {
	normalized := Normalize([]Lesson{lesson})[0]

	s.mu.Lock()
	replaced := false
	changed := true
	for i, l := range s.lessons {
		if l.ID != normalized.ID {
			continue
		}
		replaced = true
		if Fingerprint(l) == Fingerprint(normalized) {
			changed = false
		} else {
			s.lessons[i] = normalized
		}
		break
	}
	if !replaced {
		s.lessons = append(s.lessons, normalized)
	}
	s.mu.Unlock()

	if !changed {
		return false, nil
	}
	return true, s.persist(ctx)
}

func (s *Service) mutateLesson(lessonID string, fn func(*Lesson) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lessons {
		if s.lessons[i].ID == lessonID {
			return fn(&s.lessons[i])
		}
	}
	return ErrNotFound
}

func (s *Service) persist(ctx context.Context) error {
	s.mu.Lock()
	data, err := json.Marshal(s.lessons)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode lessons: %w", err)
	}
	if err := s.store.PutState(ctx, storage.StateLessons, data); err != nil {
		return fmt.Errorf("failed to persist lessons: %w", err)
	}
	return nil
}

func copyLessons(in []Lesson) []Lesson {
	out := make([]Lesson, len(in))
	for i, l := range in {
		out[i] = copyLesson(l)
	}
	return out
}

func copyLesson(l Lesson) Lesson {
	l.Cards = append([]Card(nil), l.Cards...)
	return l
}
