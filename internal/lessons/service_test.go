package lessons

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wisemama/wisemama/internal/storage"
)

type memoryState struct {
	mu     sync.Mutex
	values map[string][]byte
	failed bool
}

func newMemoryState() *memoryState {
	return &memoryState{values: map[string][]byte{}}
}

func (m *memoryState) GetState(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return nil, errors.New("storage unavailable")
	}
	return m.values[key], nil
}

func (m *memoryState) PutState(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return errors.New("storage unavailable")
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func TestServiceLoadFallsBackToDefaults(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		svc := NewService(newMemoryState(), nil)
		if err := svc.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(svc.Lessons()) == 0 {
			t.Error("expected the starter lessons on first launch")
		}
	})

	t.Run("corrupt document", func(t *testing.T) {
		store := newMemoryState()
		store.values[storage.StateLessons] = []byte(`{invalid`)
		svc := NewService(store, nil)
		if err := svc.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(svc.Lessons()) == 0 {
			t.Error("expected defaults when the stored document is unreadable")
		}
	})
}

func TestServiceLessonCRUD(t *testing.T) {
	store := newMemoryState()
	svc := NewService(store, nil)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	ctx := context.Background()
	before := len(svc.Lessons())

	lesson, err := svc.AddLesson(ctx)
	if err != nil {
		t.Fatalf("add lesson failed: %v", err)
	}
	if len(lesson.Cards) != 1 {
		t.Errorf("expected a new lesson to start with one blank card, got %d", len(lesson.Cards))
	}

	if err := svc.UpdateTitle(ctx, lesson.ID, "Les couleurs"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	got, err := svc.Lesson(lesson.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Title != "Les couleurs" {
		t.Errorf("expected renamed title, got %q", got.Title)
	}

	card, err := svc.AddCard(ctx, lesson.ID)
	if err != nil {
		t.Fatalf("add card failed: %v", err)
	}
	card.Hanzi = "红"
	card.Pinyin = "hóng"
	if err := svc.UpdateCard(ctx, lesson.ID, card); err != nil {
		t.Fatalf("update card failed: %v", err)
	}
	gotCard, err := svc.Card(lesson.ID, card.ID)
	if err != nil {
		t.Fatalf("card lookup failed: %v", err)
	}
	if gotCard.Hanzi != "红" {
		t.Errorf("expected card content update, got %+v", gotCard)
	}

	if err := svc.RemoveCard(ctx, lesson.ID, card.ID); err != nil {
		t.Fatalf("remove card failed: %v", err)
	}
	if err := svc.RemoveLesson(ctx, lesson.ID); err != nil {
		t.Fatalf("remove lesson failed: %v", err)
	}
	if got := len(svc.Lessons()); got != before {
		t.Errorf("expected %d lessons after removal, got %d", before, got)
	}

	// Mutations survive a reload through the store.
	svc2 := NewService(store, nil)
	if err := svc2.Load(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := len(svc2.Lessons()); got != before {
		t.Errorf("expected persisted state after reload, got %d lessons", got)
	}
}

func TestServiceMoveCard(t *testing.T) {
	store := newMemoryState()
	svc := NewService(store, nil)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	ctx := context.Background()

	lessonList := svc.Lessons()
	lesson := lessonList[0]
	if len(lesson.Cards) < 2 {
		t.Fatal("starter lesson needs at least two cards for this test")
	}
	first, second := lesson.Cards[0].ID, lesson.Cards[1].ID

	if err := svc.MoveCard(ctx, lesson.ID, first, +1); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	got, _ := svc.Lesson(lesson.ID)
	if got.Cards[0].ID != second || got.Cards[1].ID != first {
		t.Errorf("expected cards swapped, got %s then %s", got.Cards[0].ID, got.Cards[1].ID)
	}

	// Moving past the top edge is a no-op.
	if err := svc.MoveCard(ctx, lesson.ID, second, -1); err != nil {
		t.Fatalf("edge move failed: %v", err)
	}
	got, _ = svc.Lesson(lesson.ID)
	if got.Cards[0].ID != second {
		t.Errorf("expected edge move to be a no-op, got %s first", got.Cards[0].ID)
	}
}

func TestServiceUpsert(t *testing.T) {
	svc := NewService(newMemoryState(), nil)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	ctx := context.Background()

	lesson := Lesson{
		ID:    "lesson-pack-1",
		Title: "Pack lesson",
		Cards: []Card{{ID: "card-1", Hanzi: "水", Pinyin: "shuǐ", English: "water"}},
	}

	changed, err := svc.Upsert(ctx, lesson)
	if err != nil || !changed {
		t.Fatalf("expected first upsert to insert, changed=%v err=%v", changed, err)
	}

	// Same content again: skipped.
	changed, err = svc.Upsert(ctx, lesson)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if changed {
		t.Error("expected identical content to be skipped")
	}

	// Changed content: replaced.
	lesson.Cards[0].English = "water (n.)"
	changed, err = svc.Upsert(ctx, lesson)
	if err != nil || !changed {
		t.Fatalf("expected changed content to replace, changed=%v err=%v", changed, err)
	}
	got, err := svc.Lesson("lesson-pack-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Cards[0].English != "water (n.)" {
		t.Errorf("expected replacement to apply, got %+v", got.Cards[0])
	}
}

func TestDecode(t *testing.T) {
	t.Run("list document", func(t *testing.T) {
		list, err := Decode([]byte(`[{"title":"A","cards":[{"hanzi":"好"}]}]`))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(list) != 1 || list[0].ID == "" || list[0].Cards[0].ID == "" {
			t.Errorf("expected normalized ids, got %+v", list)
		}
	})

	t.Run("single lesson document", func(t *testing.T) {
		list, err := Decode([]byte(`{"title":"B","cards":[]}`))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(list) != 1 || list[0].Title != "B" {
			t.Errorf("unexpected result: %+v", list)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := Decode([]byte(`"just a string"`)); err == nil {
			t.Error("expected an error for a non-lesson document")
		}
	})
}

func TestFingerprintIgnoresIDs(t *testing.T) {
	a := Lesson{ID: "x", Title: "T", Cards: []Card{{ID: "1", Hanzi: "好"}}}
	b := Lesson{ID: "y", Title: "T", Cards: []Card{{ID: "2", Hanzi: "好"}}}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("expected fingerprints to ignore ids")
	}

	b.Cards[0].Hanzi = "坏"
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("expected different content to fingerprint differently")
	}
}

func TestCardKey(t *testing.T) {
	if got := CardKey("lesson-1", "card-2"); got != "lesson-1:card-2" {
		t.Errorf("unexpected card key %q", got)
	}
}
