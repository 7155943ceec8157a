package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wisemama/wisemama/internal/audio"
	"github.com/wisemama/wisemama/internal/audio/audiotest"
	"github.com/wisemama/wisemama/internal/dictionary"
	"github.com/wisemama/wisemama/internal/lessons"
	"github.com/wisemama/wisemama/internal/packsync"
	"github.com/wisemama/wisemama/internal/practice"
	"github.com/wisemama/wisemama/internal/profile"
	"github.com/wisemama/wisemama/internal/storage"
)

type testEnv struct {
	server   *Server
	db       *storage.DB
	profiles *profile.Service
	packsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.Open(filepath.Join(t.TempDir(), "web-test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	lessonSvc := lessons.NewService(db, logger)
	if err := lessonSvc.Load(ctx); err != nil {
		t.Fatalf("failed to load lessons: %v", err)
	}
	profileSvc := profile.NewService(db, logger)
	if err := profileSvc.Load(ctx); err != nil {
		t.Fatalf("failed to load profiles: %v", err)
	}
	dict, err := dictionary.Load()
	if err != nil {
		t.Fatalf("failed to load dictionary: %v", err)
	}

	device := audio.Exclusive(&audiotest.Device{
		Mime:   "audio/wav",
		Chunks: []audio.Chunk{{Data: []byte{0x01, 0x02}, Level: 0.4}},
	})
	reference := audio.NewRecorder(device)
	attempt := audio.NewRecorder(device)
	panel := practice.NewPanel(db, reference, attempt, practice.WithLogger(logger))

	packsDir := t.TempDir()
	syncer := packsync.New(db, lessonSvc, packsDir, logger)

	server, err := NewServer(db, lessonSvc, dict, profileSvc, panel, syncer, logger)
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	return &testEnv{server: server, db: db, profiles: profileSvc, packsDir: packsDir}
}

func (e *testEnv) get(t *testing.T, path string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) delete(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func TestHomeRedirectsToFlashcards(t *testing.T) {
	env := newTestEnv(t)
	rr := env.get(t, "/")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/flashcards" {
		t.Errorf("expected redirect to /flashcards, got %s", loc)
	}
}

func TestFlashcardsPage(t *testing.T) {
	env := newTestEnv(t)
	rr := env.get(t, "/flashcards")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "猫") {
		t.Error("expected the first starter card on the page")
	}
	if !strings.Contains(body, "Record attempt") {
		t.Error("expected the practice panel to be embedded")
	}
	if !strings.Contains(body, "Les animaux") {
		t.Error("expected the lesson picker to list starter lessons")
	}
	if !strings.Contains(body, "/static/meter.js") {
		t.Error("expected the live-meter client to be loaded")
	}
	if !strings.Contains(body, "/write?lesson=lesson-animals") {
		t.Error("expected a link to the writing trainer")
	}
}

func TestWritingPage(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/write?lesson=lesson-animals&card=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `data-hanzi="狗"`) {
		t.Error("expected the trainer to target the requested card")
	}
	if !strings.Contains(body, `data-card-key="lesson-animals:card-dog"`) {
		t.Error("expected the card key for star awards")
	}
	if !strings.Contains(body, "hanzi-writer") {
		t.Error("expected the stroke-order library to be loaded")
	}
	if !strings.Contains(body, "/static/writing.js") {
		t.Error("expected the trainer script to be loaded")
	}
}

func TestFlashcardsPaging(t *testing.T) {
	env := newTestEnv(t)
	rr := env.get(t, "/flashcards?lesson=lesson-animals&card=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "狗") {
		t.Error("expected the second card after paging")
	}

	// Out-of-range card index falls back to the first card.
	rr = env.get(t, "/flashcards?lesson=lesson-animals&card=99")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "猫") {
		t.Error("expected the first card for an out-of-range index")
	}
}

func TestDictionarySearch(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/dictionary?q=chat")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "猫") {
		t.Error("expected a match on the French gloss")
	}
	if !strings.Contains(body, "<nav") {
		t.Error("expected the full page without an HTMX header")
	}

	rr = env.get(t, "/dictionary?q=chat", "HX-Request", "true")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	partial := rr.Body.String()
	if !strings.Contains(partial, "猫") {
		t.Error("expected the match in the partial")
	}
	if strings.Contains(partial, "<nav") {
		t.Error("expected only the result list for an HTMX request")
	}
}

func TestLessonsPageRequiresParentMode(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/lessons")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected child mode to be redirected, got %d", rr.Code)
	}

	if err := env.profiles.SetMode(context.Background(), profile.RoleParent); err != nil {
		t.Fatalf("failed to switch mode: %v", err)
	}
	rr = env.get(t, "/lessons")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 in parent mode, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Les animaux") {
		t.Error("expected starter lessons on the editing page")
	}
}

func TestLessonEditing(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm(t, "/lessons/lesson-animals/title", url.Values{"title": {"Animaux"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("rename failed with %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Animaux") {
		t.Error("expected the renamed lesson in the refreshed list")
	}

	rr = env.postForm(t, "/lessons/lesson-animals/title", url.Values{"title": {"   "}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a blank title, got %d", rr.Code)
	}

	rr = env.postForm(t, "/lessons/lesson-animals/cards/card-cat", url.Values{
		"hanzi": {"猫"}, "pinyin": {"māo"}, "french": {"chat"}, "english": {"kitty"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("card update failed with %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "kitty") {
		t.Error("expected the updated gloss in the refreshed list")
	}

	rr = env.postForm(t, "/lessons/lesson-animals/cards/card-cat/move", url.Values{"direction": {"2"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid move direction, got %d", rr.Code)
	}
}

func TestImportBuildsLessonFromText(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm(t, "/import", url.Values{
		"title": {"Histoire du soir"},
		"text":  {"你好！妈妈和猫。"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("import failed with %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Histoire du soir") {
		t.Error("expected the imported lesson title")
	}
	if !strings.Contains(body, "你好") {
		t.Error("expected the segmented word as a card")
	}

	rr = env.postForm(t, "/import", url.Values{"text": {"only latin words"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when no Mandarin words are found, got %d", rr.Code)
	}
}

func TestRecordSaveAndServeAudio(t *testing.T) {
	env := newTestEnv(t)

	// Visiting the page activates the first card in the panel.
	if rr := env.get(t, "/flashcards"); rr.Code != http.StatusOK {
		t.Fatalf("failed to activate a card: %d", rr.Code)
	}
	cardKey := "lesson-animals:card-cat"

	if rr := env.postForm(t, "/practice/record/reference/start", nil); rr.Code != http.StatusOK {
		t.Fatalf("record start failed with %d", rr.Code)
	}
	// Let the scripted chunks drain into the recorder.
	time.Sleep(50 * time.Millisecond)
	if rr := env.postForm(t, "/practice/record/reference/stop", nil); rr.Code != http.StatusOK {
		t.Fatalf("record stop failed with %d", rr.Code)
	}
	rr := env.postForm(t, "/practice/model/save", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("model save failed with %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Reference model saved.") {
		t.Error("expected the save confirmation in the panel")
	}

	rr = env.get(t, "/audio/model/"+cardKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected stored model audio, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav, got %s", ct)
	}

	// Now a saved attempt shows up in the history list.
	if rr := env.postForm(t, "/practice/record/attempt/start", nil); rr.Code != http.StatusOK {
		t.Fatalf("attempt start failed with %d", rr.Code)
	}
	time.Sleep(50 * time.Millisecond)
	if rr := env.postForm(t, "/practice/record/attempt/stop", nil); rr.Code != http.StatusOK {
		t.Fatalf("attempt stop failed with %d", rr.Code)
	}
	rr = env.postForm(t, "/practice/attempt/save", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("attempt save failed with %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/audio/attempt/") {
		t.Error("expected the saved attempt in the history list")
	}
}

func TestAudioNotFound(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.get(t, "/audio/model/lesson-x:card-x"); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing model, got %d", rr.Code)
	}
	if rr := env.get(t, "/audio/attempt/no-such-id"); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing attempt, got %d", rr.Code)
	}
}

func TestStarAward(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm(t, "/stars", url.Values{
		"card_key": {"lesson-animals:card-cat"},
		"mistakes": {"0"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("star award failed with %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "★★★") {
		t.Error("expected three stars for a flawless round")
	}

	rr = env.postForm(t, "/stars", url.Values{"card_key": {"k"}, "mistakes": {"-1"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a negative mistake count, got %d", rr.Code)
	}
}

func TestModeSwitch(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm(t, "/mode", url.Values{"mode": {"parent"}})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if loc := rr.Header().Get("HX-Redirect"); loc != "/flashcards" {
		t.Errorf("expected an HX-Redirect to /flashcards, got %q", loc)
	}

	rr = env.postForm(t, "/mode", url.Values{"mode": {"loud"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown mode, got %d", rr.Code)
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm(t, "/profiles", url.Values{"name": {"Lina"}, "role": {"child"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("profile create failed with %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Lina") {
		t.Error("expected the new profile in the list")
	}

	rr = env.postForm(t, "/profiles", url.Values{"name": {"  "}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a blank name, got %d", rr.Code)
	}

	rr = env.postForm(t, "/profiles/child-default/activate", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("activate failed with %d", rr.Code)
	}
	if loc := rr.Header().Get("HX-Redirect"); loc != "/flashcards" {
		t.Errorf("expected an HX-Redirect after activation, got %q", loc)
	}

	if rr := env.postForm(t, "/profiles/nobody/activate", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown profile, got %d", rr.Code)
	}
}

func TestPackSources(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm(t, "/packs", url.Values{"path": {"https://example.com/lessons.git"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("pack add failed with %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "https://example.com/lessons.git") || !strings.Contains(body, "git") {
		t.Error("expected the git source in the refreshed list")
	}

	localDir := t.TempDir()
	rr = env.postForm(t, "/packs", url.Values{"path": {localDir}})
	if rr.Code != http.StatusOK {
		t.Fatalf("local pack add failed with %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "local") {
		t.Error("expected a plain directory to be classified as local")
	}

	rr = env.delete(t, "/packs/1")
	if rr.Code != http.StatusOK {
		t.Fatalf("pack delete failed with %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "lessons.git") {
		t.Error("expected the deleted source to be gone from the list")
	}
}

func TestMeterSocket(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/practice/meter", nil)
	if err != nil {
		t.Fatalf("failed to dial meter socket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// With both recorders idle the server sends one frame and hangs up.
	var frame struct {
		Recording bool      `json:"recording"`
		Level     float64   `json:"level"`
		Wave      []float64 `json:"wave"`
	}
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("failed to read meter frame: %v", err)
	}
	if frame.Recording {
		t.Error("expected no active recording")
	}
	if frame.Wave == nil {
		t.Error("expected an empty but non-null wave array")
	}
}

func TestSyncEndpoint(t *testing.T) {
	env := newTestEnv(t)

	packDir := t.TempDir()
	doc, _ := json.Marshal(lessons.Lesson{
		Title: "Les couleurs",
		Cards: []lessons.Card{{Hanzi: "红", Pinyin: "hóng", French: "rouge", English: "red"}},
	})
	if err := os.WriteFile(filepath.Join(packDir, "colors.json"), doc, 0o644); err != nil {
		t.Fatalf("failed to write pack file: %v", err)
	}
	if _, err := env.db.InsertPackSource(context.Background(), packDir, "local"); err != nil {
		t.Fatalf("failed to register pack source: %v", err)
	}

	rr := env.postForm(t, "/sync", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync failed with %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "1 lesson seen, 1 updated") {
		t.Errorf("expected the sync summary, got: %s", body)
	}
	if !strings.Contains(body, packDir) {
		t.Error("expected the refreshed source list after syncing")
	}
}
