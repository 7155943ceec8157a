package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wisemama/wisemama/internal/dictionary"
	"github.com/wisemama/wisemama/internal/lessons"
	"github.com/wisemama/wisemama/internal/profile"
)

type lessonsPageData struct {
	baseData
	Lessons []lessons.Lesson
}

func (s *Server) handleLessonsPage(w http.ResponseWriter, r *http.Request) {
	// Lesson editing is the parent's screen.
	if s.profiles.Mode() != profile.RoleParent {
		http.Redirect(w, r, "/flashcards", http.StatusSeeOther)
		return
	}
	s.render(w, "lessons", lessonsPageData{
		baseData: s.base("lessons"),
		Lessons:  s.lessons.Lessons(),
	})
}

func (s *Server) renderLessonList(w http.ResponseWriter) {
	s.render(w, "lesson_list", map[string]any{"Lessons": s.lessons.Lessons()})
}

func (s *Server) handleLessonAdd(w http.ResponseWriter, r *http.Request) {
	if _, err := s.lessons.AddLesson(r.Context()); err != nil {
		s.serverError(w, "failed to add lesson", err)
		return
	}
	s.renderLessonList(w)
}

func (s *Server) handleLessonDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.lessons.RemoveLesson(r.Context(), r.PathValue("id")); err != nil {
		s.serverError(w, "failed to delete lesson", err)
		return
	}
	s.renderLessonList(w)
}

func (s *Server) handleLessonTitle(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.PostFormValue("title"))
	if title == "" {
		http.Error(w, "Title cannot be empty", http.StatusBadRequest)
		return
	}
	if err := s.lessons.UpdateTitle(r.Context(), r.PathValue("id"), title); err != nil {
		s.serverError(w, "failed to rename lesson", err)
		return
	}
	s.renderLessonList(w)
}

func (s *Server) handleCardAdd(w http.ResponseWriter, r *http.Request) {
	if _, err := s.lessons.AddCard(r.Context(), r.PathValue("id")); err != nil {
		s.serverError(w, "failed to add card", err)
		return
	}
	s.renderLessonList(w)
}

func (s *Server) handleCardUpdate(w http.ResponseWriter, r *http.Request) {
	lessonID := r.PathValue("id")
	card := lessons.Card{
		ID:      r.PathValue("cardID"),
		Hanzi:   r.PostFormValue("hanzi"),
		Pinyin:  r.PostFormValue("pinyin"),
		French:  r.PostFormValue("french"),
		English: r.PostFormValue("english"),
	}
	if err := s.lessons.UpdateCard(r.Context(), lessonID, card); err != nil {
		s.serverError(w, "failed to update card", err)
		return
	}
	s.renderLessonList(w)
}

func (s *Server) handleCardDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.lessons.RemoveCard(r.Context(), r.PathValue("id"), r.PathValue("cardID")); err != nil {
		s.serverError(w, "failed to delete card", err)
		return
	}
	s.renderLessonList(w)
}

func (s *Server) handleCardMove(w http.ResponseWriter, r *http.Request) {
	direction, err := strconv.Atoi(r.PostFormValue("direction"))
	if err != nil || (direction != 1 && direction != -1) {
		http.Error(w, "Direction must be 1 or -1", http.StatusBadRequest)
		return
	}
	if err := s.lessons.MoveCard(r.Context(), r.PathValue("id"), r.PathValue("cardID"), direction); err != nil {
		s.serverError(w, "failed to move card", err)
		return
	}
	s.renderLessonList(w)
}

// handleImport builds a lesson from pasted Mandarin text: the text is
// segmented into dictionary words and each distinct word becomes a card.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	text := r.PostFormValue("text")
	title := strings.TrimSpace(r.PostFormValue("title"))
	if title == "" {
		title = "Imported lesson"
	}

	cards := s.dict.CardsFromText(text)
	if len(cards) == 0 {
		http.Error(w, "No Mandarin words found in the text", http.StatusBadRequest)
		return
	}

	lesson := lessons.Lesson{ID: lessons.NewLessonID(), Title: title, Cards: cards}
	if err := s.lessons.AppendLesson(r.Context(), lesson); err != nil {
		s.serverError(w, "failed to import lesson", err)
		return
	}
	s.renderLessonList(w)
}

type dictionaryPageData struct {
	baseData
	Query   string
	HSK     int
	Levels  []int
	Results []dictionary.Entry
}

func (s *Server) handleDictionary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	hsk, _ := strconv.Atoi(r.URL.Query().Get("hsk"))

	results := s.dict.Search(dictionary.Query{Text: query, HSK: hsk})
	data := dictionaryPageData{
		baseData: s.base("dictionary"),
		Query:    query,
		HSK:      hsk,
		Levels:   s.dict.HSKLevels(),
		Results:  results,
	}

	// HTMX live search swaps only the result list.
	if r.Header.Get("HX-Request") == "true" {
		s.render(w, "dictionary_results", data)
		return
	}
	s.render(w, "dictionary", data)
}
