package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wisemama/wisemama/internal/audio"
	"github.com/wisemama/wisemama/internal/lessons"
	"github.com/wisemama/wisemama/internal/practice"
)

// flashcardsData renders the practice page: the lesson picker, the
// active card, and the audio practice panel.
type flashcardsData struct {
	baseData
	Lessons    []lessons.Lesson
	Lesson     lessons.Lesson
	Card       lessons.Card
	CardIndex  int
	CardNumber int
	CardCount  int
	PrevIndex  int
	NextIndex  int
	HasNext    bool
	CardKey    string
	Stars      int
	Panel      practice.View
}

// resolveCard picks the lesson and card index the request's query addresses,
// falling back to the first of each. Out-of-range indexes and unknown lesson
// ids fall back rather than fail.
func (s *Server) resolveCard(r *http.Request) (lessons.Lesson, int, bool) {
	list := s.lessons.Lessons()
	if len(list) == 0 {
		return lessons.Lesson{}, 0, false
	}

	lesson := list[0]
	if id := r.URL.Query().Get("lesson"); id != "" {
		if found, err := s.lessons.Lesson(id); err == nil {
			lesson = found
		}
	}
	if len(lesson.Cards) == 0 {
		return lessons.Lesson{}, 0, false
	}

	index := 0
	if raw := r.URL.Query().Get("card"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n < len(lesson.Cards) {
			index = n
		}
	}
	return lesson, index, true
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	lesson, index, ok := s.resolveCard(r)
	if !ok {
		http.Error(w, "No cards available", http.StatusNotFound)
		return
	}
	list := s.lessons.Lessons()
	card := lesson.Cards[index]
	cardKey := lessons.CardKey(lesson.ID, card.ID)

	s.panel.SetCard(r.Context(), cardKey)

	active := s.profiles.Active()
	data := flashcardsData{
		baseData:   s.base("flashcards"),
		Lessons:    list,
		Lesson:     lesson,
		Card:       card,
		CardIndex:  index,
		CardNumber: index + 1,
		CardCount:  len(lesson.Cards),
		PrevIndex:  index - 1,
		NextIndex:  index + 1,
		HasNext:    index+1 < len(lesson.Cards),
		CardKey:    cardKey,
		Stars:      s.profiles.Stars(active.ID)[cardKey],
		Panel:      s.panel.View(),
	}
	s.render(w, "flashcards", data)
}

// writingData renders the stroke-order trainer for one card.
type writingData struct {
	baseData
	Lesson    lessons.Lesson
	Card      lessons.Card
	CardIndex int
	CardKey   string
	Stars     int
}

func (s *Server) handleWriting(w http.ResponseWriter, r *http.Request) {
	lesson, index, ok := s.resolveCard(r)
	if !ok {
		http.Error(w, "No cards available", http.StatusNotFound)
		return
	}
	card := lesson.Cards[index]
	cardKey := lessons.CardKey(lesson.ID, card.ID)

	active := s.profiles.Active()
	s.render(w, "writing", writingData{
		baseData:  s.base("flashcards"),
		Lesson:    lesson,
		Card:      card,
		CardIndex: index,
		CardKey:   cardKey,
		Stars:     s.profiles.Stars(active.ID)[cardKey],
	})
}

func (s *Server) handlePracticePanel(w http.ResponseWriter, r *http.Request) {
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handlePracticeSelect(w http.ResponseWriter, r *http.Request) {
	cardKey := r.PostFormValue("card_key")
	if cardKey == "" {
		http.Error(w, "card_key is required", http.StatusBadRequest)
		return
	}
	s.panel.SetCard(r.Context(), cardKey)
	s.render(w, "practice_panel", s.panel.View())
}

func roleFromPath(r *http.Request) (practice.Role, bool) {
	switch r.PathValue("role") {
	case "reference":
		return practice.RoleReference, true
	case "attempt":
		return practice.RoleAttempt, true
	}
	return "", false
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFromPath(r)
	if !ok {
		http.Error(w, "Unknown recorder", http.StatusBadRequest)
		return
	}
	// Recorder errors surface on the snapshot, so the panel re-renders
	// with the message either way.
	if err := s.panel.StartRecording(r.Context(), role); err != nil {
		s.logger.Warn("recording start failed", "role", role, "error", err)
	}
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFromPath(r)
	if !ok {
		http.Error(w, "Unknown recorder", http.StatusBadRequest)
		return
	}
	s.panel.StopRecording(role)
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handleRecordClear(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFromPath(r)
	if !ok {
		http.Error(w, "Unknown recorder", http.StatusBadRequest)
		return
	}
	s.panel.Recorder(role).Clear()
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handleModelSave(w http.ResponseWriter, r *http.Request) {
	err := s.panel.SaveReference(r.Context())
	if err != nil && !errors.Is(err, practice.ErrConfirmReplace) && !errors.Is(err, practice.ErrNoClip) {
		s.logger.Warn("model save failed", "error", err)
	}
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handleModelConfirm(w http.ResponseWriter, r *http.Request) {
	if err := s.panel.ConfirmReplace(r.Context()); err != nil && !errors.Is(err, practice.ErrNoClip) {
		s.logger.Warn("model replace failed", "error", err)
	}
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handleModelCancel(w http.ResponseWriter, r *http.Request) {
	s.panel.CancelReplace()
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handleAttemptSave(w http.ResponseWriter, r *http.Request) {
	if err := s.panel.SaveAttempt(r.Context()); err != nil && !errors.Is(err, practice.ErrNoClip) {
		s.logger.Warn("attempt save failed", "error", err)
	}
	s.render(w, "practice_panel", s.panel.View())
}

func (s *Server) handlePracticeFilter(w http.ResponseWriter, r *http.Request) {
	filter := practice.DefaultFilter()
	switch practice.DateRange(r.PostFormValue("range")) {
	case practice.RangeToday:
		filter.Dates = practice.RangeToday
	case practice.RangeLast7Days:
		filter.Dates = practice.RangeLast7Days
	case practice.RangeLast30Days:
		filter.Dates = practice.RangeLast30Days
	default:
		filter.Dates = practice.RangeAll
	}
	if practice.CardScope(r.PostFormValue("scope")) == practice.ScopeAllCards {
		filter.Cards = practice.ScopeAllCards
	}
	s.panel.SetFilter(filter)
	s.render(w, "practice_panel", s.panel.View())
}

// meterFrame is one live-level sample pushed over the meter socket.
type meterFrame struct {
	Recording bool      `json:"recording"`
	Role      string    `json:"role,omitempty"`
	Level     float64   `json:"level"`
	ElapsedMs int64     `json:"elapsedMs"`
	Wave      []float64 `json:"wave"`
}

// handleMeter streams recorder levels to the wave display while a
// recording is active. The socket closes once both recorders are idle.
func (s *Server) handleMeter(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("meter socket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view := s.panel.View()
		frame := meterFrame{Wave: []float64{}}
		for _, role := range []practice.Role{practice.RoleReference, practice.RoleAttempt} {
			var snap audio.Snapshot
			if role == practice.RoleReference {
				snap = view.Reference
			} else {
				snap = view.Attempt
			}
			if snap.State == audio.StateRecording {
				frame.Recording = true
				frame.Role = string(role)
				frame.Level = snap.Level
				frame.ElapsedMs = snap.Elapsed.Milliseconds()
				if wave, ok := view.Waves[role]; ok {
					frame.Wave = wave
				}
			}
		}

		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return
		}
		if !frame.Recording {
			return
		}
	}
}

func (s *Server) handleModelAudio(w http.ResponseWriter, r *http.Request) {
	model, err := s.db.GetReferenceModel(r.Context(), r.PathValue("cardKey"))
	if err != nil {
		s.serverError(w, "failed to load reference model audio", err)
		return
	}
	if model == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", model.MimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(model.Audio)
}

func (s *Server) handleAttemptAudio(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.db.GetAttempt(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serverError(w, "failed to load attempt audio", err)
		return
	}
	if attempt == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", attempt.MimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(attempt.Audio)
}

// handleStarAward records a writing-game result for the active profile.
func (s *Server) handleStarAward(w http.ResponseWriter, r *http.Request) {
	cardKey := r.PostFormValue("card_key")
	if cardKey == "" {
		http.Error(w, "card_key is required", http.StatusBadRequest)
		return
	}
	mistakes, err := strconv.Atoi(r.PostFormValue("mistakes"))
	if err != nil || mistakes < 0 {
		http.Error(w, "Invalid mistake count", http.StatusBadRequest)
		return
	}

	active := s.profiles.Active()
	earned, err := s.profiles.AwardStars(r.Context(), active.ID, cardKey, mistakes)
	if err != nil {
		s.serverError(w, "failed to record stars", err)
		return
	}
	s.render(w, "star_row", map[string]any{"Stars": earned})
}
