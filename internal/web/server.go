// Package web serves the HTMX UI: flashcard practice, lesson editing,
// dictionary search, profiles and lesson-pack management.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wisemama/wisemama/internal/dictionary"
	"github.com/wisemama/wisemama/internal/lessons"
	"github.com/wisemama/wisemama/internal/packsync"
	"github.com/wisemama/wisemama/internal/practice"
	"github.com/wisemama/wisemama/internal/profile"
	"github.com/wisemama/wisemama/internal/storage"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	lessons   *lessons.Service
	dict      *dictionary.Dictionary
	profiles  *profile.Service
	panel     *practice.Panel
	syncer    *packsync.Syncer
	templates *template.Template
	router    *http.ServeMux
	logger    *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(
	db *storage.DB,
	lessonSvc *lessons.Service,
	dict *dictionary.Dictionary,
	profileSvc *profile.Service,
	panel *practice.Panel,
	syncer *packsync.Syncer,
	logger *slog.Logger,
) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		db:        db,
		lessons:   lessonSvc,
		dict:      dict,
		profiles:  profileSvc,
		panel:     panel,
		syncer:    syncer,
		templates: tpl,
		router:    http.NewServeMux(),
		logger:    logger,
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to mount static assets: %w", err)
	}
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.HandleFunc("GET /{$}", s.handleHome)

	// Flashcard practice
	s.router.HandleFunc("GET /flashcards", s.handleFlashcards)
	s.router.HandleFunc("GET /write", s.handleWriting)
	s.router.HandleFunc("GET /practice/panel", s.handlePracticePanel)
	s.router.HandleFunc("POST /practice/select", s.handlePracticeSelect)
	s.router.HandleFunc("POST /practice/record/{role}/start", s.handleRecordStart)
	s.router.HandleFunc("POST /practice/record/{role}/stop", s.handleRecordStop)
	s.router.HandleFunc("POST /practice/record/{role}/clear", s.handleRecordClear)
	s.router.HandleFunc("POST /practice/model/save", s.handleModelSave)
	s.router.HandleFunc("POST /practice/model/confirm", s.handleModelConfirm)
	s.router.HandleFunc("POST /practice/model/cancel", s.handleModelCancel)
	s.router.HandleFunc("POST /practice/attempt/save", s.handleAttemptSave)
	s.router.HandleFunc("POST /practice/filter", s.handlePracticeFilter)
	s.router.HandleFunc("GET /practice/meter", s.handleMeter)

	// Stored audio blobs
	s.router.HandleFunc("GET /audio/model/{cardKey}", s.handleModelAudio)
	s.router.HandleFunc("GET /audio/attempt/{id}", s.handleAttemptAudio)

	// Lesson editing and import
	s.router.HandleFunc("GET /lessons", s.handleLessonsPage)
	s.router.HandleFunc("POST /lessons", s.handleLessonAdd)
	s.router.HandleFunc("DELETE /lessons/{id}", s.handleLessonDelete)
	s.router.HandleFunc("POST /lessons/{id}/title", s.handleLessonTitle)
	s.router.HandleFunc("POST /lessons/{id}/cards", s.handleCardAdd)
	s.router.HandleFunc("POST /lessons/{id}/cards/{cardID}", s.handleCardUpdate)
	s.router.HandleFunc("DELETE /lessons/{id}/cards/{cardID}", s.handleCardDelete)
	s.router.HandleFunc("POST /lessons/{id}/cards/{cardID}/move", s.handleCardMove)
	s.router.HandleFunc("POST /import", s.handleImport)

	// Dictionary
	s.router.HandleFunc("GET /dictionary", s.handleDictionary)

	// Profiles, mode and stars
	s.router.HandleFunc("GET /profiles", s.handleProfilesPage)
	s.router.HandleFunc("POST /profiles", s.handleProfileCreate)
	s.router.HandleFunc("POST /profiles/{id}/activate", s.handleProfileActivate)
	s.router.HandleFunc("POST /profiles/{id}/randomize", s.handleProfileRandomize)
	s.router.HandleFunc("POST /mode", s.handleModeSwitch)
	s.router.HandleFunc("POST /stars", s.handleStarAward)

	// Lesson-pack sources
	s.router.HandleFunc("GET /packs", s.handlePacksPage)
	s.router.HandleFunc("POST /packs", s.handlePackAdd)
	s.router.HandleFunc("DELETE /packs/{id}", s.handlePackDelete)
	s.router.HandleFunc("POST /sync", s.handleSync)

	return nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/flashcards", http.StatusSeeOther)
}

// render executes a named template, logging instead of half-writing an
// error page when rendering fails mid-stream.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// baseData is the navigation context every full page gets.
type baseData struct {
	Active     string
	Mode       profile.Role
	ParentMode bool
	Profile    profile.Profile
	AvatarURL  string
}

func (s *Server) base(active string) baseData {
	p := s.profiles.Active()
	mode := s.profiles.Mode()
	return baseData{
		Active:     active,
		Mode:       mode,
		ParentMode: mode == profile.RoleParent,
		Profile:    p,
		AvatarURL:  profile.AvatarURL(p.Avatar),
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"fmtDuration": func(ms int64) string {
			return fmt.Sprintf("%.1fs", float64(ms)/1000)
		},
		"fmtScore": func(score *float64) string {
			if score == nil {
				return "–"
			}
			return fmt.Sprintf("%d%%", int(*score*100+0.5))
		},
		"fmtTime": func(stamp string) string {
			t, err := time.Parse(time.RFC3339, stamp)
			if err != nil {
				return stamp
			}
			return t.Local().Format("Jan 2 15:04")
		},
		"stars": func(n int) string {
			if n < 0 {
				n = 0
			}
			if n > profile.MaxStars {
				n = profile.MaxStars
			}
			return strings.Repeat("★", n) + strings.Repeat("☆", profile.MaxStars-n)
		},
		"wavePct": func(level float64) int {
			pct := int(level * 100)
			if pct < 4 {
				pct = 4
			}
			if pct > 100 {
				pct = 100
			}
			return pct
		},
	}
}
