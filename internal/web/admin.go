package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wisemama/wisemama/internal/profile"
	"github.com/wisemama/wisemama/internal/storage"
)

type profileView struct {
	profile.Profile
	AvatarURL string
	Active    bool
}

type profilesPageData struct {
	baseData
	Profiles []profileView
}

func (s *Server) profileViews() []profileView {
	active := s.profiles.Active()
	var views []profileView
	for _, p := range s.profiles.Profiles() {
		views = append(views, profileView{
			Profile:   p,
			AvatarURL: profile.AvatarURL(p.Avatar),
			Active:    p.ID == active.ID,
		})
	}
	return views
}

func (s *Server) handleProfilesPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "profiles", profilesPageData{
		baseData: s.base("profiles"),
		Profiles: s.profileViews(),
	})
}

func (s *Server) renderProfileList(w http.ResponseWriter) {
	s.render(w, "profile_list", map[string]any{"Profiles": s.profileViews()})
}

func (s *Server) handleProfileCreate(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PostFormValue("name"))
	if name == "" {
		http.Error(w, "Name cannot be empty", http.StatusBadRequest)
		return
	}
	role := profile.RoleChild
	if r.PostFormValue("role") == string(profile.RoleParent) {
		role = profile.RoleParent
	}
	if _, err := s.profiles.Create(r.Context(), name, role); err != nil {
		s.serverError(w, "failed to create profile", err)
		return
	}
	s.renderProfileList(w)
}

func (s *Server) handleProfileActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.SetActive(r.Context(), r.PathValue("id")); err != nil {
		http.Error(w, "Unknown profile", http.StatusNotFound)
		return
	}
	// The whole chrome changes with the mode, so reload the page.
	w.Header().Set("HX-Redirect", "/flashcards")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfileRandomize(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.RandomizeAvatar(r.Context(), r.PathValue("id")); err != nil {
		http.Error(w, "Unknown profile", http.StatusNotFound)
		return
	}
	s.renderProfileList(w)
}

func (s *Server) handleModeSwitch(w http.ResponseWriter, r *http.Request) {
	mode := profile.Role(r.PostFormValue("mode"))
	if err := s.profiles.SetMode(r.Context(), mode); err != nil {
		http.Error(w, "Unknown mode", http.StatusBadRequest)
		return
	}
	w.Header().Set("HX-Redirect", "/flashcards")
	w.WriteHeader(http.StatusNoContent)
}

type packsPageData struct {
	baseData
	Sources []storage.PackSource
}

func (s *Server) handlePacksPage(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllPackSources(r.Context())
	if err != nil {
		s.serverError(w, "failed to list pack sources", err)
		return
	}
	s.render(w, "packs", packsPageData{baseData: s.base("packs"), Sources: sources})
}

func (s *Server) renderPackList(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllPackSources(r.Context())
	if err != nil {
		s.serverError(w, "failed to list pack sources", err)
		return
	}
	s.render(w, "pack_list", map[string]any{"Sources": sources})
}

func (s *Server) handlePackAdd(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.PostFormValue("path"))
	if path == "" {
		http.Error(w, "Path cannot be empty", http.StatusBadRequest)
		return
	}

	kind := "local"
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") {
		kind = "git"
	}

	if _, err := s.db.InsertPackSource(r.Context(), path, kind); err != nil {
		s.serverError(w, "failed to add pack source", err)
		return
	}
	s.renderPackList(w, r)
}

func (s *Server) handlePackDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid pack source ID", http.StatusBadRequest)
		return
	}
	if err := s.db.DeletePackSource(r.Context(), id); err != nil {
		s.serverError(w, "failed to delete pack source", err)
		return
	}
	s.renderPackList(w, r)
}

// handleSync runs a pack sync in the foreground so the refreshed list
// reflects the new lessons.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.syncer.Run(r.Context())
	if err != nil {
		s.serverError(w, "pack sync failed", err)
		return
	}
	s.render(w, "sync_result", map[string]any{
		"Sources":  res.Sources,
		"Lessons":  res.Lessons,
		"Upserted": res.Upserted,
		"Errors":   len(res.Errors),
	})
	s.renderPackList(w, r)
}
