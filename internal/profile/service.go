package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/wisemama/wisemama/internal/storage"
)

// Role distinguishes the two app experiences.
type Role string

const (
	RoleChild  Role = "child"
	RoleParent Role = "parent"
)

// MaxStars is the ceiling for stars earned on one card.
const MaxStars = 3

// DefaultChildID keys star maps migrated from the pre-profile schema.
const DefaultChildID = "child-default"

// ErrNotFound is returned for unknown profile ids.
var ErrNotFound = errors.New("profile: not found")

// Profile is one named user of the app.
type Profile struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Role   Role         `json:"role"`
	Avatar AvatarConfig `json:"avatar"`
}

// StateStore is the persistence contract for app-state JSON documents.
// *storage.DB satisfies it.
type StateStore interface {
	GetState(ctx context.Context, key string) ([]byte, error)
	PutState(ctx context.Context, key string, value []byte) error
}

type profilesDoc struct {
	Profiles        []Profile `json:"profiles"`
	ActiveProfileID string    `json:"activeProfileId"`
}

type progressDoc struct {
	StarsByProfile map[string]map[string]int `json:"starsByProfile"`
	// Pre-profile schema: one flat card-to-stars map.
	StarsByCard map[string]int `json:"starsByCard,omitempty"`
}

// Service owns profiles, the active mode and star progress.
type Service struct {
	store  StateStore
	logger *slog.Logger

	mu       sync.Mutex
	profiles []Profile
	activeID string
	mode     Role
	stars    map[string]map[string]int
}

// NewService creates a profile service over store.
func NewService(store StateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
		mode:   RoleChild,
		stars:  map[string]map[string]int{},
	}
}

// Load reads profiles, mode and progress from the store. Missing or
// unreadable documents fall back to a fresh default pair of profiles,
// child mode, and empty progress. A legacy flat star map is migrated
// to the default child profile.
func (s *Service) Load(ctx context.Context) error {
	if err := s.loadProfiles(ctx); err != nil {
		return err
	}
	if err := s.loadMode(ctx); err != nil {
		return err
	}
	return s.loadProgress(ctx)
}

func (s *Service) loadProfiles(ctx context.Context) error {
	data, err := s.store.GetState(ctx, storage.StateProfiles)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	var doc profilesDoc
	if data != nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.Warn("stored profiles unreadable, starting fresh", "error", err)
			doc = profilesDoc{}
		}
	}
	if len(doc.Profiles) == 0 {
		doc.Profiles = []Profile{
			{ID: DefaultChildID, Name: "Mei", Role: RoleChild, Avatar: DefaultAvatar("kid")},
			{ID: "parent-default", Name: "Parent", Role: RoleParent, Avatar: DefaultAvatar("parent")},
		}
		doc.ActiveProfileID = DefaultChildID
	}
	for i := range doc.Profiles {
		doc.Profiles[i].Avatar = Sanitize(doc.Profiles[i].Avatar, string(doc.Profiles[i].Role))
	}

	s.mu.Lock()
	s.profiles = doc.Profiles
	s.activeID = doc.ActiveProfileID
	s.mu.Unlock()
	return nil
}

func (s *Service) loadMode(ctx context.Context) error {
	data, err := s.store.GetState(ctx, storage.StateMode)
	if err != nil {
		return fmt.Errorf("failed to load mode: %w", err)
	}
	mode := RoleChild
	if m := Role(data); m == RoleChild || m == RoleParent {
		mode = m
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

func (s *Service) loadProgress(ctx context.Context) error {
	data, err := s.store.GetState(ctx, storage.StateProgress)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	stars := map[string]map[string]int{}
	if data != nil {
		var doc progressDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.Warn("stored progress unreadable, starting fresh", "error", err)
		} else if doc.StarsByProfile != nil {
			stars = doc.StarsByProfile
		} else if doc.StarsByCard != nil {
			stars[DefaultChildID] = doc.StarsByCard
		}
	}

	s.mu.Lock()
	s.stars = stars
	s.mu.Unlock()
	return nil
}

// Profiles returns a copy of all profiles.
func (s *Service) Profiles() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Profile(nil), s.profiles...)
}

// Profile returns one profile by id.
func (s *Service) Profile(id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

// Active returns the active profile. When no profile is selected the
// first profile matching the current mode is used.
func (s *Service) Active() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.ID == s.activeID {
			return p
		}
	}
	for _, p := range s.profiles {
		if p.Role == s.mode {
			return p
		}
	}
	if len(s.profiles) > 0 {
		return s.profiles[0]
	}
	return Profile{ID: DefaultChildID, Role: RoleChild}
}

// SetActive selects a profile and switches the mode to its role.
func (s *Service) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	var found *Profile
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			found = &s.profiles[i]
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.activeID = id
	s.mode = found.Role
	mode := s.mode
	s.mu.Unlock()

	if err := s.persistProfiles(ctx); err != nil {
		return err
	}
	return s.store.PutState(ctx, storage.StateMode, []byte(mode))
}

// Create adds a profile with a fresh random avatar and returns it.
func (s *Service) Create(ctx context.Context, name string, role Role) (Profile, error) {
	if role != RoleChild && role != RoleParent {
		role = RoleChild
	}
	p := Profile{
		ID:     "profile-" + uuid.NewString(),
		Name:   name,
		Role:   role,
		Avatar: RandomAvatar(string(role), DefaultStyle),
	}

	s.mu.Lock()
	s.profiles = append(s.profiles, p)
	s.mu.Unlock()

	if err := s.persistProfiles(ctx); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UpdateAvatar replaces a profile's avatar after sanitizing it.
func (s *Service) UpdateAvatar(ctx context.Context, id string, cfg AvatarConfig) error {
	s.mu.Lock()
	updated := false
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			s.profiles[i].Avatar = Sanitize(cfg, string(s.profiles[i].Role))
			updated = true
			break
		}
	}
	s.mu.Unlock()

	if !updated {
		return ErrNotFound
	}
	return s.persistProfiles(ctx)
}

// RandomizeAvatar rolls a new random avatar for a profile, keeping its
// current style.
func (s *Service) RandomizeAvatar(ctx context.Context, id string) error {
	s.mu.Lock()
	updated := false
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			style := s.profiles[i].Avatar.Style
			s.profiles[i].Avatar = RandomAvatar(string(s.profiles[i].Role), style)
			updated = true
			break
		}
	}
	s.mu.Unlock()

	if !updated {
		return ErrNotFound
	}
	return s.persistProfiles(ctx)
}

// Mode returns the active mode.
func (s *Service) Mode() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches between the child and parent experience.
func (s *Service) SetMode(ctx context.Context, mode Role) error {
	if mode != RoleChild && mode != RoleParent {
		return fmt.Errorf("unknown mode %q", mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return s.store.PutState(ctx, storage.StateMode, []byte(mode))
}

// Stars returns a copy of the card-to-stars map for one profile.
func (s *Service) Stars(profileID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for k, v := range s.stars[profileID] {
		out[k] = v
	}
	return out
}

// AwardStars records a completed card. Zero mistakes earns three
// stars, one mistake two, anything more one. A lower result never
// overwrites a better earlier one.
func (s *Service) AwardStars(ctx context.Context, profileID, cardKey string, mistakes int) (int, error) {
	earned := 1
	switch mistakes {
	case 0:
		earned = MaxStars
	case 1:
		earned = 2
	}

	s.mu.Lock()
	m := s.stars[profileID]
	if m == nil {
		m = map[string]int{}
		s.stars[profileID] = m
	}
	if earned > m[cardKey] {
		m[cardKey] = earned
	}
	kept := m[cardKey]
	s.mu.Unlock()

	return kept, s.persistProgress(ctx)
}

// ResetCards clears the stars a profile earned on the given cards, so
// a lesson can be replayed from scratch.
func (s *Service) ResetCards(ctx context.Context, profileID string, cardKeys []string) error {
	s.mu.Lock()
	if m := s.stars[profileID]; m != nil {
		for _, key := range cardKeys {
			delete(m, key)
		}
	}
	s.mu.Unlock()
	return s.persistProgress(ctx)
}

func (s *Service) persistProfiles(ctx context.Context) error {
	s.mu.Lock()
	doc := profilesDoc{Profiles: s.profiles, ActiveProfileID: s.activeID}
	data, err := json.Marshal(doc)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	if err := s.store.PutState(ctx, storage.StateProfiles, data); err != nil {
		return fmt.Errorf("failed to persist profiles: %w", err)
	}
	return nil
}

func (s *Service) persistProgress(ctx context.Context) error {
	s.mu.Lock()
	data, err := json.Marshal(progressDoc{StarsByProfile: s.stars})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := s.store.PutState(ctx, storage.StateProgress, data); err != nil {
		return fmt.Errorf("failed to persist progress: %w", err)
	}
	return nil
}
