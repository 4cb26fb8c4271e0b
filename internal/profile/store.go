package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Store holds registered profiles. All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile
	order     []string
	builtins  map[string]bool
	defaultID string
}

// NewStore creates a store pre-populated with the built-in profiles.
func NewStore() *Store {
	s := &Store{
		profiles: make(map[string]*Profile),
		builtins: make(map[string]bool),
	}
	for _, p := range builtinProfiles() {
		stored := p.clone()
		s.profiles[p.ID] = stored
		s.order = append(s.order, p.ID)
		s.builtins[p.ID] = true
	}
	s.defaultID = DefaultID
	return s
}

// Register validates and adds a new profile. The stored copy is detached
// from the caller's slices and maps.
func (s *Store) Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
	}

	s.profiles[p.ID] = p.clone()
	s.order = append(s.order, p.ID)
	return nil
}

// Get returns the profile with the given id.
func (s *Store) Get(id string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// List returns all profiles in registration order.
func (s *Store) List() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id])
	}
	return out
}

// Remove deletes a user profile. Built-ins and the current default cannot
// be removed.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if s.builtins[id] {
		return fmt.Errorf("%w: %q is a built-in profile", ErrInvalidParameters, id)
	}
	if id == s.defaultID {
		return fmt.Errorf("%w: %q is the default profile", ErrInvalidParameters, id)
	}

	delete(s.profiles, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetDefault selects the profile new sessions start with.
func (s *Store) SetDefault(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.defaultID = id
	return nil
}

// Default returns the current default profile.
func (s *Store) Default() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[s.defaultID]
}

// Search returns profiles whose id, display name, or description contains
// the query, case-insensitively, in registration order. An empty query
// matches everything.
func (s *Store) Search(query string) []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(query)
	var out []*Profile
	for _, id := range s.order {
		p := s.profiles[id]
		if strings.Contains(strings.ToLower(p.ID), query) ||
			strings.Contains(strings.ToLower(p.DisplayName), query) ||
			strings.Contains(strings.ToLower(p.Description), query) {
			out = append(out, p)
		}
	}
	return out
}

// SaveUserProfiles writes all non-built-in profiles to a JSON file.
func (s *Store) SaveUserProfiles(path string) error {
	s.mu.RLock()
	user := make(map[string]*Profile)
	for _, id := range s.order {
		if !s.builtins[id] {
			user[id] = s.profiles[id]
		}
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user profiles: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write user profiles: %w", err)
	}
	return nil
}

// LoadUserProfiles reads profiles from a JSON file written by
// SaveUserProfiles and registers them. Entries colliding with built-in ids
// are rejected; entries colliding with existing user profiles replace them.
func (s *Store) LoadUserProfiles(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read user profiles: %w", err)
	}

	var loaded map[string]Profile
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse user profiles: %w", err)
	}

	for id, p := range loaded {
		if p.ID == "" {
			p.ID = id
		}
		if p.ID != id {
			return fmt.Errorf("%w: entry %q declares id %q", ErrInvalidParameters, id, p.ID)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range loaded {
		if s.builtins[id] {
			return fmt.Errorf("%w: %q is a built-in profile", ErrDuplicateID, id)
		}
		if _, exists := s.profiles[id]; !exists {
			s.order = append(s.order, id)
		}
		s.profiles[id] = p.clone()
	}
	return nil
}
