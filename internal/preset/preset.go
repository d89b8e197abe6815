// Package preset stores named poses. Presets live on the controller side: the head
// is only ever driven by velocity, so recalling one is an ordinary absolute move.
package preset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ptzctl/internal/ptz"
)

var (
	ErrNotFound    = errors.New("preset: not found")
	ErrInvalidName = errors.New("preset: invalid name")
)

// Entry is one named pose.
type Entry struct {
	Name string   `json:"name"`
	Pose ptz.Pose `json:"pose"`
}

// Store persists presets.
type Store interface {
	Save(ctx context.Context, name string, p ptz.Pose) error
	Load(ctx context.Context, name string) (ptz.Pose, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Entry, error)
}

// MemoryStore is a Store held in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	presets map[string]ptz.Pose
}

// NewMemoryStore returns a store seeded with the given presets.
func NewMemoryStore(seed map[string]ptz.Pose) (*MemoryStore, error) {
	s := &MemoryStore{presets: make(map[string]ptz.Pose, len(seed))}
	for name, p := range seed {
		n, err := normalize(name)
		if err != nil {
			return nil, err
		}
		s.presets[n] = p
	}
	return s, nil
}

func normalize(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" || len(n) > 64 || strings.ContainsAny(n, "/?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return n, nil
}

func (s *MemoryStore) Save(ctx context.Context, name string, p ptz.Pose) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.presets[n] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, name string) (ptz.Pose, error) {
	n, err := normalize(name)
	if err != nil {
		return ptz.Pose{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[n]
	if !ok {
		return ptz.Pose{}, fmt.Errorf("%w: %q", ErrNotFound, n)
	}
	return p, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[n]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, n)
	}
	delete(s.presets, n)
	return nil
}

// List returns every preset sorted by name.
func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.presets))
	for n, p := range s.presets {
		out = append(out, Entry{Name: n, Pose: p})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
