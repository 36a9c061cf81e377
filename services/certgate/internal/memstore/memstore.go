// Package memstore is the in-memory certgate repository used for tests
// and single-node development runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"trustgate/pkg/domain"
	"trustgate/services/certgate/internal/certgate"
)

type Store struct {
	mu    sync.Mutex
	plugs map[string]domain.PlugListing
}

func New() *Store {
	return &Store{plugs: make(map[string]domain.PlugListing)}
}

func (s *Store) Insert(ctx context.Context, p domain.PlugListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plugs[p.PlugID]; exists {
		return domain.StateConflict("DUPLICATE_ID", "plug id already exists")
	}
	s.plugs[p.PlugID] = p.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.PlugListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugs[id]
	if !ok {
		return domain.PlugListing{}, domain.NotFound("plug", id)
	}
	return p.Clone(), nil
}

// Update runs fn on a working copy under the store mutex and commits only
// when fn succeeds.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.PlugListing) error) (domain.PlugListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugs[id]
	if !ok {
		return domain.PlugListing{}, domain.NotFound("plug", id)
	}
	work := p.Clone()
	if err := fn(&work); err != nil {
		return domain.PlugListing{}, err
	}
	s.plugs[id] = work.Clone()
	return work, nil
}

func (s *Store) List(ctx context.Context, f certgate.ListFilter) ([]domain.PlugListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.PlugListing{}
	for _, p := range s.plugs {
		if f.CertifiedOnly && !p.Certification.Status.InstallAllowed() {
			continue
		}
		if f.Badge != "" && !hasBadge(p.Badges, f.Badge) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PlugID < out[j].PlugID
	})
	return out, nil
}

func hasBadge(badges []domain.Badge, b domain.Badge) bool {
	for _, have := range badges {
		if have == b {
			return true
		}
	}
	return false
}

func (s *Store) Stats(ctx context.Context) (certgate.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := certgate.Stats{
		TotalPlugs: len(s.plugs),
		ByStatus:   map[string]int{},
	}
	for _, p := range s.plugs {
		st.ByStatus[string(p.Certification.Status)]++
	}
	return st, nil
}

// Installs is the in-memory install attempt log.
type Installs struct {
	mu       sync.Mutex
	attempts []domain.InstallAttempt
}

func NewInstalls() *Installs { return &Installs{} }

func (l *Installs) Append(ctx context.Context, att domain.InstallAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, att)
	return nil
}

func (l *Installs) List(ctx context.Context, plugID string) ([]domain.InstallAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []domain.InstallAttempt{}
	for _, a := range l.attempts {
		if plugID == "" || a.PlugID == plugID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *Installs) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts), nil
}
