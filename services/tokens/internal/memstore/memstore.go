// Package memstore holds tokens and access logs in process memory.
package memstore

import (
	"context"
	"sync"

	"trustgate/pkg/domain"
	"trustgate/services/tokens/internal/tokens"
)

type Store struct {
	mu sync.Mutex
	m  map[string]domain.SecureDropToken
}

func New() *Store {
	return &Store{m: make(map[string]domain.SecureDropToken)}
}

func (s *Store) Insert(ctx context.Context, t domain.SecureDropToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[t.TokenID]; ok {
		return domain.StateConflict("DUPLICATE_ID", "token "+t.TokenID+" already exists")
	}
	s.m[t.TokenID] = t.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.SecureDropToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[id]
	if !ok {
		return domain.SecureDropToken{}, domain.NotFound("token", id)
	}
	return t.Clone(), nil
}

func (s *Store) Update(ctx context.Context, id string, fn func(*domain.SecureDropToken) error) (domain.SecureDropToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[id]
	if !ok {
		return domain.SecureDropToken{}, domain.NotFound("token", id)
	}
	work := t.Clone()
	if err := fn(&work); err != nil {
		return domain.SecureDropToken{}, err
	}
	s.m[id] = work.Clone()
	return work, nil
}

func (s *Store) Rotate(ctx context.Context, oldID string, revokeOld func(*domain.SecureDropToken) error, replacement domain.SecureDropToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.m[oldID]
	if !ok {
		return domain.NotFound("token", oldID)
	}
	if _, ok := s.m[replacement.TokenID]; ok {
		return domain.StateConflict("DUPLICATE_ID", "token "+replacement.TokenID+" already exists")
	}
	work := old.Clone()
	if err := revokeOld(&work); err != nil {
		return err
	}
	s.m[oldID] = work.Clone()
	s.m[replacement.TokenID] = replacement.Clone()
	return nil
}

func (s *Store) Stats(ctx context.Context) (tokens.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := tokens.Stats{ByStatus: map[string]int{
		"active": 0, "expired": 0, "revoked": 0, "consumed": 0,
	}}
	for _, t := range s.m {
		st.Total++
		st.ByStatus[string(t.Status)]++
	}
	return st, nil
}

// AccessLogs is the in-memory access log, append-only per token.
type AccessLogs struct {
	mu sync.Mutex
	m  map[string][]domain.SDTAccessLog
}

func NewAccessLogs() *AccessLogs {
	return &AccessLogs{m: make(map[string][]domain.SDTAccessLog)}
}

func (l *AccessLogs) Append(ctx context.Context, e domain.SDTAccessLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[e.TokenID] = append(l.m[e.TokenID], e)
	return nil
}

func (l *AccessLogs) List(ctx context.Context, tokenID string) ([]domain.SDTAccessLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.SDTAccessLog, len(l.m[tokenID]))
	copy(out, l.m[tokenID])
	return out, nil
}
