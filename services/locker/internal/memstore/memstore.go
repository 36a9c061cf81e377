// Package memstore is the in-memory locker repository used for tests and
// single-node development runs.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"trustgate/pkg/domain"
	"trustgate/services/locker/internal/locker"
)

type Store struct {
	mu        sync.Mutex
	artifacts map[string]domain.EvidenceArtifact
}

func New() *Store {
	return &Store{artifacts: make(map[string]domain.EvidenceArtifact)}
}

func (s *Store) Insert(ctx context.Context, a domain.EvidenceArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[a.ArtifactID]; exists {
		return domain.StateConflict("DUPLICATE_ID", "artifact id already exists")
	}
	s.artifacts[a.ArtifactID] = a.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.EvidenceArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return domain.EvidenceArtifact{}, domain.NotFound("artifact", id)
	}
	return a.Clone(), nil
}

// Update runs fn on a working copy under the store mutex and commits only
// when fn succeeds, so failed mutations leave no trace.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.EvidenceArtifact) error) (domain.EvidenceArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return domain.EvidenceArtifact{}, domain.NotFound("artifact", id)
	}
	work := a.Clone()
	if err := fn(&work); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	s.artifacts[id] = work.Clone()
	return work, nil
}

// UpdateMany holds every requested artifact at once; missing ids surface
// to fn as absent map entries so it can fail the whole batch.
func (s *Store) UpdateMany(ctx context.Context, ids []string, fn func(map[string]*domain.EvidenceArtifact) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := make(map[string]*domain.EvidenceArtifact, len(ids))
	for _, id := range ids {
		if a, ok := s.artifacts[id]; ok {
			c := a.Clone()
			work[id] = &c
		}
	}
	if err := fn(work); err != nil {
		return err
	}
	for id, a := range work {
		s.artifacts[id] = a.Clone()
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q locker.Query) (locker.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.EvidenceArtifact
	for _, a := range s.artifacts {
		if !matches(a, q) {
			continue
		}
		matched = append(matched, a.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ArtifactID > matched[j].ArtifactID
	})

	total := len(matched)
	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil || n < 0 {
			return locker.QueryResult{}, domain.Validation("BAD_CURSOR", "cursor is not valid")
		}
		offset = n
	}
	if offset > total {
		offset = total
	}
	end := offset + q.Limit
	if end > total {
		end = total
	}
	res := locker.QueryResult{
		Artifacts:  matched[offset:end],
		TotalCount: total,
	}
	if res.Artifacts == nil {
		res.Artifacts = []domain.EvidenceArtifact{}
	}
	if end < total {
		res.NextCursor = strconv.Itoa(end)
	}
	return res, nil
}

func matches(a domain.EvidenceArtifact, q locker.Query) bool {
	if a.TenantID != q.TenantID {
		return false
	}
	if q.WorkspaceID != "" && a.WorkspaceID != q.WorkspaceID {
		return false
	}
	if q.ProjectID != "" && a.ProjectID != q.ProjectID {
		return false
	}
	if len(q.Types) > 0 && !containsType(q.Types, a.Type) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, a.Status) {
		return false
	}
	if q.CreatedAfter != nil && a.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && a.CreatedAt.After(*q.CreatedBefore) {
		return false
	}
	return true
}

func containsType(ts []domain.ArtifactType, t domain.ArtifactType) bool {
	for _, have := range ts {
		if have == t {
			return true
		}
	}
	return false
}

func containsStatus(ss []domain.ArtifactStatus, s domain.ArtifactStatus) bool {
	for _, have := range ss {
		if have == s {
			return true
		}
	}
	return false
}

func (s *Store) Stats(ctx context.Context) (locker.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := locker.Stats{
		Total:    len(s.artifacts),
		ByStatus: map[string]int{"pending": 0, "verified": 0, "superseded": 0, "redacted": 0},
		ByType:   map[string]int{},
	}
	for _, a := range s.artifacts {
		st.ByStatus[string(a.Status)]++
		st.ByType[string(a.Type)]++
	}
	return st, nil
}

// Blobs is the in-memory blob store backing export scanning.
type Blobs struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewBlobs() *Blobs {
	return &Blobs{m: make(map[string][]byte)}
}

func (b *Blobs) Put(ctx context.Context, uri string, content []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[uri] = append([]byte(nil), content...)
	return nil
}

func (b *Blobs) Get(ctx context.Context, uri string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.m[uri]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), c...), true, nil
}
