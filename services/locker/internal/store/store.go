// Package store is the Postgres locker repository.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustgate/pkg/domain"
	"trustgate/services/locker/internal/locker"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const artifactCols = `artifact_id,tenant_id,workspace_id,project_id,type,label,content_hash,storage_uri,size_bytes,mime_type,status,created_by,created_at,custody_chain,retention,metadata`

func (s *Store) Insert(ctx context.Context, a domain.EvidenceArtifact) error {
	custody, err := json.Marshal(a.CustodyChain)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO artifacts(`+artifactCols+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15,$16::jsonb)
`, a.ArtifactID, a.TenantID, a.WorkspaceID, a.ProjectID, a.Type, a.Label, a.ContentHash,
		a.StorageURI, a.SizeBytes, a.MimeType, a.Status, a.CreatedBy, a.CreatedAt,
		string(custody), a.Retention, string(meta))
	return err
}

func (s *Store) Get(ctx context.Context, id string) (domain.EvidenceArtifact, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE artifact_id=$1`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EvidenceArtifact{}, domain.NotFound("artifact", id)
	}
	return a, err
}

// Update runs fn on the row while it is locked, so custody appends and
// status transitions on one artifact are serialized.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.EvidenceArtifact) error) (domain.EvidenceArtifact, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return domain.EvidenceArtifact{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE artifact_id=$1 FOR UPDATE`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EvidenceArtifact{}, domain.NotFound("artifact", id)
	}
	if err != nil {
		return domain.EvidenceArtifact{}, err
	}
	if err := fn(&a); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	if err := writeArtifactTx(ctx, tx, a); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	return a, nil
}

// UpdateMany locks every artifact in id order before fn runs; missing ids
// are absent from the map fn receives.
func (s *Store) UpdateMany(ctx context.Context, ids []string, fn func(map[string]*domain.EvidenceArtifact) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	byID := make(map[string]*domain.EvidenceArtifact, len(ordered))
	for _, id := range ordered {
		row := tx.QueryRow(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE artifact_id=$1 FOR UPDATE`, id)
		a, err := scanArtifact(row)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		byID[id] = &a
	}
	if err := fn(byID); err != nil {
		return err
	}
	for _, a := range byID {
		if err := writeArtifactTx(ctx, tx, *a); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func writeArtifactTx(ctx context.Context, tx pgx.Tx, a domain.EvidenceArtifact) error {
	custody, err := json.Marshal(a.CustodyChain)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE artifacts
SET status=$2, custody_chain=$3::jsonb, metadata=$4::jsonb
WHERE artifact_id=$1
`, a.ArtifactID, a.Status, string(custody), string(meta))
	return err
}

func (s *Store) Query(ctx context.Context, q locker.Query) (locker.QueryResult, error) {
	sql := `SELECT ` + artifactCols + `, count(*) OVER() AS total FROM artifacts WHERE tenant_id=$1`
	args := []any{q.TenantID}
	n := 1
	add := func(clause string, v any) {
		n++
		sql += fmt.Sprintf(" AND %s$%d", clause, n)
		args = append(args, v)
	}
	if q.WorkspaceID != "" {
		add("workspace_id=", q.WorkspaceID)
	}
	if q.ProjectID != "" {
		add("project_id=", q.ProjectID)
	}
	if len(q.Types) > 0 {
		add("type = ANY(", q.Types)
		sql += ")"
	}
	if len(q.Statuses) > 0 {
		add("status = ANY(", q.Statuses)
		sql += ")"
	}
	if q.CreatedAfter != nil {
		add("created_at >= ", *q.CreatedAfter)
	}
	if q.CreatedBefore != nil {
		add("created_at <= ", *q.CreatedBefore)
	}
	offset := 0
	if q.Cursor != "" {
		if _, err := fmt.Sscanf(q.Cursor, "%d", &offset); err != nil || offset < 0 {
			return locker.QueryResult{}, domain.Validation("BAD_CURSOR", "cursor is not valid")
		}
	}
	sql += fmt.Sprintf(" ORDER BY created_at DESC, artifact_id DESC LIMIT %d OFFSET %d", q.Limit, offset)

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return locker.QueryResult{}, err
	}
	defer rows.Close()

	res := locker.QueryResult{Artifacts: []domain.EvidenceArtifact{}}
	for rows.Next() {
		a, total, err := scanArtifactWithTotal(rows)
		if err != nil {
			return locker.QueryResult{}, err
		}
		res.TotalCount = total
		res.Artifacts = append(res.Artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return locker.QueryResult{}, err
	}
	if offset+len(res.Artifacts) < res.TotalCount {
		res.NextCursor = fmt.Sprintf("%d", offset+len(res.Artifacts))
	}
	return res, nil
}

func (s *Store) Stats(ctx context.Context) (locker.Stats, error) {
	st := locker.Stats{
		ByStatus: map[string]int{"pending": 0, "verified": 0, "superseded": 0, "redacted": 0},
		ByType:   map[string]int{},
	}
	rows, err := s.DB.Query(ctx, `SELECT status, type, count(*) FROM artifacts GROUP BY status, type`)
	if err != nil {
		return locker.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, typ string
		var count int
		if err := rows.Scan(&status, &typ, &count); err != nil {
			return locker.Stats{}, err
		}
		st.ByStatus[status] += count
		st.ByType[typ] += count
		st.Total += count
	}
	return st, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanArtifact(row rowScanner) (domain.EvidenceArtifact, error) {
	var a domain.EvidenceArtifact
	var custody, meta []byte
	err := row.Scan(&a.ArtifactID, &a.TenantID, &a.WorkspaceID, &a.ProjectID, &a.Type, &a.Label,
		&a.ContentHash, &a.StorageURI, &a.SizeBytes, &a.MimeType, &a.Status, &a.CreatedBy,
		&a.CreatedAt, &custody, &a.Retention, &meta)
	if err != nil {
		return domain.EvidenceArtifact{}, err
	}
	if err := json.Unmarshal(custody, &a.CustodyChain); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return domain.EvidenceArtifact{}, err
		}
	}
	return a, nil
}

func scanArtifactWithTotal(row rowScanner) (domain.EvidenceArtifact, int, error) {
	var a domain.EvidenceArtifact
	var custody, meta []byte
	var total int
	err := row.Scan(&a.ArtifactID, &a.TenantID, &a.WorkspaceID, &a.ProjectID, &a.Type, &a.Label,
		&a.ContentHash, &a.StorageURI, &a.SizeBytes, &a.MimeType, &a.Status, &a.CreatedBy,
		&a.CreatedAt, &custody, &a.Retention, &meta, &total)
	if err != nil {
		return domain.EvidenceArtifact{}, 0, err
	}
	if err := json.Unmarshal(custody, &a.CustodyChain); err != nil {
		return domain.EvidenceArtifact{}, 0, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return domain.EvidenceArtifact{}, 0, err
		}
	}
	return a, total, nil
}

// Blobs reads and writes artifact content rows for export scanning.
type Blobs struct{ DB *pgxpool.Pool }

func NewBlobs(db *pgxpool.Pool) *Blobs { return &Blobs{DB: db} }

func (b *Blobs) Put(ctx context.Context, uri string, content []byte) error {
	_, err := b.DB.Exec(ctx, `
INSERT INTO artifact_blobs(storage_uri,content) VALUES($1,$2)
ON CONFLICT (storage_uri) DO NOTHING
`, uri, content)
	return err
}

func (b *Blobs) Get(ctx context.Context, uri string) ([]byte, bool, error) {
	var content []byte
	err := b.DB.QueryRow(ctx, `SELECT content FROM artifact_blobs WHERE storage_uri=$1`, uri).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}
