// Package store is the Postgres certgate repository.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustgate/pkg/domain"
	"trustgate/services/certgate/internal/certgate"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Insert(ctx context.Context, p domain.PlugListing) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO plugs(plug_id,status,category,created_at,doc)
VALUES($1,$2,$3,$4,$5::jsonb)
`, p.PlugID, p.Certification.Status, p.Category, p.CreatedAt, string(doc))
	return err
}

func (s *Store) Get(ctx context.Context, id string) (domain.PlugListing, error) {
	var doc []byte
	err := s.DB.QueryRow(ctx, `SELECT doc FROM plugs WHERE plug_id=$1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlugListing{}, domain.NotFound("plug", id)
	}
	if err != nil {
		return domain.PlugListing{}, err
	}
	var p domain.PlugListing
	if err := json.Unmarshal(doc, &p); err != nil {
		return domain.PlugListing{}, err
	}
	return p, nil
}

// Update locks the listing row for the duration of fn, so the evidence
// bag and badge set always change together.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.PlugListing) error) (domain.PlugListing, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return domain.PlugListing{}, err
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM plugs WHERE plug_id=$1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlugListing{}, domain.NotFound("plug", id)
	}
	if err != nil {
		return domain.PlugListing{}, err
	}
	var p domain.PlugListing
	if err := json.Unmarshal(doc, &p); err != nil {
		return domain.PlugListing{}, err
	}
	if err := fn(&p); err != nil {
		return domain.PlugListing{}, err
	}
	updated, err := json.Marshal(p)
	if err != nil {
		return domain.PlugListing{}, err
	}
	if _, err := tx.Exec(ctx, `
UPDATE plugs SET status=$2, category=$3, doc=$4::jsonb WHERE plug_id=$1
`, id, p.Certification.Status, p.Category, string(updated)); err != nil {
		return domain.PlugListing{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.PlugListing{}, err
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, f certgate.ListFilter) ([]domain.PlugListing, error) {
	q := `SELECT doc FROM plugs WHERE 1=1`
	args := []any{}
	if f.CertifiedOnly {
		q += ` AND status IN ('certified','exception_approved')`
	}
	if f.Category != "" {
		args = append(args, f.Category)
		q += ` AND category=$1`
	}
	q += ` ORDER BY created_at ASC, plug_id ASC`

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PlugListing{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p domain.PlugListing
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, err
		}
		if f.Badge != "" && !hasBadge(p.Badges, f.Badge) {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
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
	st := certgate.Stats{ByStatus: map[string]int{}}
	rows, err := s.DB.Query(ctx, `SELECT status, count(*) FROM plugs GROUP BY status`)
	if err != nil {
		return certgate.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return certgate.Stats{}, err
		}
		st.ByStatus[status] = count
		st.TotalPlugs += count
	}
	return st, rows.Err()
}

// Installs is the Postgres install attempt log.
type Installs struct{ DB *pgxpool.Pool }

func NewInstalls(db *pgxpool.Pool) *Installs { return &Installs{DB: db} }

func (l *Installs) Append(ctx context.Context, att domain.InstallAttempt) error {
	_, err := l.DB.Exec(ctx, `
INSERT INTO install_attempts(install_id,plug_id,tenant_id,workspace_id,install_mode,attempted_at,allowed,reason)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
`, att.InstallID, att.PlugID, att.TenantID, att.WorkspaceID, att.InstallMode, att.Timestamp, att.Allowed, att.Reason)
	return err
}

func (l *Installs) List(ctx context.Context, plugID string) ([]domain.InstallAttempt, error) {
	q := `SELECT install_id,plug_id,tenant_id,workspace_id,install_mode,attempted_at,allowed,reason FROM install_attempts`
	args := []any{}
	if plugID != "" {
		q += ` WHERE plug_id=$1`
		args = append(args, plugID)
	}
	q += ` ORDER BY attempted_at ASC, install_id ASC`

	rows, err := l.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.InstallAttempt{}
	for rows.Next() {
		var a domain.InstallAttempt
		if err := rows.Scan(&a.InstallID, &a.PlugID, &a.TenantID, &a.WorkspaceID, &a.InstallMode, &a.Timestamp, &a.Allowed, &a.Reason); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *Installs) Count(ctx context.Context) (int, error) {
	var n int
	err := l.DB.QueryRow(ctx, `SELECT count(*) FROM install_attempts`).Scan(&n)
	return n, err
}
