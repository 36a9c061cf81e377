// Package store is the Postgres token repository.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustgate/pkg/domain"
	"trustgate/services/tokens/internal/tokens"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Insert(ctx context.Context, t domain.SecureDropToken) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertTx(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertTx(ctx context.Context, tx pgx.Tx, t domain.SecureDropToken) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO sdt_tokens(token_id,tenant_id,status,issued_at,doc)
VALUES($1,$2,$3,$4,$5::jsonb)
`, t.TokenID, t.TenantID, t.Status, t.IssuedAt, string(doc))
	return err
}

func (s *Store) Get(ctx context.Context, id string) (domain.SecureDropToken, error) {
	var doc []byte
	err := s.DB.QueryRow(ctx, `SELECT doc FROM sdt_tokens WHERE token_id=$1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SecureDropToken{}, domain.NotFound("token", id)
	}
	if err != nil {
		return domain.SecureDropToken{}, err
	}
	var t domain.SecureDropToken
	if err := json.Unmarshal(doc, &t); err != nil {
		return domain.SecureDropToken{}, err
	}
	return t, nil
}

// Update locks the token row for the duration of fn, so status changes
// and the access counter move together.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.SecureDropToken) error) (domain.SecureDropToken, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return domain.SecureDropToken{}, err
	}
	defer tx.Rollback(ctx)

	t, err := lockTokenTx(ctx, tx, id)
	if err != nil {
		return domain.SecureDropToken{}, err
	}
	if err := fn(&t); err != nil {
		return domain.SecureDropToken{}, err
	}
	if err := writeTokenTx(ctx, tx, t); err != nil {
		return domain.SecureDropToken{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SecureDropToken{}, err
	}
	return t, nil
}

// Rotate revokes the old token and inserts its replacement in one
// transaction; no reader can observe both active.
func (s *Store) Rotate(ctx context.Context, oldID string, revokeOld func(*domain.SecureDropToken) error, replacement domain.SecureDropToken) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	old, err := lockTokenTx(ctx, tx, oldID)
	if err != nil {
		return err
	}
	if err := revokeOld(&old); err != nil {
		return err
	}
	if err := writeTokenTx(ctx, tx, old); err != nil {
		return err
	}
	if err := insertTx(ctx, tx, replacement); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockTokenTx(ctx context.Context, tx pgx.Tx, id string) (domain.SecureDropToken, error) {
	var doc []byte
	err := tx.QueryRow(ctx, `SELECT doc FROM sdt_tokens WHERE token_id=$1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SecureDropToken{}, domain.NotFound("token", id)
	}
	if err != nil {
		return domain.SecureDropToken{}, err
	}
	var t domain.SecureDropToken
	if err := json.Unmarshal(doc, &t); err != nil {
		return domain.SecureDropToken{}, err
	}
	return t, nil
}

func writeTokenTx(ctx context.Context, tx pgx.Tx, t domain.SecureDropToken) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE sdt_tokens SET status=$2, doc=$3::jsonb WHERE token_id=$1
`, t.TokenID, t.Status, string(doc))
	return err
}

func (s *Store) Stats(ctx context.Context) (tokens.Stats, error) {
	st := tokens.Stats{ByStatus: map[string]int{
		"active": 0, "expired": 0, "revoked": 0, "consumed": 0,
	}}
	rows, err := s.DB.Query(ctx, `SELECT status, count(*) FROM sdt_tokens GROUP BY status`)
	if err != nil {
		return tokens.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return tokens.Stats{}, err
		}
		st.ByStatus[status] = count
		st.Total += count
	}
	return st, rows.Err()
}

// AccessLogs is the Postgres access attempt log.
type AccessLogs struct{ DB *pgxpool.Pool }

func NewAccessLogs(db *pgxpool.Pool) *AccessLogs { return &AccessLogs{DB: db} }

func (l *AccessLogs) Append(ctx context.Context, e domain.SDTAccessLog) error {
	_, err := l.DB.Exec(ctx, `
INSERT INTO sdt_access_log(token_id,accessor_id,action,artifact_ref,attempted_at,ip_address,result,denial_reason)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
`, e.TokenID, e.AccessorID, e.Action, e.ArtifactRef, e.Timestamp, e.IPAddress, e.Result, e.DenialReason)
	return err
}

func (l *AccessLogs) List(ctx context.Context, tokenID string) ([]domain.SDTAccessLog, error) {
	rows, err := l.DB.Query(ctx, `
SELECT token_id,accessor_id,action,artifact_ref,attempted_at,ip_address,result,denial_reason
FROM sdt_access_log WHERE token_id=$1 ORDER BY attempted_at ASC
`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SDTAccessLog{}
	for rows.Next() {
		var e domain.SDTAccessLog
		if err := rows.Scan(&e.TokenID, &e.AccessorID, &e.Action, &e.ArtifactRef, &e.Timestamp, &e.IPAddress, &e.Result, &e.DenialReason); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
