package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ThorfinnThor/radar/internal/signal"
)

type Signal struct {
	ID          int64         `json:"signal_id"`
	AccountID   int64         `json:"account_id"`
	Type        signal.Type   `json:"signal_type"`
	Source      signal.Source `json:"source"`
	Title       string        `json:"title,omitempty"`
	EvidenceURL string        `json:"evidence_url,omitempty"`
	PublishedAt string        `json:"published_at,omitempty"`
	PayloadJSON string        `json:"payload_json"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Payload decodes the stored payload into its typed variant.
func (s Signal) Payload() signal.Payload {
	p, _ := signal.DecodePayload(s.Type, s.PayloadJSON)
	return p
}

type signalRow struct {
	ID          int64          `db:"signal_id"`
	AccountID   int64          `db:"account_id"`
	Type        string         `db:"signal_type"`
	Source      string         `db:"source"`
	Title       sql.NullString `db:"title"`
	EvidenceURL string         `db:"evidence_url"`
	PublishedAt sql.NullString `db:"published_at"`
	PayloadJSON string         `db:"payload_json"`
	CreatedAt   string         `db:"created_at"`
}

func (r signalRow) toSignal() Signal {
	return Signal{
		ID:          r.ID,
		AccountID:   r.AccountID,
		Type:        signal.Type(r.Type),
		Source:      signal.Source(r.Source),
		Title:       r.Title.String,
		EvidenceURL: r.EvidenceURL,
		PublishedAt: r.PublishedAt.String,
		PayloadJSON: r.PayloadJSON,
		CreatedAt:   parseTime(r.CreatedAt),
	}
}

// InsertSignal stores a signal unless one with the same natural key
// (account, type, source, evidence url) already exists. A duplicate is not an
// error; inserted reports whether a row was written.
func (s *Store) InsertSignal(ctx context.Context, accountID int64, sig signal.NormalizedSignal) (inserted bool, err error) {
	if err := sig.Validate(); err != nil {
		return false, err
	}
	evidenceURL := strings.TrimSpace(sig.EvidenceURL)

	err = s.WithAccountLock(accountID, func() error {
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			var exists int
			err := tx.GetContext(ctx, &exists,
				`SELECT 1 FROM signals WHERE account_id = ? AND signal_type = ? AND source = ? AND evidence_url = ?`,
				accountID, string(sig.Type), string(sig.Source), evidenceURL)
			if err == nil {
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lookup signal: %w", err)
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO signals (account_id, signal_type, source, title, evidence_url, published_at, payload_json, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(account_id, signal_type, source, evidence_url) DO NOTHING`,
				accountID,
				string(sig.Type),
				string(sig.Source),
				nullable(strings.TrimSpace(sig.Title)),
				evidenceURL,
				nullable(strings.TrimSpace(sig.PublishedAt)),
				signal.EncodePayload(sig.Payload),
				s.now(),
			)
			if err != nil {
				return fmt.Errorf("insert signal: %w", err)
			}
			n, _ := res.RowsAffected()
			inserted = n > 0
			return nil
		})
	})
	return inserted, err
}

// SignalsForAccount returns an account's signals, newest first. With no types
// given every type is returned.
func (s *Store) SignalsForAccount(ctx context.Context, accountID int64, types ...signal.Type) ([]Signal, error) {
	query := `SELECT signal_id, account_id, signal_type, source, title, evidence_url, published_at, payload_json, created_at
		FROM signals WHERE account_id = ?`
	args := []any{accountID}
	if len(types) > 0 {
		placeholders := make([]string, 0, len(types))
		for _, t := range types {
			placeholders = append(placeholders, "?")
			args = append(args, string(t))
		}
		query += ` AND signal_type IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY COALESCE(NULLIF(published_at, ''), created_at) DESC, signal_id ASC`

	var rows []signalRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	out := make([]Signal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSignal())
	}
	return out, nil
}

func (s *Store) CountSignals(ctx context.Context, accountID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM signals WHERE account_id = ?`, accountID); err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return n, nil
}
