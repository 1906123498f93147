package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ThorfinnThor/radar/internal/account"
)

type Scores struct {
	Fit     float64 `json:"fit"`
	Urgency float64 `json:"urgency"`
	Access  float64 `json:"access"`
	Total   float64 `json:"total"`
}

type Account struct {
	ID           int64     `json:"account_id"`
	Name         string    `json:"name"`
	Domain       string    `json:"domain,omitempty"`
	ModalityTags []string  `json:"modality_tags"`
	Scores       Scores    `json:"scores"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// AccountInput is what ingestion knows about an account. Name must already be
// alias-resolved.
type AccountInput struct {
	Name         string
	Domain       string
	ModalityTags []string
}

type accountRow struct {
	ID               int64          `db:"account_id"`
	Name             string         `db:"name"`
	Domain           sql.NullString `db:"domain"`
	ModalityTagsJSON string         `db:"modality_tags_json"`
	FitScore         float64        `db:"fit_score"`
	UrgencyScore     float64        `db:"urgency_score"`
	AccessScore      float64        `db:"access_score"`
	TotalScore       float64        `db:"total_score"`
	LastSeenAt       string         `db:"last_seen_at"`
}

func (r accountRow) toAccount() Account {
	a := Account{
		ID:         r.ID,
		Name:       r.Name,
		Domain:     r.Domain.String,
		Scores:     Scores{Fit: r.FitScore, Urgency: r.UrgencyScore, Access: r.AccessScore, Total: r.TotalScore},
		LastSeenAt: parseTime(r.LastSeenAt),
	}
	_ = json.Unmarshal([]byte(r.ModalityTagsJSON), &a.ModalityTags)
	if a.ModalityTags == nil {
		a.ModalityTags = []string{}
	}
	return a
}

const accountColumns = `account_id, name, domain, modality_tags_json, fit_score, urgency_score, access_score, total_score, last_seen_at`

// UpsertAccount creates the account on first sight and otherwise merges tags,
// fills a missing domain and bumps last_seen_at. An empty tag list never
// clears existing tags.
func (s *Store) UpsertAccount(ctx context.Context, in AccountInput) (int64, error) {
	name := account.Canonicalize(in.Name)
	domain := strings.TrimSpace(in.Domain)
	now := s.now()

	var id int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row accountRow
		err := tx.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE name = ?`, name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (name, domain, modality_tags_json, last_seen_at) VALUES (?, ?, ?, ?)`,
				name, nullable(domain), marshalJSON(mergeTags(nil, in.ModalityTags), "[]"), now)
			if err != nil {
				return fmt.Errorf("insert account %q: %w", name, err)
			}
			id, err = res.LastInsertId()
			return err
		case err != nil:
			return fmt.Errorf("lookup account %q: %w", name, err)
		}

		id = row.ID
		existing := row.toAccount()
		tags := mergeTags(existing.ModalityTags, in.ModalityTags)
		if existing.Domain != "" {
			domain = existing.Domain
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE accounts SET domain = ?, modality_tags_json = ?, last_seen_at = ? WHERE account_id = ?`,
			nullable(domain), marshalJSON(tags, "[]"), now, id)
		if err != nil {
			return fmt.Errorf("update account %q: %w", name, err)
		}
		return nil
	})
	return id, err
}

func mergeTags(existing, incoming []string) []string {
	set := map[string]struct{}{}
	for _, list := range [][]string{existing, incoming} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Store) SetScores(ctx context.Context, accountID int64, sc Scores) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET fit_score = ?, urgency_score = ?, access_score = ?, total_score = ? WHERE account_id = ?`,
			sc.Fit, sc.Urgency, sc.Access, sc.Total, accountID)
		if err != nil {
			return fmt.Errorf("set scores: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("set scores account %d: %w", accountID, ErrNotFound)
		}
		return nil
	})
}

func (s *Store) Accounts(ctx context.Context) ([]Account, error) {
	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+accountColumns+` FROM accounts ORDER BY account_id`); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAccount())
	}
	return out, nil
}

// AccountByName looks up an account by canonical name, ignoring case.
func (s *Store) AccountByName(ctx context.Context, name string) (Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE name = ?`, account.Canonicalize(name))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account %q: %w", name, err)
	}
	return row.toAccount(), nil
}
