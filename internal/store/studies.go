package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Study is a registry trial row. Canonical rows are keyed by the trial id;
// synthetic rows give an industry collaborator its own view of a trial.
type Study struct {
	ID               string         `json:"id"`
	NCTID            string         `json:"nct_id"`
	Synthetic        bool           `json:"synthetic"`
	AccountID        int64          `json:"account_id"`
	BriefTitle       string         `json:"brief_title"`
	OverallStatus    string         `json:"overall_status"`
	Phases           []string       `json:"phases"`
	LastUpdatePosted string         `json:"last_update_posted,omitempty"`
	SponsorClass     string         `json:"sponsor_class,omitempty"`
	StudyURL         string         `json:"study_url,omitempty"`
	Raw              map[string]any `json:"raw,omitempty"`
}

// SyntheticStudyID derives the row id of a collaborator-attributed view of a
// trial. It cannot collide with a real registry id.
func SyntheticStudyID(nctID, collaboratorName string) string {
	return nctID + "::collab::" + collaboratorName
}

type studyRow struct {
	ID               string         `db:"id"`
	NCTID            string         `db:"nct_id"`
	Synthetic        int            `db:"synthetic"`
	AccountID        int64          `db:"account_id"`
	BriefTitle       sql.NullString `db:"brief_title"`
	OverallStatus    sql.NullString `db:"overall_status"`
	PhasesJSON       string         `db:"phases_json"`
	LastUpdatePosted sql.NullString `db:"last_update_posted"`
	SponsorClass     sql.NullString `db:"sponsor_class"`
	StudyURL         sql.NullString `db:"study_url"`
	RawJSON          string         `db:"raw_json"`
}

func (r studyRow) toStudy() Study {
	st := Study{
		ID:               r.ID,
		NCTID:            r.NCTID,
		Synthetic:        r.Synthetic != 0,
		AccountID:        r.AccountID,
		BriefTitle:       r.BriefTitle.String,
		OverallStatus:    r.OverallStatus.String,
		LastUpdatePosted: r.LastUpdatePosted.String,
		SponsorClass:     r.SponsorClass.String,
		StudyURL:         r.StudyURL.String,
	}
	if err := json.Unmarshal([]byte(r.PhasesJSON), &st.Phases); err != nil || st.Phases == nil {
		st.Phases = []string{}
	}
	_ = json.Unmarshal([]byte(r.RawJSON), &st.Raw)
	return st
}

// UpsertStudy inserts the study or replaces every mutable field of the row with
// the same id. The row keeps its original insertion position.
func (s *Store) UpsertStudy(ctx context.Context, st Study) error {
	id := strings.TrimSpace(st.ID)
	if id == "" {
		return fmt.Errorf("upsert study: empty id")
	}
	nctID := strings.TrimSpace(st.NCTID)
	if nctID == "" {
		nctID = id
	}
	synthetic := 0
	if st.Synthetic {
		synthetic = 1
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO studies (id, nct_id, synthetic, account_id, brief_title, overall_status,
			phases_json, last_update_posted, sponsor_class, study_url, raw_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				nct_id = excluded.nct_id,
				synthetic = excluded.synthetic,
				account_id = excluded.account_id,
				brief_title = excluded.brief_title,
				overall_status = excluded.overall_status,
				phases_json = excluded.phases_json,
				last_update_posted = excluded.last_update_posted,
				sponsor_class = excluded.sponsor_class,
				study_url = excluded.study_url,
				raw_json = excluded.raw_json`,
			id,
			nctID,
			synthetic,
			st.AccountID,
			nullable(st.BriefTitle),
			nullable(st.OverallStatus),
			marshalJSON(st.Phases, "[]"),
			nullable(st.LastUpdatePosted),
			nullable(st.SponsorClass),
			nullable(st.StudyURL),
			marshalJSON(st.Raw, "{}"),
		)
		if err != nil {
			return fmt.Errorf("upsert study %s: %w", id, err)
		}
		return nil
	})
}

// DeleteSyntheticStudies removes every collaborator view of a trial and
// reports how many rows went.
func (s *Store) DeleteSyntheticStudies(ctx context.Context, nctID string) (int64, error) {
	nctID = strings.TrimSpace(nctID)
	if nctID == "" {
		return 0, nil
	}
	var n int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM studies WHERE nct_id = ? AND synthetic = 1`, nctID)
		if err != nil {
			return fmt.Errorf("delete synthetic studies %s: %w", nctID, err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

func (s *Store) StudyByID(ctx context.Context, id string) (Study, error) {
	var row studyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+studyColumns+` FROM studies WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return Study{}, ErrNotFound
	}
	if err != nil {
		return Study{}, fmt.Errorf("get study %s: %w", id, err)
	}
	return row.toStudy(), nil
}

const studyColumns = `id, nct_id, synthetic, account_id, brief_title, overall_status, phases_json,
	last_update_posted, sponsor_class, study_url, raw_json`

// StudiesForAccount returns the trials an account is scored on: canonical rows
// it leads plus synthetic rows attributing it as a collaborator, in stored
// order. A trial seen both ways counts once, as the canonical row.
func (s *Store) StudiesForAccount(ctx context.Context, accountID int64) ([]Study, error) {
	var rows []studyRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+studyColumns+` FROM studies WHERE account_id = ? ORDER BY rowid`, accountID); err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}

	canonical := map[string]struct{}{}
	for _, r := range rows {
		if r.Synthetic == 0 {
			canonical[r.NCTID] = struct{}{}
		}
	}
	seenSynthetic := map[string]struct{}{}
	out := make([]Study, 0, len(rows))
	for _, r := range rows {
		if r.Synthetic != 0 {
			if _, ok := canonical[r.NCTID]; ok {
				continue
			}
			if _, ok := seenSynthetic[r.NCTID]; ok {
				continue
			}
			seenSynthetic[r.NCTID] = struct{}{}
		}
		out = append(out, r.toStudy())
	}
	return out, nil
}
