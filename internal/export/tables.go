// Package export writes ranked accounts to CSV, JSON and an HTML/PDF report.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"

	"github.com/ThorfinnThor/radar/internal/platform/atomicfile"
	"github.com/ThorfinnThor/radar/internal/rank"
)

var rankedHeader = []string{
	"rank", "account_name", "fit", "urgency", "access", "total",
	"fit_reason", "urgency_reason", "urgency_source", "trigger_summary",
	"best_fit_trial_title", "best_fit_trial_status", "best_fit_trial_phase", "best_fit_trial_url",
	"best_urgency_trial_title", "best_urgency_trial_status", "best_urgency_trial_phase", "best_urgency_trial_url",
	"sec_matched_total", "patent_matched_total", "job_matched_total",
	"target_roles",
}

var watchlistHeader = []string{
	"account_name", "fit", "urgency", "total",
	"fit_reason", "urgency_reason", "urgency_source", "trigger_summary",
	"sec_matched_total", "sec_examples",
	"patent_matched_total", "patent_examples",
	"target_roles",
}

// RankedRow is a row with its 1-based position in the export.
type RankedRow struct {
	Rank int `json:"rank"`
	rank.Row
}

// WithRanks numbers rows from 1 in their current order.
func WithRanks(rows []rank.Row) []RankedRow {
	out := make([]RankedRow, 0, len(rows))
	for i, r := range rows {
		out = append(out, RankedRow{Rank: i + 1, Row: r})
	}
	return out
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func jsonCell(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func roles(r rank.Row) []string {
	if len(r.TargetRoles) == 0 {
		return rank.DefaultRoleTitles()
	}
	return r.TargetRoles
}

func trialCells(t *rank.TrialRef) []string {
	if t == nil {
		return []string{"", "", "", ""}
	}
	return []string{t.Title, t.Status, t.Phase, t.URL}
}

func encodeCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RankedCSV renders rows with their rank.
func RankedCSV(rows []rank.Row) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range WithRanks(rows) {
		rec := []string{
			strconv.Itoa(r.Rank), r.AccountName, num(r.Fit), num(r.Urgency), num(r.Access), num(r.Total),
			r.FitReason, r.UrgencyReason, r.UrgencySource, r.TriggerSummary,
		}
		rec = append(rec, trialCells(r.BestFitTrial)...)
		rec = append(rec, trialCells(r.BestUrgencyTrial)...)
		rec = append(rec,
			strconv.Itoa(r.SEC.MatchedTotal), strconv.Itoa(r.Patents.MatchedTotal), strconv.Itoa(r.Jobs.MatchedTotal),
			jsonCell(roles(r.Row)),
		)
		records = append(records, rec)
	}
	return encodeCSV(rankedHeader, records)
}

// WatchlistCSV renders watchlist rows with their filing and patent examples.
func WatchlistCSV(rows []rank.Row) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.AccountName, num(r.Fit), num(r.Urgency), num(r.Total),
			r.FitReason, r.UrgencyReason, r.UrgencySource, r.TriggerSummary,
			strconv.Itoa(r.SEC.MatchedTotal), jsonCell(r.SEC.Examples),
			strconv.Itoa(r.Patents.MatchedTotal), jsonCell(r.Patents.Examples),
			jsonCell(roles(r)),
		})
	}
	return encodeCSV(watchlistHeader, records)
}

func WriteRanked(csvPath, jsonPath string, rows []rank.Row) error {
	blob, err := RankedCSV(rows)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(csvPath, blob); err != nil {
		return err
	}
	return atomicfile.WriteJSON(jsonPath, WithRanks(rows))
}

func WriteWatchlist(csvPath, jsonPath string, rows []rank.Row) error {
	blob, err := WatchlistCSV(rows)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(csvPath, blob); err != nil {
		return err
	}
	if rows == nil {
		rows = []rank.Row{}
	}
	return atomicfile.WriteJSON(jsonPath, rows)
}
