// Package rank turns scored accounts into the ordered rows that exports and
// the read API present.
package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ThorfinnThor/radar/internal/scoring"
	"github.com/ThorfinnThor/radar/internal/store"
)

const (
	DefaultTriggerItems = 3
	triggerTitleChars   = 110
	maxEvidenceURLs     = 10
)

type TrialRef struct {
	ID     string `json:"id"`
	NCTID  string `json:"nct_id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Phase  string `json:"phase"`
	URL    string `json:"url"`
}

type Row struct {
	AccountID   int64   `json:"account_id"`
	AccountName string  `json:"account_name"`
	Domain      string  `json:"domain,omitempty"`
	Fit         float64 `json:"fit"`
	Urgency     float64 `json:"urgency"`
	Access      float64 `json:"access"`
	Total       float64 `json:"total"`

	FitReason     string `json:"fit_reason"`
	UrgencyReason string `json:"urgency_reason"`
	UrgencySource string `json:"urgency_source"`

	BestFitTrial     *TrialRef `json:"best_fit_trial,omitempty"`
	BestUrgencyTrial *TrialRef `json:"best_urgency_trial,omitempty"`

	SignalEvidenceURLs []string `json:"signal_evidence_urls"`
	TriggerSummary     string   `json:"trigger_summary"`
	TargetRoles        []string `json:"target_roles"`
	OnWatchlist        bool     `json:"on_watchlist"`
	TrialCount         int      `json:"trial_count"`

	SEC     scoring.SourceStats `json:"sec"`
	Patents scoring.SourceStats `json:"patents"`
	Jobs    scoring.SourceStats `json:"jobs"`

	Brief string `json:"brief,omitempty"`
}

type Options struct {
	MaxRoles     int
	TriggerItems int
}

func trialRef(s *store.Study) *TrialRef {
	if s == nil {
		return nil
	}
	return &TrialRef{
		ID:     s.ID,
		NCTID:  s.NCTID,
		Title:  s.BriefTitle,
		Status: s.OverallStatus,
		Phase:  strings.Join(s.Phases, ", "),
		URL:    s.StudyURL,
	}
}

// NewRow assembles the presentation row for one scored account. signals should
// be in the store's newest-first order.
func NewRow(acc store.Account, res scoring.Result, signals []store.Signal, onWatchlist bool, opts Options) Row {
	if opts.TriggerItems <= 0 {
		opts.TriggerItems = DefaultTriggerItems
	}
	return Row{
		AccountID:          acc.ID,
		AccountName:        acc.Name,
		Domain:             acc.Domain,
		Fit:                res.Fit,
		Urgency:            res.Urgency,
		Access:             res.Access,
		Total:              res.Total,
		FitReason:          res.FitReason,
		UrgencyReason:      res.UrgencyReason,
		UrgencySource:      res.UrgencySource,
		BestFitTrial:       trialRef(res.BestFitTrial),
		BestUrgencyTrial:   trialRef(res.BestUrgencyTrial),
		SignalEvidenceURLs: evidenceURLs(signals, maxEvidenceURLs),
		TriggerSummary:     TriggerSummary(signals, opts.TriggerItems),
		TargetRoles:        RecommendRoles(signals, opts.MaxRoles),
		OnWatchlist:        onWatchlist,
		TrialCount:         res.TrialCount,
		SEC:                res.SEC,
		Patents:            res.Patents,
		Jobs:               res.Jobs,
	}
}

func evidenceURLs(signals []store.Signal, n int) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range signals {
		u := strings.TrimSpace(s.EvidenceURL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) >= n {
			break
		}
	}
	return out
}

// TriggerSummary joins "type: title" for the first n signals with " | ".
func TriggerSummary(signals []store.Signal, n int) string {
	if n > len(signals) {
		n = len(signals)
	}
	parts := make([]string, 0, n)
	for _, s := range signals[:n] {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			parts = append(parts, string(s.Type))
			continue
		}
		if r := []rune(title); len(r) > triggerTitleChars {
			title = string(r[:triggerTitleChars])
		}
		parts = append(parts, fmt.Sprintf("%s: %s", s.Type, title))
	}
	return strings.Join(parts, " | ")
}

// Sort orders rows by total descending, then account name ascending.
func Sort(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].AccountName < rows[j].AccountName
	})
}

// Top returns the first n rows; n <= 0 means all.
func Top(rows []Row, n int) []Row {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}

// Watchlist keeps the rows of watchlist members, preserving order.
func Watchlist(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.OnWatchlist {
			out = append(out, r)
		}
	}
	return out
}
