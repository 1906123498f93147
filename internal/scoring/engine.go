package scoring

import (
	"sort"
	"strings"
	"time"

	"github.com/ThorfinnThor/radar/internal/signal"
	"github.com/ThorfinnThor/radar/internal/store"
)

// Input is everything stored about one account.
type Input struct {
	Trials      []store.Study
	Signals     []store.Signal
	OnWatchlist bool
}

type Example struct {
	Type            signal.Type `json:"signal_type"`
	Title           string      `json:"title"`
	EvidenceURL     string      `json:"evidence_url"`
	PublishedAt     string      `json:"published_at"`
	MatchedKeywords []string    `json:"matched_keywords"`
}

// SourceStats summarises one non-trial signal type within its window.
type SourceStats struct {
	RecentTotal     int       `json:"recent_total"`
	MatchedTotal    int       `json:"matched_total"`
	MatchedKeywords []string  `json:"matched_keywords"`
	Examples        []Example `json:"examples"`
}

type Result struct {
	Fit     float64 `json:"fit"`
	Urgency float64 `json:"urgency"`
	Access  float64 `json:"access"`
	Total   float64 `json:"total"`

	FitReason     string `json:"fit_reason"`
	UrgencyReason string `json:"urgency_reason"`
	UrgencySource string `json:"urgency_source"`

	BestFitTrial     *store.Study `json:"best_fit_trial,omitempty"`
	BestUrgencyTrial *store.Study `json:"best_urgency_trial,omitempty"`

	TrialCount int         `json:"trial_count"`
	SEC        SourceStats `json:"sec"`
	Patents    SourceStats `json:"patents"`
	Jobs       SourceStats `json:"jobs"`
}

// Engine scores accounts. Scores are a pure function of the input and the
// engine clock.
type Engine struct {
	cfg        Config
	active     map[string]struct{}
	highPhases map[string]struct{}
}

func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:        cfg,
		active:     upperSet(cfg.ActiveStatuses),
		highPhases: upperSet(cfg.HighUrgencyPhases),
	}
}

func (e *Engine) Score(in Input) Result {
	now := e.cfg.Now()
	trials := in.Trials
	if e.cfg.MaxTrials > 0 && len(trials) > e.cfg.MaxTrials {
		trials = trials[:e.cfg.MaxTrials]
	}

	var filings, patents, jobs []store.Signal
	for _, s := range in.Signals {
		switch s.Type {
		case signal.TypeSECFiling:
			filings = append(filings, s)
		case signal.TypePatentPublication:
			patents = append(patents, s)
		case signal.TypeJobPosting:
			jobs = append(jobs, s)
		}
	}

	res := Result{TrialCount: len(in.Trials)}
	res.SEC = e.stats(filings, e.cfg.SEC, now)
	res.Patents = e.stats(patents, e.cfg.Patents, now)
	res.Jobs = e.stats(jobs, e.cfg.Jobs, now)

	// Fit
	fit, fitReason := FitFloor, "no trials"
	for i := range trials {
		score, reason := fitFromTitle(trials[i].BriefTitle, e.cfg.EngagerMolecules)
		if res.BestFitTrial == nil || score > fit {
			fit, fitReason = score, reason
			res.BestFitTrial = &trials[i]
		}
	}
	if len(trials) == 0 && res.SEC.MatchedTotal+res.Patents.MatchedTotal > 0 {
		fit, fitReason = FitNonTrialFallback, "non-trial modality signals (filings/patents)"
	}

	// Urgency
	trialUrg, trialReason := UrgencyNone, "no trials"
	for i := range trials {
		score, reason := trialUrgency(trials[i].OverallStatus, trials[i].Phases, e.active, e.highPhases)
		if res.BestUrgencyTrial == nil || score > trialUrg {
			trialUrg, trialReason = score, reason
			res.BestUrgencyTrial = &trials[i]
		}
	}
	otherUrg, otherReason := otherUrgency(res.SEC.MatchedTotal + res.Patents.MatchedTotal + res.Jobs.MatchedTotal)

	urgency := UrgencyNone
	switch {
	case len(trials) > 0 && trialUrg >= otherUrg:
		urgency = trialUrg
		res.UrgencyReason = trialReason
		res.UrgencySource = UrgencySourceTrial
	case otherUrg > 0:
		urgency = otherUrg
		res.UrgencyReason = otherReason
		res.UrgencySource = UrgencySourceSignals
	default:
		res.UrgencyReason = "no trials and no relevant signals"
		res.UrgencySource = UrgencySourceNone
	}

	res.Fit = float64(fit)
	res.FitReason = fitReason
	res.Urgency = float64(urgency)
	res.Access = e.access(in.OnWatchlist)

	w := e.cfg.Weights
	total := res.Fit*w.Fit + res.Urgency*w.Urgency + res.Access*w.Access
	if in.OnWatchlist {
		total += e.cfg.WatchlistBonus
	}
	total += e.tiebreakers(trials, len(in.Trials), now)
	res.Total = total
	return res
}

func (e *Engine) access(onWatchlist bool) float64 {
	a := e.cfg.Access
	if a.Strategy == AccessWatchlist {
		if onWatchlist {
			return a.KnownPoints
		}
		return a.UnknownPoints
	}
	return a.DefaultPoints
}

func (e *Engine) tiebreakers(trials []store.Study, trialCount int, now time.Time) float64 {
	tb := e.cfg.Tiebreakers
	bonus := 0.0
	if tb.RecentTrialUpdateDays > 0 && tb.RecentTrialBonus > 0 {
		for _, t := range trials {
			if withinDays(t.LastUpdatePosted, tb.RecentTrialUpdateDays, now) {
				bonus += tb.RecentTrialBonus
				break
			}
		}
	}
	if tb.ExtraTrialBonusPerTrial > 0 && tb.ExtraTrialBonusCap > 0 && trialCount > 1 {
		extra := tb.ExtraTrialBonusPerTrial * float64(trialCount-1)
		if extra > tb.ExtraTrialBonusCap {
			extra = tb.ExtraTrialBonusCap
		}
		bonus += extra
	}
	return bonus
}

func (e *Engine) stats(signals []store.Signal, cfg SourceConfig, now time.Time) SourceStats {
	st := SourceStats{MatchedKeywords: []string{}, Examples: []Example{}}
	seen := map[string]struct{}{}
	for _, s := range signals {
		if !withinDays(s.PublishedAt, cfg.WindowDays, now) {
			continue
		}
		st.RecentTotal++
		hits := matchKeywords(keywordText(s), cfg.Keywords)
		if len(hits) == 0 {
			continue
		}
		st.MatchedTotal++
		for _, h := range hits {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				st.MatchedKeywords = append(st.MatchedKeywords, h)
			}
		}
		if len(st.Examples) < e.cfg.MaxExamples {
			st.Examples = append(st.Examples, Example{
				Type:            s.Type,
				Title:           s.Title,
				EvidenceURL:     s.EvidenceURL,
				PublishedAt:     s.PublishedAt,
				MatchedKeywords: hits,
			})
		}
	}
	sort.Strings(st.MatchedKeywords)
	return st
}

// keywordText is the payload text blob, or the title when the payload has none.
func keywordText(s store.Signal) string {
	if p := s.Payload(); p != nil {
		if blob := strings.TrimSpace(p.TextBlob()); blob != "" {
			return blob
		}
	}
	return s.Title
}
