package scoring

import (
	"testing"
	"time"

	"github.com/ThorfinnThor/radar/internal/signal"
	"github.com/ThorfinnThor/radar/internal/store"
)

var fixedNow = time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	cfg.SEC.Keywords = []string{"CAR-T", "bispecific"}
	cfg.Patents.Keywords = []string{"chimeric antigen receptor"}
	cfg.Jobs.Keywords = []string{"cell therapy"}
	return cfg
}

func secSignal(url, published, text string) store.Signal {
	return store.Signal{
		Type:        signal.TypeSECFiling,
		Source:      signal.SourceSECEdgar,
		Title:       "8-K",
		EvidenceURL: url,
		PublishedAt: published,
		PayloadJSON: signal.EncodePayload(signal.FilingPayload{Form: "8-K", Text: text}),
	}
}

func TestFitLadderIsMonotonic(t *testing.T) {
	cases := []struct {
		title string
		want  int
	}{
		{"A Study of a CAR-T Therapy in Lymphoma", FitCellTherapyTCR},
		{"Chimeric Antigen Receptor T cells for ALL", FitCellTherapyTCR},
		{"TCR-T Cells Targeting MAGE-A4", FitCellTherapyTCR},
		{"A Study of a Bispecific CD3 Antibody", FitEngager},
		{"A T-Cell Engager in Solid Tumors", FitEngager},
		{"Glofitamab Monotherapy", FitEngager},
		{"A Bispecific Antibody in NSCLC", FitCD3OrBispecific},
		{"Anti-CD3 Induction", FitCD3OrBispecific},
		{"CAR T-Cell Therapy After Relapse", FitCellTherapyTCR},
		{"Autologous Cell Therapy for Sarcoma", FitGenericCell},
		{"Autologous TCR Therapy in Sarcoma", FitGenericCell},
		{"TCR Targeting NY-ESO-1", FitGenericCell},
		{"Wound Healing and Scar Tissue Study", FitFloor},
		{"A Study of Pembrolizumab", FitFloor},
	}
	for _, tc := range cases {
		got, reason := fitFromTitle(tc.title, []string{"glofitamab"})
		if got != tc.want {
			t.Fatalf("%q: expected fit %d, got %d (%s)", tc.title, tc.want, got, reason)
		}
	}
	if got, reason := fitFromTitle("  ", nil); got != FitFloor || reason != "unknown title" {
		t.Fatalf("expected floor with unknown title, got %d %q", got, reason)
	}
	if _, reason := fitFromTitle("A Study of Pembrolizumab", nil); reason != "no strong wedge keywords" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestTrialUrgencyTiers(t *testing.T) {
	active := upperSet(defaultActiveStatuses)
	high := upperSet([]string{"PHASE1", "PHASE2"})
	cases := []struct {
		status string
		phases []string
		want   int
	}{
		{"RECRUITING", []string{"PHASE1"}, UrgencyTop},
		{"recruiting", []string{" phase2 "}, UrgencyTop},
		{"ACTIVE_NOT_RECRUITING", []string{"PHASE3"}, UrgencyMiddle},
		{"NOT_YET_RECRUITING", nil, UrgencyMiddle},
		{"COMPLETED", []string{"PHASE1"}, UrgencyFloor},
		{"", []string{"PHASE1"}, UrgencyNone},
	}
	for _, tc := range cases {
		if got, reason := trialUrgency(tc.status, tc.phases, active, high); got != tc.want {
			t.Fatalf("%q %v: expected %d, got %d (%s)", tc.status, tc.phases, tc.want, got, reason)
		}
	}
	if _, reason := trialUrgency("", nil, active, high); reason != "unknown status" {
		t.Fatalf("expected unknown status reason, got %q", reason)
	}
}

func TestScoreRecruitingCARTTrial(t *testing.T) {
	e := New(testConfig())
	res := e.Score(Input{Trials: []store.Study{{
		ID:            "NCT1",
		BriefTitle:    "Phase 1 Study of XYZ CAR-T in B-cell Lymphoma",
		OverallStatus: "RECRUITING",
		Phases:        []string{"PHASE1"},
	}}})
	if res.Fit != FitCellTherapyTCR {
		t.Fatalf("expected top fit, got %v", res.Fit)
	}
	if res.Urgency != UrgencyTop || res.UrgencySource != UrgencySourceTrial {
		t.Fatalf("expected top urgency from trial, got %v from %s", res.Urgency, res.UrgencySource)
	}
	if res.BestFitTrial == nil || res.BestFitTrial.ID != "NCT1" || res.BestUrgencyTrial.ID != "NCT1" {
		t.Fatalf("expected NCT1 as best trial, got %+v / %+v", res.BestFitTrial, res.BestUrgencyTrial)
	}
	if res.Total != 8 {
		t.Fatalf("expected total 8 with unit weights and zero access, got %v", res.Total)
	}
}

func TestScoreNoTrialsOneFiling(t *testing.T) {
	e := New(testConfig())
	res := e.Score(Input{Signals: []store.Signal{
		secSignal("https://sec.gov/1", "2026-01-20", "Update on our CAR-T programme"),
	}})
	if res.Fit != FitNonTrialFallback {
		t.Fatalf("expected fallback fit, got %v (%s)", res.Fit, res.FitReason)
	}
	if res.Urgency != UrgencyFloor || res.UrgencySource != UrgencySourceSignals {
		t.Fatalf("expected floor urgency from signals, got %v from %s", res.Urgency, res.UrgencySource)
	}
	if res.SEC.RecentTotal != 1 || res.SEC.MatchedTotal != 1 || len(res.SEC.Examples) != 1 {
		t.Fatalf("unexpected sec stats %+v", res.SEC)
	}
	if res.SEC.MatchedKeywords[0] != "CAR-T" {
		t.Fatalf("unexpected matched keywords %v", res.SEC.MatchedKeywords)
	}
}

func TestScoreIgnoresStaleAndMalformedDates(t *testing.T) {
	e := New(testConfig())
	res := e.Score(Input{Signals: []store.Signal{
		secSignal("https://sec.gov/old", "2024-01-01", "CAR-T"),
		secSignal("https://sec.gov/bad", "not a date", "CAR-T"),
		secSignal("https://sec.gov/none", "", "CAR-T"),
	}})
	if res.SEC.RecentTotal != 0 || res.Fit != FitFloor || res.Urgency != UrgencyNone {
		t.Fatalf("expected nothing in window, got %+v", res)
	}
	if res.UrgencySource != UrgencySourceNone {
		t.Fatalf("expected no urgency source, got %s", res.UrgencySource)
	}
}

func TestOtherUrgencyCountsAcrossSources(t *testing.T) {
	e := New(testConfig())
	jobPayload := signal.EncodePayload(signal.JobPayload{Department: "R&D", Description: "Lead our cell therapy unit"})
	patentPayload := signal.EncodePayload(signal.PatentPayload{Text: "A chimeric antigen receptor construct"})
	res := e.Score(Input{Signals: []store.Signal{
		secSignal("https://sec.gov/1", "2026-02-01", "bispecific update"),
		{Type: signal.TypePatentPublication, EvidenceURL: "p1", PublishedAt: "2025-06-01", PayloadJSON: patentPayload},
		{Type: signal.TypeJobPosting, Title: "Scientist", EvidenceURL: "j1", PublishedAt: "2026-02-10", PayloadJSON: jobPayload},
	}})
	if res.Urgency != UrgencyTop || res.UrgencySource != UrgencySourceSignals {
		t.Fatalf("expected top urgency from signals, got %v (%s)", res.Urgency, res.UrgencyReason)
	}
}

func TestTrialWinsUrgencyTie(t *testing.T) {
	e := New(testConfig())
	res := e.Score(Input{
		Trials: []store.Study{{ID: "NCT1", BriefTitle: "CAR-T", OverallStatus: "COMPLETED"}},
		Signals: []store.Signal{
			secSignal("https://sec.gov/1", "2026-02-01", "CAR-T"),
		},
	})
	if res.Urgency != UrgencyFloor || res.UrgencySource != UrgencySourceTrial {
		t.Fatalf("expected trial to win tie, got %v from %s", res.Urgency, res.UrgencySource)
	}
}

func TestBestFitKeepsFirstOnTie(t *testing.T) {
	e := New(testConfig())
	res := e.Score(Input{Trials: []store.Study{
		{ID: "A", BriefTitle: "Bispecific study"},
		{ID: "B", BriefTitle: "CD3 study"},
		{ID: "C", BriefTitle: "Other study"},
	}})
	if res.BestFitTrial.ID != "A" || res.Fit != FitCD3OrBispecific {
		t.Fatalf("expected first tied trial, got %s fit %v", res.BestFitTrial.ID, res.Fit)
	}
	if res.FitReason == "" || res.UrgencyReason != "unknown status" {
		t.Fatalf("unexpected reasons %q / %q", res.FitReason, res.UrgencyReason)
	}
}

func TestAccessStrategiesAndBonuses(t *testing.T) {
	cfg := testConfig()
	cfg.Weights = Weights{Fit: 2, Urgency: 1, Access: 1}
	cfg.Access = AccessConfig{Strategy: AccessWatchlist, KnownPoints: 3, UnknownPoints: 1}
	cfg.WatchlistBonus = 2
	cfg.Tiebreakers = Tiebreakers{
		RecentTrialUpdateDays:   30,
		RecentTrialBonus:        0.5,
		ExtraTrialBonusPerTrial: 0.25,
		ExtraTrialBonusCap:      0.5,
	}
	e := New(cfg)
	trials := []store.Study{
		{ID: "1", BriefTitle: "Other", OverallStatus: "COMPLETED", LastUpdatePosted: "2026-02-01"},
		{ID: "2", BriefTitle: "Other", OverallStatus: "COMPLETED", LastUpdatePosted: "2020-01-01"},
		{ID: "3", BriefTitle: "Other", OverallStatus: "COMPLETED"},
		{ID: "4", BriefTitle: "Other", OverallStatus: "COMPLETED"},
	}

	member := e.Score(Input{Trials: trials, OnWatchlist: true})
	// fit 1*2 + urgency 1 + access 3 + watchlist 2 + recent 0.5 + breadth min(0.5, 0.75)
	if member.Access != 3 || member.Total != 9 {
		t.Fatalf("member: expected access 3 total 9, got %v / %v", member.Access, member.Total)
	}
	other := e.Score(Input{Trials: trials})
	if other.Access != 1 || other.Total != 5 {
		t.Fatalf("non-member: expected access 1 total 5, got %v / %v", other.Access, other.Total)
	}

	cfg.Access = AccessConfig{Strategy: AccessFlat, DefaultPoints: 1.5}
	flat := New(cfg).Score(Input{Trials: trials[:1], OnWatchlist: true})
	if flat.Access != 1.5 {
		t.Fatalf("flat: expected access 1.5, got %v", flat.Access)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	e := New(testConfig())
	in := Input{
		Trials:  []store.Study{{ID: "NCT1", BriefTitle: "CD3 bispecific", OverallStatus: "RECRUITING", Phases: []string{"PHASE2"}}},
		Signals: []store.Signal{secSignal("u", "2026-02-01", "bispecific")},
	}
	a, b := e.Score(in), e.Score(in)
	if a.Total != b.Total || a.Fit != b.Fit || a.Urgency != b.Urgency {
		t.Fatalf("scores differ across runs: %+v vs %+v", a, b)
	}
}

func TestParseDateLayouts(t *testing.T) {
	for _, s := range []string{"2026-01-02", "2026-01", "2026", "2026-01-02T03:04:05Z", "January 2, 2026", "2026-01-02 03:04:05"} {
		if _, ok := ParseDate(s); !ok {
			t.Fatalf("expected %q to parse", s)
		}
	}
	if _, ok := ParseDate("02/01/2026"); ok {
		t.Fatal("expected ambiguous date to be rejected")
	}
}
