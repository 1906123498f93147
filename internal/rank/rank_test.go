package rank

import (
	"strings"
	"testing"

	"github.com/ThorfinnThor/radar/internal/scoring"
	"github.com/ThorfinnThor/radar/internal/signal"
	"github.com/ThorfinnThor/radar/internal/store"
)

func jobSignal(title, evidence string) store.Signal {
	return store.Signal{
		Type:        signal.TypeJobPosting,
		Source:      signal.SourceGreenhouse,
		Title:       title,
		EvidenceURL: evidence,
		PayloadJSON: signal.EncodePayload(signal.JobPayload{Title: title}),
	}
}

func TestRecommendRolesDefaultsWithoutSignals(t *testing.T) {
	got := RecommendRoles(nil, 0)
	want := DefaultRoleTitles()
	if len(got) != len(want) {
		t.Fatalf("got %d roles, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("role %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestRecommendRolesKeywordsLeadAndCollaboratorsAddPartnering(t *testing.T) {
	signals := []store.Signal{
		jobSignal("Flow Cytometry Scientist", "https://jobs.example/1"),
		{Type: signal.TypeTrialCollaborator, Source: signal.SourceClinicalTrials, Title: "Some trial", PayloadJSON: "{}"},
	}
	got := RecommendRoles(signals, 5)
	want := []string{
		roleLibrary[RoleImmuneMonitoring],
		roleLibrary[RoleExternalInnovation],
		roleLibrary[RoleTranslational],
		roleLibrary[RoleBiomarkers],
		roleLibrary[RoleBioassayPotency],
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v\nwant %v", got, want)
	}
}

func TestRecommendRolesKeepsAtLeastThree(t *testing.T) {
	if got := RecommendRoles(nil, 1); len(got) != MinRoles {
		t.Fatalf("expected %d roles, got %d", MinRoles, len(got))
	}
}

func TestTriggerSummary(t *testing.T) {
	long := strings.Repeat("x", 150)
	signals := []store.Signal{
		jobSignal("Biomarker Lead", ""),
		{Type: signal.TypeSECFiling, Title: long},
		{Type: signal.TypePatentPublication},
		jobSignal("ignored", ""),
	}
	got := TriggerSummary(signals, 3)
	want := "job_posting: Biomarker Lead | sec_filing: " + strings.Repeat("x", 110) + " | patent_publication"
	if got != want {
		t.Fatalf("got %q", got)
	}
	if TriggerSummary(nil, 3) != "" {
		t.Fatalf("empty signals must give empty summary")
	}
}

func TestSortByTotalThenName(t *testing.T) {
	rows := []Row{
		{AccountName: "Beta", Total: 7},
		{AccountName: "Gamma", Total: 9},
		{AccountName: "Alpha", Total: 7},
	}
	Sort(rows)
	if rows[0].AccountName != "Gamma" || rows[1].AccountName != "Alpha" || rows[2].AccountName != "Beta" {
		t.Fatalf("unexpected order %v", rows)
	}
	if len(Top(rows, 2)) != 2 || len(Top(rows, 0)) != 3 {
		t.Fatalf("top mismatch")
	}
}

func TestNewRowCarriesScoresTrialsAndEvidence(t *testing.T) {
	acc := store.Account{ID: 4, Name: "Acme Bio", Domain: "acme.example"}
	best := &store.Study{ID: "NCT1", NCTID: "NCT1", BriefTitle: "CAR-T study", OverallStatus: "RECRUITING", Phases: []string{"PHASE1", "PHASE2"}, StudyURL: "https://clinicaltrials.gov/study/NCT1"}
	res := scoring.Result{Fit: 5, Urgency: 3, Total: 8, FitReason: "CAR-T", UrgencyReason: "recruiting", UrgencySource: "trial", BestFitTrial: best, BestUrgencyTrial: best, TrialCount: 1}
	signals := []store.Signal{
		jobSignal("Biomarker Lead", "https://jobs.example/1"),
		jobSignal("Biomarker Lead", "https://jobs.example/1"),
		jobSignal("Potency Scientist", "https://jobs.example/2"),
		jobSignal("No link", ""),
	}
	row := NewRow(acc, res, signals, true, Options{MaxRoles: 4})
	if row.AccountID != 4 || row.Total != 8 || !row.OnWatchlist || row.Domain != "acme.example" {
		t.Fatalf("row %+v", row)
	}
	if row.BestFitTrial == nil || row.BestFitTrial.Phase != "PHASE1, PHASE2" || row.BestFitTrial.URL != best.StudyURL {
		t.Fatalf("best trial %+v", row.BestFitTrial)
	}
	if len(row.SignalEvidenceURLs) != 2 {
		t.Fatalf("evidence urls %v", row.SignalEvidenceURLs)
	}
	if len(row.TargetRoles) != 4 || row.TargetRoles[0] != roleLibrary[RoleTranslational] {
		t.Fatalf("roles %v", row.TargetRoles)
	}
	if !strings.HasPrefix(row.TriggerSummary, "job_posting: Biomarker Lead") {
		t.Fatalf("summary %q", row.TriggerSummary)
	}

	rows := []Row{row, {AccountName: "Other"}}
	if w := Watchlist(rows); len(w) != 1 || w[0].AccountName != "Acme Bio" {
		t.Fatalf("watchlist %v", w)
	}
}
