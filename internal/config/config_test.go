package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThorfinnThor/radar/internal/scoring"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	t.Setenv("RADAR_DB_PATH", "")
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "data/radar.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Scoring.Weights.Fit != 1 || cfg.Scoring.Access.Strategy != "flat" {
		t.Fatalf("unexpected scoring defaults %+v", cfg.Scoring)
	}
	if len(cfg.CTG.KeepSponsorClasses) != 1 || cfg.CTG.KeepSponsorClasses[0] != "INDUSTRY" {
		t.Fatalf("unexpected sponsor classes %v", cfg.CTG.KeepSponsorClasses)
	}
	if cfg.Exports.TopN != 40 {
		t.Fatalf("expected top_n 40, got %d", cfg.Exports.TopN)
	}
	if cfg.Run.CompanyWorkers != 1 || cfg.Exports.DetailRows != 10 {
		t.Fatalf("unexpected run/export defaults %+v %+v", cfg.Run, cfg.Exports)
	}
	if cfg.Jobs.GreenhouseBaseURL != "" || cfg.Jobs.LeverBaseURL != "" {
		t.Fatalf("expected public board hosts by default, got %+v", cfg.Jobs)
	}
}

func TestWatchlistNamesResolveAliases(t *testing.T) {
	t.Setenv("RADAR_DB_PATH", "")
	path := writeFile(t, "config.yaml", `
normalization:
  aliases:
    "Kite, a Gilead Company": Kite Pharma
companies:
  - name: "Kite, a Gilead Company"
  - name: "  Legend   Biotech "
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	names := cfg.WatchlistNames()
	for _, want := range []string{"kite pharma", "legend biotech"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("expected %q in %v", want, names)
		}
	}
	if len(names) != 2 {
		t.Fatalf("unexpected watchlist %v", names)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	t.Setenv("RADAR_DB_PATH", "")
	path := writeFile(t, "config.yaml", `
ctg:
  high_urgency_phases: [PHASE1]
  include_industry_collaborators: false
scoring:
  access:
    strategy: watchlist
    known_points: 3
  watchlist_bonus: 1.5
normalization:
  aliases:
    "Gilead Sciences, Inc.": Gilead Sciences
companies:
  - name: Gilead Sciences
    ats: greenhouse
    board_token: gilead
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.CTG.HighUrgencyPhases) != 1 {
		t.Fatalf("expected list replaced, got %v", cfg.CTG.HighUrgencyPhases)
	}
	if cfg.CTG.IncludeIndustryCollaborators {
		t.Fatal("expected include_industry_collaborators overridden to false")
	}
	if !cfg.CTG.AttributeNonIndustryLeadsToCollaborators {
		t.Fatal("expected untouched default to survive overlay")
	}
	if cfg.Normalization.Aliases["Gilead Sciences, Inc."] != "Gilead Sciences" {
		t.Fatalf("unexpected aliases %v", cfg.Normalization.Aliases)
	}

	sc := cfg.ScoringConfig(nil)
	if sc.Access.Strategy != scoring.AccessWatchlist || sc.Access.KnownPoints != 3 || sc.WatchlistBonus != 1.5 {
		t.Fatalf("unexpected scoring config %+v", sc)
	}
	if _, ok := cfg.WatchlistNames()["gilead sciences"]; !ok {
		t.Fatal("expected watchlist membership")
	}
	ac := cfg.AttributionConfig()
	if ac.IncludeIndustryCollaborators || !ac.AttributeNonIndustryLeadsToCollaborators {
		t.Fatalf("unexpected attribution config %+v", ac)
	}
}

func TestLoadCompaniesFileReplacesInline(t *testing.T) {
	t.Setenv("RADAR_DB_PATH", "/tmp/override.db")
	cfgPath := writeFile(t, "config.yaml", "companies:\n  - name: Inline Co\n")
	companiesPath := writeFile(t, "companies.yaml", `
companies:
  - name: Kite Pharma
    sec: false
    ats: workday
    tenant: kite
    wd_host: wd1
    site: KiteCareers
  - name: Legend Biotech
`)
	cfg, err := Load(cfgPath, companiesPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Companies) != 2 || cfg.Companies[0].Name != "Kite Pharma" {
		t.Fatalf("unexpected companies %+v", cfg.Companies)
	}
	if cfg.Companies[0].SECEnabled() || !cfg.Companies[1].SECEnabled() {
		t.Fatal("unexpected per-company sec toggles")
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Fatalf("expected env override, got %q", cfg.Database.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("RADAR_DB_PATH", "")
	path := writeFile(t, "config.yaml", `
scoring:
  access:
    strategy: ats
ctg:
  base_url: ftp://example.com
run:
  company_workers: -2
jobs:
  greenhouse_base_url: greenhouse.local
companies:
  - name: Dup Co
  - name: dup co
  - name: Lever Co
    ats: lever
`)
	_, err := Load(path, "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown strategy", "ctg.base_url", "duplicate company", "lever requires lever_account",
		"run.company_workers must not be negative", "jobs.greenhouse_base_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
