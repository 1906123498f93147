package config

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ThorfinnThor/radar/internal/account"
	"github.com/ThorfinnThor/radar/internal/attribution"
	"github.com/ThorfinnThor/radar/internal/scoring"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RunConfig tunes the batch runner.
type RunConfig struct {
	CompanyWorkers int `yaml:"company_workers"`
}

type HTTPConfig struct {
	RequestDelayMS int `yaml:"request_delay_ms"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

func (h HTTPConfig) RequestDelay() time.Duration {
	return time.Duration(h.RequestDelayMS) * time.Millisecond
}

func (h HTTPConfig) Timeout() time.Duration {
	if h.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(h.TimeoutSeconds) * time.Second
}

type CTGConfig struct {
	BaseURL                                  string   `yaml:"base_url"`
	PageSize                                 int      `yaml:"page_size"`
	MaxPages                                 int      `yaml:"max_pages"`
	MaxStudies                               int      `yaml:"max_studies"`
	Queries                                  []string `yaml:"queries"`
	KeepStatuses                             []string `yaml:"keep_statuses"`
	KeepSponsorClasses                       []string `yaml:"keep_sponsor_classes"`
	IncludeIndustryCollaborators             bool     `yaml:"include_industry_collaborators"`
	AttributeNonIndustryLeadsToCollaborators bool     `yaml:"attribute_non_industry_leads_to_collaborators"`
	ActiveStatuses                           []string `yaml:"active_statuses"`
	HighUrgencyPhases                        []string `yaml:"high_urgency_phases"`
	TCellEngagerMolecules                    []string `yaml:"tcell_engager_molecules"`
}

type SECConfig struct {
	Enabled              bool     `yaml:"enabled"`
	UserAgent            string   `yaml:"user_agent"`
	TickersURL           string   `yaml:"tickers_url"`
	SubmissionsURL       string   `yaml:"submissions_url"`
	ArchivesURL          string   `yaml:"archives_url"`
	CachePath            string   `yaml:"cache_path"`
	AllowedForms         []string `yaml:"allowed_forms"`
	Keywords             []string `yaml:"keywords"`
	RecentWindowDays     int      `yaml:"recent_window_days"`
	MaxFilingsPerCompany int      `yaml:"max_filings_per_company"`
	MinKeywordHits       int      `yaml:"min_keyword_hits"`
}

type PatentsConfig struct {
	Enabled              bool     `yaml:"enabled"`
	BaseURL              string   `yaml:"base_url"`
	APIKey               string   `yaml:"api_key"`
	Keywords             []string `yaml:"keywords"`
	RecentWindowDays     int      `yaml:"recent_window_days"`
	MaxPatentsPerCompany int      `yaml:"max_patents_per_company"`
}

type JobsConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Keywords            []string `yaml:"keywords"`
	RecentWindowDays    int      `yaml:"recent_window_days"`
	JobsJSONPath        string   `yaml:"jobs_json_path"`
	WorkdayPageSize     int      `yaml:"workday_page_size"`
	WorkdayMaxPages     int      `yaml:"workday_max_pages"`
	// Board endpoints; empty uses the public hosts.
	GreenhouseBaseURL   string   `yaml:"greenhouse_base_url"`
	LeverBaseURL        string   `yaml:"lever_base_url"`
	WorkdayHostOverride string   `yaml:"workday_host_override"`
}

type NormalizationConfig struct {
	Aliases map[string]string `yaml:"aliases"`
}

type WeightsConfig struct {
	Fit     float64 `yaml:"fit"`
	Urgency float64 `yaml:"urgency"`
	Access  float64 `yaml:"access"`
}

type AccessConfig struct {
	Strategy      string  `yaml:"strategy"`
	DefaultPoints float64 `yaml:"default_points"`
	KnownPoints   float64 `yaml:"known_points"`
	UnknownPoints float64 `yaml:"unknown_points"`
}

type TiebreakersConfig struct {
	RecentTrialUpdateDays   int     `yaml:"recent_trial_update_days"`
	RecentTrialBonus        float64 `yaml:"recent_trial_bonus"`
	ExtraTrialBonusPerTrial float64 `yaml:"extra_trial_bonus_per_trial"`
	ExtraTrialBonusCap      float64 `yaml:"extra_trial_bonus_cap"`
}

type ScoringConfig struct {
	Weights        WeightsConfig     `yaml:"weights"`
	Access         AccessConfig      `yaml:"access"`
	WatchlistBonus float64           `yaml:"watchlist_bonus"`
	MaxTrials      int               `yaml:"max_trials"`
	Tiebreakers    TiebreakersConfig `yaml:"tiebreakers"`
}

type ExportsConfig struct {
	Dir           string `yaml:"dir"`
	TopN          int    `yaml:"top_n"`
	OutCSV        string `yaml:"out_csv"`
	OutJSON       string `yaml:"out_json"`
	WatchlistCSV  string `yaml:"watchlist_csv"`
	WatchlistJSON string `yaml:"watchlist_json"`
	ReportHTML    string `yaml:"report_html"`
	ReportPDF     string `yaml:"report_pdf"`
	MaxRoles      int    `yaml:"max_roles"`
	TriggerItems  int    `yaml:"trigger_items"`
	DetailRows    int    `yaml:"detail_rows"`
}

type BriefConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	TopN      int    `yaml:"top_n"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Company is one watchlist entry. The ATS fields are only read for the
// matching ATS value.
type Company struct {
	Name         string   `yaml:"name"`
	Domain       string   `yaml:"domain,omitempty"`
	ModalityTags []string `yaml:"modality_tags,omitempty"`
	SEC          *bool    `yaml:"sec,omitempty"`
	Patents      *bool    `yaml:"patents,omitempty"`
	ATS          string   `yaml:"ats,omitempty"`
	BoardToken   string   `yaml:"board_token,omitempty"`
	LeverAccount string   `yaml:"lever_account,omitempty"`
	Tenant       string   `yaml:"tenant,omitempty"`
	WDHost       string   `yaml:"wd_host,omitempty"`
	Site         string   `yaml:"site,omitempty"`
}

// SECEnabled reports whether filings should be collected for the company.
func (c Company) SECEnabled() bool { return c.SEC == nil || *c.SEC }

func (c Company) PatentsEnabled() bool { return c.Patents == nil || *c.Patents }

type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Run           RunConfig           `yaml:"run"`
	HTTP          HTTPConfig          `yaml:"http"`
	CTG           CTGConfig           `yaml:"ctg"`
	SEC           SECConfig           `yaml:"sec"`
	Patents       PatentsConfig       `yaml:"patents"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Exports       ExportsConfig       `yaml:"exports"`
	Brief         BriefConfig         `yaml:"brief"`
	Companies     []Company           `yaml:"companies"`
}

type companiesFile struct {
	Companies []Company `yaml:"companies"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := overlayEmbedded(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayEmbedded(cfg *Config) error {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return fmt.Errorf("reading embedded config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing embedded config: %w", err)
	}
	return nil
}

// Load reads the embedded defaults and overlays path on top. Keys absent from
// the file keep their default; lists present in the file replace the default
// list. An empty path loads defaults only. companiesPath, when set, supplies
// the watchlist and replaces any companies given in path.
func Load(path, companiesPath string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if strings.TrimSpace(companiesPath) != "" {
		companies, err := LoadCompanies(companiesPath)
		if err != nil {
			return nil, err
		}
		cfg.Companies = companies
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadCompanies(path string) ([]Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading companies: %w", err)
	}
	var cf companiesFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing companies %s: %w", path, err)
	}
	return cf.Companies, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("RADAR_DB_PATH")); v != "" {
		c.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("SEC_USER_AGENT")); v != "" {
		c.SEC.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv("PATENTSVIEW_API_KEY")); v != "" {
		c.Patents.APIKey = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	for name, raw := range map[string]string{
		"ctg.base_url":               c.CTG.BaseURL,
		"sec.tickers_url":            c.SEC.TickersURL,
		"sec.submissions_url":        c.SEC.SubmissionsURL,
		"sec.archives_url":           c.SEC.ArchivesURL,
		"patents.base_url":           c.Patents.BaseURL,
		"jobs.greenhouse_base_url":   c.Jobs.GreenhouseBaseURL,
		"jobs.lever_base_url":        c.Jobs.LeverBaseURL,
		"jobs.workday_host_override": c.Jobs.WorkdayHostOverride,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("%s: invalid url %q", name, raw))
		}
	}
	switch scoring.AccessStrategy(strings.TrimSpace(c.Scoring.Access.Strategy)) {
	case "", scoring.AccessFlat, scoring.AccessWatchlist:
	default:
		errs = append(errs, fmt.Errorf("scoring.access.strategy: unknown strategy %q (valid: flat, watchlist)", c.Scoring.Access.Strategy))
	}
	for label, v := range map[string]int{
		"run.company_workers":             c.Run.CompanyWorkers,
		"ctg.page_size":                   c.CTG.PageSize,
		"ctg.max_pages":                   c.CTG.MaxPages,
		"sec.recent_window_days":          c.SEC.RecentWindowDays,
		"patents.recent_window_days":      c.Patents.RecentWindowDays,
		"jobs.recent_window_days":         c.Jobs.RecentWindowDays,
		"exports.top_n":                   c.Exports.TopN,
		"exports.detail_rows":             c.Exports.DetailRows,
		"scoring.max_trials":              c.Scoring.MaxTrials,
		"scoring.tiebreakers.recent_days": c.Scoring.Tiebreakers.RecentTrialUpdateDays,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", label))
		}
	}
	seen := map[string]struct{}{}
	for i, co := range c.Companies {
		name := strings.TrimSpace(co.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("companies[%d]: name is required", i))
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("companies[%d]: duplicate company %q", i, name))
		}
		seen[key] = struct{}{}
		switch strings.ToLower(strings.TrimSpace(co.ATS)) {
		case "", "none":
		case "greenhouse":
			if co.BoardToken == "" {
				errs = append(errs, fmt.Errorf("company %q: greenhouse requires board_token", name))
			}
		case "lever":
			if co.LeverAccount == "" {
				errs = append(errs, fmt.Errorf("company %q: lever requires lever_account", name))
			}
		case "workday":
			if co.Tenant == "" || co.WDHost == "" || co.Site == "" {
				errs = append(errs, fmt.Errorf("company %q: workday requires tenant, wd_host and site", name))
			}
		default:
			errs = append(errs, fmt.Errorf("company %q: unknown ats %q (valid: greenhouse, lever, workday)", name, co.ATS))
		}
	}
	return errors.Join(errs...)
}

// WatchlistNames is the set of watchlist account names after alias
// resolution, lower-cased.
func (c *Config) WatchlistNames() map[string]struct{} {
	resolver := account.NewResolver(c.Normalization.Aliases)
	out := make(map[string]struct{}, len(c.Companies))
	for _, co := range c.Companies {
		if strings.TrimSpace(co.Name) == "" {
			continue
		}
		out[strings.ToLower(account.Canonicalize(resolver.Resolve(co.Name)))] = struct{}{}
	}
	return out
}

func (c *Config) AttributionConfig() attribution.Config {
	return attribution.Config{
		KeepSponsorClasses:                       c.CTG.KeepSponsorClasses,
		IncludeIndustryCollaborators:             c.CTG.IncludeIndustryCollaborators,
		AttributeNonIndustryLeadsToCollaborators: c.CTG.AttributeNonIndustryLeadsToCollaborators,
	}
}

func (c *Config) ScoringConfig(now func() time.Time) scoring.Config {
	s := c.Scoring
	return scoring.Config{
		EngagerMolecules:  c.CTG.TCellEngagerMolecules,
		ActiveStatuses:    c.CTG.ActiveStatuses,
		HighUrgencyPhases: c.CTG.HighUrgencyPhases,
		SEC:               scoring.SourceConfig{Keywords: c.SEC.Keywords, WindowDays: c.SEC.RecentWindowDays},
		Patents:           scoring.SourceConfig{Keywords: c.Patents.Keywords, WindowDays: c.Patents.RecentWindowDays},
		Jobs:              scoring.SourceConfig{Keywords: c.Jobs.Keywords, WindowDays: c.Jobs.RecentWindowDays},
		Weights:           scoring.Weights{Fit: s.Weights.Fit, Urgency: s.Weights.Urgency, Access: s.Weights.Access},
		Access: scoring.AccessConfig{
			Strategy:      scoring.AccessStrategy(strings.TrimSpace(s.Access.Strategy)),
			DefaultPoints: s.Access.DefaultPoints,
			KnownPoints:   s.Access.KnownPoints,
			UnknownPoints: s.Access.UnknownPoints,
		},
		WatchlistBonus: s.WatchlistBonus,
		Tiebreakers: scoring.Tiebreakers{
			RecentTrialUpdateDays:   s.Tiebreakers.RecentTrialUpdateDays,
			RecentTrialBonus:        s.Tiebreakers.RecentTrialBonus,
			ExtraTrialBonusPerTrial: s.Tiebreakers.ExtraTrialBonusPerTrial,
			ExtraTrialBonusCap:      s.Tiebreakers.ExtraTrialBonusCap,
		},
		MaxTrials: s.MaxTrials,
		Now:       now,
	}
}
