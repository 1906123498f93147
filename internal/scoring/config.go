package scoring

import (
	"strings"
	"time"
)

type AccessStrategy string

const (
	// AccessFlat awards DefaultPoints to every account.
	AccessFlat AccessStrategy = "flat"
	// AccessWatchlist awards KnownPoints to watchlist members and
	// UnknownPoints to everyone else.
	AccessWatchlist AccessStrategy = "watchlist"
)

const (
	UrgencySourceTrial   = "trial"
	UrgencySourceSignals = "signals"
	UrgencySourceNone    = "none"
)

// SourceConfig controls how one non-trial signal type counts toward
// urgency: a signal counts when published within WindowDays and its text
// contains at least one keyword.
type SourceConfig struct {
	Keywords   []string
	WindowDays int
}

type Weights struct {
	Fit     float64
	Urgency float64
	Access  float64
}

type AccessConfig struct {
	Strategy      AccessStrategy
	DefaultPoints float64
	KnownPoints   float64
	UnknownPoints float64
}

type Tiebreakers struct {
	RecentTrialUpdateDays   int
	RecentTrialBonus        float64
	ExtraTrialBonusPerTrial float64
	ExtraTrialBonusCap      float64
}

type Config struct {
	EngagerMolecules  []string
	ActiveStatuses    []string
	HighUrgencyPhases []string

	SEC     SourceConfig
	Patents SourceConfig
	Jobs    SourceConfig

	Weights        Weights
	Access         AccessConfig
	WatchlistBonus float64
	Tiebreakers    Tiebreakers

	// MaxTrials bounds how many stored trials feed fit and urgency. Zero
	// means no bound.
	MaxTrials   int
	MaxExamples int

	Now func() time.Time
}

var (
	defaultActiveStatuses    = []string{"RECRUITING", "NOT_YET_RECRUITING", "ACTIVE_NOT_RECRUITING"}
	defaultHighUrgencyPhases = []string{"PHASE1", "PHASE2"}
)

const (
	defaultSECWindowDays    = 90
	defaultPatentWindowDays = 365
	defaultJobWindowDays    = 45
	defaultMaxExamples      = 3
)

// DefaultConfig is the behaviour of an empty configuration file.
func DefaultConfig() Config {
	return Config{
		ActiveStatuses:    append([]string(nil), defaultActiveStatuses...),
		HighUrgencyPhases: append([]string(nil), defaultHighUrgencyPhases...),
		SEC:               SourceConfig{WindowDays: defaultSECWindowDays},
		Patents:           SourceConfig{WindowDays: defaultPatentWindowDays},
		Jobs:              SourceConfig{WindowDays: defaultJobWindowDays},
		Weights:           Weights{Fit: 1, Urgency: 1, Access: 1},
		Access:            AccessConfig{Strategy: AccessFlat},
		MaxTrials:         50,
		MaxExamples:       defaultMaxExamples,
	}
}

func (c Config) withDefaults() Config {
	if len(c.ActiveStatuses) == 0 {
		c.ActiveStatuses = defaultActiveStatuses
	}
	if len(c.HighUrgencyPhases) == 0 {
		c.HighUrgencyPhases = defaultHighUrgencyPhases
	}
	if c.SEC.WindowDays <= 0 {
		c.SEC.WindowDays = defaultSECWindowDays
	}
	if c.Patents.WindowDays <= 0 {
		c.Patents.WindowDays = defaultPatentWindowDays
	}
	if c.Jobs.WindowDays <= 0 {
		c.Jobs.WindowDays = defaultJobWindowDays
	}
	// Filings share the patent vocabulary when they have none of their own.
	if len(c.SEC.Keywords) == 0 {
		c.SEC.Keywords = c.Patents.Keywords
	}
	if c.Access.Strategy == "" {
		c.Access.Strategy = AccessFlat
	}
	if c.MaxExamples <= 0 {
		c.MaxExamples = defaultMaxExamples
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func upperSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
