package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThorfinnThor/radar/internal/config"
	"github.com/ThorfinnThor/radar/internal/rank"
	"github.com/ThorfinnThor/radar/internal/scoring"
	"github.com/ThorfinnThor/radar/internal/store"
)

// Scorer turns stored accounts into ranked rows. A row depends only on what
// is stored for the account and the scorer clock.
type Scorer struct {
	store  *store.Store
	engine *scoring.Engine
	watch  map[string]struct{}
	opts   rank.Options
}

func NewScorer(cfg *config.Config, st *store.Store, now func() time.Time) *Scorer {
	return &Scorer{
		store:  st,
		engine: scoring.New(cfg.ScoringConfig(now)),
		watch:  cfg.WatchlistNames(),
		opts:   rank.Options{MaxRoles: cfg.Exports.MaxRoles, TriggerItems: cfg.Exports.TriggerItems},
	}
}

func (s *Scorer) OnWatchlist(name string) bool {
	_, ok := s.watch[strings.ToLower(name)]
	return ok
}

// Row scores one account without writing anything.
func (s *Scorer) Row(ctx context.Context, acc store.Account) (rank.Row, scoring.Result, error) {
	studies, err := s.store.StudiesForAccount(ctx, acc.ID)
	if err != nil {
		return rank.Row{}, scoring.Result{}, fmt.Errorf("studies for %s: %w", acc.Name, err)
	}
	signals, err := s.store.SignalsForAccount(ctx, acc.ID)
	if err != nil {
		return rank.Row{}, scoring.Result{}, fmt.Errorf("signals for %s: %w", acc.Name, err)
	}
	onWatchlist := s.OnWatchlist(acc.Name)
	res := s.engine.Score(scoring.Input{Trials: studies, Signals: signals, OnWatchlist: onWatchlist})
	return rank.NewRow(acc, res, signals, onWatchlist, s.opts), res, nil
}

// Rows scores every account and returns them ranked. With persist set the
// scores are written back to each account.
func (s *Scorer) Rows(ctx context.Context, persist bool) ([]rank.Row, error) {
	accounts, err := s.store.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	rows := make([]rank.Row, 0, len(accounts))
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, res, err := s.Row(ctx, acc)
		if err != nil {
			return nil, err
		}
		if persist {
			sc := store.Scores{Fit: res.Fit, Urgency: res.Urgency, Access: res.Access, Total: res.Total}
			if err := s.store.SetScores(ctx, acc.ID, sc); err != nil {
				return nil, fmt.Errorf("set scores for %s: %w", acc.Name, err)
			}
		}
		rows = append(rows, row)
	}
	rank.Sort(rows)
	return rows, nil
}
