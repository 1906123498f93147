// Package pipeline runs a radar batch: registry trials, watchlist company
// signals, then the scoring pass and exports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ThorfinnThor/radar/internal/account"
	"github.com/ThorfinnThor/radar/internal/attribution"
	"github.com/ThorfinnThor/radar/internal/collector"
	"github.com/ThorfinnThor/radar/internal/config"
	"github.com/ThorfinnThor/radar/internal/export"
	"github.com/ThorfinnThor/radar/internal/observability"
	"github.com/ThorfinnThor/radar/internal/platform/logger"
	"github.com/ThorfinnThor/radar/internal/rank"
	"github.com/ThorfinnThor/radar/internal/signal"
	"github.com/ThorfinnThor/radar/internal/store"
)

type Mode string

const (
	ModeTrials    Mode = "trials"
	ModeCompanies Mode = "companies"
	ModeScore     Mode = "score"
	ModeFull      Mode = "full"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTrials, ModeCompanies, ModeScore, ModeFull:
		return m, nil
	case "":
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown mode %q (valid: trials, companies, score, full)", s)
	}
}

func (m Mode) runs(stage Mode) bool { return m == ModeFull || m == stage }

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type TrialSearcher interface {
	Search(ctx context.Context, query string) ([]signal.Trial, error)
}

type FilingSource interface {
	Filings(ctx context.Context, company string) ([]signal.NormalizedSignal, error)
}

type PatentSource interface {
	Patents(ctx context.Context, company string) ([]signal.NormalizedSignal, error)
}

// BoardSource is a job board keyed by one board identifier (a Greenhouse
// board token or a Lever account).
type BoardSource interface {
	Jobs(ctx context.Context, company, board string) ([]signal.NormalizedSignal, error)
}

type WorkdaySource interface {
	Jobs(ctx context.Context, company, tenant, site, wdHost string) ([]signal.NormalizedSignal, error)
}

type Briefer interface {
	Annotate(ctx context.Context, rows []rank.Row) int
}

type Exporter interface {
	Export(ctx context.Context, rows []rank.Row, meta export.ReportMeta) (export.Files, error)
}

// Sources are the upstream collectors. A nil source is skipped.
type Sources struct {
	Trials     TrialSearcher
	SEC        FilingSource
	Patents    PatentSource
	Greenhouse BoardSource
	Lever      BoardSource
	Workday    WorkdaySource
}

type Options struct {
	Sources  Sources
	Briefs   Briefer
	Exporter Exporter
	Logger   *logger.Logger
	Now      func() time.Time
}

// Summary counts what one run did.
type Summary struct {
	RunID          string                   `json:"run_id"`
	Mode           Mode                     `json:"mode"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	StagesExecuted []string                 `json:"stages_executed"`
	TrialsFetched  int                      `json:"trials_fetched"`
	TrialsKept     int                      `json:"trials_kept"`
	Attribution    map[attribution.Path]int `json:"attribution"`
	Companies      int                      `json:"companies"`
	SignalsAdded   int                      `json:"signals_added"`
	SourceErrors   int                      `json:"source_errors"`
	AccountsScored int                      `json:"accounts_scored"`
	Briefs         int                      `json:"briefs"`
	Files          []string                 `json:"files,omitempty"`
}

type Runner struct {
	cfg        *config.Config
	store      *store.Store
	src        Sources
	briefs     Briefer
	exporter   Exporter
	log        *logger.Logger
	now        func() time.Time
	resolver   *account.Resolver
	attributor *attribution.Attributor
	scorer     *Scorer
}

func New(cfg *config.Config, st *store.Store, opts Options) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	resolver := account.NewResolver(cfg.Normalization.Aliases)
	return &Runner{
		cfg:        cfg,
		store:      st,
		src:        opts.Sources,
		briefs:     opts.Briefs,
		exporter:   opts.Exporter,
		log:        opts.Logger,
		now:        now,
		resolver:   resolver,
		attributor: attribution.New(cfg.AttributionConfig(), resolver),
		scorer:     NewScorer(cfg, st, now),
	}
}

// Run executes the stages mode selects. Collector and per-trial failures are
// logged and counted; only storage, export and cancellation errors are
// returned.
func (r *Runner) Run(ctx context.Context, mode Mode) (Summary, error) {
	runID := uuid.NewString()
	sum := Summary{
		RunID:       runID,
		Mode:        mode,
		StartedAt:   r.now().UTC(),
		Attribution: map[attribution.Path]int{},
	}
	log := r.log.With("run_id", runID)
	ctx, span := observability.Tracer().Start(ctx, "radar.run", trace.WithAttributes(
		attribute.String("radar.run_id", runID),
		attribute.String("radar.mode", string(mode)),
	))
	defer span.End()

	stages := []struct {
		mode Mode
		fn   func(context.Context, *logger.Logger, *Summary) error
	}{
		{ModeTrials, r.ingestTrials},
		{ModeCompanies, r.ingestCompanies},
		{ModeScore, r.score},
	}
	for _, st := range stages {
		if !mode.runs(st.mode) {
			continue
		}
		log.Info("stage started", "stage", st.mode)
		if err := st.fn(ctx, log, &sum); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			sum.FinishedAt = r.now().UTC()
			return sum, &StageError{Stage: string(st.mode), Err: err}
		}
		sum.StagesExecuted = append(sum.StagesExecuted, string(st.mode))
	}
	sum.FinishedAt = r.now().UTC()
	span.SetAttributes(
		attribute.Int("radar.signals_added", sum.SignalsAdded),
		attribute.Int("radar.accounts_scored", sum.AccountsScored),
		attribute.Int("radar.source_errors", sum.SourceErrors),
	)
	log.Info("run finished",
		"mode", mode,
		"trials_kept", sum.TrialsKept,
		"signals_added", sum.SignalsAdded,
		"source_errors", sum.SourceErrors,
		"accounts_scored", sum.AccountsScored,
	)
	return sum, nil
}

func (r *Runner) ingestTrials(ctx context.Context, log *logger.Logger, sum *Summary) error {
	if r.src.Trials == nil {
		log.Warn("trials stage has no registry source")
		return nil
	}
	ctx, span := observability.Tracer().Start(ctx, "radar.trials")
	defer span.End()

	seen := map[string]struct{}{}
	for _, q := range r.cfg.CTG.Queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		trials, err := r.src.Trials.Search(ctx, q)
		if err != nil {
			sum.SourceErrors++
			span.RecordError(err)
			log.Warn("registry query failed", "query", q, "error", err)
		}
		sum.TrialsFetched += len(trials)
		for _, t := range trials {
			if id := strings.TrimSpace(t.NCTID); id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			if !collector.KeepStatus(t, r.cfg.CTG.KeepStatuses) {
				continue
			}
			sum.TrialsKept++
			out, err := r.attributor.Attribute(ctx, r.store, t)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				sum.SourceErrors++
				log.Warn("trial attribution failed", "nct_id", t.NCTID, "error", err)
				continue
			}
			sum.Attribution[out.Path]++
			sum.SignalsAdded += out.SignalsInserted
		}
	}
	span.SetAttributes(attribute.Int("radar.trials_kept", sum.TrialsKept))
	return nil
}

type companyResult struct {
	added  int
	failed int
}

func (r *Runner) ingestCompanies(ctx context.Context, log *logger.Logger, sum *Summary) error {
	ctx, span := observability.Tracer().Start(ctx, "radar.companies")
	defer span.End()

	workers := r.cfg.Run.CompanyWorkers
	if workers <= 0 {
		workers = 1
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, co := range r.cfg.Companies {
		if strings.TrimSpace(co.Name) == "" {
			continue
		}
		g.Go(func() error {
			res := r.ingestCompany(gctx, log, co)
			mu.Lock()
			sum.Companies++
			sum.SignalsAdded += res.added
			sum.SourceErrors += res.failed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.ingestJobsFile(ctx, log)
	sum.SignalsAdded += res.added
	sum.SourceErrors += res.failed
	return ctx.Err()
}

type fetchFunc func(ctx context.Context) ([]signal.NormalizedSignal, error)

type companySource struct {
	source signal.Source
	fetch  fetchFunc
}

// companySources lists the collectors enabled for co, in run order.
func (r *Runner) companySources(co config.Company, name string) []companySource {
	var out []companySource
	if r.cfg.SEC.Enabled && co.SECEnabled() && r.src.SEC != nil {
		out = append(out, companySource{signal.SourceSECEdgar, func(ctx context.Context) ([]signal.NormalizedSignal, error) {
			return r.src.SEC.Filings(ctx, name)
		}})
	}
	if r.cfg.Patents.Enabled && co.PatentsEnabled() && r.src.Patents != nil {
		out = append(out, companySource{signal.SourcePatentsView, func(ctx context.Context) ([]signal.NormalizedSignal, error) {
			return r.src.Patents.Patents(ctx, name)
		}})
	}
	if !r.cfg.Jobs.Enabled {
		return out
	}
	switch strings.ToLower(strings.TrimSpace(co.ATS)) {
	case "greenhouse":
		if r.src.Greenhouse != nil && co.BoardToken != "" {
			out = append(out, companySource{signal.SourceGreenhouse, func(ctx context.Context) ([]signal.NormalizedSignal, error) {
				return r.src.Greenhouse.Jobs(ctx, name, co.BoardToken)
			}})
		}
	case "lever":
		if r.src.Lever != nil && co.LeverAccount != "" {
			out = append(out, companySource{signal.SourceLever, func(ctx context.Context) ([]signal.NormalizedSignal, error) {
				return r.src.Lever.Jobs(ctx, name, co.LeverAccount)
			}})
		}
	case "workday":
		if r.src.Workday != nil && co.Tenant != "" && co.Site != "" {
			out = append(out, companySource{signal.SourceWorkday, func(ctx context.Context) ([]signal.NormalizedSignal, error) {
				return r.src.Workday.Jobs(ctx, name, co.Tenant, co.Site, co.WDHost)
			}})
		}
	}
	return out
}

func (r *Runner) ingestCompany(ctx context.Context, log *logger.Logger, co config.Company) companyResult {
	name := account.Canonicalize(r.resolver.Resolve(co.Name))
	log = log.With("company", name)
	ctx, span := observability.Tracer().Start(ctx, "radar.company", trace.WithAttributes(attribute.String("radar.company", name)))
	defer span.End()

	var res companyResult
	id, err := r.store.UpsertAccount(ctx, store.AccountInput{Name: name, Domain: co.Domain, ModalityTags: co.ModalityTags})
	if err != nil {
		res.failed++
		span.RecordError(err)
		log.Error("account upsert failed", "error", err)
		return res
	}
	for _, src := range r.companySources(co, name) {
		if ctx.Err() != nil {
			return res
		}
		sigs, err := src.fetch(ctx)
		if err != nil {
			res.failed++
			span.RecordError(err)
			log.Warn("collector failed, source skipped", "source", src.source, "error", err)
			continue
		}
		n, err := r.insertSignals(ctx, log, id, sigs)
		res.added += n
		if err != nil {
			res.failed++
			log.Error("signal insert failed", "source", src.source, "error", err)
			continue
		}
		log.Debug("source ingested", "source", src.source, "fetched", len(sigs), "added", n)
	}
	return res
}

// insertSignals stores sigs under accountID. Invalid signals are skipped;
// duplicates are no-ops. The store serializes inserts per account.
func (r *Runner) insertSignals(ctx context.Context, log *logger.Logger, accountID int64, sigs []signal.NormalizedSignal) (int, error) {
	added := 0
	for _, sig := range sigs {
		if err := sig.Validate(); err != nil {
			log.Debug("signal dropped", "title", sig.Title, "error", err)
			continue
		}
		ok, err := r.store.InsertSignal(ctx, accountID, sig)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// ingestJobsFile loads scraped postings from jobs.jobs_json_path. Each posting
// names its own company, so accounts are resolved per signal.
func (r *Runner) ingestJobsFile(ctx context.Context, log *logger.Logger) companyResult {
	var res companyResult
	path := strings.TrimSpace(r.cfg.Jobs.JobsJSONPath)
	if !r.cfg.Jobs.Enabled || path == "" {
		return res
	}
	sigs, err := collector.JobsJSON(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("jobs file not found, skipped", "path", path)
			return res
		}
		res.failed++
		log.Warn("jobs file unreadable", "path", path, "error", err)
		return res
	}
	byAccount := map[string][]signal.NormalizedSignal{}
	var order []string
	for _, sig := range sigs {
		name := account.Canonicalize(r.resolver.Resolve(sig.AccountName))
		if _, ok := byAccount[name]; !ok {
			order = append(order, name)
		}
		byAccount[name] = append(byAccount[name], sig)
	}
	for _, name := range order {
		if ctx.Err() != nil {
			return res
		}
		id, err := r.store.UpsertAccount(ctx, store.AccountInput{Name: name})
		if err != nil {
			res.failed++
			log.Error("account upsert failed", "company", name, "error", err)
			continue
		}
		n, err := r.insertSignals(ctx, log, id, byAccount[name])
		res.added += n
		if err != nil {
			res.failed++
			log.Error("signal insert failed", "company", name, "source", signal.SourceJobsJSON, "error", err)
		}
	}
	log.Info("jobs file ingested", "path", path, "postings", len(sigs), "added", res.added)
	return res
}

func (r *Runner) score(ctx context.Context, log *logger.Logger, sum *Summary) error {
	ctx, span := observability.Tracer().Start(ctx, "radar.score")
	defer span.End()

	rows, err := r.scorer.Rows(ctx, true)
	if err != nil {
		return err
	}
	sum.AccountsScored = len(rows)
	if r.briefs != nil {
		sum.Briefs = r.briefs.Annotate(ctx, rows)
	}
	if r.exporter == nil {
		return nil
	}
	files, err := r.exporter.Export(ctx, rows, export.ReportMeta{
		RunID:       sum.RunID,
		GeneratedAt: r.now().UTC(),
		Mode:        string(sum.Mode),
		DetailRows:  r.cfg.Exports.DetailRows,
	})
	sum.Files = files.Written
	if err != nil {
		return err
	}
	log.Info("exports written", "files", len(files.Written))
	return nil
}
