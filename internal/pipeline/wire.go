package pipeline

import (
	"github.com/ThorfinnThor/radar/internal/brief"
	"github.com/ThorfinnThor/radar/internal/collector"
	"github.com/ThorfinnThor/radar/internal/config"
	"github.com/ThorfinnThor/radar/internal/export"
	"github.com/ThorfinnThor/radar/internal/platform/logger"
	"github.com/ThorfinnThor/radar/internal/store"
)

const defaultUserAgent = "radar/1.0 (+https://github.com/ThorfinnThor/radar)"

// FromConfig builds a runner against the live upstream services cfg enables.
// A source that cannot be configured is logged and left out.
func FromConfig(cfg *config.Config, st *store.Store, log *logger.Logger) *Runner {
	clientCfg := collector.ClientConfig{
		UserAgent:    defaultUserAgent,
		RequestDelay: cfg.HTTP.RequestDelay(),
		Timeout:      cfg.HTTP.Timeout(),
		MaxRetries:   cfg.HTTP.MaxRetries,
		Logger:       log,
	}
	client := collector.NewClient(clientCfg)

	src := Sources{
		Trials: collector.NewClinicalTrials(client, collector.ClinicalTrialsConfig{
			BaseURL:    cfg.CTG.BaseURL,
			PageSize:   cfg.CTG.PageSize,
			MaxPages:   cfg.CTG.MaxPages,
			MaxStudies: cfg.CTG.MaxStudies,
		}),
	}
	if cfg.SEC.Enabled {
		secCfg := clientCfg
		if cfg.SEC.UserAgent != "" {
			secCfg.UserAgent = cfg.SEC.UserAgent
		} else {
			log.Warn("sec.user_agent is empty; EDGAR may refuse requests")
		}
		src.SEC = collector.NewSECEdgar(collector.NewClient(secCfg), collector.SECConfig{
			TickersURL:     cfg.SEC.TickersURL,
			SubmissionsURL: cfg.SEC.SubmissionsURL,
			ArchivesURL:    cfg.SEC.ArchivesURL,
			CachePath:      cfg.SEC.CachePath,
			AllowedForms:   cfg.SEC.AllowedForms,
			Keywords:       cfg.SEC.Keywords,
			WindowDays:     cfg.SEC.RecentWindowDays,
			MaxFilings:     cfg.SEC.MaxFilingsPerCompany,
			MinKeywordHits: cfg.SEC.MinKeywordHits,
		})
	}
	if cfg.Patents.Enabled {
		pv, err := collector.NewPatentsView(client, collector.PatentsConfig{
			BaseURL:    cfg.Patents.BaseURL,
			APIKey:     cfg.Patents.APIKey,
			Keywords:   cfg.Patents.Keywords,
			WindowDays: cfg.Patents.RecentWindowDays,
			MaxPatents: cfg.Patents.MaxPatentsPerCompany,
		})
		if err != nil {
			log.Warn("patent collector disabled", "error", err)
		} else {
			src.Patents = pv
		}
	}
	if cfg.Jobs.Enabled {
		jobs := collector.JobsConfig{Keywords: cfg.Jobs.Keywords}
		src.Greenhouse = collector.NewGreenhouse(client, cfg.Jobs.GreenhouseBaseURL, jobs)
		src.Lever = collector.NewLever(client, cfg.Jobs.LeverBaseURL, jobs)
		src.Workday = collector.NewWorkday(client, collector.WorkdayConfig{
			HostOverride: cfg.Jobs.WorkdayHostOverride,
			PageSize:     cfg.Jobs.WorkdayPageSize,
			MaxPages:     cfg.Jobs.WorkdayMaxPages,
		}, jobs)
	}

	opts := Options{Sources: src, Logger: log}
	if cfg.Brief.Enabled {
		w, err := brief.NewWriterFromEnv(brief.Config{
			Model:     cfg.Brief.Model,
			MaxTokens: cfg.Brief.MaxTokens,
			TopN:      cfg.Brief.TopN,
		}, log)
		if err != nil {
			log.Warn("account briefs disabled", "error", err)
		} else {
			opts.Briefs = w
		}
	}

	var pdf export.PDFRenderer
	if cfg.Exports.ReportPDF != "" {
		pdf = export.NewChromiumPDFRenderer("")
	}
	opts.Exporter = export.New(export.Config{
		Dir:           cfg.Exports.Dir,
		TopN:          cfg.Exports.TopN,
		OutCSV:        cfg.Exports.OutCSV,
		OutJSON:       cfg.Exports.OutJSON,
		WatchlistCSV:  cfg.Exports.WatchlistCSV,
		WatchlistJSON: cfg.Exports.WatchlistJSON,
		ReportHTML:    cfg.Exports.ReportHTML,
		ReportPDF:     cfg.Exports.ReportPDF,
	}, pdf, log)
	return New(cfg, st, opts)
}
