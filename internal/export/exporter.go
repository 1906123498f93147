package export

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ThorfinnThor/radar/internal/platform/atomicfile"
	"github.com/ThorfinnThor/radar/internal/platform/logger"
	"github.com/ThorfinnThor/radar/internal/rank"
)

// Config names the output files, relative to Dir unless absolute. An empty
// file name skips that output.
type Config struct {
	Dir           string
	TopN          int
	OutCSV        string
	OutJSON       string
	WatchlistCSV  string
	WatchlistJSON string
	ReportHTML    string
	ReportPDF     string
}

// Files lists what an export run wrote.
type Files struct {
	Written []string `json:"written"`
}

type Exporter struct {
	cfg Config
	pdf PDFRenderer
	log *logger.Logger
}

// New returns an exporter. pdf may be nil, which disables the PDF report.
func New(cfg Config, pdf PDFRenderer, log *logger.Logger) *Exporter {
	return &Exporter{cfg: cfg, pdf: pdf, log: log}
}

func (e *Exporter) path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.cfg.Dir, name)
}

// Export writes every configured output for rows, which must already be
// sorted. A PDF failure is logged and does not fail the export.
func (e *Exporter) Export(ctx context.Context, rows []rank.Row, meta ReportMeta) (Files, error) {
	var files Files
	top := rank.Top(rows, e.cfg.TopN)

	if e.cfg.OutCSV != "" && e.cfg.OutJSON != "" {
		csvPath, jsonPath := e.path(e.cfg.OutCSV), e.path(e.cfg.OutJSON)
		if err := WriteRanked(csvPath, jsonPath, top); err != nil {
			return files, fmt.Errorf("export ranked: %w", err)
		}
		files.Written = append(files.Written, csvPath, jsonPath)
	}
	if e.cfg.WatchlistCSV != "" && e.cfg.WatchlistJSON != "" {
		csvPath, jsonPath := e.path(e.cfg.WatchlistCSV), e.path(e.cfg.WatchlistJSON)
		if err := WriteWatchlist(csvPath, jsonPath, rank.Watchlist(rows)); err != nil {
			return files, fmt.Errorf("export watchlist: %w", err)
		}
		files.Written = append(files.Written, csvPath, jsonPath)
	}
	if e.cfg.ReportHTML == "" && e.cfg.ReportPDF == "" {
		return files, nil
	}

	doc, err := RenderHTML(Markdown(top, meta), "Account Radar")
	if err != nil {
		return files, err
	}
	if e.cfg.ReportHTML != "" {
		p := e.path(e.cfg.ReportHTML)
		if err := atomicfile.WriteFile(p, []byte(doc)); err != nil {
			return files, fmt.Errorf("export report: %w", err)
		}
		files.Written = append(files.Written, p)
	}
	if e.cfg.ReportPDF != "" && e.pdf != nil {
		pdf, err := e.pdf.Render(ctx, doc)
		if err != nil {
			e.log.Warn("pdf report skipped", "error", err)
			return files, nil
		}
		p := e.path(e.cfg.ReportPDF)
		if err := atomicfile.WriteFile(p, pdf); err != nil {
			return files, fmt.Errorf("export pdf: %w", err)
		}
		files.Written = append(files.Written, p)
	}
	return files, nil
}
