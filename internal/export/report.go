package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ThorfinnThor/radar/internal/rank"
)

// ReportMeta is the header block of the ranking report.
type ReportMeta struct {
	RunID       string
	GeneratedAt time.Time
	Mode        string
	// DetailRows limits the per-account sections; the table lists every row.
	DetailRows  int
}

const detailsHeading = "Account Details"

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// Markdown renders the ranking table followed by a section per top account.
func Markdown(rows []rank.Row, meta ReportMeta) string {
	var b strings.Builder
	b.WriteString("# Account Radar\n\n")
	if meta.RunID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", meta.RunID)
	}
	if !meta.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.GeneratedAt.UTC().Format(time.RFC3339))
	}
	if meta.Mode != "" {
		fmt.Fprintf(&b, "- Mode: %s\n", meta.Mode)
	}
	fmt.Fprintf(&b, "- Accounts: %d\n\n", len(rows))

	if len(rows) == 0 {
		b.WriteString("No accounts scored yet.\n")
		return b.String()
	}

	b.WriteString("## Ranking\n\n")
	b.WriteString("| # | Account | Fit | Urgency | Access | Total | Urgency source | Triggers |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for i, r := range rows {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s | %s |\n",
			i+1, cell(r.AccountName), num(r.Fit), num(r.Urgency), num(r.Access), num(r.Total),
			cell(r.UrgencySource), cell(r.TriggerSummary))
	}

	n := meta.DetailRows
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}
	fmt.Fprintf(&b, "\n## %s\n", detailsHeading)
	for i, r := range rows[:n] {
		fmt.Fprintf(&b, "\n### %d. %s\n\n", i+1, r.AccountName)
		fmt.Fprintf(&b, "- **Fit %s:** %s\n", num(r.Fit), r.FitReason)
		fmt.Fprintf(&b, "- **Urgency %s:** %s\n", num(r.Urgency), r.UrgencyReason)
		if t := r.BestFitTrial; t != nil {
			fmt.Fprintf(&b, "- **Best fit trial:** [%s](%s) (%s, %s)\n", cell(t.Title), t.URL, t.Status, t.Phase)
		}
		if r.SEC.MatchedTotal+r.Patents.MatchedTotal+r.Jobs.MatchedTotal > 0 {
			fmt.Fprintf(&b, "- **Matched signals:** %d filings, %d patents, %d jobs\n",
				r.SEC.MatchedTotal, r.Patents.MatchedTotal, r.Jobs.MatchedTotal)
		}
		if len(r.TargetRoles) > 0 {
			b.WriteString("- **Target roles:**\n")
			for _, role := range r.TargetRoles {
				fmt.Fprintf(&b, "  - %s\n", role)
			}
		}
		if len(r.SignalEvidenceURLs) > 0 {
			b.WriteString("- **Evidence:**\n")
			for _, u := range r.SignalEvidenceURLs {
				fmt.Fprintf(&b, "  - <%s>\n", u)
			}
		}
		if brief := strings.TrimSpace(r.Brief); brief != "" {
			b.WriteString("\n" + brief + "\n")
		}
	}
	return b.String()
}

const reportCSS = `body{font-family:-apple-system,"Segoe UI",Helvetica,Arial,sans-serif;color:#1c1917;margin:0;padding:1rem;background:#fff;}
.report{max-width:1100px;margin:0 auto;}
.report a{color:#1d4ed8;}
.report table{width:100%;border-collapse:collapse;font-size:0.85rem;}
.report th,.report td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
.report thead th{background:#f1f5f9;font-weight:700;}
h2[data-page-break-before="true"]{break-before:page;page-break-before:always;}
@media print{@page{size:auto;margin:12mm;} body{padding:0;}}`

// RenderHTML converts report markdown into a standalone HTML document.
func RenderHTML(markdown, title string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + reportCSS + "</style></head><body><div class='report'>" +
		applyPrintLayoutHooks(content.String()) +
		"</div></body></html>", nil
}

var reDetailsHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*` + detailsHeading + `\s*</h2>`)

// applyPrintLayoutHooks starts the per-account sections on a new printed page.
func applyPrintLayoutHooks(contentHTML string) string {
	return reDetailsHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">`+detailsHeading+`</h2>`)
}
