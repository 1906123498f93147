package collector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ThorfinnThor/radar/internal/signal"
)

const (
	DefaultPatentsViewURL = "https://search.patentsview.org"
	patentsViewPatentPath = "/api/v1/patent/"
	sourcePatents         = string(signal.SourcePatentsView)

	patentAbstractChars = 2000
	patentBlobChars     = 800
)

type PatentsConfig struct {
	BaseURL    string
	APIKey     string
	Keywords   []string
	WindowDays int
	MaxPatents int
	Now        func() time.Time
}

// PatentsView searches granted patents by assignee and modality keywords.
type PatentsView struct {
	client *Client
	cfg    PatentsConfig
}

func NewPatentsView(client *Client, cfg PatentsConfig) (*PatentsView, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("PATENTSVIEW_API_KEY not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPatentsViewURL
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 365
	}
	if cfg.MaxPatents <= 0 {
		cfg.MaxPatents = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PatentsView{client: client, cfg: cfg}, nil
}

type patentAPIResponse struct {
	Error     bool             `json:"error"`
	Count     int              `json:"count"`
	TotalHits int              `json:"total_hits"`
	Patents   []map[string]any `json:"patents"`
}

func (p *PatentsView) queryBody(company string) map[string]any {
	terms := strings.Join(p.cfg.Keywords, " ")
	return map[string]any{
		"q": map[string]any{"_and": []any{
			map[string]any{"_contains": map[string]any{"assignees.assignee_organization": company}},
			map[string]any{"_or": []any{
				map[string]any{"_text_any": map[string]any{"patent_title": terms}},
				map[string]any{"_text_any": map[string]any{"patent_abstract": terms}},
			}},
		}},
		"f": []string{"patent_id", "patent_title", "patent_abstract", "patent_date", "assignees.assignee_organization"},
		"s": []map[string]string{{"patent_date": "desc"}, {"patent_id": "asc"}},
		"o": map[string]int{"size": p.cfg.MaxPatents},
	}
}

// Patents returns recent keyword-matching patents assigned to company.
func (p *PatentsView) Patents(ctx context.Context, company string) ([]signal.NormalizedSignal, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, nil
	}
	var resp patentAPIResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + patentsViewPatentPath
	if err := p.client.PostJSON(ctx, sourcePatents, url, p.queryBody(company), map[string]string{"X-Api-Key": p.cfg.APIKey}, &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, newError(sourcePatents, CodeInternal, "patentsview error flag set", 0, 0)
	}

	now := p.cfg.Now()
	var out []signal.NormalizedSignal
	for _, raw := range resp.Patents {
		id := strings.TrimSpace(str(raw["patent_id"]))
		date := strings.TrimSpace(str(raw["patent_date"]))
		if id == "" || date == "" || !filedWithin(date, p.cfg.WindowDays, now) {
			continue
		}
		title := strings.TrimSpace(str(raw["patent_title"]))
		abstract := strings.TrimSpace(str(raw["patent_abstract"]))
		hits := KeywordHits(title+"\n"+abstract, p.cfg.Keywords)
		if len(hits) == 0 {
			continue
		}
		sigTitle := title
		if sigTitle == "" {
			sigTitle = "Patent US" + id
		}
		out = append(out, signal.NormalizedSignal{
			AccountName: company,
			Type:        signal.TypePatentPublication,
			Source:      signal.SourcePatentsView,
			Title:       sigTitle,
			EvidenceURL: "https://patents.google.com/patent/US" + id,
			PublishedAt: date,
			Payload: signal.PatentPayload{
				PatentNumber:    id,
				PatentDate:      date,
				PatentTitle:     title,
				Abstract:        truncateRunes(abstract, patentAbstractChars),
				MatchedKeywords: hits,
				Text:            strings.TrimSpace(title + "\n" + truncateRunes(abstract, patentBlobChars)),
				Extra:           map[string]any{"assignees": raw["assignees"]},
			},
		})
	}
	return out, nil
}
