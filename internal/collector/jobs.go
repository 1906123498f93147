package collector

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ThorfinnThor/radar/internal/signal"
)

const (
	DefaultGreenhouseURL = "https://boards-api.greenhouse.io"
	DefaultLeverURL      = "https://api.lever.co"

	jobDescriptionChars = 4000
)

// JobsConfig is shared by the ATS collectors. Keywords filter postings by
// title and description; an empty list keeps every posting.
type JobsConfig struct {
	Keywords []string
	Now      func() time.Time
}

func (c JobsConfig) keep(p signal.JobPayload) bool {
	if len(c.Keywords) == 0 {
		return true
	}
	return len(KeywordHits(p.TextBlob(), c.Keywords)) > 0
}

func (c JobsConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Greenhouse reads a public job board.
type Greenhouse struct {
	client  *Client
	baseURL string
	cfg     JobsConfig
}

func NewGreenhouse(client *Client, baseURL string, cfg JobsConfig) *Greenhouse {
	if baseURL == "" {
		baseURL = DefaultGreenhouseURL
	}
	return &Greenhouse{client: client, baseURL: strings.TrimRight(baseURL, "/"), cfg: cfg}
}

type greenhouseJob struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	AbsoluteURL string      `json:"absolute_url"`
	UpdatedAt   string      `json:"updated_at"`
	CreatedAt   string      `json:"created_at"`
	Content     string      `json:"content"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

func (g *Greenhouse) Jobs(ctx context.Context, company, boardToken string) ([]signal.NormalizedSignal, error) {
	boardToken = strings.TrimSpace(boardToken)
	if boardToken == "" {
		return nil, newError(string(signal.SourceGreenhouse), CodeValidation, "board_token required", 0, 0)
	}
	var resp struct {
		Jobs []greenhouseJob `json:"jobs"`
	}
	u := g.baseURL + "/v1/boards/" + url.PathEscape(boardToken) + "/jobs?content=true"
	if err := g.client.GetJSON(ctx, string(signal.SourceGreenhouse), u, nil, &resp); err != nil {
		return nil, err
	}
	var out []signal.NormalizedSignal
	for _, j := range resp.Jobs {
		p := signal.JobPayload{
			JobID:       j.ID.String(),
			Title:       strings.TrimSpace(j.Title),
			Location:    strings.TrimSpace(j.Location.Name),
			ApplyURL:    strings.TrimSpace(j.AbsoluteURL),
			Description: truncateRunes(StripHTML([]byte(unescapeEntities(j.Content))), jobDescriptionChars),
		}
		if len(j.Departments) > 0 {
			p.Department = strings.TrimSpace(j.Departments[0].Name)
		}
		if !g.cfg.keep(p) {
			continue
		}
		published := strings.TrimSpace(j.UpdatedAt)
		if published == "" {
			published = strings.TrimSpace(j.CreatedAt)
		}
		out = append(out, jobSignal(company, signal.SourceGreenhouse, p, p.ApplyURL, published))
	}
	return out, nil
}

// Greenhouse double-encodes content as escaped HTML.
func unescapeEntities(s string) string {
	return strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&amp;", "&").Replace(s)
}

// Lever reads a public postings list.
type Lever struct {
	client  *Client
	baseURL string
	cfg     JobsConfig
}

func NewLever(client *Client, baseURL string, cfg JobsConfig) *Lever {
	if baseURL == "" {
		baseURL = DefaultLeverURL
	}
	return &Lever{client: client, baseURL: strings.TrimRight(baseURL, "/"), cfg: cfg}
}

type leverPosting struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	HostedURL        string `json:"hostedUrl"`
	ApplyURL         string `json:"applyUrl"`
	CreatedAt        any    `json:"createdAt"`
	DescriptionPlain string `json:"descriptionPlain"`
	Categories       struct {
		Location   string `json:"location"`
		Department string `json:"department"`
		Team       string `json:"team"`
	} `json:"categories"`
}

func (l *Lever) Jobs(ctx context.Context, company, leverAccount string) ([]signal.NormalizedSignal, error) {
	leverAccount = strings.TrimSpace(leverAccount)
	if leverAccount == "" {
		return nil, newError(string(signal.SourceLever), CodeValidation, "lever_account required", 0, 0)
	}
	var postings []leverPosting
	u := l.baseURL + "/v0/postings/" + url.PathEscape(leverAccount) + "?mode=json"
	if err := l.client.GetJSON(ctx, string(signal.SourceLever), u, nil, &postings); err != nil {
		return nil, err
	}
	var out []signal.NormalizedSignal
	for _, j := range postings {
		dept := strings.TrimSpace(j.Categories.Department)
		if dept == "" {
			dept = strings.TrimSpace(j.Categories.Team)
		}
		p := signal.JobPayload{
			JobID:       j.ID,
			Title:       strings.TrimSpace(j.Text),
			Location:    strings.TrimSpace(j.Categories.Location),
			Department:  dept,
			ApplyURL:    strings.TrimSpace(j.ApplyURL),
			Description: truncateRunes(strings.TrimSpace(j.DescriptionPlain), jobDescriptionChars),
		}
		if !l.cfg.keep(p) {
			continue
		}
		out = append(out, jobSignal(company, signal.SourceLever, p, strings.TrimSpace(j.HostedURL), epochToISO(j.CreatedAt)))
	}
	return out, nil
}

// WorkdayConfig locates a tenant's candidate-experience site.
type WorkdayConfig struct {
	// HostOverride replaces https://{tenant}.{wd_host}.myworkdayjobs.com.
	HostOverride string
	PageSize     int
	MaxPages     int
	// MaxDetails bounds the per-posting detail fetches.
	MaxDetails int
}

type Workday struct {
	client *Client
	wcfg   WorkdayConfig
	cfg    JobsConfig
}

func NewWorkday(client *Client, wcfg WorkdayConfig, cfg JobsConfig) *Workday {
	if wcfg.PageSize <= 0 {
		wcfg.PageSize = 50
	}
	if wcfg.MaxPages <= 0 {
		wcfg.MaxPages = 20
	}
	if wcfg.MaxDetails <= 0 {
		wcfg.MaxDetails = 50
	}
	return &Workday{client: client, wcfg: wcfg, cfg: cfg}
}

type workdayPosting struct {
	Title         string `json:"title"`
	ExternalPath  string `json:"externalPath"`
	PostedOn      string `json:"postedOn"`
	LocationsText string `json:"locationsText"`
	BulletFields  []any  `json:"bulletFields"`
}

type workdayPage struct {
	Total       int              `json:"total"`
	JobPostings []workdayPosting `json:"jobPostings"`
}

func (w *Workday) host(tenant, wdHost string) string {
	if w.wcfg.HostOverride != "" {
		return strings.TrimRight(w.wcfg.HostOverride, "/")
	}
	return "https://" + tenant + "." + wdHost + ".myworkdayjobs.com"
}

// page tries the three request shapes tenants are known to accept, in order.
func (w *Workday) page(ctx context.Context, listURL string, offset int) (workdayPage, error) {
	src := string(signal.SourceWorkday)
	limit := w.wcfg.PageSize
	var page workdayPage

	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("searchText", "")
	if err := w.client.GetJSON(ctx, src, listURL+"?"+q.Encode(), nil, &page); err == nil && len(page.JobPostings) > 0 {
		return page, nil
	} else if ctx.Err() != nil {
		return page, ctx.Err()
	}

	var lastErr error
	for _, textKey := range []string{"searchText", "query"} {
		body := map[string]any{"appliedFacets": map[string]any{}, textKey: "", "limit": limit, "offset": offset}
		page = workdayPage{}
		err := w.client.PostJSON(ctx, src, listURL, body, nil, &page)
		if err == nil {
			if len(page.JobPostings) > 0 || textKey == "query" {
				return page, nil
			}
			continue
		}
		if ctx.Err() != nil {
			return page, ctx.Err()
		}
		lastErr = err
	}
	return page, lastErr
}

func (w *Workday) Jobs(ctx context.Context, company, tenant, site, wdHost string) ([]signal.NormalizedSignal, error) {
	tenant, site, wdHost = strings.TrimSpace(tenant), strings.TrimSpace(site), strings.TrimSpace(wdHost)
	if tenant == "" || site == "" || (wdHost == "" && w.wcfg.HostOverride == "") {
		return nil, newError(string(signal.SourceWorkday), CodeValidation, "tenant, site and wd_host required", 0, 0)
	}
	host := w.host(tenant, wdHost)
	base := host + "/wday/cxs/" + url.PathEscape(tenant) + "/" + url.PathEscape(site)

	var postings []workdayPosting
	for i, offset := 0, 0; i < w.wcfg.MaxPages; i++ {
		page, err := w.page(ctx, base+"/jobs", offset)
		if err != nil {
			if len(postings) > 0 {
				break
			}
			return nil, err
		}
		if len(page.JobPostings) == 0 {
			break
		}
		postings = append(postings, page.JobPostings...)
		if len(page.JobPostings) < w.wcfg.PageSize {
			break
		}
		offset += w.wcfg.PageSize
	}

	now := w.cfg.now()
	var out []signal.NormalizedSignal
	details := 0
	for _, j := range postings {
		p := signal.JobPayload{
			Title:    strings.TrimSpace(j.Title),
			Location: strings.TrimSpace(j.LocationsText),
		}
		if len(j.BulletFields) > 0 {
			p.JobID = strings.TrimSpace(str(j.BulletFields[0]))
		}
		evidence := host + "/" + site
		if strings.HasPrefix(j.ExternalPath, "/") {
			evidence = host + j.ExternalPath
			if details < w.wcfg.MaxDetails {
				details++
				p.Description = truncateRunes(w.detail(ctx, base, j.ExternalPath), jobDescriptionChars)
			}
		}
		p.ApplyURL = evidence
		if !w.cfg.keep(p) {
			continue
		}
		out = append(out, jobSignal(company, signal.SourceWorkday, p, evidence, workdayPostedOn(j.PostedOn, now)))
	}
	return out, nil
}

// detail fetches a posting's description; failures leave it empty.
func (w *Workday) detail(ctx context.Context, base, externalPath string) string {
	_, slug, ok := strings.Cut(externalPath, "/job/")
	slug = strings.TrimLeft(slug, "/")
	if !ok || slug == "" {
		return ""
	}
	var resp struct {
		JobPostingInfo struct {
			JobDescription string `json:"jobDescription"`
		} `json:"jobPostingInfo"`
	}
	if err := w.client.GetJSON(ctx, string(signal.SourceWorkday), base+"/job/"+slug, nil, &resp); err != nil {
		w.client.cfg.Logger.Debug("workday detail fetch failed", "path", externalPath, "error", err)
		return ""
	}
	return StripHTML([]byte(resp.JobPostingInfo.JobDescription))
}

var postedDaysAgo = regexp.MustCompile(`(?i)posted\s+(\d+)\+?\s+days?\s+ago`)

// workdayPostedOn turns "Posted Today", "Posted Yesterday" and "Posted N Days
// Ago" into a calendar date. Anything else is returned unchanged.
func workdayPostedOn(v string, now time.Time) string {
	v = strings.TrimSpace(v)
	lower := strings.ToLower(v)
	day := func(n int) string { return now.UTC().AddDate(0, 0, -n).Format("2006-01-02") }
	switch {
	case lower == "":
		return ""
	case strings.Contains(lower, "today"):
		return day(0)
	case strings.Contains(lower, "yesterday"):
		return day(1)
	}
	if m := postedDaysAgo.FindStringSubmatch(v); m != nil {
		n, _ := strconv.Atoi(m[1])
		return day(n)
	}
	return v
}

// epochToISO renders numeric epochs (seconds, or milliseconds when large) as
// RFC 3339 UTC. Strings pass through trimmed.
func epochToISO(v any) string {
	var f float64
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		f = t
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return t.String()
		}
		f = n
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	default:
		return ""
	}
	if f > 10_000_000_000 {
		f /= 1000
	}
	sec := int64(f)
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func jobSignal(company string, src signal.Source, p signal.JobPayload, evidence, published string) signal.NormalizedSignal {
	title := p.Title
	if title == "" {
		title = "Job posting"
	}
	return signal.NormalizedSignal{
		AccountName: company,
		Type:        signal.TypeJobPosting,
		Source:      src,
		Title:       title,
		EvidenceURL: evidence,
		PublishedAt: published,
		Payload:     p,
	}
}
