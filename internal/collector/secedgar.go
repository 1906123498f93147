package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/ThorfinnThor/radar/internal/account"
	"github.com/ThorfinnThor/radar/internal/platform/atomicfile"
	"github.com/ThorfinnThor/radar/internal/signal"
)

const (
	DefaultSECTickersURL     = "https://www.sec.gov/files/company_tickers.json"
	DefaultSECSubmissionsURL = "https://data.sec.gov/submissions"
	DefaultSECArchivesURL    = "https://www.sec.gov/Archives/edgar/data"
	sourceSEC                = string(signal.SourceSECEdgar)

	maxRecentFilingsScanned = 200
	filingExcerptChars      = 500
)

var defaultAllowedForms = []string{"8-K", "10-Q", "10-K", "20-F", "6-K", "F-1", "S-1"}

type SECConfig struct {
	TickersURL     string
	SubmissionsURL string
	ArchivesURL    string
	// CachePath holds a copy of the tickers index between runs. Empty
	// disables the disk cache.
	CachePath      string
	AllowedForms   []string
	Keywords       []string
	WindowDays     int
	MaxFilings     int
	MinKeywordHits int
	Now            func() time.Time
}

// SECEdgar finds a company's filer record and turns its recent filings into
// sec_filing signals.
type SECEdgar struct {
	client  *Client
	cfg     SECConfig
	allowed map[string]struct{}

	mu      sync.Mutex
	matcher *account.Matcher
}

func NewSECEdgar(client *Client, cfg SECConfig) *SECEdgar {
	if cfg.TickersURL == "" {
		cfg.TickersURL = DefaultSECTickersURL
	}
	if cfg.SubmissionsURL == "" {
		cfg.SubmissionsURL = DefaultSECSubmissionsURL
	}
	if cfg.ArchivesURL == "" {
		cfg.ArchivesURL = DefaultSECArchivesURL
	}
	if len(cfg.AllowedForms) == 0 {
		cfg.AllowedForms = defaultAllowedForms
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 60
	}
	if cfg.MaxFilings <= 0 {
		cfg.MaxFilings = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	allowed := map[string]struct{}{}
	for _, f := range cfg.AllowedForms {
		allowed[strings.ToUpper(strings.TrimSpace(f))] = struct{}{}
	}
	return &SECEdgar{client: client, cfg: cfg, allowed: allowed}
}

type tickerRecord struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// Matcher loads the filer index once per process, preferring the disk cache.
func (s *SECEdgar) Matcher(ctx context.Context) (*account.Matcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.matcher != nil {
		return s.matcher, nil
	}

	var blob []byte
	if s.cfg.CachePath != "" {
		if b, err := os.ReadFile(s.cfg.CachePath); err == nil && json.Valid(b) {
			blob = b
		}
	}
	if blob == nil {
		b, err := s.client.Do(ctx, sourceSEC, Request{URL: s.cfg.TickersURL, Header: map[string]string{"Accept": "application/json"}})
		if err != nil {
			return nil, err
		}
		blob = b
		if s.cfg.CachePath != "" {
			if err := atomicfile.WriteFile(s.cfg.CachePath, blob); err != nil {
				s.client.cfg.Logger.Warn("sec tickers cache write failed", "path", s.cfg.CachePath, "error", err)
			}
		}
	}

	var index map[string]tickerRecord
	if err := json.Unmarshal(blob, &index); err != nil {
		return nil, newError(sourceSEC, CodeInternal, "decode tickers: "+err.Error(), 0, 0)
	}
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	// The index is keyed by position; keep that order so ties are stable.
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	candidates := make([]account.Candidate, 0, len(keys))
	for _, k := range keys {
		rec := index[k]
		if rec.CIK <= 0 {
			continue
		}
		candidates = append(candidates, account.Candidate{ID: fmt.Sprintf("%010d", rec.CIK), Name: rec.Title})
	}
	s.matcher = account.NewMatcher(candidates)
	return s.matcher, nil
}

type submissions struct {
	CIK     any `json:"cik"`
	Filings struct {
		Recent struct {
			Form                  []string `json:"form"`
			FilingDate            []string `json:"filingDate"`
			AccessionNumber       []string `json:"accessionNumber"`
			PrimaryDocument       []string `json:"primaryDocument"`
			ReportDate            []string `json:"reportDate"`
			PrimaryDocDescription []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// Filings returns keyword-matching filings for a company. A company with no
// filer match yields no signals and no error.
func (s *SECEdgar) Filings(ctx context.Context, companyName string) ([]signal.NormalizedSignal, error) {
	m, err := s.Matcher(ctx)
	if err != nil {
		return nil, err
	}
	cik10, ok := m.Match(companyName)
	if !ok {
		return nil, nil
	}

	var subs submissions
	url := strings.TrimRight(s.cfg.SubmissionsURL, "/") + "/CIK" + cik10 + ".json"
	if err := s.client.GetJSON(ctx, sourceSEC, url, map[string]string{"Accept": "application/json"}, &subs); err != nil {
		return nil, err
	}
	cikInt, _ := strconv.ParseInt(strings.TrimLeft(cik10, "0"), 10, 64)
	if v := strings.TrimLeft(str(subs.CIK), "0"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cikInt = n
		}
	}

	recent := subs.Filings.Recent
	now := s.cfg.Now()
	var out []signal.NormalizedSignal
	for i := 0; i < len(recent.Form) && i < maxRecentFilingsScanned; i++ {
		form := strings.TrimSpace(recent.Form[i])
		if _, ok := s.allowed[strings.ToUpper(form)]; !ok {
			continue
		}
		fdate := at(recent.FilingDate, i)
		if !filedWithin(fdate, s.cfg.WindowDays, now) {
			continue
		}
		acc, pdoc := at(recent.AccessionNumber, i), at(recent.PrimaryDocument, i)
		if acc == "" || pdoc == "" {
			continue
		}
		desc := at(recent.PrimaryDocDescription, i)
		docURL := fmt.Sprintf("%s/%d/%s/%s", strings.TrimRight(s.cfg.ArchivesURL, "/"), cikInt, strings.ReplaceAll(acc, "-", ""), pdoc)
		title := form + " filed " + fdate
		if desc != "" {
			title += " - " + desc
		}

		payload := signal.FilingPayload{
			CIK:             cik10,
			Form:            form,
			FilingDate:      fdate,
			ReportDate:      at(recent.ReportDate, i),
			Accession:       acc,
			PrimaryDocument: pdoc,
			Description:     desc,
			MatchedKeywords: []string{},
			Text:            title,
		}
		doc, err := s.client.Do(ctx, sourceSEC, Request{URL: docURL, Header: map[string]string{"Accept": "text/html"}})
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			s.client.cfg.Logger.Debug("sec document fetch failed", "url", docURL, "error", err)
		} else {
			text := StripHTML(doc)
			if hits := KeywordHits(text, s.cfg.Keywords); len(hits) > 0 {
				payload.MatchedKeywords = hits
				payload.Excerpt = truncateRunes(text, filingExcerptChars)
				payload.Text = title + "\n" + payload.Excerpt
			}
		}
		if s.cfg.MinKeywordHits > 0 && len(payload.MatchedKeywords) < s.cfg.MinKeywordHits {
			continue
		}

		out = append(out, signal.NormalizedSignal{
			AccountName: companyName,
			Type:        signal.TypeSECFiling,
			Source:      signal.SourceSECEdgar,
			Title:       title,
			EvidenceURL: docURL,
			PublishedAt: fdate,
			Payload:     payload,
		})
		if len(out) >= s.cfg.MaxFilings {
			break
		}
	}
	return out, nil
}

func at(items []string, i int) string {
	if i < len(items) {
		return strings.TrimSpace(items[i])
	}
	return ""
}

func filedWithin(date string, windowDays int, now time.Time) bool {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return false
	}
	return int(now.Sub(t).Hours()/24) <= windowDays
}

// StripHTML returns the visible text of an HTML document with whitespace
// collapsed. Script and style contents are dropped.
func StripHTML(doc []byte) string {
	z := html.NewTokenizer(strings.NewReader(string(doc)))
	var sb strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is all we get.
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
			sb.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			sb.WriteByte(' ')
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// KeywordHits returns the keywords found in text, compared after name
// normalization so punctuation and case do not matter.
func KeywordHits(text string, keywords []string) []string {
	t := " " + account.NormalizeName(text) + " "
	hits := []string{}
	for _, k := range keywords {
		kk := account.NormalizeName(k)
		if kk != "" && strings.Contains(t, kk) {
			hits = append(hits, k)
		}
	}
	return hits
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
