package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ThorfinnThor/radar/internal/signal"
)

// LoadJobsJSON reads a scraped jobs file. The file is either a list of job
// objects or an object with a "jobs" list.
func LoadJobsJSON(path string) ([]map[string]any, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("jobs json %s: %w", path, err)
	}
	var items []any
	switch v := data.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["jobs"].([]any)
		if !ok {
			return nil, fmt.Errorf("jobs json %s: want a list of jobs or an object with a \"jobs\" list", path)
		}
		items = list
	default:
		return nil, fmt.Errorf("jobs json %s: want a list of jobs or an object with a \"jobs\" list", path)
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func firstOf(job map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := job[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// NormalizeJobsJSON turns one scraped job into a job_posting signal.
func NormalizeJobsJSON(job map[string]any) signal.NormalizedSignal {
	company := ""
	if c, ok := job["company"].(map[string]any); ok {
		company = strings.TrimSpace(str(c["name"]))
	}
	if company == "" {
		company = strings.TrimSpace(str(job["companyName"]))
	}
	if company == "" {
		company = signal.UnknownAccount
	}

	desc := ""
	switch d := job["description"].(type) {
	case map[string]any:
		desc = strings.TrimSpace(str(d["text"]))
		if desc == "" {
			desc = StripHTML([]byte(str(d["html"])))
		}
	case string:
		desc = strings.TrimSpace(d)
	}

	published := epochToISO(firstOf(job, "postedAt", "posted_at", "createdAt", "created_at"))
	if published == "" {
		published = epochToISO(firstOf(job, "scrapedAt", "scraped_at", "updatedAt", "updated_at"))
	}
	applyURL := strings.TrimSpace(str(firstOf(job, "applyUrl", "apply_url")))
	evidence := applyURL
	if evidence == "" {
		evidence = strings.TrimSpace(str(firstOf(job, "url", "jobUrl")))
	}
	location := ""
	switch l := firstOf(job, "location", "locations", "primaryLocation").(type) {
	case string:
		location = strings.TrimSpace(l)
	case map[string]any:
		location = strings.TrimSpace(str(l["name"]))
	case []any:
		parts := make([]string, 0, len(l))
		for _, item := range l {
			if s := strings.TrimSpace(str(item)); s != "" {
				parts = append(parts, s)
			}
		}
		location = strings.Join(parts, "; ")
	}

	p := signal.JobPayload{
		JobID:       strings.TrimSpace(str(firstOf(job, "reqId", "req_id", "id"))),
		Title:       strings.TrimSpace(str(job["title"])),
		Location:    location,
		Department:  strings.TrimSpace(str(job["department"])),
		ApplyURL:    applyURL,
		Description: truncateRunes(desc, jobDescriptionChars),
		Extra:       map[string]any{"raw": job},
	}
	return jobSignal(company, signal.SourceJobsJSON, p, evidence, published)
}

// JobsJSON loads and normalizes every job in the file.
func JobsJSON(path string) ([]signal.NormalizedSignal, error) {
	jobs, err := LoadJobsJSON(path)
	if err != nil {
		return nil, err
	}
	out := make([]signal.NormalizedSignal, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NormalizeJobsJSON(j))
	}
	return out, nil
}
