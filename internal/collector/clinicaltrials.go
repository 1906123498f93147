package collector

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/ThorfinnThor/radar/internal/signal"
)

const (
	DefaultClinicalTrialsURL = "https://clinicaltrials.gov/api/v2/studies"
	sourceClinicalTrials     = string(signal.SourceClinicalTrials)
)

var studyFields = []string{
	"protocolSection.identificationModule.nctId",
	"protocolSection.identificationModule.briefTitle",
	"protocolSection.statusModule.overallStatus",
	"protocolSection.statusModule.lastUpdatePostDateStruct.date",
	"protocolSection.designModule.phases",
	"protocolSection.sponsorCollaboratorsModule.leadSponsor.name",
	"protocolSection.sponsorCollaboratorsModule.leadSponsor.class",
	"protocolSection.sponsorCollaboratorsModule.collaborators.name",
	"protocolSection.sponsorCollaboratorsModule.collaborators.class",
}

type ClinicalTrialsConfig struct {
	BaseURL    string
	PageSize   int
	MaxPages   int
	MaxStudies int
}

// ClinicalTrials pages through the registry v2 study search.
type ClinicalTrials struct {
	client *Client
	cfg    ClinicalTrialsConfig
}

func NewClinicalTrials(client *Client, cfg ClinicalTrialsConfig) *ClinicalTrials {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClinicalTrialsURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxStudies <= 0 {
		cfg.MaxStudies = 10000
	}
	return &ClinicalTrials{client: client, cfg: cfg}
}

type studiesPage struct {
	Studies       []map[string]any `json:"studies"`
	NextPageToken string           `json:"nextPageToken"`
}

// Search returns the trials matching query, following page tokens until the
// registry runs out or a page/study cap is reached.
func (c *ClinicalTrials) Search(ctx context.Context, query string) ([]signal.Trial, error) {
	var trials []signal.Trial
	token := ""
	for pages := 0; pages < c.cfg.MaxPages; pages++ {
		params := url.Values{}
		params.Set("query.term", query)
		params.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
		params.Set("format", "json")
		params.Set("countTotal", "true")
		params.Set("fields", strings.Join(studyFields, ","))
		if token != "" {
			params.Set("pageToken", token)
		}

		var page studiesPage
		if err := c.client.GetJSON(ctx, sourceClinicalTrials, c.cfg.BaseURL+"?"+params.Encode(), nil, &page); err != nil {
			return trials, err
		}
		for _, raw := range page.Studies {
			trials = append(trials, flattenStudy(raw))
			if len(trials) >= c.cfg.MaxStudies {
				return trials, nil
			}
		}
		token = page.NextPageToken
		if token == "" {
			break
		}
	}
	return trials, nil
}

func flattenStudy(raw map[string]any) signal.Trial {
	ps, _ := raw["protocolSection"].(map[string]any)
	t := signal.Trial{
		NCTID:            strings.TrimSpace(strFromPath(ps, "identificationModule", "nctId")),
		Title:            strings.TrimSpace(strFromPath(ps, "identificationModule", "briefTitle")),
		Status:           strings.TrimSpace(strFromPath(ps, "statusModule", "overallStatus")),
		LastUpdatePosted: strings.TrimSpace(strFromPath(ps, "statusModule", "lastUpdatePostDateStruct", "date")),
		LeadSponsor: signal.Sponsor{
			Name:  strings.TrimSpace(strFromPath(ps, "sponsorCollaboratorsModule", "leadSponsor", "name")),
			Class: strings.ToUpper(strings.TrimSpace(strFromPath(ps, "sponsorCollaboratorsModule", "leadSponsor", "class"))),
		},
		Phases:        []string{},
		Collaborators: []signal.Sponsor{},
		Raw:           raw,
	}
	if design, ok := ps["designModule"].(map[string]any); ok {
		if phases, ok := design["phases"].([]any); ok {
			for _, p := range phases {
				if s := strings.TrimSpace(str(p)); s != "" {
					t.Phases = append(t.Phases, s)
				}
			}
		}
	}
	if sc, ok := ps["sponsorCollaboratorsModule"].(map[string]any); ok {
		if collabs, ok := sc["collaborators"].([]any); ok {
			for _, item := range collabs {
				m, _ := item.(map[string]any)
				name := strings.TrimSpace(str(m["name"]))
				if name == "" {
					continue
				}
				t.Collaborators = append(t.Collaborators, signal.Sponsor{
					Name:  name,
					Class: strings.ToUpper(strings.TrimSpace(str(m["class"]))),
				})
			}
		}
	}
	return t
}

// KeepStatus reports whether a trial passes the status filter. An empty
// filter keeps everything.
func KeepStatus(t signal.Trial, keep []string) bool {
	if len(keep) == 0 {
		return true
	}
	st := strings.ToUpper(strings.TrimSpace(t.Status))
	for _, k := range keep {
		if strings.ToUpper(strings.TrimSpace(k)) == st {
			return true
		}
	}
	return false
}
