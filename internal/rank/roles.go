package rank

import (
	"strings"

	"github.com/ThorfinnThor/radar/internal/signal"
	"github.com/ThorfinnThor/radar/internal/store"
)

const (
	MinRoles     = 3
	DefaultRoles = 5
)

// Role keys of the buyer-persona library.
const (
	RoleTranslational      = "translational"
	RoleBiomarkers         = "biomarkers"
	RoleImmuneMonitoring   = "immune_monitoring"
	RoleBioassayPotency    = "bioassay_potency"
	RoleClinicalScience    = "clinical_science"
	RoleCMCAnalytical      = "cmc_analytical"
	RoleProcessDev         = "process_dev"
	RoleCompBio            = "comp_bio"
	RoleExternalInnovation = "external_innovation"
)

var roleLibrary = map[string]string{
	RoleTranslational:      "Director/VP, Translational Medicine (Oncology/Immunology)",
	RoleBiomarkers:         "Head/Director, Clinical Biomarkers / Translational Biomarkers",
	RoleImmuneMonitoring:   "Head/Director, Immune Monitoring / Flow Cytometry / Cytometry Core",
	RoleBioassayPotency:    "Director, Bioassay / Potency / Analytical Development",
	RoleClinicalScience:    "Clinical Scientist / Early Clinical Development Lead (Phase 1)",
	RoleCMCAnalytical:      "Director, CMC / Analytical Development (Cell Therapy/Biologics)",
	RoleProcessDev:         "Director, Process Development / MSAT (Cell Therapy)",
	RoleCompBio:            "Director, Computational Biology / Systems Immunology",
	RoleExternalInnovation: "Director, External Innovation / Search & Evaluation (Cell Therapy)",
}

type keywordRoles struct {
	keywords []string
	roles    []string
}

// Evaluated in order; the first rules to fire claim the leading slots.
var keywordMap = []keywordRoles{
	{[]string{"biomarker", "biomarkers", "translational"}, []string{RoleTranslational, RoleBiomarkers}},
	{[]string{"immune monitoring", "flow cytometry", "spectral cytometry", "cytometry"}, []string{RoleImmuneMonitoring}},
	{[]string{"potency", "bioassay", "cell-based assay", "assay development"}, []string{RoleBioassayPotency}},
	{[]string{"comparability"}, []string{RoleBioassayPotency, RoleCMCAnalytical}},
	{[]string{"analytical development"}, []string{RoleCMCAnalytical}},
	{[]string{"process development", "msat", "manufacturing science"}, []string{RoleProcessDev}},
	{[]string{"single-cell", "single cell", "systems immunology", "computational"}, []string{RoleCompBio}},
	{[]string{"car-t", "car t", "tcr-t", "tcr t", "t-cell engager", "t cell engager", "cd3", "bispecific"}, []string{RoleClinicalScience}},
	{[]string{"external innovation", "search & evaluation", "search and evaluation"}, []string{RoleExternalInnovation}},
}

var baselineRoles = []string{RoleTranslational, RoleBiomarkers, RoleImmuneMonitoring, RoleBioassayPotency, RoleClinicalScience}

// DefaultRoleTitles is the persona pack used when nothing about an account
// points elsewhere.
func DefaultRoleTitles() []string {
	out := make([]string, 0, len(baselineRoles))
	for _, k := range baselineRoles {
		out = append(out, roleLibrary[k])
	}
	return out
}

// RecommendRoles picks buyer personas from keywords in signal titles and
// payload text, padded with the baseline pack. The result has between
// MinRoles and maxRoles titles. Collaborator signals make partnering roles
// relevant.
func RecommendRoles(signals []store.Signal, maxRoles int) []string {
	if maxRoles <= 0 {
		maxRoles = DefaultRoles
	}
	if maxRoles < MinRoles {
		maxRoles = MinRoles
	}

	var sb strings.Builder
	collaborator := false
	for _, s := range signals {
		sb.WriteString(strings.ToLower(s.Title))
		sb.WriteByte(' ')
		if p := s.Payload(); p != nil {
			sb.WriteString(strings.ToLower(p.TextBlob()))
			sb.WriteByte(' ')
		}
		if s.Type == signal.TypeTrialCollaborator {
			collaborator = true
		}
	}
	if collaborator {
		sb.WriteString("external innovation")
	}
	text := sb.String()

	var keys []string
	seen := map[string]bool{}
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, rule := range keywordMap {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				for _, r := range rule.roles {
					add(r)
				}
				break
			}
		}
	}
	for _, k := range baselineRoles {
		add(k)
	}

	if len(keys) > maxRoles {
		keys = keys[:maxRoles]
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, roleLibrary[k])
	}
	return out
}
