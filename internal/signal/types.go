package signal

import (
	"fmt"
	"strings"
)

// UnknownAccount is the account name used when a source provides no company name.
const UnknownAccount = "UNKNOWN"

type Type string

const (
	TypeTrialCandidate    Type = "trial_candidate"
	TypeTrialCollaborator Type = "trial_collaborator"
	TypeSECFiling         Type = "sec_filing"
	TypePatentPublication Type = "patent_publication"
	TypeJobPosting        Type = "job_posting"
)

type Source string

const (
	SourceClinicalTrials Source = "clinicaltrials"
	SourceSECEdgar       Source = "sec_edgar"
	SourcePatentsView    Source = "patentsview"
	SourceGreenhouse     Source = "greenhouse"
	SourceLever          Source = "lever"
	SourceWorkday        Source = "workday"
	SourceJobsJSON       Source = "jobs_json"
)

func (t Type) Valid() bool {
	switch t {
	case TypeTrialCandidate, TypeTrialCollaborator, TypeSECFiling, TypePatentPublication, TypeJobPosting:
		return true
	}
	return false
}

func (s Source) Valid() bool {
	switch s {
	case SourceClinicalTrials, SourceSECEdgar, SourcePatentsView, SourceGreenhouse, SourceLever, SourceWorkday, SourceJobsJSON:
		return true
	}
	return false
}

// IsJobBoard reports whether the source is an applicant tracking system or job dump.
func (s Source) IsJobBoard() bool {
	switch s {
	case SourceGreenhouse, SourceLever, SourceWorkday, SourceJobsJSON:
		return true
	}
	return false
}

// NormalizedSignal is the record every collector emits. AccountName is the raw
// source-provided company string; it is resolved before storage. Empty Title,
// EvidenceURL and PublishedAt mean the source did not provide them.
type NormalizedSignal struct {
	AccountName string
	Type        Type
	Source      Source
	Title       string
	EvidenceURL string
	PublishedAt string
	Payload     Payload
}

func (s NormalizedSignal) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown signal type %q", s.Type)
	}
	if !s.Source.Valid() {
		return fmt.Errorf("unknown signal source %q", s.Source)
	}
	if !sourceAllowed(s.Type, s.Source) {
		return fmt.Errorf("signal type %s cannot come from source %s", s.Type, s.Source)
	}
	if s.Payload != nil && s.Payload.Kind() != s.Type {
		return fmt.Errorf("payload kind %s does not match signal type %s", s.Payload.Kind(), s.Type)
	}
	return nil
}

func sourceAllowed(t Type, s Source) bool {
	switch t {
	case TypeTrialCandidate, TypeTrialCollaborator:
		return s == SourceClinicalTrials
	case TypeSECFiling:
		return s == SourceSECEdgar
	case TypePatentPublication:
		return s == SourcePatentsView
	case TypeJobPosting:
		return s.IsJobBoard()
	}
	return false
}

// Sponsor is a trial sponsor or collaborator with its declared organization class.
type Sponsor struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

// NormalizedClass upper-cases and trims the organization class.
func (s Sponsor) NormalizedClass() string {
	return strings.ToUpper(strings.TrimSpace(s.Class))
}

const (
	SponsorClassIndustry = "INDUSTRY"
	trialURLPrefix       = "https://clinicaltrials.gov/study/"
)

// Trial is the registry record the trial collector produces. It carries enough
// sponsor detail for collaborator attribution, which plain signals do not.
type Trial struct {
	NCTID            string         `json:"nct_id"`
	Title            string         `json:"brief_title"`
	Status           string         `json:"overall_status"`
	Phases           []string       `json:"phases"`
	LastUpdatePosted string         `json:"last_update_posted"`
	LeadSponsor      Sponsor        `json:"lead_sponsor"`
	Collaborators    []Sponsor      `json:"collaborators"`
	Raw              map[string]any `json:"raw,omitempty"`
}

func (t Trial) StudyURL() string {
	if strings.TrimSpace(t.NCTID) == "" {
		return ""
	}
	return trialURLPrefix + strings.TrimSpace(t.NCTID)
}

// IndustryCollaborators returns collaborators whose class is INDUSTRY, in order.
func (t Trial) IndustryCollaborators() []Sponsor {
	out := []Sponsor{}
	for _, c := range t.Collaborators {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		if c.NormalizedClass() == SponsorClassIndustry {
			out = append(out, c)
		}
	}
	return out
}

// Signal builds the trial_candidate signal attributed to the lead sponsor.
func (t Trial) Signal() NormalizedSignal {
	return NormalizedSignal{
		AccountName: t.LeadSponsor.Name,
		Type:        TypeTrialCandidate,
		Source:      SourceClinicalTrials,
		Title:       t.Title,
		EvidenceURL: t.StudyURL(),
		PublishedAt: t.LastUpdatePosted,
		Payload: TrialPayload{
			NCTID:            t.NCTID,
			OverallStatus:    t.Status,
			Phases:           t.Phases,
			LeadSponsorClass: t.LeadSponsor.NormalizedClass(),
			Collaborators:    t.Collaborators,
		},
	}
}

// CollaboratorSignal builds the lightweight trial_collaborator signal for one
// industry collaborator of the trial.
func (t Trial) CollaboratorSignal(collaborator Sponsor) NormalizedSignal {
	return NormalizedSignal{
		AccountName: collaborator.Name,
		Type:        TypeTrialCollaborator,
		Source:      SourceClinicalTrials,
		Title:       t.Title,
		EvidenceURL: t.StudyURL(),
		PublishedAt: t.LastUpdatePosted,
		Payload: CollaboratorPayload{
			NCTID:            t.NCTID,
			OverallStatus:    t.Status,
			Phases:           t.Phases,
			LeadSponsor:      t.LeadSponsor.Name,
			LeadSponsorClass: t.LeadSponsor.NormalizedClass(),
			CollaboratorName: collaborator.Name,
		},
	}
}
