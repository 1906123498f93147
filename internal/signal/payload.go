package signal

import (
	"encoding/json"
	"strings"
)

// Payload is the typed part of a signal's payload that scoring reads. Extra
// carries whatever else the source returned, untouched, for export.
type Payload interface {
	Kind() Type
	TextBlob() string
}

type TrialPayload struct {
	NCTID            string         `json:"nct_id"`
	OverallStatus    string         `json:"overall_status"`
	Phases           []string       `json:"phases"`
	LeadSponsorClass string         `json:"lead_sponsor_class"`
	Collaborators    []Sponsor      `json:"collaborators,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

func (TrialPayload) Kind() Type         { return TypeTrialCandidate }
func (p TrialPayload) TextBlob() string { return "" }

type CollaboratorPayload struct {
	NCTID            string         `json:"nct_id"`
	OverallStatus    string         `json:"overall_status"`
	Phases           []string       `json:"phases"`
	LeadSponsor      string         `json:"lead_sponsor"`
	LeadSponsorClass string         `json:"lead_sponsor_class"`
	CollaboratorName string         `json:"collaborator_name"`
	Extra            map[string]any `json:"extra,omitempty"`
}

func (CollaboratorPayload) Kind() Type         { return TypeTrialCollaborator }
func (p CollaboratorPayload) TextBlob() string { return "" }

type FilingPayload struct {
	CIK             string         `json:"cik"`
	Form            string         `json:"form"`
	FilingDate      string         `json:"filing_date"`
	ReportDate      string         `json:"report_date,omitempty"`
	Accession       string         `json:"accession"`
	PrimaryDocument string         `json:"primary_document"`
	Description     string         `json:"description,omitempty"`
	MatchedKeywords []string       `json:"matched_keywords"`
	Excerpt         string         `json:"excerpt,omitempty"`
	Text            string         `json:"text_blob"`
	Extra           map[string]any `json:"extra,omitempty"`
}

func (FilingPayload) Kind() Type         { return TypeSECFiling }
func (p FilingPayload) TextBlob() string { return p.Text }

type PatentPayload struct {
	PatentNumber    string         `json:"patent_number"`
	PatentDate      string         `json:"patent_date"`
	PatentTitle     string         `json:"patent_title"`
	Abstract        string         `json:"patent_abstract,omitempty"`
	MatchedKeywords []string       `json:"matched_keywords"`
	Text            string         `json:"text_blob"`
	Extra           map[string]any `json:"extra,omitempty"`
}

func (PatentPayload) Kind() Type         { return TypePatentPublication }
func (p PatentPayload) TextBlob() string { return p.Text }

type JobPayload struct {
	JobID       string         `json:"job_id,omitempty"`
	Title       string         `json:"title,omitempty"`
	Location    string         `json:"location,omitempty"`
	Department  string         `json:"department,omitempty"`
	ApplyURL    string         `json:"apply_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

func (JobPayload) Kind() Type { return TypeJobPosting }

func (p JobPayload) TextBlob() string {
	parts := make([]string, 0, 3)
	for _, v := range []string{p.Title, p.Department, p.Description} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

// EncodePayload serializes a payload for the payload_json column. A nil payload
// encodes as an empty object.
func EncodePayload(p Payload) string {
	if p == nil {
		return "{}"
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodePayload restores the payload variant for a signal type. Malformed JSON
// yields the zero variant rather than an error so scoring never stops on one
// bad row; ok reports whether the blob decoded cleanly.
func DecodePayload(t Type, raw string) (p Payload, ok bool) {
	raw = strings.TrimSpace(raw)
	switch t {
	case TypeTrialCandidate:
		var v TrialPayload
		ok = decodeInto(raw, &v)
		return v, ok
	case TypeTrialCollaborator:
		var v CollaboratorPayload
		ok = decodeInto(raw, &v)
		return v, ok
	case TypeSECFiling:
		var v FilingPayload
		ok = decodeInto(raw, &v)
		return v, ok
	case TypePatentPublication:
		var v PatentPayload
		ok = decodeInto(raw, &v)
		return v, ok
	case TypeJobPosting:
		var v JobPayload
		ok = decodeInto(raw, &v)
		return v, ok
	}
	return nil, false
}

func decodeInto(raw string, out any) bool {
	if raw == "" {
		return true
	}
	return json.Unmarshal([]byte(raw), out) == nil
}
