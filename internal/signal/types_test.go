package signal

import "testing"

func TestValidateRejectsMismatchedSource(t *testing.T) {
	for _, tc := range []struct {
		name string
		sig  NormalizedSignal
		ok   bool
	}{
		{name: "filing from edgar", sig: NormalizedSignal{Type: TypeSECFiling, Source: SourceSECEdgar}, ok: true},
		{name: "job from lever", sig: NormalizedSignal{Type: TypeJobPosting, Source: SourceLever, Payload: JobPayload{}}, ok: true},
		{name: "filing from lever", sig: NormalizedSignal{Type: TypeSECFiling, Source: SourceLever}},
		{name: "unknown type", sig: NormalizedSignal{Type: "press_release", Source: SourceSECEdgar}},
		{name: "unknown source", sig: NormalizedSignal{Type: TypeJobPosting, Source: "indeed"}},
		{name: "payload kind mismatch", sig: NormalizedSignal{Type: TypeSECFiling, Source: SourceSECEdgar, Payload: PatentPayload{}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sig.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTrialSignalsCarryStudyURL(t *testing.T) {
	tr := Trial{
		NCTID:         " NCT01234567 ",
		Title:         "Phase 1 Study of XYZ CAR-T",
		Status:        "RECRUITING",
		Phases:        []string{"PHASE1"},
		LeadSponsor:   Sponsor{Name: "Big Pharma", Class: "industry"},
		Collaborators: []Sponsor{{Name: "Uni Hospital", Class: "OTHER"}, {Name: "Cell Co", Class: "INDUSTRY"}, {Name: " ", Class: "INDUSTRY"}},
	}
	sig := tr.Signal()
	if sig.EvidenceURL != "https://clinicaltrials.gov/study/NCT01234567" {
		t.Fatalf("unexpected evidence url %q", sig.EvidenceURL)
	}
	if err := sig.Validate(); err != nil {
		t.Fatalf("trial signal invalid: %v", err)
	}
	if sig.Payload.(TrialPayload).LeadSponsorClass != "INDUSTRY" {
		t.Fatalf("expected normalized lead class, got %+v", sig.Payload)
	}
	collabs := tr.IndustryCollaborators()
	if len(collabs) != 1 || collabs[0].Name != "Cell Co" {
		t.Fatalf("expected only Cell Co, got %+v", collabs)
	}
	cs := tr.CollaboratorSignal(collabs[0])
	if cs.Type != TypeTrialCollaborator || cs.AccountName != "Cell Co" {
		t.Fatalf("unexpected collaborator signal %+v", cs)
	}
	if err := cs.Validate(); err != nil {
		t.Fatalf("collaborator signal invalid: %v", err)
	}
}

func TestDecodePayloadDegradesOnMalformedJSON(t *testing.T) {
	p, ok := DecodePayload(TypeSECFiling, `{"text_blob":`)
	if ok {
		t.Fatal("expected ok=false for malformed json")
	}
	if p == nil || p.TextBlob() != "" {
		t.Fatalf("expected empty filing payload, got %#v", p)
	}

	enc := EncodePayload(PatentPayload{PatentNumber: "123", Text: "CAR-T construct"})
	p, ok = DecodePayload(TypePatentPublication, enc)
	if !ok || p.TextBlob() != "CAR-T construct" {
		t.Fatalf("expected patent text blob, got %#v ok=%v", p, ok)
	}

	if p, ok := DecodePayload("nope", "{}"); p != nil || ok {
		t.Fatal("expected nil payload for unknown type")
	}
}
