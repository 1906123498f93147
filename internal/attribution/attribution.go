package attribution

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThorfinnThor/radar/internal/account"
	"github.com/ThorfinnThor/radar/internal/signal"
	"github.com/ThorfinnThor/radar/internal/store"
)

type Path string

const (
	// PathLead stores the canonical study under the lead sponsor.
	PathLead Path = "lead"
	// PathFallback hands the trial to its industry collaborators with
	// synthetic studies; the lead gets nothing.
	PathFallback Path = "fallback"
	// PathDrop stores nothing for anyone.
	PathDrop Path = "drop"
)

type Config struct {
	KeepSponsorClasses                       []string
	IncludeIndustryCollaborators             bool
	AttributeNonIndustryLeadsToCollaborators bool
}

// Sink is the subset of the store attribution writes through.
type Sink interface {
	UpsertAccount(ctx context.Context, in store.AccountInput) (int64, error)
	InsertSignal(ctx context.Context, accountID int64, sig signal.NormalizedSignal) (bool, error)
	UpsertStudy(ctx context.Context, st store.Study) error
	DeleteSyntheticStudies(ctx context.Context, nctID string) (int64, error)
}

type Attributor struct {
	keep     map[string]struct{}
	cfg      Config
	resolver *account.Resolver
}

func New(cfg Config, resolver *account.Resolver) *Attributor {
	keep := map[string]struct{}{}
	for _, c := range cfg.KeepSponsorClasses {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			keep[c] = struct{}{}
		}
	}
	if len(keep) == 0 {
		keep[signal.SponsorClassIndustry] = struct{}{}
	}
	return &Attributor{keep: keep, cfg: cfg, resolver: resolver}
}

// Collaborator is an industry collaborator after alias resolution.
type Collaborator struct {
	Name    string
	Sponsor signal.Sponsor
}

// Plan is the decision for one trial. Collaborators are distinct by canonical
// name, in the order the trial lists them.
type Plan struct {
	Path          Path
	Reason        string
	Trial         signal.Trial
	Lead          string
	Collaborators []Collaborator
}

// Decide classifies a trial. It performs no writes.
func (a *Attributor) Decide(t signal.Trial) Plan {
	p := Plan{Trial: t, Lead: account.Canonicalize(a.resolver.Resolve(t.LeadSponsor.Name))}
	if strings.TrimSpace(t.NCTID) == "" {
		p.Path = PathDrop
		p.Reason = "missing trial id"
		return p
	}

	leadClass := t.LeadSponsor.NormalizedClass()
	_, leadAllowed := a.keep[leadClass]

	seen := map[string]struct{}{}
	for _, c := range t.IndustryCollaborators() {
		name := account.Canonicalize(a.resolver.Resolve(c.Name))
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		if leadAllowed && strings.EqualFold(name, p.Lead) {
			continue
		}
		seen[key] = struct{}{}
		p.Collaborators = append(p.Collaborators, Collaborator{Name: name, Sponsor: c})
	}

	switch {
	case leadAllowed:
		p.Path = PathLead
		p.Reason = "lead sponsor class " + leadClass + " allowed"
		if !a.cfg.IncludeIndustryCollaborators {
			p.Collaborators = nil
		}
	case a.cfg.AttributeNonIndustryLeadsToCollaborators && len(p.Collaborators) > 0:
		p.Path = PathFallback
		p.Reason = fmt.Sprintf("lead sponsor class %q not allowed; %d industry collaborator(s)", leadClass, len(p.Collaborators))
	default:
		p.Path = PathDrop
		p.Reason = fmt.Sprintf("lead sponsor class %q not allowed", leadClass)
		p.Collaborators = nil
	}
	return p
}

type Outcome struct {
	Path                   Path
	LeadAccountID          int64
	CollaboratorAccountIDs []int64
	SignalsInserted        int
	StudiesUpserted        int
	StudiesRemoved         int
}

// Apply performs the writes a plan calls for. Re-applying the same plan
// inserts no new signals and rewrites the same study rows.
func (a *Attributor) Apply(ctx context.Context, sink Sink, p Plan) (Outcome, error) {
	out := Outcome{Path: p.Path}
	switch p.Path {
	case PathLead:
		leadID, err := sink.UpsertAccount(ctx, store.AccountInput{Name: p.Lead})
		if err != nil {
			return out, fmt.Errorf("lead account %q: %w", p.Lead, err)
		}
		out.LeadAccountID = leadID
		if err := sink.UpsertStudy(ctx, canonicalStudy(p.Trial, leadID)); err != nil {
			return out, err
		}
		out.StudiesUpserted++
		// A trial earlier handed to its collaborators now belongs to the lead.
		removed, err := sink.DeleteSyntheticStudies(ctx, p.Trial.NCTID)
		if err != nil {
			return out, err
		}
		out.StudiesRemoved = int(removed)
		if err := insert(ctx, sink, leadID, p.Trial.Signal(), &out); err != nil {
			return out, err
		}
		for _, c := range p.Collaborators {
			id, err := sink.UpsertAccount(ctx, store.AccountInput{Name: c.Name})
			if err != nil {
				return out, fmt.Errorf("collaborator account %q: %w", c.Name, err)
			}
			out.CollaboratorAccountIDs = append(out.CollaboratorAccountIDs, id)
			if err := insert(ctx, sink, id, p.Trial.CollaboratorSignal(c.Sponsor), &out); err != nil {
				return out, err
			}
		}
	case PathFallback:
		for _, c := range p.Collaborators {
			id, err := sink.UpsertAccount(ctx, store.AccountInput{Name: c.Name})
			if err != nil {
				return out, fmt.Errorf("collaborator account %q: %w", c.Name, err)
			}
			out.CollaboratorAccountIDs = append(out.CollaboratorAccountIDs, id)
			if err := insert(ctx, sink, id, p.Trial.CollaboratorSignal(c.Sponsor), &out); err != nil {
				return out, err
			}
			if err := sink.UpsertStudy(ctx, syntheticStudy(p.Trial, c, id)); err != nil {
				return out, err
			}
			out.StudiesUpserted++
		}
	}
	return out, nil
}

// Attribute decides and applies in one step.
func (a *Attributor) Attribute(ctx context.Context, sink Sink, t signal.Trial) (Outcome, error) {
	return a.Apply(ctx, sink, a.Decide(t))
}

func insert(ctx context.Context, sink Sink, accountID int64, sig signal.NormalizedSignal, out *Outcome) error {
	inserted, err := sink.InsertSignal(ctx, accountID, sig)
	if err != nil {
		return fmt.Errorf("insert %s signal: %w", sig.Type, err)
	}
	if inserted {
		out.SignalsInserted++
	}
	return nil
}

func canonicalStudy(t signal.Trial, accountID int64) store.Study {
	nct := strings.TrimSpace(t.NCTID)
	return store.Study{
		ID:               nct,
		NCTID:            nct,
		AccountID:        accountID,
		BriefTitle:       t.Title,
		OverallStatus:    t.Status,
		Phases:           t.Phases,
		LastUpdatePosted: t.LastUpdatePosted,
		SponsorClass:     t.LeadSponsor.NormalizedClass(),
		StudyURL:         t.StudyURL(),
		Raw:              t.Raw,
	}
}

func syntheticStudy(t signal.Trial, c Collaborator, accountID int64) store.Study {
	st := canonicalStudy(t, accountID)
	st.ID = store.SyntheticStudyID(st.NCTID, c.Name)
	st.Synthetic = true
	st.SponsorClass = c.Sponsor.NormalizedClass()
	return st
}
