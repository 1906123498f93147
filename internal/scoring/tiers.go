package scoring

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	FitCellTherapyTCR  = 5
	FitEngager         = 4
	FitCD3OrBispecific = 3
	FitGenericCell     = 2
	FitFloor           = 1

	// FitNonTrialFallback is awarded to accounts without trials whose
	// filings or patents match a modality keyword.
	FitNonTrialFallback = 2
)

const (
	UrgencyTop    = 3
	UrgencyMiddle = 2
	UrgencyFloor  = 1
	UrgencyNone   = 0
)

const (
	reasonUnknownTitle  = "unknown title"
	reasonUnknownStatus = "unknown status"
	reasonNoWedge       = "no strong wedge keywords"
)

// engineeredTCell matches the CAR-T and TCR-T phrases as whole words, so a
// bare "TCR" or "scar tissue" does not reach the top rung.
var engineeredTCell = regexp.MustCompile(`\b(car|tcr)[- ]t\b|chimeric antigen receptor`)

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// fitFromTitle places a trial title on the modality ladder. The first rung
// that matches wins.
func fitFromTitle(title string, engagerMolecules []string) (int, string) {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return FitFloor, reasonUnknownTitle
	}
	if engineeredTCell.MatchString(t) {
		return FitCellTherapyTCR, "CAR-T / TCR-T trial"
	}
	if containsAny(t, "t-cell engager", "t cell engager") {
		return FitEngager, "T cell engager trial"
	}
	hasCD3 := strings.Contains(t, "cd3")
	hasBispecific := strings.Contains(t, "bispecific")
	if hasCD3 && hasBispecific {
		return FitEngager, "CD3 bispecific trial"
	}
	for _, m := range engagerMolecules {
		m = strings.TrimSpace(m)
		if m != "" && strings.Contains(t, strings.ToLower(m)) {
			return FitEngager, "molecule match: " + m
		}
	}
	if hasCD3 || hasBispecific {
		return FitCD3OrBispecific, "CD3 / bispecific trial"
	}
	if containsAny(t, "cell therapy", "tcr") {
		return FitGenericCell, "cell therapy / TCR trial"
	}
	return FitFloor, reasonNoWedge
}

// trialUrgency grades one trial by enrolment status and phase.
func trialUrgency(status string, phases []string, active, highPhases map[string]struct{}) (int, string) {
	st := strings.ToUpper(strings.TrimSpace(status))
	if st == "" {
		return UrgencyNone, reasonUnknownStatus
	}
	if _, ok := active[st]; !ok {
		return UrgencyFloor, st
	}
	norm := make([]string, 0, len(phases))
	for _, p := range phases {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			norm = append(norm, p)
		}
	}
	for _, p := range norm {
		if _, ok := highPhases[p]; ok {
			return UrgencyTop, fmt.Sprintf("%s in high urgency phase (%s)", st, strings.Join(norm, ","))
		}
	}
	return UrgencyMiddle, st
}

func otherUrgency(matched int) (int, string) {
	switch {
	case matched >= 3:
		return UrgencyTop, fmt.Sprintf("%d relevant signals in window (>=3)", matched)
	case matched == 2:
		return UrgencyMiddle, "2 relevant signals in window"
	case matched == 1:
		return UrgencyFloor, "1 relevant signal in window"
	}
	return UrgencyNone, "no relevant signals in window"
}

func matchKeywords(text string, keywords []string) []string {
	t := strings.ToLower(text)
	var hits []string
	for _, k := range keywords {
		kk := strings.ToLower(strings.TrimSpace(k))
		if kk != "" && strings.Contains(t, kk) {
			hits = append(hits, k)
		}
	}
	return hits
}
