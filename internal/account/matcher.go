package account

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenOverlap is the smallest shared-token count accepted as a match.
const MinTokenOverlap = 2

// Candidate is one entry of an external company index, e.g. a regulator's
// filer list.
type Candidate struct {
	ID   string
	Name string
}

// Matcher finds the best candidate for a company name by token overlap, falling
// back to substring containment.
type Matcher struct {
	candidates []indexedCandidate
}

type indexedCandidate struct {
	Candidate
	norm   string
	tokens map[string]struct{}
}

func NewMatcher(candidates []Candidate) *Matcher {
	m := &Matcher{candidates: make([]indexedCandidate, 0, len(candidates))}
	for _, c := range candidates {
		n := NormalizeName(c.Name)
		if n == "" {
			continue
		}
		m.candidates = append(m.candidates, indexedCandidate{Candidate: c, norm: n, tokens: tokenSet(n)})
	}
	return m
}

func (m *Matcher) Len() int {
	return len(m.candidates)
}

// Match returns the id of the best matching candidate. Ties on overlap keep
// the earliest candidate.
func (m *Matcher) Match(companyName string) (string, bool) {
	target := NormalizeName(companyName)
	if target == "" || len(m.candidates) == 0 {
		return "", false
	}
	targetTokens := tokenSet(target)

	bestID := ""
	bestScore := 0
	for _, c := range m.candidates {
		score := overlap(targetTokens, c.tokens)
		if score > bestScore {
			bestScore = score
			bestID = c.ID
		}
	}
	if bestID != "" && bestScore >= MinTokenOverlap {
		return bestID, true
	}

	for _, c := range m.candidates {
		if strings.Contains(c.norm, target) || strings.Contains(target, c.norm) {
			return c.ID, true
		}
	}
	return "", false
}

var foldCaser = cases.Fold()

// NormalizeName folds case, strips diacritics and replaces non-alphanumerics
// with single spaces.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = foldCaser.String(folded)
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

func tokenSet(normalized string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(normalized) {
		out[tok] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}
