package account

import (
	"strings"

	"github.com/ThorfinnThor/radar/internal/signal"
)

// Resolver maps raw source company names to canonical account names using an
// explicit alias table. Lookups are verbatim on the trimmed name; there is no
// case folding or fuzzy matching here.
type Resolver struct {
	aliases map[string]string
}

func NewResolver(aliases map[string]string) *Resolver {
	cp := make(map[string]string, len(aliases))
	for raw, canonical := range aliases {
		raw = strings.TrimSpace(raw)
		canonical = strings.TrimSpace(canonical)
		if raw == "" || canonical == "" {
			continue
		}
		cp[raw] = canonical
	}
	return &Resolver{aliases: cp}
}

func (r *Resolver) Resolve(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return signal.UnknownAccount
	}
	if r != nil {
		if target, ok := r.aliases[name]; ok {
			return target
		}
	}
	return name
}

// Canonicalize collapses internal whitespace runs. It is the storage form of
// an already-resolved account name.
func Canonicalize(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return signal.UnknownAccount
	}
	return name
}
