package domain

import (
	"fmt"
	"strings"
)

// Scope is the breadth of read propagation. The same value means the same
// thing for every recipient category.
type Scope string

const (
	ScopeNone         Scope = "NONE"
	ScopeGroup        Scope = "GROUP"
	ScopeHub          Scope = "HUB"
	ScopeHubBroadcast Scope = "HUB_BROADCAST"
)

// AllScopes in increasing breadth.
var AllScopes = []Scope{ScopeNone, ScopeGroup, ScopeHub, ScopeHubBroadcast}

// ParseScope resolves a caller-supplied scope. Blank means NONE.
func ParseScope(s string) (Scope, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" {
		return ScopeNone, nil
	}
	for _, sc := range AllScopes {
		if Scope(normalized) == sc {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown scope %q: %w", s, ErrValidation)
}

// Batch reports whether the scope fans out over sibling rows.
func (s Scope) Batch() bool { return s != ScopeNone }
