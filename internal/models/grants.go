package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NormalizeGrant trims, lower-cases, and replaces spaces with underscores.
// The same rule normalizes group names.
func NormalizeGrant(grant string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(grant)), " ", "_")
}

// GrantSet is a set of normalized grant strings, stored as a JSON array.
type GrantSet map[string]struct{}

// NewGrantSet builds a set from the given grants, normalizing each one.
// Empty grants are dropped.
func NewGrantSet(grants ...string) GrantSet {
	set := make(GrantSet, len(grants))
	for _, g := range grants {
		set.Add(g)
	}
	return set
}

// ParseGrants builds a set from a whitespace separated list.
func ParseGrants(s string) GrantSet {
	return NewGrantSet(strings.Fields(s)...)
}

// Add inserts grant and reports whether it was not already present.
func (g GrantSet) Add(grant string) bool {
	grant = NormalizeGrant(grant)
	if grant == "" {
		return false
	}
	if _, ok := g[grant]; ok {
		return false
	}
	g[grant] = struct{}{}
	return true
}

// Remove deletes grant and reports whether it was present.
func (g GrantSet) Remove(grant string) bool {
	grant = NormalizeGrant(grant)
	if _, ok := g[grant]; !ok {
		return false
	}
	delete(g, grant)
	return true
}

// Has reports whether grant is in the set, after normalization.
func (g GrantSet) Has(grant string) bool {
	_, ok := g[NormalizeGrant(grant)]
	return ok
}

// Union returns a new set holding the grants of both sets.
func (g GrantSet) Union(other GrantSet) GrantSet {
	out := make(GrantSet, len(g)+len(other))
	for k := range g {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Slice returns the grants in sorted order.
func (g GrantSet) Slice() []string {
	out := make([]string, 0, len(g))
	for k := range g {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String returns the grants space separated, sorted.
func (g GrantSet) String() string {
	return strings.Join(g.Slice(), " ")
}

// MarshalJSON encodes the set as a sorted JSON array.
func (g GrantSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Slice())
}

// UnmarshalJSON decodes a JSON array into the set.
func (g *GrantSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*g = NewGrantSet(list...)
	return nil
}

// Value implements driver.Valuer interface
func (g GrantSet) Value() (driver.Value, error) {
	b, err := json.Marshal(g.Slice())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface
func (g *GrantSet) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*g = GrantSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal GrantSet value: %v", value)
	}
	if len(raw) == 0 {
		*g = GrantSet{}
		return nil
	}
	return g.UnmarshalJSON(raw)
}
