package domain

import "sort"

// RoleProvider resolves the unit memberships of an actor. Implementations
// typically sit in front of a directory service; tests use a static map.
type RoleProvider interface {
	UnitsForActor(actorID string) ([]string, error)
}

// Scope restricts which units an actor may see. The zero value is the empty
// scope: it matches nothing, so an actor without memberships fails closed.
type Scope struct {
	unrestricted bool
	units        map[string]struct{}
}

// UnrestrictedScope matches every unit.
func UnrestrictedScope() Scope {
	return Scope{unrestricted: true}
}

// ScopeForUnits matches exactly the given units.
func ScopeForUnits(units ...string) Scope {
	s := Scope{units: make(map[string]struct{}, len(units))}
	for _, u := range units {
		if u == "" {
			continue
		}
		s.units[u] = struct{}{}
	}
	return s
}

// Unrestricted reports whether the scope matches every unit.
func (s Scope) Unrestricted() bool {
	return s.unrestricted
}

// Empty reports whether the scope matches no unit at all.
func (s Scope) Empty() bool {
	return !s.unrestricted && len(s.units) == 0
}

// Allows reports whether a record belonging to unit is visible in the scope.
func (s Scope) Allows(unit string) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.units[unit]
	return ok
}

// Units returns the sorted unit list. Nil when unrestricted.
func (s Scope) Units() []string {
	if s.unrestricted {
		return nil
	}
	out := make([]string, 0, len(s.units))
	for u := range s.units {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ResolveScope derives the visible-unit scope for an actor. Superusers and
// staff are unrestricted; every other role sees only the units the provider
// reports for them.
func ResolveScope(actor Actor, provider RoleProvider) (Scope, error) {
	if actor.Privileged() {
		return UnrestrictedScope(), nil
	}
	if provider == nil {
		return Scope{}, nil
	}
	units, err := provider.UnitsForActor(actor.ID)
	if err != nil {
		return Scope{}, err
	}
	return ScopeForUnits(units...), nil
}
