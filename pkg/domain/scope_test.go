package domain

import (
	"errors"
	"reflect"
	"testing"
)

type unitsFunc func(actorID string) ([]string, error)

func (f unitsFunc) UnitsForActor(actorID string) ([]string, error) { return f(actorID) }

func TestScopeForUnits(t *testing.T) {
	scope := ScopeForUnits("012", "034", "")
	if scope.Unrestricted() || scope.Empty() {
		t.Fatalf("scope should be restricted and non-empty")
	}
	if !scope.Allows("012") || !scope.Allows("034") {
		t.Fatalf("member units should be visible")
	}
	if scope.Allows("099") || scope.Allows("") {
		t.Fatalf("non-member units should not be visible")
	}
	if got := scope.Units(); !reflect.DeepEqual(got, []string{"012", "034"}) {
		t.Fatalf("Units() = %v", got)
	}
}

func TestEmptyScopeFailsClosed(t *testing.T) {
	var scope Scope
	if !scope.Empty() {
		t.Fatalf("zero scope should be empty")
	}
	if scope.Allows("012") {
		t.Fatalf("empty scope must match nothing")
	}
}

func TestUnrestrictedScope(t *testing.T) {
	scope := UnrestrictedScope()
	if !scope.Allows("anything") {
		t.Fatalf("unrestricted scope must match every unit")
	}
	if scope.Units() != nil {
		t.Fatalf("unrestricted scope has no unit list")
	}
}

func TestResolveScope(t *testing.T) {
	provider := unitsFunc(func(actorID string) ([]string, error) {
		if actorID == "eve" {
			return nil, errors.New("directory down")
		}
		if actorID == "bob" {
			return []string{"012"}, nil
		}
		return nil, nil
	})

	for _, role := range []Role{RoleSuperuser, RoleStaff} {
		scope, err := ResolveScope(Actor{ID: "alice", Role: role}, provider)
		if err != nil {
			t.Fatalf("resolve %s: %v", role, err)
		}
		if !scope.Unrestricted() {
			t.Fatalf("%s should be unrestricted", role)
		}
	}

	scope, err := ResolveScope(Actor{ID: "bob", Role: RoleExtractor}, provider)
	if err != nil {
		t.Fatalf("resolve extractor: %v", err)
	}
	if !scope.Allows("012") || scope.Allows("034") {
		t.Fatalf("extractor scope should match exactly the provider units")
	}

	scope, err = ResolveScope(Actor{ID: "carol", Role: RoleRequester}, provider)
	if err != nil {
		t.Fatalf("resolve requester: %v", err)
	}
	if !scope.Empty() {
		t.Fatalf("actor without memberships should get the empty scope")
	}

	if _, err := ResolveScope(Actor{ID: "eve", Role: RoleExtractor}, provider); err == nil {
		t.Fatalf("provider errors must propagate")
	}

	scope, err = ResolveScope(Actor{ID: "bob", Role: RoleExtractor}, nil)
	if err != nil {
		t.Fatalf("resolve with nil provider: %v", err)
	}
	if !scope.Empty() {
		t.Fatalf("nil provider should fail closed")
	}
}
