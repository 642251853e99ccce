package core

import (
	"context"
	"testing"

	"casetrack/pkg/domain"
)

// mapView is a minimal RuleView backed by maps.
type mapView struct {
	cases       map[string]domain.Case
	extractions map[string][]domain.Extraction
}

func (v mapView) ListRequests() []domain.Request { return nil }

func (v mapView) ListCases() []domain.Case {
	var out []domain.Case
	for _, c := range v.cases {
		out = append(out, c)
	}
	return out
}

func (v mapView) ListDevices() []domain.Device { return nil }

func (v mapView) ListExtractions() []domain.Extraction {
	var out []domain.Extraction
	for _, list := range v.extractions {
		out = append(out, list...)
	}
	return out
}

func (v mapView) FindRequest(string) (domain.Request, bool) { return domain.Request{}, false }

func (v mapView) FindCase(id string) (domain.Case, bool) {
	c, ok := v.cases[id]
	return c, ok
}

func (v mapView) FindDevice(string) (domain.Device, bool) { return domain.Device{}, false }

func (v mapView) FindExtraction(string) (domain.Extraction, bool) { return domain.Extraction{}, false }

func (v mapView) ListDevicesByCase(string) []domain.Device { return nil }

func (v mapView) ListExtractionsByCase(caseID string) []domain.Extraction {
	return v.extractions[caseID]
}

func registeredCase(id string, status domain.CaseStatus) domain.Case {
	seq := 1
	return domain.Case{Base: domain.Base{ID: id}, Unit: "012", Year: 2026, SequenceNumber: &seq, Status: status}
}

func extractionChange(caseID string, status domain.ExtractionStatus) domain.Change {
	return domain.Change{
		Entity: domain.EntityExtraction,
		Action: domain.ActionUpdate,
		After:  domain.Extraction{Base: domain.Base{ID: "e1"}, CaseID: caseID, Status: status},
	}
}

func TestDerivedStatusRuleBlocksMismatch(t *testing.T) {
	view := mapView{
		cases: map[string]domain.Case{"c1": registeredCase("c1", domain.CaseStatusWaitingExtractor)},
		extractions: map[string][]domain.Extraction{
			"c1": {{Base: domain.Base{ID: "e1"}, CaseID: "c1", Status: domain.ExtractionStatusInProgress}},
		},
	}
	res, err := DerivedStatusRule().Evaluate(context.Background(), view, []domain.Change{extractionChange("c1", domain.ExtractionStatusInProgress)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("stale case status should be blocked")
	}
}

func TestDerivedStatusRuleAcceptsConsistentState(t *testing.T) {
	view := mapView{
		cases: map[string]domain.Case{"c1": registeredCase("c1", domain.CaseStatusInProgress)},
		extractions: map[string][]domain.Extraction{
			"c1": {{Base: domain.Base{ID: "e1"}, CaseID: "c1", Status: domain.ExtractionStatusInProgress}},
		},
	}
	res, err := DerivedStatusRule().Evaluate(context.Background(), view, []domain.Change{extractionChange("c1", domain.ExtractionStatusInProgress)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("consistent state should pass: %v", blockingMessages(res))
	}
}

func TestDerivedStatusRuleSkipsUnregisteredAndFinalized(t *testing.T) {
	draft := domain.Case{Base: domain.Base{ID: "c1"}, Unit: "012", Year: 2026, Status: domain.CaseStatusDraft}
	view := mapView{
		cases: map[string]domain.Case{
			"c1": draft,
			"c2": registeredCase("c2", domain.CaseStatusWaitingCollection),
		},
		extractions: map[string][]domain.Extraction{
			"c1": {{Base: domain.Base{ID: "e1"}, CaseID: "c1", Status: domain.ExtractionStatusInProgress}},
			"c2": {{Base: domain.Base{ID: "e2"}, CaseID: "c2", Status: domain.ExtractionStatusCompleted}},
		},
	}
	changes := []domain.Change{
		extractionChange("c1", domain.ExtractionStatusInProgress),
		extractionChange("c2", domain.ExtractionStatusCompleted),
	}
	res, err := DerivedStatusRule().Evaluate(context.Background(), view, changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("draft and finalized cases are out of the rule's reach: %v", blockingMessages(res))
	}
}

func TestDerivedStatusRuleIgnoresUntouchedCases(t *testing.T) {
	view := mapView{
		// Stale but untouched in this commit.
		cases: map[string]domain.Case{"c1": registeredCase("c1", domain.CaseStatusWaitingExtractor)},
		extractions: map[string][]domain.Extraction{
			"c1": {{Base: domain.Base{ID: "e1"}, CaseID: "c1", Status: domain.ExtractionStatusCompleted}},
		},
	}
	res, err := DerivedStatusRule().Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("untouched cases are not revalidated: %v", blockingMessages(res))
	}
}
