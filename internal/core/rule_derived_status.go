package core

import (
	"casetrack/pkg/domain"
	"context"
	"fmt"
)

// DerivedStatusRule blocks commits where a registered, non-finalized case
// whose extractions changed carries a status that disagrees with the value
// derived from its live extractions. It is the safety net behind the
// service's in-transaction recomputation.
func DerivedStatusRule() domain.Rule {
	return derivedStatusRule{}
}

type derivedStatusRule struct{}

func (derivedStatusRule) Name() string { return "derived_case_status" }

func (derivedStatusRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	touched := map[string]struct{}{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityCase:
			if _, after, _, ok := changedPair[domain.Case](change); ok {
				touched[after.ID] = struct{}{}
			}
		case domain.EntityExtraction:
			if _, after, _, ok := changedPair[domain.Extraction](change); ok && after.CaseID != "" {
				touched[after.CaseID] = struct{}{}
			}
		}
	}

	for caseID := range touched {
		c, ok := view.FindCase(caseID)
		if !ok {
			continue
		}
		if !c.Registered() || c.Status == domain.CaseStatusWaitingCollection {
			continue
		}
		derived := domain.DeriveCaseStatusFrom(view.ListExtractionsByCase(caseID))
		if c.Status != derived {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "derived_case_status",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("case %s status %s disagrees with derived status %s", caseID, c.Status, derived),
				Entity:   domain.EntityCase,
				EntityID: caseID,
			})
		}
	}
	return res, nil
}
