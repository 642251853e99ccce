package core

import (
	"casetrack/pkg/domain"
	"context"
	"fmt"
)

// StatusTransitionRule blocks commits that leave a changed record with a
// status outside its enum, or that move a record out of a terminal state
// (waiting_collection on cases, awaiting_collection on requests).
func StatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

func (statusTransitionRule) Name() string { return "status_transition" }

func changedPair[T any](change domain.Change) (before T, after T, hasBefore bool, hasAfter bool) {
	if change.Before != nil {
		if v, ok := change.Before.(T); ok {
			before = v
			hasBefore = true
		}
	}
	if change.After != nil {
		if v, ok := change.After.(T); ok {
			after = v
			hasAfter = true
		}
	}
	return before, after, hasBefore, hasAfter
}

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(entity domain.EntityType, id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "status_transition",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   entity,
			EntityID: id,
		})
	}

	for _, change := range changes {
		switch change.Entity {
		case domain.EntityRequest:
			before, after, hasBefore, hasAfter := changedPair[domain.Request](change)
			if hasAfter && !domain.ValidRequestStatus(after.Status) {
				block(domain.EntityRequest, after.ID, fmt.Sprintf("request %s is set to invalid status %s", after.ID, after.Status))
				continue
			}
			if hasBefore && hasAfter && !after.Deleted() &&
				before.Status == domain.RequestStatusAwaitingCollection && after.Status != before.Status {
				block(domain.EntityRequest, after.ID, fmt.Sprintf("cannot move request %s out of terminal status %s", after.ID, before.Status))
			}
		case domain.EntityCase:
			before, after, hasBefore, hasAfter := changedPair[domain.Case](change)
			if hasAfter && !domain.ValidCaseStatus(after.Status) {
				block(domain.EntityCase, after.ID, fmt.Sprintf("case %s is set to invalid status %s", after.ID, after.Status))
				continue
			}
			if hasBefore && hasAfter && !after.Deleted() &&
				before.Status == domain.CaseStatusWaitingCollection && after.Status != before.Status {
				block(domain.EntityCase, after.ID, fmt.Sprintf("cannot move case %s out of terminal status %s", after.ID, before.Status))
			}
		case domain.EntityExtraction:
			_, after, _, hasAfter := changedPair[domain.Extraction](change)
			if hasAfter && !domain.ValidExtractionStatus(after.Status) {
				block(domain.EntityExtraction, after.ID, fmt.Sprintf("extraction %s is set to invalid status %s", after.ID, after.Status))
			}
		}
	}
	return res, nil
}
