package core

import (
	"context"
	"time"

	"casetrack/pkg/domain"
)

// scopedExtraction resolves an extraction together with its case, surfacing
// records outside the actor's scope as not found.
func scopedExtraction(tx Transaction, scope Scope, extractionID string) (Extraction, Case, error) {
	extraction, ok := tx.FindExtraction(extractionID)
	if !ok {
		return Extraction{}, Case{}, &domain.NotFoundError{Entity: EntityExtraction, ID: extractionID}
	}
	c, ok := tx.FindCase(extraction.CaseID)
	if !ok || !scope.Allows(c.Unit) {
		return Extraction{}, Case{}, &domain.NotFoundError{Entity: EntityExtraction, ID: extractionID}
	}
	return extraction, c, nil
}

func invalidExtractionTransition(extraction Extraction, to ExtractionStatus, reason string) error {
	return &domain.InvalidTransitionError{
		Entity: EntityExtraction,
		ID:     extraction.ID,
		From:   string(extraction.Status),
		To:     string(to),
		Reason: reason,
	}
}

// AssignExtraction hands a pending extraction to an extractor. The extractor
// must belong to the case's unit.
func (s *Service) AssignExtraction(ctx context.Context, actor Actor, extractionID string, expectedVersion int, extractorID string) (Extraction, Result, error) {
	var updated Extraction
	var result Result
	err := s.observe(ctx, "assign_extraction", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		if trimmed(extractorID) == "" {
			return &domain.IncompleteEntityError{Entity: EntityExtraction, ID: extractionID, Field: "extractor", Reason: "required"}
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			extraction, c, txErr := scopedExtraction(tx, scope, extractionID)
			if txErr != nil {
				return txErr
			}
			if extraction.Status != domain.ExtractionStatusPending {
				return invalidExtractionTransition(extraction, domain.ExtractionStatusAssigned, "")
			}
			member, txErr := s.memberOfUnit(extractorID, c.Unit)
			if txErr != nil {
				return txErr
			}
			if !member {
				return invalidExtractionTransition(extraction, domain.ExtractionStatusAssigned, "extractor does not belong to unit "+c.Unit)
			}
			assigned := s.opts.clock.Now()
			extractor := trimmed(extractorID)
			updated, txErr = tx.UpdateExtraction(extractionID, expectedVersion, func(e *Extraction) error {
				e.Status = domain.ExtractionStatusAssigned
				e.AssignedExtractor = &extractor
				e.AssignedAt = &assigned
				e.AssignedBy = actor.ID
				e.UpdatedBy = actor.ID
				return nil
			})
			if txErr != nil {
				return txErr
			}
			return refreshCaseStatus(tx, c.ID, actor.ID)
		})
		result = res
		if err != nil {
			return err
		}
		s.notify(ctx, "extraction assigned", func(ctx context.Context) error {
			return s.opts.notifier.ExtractionAssigned(ctx, extractionID, trimmed(extractorID))
		})
		return nil
	})
	return updated, result, err
}

// UnassignExtraction returns an assigned extraction to the pending pool.
func (s *Service) UnassignExtraction(ctx context.Context, actor Actor, extractionID string, expectedVersion int) (Extraction, Result, error) {
	var updated Extraction
	var result Result
	err := s.observe(ctx, "unassign_extraction", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			extraction, c, txErr := scopedExtraction(tx, scope, extractionID)
			if txErr != nil {
				return txErr
			}
			if extraction.Status != domain.ExtractionStatusAssigned {
				return invalidExtractionTransition(extraction, domain.ExtractionStatusPending, "")
			}
			updated, txErr = tx.UpdateExtraction(extractionID, expectedVersion, func(e *Extraction) error {
				e.Status = domain.ExtractionStatusPending
				e.AssignedExtractor = nil
				e.AssignedAt = nil
				e.AssignedBy = ""
				e.UpdatedBy = actor.ID
				return nil
			})
			if txErr != nil {
				return txErr
			}
			return refreshCaseStatus(tx, c.ID, actor.ID)
		})
		result = res
		return err
	})
	return updated, result, err
}

// StartExtraction moves an assigned extraction into in_progress.
func (s *Service) StartExtraction(ctx context.Context, actor Actor, extractionID string, expectedVersion int) (Extraction, Result, error) {
	return s.moveExtraction(ctx, actor, "start_extraction", extractionID, expectedVersion,
		domain.ExtractionStatusAssigned, domain.ExtractionStatusInProgress,
		func(e *Extraction, now time.Time) {
			started := now
			e.StartedAt = &started
		})
}

// PauseExtraction suspends a running extraction.
func (s *Service) PauseExtraction(ctx context.Context, actor Actor, extractionID string, expectedVersion int) (Extraction, Result, error) {
	return s.moveExtraction(ctx, actor, "pause_extraction", extractionID, expectedVersion,
		domain.ExtractionStatusInProgress, domain.ExtractionStatusPaused, nil)
}

// ResumeExtraction puts a paused extraction back in progress.
func (s *Service) ResumeExtraction(ctx context.Context, actor Actor, extractionID string, expectedVersion int) (Extraction, Result, error) {
	return s.moveExtraction(ctx, actor, "resume_extraction", extractionID, expectedVersion,
		domain.ExtractionStatusPaused, domain.ExtractionStatusInProgress, nil)
}

// FinishExtraction completes a running extraction with its outcome.
func (s *Service) FinishExtraction(ctx context.Context, actor Actor, extractionID string, expectedVersion int, outcome domain.Outcome) (Extraction, Result, error) {
	var updated Extraction
	var result Result
	err := s.observe(ctx, "finish_extraction", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			extraction, c, txErr := scopedExtraction(tx, scope, extractionID)
			if txErr != nil {
				return txErr
			}
			if extraction.Status != domain.ExtractionStatusInProgress {
				return invalidExtractionTransition(extraction, domain.ExtractionStatusCompleted, "")
			}
			if txErr := outcome.Validate(); txErr != nil {
				return txErr
			}
			finished := s.opts.clock.Now()
			updated, txErr = tx.UpdateExtraction(extractionID, expectedVersion, func(e *Extraction) error {
				e.Status = domain.ExtractionStatusCompleted
				e.FinishedAt = &finished
				e.Result = outcome.Result
				e.SizeGB = outcome.SizeGB
				e.StorageMedia = trimmed(outcome.StorageMedia)
				e.Notes = trimmed(outcome.Notes)
				e.UpdatedBy = actor.ID
				return nil
			})
			if txErr != nil {
				return txErr
			}
			return refreshCaseStatus(tx, c.ID, actor.ID)
		})
		result = res
		return err
	})
	return updated, result, err
}

// DeleteExtraction soft-deletes an extraction and recomputes the case status.
func (s *Service) DeleteExtraction(ctx context.Context, actor Actor, extractionID string, expectedVersion int) (Result, error) {
	var result Result
	err := s.observe(ctx, "delete_extraction", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, c, txErr := scopedExtraction(tx, scope, extractionID)
			if txErr != nil {
				return txErr
			}
			if c.Status == domain.CaseStatusWaitingCollection {
				return &domain.InvalidTransitionError{
					Entity: EntityCase,
					ID:     c.ID,
					From:   string(c.Status),
					To:     string(c.Status),
					Reason: "case is finalized",
				}
			}
			if txErr := tx.DeleteExtraction(extractionID, expectedVersion, actor.ID); txErr != nil {
				return txErr
			}
			return refreshCaseStatus(tx, c.ID, actor.ID)
		})
		result = res
		return err
	})
	return result, err
}

// moveExtraction applies a simple status transition guarded by a single
// source status.
func (s *Service) moveExtraction(ctx context.Context, actor Actor, operation, extractionID string, expectedVersion int, from, to ExtractionStatus, stamp func(e *Extraction, now time.Time)) (Extraction, Result, error) {
	var updated Extraction
	var result Result
	err := s.observe(ctx, operation, func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			extraction, c, txErr := scopedExtraction(tx, scope, extractionID)
			if txErr != nil {
				return txErr
			}
			if extraction.Status != from {
				return invalidExtractionTransition(extraction, to, "")
			}
			updated, txErr = tx.UpdateExtraction(extractionID, expectedVersion, func(e *Extraction) error {
				e.Status = to
				if stamp != nil {
					stamp(e, s.opts.clock.Now())
				}
				e.UpdatedBy = actor.ID
				return nil
			})
			if txErr != nil {
				return txErr
			}
			return refreshCaseStatus(tx, c.ID, actor.ID)
		})
		result = res
		return err
	})
	return updated, result, err
}
