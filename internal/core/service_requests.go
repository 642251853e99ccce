package core

import (
	"context"

	"casetrack/pkg/domain"
)

// CreateRequestInput carries the caller-supplied fields of a new intake
// request.
type CreateRequestInput struct {
	RequestingUnit       string
	TargetUnit           string
	CrimeCategory        string
	AuthorityName        string
	ReplyEmail           string
	DeviceCountRequested int
}

// CreateRequest registers a new extraction request. The request starts in
// awaiting_material: the devices named by the request have not arrived yet.
func (s *Service) CreateRequest(ctx context.Context, actor Actor, input CreateRequestInput) (Request, Result, error) {
	var created Request
	var result Result
	err := s.observe(ctx, "create_request", func(ctx context.Context) error {
		if trimmed(input.RequestingUnit) == "" {
			return &domain.IncompleteEntityError{Entity: EntityRequest, Field: "requesting_unit", Reason: "required"}
		}
		if trimmed(input.TargetUnit) == "" {
			return &domain.IncompleteEntityError{Entity: EntityRequest, Field: "target_unit", Reason: "required"}
		}
		if input.DeviceCountRequested < 1 {
			return &domain.IncompleteEntityError{Entity: EntityRequest, Field: "device_count_requested", Reason: "must be at least 1"}
		}
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		if !scope.Allows(input.RequestingUnit) && !scope.Allows(input.TargetUnit) {
			return &domain.NotFoundError{Entity: EntityRequest, ID: ""}
		}

		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateRequest(Request{
				Base:                 Base{CreatedBy: actor.ID, UpdatedBy: actor.ID},
				RequestingUnit:       trimmed(input.RequestingUnit),
				TargetUnit:           trimmed(input.TargetUnit),
				CrimeCategory:        trimmed(input.CrimeCategory),
				AuthorityName:        trimmed(input.AuthorityName),
				ReplyEmail:           trimmed(input.ReplyEmail),
				DeviceCountRequested: input.DeviceCountRequested,
				Status:               domain.RequestStatusAwaitingMaterial,
			})
			return txErr
		})
		result = res
		return err
	})
	return created, result, err
}

// ReceiveRequestMaterial records delivery of the requested devices and moves
// the request to material_received. Accepted from pending as well, for
// requests intake recorded before the material workflow existed.
func (s *Service) ReceiveRequestMaterial(ctx context.Context, actor Actor, requestID string, expectedVersion int, notes string) (Request, Result, error) {
	var updated Request
	var result Result
	err := s.observe(ctx, "receive_request_material", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindRequest(requestID)
			if !ok || !(scope.Allows(current.TargetUnit) || scope.Allows(current.RequestingUnit)) {
				return &domain.NotFoundError{Entity: EntityRequest, ID: requestID}
			}
			switch current.Status {
			case domain.RequestStatusPending, domain.RequestStatusAwaitingMaterial:
			default:
				return &domain.InvalidTransitionError{
					Entity: EntityRequest,
					ID:     requestID,
					From:   string(current.Status),
					To:     string(domain.RequestStatusMaterialReceived),
				}
			}
			received := s.opts.clock.Now()
			var txErr error
			updated, txErr = tx.UpdateRequest(requestID, expectedVersion, func(r *Request) error {
				r.Status = domain.RequestStatusMaterialReceived
				r.ReceivedAt = &received
				r.ReceivedBy = actor.ID
				r.ReceiptNotes = trimmed(notes)
				r.UpdatedBy = actor.ID
				return nil
			})
			return txErr
		})
		result = res
		return err
	})
	return updated, result, err
}

// CreateCaseFromRequest opens the case for a request whose material has
// arrived. A request carries at most one case; the link is set exactly once.
// The case starts in draft with no sequence number, and the request advances
// to awaiting_start.
func (s *Service) CreateCaseFromRequest(ctx context.Context, actor Actor, requestID string, expectedVersion int, priority domain.Priority) (Case, Result, error) {
	var created Case
	var result Result
	err := s.observe(ctx, "create_case_from_request", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		if priority == "" {
			priority = domain.PriorityMedium
		}
		if _, ok := domain.ParsePriority(string(priority)); !ok {
			return &domain.IncompleteEntityError{Entity: EntityCase, Field: "priority", Reason: "unknown priority " + string(priority)}
		}

		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindRequest(requestID)
			if !ok || !scope.Allows(current.TargetUnit) {
				return &domain.NotFoundError{Entity: EntityRequest, ID: requestID}
			}
			if current.CaseID != nil {
				return &domain.InvalidTransitionError{
					Entity: EntityRequest,
					ID:     requestID,
					From:   string(current.Status),
					To:     string(domain.RequestStatusAwaitingStart),
					Reason: "request already has a case",
				}
			}
			if current.Status != domain.RequestStatusMaterialReceived {
				return &domain.InvalidTransitionError{
					Entity: EntityRequest,
					ID:     requestID,
					From:   string(current.Status),
					To:     string(domain.RequestStatusAwaitingStart),
					Reason: "material must be received first",
				}
			}

			var txErr error
			created, txErr = tx.CreateCase(Case{
				Base:      Base{CreatedBy: actor.ID, UpdatedBy: actor.ID},
				Unit:      current.TargetUnit,
				Year:      s.opts.clock.Now().Year(),
				Status:    domain.CaseStatusDraft,
				Priority:  priority,
				RequestID: &requestID,
			})
			if txErr != nil {
				return txErr
			}
			caseID := created.ID
			_, txErr = tx.UpdateRequest(requestID, expectedVersion, func(r *Request) error {
				r.CaseID = &caseID
				r.Status = domain.RequestStatusAwaitingStart
				r.UpdatedBy = actor.ID
				return nil
			})
			return txErr
		})
		result = res
		return err
	})
	return created, result, err
}

// advanceLinkedRequest moves a case's linked request to the given status when
// the request is live and not already terminal. Used by registration and
// finalization cascades.
func advanceLinkedRequest(tx Transaction, c Case, status RequestStatus, actorID string) error {
	if c.RequestID == nil {
		return nil
	}
	current, ok := tx.FindRequest(*c.RequestID)
	if !ok {
		return nil
	}
	if current.Status == status || current.Status == domain.RequestStatusAwaitingCollection {
		return nil
	}
	_, err := tx.UpdateRequest(current.ID, current.Version, func(r *Request) error {
		r.Status = status
		r.UpdatedBy = actorID
		return nil
	})
	return err
}
