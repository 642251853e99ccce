package core

import (
	"context"
	"fmt"
	"strings"

	"casetrack/pkg/domain"
)

// AddDeviceInput carries the descriptive fields of a seized device.
type AddDeviceInput struct {
	Label string
	Make  string
	Model string
	IMEI  string
}

// AddDevice attaches a device to a live, non-finalized case.
func (s *Service) AddDevice(ctx context.Context, actor Actor, caseID string, input AddDeviceInput) (Device, Result, error) {
	var created Device
	var result Result
	err := s.observe(ctx, "add_device", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			c, ok := tx.FindCase(caseID)
			if !ok || !scope.Allows(c.Unit) {
				return &domain.NotFoundError{Entity: EntityCase, ID: caseID}
			}
			if c.Status == domain.CaseStatusWaitingCollection {
				return &domain.InvalidTransitionError{
					Entity: EntityCase,
					ID:     caseID,
					From:   string(c.Status),
					To:     string(c.Status),
					Reason: "case is finalized",
				}
			}
			if trimmed(input.Label) == "" {
				return &domain.IncompleteEntityError{Entity: EntityDevice, Field: "label", Reason: "required"}
			}
			var txErr error
			created, txErr = tx.CreateDevice(Device{
				Base:   Base{CreatedBy: actor.ID, UpdatedBy: actor.ID},
				CaseID: caseID,
				Label:  trimmed(input.Label),
				Make:   trimmed(input.Make),
				Model:  trimmed(input.Model),
				IMEI:   trimmed(input.IMEI),
			})
			return txErr
		})
		result = res
		return err
	})
	return created, result, err
}

// CreateExtraction opens the extraction job for a device. A device carries at
// most one live extraction at a time.
func (s *Service) CreateExtraction(ctx context.Context, actor Actor, deviceID string) (Extraction, Result, error) {
	var created Extraction
	var result Result
	err := s.observe(ctx, "create_extraction", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			device, ok := tx.FindDevice(deviceID)
			if !ok {
				return &domain.NotFoundError{Entity: EntityDevice, ID: deviceID}
			}
			c, ok := tx.FindCase(device.CaseID)
			if !ok || !scope.Allows(c.Unit) {
				return &domain.NotFoundError{Entity: EntityDevice, ID: deviceID}
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
			for _, existing := range tx.ListExtractionsByCase(c.ID) {
				if existing.DeviceID == deviceID {
					return &domain.InvalidTransitionError{
						Entity: EntityExtraction,
						ID:     existing.ID,
						From:   string(existing.Status),
						To:     string(domain.ExtractionStatusPending),
						Reason: "device already has a live extraction",
					}
				}
			}
			var txErr error
			created, txErr = tx.CreateExtraction(Extraction{
				Base:     Base{CreatedBy: actor.ID, UpdatedBy: actor.ID},
				DeviceID: deviceID,
				Status:   domain.ExtractionStatusPending,
			})
			if txErr != nil {
				return txErr
			}
			return refreshCaseStatus(tx, c.ID, actor.ID)
		})
		result = res
		return err
	})
	return created, result, err
}

// CreateExtractionsForCase opens one extraction per device of the case that
// does not already have a live one. Returns the extractions created.
func (s *Service) CreateExtractionsForCase(ctx context.Context, actor Actor, caseID string) ([]Extraction, Result, error) {
	var created []Extraction
	var result Result
	err := s.observe(ctx, "create_extractions_for_case", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			c, ok := tx.FindCase(caseID)
			if !ok || !scope.Allows(c.Unit) {
				return &domain.NotFoundError{Entity: EntityCase, ID: caseID}
			}
			if c.Status == domain.CaseStatusWaitingCollection {
				return &domain.InvalidTransitionError{
					Entity: EntityCase,
					ID:     caseID,
					From:   string(c.Status),
					To:     string(c.Status),
					Reason: "case is finalized",
				}
			}
			covered := make(map[string]struct{})
			for _, extraction := range tx.ListExtractionsByCase(caseID) {
				covered[extraction.DeviceID] = struct{}{}
			}
			for _, device := range tx.ListDevicesByCase(caseID) {
				if _, ok := covered[device.ID]; ok {
					continue
				}
				extraction, txErr := tx.CreateExtraction(Extraction{
					Base:     Base{CreatedBy: actor.ID, UpdatedBy: actor.ID},
					DeviceID: device.ID,
					Status:   domain.ExtractionStatusPending,
				})
				if txErr != nil {
					return txErr
				}
				created = append(created, extraction)
			}
			if len(created) == 0 {
				return nil
			}
			return refreshCaseStatus(tx, caseID, actor.ID)
		})
		result = res
		return err
	})
	return created, result, err
}

// CompleteCaseRegistration allocates the case's sequence number and reference,
// and moves it out of draft. Registration requires at least one device and at
// least one extraction so the derived status has material to work from. The
// linked request enters in_progress.
func (s *Service) CompleteCaseRegistration(ctx context.Context, actor Actor, caseID string, expectedVersion int) (Case, Result, error) {
	var updated Case
	var result Result
	err := s.observe(ctx, "complete_case_registration", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			c, ok := tx.FindCase(caseID)
			if !ok || !scope.Allows(c.Unit) {
				return &domain.NotFoundError{Entity: EntityCase, ID: caseID}
			}
			if c.Status != domain.CaseStatusDraft || c.Registered() {
				return &domain.InvalidTransitionError{
					Entity: EntityCase,
					ID:     caseID,
					From:   string(c.Status),
					To:     string(domain.CaseStatusWaitingExtractor),
					Reason: "case is already registered",
				}
			}
			if len(tx.ListDevicesByCase(caseID)) == 0 {
				return &domain.IncompleteEntityError{Entity: EntityCase, ID: caseID, Field: "devices", Reason: "at least one device is required"}
			}
			extractions := tx.ListExtractionsByCase(caseID)
			if len(extractions) == 0 {
				return &domain.IncompleteEntityError{Entity: EntityCase, ID: caseID, Field: "extractions", Reason: "at least one extraction is required"}
			}

			sequence, txErr := tx.AllocateSequence(c.Unit, c.Year)
			if txErr != nil {
				return txErr
			}
			registered := s.opts.clock.Now()
			updated, txErr = tx.UpdateCase(caseID, expectedVersion, func(c *Case) error {
				c.SequenceNumber = &sequence
				c.Number = formatCaseNumber(c.Year, c.Unit, sequence)
				c.Status = domain.DeriveCaseStatusFrom(extractions)
				c.RegistrationCompletedAt = &registered
				c.UpdatedBy = actor.ID
				return nil
			})
			if txErr != nil {
				return txErr
			}
			return advanceLinkedRequest(tx, updated, domain.RequestStatusInProgress, actor.ID)
		})
		result = res
		return err
	})
	return updated, result, err
}

// FinalizeCase closes a registered case whose extractions are all completed.
// The case enters waiting_collection, the terminal state, and the linked
// request moves to awaiting_collection.
func (s *Service) FinalizeCase(ctx context.Context, actor Actor, caseID string, expectedVersion int, notes string) (Case, Result, error) {
	var updated Case
	var result Result
	err := s.observe(ctx, "finalize_case", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			c, ok := tx.FindCase(caseID)
			if !ok || !scope.Allows(c.Unit) {
				return &domain.NotFoundError{Entity: EntityCase, ID: caseID}
			}
			if !c.Registered() {
				return &domain.InvalidTransitionError{
					Entity: EntityCase,
					ID:     caseID,
					From:   string(c.Status),
					To:     string(domain.CaseStatusWaitingCollection),
					Reason: "case is not registered",
				}
			}
			if c.Status == domain.CaseStatusWaitingCollection {
				return &domain.InvalidTransitionError{
					Entity: EntityCase,
					ID:     caseID,
					From:   string(c.Status),
					To:     string(domain.CaseStatusWaitingCollection),
					Reason: "case is already finalized",
				}
			}
			extractions := tx.ListExtractionsByCase(caseID)
			if len(extractions) == 0 {
				return &domain.IncompleteEntityError{Entity: EntityCase, ID: caseID, Field: "extractions", Reason: "at least one extraction is required"}
			}
			for _, extraction := range extractions {
				if extraction.Status != domain.ExtractionStatusCompleted {
					return &domain.IncompleteEntityError{
						Entity: EntityCase,
						ID:     caseID,
						Field:  "extractions",
						Reason: fmt.Sprintf("extraction %s is %s, not completed", extraction.ID, extraction.Status),
					}
				}
			}
			finished := s.opts.clock.Now()
			var txErr error
			updated, txErr = tx.UpdateCase(caseID, expectedVersion, func(c *Case) error {
				c.Status = domain.CaseStatusWaitingCollection
				c.FinishedAt = &finished
				c.FinishedBy = actor.ID
				c.FinalizationNotes = trimmed(notes)
				c.UpdatedBy = actor.ID
				return nil
			})
			if txErr != nil {
				return txErr
			}
			return advanceLinkedRequest(tx, updated, domain.RequestStatusAwaitingCollection, actor.ID)
		})
		result = res
		if err != nil {
			return err
		}
		s.notify(ctx, "case finalized", func(ctx context.Context) error {
			return s.opts.notifier.CaseFinalized(ctx, caseID)
		})
		return nil
	})
	return updated, result, err
}

// DeleteCase soft-deletes a case together with its devices and extractions.
func (s *Service) DeleteCase(ctx context.Context, actor Actor, caseID string, expectedVersion int) (Result, error) {
	var result Result
	err := s.observe(ctx, "delete_case", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			c, ok := tx.FindCase(caseID)
			if !ok || !scope.Allows(c.Unit) {
				return &domain.NotFoundError{Entity: EntityCase, ID: caseID}
			}
			for _, device := range tx.ListDevicesByCase(caseID) {
				if txErr := tx.DeleteDevice(device.ID, device.Version, actor.ID); txErr != nil {
					return txErr
				}
			}
			if txErr := tx.DeleteCase(caseID, expectedVersion, actor.ID); txErr != nil {
				return txErr
			}
			if c.RequestID != nil {
				if current, ok := tx.FindRequest(*c.RequestID); ok {
					_, txErr := tx.UpdateRequest(current.ID, current.Version, func(r *Request) error {
						r.CaseID = nil
						r.Status = domain.RequestStatusMaterialReceived
						r.UpdatedBy = actor.ID
						return nil
					})
					if txErr != nil {
						return txErr
					}
				}
			}
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// DeleteDevice soft-deletes a device and its extraction, then recomputes the
// case status from what remains.
func (s *Service) DeleteDevice(ctx context.Context, actor Actor, deviceID string, expectedVersion int) (Result, error) {
	var result Result
	err := s.observe(ctx, "delete_device", func(ctx context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			device, ok := tx.FindDevice(deviceID)
			if !ok {
				return &domain.NotFoundError{Entity: EntityDevice, ID: deviceID}
			}
			c, ok := tx.FindCase(device.CaseID)
			if !ok || !scope.Allows(c.Unit) {
				return &domain.NotFoundError{Entity: EntityDevice, ID: deviceID}
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
			if txErr := tx.DeleteDevice(deviceID, expectedVersion, actor.ID); txErr != nil {
				return txErr
			}
			return refreshCaseStatus(tx, c.ID, actor.ID)
		})
		result = res
		return err
	})
	return result, err
}

// formatCaseNumber renders the public case reference: year, unit code padded
// to three digits, and the per-(unit, year) sequence padded to four.
func formatCaseNumber(year int, unit string, sequence int) string {
	code := unit
	if len(code) < 3 {
		code = strings.Repeat("0", 3-len(code)) + code
	}
	return fmt.Sprintf("%d.%s.%04d", year, code, sequence)
}
