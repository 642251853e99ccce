package core

import (
	"context"
	"strings"
	"time"

	"casetrack/pkg/domain"
)

// Service exposes one transactional method per workflow transition. Every
// method takes the acting principal explicitly; there is no ambient
// current-user state.
type Service struct {
	store PersistentStore
	roles RoleProvider
	opts  serviceOptions
}

// NewService constructs a workflow service over the supplied store and role
// provider.
func NewService(store PersistentStore, roles RoleProvider, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store: store,
		roles: roles,
		opts:  options,
	}
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// observe wraps an operation with tracing, metrics, and outcome logging.
func (s *Service) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.opts.tracer.Start(ctx, operation)
	started := s.opts.clock.Now()
	err := fn(ctx)
	duration := time.Since(started)
	s.opts.metrics.Observe(ctx, operation, err == nil, duration)
	span.End(err)
	if err != nil {
		s.opts.logger.Warn("workflow operation failed", "operation", operation, "error", err)
	} else {
		s.opts.logger.Debug("workflow operation completed", "operation", operation, "duration_ms", float64(duration)/float64(time.Millisecond))
	}
	return err
}

// scopeFor resolves the set of units the actor may see.
func (s *Service) scopeFor(actor Actor) (Scope, error) {
	return domain.ResolveScope(actor, s.roles)
}

// memberOfUnit reports whether the given actor ID belongs to the unit
// according to the role provider.
func (s *Service) memberOfUnit(actorID, unit string) (bool, error) {
	if s.roles == nil {
		return false, nil
	}
	units, err := s.roles.UnitsForActor(actorID)
	if err != nil {
		return false, err
	}
	for _, u := range units {
		if u == unit {
			return true, nil
		}
	}
	return false, nil
}

// notify delivers a post-commit event without affecting the caller. Failures
// are logged and dropped.
func (s *Service) notify(ctx context.Context, event string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.opts.logger.Warn("notification delivery failed", "event", event, "error", err)
	}
}

// refreshCaseStatus recomputes the derived status of a registered,
// non-finalized case from the live extractions in the transaction's own
// state, writing the case only when the status actually changes.
func refreshCaseStatus(tx Transaction, caseID, actorID string) error {
	c, ok := tx.FindCase(caseID)
	if !ok {
		return nil
	}
	if !c.Registered() || c.Status == domain.CaseStatusWaitingCollection {
		return nil
	}
	derived := domain.DeriveCaseStatusFrom(tx.ListExtractionsByCase(caseID))
	if derived == c.Status {
		return nil
	}
	_, err := tx.UpdateCase(caseID, c.Version, func(cc *Case) error {
		cc.Status = derived
		cc.UpdatedBy = actorID
		return nil
	})
	return err
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}

// GetCase returns a case visible to the actor. Out-of-scope records surface
// as not found.
func (s *Service) GetCase(ctx context.Context, actor Actor, id string) (Case, error) {
	var out Case
	err := s.observe(ctx, "get_case", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		c, ok := s.store.GetCase(scope, id)
		if !ok {
			return &domain.NotFoundError{Entity: EntityCase, ID: id}
		}
		out = c
		return nil
	})
	return out, err
}

// ListCases returns the cases visible to the actor.
func (s *Service) ListCases(ctx context.Context, actor Actor) ([]Case, error) {
	var out []Case
	err := s.observe(ctx, "list_cases", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		out = s.store.ListCases(scope)
		return nil
	})
	return out, err
}

// GetRequest returns a request visible to the actor.
func (s *Service) GetRequest(ctx context.Context, actor Actor, id string) (Request, error) {
	var out Request
	err := s.observe(ctx, "get_request", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		r, ok := s.store.GetRequest(scope, id)
		if !ok {
			return &domain.NotFoundError{Entity: EntityRequest, ID: id}
		}
		out = r
		return nil
	})
	return out, err
}

// ListRequests returns the requests visible to the actor.
func (s *Service) ListRequests(ctx context.Context, actor Actor) ([]Request, error) {
	var out []Request
	err := s.observe(ctx, "list_requests", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		out = s.store.ListRequests(scope)
		return nil
	})
	return out, err
}

// GetDevice returns a device when it is live and its case is within the
// actor's scope.
func (s *Service) GetDevice(ctx context.Context, actor Actor, id string) (Device, error) {
	var out Device
	err := s.observe(ctx, "get_device", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		d, ok := s.store.GetDevice(scope, id)
		if !ok {
			return &domain.NotFoundError{Entity: EntityDevice, ID: id}
		}
		out = d
		return nil
	})
	return out, err
}

// GetExtraction returns an extraction visible to the actor.
func (s *Service) GetExtraction(ctx context.Context, actor Actor, id string) (Extraction, error) {
	var out Extraction
	err := s.observe(ctx, "get_extraction", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		e, ok := s.store.GetExtraction(scope, id)
		if !ok {
			return &domain.NotFoundError{Entity: EntityExtraction, ID: id}
		}
		out = e
		return nil
	})
	return out, err
}

// ListExtractionsByCase returns the extractions of a case visible to the
// actor. A case outside the actor's scope yields not found.
func (s *Service) ListExtractionsByCase(ctx context.Context, actor Actor, caseID string) ([]Extraction, error) {
	var out []Extraction
	err := s.observe(ctx, "list_extractions_by_case", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		if _, ok := s.store.GetCase(scope, caseID); !ok {
			return &domain.NotFoundError{Entity: EntityCase, ID: caseID}
		}
		out = s.store.ListExtractionsByCase(scope, caseID)
		return nil
	})
	return out, err
}

// ListDevicesByCase returns the devices of a case visible to the actor.
func (s *Service) ListDevicesByCase(ctx context.Context, actor Actor, caseID string) ([]Device, error) {
	var out []Device
	err := s.observe(ctx, "list_devices_by_case", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		if _, ok := s.store.GetCase(scope, caseID); !ok {
			return &domain.NotFoundError{Entity: EntityCase, ID: caseID}
		}
		out = s.store.ListDevicesByCase(scope, caseID)
		return nil
	})
	return out, err
}

// ListExtractionsByExtractor returns the extractions assigned to an
// extractor, narrowed to the actor's scope.
func (s *Service) ListExtractionsByExtractor(ctx context.Context, actor Actor, extractorID string) ([]Extraction, error) {
	var out []Extraction
	err := s.observe(ctx, "list_extractions_by_extractor", func(context.Context) error {
		scope, err := s.scopeFor(actor)
		if err != nil {
			return err
		}
		out = s.store.ListExtractionsByExtractor(scope, extractorID)
		return nil
	})
	return out, err
}
