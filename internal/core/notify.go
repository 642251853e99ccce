package core

import "context"

// Notifier receives workflow events after a transaction commits. Delivery is
// fire and forget: a failing notifier is logged and never unwinds the commit.
type Notifier interface {
	ExtractionAssigned(ctx context.Context, extractionID, extractorID string) error
	CaseFinalized(ctx context.Context, caseID string) error
}

// NoopNotifier discards all events.
type NoopNotifier struct{}

// ExtractionAssigned implements Notifier.
func (NoopNotifier) ExtractionAssigned(context.Context, string, string) error { return nil }

// CaseFinalized implements Notifier.
func (NoopNotifier) CaseFinalized(context.Context, string) error { return nil }

// MultiNotifier fans events out to every wrapped notifier. The first error is
// returned after all notifiers have been invoked.
type MultiNotifier []Notifier

// ExtractionAssigned implements Notifier.
func (m MultiNotifier) ExtractionAssigned(ctx context.Context, extractionID, extractorID string) error {
	var first error
	for _, n := range m {
		if err := n.ExtractionAssigned(ctx, extractionID, extractorID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CaseFinalized implements Notifier.
func (m MultiNotifier) CaseFinalized(ctx context.Context, caseID string) error {
	var first error
	for _, n := range m {
		if err := n.CaseFinalized(ctx, caseID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogNotifier writes events to the service logger. Useful as a default sink
// when no delivery transport is configured.
type LogNotifier struct {
	Logger Logger
}

// ExtractionAssigned implements Notifier.
func (n LogNotifier) ExtractionAssigned(_ context.Context, extractionID, extractorID string) error {
	if n.Logger != nil {
		n.Logger.Info("extraction assigned", "extraction_id", extractionID, "extractor_id", extractorID)
	}
	return nil
}

// CaseFinalized implements Notifier.
func (n LogNotifier) CaseFinalized(_ context.Context, caseID string) error {
	if n.Logger != nil {
		n.Logger.Info("case finalized", "case_id", caseID)
	}
	return nil
}
