package domain

import "context"

// Transaction exposes the workflow operations that a persistence
// implementation must support within an atomic scope. Update and Delete take
// the caller's expected version and fail with VersionConflictError on
// mismatch; every successful mutation bumps the record version by one.
type Transaction interface {
	Snapshot() TransactionView
	CreateRequest(Request) (Request, error)
	UpdateRequest(id string, expectedVersion int, mutator func(*Request) error) (Request, error)
	DeleteRequest(id string, expectedVersion int, actorID string) error
	CreateCase(Case) (Case, error)
	UpdateCase(id string, expectedVersion int, mutator func(*Case) error) (Case, error)
	DeleteCase(id string, expectedVersion int, actorID string) error
	CreateDevice(Device) (Device, error)
	UpdateDevice(id string, expectedVersion int, mutator func(*Device) error) (Device, error)
	DeleteDevice(id string, expectedVersion int, actorID string) error
	CreateExtraction(Extraction) (Extraction, error)
	UpdateExtraction(id string, expectedVersion int, mutator func(*Extraction) error) (Extraction, error)
	DeleteExtraction(id string, expectedVersion int, actorID string) error
	// AllocateSequence returns the next sequence number for the unit and
	// year, starting at 1. Allocation is serialized with the transaction
	// commit so two transactions never observe the same value.
	AllocateSequence(unit string, year int) (int, error)
	FindRequest(id string) (Request, bool)
	FindCase(id string) (Case, bool)
	FindDevice(id string) (Device, bool)
	FindExtraction(id string) (Extraction, bool)
	ListDevicesByCase(caseID string) []Device
	ListExtractionsByCase(caseID string) []Extraction
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. Read
// methods take a Scope and return only records whose unit the scope allows;
// an empty scope always yields nothing.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetRequest(scope Scope, id string) (Request, bool)
	ListRequests(scope Scope) []Request
	GetCase(scope Scope, id string) (Case, bool)
	ListCases(scope Scope) []Case
	GetDevice(scope Scope, id string) (Device, bool)
	ListDevicesByCase(scope Scope, caseID string) []Device
	GetExtraction(scope Scope, id string) (Extraction, bool)
	ListExtractionsByCase(scope Scope, caseID string) []Extraction
	ListExtractionsByExtractor(scope Scope, extractorID string) []Extraction
}
