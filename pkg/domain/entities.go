// Package domain defines the persistent entities, status enumerations, and
// rule evaluation primitives for the casetrack extraction workflow.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the workflow domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityRequest identifies an extraction intake request record.
	EntityRequest EntityType = "request"
	// EntityCase identifies a case record opened against a request.
	EntityCase EntityType = "case"
	// EntityDevice identifies a device registered under a case.
	EntityDevice EntityType = "device"
	// EntityExtraction identifies a device extraction record.
	EntityExtraction EntityType = "extraction"
)

// RequestStatus enumerates the intake request lifecycle.
type RequestStatus string

// Canonical request statuses, in lifecycle order.
const (
	RequestStatusPending            RequestStatus = "pending"
	RequestStatusAwaitingMaterial   RequestStatus = "awaiting_material"
	RequestStatusMaterialReceived   RequestStatus = "material_received"
	RequestStatusAwaitingStart      RequestStatus = "awaiting_start"
	RequestStatusInProgress         RequestStatus = "in_progress"
	RequestStatusAwaitingCollection RequestStatus = "awaiting_collection"
)

// CaseStatus enumerates case lifecycle states. Apart from Draft and the
// terminal WaitingCollection hand-off, the value is always derived from the
// statuses of the case's live extractions via DeriveCaseStatus.
type CaseStatus string

// Canonical case statuses.
const (
	CaseStatusDraft             CaseStatus = "draft"
	CaseStatusWaitingExtractor  CaseStatus = "waiting_extractor"
	CaseStatusWaitingStart      CaseStatus = "waiting_start"
	CaseStatusInProgress        CaseStatus = "in_progress"
	CaseStatusPaused            CaseStatus = "paused"
	CaseStatusCompleted         CaseStatus = "completed"
	CaseStatusWaitingCollection CaseStatus = "waiting_collection"
)

// ExtractionStatus enumerates device extraction states.
type ExtractionStatus string

// Canonical extraction statuses.
const (
	ExtractionStatusPending    ExtractionStatus = "pending"
	ExtractionStatusAssigned   ExtractionStatus = "assigned"
	ExtractionStatusInProgress ExtractionStatus = "in_progress"
	ExtractionStatusPaused     ExtractionStatus = "paused"
	ExtractionStatusCompleted  ExtractionStatus = "completed"
)

// ExtractionResult classifies the outcome of a finished extraction.
type ExtractionResult string

// Canonical extraction results.
const (
	ExtractionResultSuccess ExtractionResult = "success"
	ExtractionResultFailed  ExtractionResult = "failed"
	ExtractionResultPartial ExtractionResult = "partial"
)

// Priority orders cases for assignment and display.
type Priority string

// Case priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Role identifies the kind of actor invoking a workflow operation.
type Role string

// Canonical actor roles.
const (
	RoleSuperuser Role = "superuser"
	RoleStaff     Role = "staff"
	RoleExtractor Role = "extractor"
	RoleRequester Role = "requester"
	RoleManager   Role = "manager"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains the audit fields shared by all domain records. Version is an
// optimistic-concurrency counter incremented by exactly one on every
// successful mutation; DeletedAt is a soft-delete tombstone excluded from
// every read path.
type Base struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
	Version   int        `json:"version"`
}

// Deleted reports whether the record carries a soft-delete tombstone.
func (b Base) Deleted() bool {
	return b.DeletedAt != nil
}

// Request is an extraction intake record. A request is linked to at most one
// case; CaseID is set exactly once when the case is created.
type Request struct {
	Base
	RequestingUnit       string        `json:"requesting_unit"`
	TargetUnit           string        `json:"target_unit"`
	CrimeCategory        string        `json:"crime_category,omitempty"`
	AuthorityName        string        `json:"authority_name,omitempty"`
	ReplyEmail           string        `json:"reply_email,omitempty"`
	DeviceCountRequested int           `json:"device_count_requested"`
	Status               RequestStatus `json:"status"`
	ReceivedAt           *time.Time    `json:"received_at,omitempty"`
	ReceivedBy           string        `json:"received_by,omitempty"`
	ReceiptNotes         string        `json:"receipt_notes,omitempty"`
	CaseID               *string       `json:"case_id,omitempty"`
}

// Case is a unit of extraction work opened against a request. SequenceNumber
// is nil until registration completes; once assigned it is unique per
// (Unit, Year) and never reassigned.
type Case struct {
	Base
	Unit                    string     `json:"unit"`
	Year                    int        `json:"year"`
	SequenceNumber          *int       `json:"sequence_number,omitempty"`
	Number                  string     `json:"number,omitempty"`
	Status                  CaseStatus `json:"status"`
	Priority                Priority   `json:"priority"`
	RequestID               *string    `json:"request_id,omitempty"`
	RegistrationCompletedAt *time.Time `json:"registration_completed_at,omitempty"`
	FinishedAt              *time.Time `json:"finished_at,omitempty"`
	FinishedBy              string     `json:"finished_by,omitempty"`
	FinalizationNotes       string     `json:"finalization_notes,omitempty"`
}

// Registered reports whether the case has been assigned a sequence number.
func (c Case) Registered() bool {
	return c.SequenceNumber != nil
}

// Device is a physical item registered under exactly one case. Devices carry
// no independent status; their lifecycle lives on the paired extraction.
type Device struct {
	Base
	CaseID string `json:"case_id"`
	Label  string `json:"label,omitempty"`
	Make   string `json:"make,omitempty"`
	Model  string `json:"model,omitempty"`
	IMEI   string `json:"imei,omitempty"`
}

// Extraction tracks the forensic data extraction performed on one device.
// CaseID is denormalized from the device so sibling extractions of a case can
// be listed without resolving devices first.
type Extraction struct {
	Base
	DeviceID          string           `json:"device_id"`
	CaseID            string           `json:"case_id"`
	Status            ExtractionStatus `json:"status"`
	AssignedExtractor *string          `json:"assigned_extractor,omitempty"`
	AssignedAt        *time.Time       `json:"assigned_at,omitempty"`
	AssignedBy        string           `json:"assigned_by,omitempty"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	FinishedAt        *time.Time       `json:"finished_at,omitempty"`
	Result            ExtractionResult `json:"result,omitempty"`
	SizeGB            int              `json:"size_gb,omitempty"`
	StorageMedia      string           `json:"storage_media,omitempty"`
	Notes             string           `json:"notes,omitempty"`
}

// Outcome is the payload recorded when an extraction finishes.
type Outcome struct {
	Result       ExtractionResult `json:"result"`
	SizeGB       int              `json:"size_gb"`
	StorageMedia string           `json:"storage_media"`
	Notes        string           `json:"notes,omitempty"`
}

// Validate checks the outcome payload for the finish transition.
func (o Outcome) Validate() error {
	switch o.Result {
	case ExtractionResultSuccess, ExtractionResultFailed, ExtractionResultPartial:
	default:
		return &IncompleteEntityError{Entity: EntityExtraction, Field: "result", Reason: "unknown result " + string(o.Result)}
	}
	if o.SizeGB < 0 {
		return &IncompleteEntityError{Entity: EntityExtraction, Field: "size_gb", Reason: "must not be negative"}
	}
	if o.Result != ExtractionResultFailed && strings.TrimSpace(o.StorageMedia) == "" {
		return &IncompleteEntityError{Entity: EntityExtraction, Field: "storage_media", Reason: "required unless the extraction failed"}
	}
	return nil
}

// Actor identifies the principal invoking an operation. Unit memberships are
// resolved separately through a RoleProvider; no ambient current-user state
// exists anywhere in the module.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Privileged reports whether the actor bypasses tenant scoping entirely.
func (a Actor) Privileged() bool {
	return a.Role == RoleSuperuser || a.Role == RoleStaff
}

var extractionStatusSet = map[ExtractionStatus]struct{}{
	ExtractionStatusPending:    {},
	ExtractionStatusAssigned:   {},
	ExtractionStatusInProgress: {},
	ExtractionStatusPaused:     {},
	ExtractionStatusCompleted:  {},
}

// KnownExtractionStatuses returns the ordered list of extraction statuses.
func KnownExtractionStatuses() []ExtractionStatus {
	return []ExtractionStatus{
		ExtractionStatusPending,
		ExtractionStatusAssigned,
		ExtractionStatusInProgress,
		ExtractionStatusPaused,
		ExtractionStatusCompleted,
	}
}

// ParseExtractionStatus converts a string into a known ExtractionStatus.
func ParseExtractionStatus(value string) (ExtractionStatus, bool) {
	normalized := ExtractionStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := extractionStatusSet[normalized]
	return normalized, ok
}

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityUrgent:
		return PriorityUrgent, true
	}
	return "", false
}

// ParseRole converts a string into a known Role.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleSuperuser:
		return RoleSuperuser, true
	case RoleStaff:
		return RoleStaff, true
	case RoleExtractor:
		return RoleExtractor, true
	case RoleRequester:
		return RoleRequester, true
	case RoleManager:
		return RoleManager, true
	}
	return "", false
}

// ValidCaseStatus reports whether the value is a member of the case status enum.
func ValidCaseStatus(status CaseStatus) bool {
	switch status {
	case CaseStatusDraft, CaseStatusWaitingExtractor, CaseStatusWaitingStart,
		CaseStatusInProgress, CaseStatusPaused, CaseStatusCompleted, CaseStatusWaitingCollection:
		return true
	}
	return false
}

// ValidRequestStatus reports whether the value is a member of the request status enum.
func ValidRequestStatus(status RequestStatus) bool {
	switch status {
	case RequestStatusPending, RequestStatusAwaitingMaterial, RequestStatusMaterialReceived,
		RequestStatusAwaitingStart, RequestStatusInProgress, RequestStatusAwaitingCollection:
		return true
	}
	return false
}

// ValidExtractionStatus reports whether the value is a member of the extraction status enum.
func ValidExtractionStatus(status ExtractionStatus) bool {
	_, ok := extractionStatusSet[status]
	return ok
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
