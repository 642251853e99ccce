package core

import "casetrack/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Actor              = domain.Actor
	Request            = domain.Request
	Case               = domain.Case
	Device             = domain.Device
	Extraction         = domain.Extraction
	Outcome            = domain.Outcome
	Scope              = domain.Scope
	RequestStatus      = domain.RequestStatus
	CaseStatus         = domain.CaseStatus
	ExtractionStatus   = domain.ExtractionStatus
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	RoleProvider       = domain.RoleProvider
)

const (
	EntityRequest    = domain.EntityRequest
	EntityCase       = domain.EntityCase
	EntityDevice     = domain.EntityDevice
	EntityExtraction = domain.EntityExtraction
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
