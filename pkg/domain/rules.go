package domain

import "context"

// RuleView provides read-only access to workflow entities for rule
// evaluation. Lists exclude soft-deleted records; Finds report tombstoned
// records as absent.
type RuleView interface {
	ListRequests() []Request
	ListCases() []Case
	ListDevices() []Device
	ListExtractions() []Extraction
	FindRequest(id string) (Request, bool)
	FindCase(id string) (Case, bool)
	FindDevice(id string) (Device, bool)
	FindExtraction(id string) (Extraction, bool)
	ListDevicesByCase(caseID string) []Device
	ListExtractionsByCase(caseID string) []Extraction
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
