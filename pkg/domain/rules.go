package domain

import "context"

// RuleView provides read access to a consistent snapshot of engine state for
// rule evaluation.
type RuleView interface {
	ListProjects() []Project
	ListBoundaries() []SystemBoundary
	ListRequirements() []Requirement
	ListFunctionalSpecs() []FunctionalSpec
	ListDesignSpecs() []DesignSpec
	ListTestCases() []TestCase
	ListTestExecutions() []TestExecution
	ListDeviations() []Deviation
	ListChangeRequests() []ChangeRequest
	ListSignatures() []Signature

	FindProject(id string) (Project, bool)
	FindBoundary(id string) (SystemBoundary, bool)
	FindRequirement(id string) (Requirement, bool)
	FindFunctionalSpec(id string) (FunctionalSpec, bool)
	FindDesignSpec(id string) (DesignSpec, bool)
	FindTestCase(id string) (TestCase, bool)
	FindTestExecution(id string) (TestExecution, bool)
	FindDeviation(id string) (Deviation, bool)
	FindChangeRequest(id string) (ChangeRequest, bool)
	FindSignature(id string) (Signature, bool)
}

// Rule evaluates pending changes against a snapshot of engine state.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine registers and evaluates rules against transactions before
// commit.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine(rules ...Rule) *RulesEngine {
	engine := &RulesEngine{}
	engine.rules = append(engine.rules, rules...)
	return engine
}

// Register appends a rule to the evaluation chain.
func (e *RulesEngine) Register(rule Rule) {
	if rule == nil {
		return
	}
	e.rules = append(e.rules, rule)
}

// Evaluate runs every registered rule and merges their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var aggregate Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		aggregate.Merge(res)
	}
	return aggregate, nil
}
