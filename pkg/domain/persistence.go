package domain

import "context"

// Transaction exposes mutation operations executed atomically. All writes
// inside a transaction, including audit entries, commit or fail together.
// Records are never deleted; retirement is expressed through status values.
type Transaction interface {
	CreateProject(project Project) (Project, error)
	UpdateProject(id string, mutate func(*Project) error) (Project, error)

	CreateBoundary(boundary SystemBoundary) (SystemBoundary, error)
	UpdateBoundary(id string, mutate func(*SystemBoundary) error) (SystemBoundary, error)

	CreateRequirement(requirement Requirement) (Requirement, error)
	UpdateRequirement(id string, mutate func(*Requirement) error) (Requirement, error)

	CreateFunctionalSpec(spec FunctionalSpec) (FunctionalSpec, error)
	UpdateFunctionalSpec(id string, mutate func(*FunctionalSpec) error) (FunctionalSpec, error)

	CreateDesignSpec(spec DesignSpec) (DesignSpec, error)
	UpdateDesignSpec(id string, mutate func(*DesignSpec) error) (DesignSpec, error)

	CreateTestCase(testCase TestCase) (TestCase, error)
	UpdateTestCase(id string, mutate func(*TestCase) error) (TestCase, error)

	CreateTestExecution(execution TestExecution) (TestExecution, error)
	UpdateTestExecution(id string, mutate func(*TestExecution) error) (TestExecution, error)

	CreateDeviation(deviation Deviation) (Deviation, error)
	UpdateDeviation(id string, mutate func(*Deviation) error) (Deviation, error)

	CreateChangeRequest(change ChangeRequest) (ChangeRequest, error)
	UpdateChangeRequest(id string, mutate func(*ChangeRequest) error) (ChangeRequest, error)

	CreateSignature(signature Signature) (Signature, error)

	// AppendAudit records one immutable audit entry within the transaction.
	// The entry's ID and timestamp are assigned by the store.
	AppendAudit(entry AuditEntry) (AuditEntry, error)

	// Snapshot exposes the transaction's working state for reads
	// mid-transaction.
	Snapshot() TransactionView
}

// TransactionView provides read access to a consistent snapshot.
type TransactionView interface {
	RuleView

	ListRequirementsByProject(projectID string) []Requirement
	ListFunctionalSpecsByRequirement(requirementID string) []FunctionalSpec
	ListDesignSpecsByFunctionalSpec(functionalSpecID string) []DesignSpec
	ListTestCasesByFunctionalSpec(functionalSpecID string) []TestCase
	ListTestExecutionsByTestCase(testCaseID string) []TestExecution
	ListDeviationsByProject(projectID string) []Deviation
	ListChangeRequestsByProject(projectID string) []ChangeRequest
}

// PersistentStore provides atomic transactions and snapshot reads over the
// validation domain.
type PersistentStore interface {
	// RunInTransaction executes fn atomically. Committed changes are
	// evaluated against registered rules; blocking violations abort the
	// transaction and roll back every write it performed.
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)

	// View executes fn against an immutable snapshot of current state.
	View(ctx context.Context, fn func(TransactionView) error) error

	GetProject(id string) (Project, bool)
	GetBoundary(id string) (SystemBoundary, bool)
	GetRequirement(id string) (Requirement, bool)
	GetFunctionalSpec(id string) (FunctionalSpec, bool)
	GetDesignSpec(id string) (DesignSpec, bool)
	GetTestCase(id string) (TestCase, bool)
	GetTestExecution(id string) (TestExecution, bool)
	GetDeviation(id string) (Deviation, bool)
	GetChangeRequest(id string) (ChangeRequest, bool)
	GetSignature(id string) (Signature, bool)

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

	// ListAuditEntries returns audit entries matching the filter, newest
	// first.
	ListAuditEntries(filter AuditFilter) []AuditEntry
}
