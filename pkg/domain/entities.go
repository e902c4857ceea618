// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the validation workflow engine.
package domain

import "time"

// EntityType identifies the type of record stored in the validation domain.
type EntityType string

// Supported entity type identifiers used in Change records, audit entries,
// and persistence buckets.
const (
	// EntityProject identifies a validation project record.
	EntityProject EntityType = "validation_project"
	// EntityBoundary identifies a system boundary record.
	EntityBoundary EntityType = "system_boundary"
	// EntityRequirement identifies a user requirement (URS) record.
	EntityRequirement EntityType = "requirement"
	// EntityFunctionalSpec identifies a functional specification record.
	EntityFunctionalSpec EntityType = "functional_spec"
	// EntityDesignSpec identifies a design specification record.
	EntityDesignSpec EntityType = "design_spec"
	// EntityTestCase identifies a test case record.
	EntityTestCase EntityType = "test_case"
	// EntityTestExecution identifies a test execution record.
	EntityTestExecution EntityType = "test_execution"
	// EntityDeviation identifies a deviation record.
	EntityDeviation EntityType = "deviation"
	// EntityChangeRequest identifies a change request record.
	EntityChangeRequest EntityType = "change_request"
	// EntitySignature identifies an electronic signature record.
	EntitySignature EntityType = "signature"
)

// Role enumerates the actor roles recognised by the engine. Roles are
// supplied per call and never stored as engine state.
type Role string

// Canonical roles.
const (
	RoleAdmin          Role = "Admin"
	RoleValidationLead Role = "Validation Lead"
	RoleQA             Role = "QA"
	RoleExecutor       Role = "Executor"
)

// CanApprove reports whether the role carries the approval capability.
func (r Role) CanApprove() bool { return r == RoleQA || r == RoleAdmin }

// CanExecuteTests reports whether the role may record test executions.
func (r Role) CanExecuteTests() bool { return r == RoleExecutor || r == RoleAdmin }

// CanAdvanceProject reports whether the role may advance the project lifecycle.
func (r Role) CanAdvanceProject() bool { return r == RoleValidationLead || r == RoleAdmin }

// Actor carries the identity and role attached to every engine call.
type Actor struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
}

// AIActor is the reserved identity recorded when an AI suggestion is
// generated or accepted. It never carries approval or execution capability.
var AIActor = Actor{Identity: "AI-System", Role: "AI"}

// SystemType distinguishes regulated from non-regulated systems.
type SystemType string

// System classifications.
const (
	SystemGxP    SystemType = "GxP"
	SystemNonGxP SystemType = "Non-GxP"
)

// ValidationModel selects the validation methodology for a project.
type ValidationModel string

// Validation methodologies.
const (
	ModelVModel   ValidationModel = "V-Model"
	ModelAgileCSV ValidationModel = "Agile CSV"
)

// ProjectType categorises why a project exists.
type ProjectType string

// Project types.
const (
	ProjectNewSystem    ProjectType = "New System"
	ProjectChange       ProjectType = "Change"
	ProjectRevalidation ProjectType = "Revalidation"
)

// ProjectStatus represents the project lifecycle phase. Status is advanced
// explicitly by an authorized actor, never inferred from artifact state.
type ProjectStatus string

// Project lifecycle phases.
const (
	ProjectPlanning  ProjectStatus = "Planning"
	ProjectURS       ProjectStatus = "URS"
	ProjectFS        ProjectStatus = "FS"
	ProjectDS        ProjectStatus = "DS"
	ProjectTesting   ProjectStatus = "Testing"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectOnHold    ProjectStatus = "On Hold"
)

// RiskLevel grades risk dimensions and deviation severity.
type RiskLevel string

// Risk grades ordered Low < Medium < High < Critical.
const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

var riskSeverity = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Severity returns the numeric ordering of a risk level. Unknown levels
// rank below Low.
func (r RiskLevel) Severity() int { return riskSeverity[r] }

// MaxRisk returns the highest-severity level among the given dimensions.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	max := RiskLow
	for _, l := range levels {
		if l.Severity() > max.Severity() {
			max = l
		}
	}
	return max
}

// RequirementStatus represents the URS approval lifecycle.
type RequirementStatus string

// Requirement lifecycle states. Obsolete is terminal.
const (
	RequirementDraft       RequirementStatus = "Draft"
	RequirementUnderReview RequirementStatus = "Under Review"
	RequirementApproved    RequirementStatus = "Approved"
	RequirementObsolete    RequirementStatus = "Obsolete"
)

// SpecStatus represents the approval lifecycle shared by functional specs,
// design specs, and system boundaries.
type SpecStatus string

// Specification lifecycle states.
const (
	SpecDraft       SpecStatus = "Draft"
	SpecUnderReview SpecStatus = "Under Review"
	SpecApproved    SpecStatus = "Approved"
)

// TestResult enumerates test execution outcomes.
type TestResult string

// Execution outcomes.
const (
	ResultNotExecuted TestResult = "Not Executed"
	ResultPass        TestResult = "Pass"
	ResultFail        TestResult = "Fail"
	ResultBlocked     TestResult = "Blocked"
)

// DeviationStatus represents the CAPA workflow chain. Transitions are
// strictly ordered with no skipping; Closed is terminal.
type DeviationStatus string

// Deviation workflow states.
const (
	DeviationOpen          DeviationStatus = "Open"
	DeviationInvestigating DeviationStatus = "Investigating"
	DeviationCAPAAssigned  DeviationStatus = "CAPA Assigned"
	DeviationCAPAVerified  DeviationStatus = "CAPA Verified"
	DeviationClosed        DeviationStatus = "Closed"
)

// ChangeStatus represents the change request workflow.
type ChangeStatus string

// Change request states. Completed and Rejected are terminal; Rejected is
// reachable from any non-terminal state.
const (
	ChangeRequested      ChangeStatus = "Requested"
	ChangeImpactAnalysis ChangeStatus = "Impact Analysis"
	ChangeApproved       ChangeStatus = "Approved"
	ChangeImplementing   ChangeStatus = "Implementing"
	ChangeCompleted      ChangeStatus = "Completed"
	ChangeRejected       ChangeStatus = "Rejected"
)

// ChangePriority grades change request urgency.
type ChangePriority string

// Change priorities.
const (
	PriorityLow    ChangePriority = "Low"
	PriorityMedium ChangePriority = "Medium"
	PriorityHigh   ChangePriority = "High"
	PriorityUrgent ChangePriority = "Urgent"
)

// SignatureType classifies the meaning of an electronic signature.
type SignatureType string

// Signature meanings.
const (
	SignatureAuthor    SignatureType = "Author"
	SignatureReview    SignatureType = "Review"
	SignatureApproval  SignatureType = "Approval"
	SignatureExecution SignatureType = "Execution"
)

// ChainStatus is the derived completeness state of one requirement's
// downstream artifact chain in the traceability matrix.
type ChainStatus string

// Chain statuses in derivation precedence order.
const (
	ChainFailed     ChainStatus = "Failed"
	ChainComplete   ChainStatus = "Complete"
	ChainNotStarted ChainStatus = "Not Started"
	ChainPartial    ChainStatus = "Partial"
)

// Decision is the validation summary outcome.
type Decision string

// Validation summary decisions.
const (
	DecisionApproved              Decision = "Approved"
	DecisionConditionallyApproved Decision = "Conditionally Approved"
	DecisionNotApproved           Decision = "Not Approved"
)

// Base contains common fields for all domain records. IDs are opaque,
// stable, unique strings assigned at creation and never reused.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is the owning aggregate for all validation artifacts.
type Project struct {
	Base
	Name             string          `json:"name"`
	ProjectType      ProjectType     `json:"project_type"`
	SystemType       SystemType      `json:"system_type"`
	ValidationModel  ValidationModel `json:"validation_model"`
	IntendedUse      string          `json:"intended_use"`
	Scope            string          `json:"scope"`
	Regulations      []string        `json:"applicable_regulations"`
	Status           ProjectStatus   `json:"status"`
	RiskLevel        RiskLevel       `json:"risk_level"`
	ValidationLead   string          `json:"validation_lead"`
	QAReviewer       string          `json:"qa_reviewer"`
	ProjectSponsor   string          `json:"project_sponsor"`
	TargetCompletion *string         `json:"target_completion,omitempty"`
	ActualCompletion *string         `json:"actual_completion,omitempty"`
	CreatedBy        string          `json:"created_by"`
}

// BoundaryExclusion records an out-of-scope item with its justification.
type BoundaryExclusion struct {
	Item          string `json:"item"`
	Justification string `json:"justification"`
}

// BoundaryInterface describes an external interface crossing the system
// boundary.
type BoundaryInterface struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	GxPImpact   bool   `json:"gxp_impact"`
}

// BoundaryDependency records an upstream system the validated system relies
// on.
type BoundaryDependency struct {
	System           string `json:"system"`
	Description      string `json:"description"`
	ValidationStatus string `json:"validation_status"`
}

// SOPReference points to a governing standard operating procedure.
type SOPReference struct {
	SOPID   string `json:"sop_id"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

// SystemBoundary captures the validated system's scope definition.
type SystemBoundary struct {
	Base
	ProjectID     string               `json:"project_id"`
	InScope       []string             `json:"in_scope_items"`
	OutOfScope    []string             `json:"out_of_scope_items"`
	Exclusions    []BoundaryExclusion  `json:"exclusion_justifications"`
	Interfaces    []BoundaryInterface  `json:"interfaces"`
	Dependencies  []BoundaryDependency `json:"dependencies"`
	SOPReferences []SOPReference       `json:"sop_references"`
	Version       string               `json:"version"`
	Status        SpecStatus           `json:"status"`
	ApprovedBy    *string              `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time           `json:"approved_at,omitempty"`
	CreatedBy     string               `json:"created_by"`
}

// Requirement is a user requirement specification (URS) entry.
type Requirement struct {
	Base
	ProjectID          string            `json:"project_id"`
	Category           string            `json:"category"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	AcceptanceCriteria string            `json:"acceptance_criteria"`
	GxPImpact          bool              `json:"gxp_impact"`
	PatientSafetyRisk  RiskLevel         `json:"patient_safety_risk"`
	ProductQualityRisk RiskLevel         `json:"product_quality_risk"`
	DataIntegrityRisk  RiskLevel         `json:"data_integrity_risk"`
	OverallRisk        RiskLevel         `json:"overall_risk"`
	Version            string            `json:"version"`
	Status             RequirementStatus `json:"status"`
	AISuggested        bool              `json:"ai_suggested"`
	AmbiguityScore     *float64          `json:"ai_ambiguity_score,omitempty"`
	AmbiguityNotes     *string           `json:"ai_ambiguity_notes,omitempty"`
	ApprovedBy         *string           `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time        `json:"approved_at,omitempty"`
	CreatedBy          string            `json:"created_by"`
}

// Mutable reports whether requirement content may still change. Approved
// requirement content is immutable; only status transitions remain.
func (r Requirement) Mutable() bool {
	return r.Status == RequirementDraft || r.Status == RequirementUnderReview
}

// FunctionalSpec describes how a single approved requirement will be met.
type FunctionalSpec struct {
	Base
	RequirementID     string     `json:"urs_id"`
	ProjectID         string     `json:"project_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	TechnicalApproach string     `json:"technical_approach"`
	Assumptions       string     `json:"assumptions"`
	Constraints       string     `json:"constraints"`
	Version           string     `json:"version"`
	Status            SpecStatus `json:"status"`
	AIGenerated       bool       `json:"ai_generated"`
	ApprovedBy        *string    `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	CreatedBy         string     `json:"created_by"`
}

// DesignSpec details the technical design under an approved functional spec.
// It is the only optional artifact in the chain; its absence never breaks
// chain completeness.
type DesignSpec struct {
	Base
	FunctionalSpecID string     `json:"fs_id"`
	ProjectID        string     `json:"project_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TechnicalDesign  string     `json:"technical_design"`
	DataStructures   string     `json:"data_structures"`
	Interfaces       string     `json:"interfaces"`
	Required         bool       `json:"required"`
	Justification    string     `json:"justification"`
	Version          string     `json:"version"`
	Status           SpecStatus `json:"status"`
	AIGenerated      bool       `json:"ai_generated"`
	ApprovedBy       *string    `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CreatedBy        string     `json:"created_by"`
}

// TestCase verifies a functional spec and, transitively, its requirement.
type TestCase struct {
	Base
	FunctionalSpecID   string `json:"fs_id"`
	RequirementID      string `json:"urs_id"`
	ProjectID          string `json:"project_id"`
	TestType           string `json:"test_type"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	Preconditions      string `json:"preconditions"`
	TestSteps          string `json:"test_steps"`
	ExpectedResult     string `json:"expected_result"`
	AcceptanceCriteria string `json:"acceptance_criteria"`
	Priority           string `json:"priority"`
	AIGenerated        bool   `json:"ai_generated"`
	CreatedBy          string `json:"created_by"`
}

// TestExecution records one run of a test case. Multiple executions may
// exist per case; the latest is the one with the greatest execution
// timestamp, ties broken by the higher cycle number.
type TestExecution struct {
	Base
	TestCaseID   string     `json:"test_case_id"`
	ProjectID    string     `json:"project_id"`
	Cycle        int        `json:"cycle"`
	Executor     string     `json:"executor"`
	ExecutedAt   time.Time  `json:"execution_date"`
	Result       TestResult `json:"result"`
	ActualResult string     `json:"actual_result"`
	EvidenceRefs []string   `json:"evidence_references"`
	Comments     string     `json:"comments"`
	Environment  string     `json:"environment"`
	DeviationID  *string    `json:"deviation_id,omitempty"`
	SignatureID  *string    `json:"signature_id,omitempty"`
}

// Deviation documents a test failure or process departure and its CAPA
// workflow.
type Deviation struct {
	Base
	TestExecutionID       *string         `json:"test_execution_id,omitempty"`
	ProjectID             string          `json:"project_id"`
	DeviationType         string          `json:"deviation_type"`
	Severity              RiskLevel       `json:"severity"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	RootCause             string          `json:"root_cause"`
	RootCauseCategory     string          `json:"root_cause_category"`
	RootCauseAISuggested  bool            `json:"root_cause_ai_suggested"`
	InvestigationSummary  string          `json:"investigation_summary"`
	CAPACorrective        string          `json:"capa_corrective"`
	CAPAPreventive        string          `json:"capa_preventive"`
	CAPADueDate           *string         `json:"capa_due_date,omitempty"`
	EffectivenessCriteria string          `json:"effectiveness_criteria"`
	EffectivenessVerified bool            `json:"effectiveness_verified"`
	EffectivenessEvidence string          `json:"effectiveness_evidence"`
	Status                DeviationStatus `json:"status"`
	AssignedTo            *string         `json:"assigned_to,omitempty"`
	CreatedBy             string          `json:"created_by"`
	ClosedBy              *string         `json:"closed_by,omitempty"`
	ClosedAt              *time.Time      `json:"closed_at,omitempty"`
}

// Resolved reports whether the deviation reached Closed with verified
// effectiveness. An unresolved deviation keeps its requirement chain Failed.
func (d Deviation) Resolved() bool {
	return d.Status == DeviationClosed && d.EffectivenessVerified
}

// Open reports whether the deviation is still in an open workflow state.
func (d Deviation) Open() bool { return d.Status != DeviationClosed }

// ChangeRequest tracks a proposed change and its impact analysis.
type ChangeRequest struct {
	Base
	ProjectID            string         `json:"project_id"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	ChangeType           string         `json:"change_type"`
	Priority             ChangePriority `json:"priority"`
	Justification        string         `json:"justification"`
	ImpactAssessment     string         `json:"impact_assessment"`
	AffectedRequirements []string       `json:"affected_urs"`
	AffectedSpecs        []string       `json:"affected_fs"`
	AffectedTestCases    []string       `json:"affected_tc"`
	RevalidationRequired bool           `json:"revalidation_required"`
	RevalidationScope    string         `json:"revalidation_scope"`
	RiskAssessment       string         `json:"risk_assessment"`
	RiskLevel            RiskLevel      `json:"risk_level"`
	Status               ChangeStatus   `json:"status"`
	AIImpactSuggested    bool           `json:"ai_impact_suggested"`
	RequestedBy          string         `json:"requested_by"`
	ApprovedBy           *string        `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time     `json:"approved_at,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
}

// Terminal reports whether the change request can no longer transition.
func (c ChangeRequest) Terminal() bool {
	return c.Status == ChangeCompleted || c.Status == ChangeRejected
}

// Signature is an electronic signature bound to one entity.
type Signature struct {
	Base
	EntityType    EntityType    `json:"entity_type"`
	EntityID      string        `json:"entity_id"`
	SignatureType SignatureType `json:"signature_type"`
	Meaning       string        `json:"meaning"`
	Signer        string        `json:"signer"`
	SignerRole    Role          `json:"signer_role"`
	Reason        string        `json:"reason"`
}

// AuditAction identifies the kind of state change an audit entry documents.
type AuditAction string

// Audit actions emitted by the engine.
const (
	AuditCreate         AuditAction = "CREATE"
	AuditUpdate         AuditAction = "UPDATE"
	AuditUpdateStatus   AuditAction = "UPDATE_STATUS"
	AuditUpdateRisk     AuditAction = "UPDATE_RISK"
	AuditSubmitReview   AuditAction = "SUBMIT_REVIEW"
	AuditApprove        AuditAction = "APPROVE"
	AuditObsolete       AuditAction = "OBSOLETE"
	AuditExecute        AuditAction = "EXECUTE"
	AuditAttachEvidence AuditAction = "ATTACH_EVIDENCE"
	AuditInvestigate    AuditAction = "INVESTIGATE"
	AuditAssignCAPA     AuditAction = "ASSIGN_CAPA"
	AuditVerifyCAPA     AuditAction = "VERIFY_CAPA"
	AuditClose          AuditAction = "CLOSE"
	AuditAnalyze        AuditAction = "ANALYZE"
	AuditImplement      AuditAction = "IMPLEMENT"
	AuditComplete       AuditAction = "COMPLETE"
	AuditReject         AuditAction = "REJECT"
	AuditSign           AuditAction = "SIGN"
	AuditSuggest        AuditAction = "AI_SUGGEST"
)

// AuditEntry is an append-only record of one state-changing operation. It is
// immutable once written; every mutation commits atomically with exactly one
// audit entry.
type AuditEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     string      `json:"user"`
	Role      Role        `json:"role"`
	Action    AuditAction `json:"action"`
	Entity    EntityType  `json:"entity"`
	EntityID  string      `json:"entity_id"`
	OldValue  *string     `json:"old_value,omitempty"`
	NewValue  *string     `json:"new_value,omitempty"`
	Details   string      `json:"details"`
	Reason    string      `json:"reason"`
}

// AuditFilter narrows an audit trail query. Zero values match everything;
// Limit <= 0 means no limit.
type AuditFilter struct {
	Entity   EntityType
	EntityID string
	Actor    string
	Action   AuditAction
	Limit    int
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

// Change actions captured for rule evaluation. Records are never deleted in
// this model; obsolescence and closure are status values.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// RuleSeverity captures rule outcomes.
type RuleSeverity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock RuleSeverity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn RuleSeverity = "warn"
	SeverityLog  RuleSeverity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity RuleSeverity
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
