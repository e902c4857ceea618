package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"vmscore/internal/infra/persistence/memory"
	"vmscore/pkg/domain"
)

var (
	lead     = domain.Actor{Identity: "alice", Role: domain.RoleValidationLead}
	qa       = domain.Actor{Identity: "carol", Role: domain.RoleQA}
	secondQA = domain.Actor{Identity: "dave", Role: domain.RoleQA}
	executor = domain.Actor{Identity: "erin", Role: domain.RoleExecutor}
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(DefaultRules())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var tick time.Duration
	now := func() time.Time {
		tick += time.Second
		return base.Add(tick)
	}
	store.SetNowFunc(now)
	return NewService(store, WithNowFunc(now)), store
}

func seedProject(t *testing.T, svc *Service) domain.Project {
	t.Helper()
	project, err := svc.CreateProject(context.Background(), lead, domain.Project{
		Name:        "LIMS Upgrade",
		ProjectType: domain.ProjectNewSystem,
		SystemType:  domain.SystemGxP,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

func seedApprovedRequirement(t *testing.T, svc *Service, projectID string) domain.Requirement {
	t.Helper()
	ctx := context.Background()
	req, err := svc.CreateRequirement(ctx, lead, domain.Requirement{
		ProjectID:         projectID,
		Title:             "Audit trail retention",
		Description:       "The system shall retain audit trail records for ten years.",
		PatientSafetyRisk: domain.RiskMedium,
		DataIntegrityRisk: domain.RiskHigh,
	})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	if _, err := svc.SubmitRequirementForReview(ctx, lead, req.ID); err != nil {
		t.Fatalf("submit for review: %v", err)
	}
	approved, err := svc.ApproveRequirement(ctx, qa, req.ID)
	if err != nil {
		t.Fatalf("approve requirement: %v", err)
	}
	return approved
}

func seedApprovedSpec(t *testing.T, svc *Service, requirementID string) domain.FunctionalSpec {
	t.Helper()
	ctx := context.Background()
	spec, err := svc.CreateFunctionalSpec(ctx, lead, domain.FunctionalSpec{
		RequirementID: requirementID,
		Title:         "Retention engine",
	})
	if err != nil {
		t.Fatalf("create functional spec: %v", err)
	}
	approved, err := svc.ApproveFunctionalSpec(ctx, qa, spec.ID)
	if err != nil {
		t.Fatalf("approve functional spec: %v", err)
	}
	return approved
}

func TestCreateRequirementDerivesOverallRisk(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)

	req, err := svc.CreateRequirement(context.Background(), lead, domain.Requirement{
		ProjectID:          project.ID,
		Title:              "Electronic signatures",
		PatientSafetyRisk:  domain.RiskLow,
		ProductQualityRisk: domain.RiskCritical,
		DataIntegrityRisk:  domain.RiskMedium,
		OverallRisk:        domain.RiskLow, // caller value must be ignored
	})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	if req.OverallRisk != domain.RiskCritical {
		t.Fatalf("overall risk = %s, want %s", req.OverallRisk, domain.RiskCritical)
	}
	if req.Status != domain.RequirementDraft {
		t.Fatalf("status = %s, want Draft", req.Status)
	}
}

func TestSelfApprovalDeniedRegardlessOfRole(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	req, err := svc.CreateRequirement(ctx, qa, domain.Requirement{
		ProjectID: project.ID,
		Title:     "Access control",
	})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}

	if _, err := svc.ApproveRequirement(ctx, qa, req.ID); err == nil {
		t.Fatal("author approval succeeded, want SelfApprovalError")
	} else {
		var selfErr domain.SelfApprovalError
		if !errors.As(err, &selfErr) {
			t.Fatalf("got %T (%v), want SelfApprovalError", err, err)
		}
	}

	approved, err := svc.ApproveRequirement(ctx, secondQA, req.ID)
	if err != nil {
		t.Fatalf("second QA approval: %v", err)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != secondQA.Identity {
		t.Fatalf("approved_by = %v, want %s", approved.ApprovedBy, secondQA.Identity)
	}
}

func TestApprovalRequiresCapability(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	req, err := svc.CreateRequirement(ctx, lead, domain.Requirement{ProjectID: project.ID, Title: "Backups"})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	if _, err := svc.ApproveRequirement(ctx, executor, req.ID); err == nil {
		t.Fatal("executor approval succeeded, want ForbiddenError")
	} else {
		var forbidden domain.ForbiddenError
		if !errors.As(err, &forbidden) {
			t.Fatalf("got %T (%v), want ForbiddenError", err, err)
		}
	}
}

func TestApproveAlreadyApprovedFails(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)

	if _, err := svc.ApproveRequirement(context.Background(), secondQA, req.ID); err == nil {
		t.Fatal("re-approval succeeded, want InvalidStateError")
	} else {
		var state domain.InvalidStateError
		if !errors.As(err, &state) {
			t.Fatalf("got %T (%v), want InvalidStateError", err, err)
		}
	}
}

func TestFunctionalSpecGatedOnRequirementApproval(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	req, err := svc.CreateRequirement(ctx, lead, domain.Requirement{ProjectID: project.ID, Title: "Reporting"})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	if _, err := svc.CreateFunctionalSpec(ctx, lead, domain.FunctionalSpec{RequirementID: req.ID, Title: "Report builder"}); err == nil {
		t.Fatal("spec creation against Draft requirement succeeded, want PreconditionError")
	} else {
		var pre domain.PreconditionError
		if !errors.As(err, &pre) {
			t.Fatalf("got %T (%v), want PreconditionError", err, err)
		}
	}

	if _, err := svc.SubmitRequirementForReview(ctx, lead, req.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.ApproveRequirement(ctx, qa, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	spec, err := svc.CreateFunctionalSpec(ctx, lead, domain.FunctionalSpec{RequirementID: req.ID, Title: "Report builder"})
	if err != nil {
		t.Fatalf("spec creation after approval: %v", err)
	}
	if spec.ProjectID != project.ID {
		t.Fatalf("spec project = %s, want %s", spec.ProjectID, project.ID)
	}
}

func TestDesignSpecGatedOnFunctionalSpecApproval(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	ctx := context.Background()

	spec, err := svc.CreateFunctionalSpec(ctx, lead, domain.FunctionalSpec{RequirementID: req.ID, Title: "Retention engine"})
	if err != nil {
		t.Fatalf("create spec: %v", err)
	}
	if _, err := svc.CreateDesignSpec(ctx, lead, domain.DesignSpec{FunctionalSpecID: spec.ID, Title: "Schema"}); err == nil {
		t.Fatal("design spec against Draft FS succeeded, want PreconditionError")
	}
	if _, err := svc.ApproveFunctionalSpec(ctx, qa, spec.ID); err != nil {
		t.Fatalf("approve spec: %v", err)
	}
	if _, err := svc.CreateDesignSpec(ctx, lead, domain.DesignSpec{FunctionalSpecID: spec.ID, Title: "Schema", Required: true}); err != nil {
		t.Fatalf("design spec after approval: %v", err)
	}
}

func TestApprovedRequirementContentImmutable(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)

	_, err := svc.UpdateRequirement(context.Background(), lead, req.ID, func(r *domain.Requirement) error {
		r.Description = "changed"
		return nil
	})
	var pre domain.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("got %T (%v), want PreconditionError", err, err)
	}
}

func TestRecordExecutionAssignsCycles(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, req.ID)
	ctx := context.Background()

	tc, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: spec.ID, Title: "Retention check"})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	if tc.RequirementID != req.ID {
		t.Fatalf("test case urs = %s, want %s", tc.RequirementID, req.ID)
	}

	if _, err := svc.RecordExecution(ctx, qa, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass}); err == nil {
		t.Fatal("QA execution succeeded, want ForbiddenError")
	}

	first, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultFail})
	if err != nil {
		t.Fatalf("first execution: %v", err)
	}
	second, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass})
	if err != nil {
		t.Fatalf("second execution: %v", err)
	}
	if first.Cycle != 1 || second.Cycle != 2 {
		t.Fatalf("cycles = %d, %d, want 1, 2", first.Cycle, second.Cycle)
	}
	if second.Executor != executor.Identity {
		t.Fatalf("executor = %s, want %s", second.Executor, executor.Identity)
	}
}

func TestDeviationChainStrictOrdering(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	dev, err := svc.CreateDeviation(ctx, executor, domain.Deviation{
		ProjectID: project.ID,
		Severity:  domain.RiskMedium,
		Title:     "Timeout during retention purge",
	})
	if err != nil {
		t.Fatalf("create deviation: %v", err)
	}
	if dev.Status != domain.DeviationOpen {
		t.Fatalf("status = %s, want Open", dev.Status)
	}

	// Skipping Investigating is rejected.
	if _, err := svc.AssignCAPA(ctx, qa, dev.ID, CAPAPlan{Corrective: "fix"}); err == nil {
		t.Fatal("CAPA assignment from Open succeeded, want InvalidStateError")
	}

	if _, err := svc.InvestigateDeviation(ctx, qa, dev.ID, "Purge job lacks an index"); err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if _, err := svc.AssignCAPA(ctx, qa, dev.ID, CAPAPlan{
		Corrective: "Add covering index",
		Preventive: "Load test purge jobs",
		DueDate:    "2025-07-01",
	}); err != nil {
		t.Fatalf("assign capa: %v", err)
	}
	if _, err := svc.VerifyCAPA(ctx, qa, dev.ID, "Purge completes in 2s on production data volume"); err != nil {
		t.Fatalf("verify capa: %v", err)
	}
	closed, err := svc.CloseDeviation(ctx, qa, dev.ID, "")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.Resolved() {
		t.Fatalf("deviation not resolved after close: status=%s verified=%v", closed.Status, closed.EffectivenessVerified)
	}

	// Closed is terminal.
	if _, err := svc.InvestigateDeviation(ctx, qa, dev.ID, "again"); err == nil {
		t.Fatal("investigate after close succeeded, want InvalidStateError")
	}
}

func TestCloseFromCAPAAssignedNeedsEvidence(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	dev, err := svc.CreateDeviation(ctx, executor, domain.Deviation{ProjectID: project.ID, Severity: domain.RiskLow, Title: "Doc typo"})
	if err != nil {
		t.Fatalf("create deviation: %v", err)
	}
	if _, err := svc.InvestigateDeviation(ctx, qa, dev.ID, "typo confirmed"); err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if _, err := svc.AssignCAPA(ctx, qa, dev.ID, CAPAPlan{Corrective: "Correct the SOP"}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := svc.CloseDeviation(ctx, qa, dev.ID, ""); err == nil {
		t.Fatal("close without evidence succeeded, want InvalidStateError")
	}
	closed, err := svc.CloseDeviation(ctx, qa, dev.ID, "SOP v2 published and verified")
	if err != nil {
		t.Fatalf("close with evidence: %v", err)
	}
	if !closed.EffectivenessVerified {
		t.Fatal("effectiveness not marked verified on evidence-backed close")
	}
}

func TestChangeRequestWorkflow(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	change, err := svc.CreateChange(ctx, lead, domain.ChangeRequest{ProjectID: project.ID, Title: "Add export format"})
	if err != nil {
		t.Fatalf("create change: %v", err)
	}

	// Approving before analysis is rejected.
	if _, err := svc.ApproveChange(ctx, qa, change.ID); err == nil {
		t.Fatal("approve before analysis succeeded, want InvalidStateError")
	}

	if _, err := svc.AnalyzeChange(ctx, lead, change.ID, ChangeImpact{
		Assessment:           "Touches reporting module only",
		RevalidationRequired: true,
		RevalidationScope:    "Reporting test cases",
	}); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	// The requester cannot approve their own change.
	leadQA := domain.Actor{Identity: lead.Identity, Role: domain.RoleQA}
	if _, err := svc.ApproveChange(ctx, leadQA, change.ID); err == nil {
		t.Fatal("requester approval succeeded, want SelfApprovalError")
	}

	if _, err := svc.ApproveChange(ctx, qa, change.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.StartChangeImplementation(ctx, lead, change.ID); err != nil {
		t.Fatalf("implement: %v", err)
	}
	done, err := svc.CompleteChange(ctx, lead, change.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	// Terminal states reject rejection.
	if _, err := svc.RejectChange(ctx, qa, change.ID, "late"); err == nil {
		t.Fatal("reject after completion succeeded, want InvalidStateError")
	}
}

func TestRejectChangeFromAnyNonTerminalState(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	change, err := svc.CreateChange(ctx, lead, domain.ChangeRequest{ProjectID: project.ID, Title: "Drop legacy import"})
	if err != nil {
		t.Fatalf("create change: %v", err)
	}
	rejected, err := svc.RejectChange(ctx, qa, change.ID, "superseded")
	if err != nil {
		t.Fatalf("reject from Requested: %v", err)
	}
	if rejected.Status != domain.ChangeRejected {
		t.Fatalf("status = %s, want Rejected", rejected.Status)
	}
}

func TestEveryMutationAppendsExactlyOneAuditEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	project := seedProject(t, svc)
	entries := svc.AuditTrail(domain.AuditFilter{})
	if len(entries) != 1 {
		t.Fatalf("audit entries after create = %d, want 1", len(entries))
	}
	if entries[0].Action != domain.AuditCreate || entries[0].Entity != domain.EntityProject {
		t.Fatalf("unexpected audit entry %+v", entries[0])
	}

	if _, err := svc.UpdateProjectStatus(ctx, lead, project.ID, domain.ProjectURS); err != nil {
		t.Fatalf("update status: %v", err)
	}
	entries = svc.AuditTrail(domain.AuditFilter{})
	if len(entries) != 2 {
		t.Fatalf("audit entries after status update = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Action != domain.AuditUpdateStatus {
		t.Fatalf("newest entry action = %s, want UPDATE_STATUS", entries[0].Action)
	}
	if entries[0].OldValue == nil || *entries[0].OldValue != string(domain.ProjectPlanning) {
		t.Fatalf("old value = %v, want Planning", entries[0].OldValue)
	}
}

func TestFailedMutationLeavesNoAuditEntry(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	req, err := svc.CreateRequirement(ctx, qa, domain.Requirement{ProjectID: project.ID, Title: "Self approval probe"})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	before := len(svc.AuditTrail(domain.AuditFilter{}))
	if _, err := svc.ApproveRequirement(ctx, qa, req.ID); err == nil {
		t.Fatal("self approval succeeded")
	}
	after := len(svc.AuditTrail(domain.AuditFilter{}))
	if before != after {
		t.Fatalf("audit entries changed on failed mutation: %d -> %d", before, after)
	}
}

func TestProjectStatusAdvanceRequiresRole(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)

	if _, err := svc.UpdateProjectStatus(context.Background(), executor, project.ID, domain.ProjectURS); err == nil {
		t.Fatal("executor advanced project, want ForbiddenError")
	}
}

func TestSignatureBindsToEntity(t *testing.T) {
	svc, store := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, req.ID)
	ctx := context.Background()

	tc, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: spec.ID, Title: "Signing path"})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	exec, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass})
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}

	sig, err := svc.Sign(ctx, executor, domain.EntityTestExecution, exec.ID, domain.SignatureExecution, "I performed this test", "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	stored, ok := store.GetTestExecution(exec.ID)
	if !ok {
		t.Fatal("execution missing")
	}
	if stored.SignatureID == nil || *stored.SignatureID != sig.ID {
		t.Fatalf("execution signature = %v, want %s", stored.SignatureID, sig.ID)
	}

	if _, err := svc.Sign(ctx, executor, domain.EntityRequirement, "missing", domain.SignatureReview, "review", ""); err == nil {
		t.Fatal("signature on missing entity succeeded, want NotFoundError")
	}
}
