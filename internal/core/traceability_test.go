package core

import (
	"context"
	"testing"

	"vmscore/pkg/domain"
)

func matrixFor(t *testing.T, svc *Service, projectID string) TraceabilityMatrix {
	t.Helper()
	matrix, err := svc.TraceabilityMatrix(context.Background(), projectID)
	if err != nil {
		t.Fatalf("traceability matrix: %v", err)
	}
	return matrix
}

func singleRow(t *testing.T, matrix TraceabilityMatrix) TraceabilityRow {
	t.Helper()
	if len(matrix.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(matrix.Rows))
	}
	return matrix.Rows[0]
}

func TestChainNotStartedWithoutFunctionalSpec(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	seedApprovedRequirement(t, svc, project.ID)

	row := singleRow(t, matrixFor(t, svc, project.ID))
	if row.Chain != domain.ChainNotStarted {
		t.Fatalf("chain = %s, want Not Started", row.Chain)
	}
	if row.FunctionalSpecID != "" || row.TestCaseID != "" {
		t.Fatalf("downstream fields not empty: %+v", row)
	}
}

func TestChainNotStartedWhenSpecHasNoTestCase(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, req.ID)

	row := singleRow(t, matrixFor(t, svc, project.ID))
	if row.FunctionalSpecID != spec.ID {
		t.Fatalf("fs id = %s, want %s", row.FunctionalSpecID, spec.ID)
	}
	if row.Chain != domain.ChainNotStarted {
		t.Fatalf("chain with spec but no test case = %s, want Not Started", row.Chain)
	}
}

func TestRowPerSpecAndTestCaseCombination(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	first := seedApprovedSpec(t, svc, req.ID)
	ctx := context.Background()

	second, err := svc.CreateFunctionalSpec(ctx, lead, domain.FunctionalSpec{
		RequirementID: req.ID,
		Title:         "Reporting engine",
	})
	if err != nil {
		t.Fatalf("create second spec: %v", err)
	}
	for _, title := range []string{"tc-a", "tc-b"} {
		if _, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: first.ID, Title: title}); err != nil {
			t.Fatalf("create test case %s: %v", title, err)
		}
	}

	matrix := matrixFor(t, svc, project.ID)
	if len(matrix.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (two cases under one spec, one empty spec)", len(matrix.Rows))
	}
	firstRows, secondRows := 0, 0
	for _, row := range matrix.Rows {
		if row.RequirementID != req.ID {
			t.Fatalf("row for unexpected requirement %s", row.RequirementID)
		}
		switch row.FunctionalSpecID {
		case first.ID:
			firstRows++
			if row.TestCaseID == "" {
				t.Fatal("spec with test cases produced a caseless row")
			}
		case second.ID:
			secondRows++
			if row.Chain != domain.ChainNotStarted {
				t.Fatalf("caseless spec chain = %s, want Not Started", row.Chain)
			}
		default:
			t.Fatalf("row for unexpected spec %s", row.FunctionalSpecID)
		}
	}
	if firstRows != 2 || secondRows != 1 {
		t.Fatalf("rows per spec = %d/%d, want 2/1", firstRows, secondRows)
	}
	if matrix.TotalRequirements != 1 {
		t.Fatalf("total requirements = %d, want 1", matrix.TotalRequirements)
	}
}

func TestChainCompleteWithPassingLatestExecution(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, req.ID)
	ctx := context.Background()

	tc, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: spec.ID, Title: "tc"})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	// Fail first, then pass; the latest execution rules the chain.
	if _, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultFail}); err != nil {
		t.Fatalf("fail execution: %v", err)
	}
	row := singleRow(t, matrixFor(t, svc, project.ID))
	if row.Chain != domain.ChainFailed {
		t.Fatalf("chain after failure = %s, want Failed", row.Chain)
	}

	if _, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass}); err != nil {
		t.Fatalf("pass execution: %v", err)
	}
	matrix := matrixFor(t, svc, project.ID)
	row = singleRow(t, matrix)
	if row.Chain != domain.ChainComplete {
		t.Fatalf("chain after re-run = %s, want Complete", row.Chain)
	}
	if row.LatestResult != domain.ResultPass || row.LatestCycle != 2 {
		t.Fatalf("latest execution = %s cycle %d, want Pass cycle 2", row.LatestResult, row.LatestCycle)
	}
	if matrix.CoveragePercent != 100 {
		t.Fatalf("coverage = %v, want 100", matrix.CoveragePercent)
	}
}

func TestResolvedFailureNeedsPassingRerunForComplete(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, req.ID)
	ctx := context.Background()

	tc, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: spec.ID, Title: "tc"})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	exec, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultFail})
	if err != nil {
		t.Fatalf("fail execution: %v", err)
	}
	execID := exec.ID
	dev, err := svc.CreateDeviation(ctx, executor, domain.Deviation{
		ProjectID:       project.ID,
		TestExecutionID: &execID,
		Severity:        domain.RiskLow,
		Title:           "Assertion off by one",
	})
	if err != nil {
		t.Fatalf("create deviation: %v", err)
	}

	row := singleRow(t, matrixFor(t, svc, project.ID))
	if row.Chain != domain.ChainFailed {
		t.Fatalf("chain with open deviation = %s, want Failed", row.Chain)
	}

	if _, err := svc.InvestigateDeviation(ctx, qa, dev.ID, "test data drift"); err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if _, err := svc.AssignCAPA(ctx, qa, dev.ID, CAPAPlan{Corrective: "refresh fixtures", DueDate: "2025-07-01"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.VerifyCAPA(ctx, qa, dev.ID, "fixtures regenerated, rerun green"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := svc.CloseDeviation(ctx, qa, dev.ID, ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Closure lifts the failure but the latest run is still a Fail; the row
	// stays Partial until a passing re-execution exists.
	row = singleRow(t, matrixFor(t, svc, project.ID))
	if row.Chain != domain.ChainPartial {
		t.Fatalf("chain with resolved deviation = %s, want Partial", row.Chain)
	}

	if _, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass}); err != nil {
		t.Fatalf("pass execution: %v", err)
	}
	row = singleRow(t, matrixFor(t, svc, project.ID))
	if row.Chain != domain.ChainComplete {
		t.Fatalf("chain after passing re-run = %s, want Complete", row.Chain)
	}
}

func TestCoverageCountsDistinctRequirements(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	// First requirement completes its chain.
	first := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, first.ID)
	tc, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: spec.ID, Title: "tc"})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	if _, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass}); err != nil {
		t.Fatalf("execution: %v", err)
	}

	// Second requirement has no downstream artifacts.
	if _, err := svc.CreateRequirement(ctx, lead, domain.Requirement{ProjectID: project.ID, Title: "untouched"}); err != nil {
		t.Fatalf("create second requirement: %v", err)
	}

	matrix := matrixFor(t, svc, project.ID)
	if matrix.TotalRequirements != 2 || matrix.CompleteRequirements != 1 {
		t.Fatalf("requirements = %d complete = %d, want 2/1", matrix.TotalRequirements, matrix.CompleteRequirements)
	}
	if matrix.CoveragePercent != 50 {
		t.Fatalf("coverage = %v, want 50", matrix.CoveragePercent)
	}
}

func TestCoverageDeduplicatesRowsByRequirement(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	req := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, req.ID)
	ctx := context.Background()

	// Two cases under one requirement; both pass. One requirement, one unit
	// of coverage.
	for _, title := range []string{"tc-a", "tc-b"} {
		tc, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: spec.ID, Title: title})
		if err != nil {
			t.Fatalf("create test case %s: %v", title, err)
		}
		if _, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass}); err != nil {
			t.Fatalf("execution: %v", err)
		}
	}
	if _, err := svc.CreateRequirement(ctx, lead, domain.Requirement{ProjectID: project.ID, Title: "untouched"}); err != nil {
		t.Fatalf("create second requirement: %v", err)
	}

	matrix := matrixFor(t, svc, project.ID)
	if len(matrix.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(matrix.Rows))
	}
	if matrix.CompleteRequirements != 1 || matrix.CoveragePercent != 50 {
		t.Fatalf("complete = %d coverage = %v, want 1/50", matrix.CompleteRequirements, matrix.CoveragePercent)
	}
}

func TestCoverageRoundsToWholePercent(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	first := seedApprovedRequirement(t, svc, project.ID)
	spec := seedApprovedSpec(t, svc, first.ID)
	tc, err := svc.CreateTestCase(ctx, lead, domain.TestCase{FunctionalSpecID: spec.ID, Title: "tc"})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	if _, err := svc.RecordExecution(ctx, executor, domain.TestExecution{TestCaseID: tc.ID, Result: domain.ResultPass}); err != nil {
		t.Fatalf("execution: %v", err)
	}
	for _, title := range []string{"second", "third"} {
		if _, err := svc.CreateRequirement(ctx, lead, domain.Requirement{ProjectID: project.ID, Title: title}); err != nil {
			t.Fatalf("create requirement %s: %v", title, err)
		}
	}

	// 1 of 3 covered: 33.33... rounds to 33.
	matrix := matrixFor(t, svc, project.ID)
	if matrix.CoveragePercent != 33 {
		t.Fatalf("coverage = %v, want 33", matrix.CoveragePercent)
	}
}

func TestObsoleteRequirementsExcludedFromMatrix(t *testing.T) {
	svc, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	req, err := svc.CreateRequirement(ctx, lead, domain.Requirement{ProjectID: project.ID, Title: "retired"})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	if _, err := svc.MarkRequirementObsolete(ctx, lead, req.ID, "superseded"); err != nil {
		t.Fatalf("obsolete: %v", err)
	}
	matrix := matrixFor(t, svc, project.ID)
	if matrix.TotalRequirements != 0 || len(matrix.Rows) != 0 {
		t.Fatalf("requirements = %d rows = %d, want 0/0", matrix.TotalRequirements, len(matrix.Rows))
	}
}
