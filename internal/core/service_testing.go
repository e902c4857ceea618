package core

import (
	"context"
	"fmt"
	"io"
	"path"

	"vmscore/internal/blob"
	"vmscore/pkg/domain"
)

// CreateTestCase records a test case against an existing functional spec.
// The requirement link is always derived from the spec so the chain cannot
// be miswired.
func (s *Service) CreateTestCase(ctx context.Context, actor Actor, tc domain.TestCase) (domain.TestCase, error) {
	var created domain.TestCase
	err := s.run(ctx, "create_test_case", func(tx Transaction) error {
		fs, ok := tx.Snapshot().FindFunctionalSpec(tc.FunctionalSpecID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityFunctionalSpec, ID: tc.FunctionalSpecID}
		}
		tc.RequirementID = fs.RequirementID
		tc.ProjectID = fs.ProjectID
		if tc.TestType == "" {
			tc.TestType = "Functional"
		}
		if tc.Priority == "" {
			tc.Priority = "Medium"
		}
		tc.CreatedBy = actor.Identity
		var err error
		created, err = tx.CreateTestCase(tc)
		if err != nil {
			return err
		}
		return audit(tx, "create_test_case", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityTestCase,
			EntityID: created.ID,
			Details:  fmt.Sprintf("Created %s test case %q for functional spec %s", created.TestType, created.Title, fs.ID),
		})
	})
	return created, err
}

// RecordExecution records one run of a test case. Execution requires the
// execution capability; executions are immutable once recorded, a re-run is
// a new execution with the next cycle number.
func (s *Service) RecordExecution(ctx context.Context, actor Actor, exec domain.TestExecution) (domain.TestExecution, error) {
	if !actor.Role.CanExecuteTests() {
		return domain.TestExecution{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "record test execution"}
	}
	switch exec.Result {
	case domain.ResultNotExecuted, domain.ResultPass, domain.ResultFail, domain.ResultBlocked:
	default:
		return domain.TestExecution{}, domain.PreconditionError{Entity: domain.EntityTestExecution, ID: exec.TestCaseID, Reason: fmt.Sprintf("unknown test result %q", exec.Result)}
	}
	var created domain.TestExecution
	err := s.run(ctx, "record_execution", func(tx Transaction) error {
		snap := tx.Snapshot()
		tc, ok := snap.FindTestCase(exec.TestCaseID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTestCase, ID: exec.TestCaseID}
		}
		exec.ProjectID = tc.ProjectID
		exec.Cycle = len(snap.ListTestExecutionsByTestCase(tc.ID)) + 1
		exec.Executor = actor.Identity
		if exec.ExecutedAt.IsZero() {
			exec.ExecutedAt = s.nowFn()
		}
		exec.DeviationID = nil
		exec.SignatureID = nil
		var err error
		created, err = tx.CreateTestExecution(exec)
		if err != nil {
			return err
		}
		return audit(tx, "record_execution", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditExecute,
			Entity:   domain.EntityTestExecution,
			EntityID: created.ID,
			NewValue: strPtr(string(created.Result)),
			Details:  fmt.Sprintf("Executed test case %s cycle %d: %s", tc.ID, created.Cycle, created.Result),
		})
	})
	return created, err
}

// AttachEvidence stores an evidence object and appends its key to the
// execution's evidence references. The blob write happens before the
// transaction; the object is removed again if the reference cannot commit.
func (s *Service) AttachEvidence(ctx context.Context, actor Actor, executionID, filename string, contentType string, r io.Reader) (domain.TestExecution, blob.Info, error) {
	if s.evidence == nil {
		return domain.TestExecution{}, blob.Info{}, fmt.Errorf("no evidence store configured")
	}
	if err := s.store.View(ctx, func(v TransactionView) error {
		if _, ok := v.FindTestExecution(executionID); !ok {
			return domain.NotFoundError{Entity: domain.EntityTestExecution, ID: executionID}
		}
		return nil
	}); err != nil {
		return domain.TestExecution{}, blob.Info{}, err
	}

	key := path.Join("executions", executionID, filename)
	info, err := s.evidence.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"execution_id": executionID, "uploaded_by": actor.Identity},
	})
	if err != nil {
		return domain.TestExecution{}, blob.Info{}, fmt.Errorf("store evidence: %w", err)
	}

	var updated domain.TestExecution
	err = s.run(ctx, "attach_evidence", func(tx Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateTestExecution(executionID, func(e *domain.TestExecution) error {
			e.EvidenceRefs = append(e.EvidenceRefs, info.Key)
			return nil
		})
		if txErr != nil {
			return txErr
		}
		return audit(tx, "attach_evidence", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditAttachEvidence,
			Entity:   domain.EntityTestExecution,
			EntityID: executionID,
			NewValue: strPtr(info.Key),
			Details:  fmt.Sprintf("Attached evidence %s (%d bytes)", info.Key, info.Size),
		})
	})
	if err != nil {
		if _, delErr := s.evidence.Delete(ctx, info.Key); delErr != nil {
			return domain.TestExecution{}, blob.Info{}, fmt.Errorf("%w (orphaned evidence %s: %v)", err, info.Key, delErr)
		}
		return domain.TestExecution{}, blob.Info{}, err
	}
	return updated, info, nil
}

// EvidenceURL returns a time-limited download URL for an evidence object.
func (s *Service) EvidenceURL(ctx context.Context, key string) (string, error) {
	if s.evidence == nil {
		return "", fmt.Errorf("no evidence store configured")
	}
	return s.evidence.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET"})
}
