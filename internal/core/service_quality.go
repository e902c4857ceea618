package core

import (
	"context"
	"fmt"

	"vmscore/pkg/domain"
)

// CAPAPlan carries the corrective and preventive actions assigned during the
// deviation workflow.
type CAPAPlan struct {
	Corrective            string
	Preventive            string
	DueDate               string
	AssignedTo            string
	EffectivenessCriteria string
}

// CreateDeviation opens a deviation, optionally linked to the test execution
// that surfaced it. The linked execution gains a back reference in the same
// transaction.
func (s *Service) CreateDeviation(ctx context.Context, actor Actor, dev domain.Deviation) (domain.Deviation, error) {
	switch dev.Severity {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical:
	default:
		return domain.Deviation{}, domain.PreconditionError{Entity: domain.EntityDeviation, ID: "", Reason: fmt.Sprintf("unknown severity %q", dev.Severity)}
	}
	var created domain.Deviation
	err := s.run(ctx, "create_deviation", func(tx Transaction) error {
		snap := tx.Snapshot()
		if _, ok := snap.FindProject(dev.ProjectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: dev.ProjectID}
		}
		if dev.TestExecutionID != nil {
			if _, ok := snap.FindTestExecution(*dev.TestExecutionID); !ok {
				return domain.NotFoundError{Entity: domain.EntityTestExecution, ID: *dev.TestExecutionID}
			}
		}
		dev.Status = domain.DeviationOpen
		dev.CreatedBy = actor.Identity
		dev.ClosedBy = nil
		dev.ClosedAt = nil
		var err error
		created, err = tx.CreateDeviation(dev)
		if err != nil {
			return err
		}
		if created.TestExecutionID != nil {
			devID := created.ID
			if _, err := tx.UpdateTestExecution(*created.TestExecutionID, func(e *domain.TestExecution) error {
				e.DeviationID = &devID
				return nil
			}); err != nil {
				return err
			}
		}
		return audit(tx, "create_deviation", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityDeviation,
			EntityID: created.ID,
			Details:  fmt.Sprintf("Opened %s deviation %q", created.Severity, created.Title),
		})
	})
	return created, err
}

// InvestigateDeviation moves an Open deviation to Investigating with the
// investigation summary. The CAPA chain is strictly ordered; no state is
// skipped.
func (s *Service) InvestigateDeviation(ctx context.Context, actor Actor, id, summary string) (domain.Deviation, error) {
	return s.advanceDeviation(ctx, actor, id, "investigate_deviation", domain.DeviationOpen, domain.DeviationInvestigating, domain.AuditInvestigate, "Started deviation investigation", func(d *domain.Deviation) {
		d.InvestigationSummary = summary
	})
}

// AssignCAPA moves an Investigating deviation to CAPA Assigned with the
// corrective and preventive action plan.
func (s *Service) AssignCAPA(ctx context.Context, actor Actor, id string, plan CAPAPlan) (domain.Deviation, error) {
	return s.advanceDeviation(ctx, actor, id, "assign_capa", domain.DeviationInvestigating, domain.DeviationCAPAAssigned, domain.AuditAssignCAPA, "Assigned CAPA plan", func(d *domain.Deviation) {
		d.CAPACorrective = plan.Corrective
		d.CAPAPreventive = plan.Preventive
		if plan.DueDate != "" {
			d.CAPADueDate = strPtr(plan.DueDate)
		}
		if plan.AssignedTo != "" {
			d.AssignedTo = strPtr(plan.AssignedTo)
		}
		d.EffectivenessCriteria = plan.EffectivenessCriteria
	})
}

// VerifyCAPA moves a CAPA Assigned deviation to CAPA Verified, recording the
// effectiveness evidence.
func (s *Service) VerifyCAPA(ctx context.Context, actor Actor, id, evidence string) (domain.Deviation, error) {
	return s.advanceDeviation(ctx, actor, id, "verify_capa", domain.DeviationCAPAAssigned, domain.DeviationCAPAVerified, domain.AuditVerifyCAPA, "Verified CAPA effectiveness", func(d *domain.Deviation) {
		d.EffectivenessVerified = true
		d.EffectivenessEvidence = evidence
	})
}

// CloseDeviation closes a deviation. Closure normally follows CAPA Verified;
// a CAPA Assigned deviation may close directly when effectiveness evidence is
// supplied with the closure, which performs the verification step.
func (s *Service) CloseDeviation(ctx context.Context, actor Actor, id, evidence string) (domain.Deviation, error) {
	if !actor.Role.CanApprove() {
		return domain.Deviation{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "close deviation"}
	}
	var updated domain.Deviation
	err := s.run(ctx, "close_deviation", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindDeviation(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityDeviation, ID: id}
		}
		switch {
		case current.Status == domain.DeviationCAPAVerified:
		case current.Status == domain.DeviationCAPAAssigned && evidence != "":
		default:
			return domain.InvalidStateError{Entity: domain.EntityDeviation, ID: id, From: string(current.Status), To: string(domain.DeviationClosed)}
		}
		now := s.nowFn()
		var err error
		updated, err = tx.UpdateDeviation(id, func(d *domain.Deviation) error {
			if evidence != "" {
				d.EffectivenessVerified = true
				d.EffectivenessEvidence = evidence
			}
			d.Status = domain.DeviationClosed
			d.ClosedBy = strPtr(actor.Identity)
			d.ClosedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "close_deviation", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditClose,
			Entity:   domain.EntityDeviation,
			EntityID: id,
			OldValue: strPtr(string(current.Status)),
			NewValue: strPtr(string(domain.DeviationClosed)),
			Details:  "Closed deviation",
		})
	})
	return updated, err
}

func (s *Service) advanceDeviation(ctx context.Context, actor Actor, id, op string, from, to domain.DeviationStatus, action domain.AuditAction, details string, apply func(*domain.Deviation)) (domain.Deviation, error) {
	var updated domain.Deviation
	err := s.run(ctx, op, func(tx Transaction) error {
		current, ok := tx.Snapshot().FindDeviation(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityDeviation, ID: id}
		}
		if current.Status != from {
			return domain.InvalidStateError{Entity: domain.EntityDeviation, ID: id, From: string(current.Status), To: string(to)}
		}
		var err error
		updated, err = tx.UpdateDeviation(id, func(d *domain.Deviation) error {
			apply(d)
			d.Status = to
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, op, domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   action,
			Entity:   domain.EntityDeviation,
			EntityID: id,
			OldValue: strPtr(string(from)),
			NewValue: strPtr(string(to)),
			Details:  details,
		})
	})
	return updated, err
}

// ChangeImpact carries the findings of a change request impact analysis.
type ChangeImpact struct {
	Assessment           string
	AffectedRequirements []string
	AffectedSpecs        []string
	AffectedTestCases    []string
	RevalidationRequired bool
	RevalidationScope    string
	RiskAssessment       string
	RiskLevel            domain.RiskLevel
}

// CreateChange opens a change request in Requested.
func (s *Service) CreateChange(ctx context.Context, actor Actor, change domain.ChangeRequest) (domain.ChangeRequest, error) {
	var created domain.ChangeRequest
	err := s.run(ctx, "create_change", func(tx Transaction) error {
		if _, ok := tx.Snapshot().FindProject(change.ProjectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: change.ProjectID}
		}
		change.Status = domain.ChangeRequested
		if change.Priority == "" {
			change.Priority = domain.PriorityMedium
		}
		change.RequestedBy = actor.Identity
		change.ApprovedBy = nil
		change.ApprovedAt = nil
		change.CompletedAt = nil
		var err error
		created, err = tx.CreateChangeRequest(change)
		if err != nil {
			return err
		}
		return audit(tx, "create_change", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityChangeRequest,
			EntityID: created.ID,
			Details:  fmt.Sprintf("Requested change %q (%s priority)", created.Title, created.Priority),
		})
	})
	return created, err
}

// AnalyzeChange records the impact analysis and moves the request from
// Requested to Impact Analysis.
func (s *Service) AnalyzeChange(ctx context.Context, actor Actor, id string, impact ChangeImpact) (domain.ChangeRequest, error) {
	return s.advanceChange(ctx, actor, id, "analyze_change", domain.ChangeRequested, domain.ChangeImpactAnalysis, domain.AuditAnalyze, "Recorded impact analysis", func(c *domain.ChangeRequest) {
		c.ImpactAssessment = impact.Assessment
		c.AffectedRequirements = impact.AffectedRequirements
		c.AffectedSpecs = impact.AffectedSpecs
		c.AffectedTestCases = impact.AffectedTestCases
		c.RevalidationRequired = impact.RevalidationRequired
		c.RevalidationScope = impact.RevalidationScope
		c.RiskAssessment = impact.RiskAssessment
		if impact.RiskLevel != "" {
			c.RiskLevel = impact.RiskLevel
		}
	})
}

// ApproveChange approves an analyzed change request. The requester cannot
// approve their own change.
func (s *Service) ApproveChange(ctx context.Context, actor Actor, id string) (domain.ChangeRequest, error) {
	if !actor.Role.CanApprove() {
		return domain.ChangeRequest{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "approve change request"}
	}
	var updated domain.ChangeRequest
	err := s.run(ctx, "approve_change", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindChangeRequest(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityChangeRequest, ID: id}
		}
		if current.RequestedBy == actor.Identity {
			return domain.SelfApprovalError{Entity: domain.EntityChangeRequest, ID: id, Actor: actor.Identity}
		}
		if current.Status != domain.ChangeImpactAnalysis {
			return domain.InvalidStateError{Entity: domain.EntityChangeRequest, ID: id, From: string(current.Status), To: string(domain.ChangeApproved)}
		}
		now := s.nowFn()
		var err error
		updated, err = tx.UpdateChangeRequest(id, func(c *domain.ChangeRequest) error {
			c.Status = domain.ChangeApproved
			c.ApprovedBy = strPtr(actor.Identity)
			c.ApprovedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "approve_change", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditApprove,
			Entity:   domain.EntityChangeRequest,
			EntityID: id,
			OldValue: strPtr(string(domain.ChangeImpactAnalysis)),
			NewValue: strPtr(string(domain.ChangeApproved)),
			Details:  fmt.Sprintf("Approved change request %q", current.Title),
		})
	})
	return updated, err
}

// StartChangeImplementation moves an approved change to Implementing.
func (s *Service) StartChangeImplementation(ctx context.Context, actor Actor, id string) (domain.ChangeRequest, error) {
	return s.advanceChange(ctx, actor, id, "start_change_implementation", domain.ChangeApproved, domain.ChangeImplementing, domain.AuditImplement, "Started change implementation", nil)
}

// CompleteChange moves an implementing change to Completed.
func (s *Service) CompleteChange(ctx context.Context, actor Actor, id string) (domain.ChangeRequest, error) {
	now := s.nowFn()
	return s.advanceChange(ctx, actor, id, "complete_change", domain.ChangeImplementing, domain.ChangeCompleted, domain.AuditComplete, "Completed change", func(c *domain.ChangeRequest) {
		c.CompletedAt = &now
	})
}

// RejectChange rejects a change request from any non-terminal state.
func (s *Service) RejectChange(ctx context.Context, actor Actor, id, reason string) (domain.ChangeRequest, error) {
	var updated domain.ChangeRequest
	err := s.run(ctx, "reject_change", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindChangeRequest(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityChangeRequest, ID: id}
		}
		if current.Terminal() {
			return domain.InvalidStateError{Entity: domain.EntityChangeRequest, ID: id, From: string(current.Status), To: string(domain.ChangeRejected)}
		}
		var err error
		updated, err = tx.UpdateChangeRequest(id, func(c *domain.ChangeRequest) error {
			c.Status = domain.ChangeRejected
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "reject_change", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditReject,
			Entity:   domain.EntityChangeRequest,
			EntityID: id,
			OldValue: strPtr(string(current.Status)),
			NewValue: strPtr(string(domain.ChangeRejected)),
			Details:  "Rejected change request",
			Reason:   reason,
		})
	})
	return updated, err
}

func (s *Service) advanceChange(ctx context.Context, actor Actor, id, op string, from, to domain.ChangeStatus, action domain.AuditAction, details string, apply func(*domain.ChangeRequest)) (domain.ChangeRequest, error) {
	var updated domain.ChangeRequest
	err := s.run(ctx, op, func(tx Transaction) error {
		current, ok := tx.Snapshot().FindChangeRequest(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityChangeRequest, ID: id}
		}
		if current.Status != from {
			return domain.InvalidStateError{Entity: domain.EntityChangeRequest, ID: id, From: string(current.Status), To: string(to)}
		}
		var err error
		updated, err = tx.UpdateChangeRequest(id, func(c *domain.ChangeRequest) error {
			if apply != nil {
				apply(c)
			}
			c.Status = to
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, op, domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   action,
			Entity:   domain.EntityChangeRequest,
			EntityID: id,
			OldValue: strPtr(string(from)),
			NewValue: strPtr(string(to)),
			Details:  details,
		})
	})
	return updated, err
}

// Sign binds an electronic signature to an existing entity.
func (s *Service) Sign(ctx context.Context, actor Actor, entity domain.EntityType, entityID string, sigType domain.SignatureType, meaning, reason string) (domain.Signature, error) {
	var created domain.Signature
	err := s.run(ctx, "sign", func(tx Transaction) error {
		if !entityExists(tx.Snapshot(), entity, entityID) {
			return domain.NotFoundError{Entity: entity, ID: entityID}
		}
		var err error
		created, err = tx.CreateSignature(domain.Signature{
			EntityType:    entity,
			EntityID:      entityID,
			SignatureType: sigType,
			Meaning:       meaning,
			Signer:        actor.Identity,
			SignerRole:    actor.Role,
			Reason:        reason,
		})
		if err != nil {
			return err
		}
		if entity == domain.EntityTestExecution && sigType == domain.SignatureExecution {
			sigID := created.ID
			if _, err := tx.UpdateTestExecution(entityID, func(e *domain.TestExecution) error {
				e.SignatureID = &sigID
				return nil
			}); err != nil {
				return err
			}
		}
		return audit(tx, "sign", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditSign,
			Entity:   entity,
			EntityID: entityID,
			Details:  fmt.Sprintf("%s signature applied: %s", created.SignatureType, meaning),
			Reason:   reason,
		})
	})
	return created, err
}

func entityExists(v TransactionView, entity domain.EntityType, id string) bool {
	switch entity {
	case domain.EntityProject:
		_, ok := v.FindProject(id)
		return ok
	case domain.EntityBoundary:
		_, ok := v.FindBoundary(id)
		return ok
	case domain.EntityRequirement:
		_, ok := v.FindRequirement(id)
		return ok
	case domain.EntityFunctionalSpec:
		_, ok := v.FindFunctionalSpec(id)
		return ok
	case domain.EntityDesignSpec:
		_, ok := v.FindDesignSpec(id)
		return ok
	case domain.EntityTestCase:
		_, ok := v.FindTestCase(id)
		return ok
	case domain.EntityTestExecution:
		_, ok := v.FindTestExecution(id)
		return ok
	case domain.EntityDeviation:
		_, ok := v.FindDeviation(id)
		return ok
	case domain.EntityChangeRequest:
		_, ok := v.FindChangeRequest(id)
		return ok
	case domain.EntitySignature:
		_, ok := v.FindSignature(id)
		return ok
	default:
		return false
	}
}
