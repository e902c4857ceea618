package core

import (
	"context"
	"fmt"

	"vmscore/pkg/domain"
)

// CreateRequirement records a new URS entry in Draft. The overall risk is
// always derived from the three dimensions, never accepted from the caller.
func (s *Service) CreateRequirement(ctx context.Context, actor Actor, req domain.Requirement) (domain.Requirement, error) {
	var created domain.Requirement
	err := s.run(ctx, "create_requirement", func(tx Transaction) error {
		if _, ok := tx.Snapshot().FindProject(req.ProjectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: req.ProjectID}
		}
		if req.PatientSafetyRisk == "" {
			req.PatientSafetyRisk = domain.RiskLow
		}
		if req.ProductQualityRisk == "" {
			req.ProductQualityRisk = domain.RiskLow
		}
		if req.DataIntegrityRisk == "" {
			req.DataIntegrityRisk = domain.RiskLow
		}
		req.OverallRisk = domain.MaxRisk(req.PatientSafetyRisk, req.ProductQualityRisk, req.DataIntegrityRisk)
		req.Status = domain.RequirementDraft
		if req.Version == "" {
			req.Version = "1.0"
		}
		req.CreatedBy = actor.Identity
		req.ApprovedBy = nil
		req.ApprovedAt = nil
		var err error
		created, err = tx.CreateRequirement(req)
		if err != nil {
			return err
		}
		return audit(tx, "create_requirement", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityRequirement,
			EntityID: created.ID,
			Details:  fmt.Sprintf("Created requirement %q (overall risk %s)", created.Title, created.OverallRisk),
		})
	})
	return created, err
}

// UpdateRequirement applies a content mutation to a requirement that is still
// mutable. Approved and Obsolete requirements reject content changes.
func (s *Service) UpdateRequirement(ctx context.Context, actor Actor, id string, mutate func(*domain.Requirement) error) (domain.Requirement, error) {
	var updated domain.Requirement
	err := s.run(ctx, "update_requirement", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		if !current.Mutable() {
			return domain.PreconditionError{Entity: domain.EntityRequirement, ID: id, Reason: fmt.Sprintf("requirement in status %s is immutable", current.Status)}
		}
		var err error
		updated, err = tx.UpdateRequirement(id, func(r *domain.Requirement) error {
			if err := mutate(r); err != nil {
				return err
			}
			// Callers cannot smuggle in status or approval changes here.
			r.Status = current.Status
			r.ApprovedBy = current.ApprovedBy
			r.ApprovedAt = current.ApprovedAt
			r.OverallRisk = domain.MaxRisk(r.PatientSafetyRisk, r.ProductQualityRisk, r.DataIntegrityRisk)
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "update_requirement", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditUpdate,
			Entity:   domain.EntityRequirement,
			EntityID: id,
			Details:  "Updated requirement content",
		})
	})
	return updated, err
}

// UpdateRequirementRisk sets the three risk dimensions and recomputes the
// overall risk. Only mutable requirements accept risk changes.
func (s *Service) UpdateRequirementRisk(ctx context.Context, actor Actor, id string, patient, quality, integrity domain.RiskLevel) (domain.Requirement, error) {
	var updated domain.Requirement
	err := s.run(ctx, "update_requirement_risk", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		if !current.Mutable() {
			return domain.PreconditionError{Entity: domain.EntityRequirement, ID: id, Reason: fmt.Sprintf("requirement in status %s is immutable", current.Status)}
		}
		var err error
		updated, err = tx.UpdateRequirement(id, func(r *domain.Requirement) error {
			r.PatientSafetyRisk = patient
			r.ProductQualityRisk = quality
			r.DataIntegrityRisk = integrity
			r.OverallRisk = domain.MaxRisk(patient, quality, integrity)
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "update_requirement_risk", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditUpdateRisk,
			Entity:   domain.EntityRequirement,
			EntityID: id,
			OldValue: strPtr(string(current.OverallRisk)),
			NewValue: strPtr(string(updated.OverallRisk)),
			Details:  fmt.Sprintf("Risk assessment updated: patient=%s quality=%s integrity=%s", patient, quality, integrity),
		})
	})
	return updated, err
}

// SubmitRequirementForReview moves a Draft requirement to Under Review.
func (s *Service) SubmitRequirementForReview(ctx context.Context, actor Actor, id string) (domain.Requirement, error) {
	var updated domain.Requirement
	err := s.run(ctx, "submit_requirement_for_review", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		if current.Status != domain.RequirementDraft {
			return domain.InvalidStateError{Entity: domain.EntityRequirement, ID: id, From: string(current.Status), To: string(domain.RequirementUnderReview)}
		}
		var err error
		updated, err = tx.UpdateRequirement(id, func(r *domain.Requirement) error {
			r.Status = domain.RequirementUnderReview
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "submit_requirement_for_review", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditSubmitReview,
			Entity:   domain.EntityRequirement,
			EntityID: id,
			OldValue: strPtr(string(domain.RequirementDraft)),
			NewValue: strPtr(string(domain.RequirementUnderReview)),
			Details:  "Submitted requirement for review",
		})
	})
	return updated, err
}

// ApproveRequirement approves a requirement. The actor needs the approval
// capability and cannot approve their own work, regardless of role.
func (s *Service) ApproveRequirement(ctx context.Context, actor Actor, id string) (domain.Requirement, error) {
	if !actor.Role.CanApprove() {
		return domain.Requirement{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "approve requirement"}
	}
	var updated domain.Requirement
	err := s.run(ctx, "approve_requirement", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		if current.CreatedBy == actor.Identity {
			return domain.SelfApprovalError{Entity: domain.EntityRequirement, ID: id, Actor: actor.Identity}
		}
		if !current.Mutable() {
			return domain.InvalidStateError{Entity: domain.EntityRequirement, ID: id, From: string(current.Status), To: string(domain.RequirementApproved)}
		}
		now := s.nowFn()
		var err error
		updated, err = tx.UpdateRequirement(id, func(r *domain.Requirement) error {
			r.Status = domain.RequirementApproved
			r.ApprovedBy = strPtr(actor.Identity)
			r.ApprovedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "approve_requirement", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditApprove,
			Entity:   domain.EntityRequirement,
			EntityID: id,
			OldValue: strPtr(string(current.Status)),
			NewValue: strPtr(string(domain.RequirementApproved)),
			Details:  fmt.Sprintf("Approved requirement %q", current.Title),
		})
	})
	return updated, err
}

// MarkRequirementObsolete retires a requirement. Obsolete is terminal.
func (s *Service) MarkRequirementObsolete(ctx context.Context, actor Actor, id string, reason string) (domain.Requirement, error) {
	var updated domain.Requirement
	err := s.run(ctx, "mark_requirement_obsolete", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		if current.Status == domain.RequirementObsolete {
			return domain.InvalidStateError{Entity: domain.EntityRequirement, ID: id, From: string(current.Status), To: string(domain.RequirementObsolete)}
		}
		var err error
		updated, err = tx.UpdateRequirement(id, func(r *domain.Requirement) error {
			r.Status = domain.RequirementObsolete
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "mark_requirement_obsolete", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditObsolete,
			Entity:   domain.EntityRequirement,
			EntityID: id,
			OldValue: strPtr(string(current.Status)),
			NewValue: strPtr(string(domain.RequirementObsolete)),
			Details:  "Marked requirement obsolete",
			Reason:   reason,
		})
	})
	return updated, err
}
