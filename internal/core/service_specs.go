package core

import (
	"context"
	"fmt"

	"vmscore/pkg/domain"
)

// CreateFunctionalSpec records a functional spec under an approved
// requirement. Specs against unapproved requirements are rejected.
func (s *Service) CreateFunctionalSpec(ctx context.Context, actor Actor, spec domain.FunctionalSpec) (domain.FunctionalSpec, error) {
	var created domain.FunctionalSpec
	err := s.run(ctx, "create_functional_spec", func(tx Transaction) error {
		req, ok := tx.Snapshot().FindRequirement(spec.RequirementID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: spec.RequirementID}
		}
		if req.Status != domain.RequirementApproved {
			return domain.PreconditionError{
				Entity: domain.EntityRequirement,
				ID:     req.ID,
				Reason: fmt.Sprintf("functional specs require an approved requirement, got status %s", req.Status),
			}
		}
		spec.ProjectID = req.ProjectID
		spec.Status = domain.SpecDraft
		if spec.Version == "" {
			spec.Version = "1.0"
		}
		spec.CreatedBy = actor.Identity
		spec.ApprovedBy = nil
		spec.ApprovedAt = nil
		var err error
		created, err = tx.CreateFunctionalSpec(spec)
		if err != nil {
			return err
		}
		return audit(tx, "create_functional_spec", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityFunctionalSpec,
			EntityID: created.ID,
			Details:  fmt.Sprintf("Created functional spec %q for requirement %s", created.Title, req.ID),
		})
	})
	return created, err
}

// SubmitFunctionalSpecForReview moves a Draft functional spec to Under Review.
func (s *Service) SubmitFunctionalSpecForReview(ctx context.Context, actor Actor, id string) (domain.FunctionalSpec, error) {
	var updated domain.FunctionalSpec
	err := s.run(ctx, "submit_functional_spec_for_review", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindFunctionalSpec(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityFunctionalSpec, ID: id}
		}
		if current.Status != domain.SpecDraft {
			return domain.InvalidStateError{Entity: domain.EntityFunctionalSpec, ID: id, From: string(current.Status), To: string(domain.SpecUnderReview)}
		}
		var err error
		updated, err = tx.UpdateFunctionalSpec(id, func(f *domain.FunctionalSpec) error {
			f.Status = domain.SpecUnderReview
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "submit_functional_spec_for_review", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditSubmitReview,
			Entity:   domain.EntityFunctionalSpec,
			EntityID: id,
			OldValue: strPtr(string(domain.SpecDraft)),
			NewValue: strPtr(string(domain.SpecUnderReview)),
			Details:  "Submitted functional spec for review",
		})
	})
	return updated, err
}

// ApproveFunctionalSpec approves a functional spec with the same guard set as
// requirement approval.
func (s *Service) ApproveFunctionalSpec(ctx context.Context, actor Actor, id string) (domain.FunctionalSpec, error) {
	if !actor.Role.CanApprove() {
		return domain.FunctionalSpec{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "approve functional spec"}
	}
	var updated domain.FunctionalSpec
	err := s.run(ctx, "approve_functional_spec", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindFunctionalSpec(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityFunctionalSpec, ID: id}
		}
		if current.CreatedBy == actor.Identity {
			return domain.SelfApprovalError{Entity: domain.EntityFunctionalSpec, ID: id, Actor: actor.Identity}
		}
		if current.Status == domain.SpecApproved {
			return domain.InvalidStateError{Entity: domain.EntityFunctionalSpec, ID: id, From: string(current.Status), To: string(domain.SpecApproved)}
		}
		now := s.nowFn()
		var err error
		updated, err = tx.UpdateFunctionalSpec(id, func(f *domain.FunctionalSpec) error {
			f.Status = domain.SpecApproved
			f.ApprovedBy = strPtr(actor.Identity)
			f.ApprovedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "approve_functional_spec", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditApprove,
			Entity:   domain.EntityFunctionalSpec,
			EntityID: id,
			OldValue: strPtr(string(current.Status)),
			NewValue: strPtr(string(domain.SpecApproved)),
			Details:  fmt.Sprintf("Approved functional spec %q", current.Title),
		})
	})
	return updated, err
}

// CreateDesignSpec records a design spec under an approved functional spec.
// Design specs are optional in the chain; when Required is false a
// justification documents why.
func (s *Service) CreateDesignSpec(ctx context.Context, actor Actor, design domain.DesignSpec) (domain.DesignSpec, error) {
	var created domain.DesignSpec
	err := s.run(ctx, "create_design_spec", func(tx Transaction) error {
		fs, ok := tx.Snapshot().FindFunctionalSpec(design.FunctionalSpecID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityFunctionalSpec, ID: design.FunctionalSpecID}
		}
		if fs.Status != domain.SpecApproved {
			return domain.PreconditionError{
				Entity: domain.EntityFunctionalSpec,
				ID:     fs.ID,
				Reason: fmt.Sprintf("design specs require an approved functional spec, got status %s", fs.Status),
			}
		}
		design.ProjectID = fs.ProjectID
		design.Status = domain.SpecDraft
		if design.Version == "" {
			design.Version = "1.0"
		}
		design.CreatedBy = actor.Identity
		design.ApprovedBy = nil
		design.ApprovedAt = nil
		var err error
		created, err = tx.CreateDesignSpec(design)
		if err != nil {
			return err
		}
		return audit(tx, "create_design_spec", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityDesignSpec,
			EntityID: created.ID,
			Details:  fmt.Sprintf("Created design spec %q for functional spec %s", created.Title, fs.ID),
		})
	})
	return created, err
}

// ApproveDesignSpec approves a design spec.
func (s *Service) ApproveDesignSpec(ctx context.Context, actor Actor, id string) (domain.DesignSpec, error) {
	if !actor.Role.CanApprove() {
		return domain.DesignSpec{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "approve design spec"}
	}
	var updated domain.DesignSpec
	err := s.run(ctx, "approve_design_spec", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindDesignSpec(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityDesignSpec, ID: id}
		}
		if current.CreatedBy == actor.Identity {
			return domain.SelfApprovalError{Entity: domain.EntityDesignSpec, ID: id, Actor: actor.Identity}
		}
		if current.Status == domain.SpecApproved {
			return domain.InvalidStateError{Entity: domain.EntityDesignSpec, ID: id, From: string(current.Status), To: string(domain.SpecApproved)}
		}
		now := s.nowFn()
		var err error
		updated, err = tx.UpdateDesignSpec(id, func(d *domain.DesignSpec) error {
			d.Status = domain.SpecApproved
			d.ApprovedBy = strPtr(actor.Identity)
			d.ApprovedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "approve_design_spec", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditApprove,
			Entity:   domain.EntityDesignSpec,
			EntityID: id,
			OldValue: strPtr(string(current.Status)),
			NewValue: strPtr(string(domain.SpecApproved)),
			Details:  fmt.Sprintf("Approved design spec %q", current.Title),
		})
	})
	return updated, err
}
