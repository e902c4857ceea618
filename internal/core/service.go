package core

import (
	"context"
	"fmt"
	"time"

	"vmscore/internal/assist"
	"vmscore/internal/blob"
	"vmscore/pkg/domain"
)

// Service exposes the gatekeeper operations of the validation workflow.
// Every mutation runs in one store transaction together with exactly one
// audit entry, so partial effects can never become visible.
type Service struct {
	store     PersistentStore
	assistant assist.Assistant
	evidence  blob.Store
	metrics   MetricsRecorder
	tracer    Tracer
	nowFn     func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer attaches a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAssistant overrides the default heuristic assistant.
func WithAssistant(a assist.Assistant) Option {
	return func(s *Service) {
		if a != nil {
			s.assistant = a
		}
	}
}

// WithEvidenceStore attaches a blob store for execution evidence.
func WithEvidenceStore(b blob.Store) Option {
	return func(s *Service) {
		if b != nil {
			s.evidence = b
		}
	}
}

// WithNowFunc overrides the service clock (tests).
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		assistant: assist.NewHeuristic(),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// run executes one named mutation with tracing and metrics around the
// transaction.
func (s *Service) run(ctx context.Context, operation string, fn func(Transaction) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	_, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	span.End(err)
	return err
}

// audit appends the entry inside the transaction, wrapping any failure so
// callers can distinguish audit emission problems from domain errors.
func audit(tx Transaction, op string, entry domain.AuditEntry) error {
	if _, err := tx.AppendAudit(entry); err != nil {
		return domain.AuditWriteError{Op: op, Err: err}
	}
	return nil
}

func strPtr(s string) *string { return &s }

// AuditTrail returns audit entries matching the filter, newest first.
func (s *Service) AuditTrail(filter domain.AuditFilter) []domain.AuditEntry {
	return s.store.ListAuditEntries(filter)
}

// CreateProject persists a new validation project in Planning.
func (s *Service) CreateProject(ctx context.Context, actor Actor, project domain.Project) (domain.Project, error) {
	var created domain.Project
	err := s.run(ctx, "create_project", func(tx Transaction) error {
		if project.Status == "" {
			project.Status = domain.ProjectPlanning
		}
		if project.RiskLevel == "" {
			project.RiskLevel = domain.RiskMedium
		}
		project.CreatedBy = actor.Identity
		var err error
		created, err = tx.CreateProject(project)
		if err != nil {
			return err
		}
		return audit(tx, "create_project", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityProject,
			EntityID: created.ID,
			Details:  fmt.Sprintf("Created validation project %q", created.Name),
		})
	})
	return created, err
}

// UpdateProjectStatus advances the project lifecycle. Status never changes
// implicitly; this is the only way a project moves phase.
func (s *Service) UpdateProjectStatus(ctx context.Context, actor Actor, id string, status domain.ProjectStatus) (domain.Project, error) {
	if !actor.Role.CanAdvanceProject() {
		return domain.Project{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "advance project status"}
	}
	var updated domain.Project
	err := s.run(ctx, "update_project_status", func(tx Transaction) error {
		var before domain.ProjectStatus
		var err error
		updated, err = tx.UpdateProject(id, func(p *domain.Project) error {
			before = p.Status
			p.Status = status
			if status == domain.ProjectCompleted && p.ActualCompletion == nil {
				d := s.nowFn().Format("2006-01-02")
				p.ActualCompletion = &d
			}
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "update_project_status", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditUpdateStatus,
			Entity:   domain.EntityProject,
			EntityID: id,
			OldValue: strPtr(string(before)),
			NewValue: strPtr(string(status)),
			Details:  fmt.Sprintf("Project status %s -> %s", before, status),
		})
	})
	return updated, err
}

// CreateBoundary records a system boundary definition for a project.
func (s *Service) CreateBoundary(ctx context.Context, actor Actor, boundary domain.SystemBoundary) (domain.SystemBoundary, error) {
	var created domain.SystemBoundary
	err := s.run(ctx, "create_boundary", func(tx Transaction) error {
		if _, ok := tx.Snapshot().FindProject(boundary.ProjectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: boundary.ProjectID}
		}
		boundary.Status = domain.SpecDraft
		if boundary.Version == "" {
			boundary.Version = "1.0"
		}
		boundary.CreatedBy = actor.Identity
		var err error
		created, err = tx.CreateBoundary(boundary)
		if err != nil {
			return err
		}
		return audit(tx, "create_boundary", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditCreate,
			Entity:   domain.EntityBoundary,
			EntityID: created.ID,
			Details:  "Created system boundary definition",
		})
	})
	return created, err
}

// ApproveBoundary approves a boundary definition. Approval requires the
// approval capability and a different identity than the author.
func (s *Service) ApproveBoundary(ctx context.Context, actor Actor, id string) (domain.SystemBoundary, error) {
	if !actor.Role.CanApprove() {
		return domain.SystemBoundary{}, domain.ForbiddenError{Actor: actor.Identity, Role: actor.Role, Capability: "approve system boundary"}
	}
	var updated domain.SystemBoundary
	err := s.run(ctx, "approve_boundary", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindBoundary(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBoundary, ID: id}
		}
		if current.CreatedBy == actor.Identity {
			return domain.SelfApprovalError{Entity: domain.EntityBoundary, ID: id, Actor: actor.Identity}
		}
		if current.Status == domain.SpecApproved {
			return domain.InvalidStateError{Entity: domain.EntityBoundary, ID: id, From: string(current.Status), To: string(domain.SpecApproved)}
		}
		now := s.nowFn()
		var err error
		updated, err = tx.UpdateBoundary(id, func(b *domain.SystemBoundary) error {
			b.Status = domain.SpecApproved
			b.ApprovedBy = strPtr(actor.Identity)
			b.ApprovedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, "approve_boundary", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditApprove,
			Entity:   domain.EntityBoundary,
			EntityID: id,
			OldValue: strPtr(string(current.Status)),
			NewValue: strPtr(string(domain.SpecApproved)),
			Details:  "Approved system boundary",
		})
	})
	return updated, err
}
