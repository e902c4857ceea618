package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vmscore/pkg/domain"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(domain.Project{Name: "doomed", Status: domain.ProjectPlanning}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("transaction error not propagated")
	}
	if got := len(store.ListProjects()); got != 0 {
		t.Fatalf("projects after rollback = %d, want 0", got)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range changes {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "block_all",
			Severity: domain.SeverityBlock,
			Message:  "blocked",
			Entity:   c.Entity,
		})
	}
	return res, nil
}

func TestBlockingViolationAbortsCommit(t *testing.T) {
	store := NewStore(domain.NewRulesEngine(blockAllRule{}))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{Name: "blocked", Status: domain.ProjectPlanning})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("got %T (%v), want RuleViolationError", err, err)
	}
	if got := len(store.ListProjects()); got != 0 {
		t.Fatalf("projects after blocked commit = %d, want 0", got)
	}
}

func TestUpdateMissingRecordReturnsNotFound(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateRequirement("missing", func(r *domain.Requirement) error { return nil })
		return err
	})
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("got %T (%v), want NotFoundError", err, err)
	}
}

func TestAuditEntriesNewestFirstWithFilters(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	var tick time.Duration
	store.SetNowFunc(func() time.Time {
		tick += time.Minute
		return base.Add(tick)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		actor := "alice"
		if i == 2 {
			actor = "bob"
		}
		entity := fmt.Sprintf("proj-%d", i)
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.AppendAudit(domain.AuditEntry{
				Actor:    actor,
				Action:   domain.AuditCreate,
				Entity:   domain.EntityProject,
				EntityID: entity,
			})
			return err
		}); err != nil {
			t.Fatalf("append audit: %v", err)
		}
	}

	entries := store.ListAuditEntries(domain.AuditFilter{})
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if !entries[0].Timestamp.After(entries[2].Timestamp) {
		t.Fatal("entries not ordered newest first")
	}
	if entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Fatalf("entry IDs not assigned uniquely: %q, %q", entries[0].ID, entries[1].ID)
	}

	byActor := store.ListAuditEntries(domain.AuditFilter{Actor: "bob"})
	if len(byActor) != 1 || byActor[0].EntityID != "proj-2" {
		t.Fatalf("actor filter = %+v", byActor)
	}
	limited := store.ListAuditEntries(domain.AuditFilter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limited entries = %d, want 2", len(limited))
	}
}

func TestViewIsolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	var created domain.Project
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateProject(domain.Project{Name: "iso", Status: domain.ProjectPlanning})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var fromView domain.Project
	if err := store.View(ctx, func(v domain.TransactionView) error {
		p, ok := v.FindProject(created.ID)
		if !ok {
			return fmt.Errorf("project missing in view")
		}
		p.Name = "mutated"
		fromView = p
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	_ = fromView

	stored, ok := store.GetProject(created.ID)
	if !ok {
		t.Fatal("project missing")
	}
	if stored.Name != "iso" {
		t.Fatalf("view mutation leaked into store: %q", stored.Name)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(domain.Project{Name: "persisted", Status: domain.ProjectPlanning}); err != nil {
			return err
		}
		_, err := tx.AppendAudit(domain.AuditEntry{Actor: "alice", Action: domain.AuditCreate, Entity: domain.EntityProject})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snapshot := store.ExportState()
	restored := NewStore(domain.NewRulesEngine())
	restored.ImportState(snapshot)

	if diff := cmp.Diff(store.ListProjects(), restored.ListProjects()); diff != "" {
		t.Fatalf("restored projects differ (-orig +restored):\n%s", diff)
	}
	if diff := cmp.Diff(store.ListAuditEntries(domain.AuditFilter{}), restored.ListAuditEntries(domain.AuditFilter{})); diff != "" {
		t.Fatalf("restored audit entries differ (-orig +restored):\n%s", diff)
	}
}

func TestIDsAreUnique(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			p, err := tx.CreateProject(domain.Project{Name: "p", Status: domain.ProjectPlanning})
			if err != nil {
				return err
			}
			if _, dup := seen[p.ID]; dup {
				return fmt.Errorf("duplicate id %s", p.ID)
			}
			seen[p.ID] = struct{}{}
			return nil
		}); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
}
