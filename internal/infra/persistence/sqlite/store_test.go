package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"vmscore/pkg/domain"
)

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmscore.db")
	ctx := context.Background()

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	var created domain.Project
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateProject(domain.Project{Name: "durable", Status: domain.ProjectPlanning})
		if txErr != nil {
			return txErr
		}
		_, txErr = tx.AppendAudit(domain.AuditEntry{Actor: "alice", Action: domain.AuditCreate, Entity: domain.EntityProject, EntityID: created.ID})
		return txErr
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, ok := reopened.GetProject(created.ID)
	if !ok {
		t.Fatal("project not loaded from disk")
	}
	if loaded.Name != "durable" {
		t.Fatalf("name = %q, want durable", loaded.Name)
	}
	if entries := reopened.ListAuditEntries(domain.AuditFilter{}); len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
}

func TestFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmscore.db")
	ctx := context.Background()

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(domain.Project{Name: "ghost", Status: domain.ProjectPlanning}); err != nil {
			return err
		}
		return errors.New("boom")
	}); err == nil {
		t.Fatal("transaction error not propagated")
	}
	if got := len(store.ListProjects()); got != 0 {
		t.Fatalf("projects = %d, want 0", got)
	}
}
