package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tables := []string{"resource_states", "checkpoints", "audit_entries"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestResourceStateCRUD tests the tracked-state store operations
func TestResourceStateCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	rec := &ResourceState{
		Project:      "demo",
		ResourceName: "web-cluster",
		ResourceType: "ecs",
		Phase:        "compute",
		Status:       "created",
		Timestamp:    now,
	}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put resource state: %v", err)
	}

	states, err := store.Scan(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 record, got %d", len(states))
	}
	if states[0].ResourceType != "ecs" || states[0].Phase != "compute" {
		t.Errorf("unexpected record: %+v", states[0])
	}

	// Upsert overwrites
	rec.Status = "restored"
	rec.Restored = true
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	states, err = store.Scan(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to scan after upsert: %v", err)
	}
	if len(states) != 1 || !states[0].Restored {
		t.Errorf("expected single restored record, got %+v", states)
	}

	// Other projects are invisible
	other, err := store.Scan(ctx, "other")
	if err != nil {
		t.Fatalf("failed to scan other project: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no records for other project, got %d", len(other))
	}

	if err := store.Delete(ctx, "demo", "web-cluster"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	states, err = store.Scan(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to scan after delete: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected empty scan after delete, got %d records", len(states))
	}
}

// TestCheckpointCRUD tests checkpoint persistence
func TestCheckpointCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	record := &CheckpointRecord{
		ID:          "cp-001",
		Project:     "demo",
		CreatedAt:   time.Now(),
		Description: "before upgrade",
		VCSRevision: "abc123",
		VCSBranch:   "main",
		Snapshot:    `[]`,
		Status:      CheckpointStatusActive,
	}
	if err := store.CreateCheckpoint(ctx, record); err != nil {
		t.Fatalf("failed to create checkpoint: %v", err)
	}

	got, err := store.GetCheckpoint(ctx, "cp-001")
	if err != nil {
		t.Fatalf("failed to get checkpoint: %v", err)
	}
	if got.VCSRevision != "abc123" || got.Status != CheckpointStatusActive {
		t.Errorf("unexpected checkpoint: %+v", got)
	}

	if _, err := store.GetCheckpoint(ctx, "missing"); err == nil {
		t.Error("expected error for missing checkpoint")
	}
}

// TestCheckpointListAndStatus tests listing and status transitions
func TestCheckpointListAndStatus(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"cp-a", "cp-b", "cp-c"} {
		record := &CheckpointRecord{
			ID:          id,
			Project:     "demo",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Description: "checkpoint " + id,
			VCSRevision: "rev-" + id,
			VCSBranch:   "main",
			Snapshot:    `[]`,
			Status:      CheckpointStatusActive,
		}
		if err := store.CreateCheckpoint(ctx, record); err != nil {
			t.Fatalf("failed to create %s: %v", id, err)
		}
	}

	active, err := store.ListActiveCheckpoints(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active checkpoints, got %d", len(active))
	}
	// Most recent first
	if active[0].ID != "cp-c" {
		t.Errorf("expected cp-c first, got %s", active[0].ID)
	}

	if err := store.SetCheckpointStatus(ctx, "cp-a", CheckpointStatusInactive); err != nil {
		t.Fatalf("failed to set status: %v", err)
	}
	active, err = store.ListActiveCheckpoints(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to list after deactivation: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active checkpoints, got %d", len(active))
	}

	// Inactive checkpoints are still retrievable by ID
	got, err := store.GetCheckpoint(ctx, "cp-a")
	if err != nil {
		t.Fatalf("failed to get inactive checkpoint: %v", err)
	}
	if got.Status != CheckpointStatusInactive {
		t.Errorf("expected inactive status, got %s", got.Status)
	}

	if err := store.SetCheckpointStatus(ctx, "missing", CheckpointStatusInactive); err == nil {
		t.Error("expected error updating missing checkpoint")
	}
}

// TestAuditLog tests audit entry append and listing
func TestAuditLog(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := &AuditEntry{
			Phase:     "routing",
			Actor:     "router",
			Action:    "route",
			Rationale: "confidence above threshold",
			Status:    "routed",
			Timestamp: time.Now(),
		}
		if err := store.Append(ctx, entry); err != nil {
			t.Fatalf("failed to append entry %d: %v", i, err)
		}
	}

	entries, err := store.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("failed to list recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Newest first
	if entries[0].ID <= entries[1].ID {
		t.Errorf("expected descending IDs, got %d then %d", entries[0].ID, entries[1].ID)
	}
}
