package stores

import (
	"context"
	"time"
)

// CheckpointStatus is the lifecycle status of a checkpoint.
// Checkpoints are append-only: cleanup marks them inactive, it never
// deletes rows.
type CheckpointStatus string

const (
	CheckpointStatusActive   CheckpointStatus = "active"
	CheckpointStatusInactive CheckpointStatus = "inactive"
)

// ResourceState is one tracked infrastructure resource record.
type ResourceState struct {
	// Project scopes the record; scans and deletes are per project.
	Project string `json:"project"`

	// ResourceName is the unique resource name within the project.
	ResourceName string `json:"resource_name"`

	// ResourceType is the capability ID that created the resource.
	ResourceType string `json:"resource_type"`

	// Phase is the deployment phase the resource was created in.
	Phase string `json:"phase"`

	// Status is the resource status (e.g., "created", "restored").
	Status string `json:"status"`

	// Restored marks rows re-inserted by a rollback.
	Restored bool `json:"restored"`

	// Timestamp is when the record was written.
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointRecord is the persisted form of a checkpoint.
type CheckpointRecord struct {
	// ID is the checkpoint identifier (UUID).
	ID string `json:"id"`

	// Project is the project the checkpoint captured.
	Project string `json:"project"`

	// CreatedAt is the capture time.
	CreatedAt time.Time `json:"created_at"`

	// Description is the operator-supplied description.
	Description string `json:"description"`

	// VCSRevision is the version-control revision at capture time.
	VCSRevision string `json:"vcs_revision"`

	// VCSBranch is the branch name at capture time.
	VCSBranch string `json:"vcs_branch"`

	// Snapshot is the JSON-encoded []ResourceState captured.
	Snapshot string `json:"snapshot"`

	// Status is active or inactive.
	Status CheckpointStatus `json:"status"`
}

// AuditEntry is one decision audit log row.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Phase     string    `json:"phase"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Rationale string    `json:"rationale"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StateStore is the tracked-state collaborator interface.
type StateStore interface {
	// Put inserts or replaces a resource record.
	Put(ctx context.Context, record *ResourceState) error

	// Scan returns all records for a project.
	Scan(ctx context.Context, project string) ([]ResourceState, error)

	// Delete removes one resource record.
	Delete(ctx context.Context, project, resourceName string) error
}

// CheckpointStore persists checkpoints.
type CheckpointStore interface {
	// CreateCheckpoint appends a new checkpoint row.
	CreateCheckpoint(ctx context.Context, record *CheckpointRecord) error

	// GetCheckpoint retrieves a checkpoint by ID regardless of status.
	GetCheckpoint(ctx context.Context, id string) (*CheckpointRecord, error)

	// ListActiveCheckpoints returns active checkpoints for a project,
	// most recent first.
	ListActiveCheckpoints(ctx context.Context, project string) ([]*CheckpointRecord, error)

	// SetCheckpointStatus updates one checkpoint's status.
	SetCheckpointStatus(ctx context.Context, id string, status CheckpointStatus) error
}

// AuditLog is the fire-and-forget decision audit collaborator.
// Its own failure must never abort the caller.
type AuditLog interface {
	// Append writes one audit entry.
	Append(ctx context.Context, entry *AuditEntry) error

	// ListRecent returns the newest entries, most recent first.
	ListRecent(ctx context.Context, limit int) ([]*AuditEntry, error)
}
