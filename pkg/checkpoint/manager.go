// Package checkpoint snapshots version-control state and tracked
// infrastructure state, and restores both on demand or automatically
// after a failed run.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackpilot/stackpilot/pkg/engine"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
	"github.com/stackpilot/stackpilot/pkg/vcs"
)

// Manager creates, lists, restores and expires checkpoints for one
// project. Rollbacks delete and re-insert tracked state, so they are
// serialized by a rollback-scoped lock.
type Manager struct {
	project     string
	states      stores.StateStore
	checkpoints stores.CheckpointStore
	vcs         vcs.Client
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	tracer      *telemetry.Tracer

	// rollbackMu serializes destructive rollback operations.
	rollbackMu sync.Mutex
}

// Options configures a Manager.
type Options struct {
	// Metrics receives checkpoint counters. Optional.
	Metrics *telemetry.Metrics

	// Tracer receives rollback spans. Optional.
	Tracer *telemetry.Tracer
}

// NewManager creates a checkpoint manager for the given project.
// A nil vcs client degrades to vcs.NopClient.
func NewManager(project string, states stores.StateStore, checkpoints stores.CheckpointStore, client vcs.Client, logger zerolog.Logger, opts Options) *Manager {
	if client == nil {
		client = vcs.NopClient{}
	}
	if opts.Metrics == nil {
		opts.Metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	return &Manager{
		project:     project,
		states:      states,
		checkpoints: checkpoints,
		vcs:         client,
		logger:      logger.With().Str("component", "checkpoint").Str("project", project).Logger(),
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
	}
}

// RollbackResult reports one completed rollback.
type RollbackResult struct {
	// CheckpointID is the restored checkpoint.
	CheckpointID string `json:"checkpoint_id"`

	// VCSRevision is the revision that was checked out.
	VCSRevision string `json:"vcs_revision"`

	// RestoredResources is the number of re-inserted state rows.
	RestoredResources int `json:"restored_resources"`

	// Validated is true when the post-rollback scan was verified.
	Validated bool `json:"validated"`

	// ValidationErrors lists set mismatches found by validation. The
	// rollback itself, including the VCS checkout, is not reverted.
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// Create captures the current VCS revision and a full project state
// scan as a new active checkpoint. Any read failure aborts the whole
// creation; no partial checkpoint is ever stored.
func (m *Manager) Create(ctx context.Context, description string) (*stores.CheckpointRecord, error) {
	revision, err := m.vcs.CurrentRevision()
	if err != nil {
		m.metrics.RecordCheckpointOp("create", "failure")
		return nil, engine.NewTransientError("failed to read VCS revision", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}
	branch, err := m.vcs.CurrentBranch()
	if err != nil {
		m.metrics.RecordCheckpointOp("create", "failure")
		return nil, engine.NewTransientError("failed to read VCS branch", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}

	snapshot, err := m.states.Scan(ctx, m.project)
	if err != nil {
		m.metrics.RecordCheckpointOp("create", "failure")
		return nil, engine.NewTransientError("failed to scan tracked state", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		m.metrics.RecordCheckpointOp("create", "failure")
		return nil, engine.NewPermanentError("failed to encode snapshot", err).
			WithCode(engine.ErrCodeInternal)
	}

	record := &stores.CheckpointRecord{
		ID:          uuid.New().String(),
		Project:     m.project,
		CreatedAt:   time.Now(),
		Description: description,
		VCSRevision: revision,
		VCSBranch:   branch,
		Snapshot:    string(encoded),
		Status:      stores.CheckpointStatusActive,
	}
	if err := m.checkpoints.CreateCheckpoint(ctx, record); err != nil {
		m.metrics.RecordCheckpointOp("create", "failure")
		return nil, engine.NewTransientError("failed to persist checkpoint", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}

	m.logger.Info().
		Str("checkpoint", record.ID).
		Str("revision", revision).
		Int("resources", len(snapshot)).
		Msg("checkpoint created")
	m.metrics.RecordCheckpointOp("create", "success")

	return record, nil
}

// List returns the active checkpoints for the project, most recent
// first. Inactive checkpoints are never listed.
func (m *Manager) List(ctx context.Context) ([]*stores.CheckpointRecord, error) {
	return m.checkpoints.ListActiveCheckpoints(ctx, m.project)
}

// Rollback restores the tracked state and VCS revision of an active
// checkpoint. When validate is set, the restored state is re-scanned
// and diffed against the snapshot; mismatches are reported without
// reverting the already-performed checkout.
func (m *Manager) Rollback(ctx context.Context, id string, validate bool) (*RollbackResult, error) {
	m.rollbackMu.Lock()
	defer m.rollbackMu.Unlock()

	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.StartRollbackSpan(ctx, id)
		defer span.End()
	}

	record, err := m.checkpoints.GetCheckpoint(ctx, id)
	if err != nil {
		m.metrics.RecordCheckpointOp("rollback", "failure")
		return nil, engine.NewPermanentError("checkpoint not found", err).
			WithCode(engine.ErrCodeNotFound)
	}
	if record.Status != stores.CheckpointStatusActive {
		m.metrics.RecordCheckpointOp("rollback", "failure")
		return nil, engine.NewConflictError(
			fmt.Sprintf("checkpoint %s is %s, only active checkpoints can be restored", id, record.Status), nil).
			WithCode(engine.ErrCodeCheckpointState)
	}

	var snapshot []stores.ResourceState
	if err := json.Unmarshal([]byte(record.Snapshot), &snapshot); err != nil {
		m.metrics.RecordCheckpointOp("rollback", "failure")
		return nil, engine.NewPermanentError("failed to decode snapshot", err).
			WithCode(engine.ErrCodeInternal)
	}

	if err := m.vcs.Checkout(record.VCSRevision); err != nil {
		m.metrics.RecordCheckpointOp("rollback", "failure")
		return nil, engine.NewTransientError("failed to checkout recorded revision", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}

	if err := m.restoreState(ctx, snapshot); err != nil {
		m.metrics.RecordCheckpointOp("rollback", "failure")
		return nil, err
	}

	result := &RollbackResult{
		CheckpointID:      record.ID,
		VCSRevision:       record.VCSRevision,
		RestoredResources: len(snapshot),
	}

	if validate {
		result.Validated = true
		result.ValidationErrors, err = m.validateRestore(ctx, snapshot)
		if err != nil {
			m.metrics.RecordCheckpointOp("rollback", "failure")
			return nil, err
		}
	}

	m.logger.Info().
		Str("checkpoint", record.ID).
		Int("resources", len(snapshot)).
		Int("validation_errors", len(result.ValidationErrors)).
		Msg("rollback completed")
	m.metrics.RecordCheckpointOp("rollback", "success")

	return result, nil
}

// restoreState deletes the current project rows and re-inserts the
// snapshot rows tagged as restored.
func (m *Manager) restoreState(ctx context.Context, snapshot []stores.ResourceState) error {
	current, err := m.states.Scan(ctx, m.project)
	if err != nil {
		return engine.NewTransientError("failed to scan current state", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}
	for _, rec := range current {
		if err := m.states.Delete(ctx, m.project, rec.ResourceName); err != nil {
			return engine.NewTransientError("failed to delete current state row", err).
				WithCode(engine.ErrCodeRollbackFailed)
		}
	}

	for _, rec := range snapshot {
		restored := rec
		restored.Restored = true
		restored.Status = "restored"
		restored.Timestamp = time.Now()
		if err := m.states.Put(ctx, &restored); err != nil {
			return engine.NewTransientError("failed to re-insert snapshot row", err).
				WithCode(engine.ErrCodeRollbackFailed)
		}
	}
	return nil
}

// validateRestore re-scans the project and reports set mismatches
// between the restored rows and the snapshot.
func (m *Manager) validateRestore(ctx context.Context, snapshot []stores.ResourceState) ([]string, error) {
	current, err := m.states.Scan(ctx, m.project)
	if err != nil {
		return nil, engine.NewTransientError("failed to re-scan restored state", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}

	want := make(map[string]bool, len(snapshot))
	for _, rec := range snapshot {
		want[rec.ResourceName] = true
	}
	got := make(map[string]bool, len(current))
	for _, rec := range current {
		got[rec.ResourceName] = true
	}

	var mismatches []string
	for name := range want {
		if !got[name] {
			mismatches = append(mismatches, fmt.Sprintf("missing resource %s", name))
		}
	}
	for name := range got {
		if !want[name] {
			mismatches = append(mismatches, fmt.Sprintf("extra resource %s", name))
		}
	}
	sort.Strings(mismatches)
	return mismatches, nil
}

// AutoRollback restores the most recent active checkpoint after a
// failed phase. The absence of any active checkpoint is an
// unrecoverable condition, reported as an error.
func (m *Manager) AutoRollback(ctx context.Context, phase string, cause error) (*RollbackResult, error) {
	m.logger.Warn().
		Str("phase", phase).
		AnErr("cause", cause).
		Msg("attempting automatic rollback")

	records, err := m.checkpoints.ListActiveCheckpoints(ctx, m.project)
	if err != nil {
		m.metrics.RecordCheckpointOp("auto_rollback", "failure")
		return nil, engine.NewTransientError("failed to list checkpoints", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}
	if len(records) == 0 {
		m.metrics.RecordCheckpointOp("auto_rollback", "failure")
		return nil, engine.NewPermanentError(
			fmt.Sprintf("no active checkpoint to roll back to after %s failure", phase), cause).
			WithCode(engine.ErrCodeNotFound)
	}

	result, err := m.Rollback(ctx, records[0].ID, true)
	if err != nil {
		m.metrics.RecordCheckpointOp("auto_rollback", "failure")
		return nil, err
	}
	m.metrics.RecordCheckpointOp("auto_rollback", "success")
	return result, nil
}

// Cleanup marks all but the N most recent active checkpoints inactive.
// Rows are never deleted. Returns the number of checkpoints expired.
func (m *Manager) Cleanup(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, engine.NewPermanentError("keep must be non-negative", nil).
			WithCode(engine.ErrCodeValidation)
	}

	records, err := m.checkpoints.ListActiveCheckpoints(ctx, m.project)
	if err != nil {
		m.metrics.RecordCheckpointOp("cleanup", "failure")
		return 0, engine.NewTransientError("failed to list checkpoints", err).
			WithCode(engine.ErrCodeRollbackFailed)
	}
	if len(records) <= keep {
		return 0, nil
	}

	expired := 0
	for _, record := range records[keep:] {
		if err := m.checkpoints.SetCheckpointStatus(ctx, record.ID, stores.CheckpointStatusInactive); err != nil {
			m.metrics.RecordCheckpointOp("cleanup", "failure")
			return expired, engine.NewTransientError("failed to expire checkpoint", err).
				WithCode(engine.ErrCodeRollbackFailed)
		}
		expired++
	}

	m.logger.Info().Int("expired", expired).Int("kept", keep).Msg("checkpoints cleaned up")
	m.metrics.RecordCheckpointOp("cleanup", "success")
	return expired, nil
}
