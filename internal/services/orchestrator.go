package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docforge/internal/repository"
	"docforge/pkg/models"
)

// Orchestrator drives workflow status transitions, issues recovery and
// exposes current progress. All mutations for a given workflow id are
// serialized; workflows never block each other.
type Orchestrator struct {
	state       repository.StateStore
	checkpoints repository.CheckpointStore
	agent       AgentRuntimeClient
	broadcaster EventBroadcaster
	metrics     MetricsRecorder
	logger      Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	recoveringMu sync.Mutex
	recovering   map[string]struct{}
}

// NewOrchestrator creates an Orchestrator. broadcaster and metrics may be
// nil in tests that do not exercise fan-out.
func NewOrchestrator(state repository.StateStore, checkpoints repository.CheckpointStore, agent AgentRuntimeClient, broadcaster EventBroadcaster, metrics MetricsRecorder, logger Logger) *Orchestrator {
	return &Orchestrator{
		state:       state,
		checkpoints: checkpoints,
		agent:       agent,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
		recovering:  make(map[string]struct{}),
	}
}

// CreateWorkflowRequest describes a workflow registration.
type CreateWorkflowRequest struct {
	WorkflowID string `json:"workflow_id"`
	TenantID   string `json:"tenant_id"`
	ProjectID  string `json:"project_id"`
	TotalSteps int    `json:"total_steps"`
}

// CreateWorkflow registers a new workflow in the pending state.
func (o *Orchestrator) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*models.WorkflowExecution, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", models.ErrValidation)
	}
	if req.TotalSteps <= 0 {
		return nil, fmt.Errorf("%w: total_steps must be positive", models.ErrValidation)
	}
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.New().String()
	}

	exec := &models.WorkflowExecution{
		WorkflowID:  req.WorkflowID,
		ExecutionID: uuid.New().String(),
		TenantID:    req.TenantID,
		ProjectID:   req.ProjectID,
		Status:      models.WorkflowStatusPending,
		TotalSteps:  req.TotalSteps,
		StartedAt:   time.Now().UTC(),
	}
	if err := o.state.Create(ctx, exec); err != nil {
		return nil, err
	}
	o.record("workflow_created", 1, nil, exec.TenantID)
	return exec, nil
}

// Start transitions a pending workflow to running. Any other current status
// fails with models.ErrAlreadyRunning.
func (o *Orchestrator) Start(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	unlock := o.lock(workflowID)
	defer unlock()

	exec, err := o.state.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if exec.Status != models.WorkflowStatusPending {
		return nil, fmt.Errorf("workflow %s is %s: %w", workflowID, exec.Status, models.ErrAlreadyRunning)
	}

	updated, err := o.state.Upsert(ctx, workflowID, models.ExecutionUpdate{
		Status: repository.StatusPtr(models.WorkflowStatusRunning),
	})
	if err != nil {
		return nil, err
	}
	o.record("workflow_started", 1, nil, updated.TenantID)
	return updated, nil
}

// ProgressReport is an inbound progress callback from the agent runtime.
// WorkflowID plus StepID form the idempotency key; duplicate or out-of-order
// callbacks are discarded rather than corrupting the step counters.
type ProgressReport struct {
	StepID                 int     `json:"step_id"`
	TotalSteps             int     `json:"total_steps"`
	CompletedSteps         int     `json:"completed_steps"`
	CurrentStep            string  `json:"current_step"`
	ProgressPercentage     float64 `json:"progress_percentage"`
	EstimatedTimeRemaining int     `json:"estimated_time_remaining"`
	Checkpoint             bool    `json:"checkpoint"`
	Recoverable            bool    `json:"recoverable"`
	StepDetails            []byte  `json:"step_details,omitempty"`
}

// ReportProgress applies a progress callback. The returned bool is true when
// the report was discarded as superseded: the workflow already left the
// running state, or the step was already applied.
func (o *Orchestrator) ReportProgress(ctx context.Context, workflowID string, report ProgressReport) (*models.WorkflowExecution, bool, error) {
	unlock := o.lock(workflowID)
	defer unlock()

	exec, err := o.state.Get(ctx, workflowID)
	if err != nil {
		return nil, false, err
	}
	// In-flight reports for a workflow that already left running are
	// advisory and discarded.
	if exec.Status != models.WorkflowStatusRunning {
		o.logger.Debug("discarding progress for non-running workflow", "workflow_id", workflowID, "status", exec.Status)
		return exec, true, nil
	}
	if report.CompletedSteps <= exec.CompletedSteps {
		o.logger.Debug("discarding superseded progress report", "workflow_id", workflowID, "step_id", report.StepID)
		return exec, true, nil
	}
	if report.ProgressPercentage < 0 || report.ProgressPercentage > 100 {
		return nil, false, fmt.Errorf("%w: progress_percentage out of range", models.ErrValidation)
	}

	if report.Checkpoint {
		cp := &models.Checkpoint{
			WorkflowID:    workflowID,
			StepID:        report.StepID,
			StepLabel:     report.CurrentStep,
			StateSnapshot: report.StepDetails,
			IsRecoverable: report.Recoverable,
		}
		// A recovery from an earlier checkpoint re-executes steps whose
		// checkpoints already exist; re-reported boundaries keep the stored
		// snapshot and the progress update still applies.
		if err := o.checkpoints.Append(ctx, cp); err != nil && !errors.Is(err, models.ErrDuplicateStep) {
			return nil, false, err
		}
	}

	update := models.ExecutionUpdate{
		CompletedSteps:     repository.IntPtr(report.CompletedSteps),
		CurrentStep:        repository.StringPtr(report.CurrentStep),
		ProgressPercentage: repository.Float64Ptr(report.ProgressPercentage),
	}
	if report.TotalSteps > 0 {
		update.TotalSteps = repository.IntPtr(report.TotalSteps)
	}
	updated, err := o.state.Upsert(ctx, workflowID, update)
	if err != nil {
		return nil, false, err
	}

	o.broadcastProgress(updated, report.EstimatedTimeRemaining)
	o.record("workflow_progress", 1, map[string]string{"workflow_id": workflowID}, updated.TenantID)
	return updated, false, nil
}

// Complete transitions a running workflow to completed.
func (o *Orchestrator) Complete(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	return o.finish(ctx, workflowID, models.WorkflowStatusCompleted, "")
}

// Fail transitions a running workflow to failed with a reason.
func (o *Orchestrator) Fail(ctx context.Context, workflowID, reason string) (*models.WorkflowExecution, error) {
	return o.finish(ctx, workflowID, models.WorkflowStatusFailed, reason)
}

// Cancel transitions a running workflow to cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	return o.finish(ctx, workflowID, models.WorkflowStatusCancelled, "")
}

func (o *Orchestrator) finish(ctx context.Context, workflowID string, target models.WorkflowStatus, reason string) (*models.WorkflowExecution, error) {
	unlock := o.lock(workflowID)
	defer unlock()

	exec, err := o.state.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if exec.Status != models.WorkflowStatusRunning {
		return nil, fmt.Errorf("workflow %s is %s, cannot transition to %s: %w", workflowID, exec.Status, target, models.ErrInvalidTransition)
	}

	update := models.ExecutionUpdate{
		Status:      repository.StatusPtr(target),
		CompletedAt: repository.TimePtr(time.Now().UTC()),
	}
	if reason != "" {
		update.FailureReason = repository.StringPtr(reason)
	}
	if target == models.WorkflowStatusCompleted {
		update.CompletedSteps = repository.IntPtr(exec.TotalSteps)
		update.ProgressPercentage = repository.Float64Ptr(100)
	}

	updated, err := o.state.Upsert(ctx, workflowID, update)
	if err != nil {
		return nil, err
	}
	o.record("workflow_"+string(target), 1, map[string]string{"workflow_id": workflowID}, updated.TenantID)
	return updated, nil
}

// RecoveryResult is the outcome of a successful recovery.
type RecoveryResult struct {
	ExecutionID          string               `json:"execution_id"`
	RecoveredFrom        int                  `json:"recovered_from"`
	AvailableCheckpoints []*models.Checkpoint `json:"available_checkpoints"`
}

// Recover resumes a failed or cancelled workflow from a checkpoint. When
// fromCheckpoint is nil the latest recoverable checkpoint is used. Recovery
// is serialized per workflow id: concurrent attempts are rejected with
// models.ErrRecoveryInProgress for all but the first.
func (o *Orchestrator) Recover(ctx context.Context, workflowID string, fromCheckpoint *int) (*RecoveryResult, error) {
	if !o.beginRecovery(workflowID) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, models.ErrRecoveryInProgress)
	}
	defer o.endRecovery(workflowID)

	unlock := o.lock(workflowID)
	defer unlock()

	exec, err := o.state.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !exec.Status.Recoverable() {
		return nil, fmt.Errorf("workflow %s is %s: %w", workflowID, exec.Status, models.ErrInvalidState)
	}

	var cp *models.Checkpoint
	if fromCheckpoint != nil {
		cp, err = o.checkpoints.Get(ctx, workflowID, *fromCheckpoint)
		if err != nil || !cp.IsRecoverable {
			return nil, fmt.Errorf("workflow %s step %d: %w", workflowID, *fromCheckpoint, models.ErrCheckpointNotFound)
		}
	} else {
		cp, err = o.checkpoints.Latest(ctx, workflowID)
		if err != nil {
			return nil, err
		}
	}

	// Tell the runtime to pick the work back up before we flip state, so a
	// dead runtime leaves the workflow recoverable.
	if err := o.agent.ResumeWorkflow(ctx, workflowID, cp.StepID, cp.StateSnapshot); err != nil {
		return nil, err
	}

	executionID := uuid.New().String()
	progress := float64(0)
	if exec.TotalSteps > 0 {
		progress = float64(cp.StepID) / float64(exec.TotalSteps) * 100
	}
	if _, err := o.state.Upsert(ctx, workflowID, models.ExecutionUpdate{
		Status:             repository.StatusPtr(models.WorkflowStatusRunning),
		ExecutionID:        repository.StringPtr(executionID),
		CompletedSteps:     repository.IntPtr(cp.StepID),
		CurrentStep:        repository.StringPtr(cp.StepLabel),
		ProgressPercentage: repository.Float64Ptr(progress),
		FailureReason:      repository.StringPtr(""),
		ClearCompletedAt:   true,
	}); err != nil {
		return nil, err
	}

	available, err := o.checkpoints.List(ctx, workflowID)
	if err != nil {
		o.logger.Error("listing checkpoints after recovery", "workflow_id", workflowID, "error", err)
		available = nil
	}

	o.logger.Info("workflow recovered", "workflow_id", workflowID, "execution_id", executionID, "from_step", cp.StepID)
	o.record("workflow_recovered", 1, map[string]string{"workflow_id": workflowID}, exec.TenantID)

	return &RecoveryResult{
		ExecutionID:          executionID,
		RecoveredFrom:        cp.StepID,
		AvailableCheckpoints: available,
	}, nil
}

// RecoveryInfo describes whether and from where a workflow can be recovered.
type RecoveryInfo struct {
	IsRecoverable    bool                 `json:"is_recoverable"`
	Checkpoints      []*models.Checkpoint `json:"checkpoints"`
	LatestCheckpoint *models.Checkpoint   `json:"latest_checkpoint,omitempty"`
}

// GetRecoveryInfo returns recovery metadata for a workflow. Checkpoints of a
// completed workflow remain listed for audit even though Recover will refuse
// them.
func (o *Orchestrator) GetRecoveryInfo(ctx context.Context, workflowID string) (*RecoveryInfo, error) {
	exec, err := o.state.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	list, err := o.checkpoints.List(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	info := &RecoveryInfo{Checkpoints: list}
	latest, err := o.checkpoints.Latest(ctx, workflowID)
	if err == nil {
		info.LatestCheckpoint = latest
		info.IsRecoverable = exec.Status.Recoverable()
	} else if !errors.Is(err, models.ErrNoRecoverableCheckpoint) {
		return nil, err
	}
	return info, nil
}

// GetStatus returns the current execution snapshot.
func (o *Orchestrator) GetStatus(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	return o.state.Get(ctx, workflowID)
}

// AssertTenant verifies that the workflow belongs to the tenant. Returns
// models.ErrAccessDenied on mismatch.
func (o *Orchestrator) AssertTenant(ctx context.Context, workflowID, tenantID string) (*models.WorkflowExecution, error) {
	exec, err := o.state.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if exec.TenantID != tenantID {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, models.ErrAccessDenied)
	}
	return exec, nil
}

// TenantStats aggregates workflow counters for a tenant.
func (o *Orchestrator) TenantStats(ctx context.Context, tenantID string) (*models.TenantStats, error) {
	execs, err := o.state.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &models.TenantStats{Total: len(execs)}
	var totalDuration float64
	for _, exec := range execs {
		switch exec.Status {
		case models.WorkflowStatusRunning:
			stats.Running++
		case models.WorkflowStatusCompleted:
			stats.Completed++
			if exec.CompletedAt != nil {
				totalDuration += exec.CompletedAt.Sub(exec.StartedAt).Seconds()
			}
		case models.WorkflowStatusFailed:
			stats.Failed++
		}
	}
	if stats.Completed > 0 {
		stats.AvgDuration = totalDuration / float64(stats.Completed)
	}
	if finished := stats.Completed + stats.Failed; finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished)
	}
	return stats, nil
}

// ArchiveWorkflow removes a workflow's state and checkpoints. Only the
// owning tenant may archive; running workflows cannot be archived.
func (o *Orchestrator) ArchiveWorkflow(ctx context.Context, workflowID, tenantID string) error {
	unlock := o.lock(workflowID)
	defer unlock()

	exec, err := o.AssertTenant(ctx, workflowID, tenantID)
	if err != nil {
		return err
	}
	if exec.Status == models.WorkflowStatusRunning {
		return fmt.Errorf("workflow %s is running: %w", workflowID, models.ErrInvalidState)
	}
	if err := o.checkpoints.Purge(ctx, workflowID); err != nil {
		return err
	}
	if err := o.state.Delete(ctx, workflowID); err != nil {
		return err
	}

	// The lock entry would otherwise outlive the workflow.
	o.locksMu.Lock()
	delete(o.locks, workflowID)
	o.locksMu.Unlock()
	return nil
}

// lock acquires the per-workflow mutex and returns its unlock function.
func (o *Orchestrator) lock(workflowID string) func() {
	o.locksMu.Lock()
	mu, ok := o.locks[workflowID]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[workflowID] = mu
	}
	o.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) beginRecovery(workflowID string) bool {
	o.recoveringMu.Lock()
	defer o.recoveringMu.Unlock()
	if _, inFlight := o.recovering[workflowID]; inFlight {
		return false
	}
	o.recovering[workflowID] = struct{}{}
	return true
}

func (o *Orchestrator) endRecovery(workflowID string) {
	o.recoveringMu.Lock()
	defer o.recoveringMu.Unlock()
	delete(o.recovering, workflowID)
}

func (o *Orchestrator) broadcastProgress(exec *models.WorkflowExecution, eta int) {
	if o.broadcaster == nil {
		return
	}
	o.broadcaster.BroadcastProgress(exec.WorkflowID, models.ProgressPayload{
		TotalSteps:             exec.TotalSteps,
		CompletedSteps:         exec.CompletedSteps,
		CurrentStep:            exec.CurrentStep,
		ProgressPercentage:     exec.ProgressPercentage,
		EstimatedTimeRemaining: eta,
	})
}

func (o *Orchestrator) record(name string, value float64, tags map[string]string, tenantID string) {
	if o.metrics == nil {
		return
	}
	o.metrics.Record(name, value, tags, tenantID)
}
