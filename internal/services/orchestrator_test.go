package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"docforge/internal/logging"
	"docforge/internal/repository"
	"docforge/pkg/models"
)

// stubAgent is an AgentRuntimeClient that records resume calls and can be
// made to block or fail.
type stubAgent struct {
	mu      sync.Mutex
	calls   []int
	failErr error
	started chan struct{}
	release chan struct{}
}

func (a *stubAgent) ResumeWorkflow(ctx context.Context, workflowID string, fromStep int, snapshot []byte) error {
	if a.started != nil {
		a.started <- struct{}{}
		<-a.release
	}
	a.mu.Lock()
	a.calls = append(a.calls, fromStep)
	a.mu.Unlock()
	return a.failErr
}

func newTestOrchestrator(agent AgentRuntimeClient) (*Orchestrator, *repository.MemoryStateStore, *repository.MemoryCheckpointStore) {
	state := repository.NewMemoryStateStore()
	checkpoints := repository.NewMemoryCheckpointStore()
	orch := NewOrchestrator(state, checkpoints, agent, nil, nil, logging.NewLogger())
	return orch, state, checkpoints
}

func createRunning(t *testing.T, orch *Orchestrator, workflowID, tenantID string, totalSteps int) {
	t.Helper()
	ctx := context.Background()
	_, err := orch.CreateWorkflow(ctx, CreateWorkflowRequest{
		WorkflowID: workflowID,
		TenantID:   tenantID,
		TotalSteps: totalSteps,
	})
	assert.NoError(t, err)
	_, err = orch.Start(ctx, workflowID)
	assert.NoError(t, err)
}

func TestCreateWorkflow(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := newTestOrchestrator(&stubAgent{})

	t.Run("registers pending workflow", func(t *testing.T) {
		exec, err := orch.CreateWorkflow(ctx, CreateWorkflowRequest{TenantID: "t1", TotalSteps: 10})
		assert.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusPending, exec.Status)
		assert.NotEmpty(t, exec.WorkflowID)
		assert.NotEmpty(t, exec.ExecutionID)
		assert.Equal(t, 10, exec.TotalSteps)
	})

	t.Run("rejects missing tenant", func(t *testing.T) {
		_, err := orch.CreateWorkflow(ctx, CreateWorkflowRequest{TotalSteps: 3})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("rejects non-positive steps", func(t *testing.T) {
		_, err := orch.CreateWorkflow(ctx, CreateWorkflowRequest{TenantID: "t1"})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to running", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)

		exec, err := orch.GetStatus(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusRunning, exec.Status)
	})

	t.Run("double start rejected", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)

		_, err := orch.Start(ctx, "wf-1")
		assert.ErrorIs(t, err, models.ErrAlreadyRunning)
	})

	t.Run("complete sets full progress", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)

		exec, err := orch.Complete(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusCompleted, exec.Status)
		assert.Equal(t, 5, exec.CompletedSteps)
		assert.Equal(t, float64(100), exec.ProgressPercentage)
		assert.NotNil(t, exec.CompletedAt)
	})

	t.Run("fail records reason", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)

		exec, err := orch.Fail(ctx, "wf-1", "renderer crashed")
		assert.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusFailed, exec.Status)
		assert.Equal(t, "renderer crashed", exec.FailureReason)
	})

	t.Run("terminal states refuse further transitions", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)

		_, err := orch.Complete(ctx, "wf-1")
		assert.NoError(t, err)

		_, err = orch.Cancel(ctx, "wf-1")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		_, err = orch.Fail(ctx, "wf-1", "too late")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("cancel from pending rejected", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		_, err := orch.CreateWorkflow(ctx, CreateWorkflowRequest{WorkflowID: "wf-1", TenantID: "t1", TotalSteps: 5})
		assert.NoError(t, err)

		_, err = orch.Cancel(ctx, "wf-1")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestReportProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("advances counters and writes checkpoint", func(t *testing.T) {
		orch, _, checkpoints := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)

		exec, superseded, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{
			StepID:             3,
			CompletedSteps:     3,
			CurrentStep:        "draft-sections",
			ProgressPercentage: 30,
			Checkpoint:         true,
			Recoverable:        true,
			StepDetails:        []byte(`{"section":"intro"}`),
		})
		assert.NoError(t, err)
		assert.False(t, superseded)
		assert.Equal(t, 3, exec.CompletedSteps)
		assert.Equal(t, "draft-sections", exec.CurrentStep)

		cp, err := checkpoints.Get(ctx, "wf-1", 3)
		assert.NoError(t, err)
		assert.True(t, cp.IsRecoverable)
		assert.Equal(t, "draft-sections", cp.StepLabel)
	})

	t.Run("stale report discarded without mutation", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)

		_, _, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{StepID: 5, CompletedSteps: 5, CurrentStep: "render", ProgressPercentage: 50})
		assert.NoError(t, err)

		exec, superseded, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{StepID: 3, CompletedSteps: 3, CurrentStep: "outline", ProgressPercentage: 30})
		assert.NoError(t, err)
		assert.True(t, superseded)
		assert.Equal(t, 5, exec.CompletedSteps)
		assert.Equal(t, "render", exec.CurrentStep)
	})

	t.Run("duplicate report discarded", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)

		report := ProgressReport{StepID: 4, CompletedSteps: 4, ProgressPercentage: 40}
		_, superseded, err := orch.ReportProgress(ctx, "wf-1", report)
		assert.NoError(t, err)
		assert.False(t, superseded)

		_, superseded, err = orch.ReportProgress(ctx, "wf-1", report)
		assert.NoError(t, err)
		assert.True(t, superseded)
	})

	t.Run("report for non-running workflow discarded", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)
		_, err := orch.Cancel(ctx, "wf-1")
		assert.NoError(t, err)

		exec, superseded, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{StepID: 6, CompletedSteps: 6, ProgressPercentage: 60})
		assert.NoError(t, err)
		assert.True(t, superseded)
		assert.Equal(t, models.WorkflowStatusCancelled, exec.Status)
	})

	t.Run("out-of-range percentage rejected", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)

		_, _, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{StepID: 1, CompletedSteps: 1, ProgressPercentage: 140})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	// Drive a ten-step workflow to a failure at step five, then recover it.
	failAtFive := func(t *testing.T, orch *Orchestrator) {
		t.Helper()
		createRunning(t, orch, "wf-1", "t1", 10)
		for step := 1; step <= 5; step++ {
			_, _, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{
				StepID:             step,
				CompletedSteps:     step,
				CurrentStep:        "step",
				ProgressPercentage: float64(step) * 10,
				Checkpoint:         true,
				Recoverable:        true,
			})
			assert.NoError(t, err)
		}
		_, err := orch.Fail(ctx, "wf-1", "runtime lost")
		assert.NoError(t, err)
	}

	t.Run("resumes from latest checkpoint with new execution id", func(t *testing.T) {
		agent := &stubAgent{}
		orch, _, _ := newTestOrchestrator(agent)
		failAtFive(t, orch)

		before, err := orch.GetStatus(ctx, "wf-1")
		assert.NoError(t, err)

		result, err := orch.Recover(ctx, "wf-1", nil)
		assert.NoError(t, err)
		assert.Equal(t, 5, result.RecoveredFrom)
		assert.NotEqual(t, before.ExecutionID, result.ExecutionID)
		assert.Len(t, result.AvailableCheckpoints, 5)
		assert.Equal(t, []int{5}, agent.calls)

		after, err := orch.GetStatus(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusRunning, after.Status)
		assert.Equal(t, 5, after.CompletedSteps)
		assert.Equal(t, float64(50), after.ProgressPercentage)
		assert.Empty(t, after.FailureReason)
		assert.Nil(t, after.CompletedAt)
	})

	t.Run("explicit checkpoint", func(t *testing.T) {
		agent := &stubAgent{}
		orch, _, _ := newTestOrchestrator(agent)
		failAtFive(t, orch)

		from := 3
		result, err := orch.Recover(ctx, "wf-1", &from)
		assert.NoError(t, err)
		assert.Equal(t, 3, result.RecoveredFrom)
		assert.Equal(t, []int{3}, agent.calls)
	})

	t.Run("missing explicit checkpoint rejected", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		failAtFive(t, orch)

		from := 42
		_, err := orch.Recover(ctx, "wf-1", &from)
		assert.ErrorIs(t, err, models.ErrCheckpointNotFound)
	})

	t.Run("non-recoverable explicit checkpoint rejected", func(t *testing.T) {
		orch, _, checkpoints := newTestOrchestrator(&stubAgent{})
		failAtFive(t, orch)
		err := checkpoints.Append(ctx, &models.Checkpoint{WorkflowID: "wf-1", StepID: 6, IsRecoverable: false})
		assert.NoError(t, err)

		from := 6
		_, err = orch.Recover(ctx, "wf-1", &from)
		assert.ErrorIs(t, err, models.ErrCheckpointNotFound)
	})

	t.Run("re-executed steps advance past existing checkpoints", func(t *testing.T) {
		agent := &stubAgent{}
		orch, _, checkpoints := newTestOrchestrator(agent)
		failAtFive(t, orch)

		from := 3
		_, err := orch.Recover(ctx, "wf-1", &from)
		assert.NoError(t, err)

		// Step 4 re-executes after the rewind; its checkpoint already
		// exists from the first run but progress must still apply.
		exec, superseded, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{
			StepID:             4,
			CompletedSteps:     4,
			CurrentStep:        "step",
			ProgressPercentage: 40,
			Checkpoint:         true,
			Recoverable:        true,
		})
		assert.NoError(t, err)
		assert.False(t, superseded)
		assert.Equal(t, 4, exec.CompletedSteps)

		list, err := checkpoints.List(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Len(t, list, 5)
	})

	t.Run("running workflow not recoverable", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)

		_, err := orch.Recover(ctx, "wf-1", nil)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("completed workflow not recoverable", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)
		_, err := orch.Complete(ctx, "wf-1")
		assert.NoError(t, err)

		_, err = orch.Recover(ctx, "wf-1", nil)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("no recoverable checkpoint", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 10)
		_, err := orch.Fail(ctx, "wf-1", "early crash")
		assert.NoError(t, err)

		_, err = orch.Recover(ctx, "wf-1", nil)
		assert.ErrorIs(t, err, models.ErrNoRecoverableCheckpoint)
	})

	t.Run("unreachable runtime leaves workflow recoverable", func(t *testing.T) {
		agent := &stubAgent{failErr: models.ErrServiceUnavailable}
		orch, _, _ := newTestOrchestrator(agent)
		failAtFive(t, orch)

		_, err := orch.Recover(ctx, "wf-1", nil)
		assert.ErrorIs(t, err, models.ErrServiceUnavailable)

		exec, err := orch.GetStatus(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusFailed, exec.Status)
	})

	t.Run("concurrent recovery admits exactly one", func(t *testing.T) {
		agent := &stubAgent{
			started: make(chan struct{}, 1),
			release: make(chan struct{}),
		}
		orch, _, _ := newTestOrchestrator(agent)
		failAtFive(t, orch)

		firstErr := make(chan error, 1)
		go func() {
			_, err := orch.Recover(ctx, "wf-1", nil)
			firstErr <- err
		}()

		// Wait until the first attempt is inside the agent call, then race
		// the second attempt against it.
		<-agent.started
		_, err := orch.Recover(ctx, "wf-1", nil)
		assert.ErrorIs(t, err, models.ErrRecoveryInProgress)

		close(agent.release)
		assert.NoError(t, <-firstErr)

		exec, err := orch.GetStatus(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusRunning, exec.Status)
	})
}

func TestGetRecoveryInfo(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := newTestOrchestrator(&stubAgent{})
	createRunning(t, orch, "wf-1", "t1", 10)

	_, _, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{
		StepID: 2, CompletedSteps: 2, ProgressPercentage: 20, Checkpoint: true, Recoverable: true,
	})
	assert.NoError(t, err)

	t.Run("running workflow lists checkpoints but is not recoverable", func(t *testing.T) {
		info, err := orch.GetRecoveryInfo(ctx, "wf-1")
		assert.NoError(t, err)
		assert.False(t, info.IsRecoverable)
		assert.Len(t, info.Checkpoints, 1)
		assert.Equal(t, 2, info.LatestCheckpoint.StepID)
	})

	t.Run("failed workflow is recoverable", func(t *testing.T) {
		_, err := orch.Fail(ctx, "wf-1", "crash")
		assert.NoError(t, err)

		info, err := orch.GetRecoveryInfo(ctx, "wf-1")
		assert.NoError(t, err)
		assert.True(t, info.IsRecoverable)
	})
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := newTestOrchestrator(&stubAgent{})
	createRunning(t, orch, "wf-1", "t1", 10)

	_, err := orch.AssertTenant(ctx, "wf-1", "t1")
	assert.NoError(t, err)

	_, err = orch.AssertTenant(ctx, "wf-1", "t2")
	assert.ErrorIs(t, err, models.ErrAccessDenied)

	_, err = orch.AssertTenant(ctx, "missing", "t1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTenantStats(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := newTestOrchestrator(&stubAgent{})

	createRunning(t, orch, "wf-a", "t1", 5)
	_, err := orch.Complete(ctx, "wf-a")
	assert.NoError(t, err)

	createRunning(t, orch, "wf-b", "t1", 5)
	_, err = orch.Fail(ctx, "wf-b", "crash")
	assert.NoError(t, err)

	createRunning(t, orch, "wf-c", "t1", 5)
	createRunning(t, orch, "wf-other", "t2", 5)

	stats, err := orch.TenantStats(ctx, "t1")
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0.5, stats.SuccessRate)
}

func TestArchiveWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("removes state and checkpoints", func(t *testing.T) {
		orch, _, checkpoints := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)
		_, _, err := orch.ReportProgress(ctx, "wf-1", ProgressReport{
			StepID: 1, CompletedSteps: 1, ProgressPercentage: 20, Checkpoint: true, Recoverable: true,
		})
		assert.NoError(t, err)
		_, err = orch.Complete(ctx, "wf-1")
		assert.NoError(t, err)

		assert.NoError(t, orch.ArchiveWorkflow(ctx, "wf-1", "t1"))

		_, err = orch.GetStatus(ctx, "wf-1")
		assert.ErrorIs(t, err, models.ErrNotFound)
		list, err := checkpoints.List(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Empty(t, list)

		orch.locksMu.Lock()
		_, held := orch.locks["wf-1"]
		orch.locksMu.Unlock()
		assert.False(t, held, "lock entry should not outlive the workflow")
	})

	t.Run("running workflow cannot be archived", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)

		err := orch.ArchiveWorkflow(ctx, "wf-1", "t1")
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("foreign tenant denied", func(t *testing.T) {
		orch, _, _ := newTestOrchestrator(&stubAgent{})
		createRunning(t, orch, "wf-1", "t1", 5)

		err := orch.ArchiveWorkflow(ctx, "wf-1", "t2")
		assert.ErrorIs(t, err, models.ErrAccessDenied)
	})
}
