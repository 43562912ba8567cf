package orchestrator

import (
	"strings"
	"testing"

	"github.com/shaiso/dagflow/internal/domain"
)

func diamondDef() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		ID: "diamond",
		Steps: []domain.StepDefinition{
			{ID: "A", Kind: domain.StepKindAction},
			{ID: "B", Kind: domain.StepKindAction, DependsOn: []string{"A"}},
			{ID: "C", Kind: domain.StepKindAction, DependsOn: []string{"A"}},
			{ID: "D", Kind: domain.StepKindAction, DependsOn: []string{"B", "C"}},
		},
	}
}

// --- ExecutionState Tests ---

func TestNewExecutionState(t *testing.T) {
	def := diamondDef()
	def.Variables = map[string]any{"env": "dev", "region": "eu"}

	state := NewExecutionState(def, map[string]any{"env": "prod"})
	snap := state.Snapshot()

	if snap.Status != domain.ExecutionStatusPending {
		t.Errorf("expected pending, got %s", snap.Status)
	}
	if len(snap.Steps) != 4 {
		t.Fatalf("expected 4 step executions, got %d", len(snap.Steps))
	}
	for i, step := range snap.Steps {
		if step.StepID != def.Steps[i].ID {
			t.Errorf("step %d: expected %s, got %s", i, def.Steps[i].ID, step.StepID)
		}
		if step.Status != domain.StepStatusPending {
			t.Errorf("step %s should be pending", step.StepID)
		}
	}
	if snap.Variables["env"] != "prod" || snap.Variables["region"] != "eu" {
		t.Errorf("caller variables should override defaults: %v", snap.Variables)
	}
	if state.DAG == nil || state.DAG.Size() != 4 {
		t.Error("DAG should be built")
	}
}

func TestExecutionState_StepLifecycle(t *testing.T) {
	state := NewExecutionState(diamondDef(), nil)

	if state.MarkStepRunning("A") {
		t.Fatal("step must not run before execution is running")
	}
	if !state.Begin() {
		t.Fatal("Begin should succeed from pending")
	}
	if state.Begin() {
		t.Error("Begin should fail when already running")
	}

	ready := state.GetReadySteps()
	if len(ready) != 1 || ready[0].ID != "A" {
		t.Fatalf("expected [A] ready, got %d nodes", len(ready))
	}

	if !state.MarkStepRunning("A") {
		t.Fatal("A should move to running")
	}
	if state.MarkStepRunning("A") {
		t.Error("A must not be started twice")
	}
	if len(state.GetReadySteps()) != 0 {
		t.Error("nothing should be ready while A runs")
	}

	state.MarkStepCompleted("A", map[string]any{"ok": true})

	if got := len(state.GetReadySteps()); got != 2 {
		t.Errorf("expected B and C ready, got %d", got)
	}

	stats := state.Stats()
	if stats.CompletedSteps != 1 || stats.PendingSteps != 3 || stats.TotalSteps != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	snap := state.Snapshot()
	step, _ := snap.Step("A")
	if step.Status != domain.StepStatusCompleted || step.StartedAt == nil || step.CompletedAt == nil {
		t.Errorf("A should be completed with timestamps: %+v", step)
	}
}

func TestExecutionState_StepFailureFailsExecution(t *testing.T) {
	state := NewExecutionState(diamondDef(), nil)
	state.Begin()
	state.MarkStepRunning("A")

	if !state.MarkStepFailed("A", "boom") {
		t.Fatal("first failure should fail the execution")
	}

	snap := state.Snapshot()
	if snap.Status != domain.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", snap.Status)
	}
	if snap.FailureKind != domain.FailureStepExecution {
		t.Errorf("expected StepExecutionError, got %s", snap.FailureKind)
	}
	if !strings.Contains(snap.Error, "boom") || !strings.Contains(snap.Error, "A") {
		t.Errorf("error should mention step and cause: %q", snap.Error)
	}
	if snap.CompletedAt == nil {
		t.Error("completion timestamp should be set")
	}
	if state.MarkStepRunning("B") {
		t.Error("no step may start after the execution failed")
	}
}

func TestExecutionState_CancelOnlyWhenRunning(t *testing.T) {
	state := NewExecutionState(diamondDef(), nil)

	if state.Cancel() {
		t.Error("pending execution must not be cancelled")
	}

	state.Begin()
	if !state.Cancel() {
		t.Fatal("running execution should be cancelled")
	}
	if state.Cancel() {
		t.Error("second cancel should be a no-op")
	}

	select {
	case <-state.cancelled:
	default:
		t.Error("cancel channel should be closed")
	}

	if state.MarkStepRunning("A") {
		t.Error("no step may start after cancellation")
	}
}

func TestExecutionState_LateOutcomeKeepsStatus(t *testing.T) {
	state := NewExecutionState(diamondDef(), nil)
	state.Begin()
	state.MarkStepRunning("A")
	state.Cancel()

	state.MarkStepCompleted("A", "late")

	snap := state.Snapshot()
	if snap.Status != domain.ExecutionStatusCancelled {
		t.Errorf("late outcome must not change execution status, got %s", snap.Status)
	}
	step, _ := snap.Step("A")
	if step.Status != domain.StepStatusCompleted || step.Output != "late" {
		t.Errorf("late outcome should be recorded: %+v", step)
	}
}

func TestExecutionState_SnapshotIsolation(t *testing.T) {
	state := NewExecutionState(diamondDef(), map[string]any{"k": "v"})

	snap := state.Snapshot()
	snap.Steps[0].Status = domain.StepStatusFailed
	snap.Variables["k"] = "mutated"

	again := state.Snapshot()
	if again.Steps[0].Status != domain.StepStatusPending {
		t.Error("snapshot must not share steps with state")
	}
	if again.Variables["k"] != "v" {
		t.Error("snapshot must not share variables with state")
	}
}

func TestExecutionState_Diagnose(t *testing.T) {
	def := domain.WorkflowDefinition{
		ID: "cycle2",
		Steps: []domain.StepDefinition{
			{ID: "X", DependsOn: []string{"Y"}},
			{ID: "Y", DependsOn: []string{"X"}},
		},
	}
	state := NewExecutionState(def, nil)

	diag := state.Diagnose()
	if len(diag.Cyclic) != 2 {
		t.Errorf("expected both steps on cycle, got %v", diag.Cyclic)
	}
}
