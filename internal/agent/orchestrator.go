package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/codemate/internal/metrics"
	"github.com/rahul/codemate/internal/observability"
	"go.uber.org/zap"
)

// AutoExecPolicy decides when generated code the request asked to run gets
// an execution step that the plan did not contain.
type AutoExecPolicy string

const (
	// AutoExecDefer runs it right away unless the next planned step is a file execution.
	AutoExecDefer AutoExecPolicy = "defer"
	// AutoExecAlways runs it right after generation even if a file execution follows.
	AutoExecAlways AutoExecPolicy = "always"
	// AutoExecNever only runs code through planned steps.
	AutoExecNever AutoExecPolicy = "never"
)

func ParseAutoExecPolicy(s string) (AutoExecPolicy, error) {
	switch p := AutoExecPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return AutoExecDefer, nil
	case AutoExecDefer, AutoExecAlways, AutoExecNever:
		return p, nil
	default:
		return "", fmt.Errorf("unknown auto exec policy %q", s)
	}
}

// PlanMaker is what the orchestrator needs from the planner.
type PlanMaker interface {
	Plan(ctx context.Context, task string) Plan
}

// Orchestrator runs plans one step at a time and reports the combined result.
type Orchestrator struct {
	Planner  PlanMaker
	Registry *Registry
	Memory   *Memory
	Policy   AutoExecPolicy
	Logger   *observability.Logger
	Metrics  *metrics.Metrics
	NewID    func() string
}

func NewOrchestrator(planner PlanMaker, registry *Registry, memory *Memory, policy AutoExecPolicy, logger *observability.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = observability.NewNop()
	}
	if policy == "" {
		policy = AutoExecDefer
	}
	return &Orchestrator{
		Planner:  planner,
		Registry: registry,
		Memory:   memory,
		Policy:   policy,
		Logger:   logger,
		Metrics:  m,
		NewID:    uuid.NewString,
	}
}

// RunTask plans and executes task and returns the report. Step failures are
// part of the report; RunTask itself never fails.
func (o *Orchestrator) RunTask(ctx context.Context, task string) string {
	return o.Run(ctx, "", task).FinalResult
}

// Run is RunTask returning the full record.
func (o *Orchestrator) Run(ctx context.Context, chatID, task string) TaskRecord {
	start := time.Now()
	id := o.NewID()

	observability.SetStatus(observability.RolePlanning, task)
	defer observability.TaskFinished()

	plan := o.Planner.Plan(ctx, task)
	o.Metrics.PlanBuilt(string(plan.Source))
	o.Logger.LogPlan(id, string(plan.Source), plan.Steps)

	observability.SetStatus(observability.RoleExecuting, task)
	ec := NewExecutionContext(id, task, &plan)
	records := o.execute(ctx, &plan, ec)

	final := FormatResults(records)
	rec := TaskRecord{
		ID:          id,
		ChatID:      chatID,
		Task:        task,
		Plan:        plan,
		Results:     records,
		FinalResult: final,
		Timestamp:   start,
	}
	if o.Memory != nil {
		if err := o.Memory.Add(ctx, rec); err != nil {
			o.Logger.Warn("failed to archive task", zap.String("task_id", id), zap.Error(err))
		}
		o.Logger.Log(observability.Event{
			Type:   observability.EventTypeMemory,
			ChatID: chatID,
			TaskID: id,
			Data:   map[string]int{"records": o.Memory.Len()},
		})
	}
	o.Metrics.TaskFinished(time.Since(start))
	return rec
}

func (o *Orchestrator) execute(ctx context.Context, plan *Plan, ec *ExecutionContext) []StepRecord {
	var records []StepRecord
	for i := 0; i < len(plan.Steps); i++ {
		ec.CurrentStepIndex = i
		step := plan.Steps[i]
		rec := o.runStep(ctx, len(records), step, ec, false)
		records = append(records, rec)

		if step.Kind == KindCompilation && !rec.Outcome.Success {
			o.Logger.Warn("compilation failed, stopping plan",
				zap.String("task_id", ec.TaskID), zap.Int("remaining", len(plan.Steps)-i-1))
			return records
		}

		out := rec.Outcome
		if step.Kind == KindCodeGeneration && out.Success && out.ExecuteRequest && out.Artifact != nil {
			pending := *out.Artifact
			ec.PendingExecution = &pending
			ec.ExecutionPerformed = false
			if o.synthesizeNow(plan, i) {
				records = append(records, o.runSynthetic(ctx, len(records), ec))
			}
		}
	}

	if o.Policy != AutoExecNever && ec.PendingExecution != nil && !ec.ExecutionPerformed {
		records = append(records, o.runSynthetic(ctx, len(records), ec))
	}
	return records
}

func (o *Orchestrator) synthesizeNow(plan *Plan, i int) bool {
	switch o.Policy {
	case AutoExecNever:
		return false
	case AutoExecAlways:
		return true
	}
	next := i + 1
	return next >= len(plan.Steps) || plan.Steps[next].Kind != KindFileExecution
}

func (o *Orchestrator) runSynthetic(ctx context.Context, index int, ec *ExecutionContext) StepRecord {
	step := Step{
		Kind:        KindFileExecution,
		Description: "run the generated code",
		Parameters:  map[string]any{"file_path": ec.PendingExecution.Path},
	}
	return o.runStep(ctx, index, step, ec, true)
}

// runStep executes one step. Errors and panics become failed outcomes.
func (o *Orchestrator) runStep(ctx context.Context, index int, step Step, ec *ExecutionContext, synthetic bool) (rec StepRecord) {
	start := time.Now()
	rec = StepRecord{Index: index, Kind: step.Kind, Description: step.Description, Synthetic: synthetic}

	defer func() {
		if r := recover(); r != nil {
			o.Logger.Error("step panicked", zap.String("task_id", ec.TaskID), zap.String("kind", string(step.Kind)), zap.Any("panic", r))
			rec.Outcome = failure("%s step crashed: %v", step.Kind, r)
		}
		rec.Duration = time.Since(start)
		o.Logger.LogStep(ec.TaskID, index, string(step.Kind), rec.Outcome.Success, synthetic)
		o.Metrics.StepFinished(string(step.Kind), rec.Outcome.Success, synthetic)
	}()

	exec, ok := o.Registry.Get(step.Kind)
	if !ok {
		rec.Outcome = failure("no executor for step kind %q", step.Kind)
		return rec
	}

	o.Logger.LogToolCall(ec.TaskID, string(step.Kind), step.Parameters)
	out, err := exec.Execute(ctx, step.Parameters, ec)
	if err != nil {
		out = failure("%s step failed: %v", step.Kind, err)
	}
	rec.Outcome = out
	return rec
}
