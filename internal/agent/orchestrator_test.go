package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/codemate/internal/codegen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(kind StepKind, desc string) Step {
	return Step{Kind: kind, Description: desc, Parameters: map[string]any{}}
}

func newTestOrchestrator(policy AutoExecPolicy, plan Plan, executors ...Executor) *Orchestrator {
	reg := NewRegistry()
	for _, e := range executors {
		reg.Register(e)
	}
	o := NewOrchestrator(fixedPlanner{plan}, reg, NewMemory(10, nil), policy, nil, nil)
	o.NewID = func() string { return "task-1" }
	return o
}

// generating returns a code generation stub whose output asks to be run.
func generating(path string) *stubExecutor {
	return &stubExecutor{kind: KindCodeGeneration, run: func(map[string]any, *ExecutionContext) (StepOutcome, error) {
		return StepOutcome{
			Success:        true,
			Message:        "generated " + path,
			Artifact:       &GeneratedFile{Path: path, Language: "python"},
			ExecuteRequest: true,
		}, nil
	}}
}

// running returns a file execution stub that marks the run as performed.
func running() *stubExecutor {
	return &stubExecutor{kind: KindFileExecution, run: func(params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
		ec.ExecutionPerformed = true
		ec.PendingExecution = nil
		return StepOutcome{Success: true, Message: "ran"}, nil
	}}
}

func TestOrchestrator_CompilationFailureStopsPlan(t *testing.T) {
	compile := &stubExecutor{kind: KindCompilation, run: func(map[string]any, *ExecutionContext) (StepOutcome, error) {
		return failure("compilation of main.c failed:\nmain.c:3: error: expected ';'"), nil
	}}
	run := &stubExecutor{kind: KindCompiledRun}
	plan := Plan{Steps: []Step{step(KindCompilation, "compile"), step(KindCompiledRun, "run")}}

	rec := newTestOrchestrator(AutoExecDefer, plan, compile, run).Run(context.Background(), "", "compile and run main.c")

	require.Len(t, rec.Results, 1)
	assert.Empty(t, run.calls)
	assert.Equal(t, "compilation of main.c failed:\nmain.c:3: error: expected ';'", rec.FinalResult)
}

func TestOrchestrator_OtherFailuresContinue(t *testing.T) {
	search := &stubExecutor{kind: KindSearch, run: func(map[string]any, *ExecutionContext) (StepOutcome, error) {
		return failure("no search results"), nil
	}}
	gen := &stubExecutor{kind: KindCodeGeneration}
	plan := Plan{Steps: []Step{step(KindSearch, "look it up"), step(KindCodeGeneration, "write it")}}

	report := newTestOrchestrator(AutoExecDefer, plan, search, gen).RunTask(context.Background(), "task")

	assert.Len(t, gen.calls, 1)
	assert.Contains(t, report, "== Step 1: look it up (FAILED) ==\nno search results")
	assert.Contains(t, report, "== Step 2: write it (success) ==\ncode_generation done")
}

func TestOrchestrator_ExecutorErrorsAndPanics(t *testing.T) {
	search := &stubExecutor{kind: KindSearch, run: func(map[string]any, *ExecutionContext) (StepOutcome, error) {
		panic("boom")
	}}
	files := &stubExecutor{kind: KindFileManagement, run: func(map[string]any, *ExecutionContext) (StepOutcome, error) {
		return StepOutcome{}, ErrMissingParameter
	}}
	dir := &stubExecutor{kind: KindDirectoryExploration}
	plan := Plan{Steps: []Step{
		step(KindSearch, "search"),
		step(KindFileManagement, "files"),
		step(KindDirectoryExploration, "list"),
	}}

	rec := newTestOrchestrator(AutoExecDefer, plan, search, files, dir).Run(context.Background(), "", "task")

	require.Len(t, rec.Results, 3)
	assert.False(t, rec.Results[0].Outcome.Success)
	assert.Equal(t, "search step crashed: boom", rec.Results[0].Outcome.Message)
	assert.Equal(t, "file_management step failed: missing required parameter", rec.Results[1].Outcome.Message)
	assert.True(t, rec.Results[2].Outcome.Success)
}

func TestOrchestrator_AutoExecPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     AutoExecPolicy
		steps      []Step
		wantRuns   int
		wantKinds  []StepKind
		synthetics []bool
	}{
		{
			name:       "defer runs when nothing follows",
			policy:     AutoExecDefer,
			steps:      []Step{step(KindCodeGeneration, "gen")},
			wantRuns:   1,
			wantKinds:  []StepKind{KindCodeGeneration, KindFileExecution},
			synthetics: []bool{false, true},
		},
		{
			name:       "defer runs before another kind",
			policy:     AutoExecDefer,
			steps:      []Step{step(KindCodeGeneration, "gen"), step(KindDirectoryExploration, "list")},
			wantRuns:   1,
			wantKinds:  []StepKind{KindCodeGeneration, KindFileExecution, KindDirectoryExploration},
			synthetics: []bool{false, true, false},
		},
		{
			name:       "defer leaves it to the planned run",
			policy:     AutoExecDefer,
			steps:      []Step{step(KindCodeGeneration, "gen"), step(KindFileExecution, "run")},
			wantRuns:   1,
			wantKinds:  []StepKind{KindCodeGeneration, KindFileExecution},
			synthetics: []bool{false, false},
		},
		{
			name:       "always runs even before a planned run",
			policy:     AutoExecAlways,
			steps:      []Step{step(KindCodeGeneration, "gen"), step(KindFileExecution, "run")},
			wantRuns:   2,
			wantKinds:  []StepKind{KindCodeGeneration, KindFileExecution, KindFileExecution},
			synthetics: []bool{false, true, false},
		},
		{
			name:       "never",
			policy:     AutoExecNever,
			steps:      []Step{step(KindCodeGeneration, "gen")},
			wantRuns:   0,
			wantKinds:  []StepKind{KindCodeGeneration},
			synthetics: []bool{false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := running()
			rec := newTestOrchestrator(tt.policy, Plan{Steps: tt.steps},
				generating("/tmp/python_code.py"), run, &stubExecutor{kind: KindDirectoryExploration},
			).Run(context.Background(), "", "write code and run it")

			assert.Len(t, run.calls, tt.wantRuns)
			var gotKinds []StepKind
			var gotSynthetic []bool
			for _, r := range rec.Results {
				gotKinds = append(gotKinds, r.Kind)
				gotSynthetic = append(gotSynthetic, r.Synthetic)
			}
			assert.Equal(t, tt.wantKinds, gotKinds)
			assert.Equal(t, tt.synthetics, gotSynthetic)
		})
	}
}

func TestOrchestrator_SyntheticRunUsesArtifact(t *testing.T) {
	run := running()
	rec := newTestOrchestrator(AutoExecDefer, Plan{Steps: []Step{step(KindCodeGeneration, "gen"), step(KindCodeGeneration, "gen again")}},
		generating("/tmp/a.py"), run,
	).Run(context.Background(), "", "write code and run it")

	require.Len(t, run.calls, 2)
	assert.Equal(t, map[string]any{"file_path": "/tmp/a.py"}, run.calls[0])
	assert.Contains(t, rec.FinalResult, "(auto, success)")
}

func TestOrchestrator_PendingRunAtEndOfPlan(t *testing.T) {
	var calls int
	run := &stubExecutor{kind: KindFileExecution, run: func(_ map[string]any, ec *ExecutionContext) (StepOutcome, error) {
		calls++
		if calls == 1 {
			// fails before anything runs
			return failure("file not found: other.py"), nil
		}
		ec.ExecutionPerformed = true
		return StepOutcome{Success: true, Message: "ran"}, nil
	}}
	plan := Plan{Steps: []Step{step(KindCodeGeneration, "gen"), {Kind: KindFileExecution, Description: "run", Parameters: map[string]any{"file_path": "other.py"}}}}

	rec := newTestOrchestrator(AutoExecDefer, plan, generating("/tmp/a.py"), run).Run(context.Background(), "", "task")

	require.Len(t, rec.Results, 3)
	assert.False(t, rec.Results[1].Synthetic)
	assert.True(t, rec.Results[2].Synthetic)
	assert.True(t, rec.Results[2].Outcome.Success)
}

func TestOrchestrator_FailedGenerationIsNotRun(t *testing.T) {
	gen := &stubExecutor{kind: KindCodeGeneration, run: func(map[string]any, *ExecutionContext) (StepOutcome, error) {
		return failure("code generation failed (failed_safety): rejected"), nil
	}}
	run := running()

	rec := newTestOrchestrator(AutoExecAlways, Plan{Steps: []Step{step(KindCodeGeneration, "gen")}}, gen, run).
		Run(context.Background(), "", "write code and run it")

	assert.Empty(t, run.calls)
	assert.Equal(t, "code generation failed (failed_safety): rejected", rec.FinalResult)
}

func TestOrchestrator_RecordsMemory(t *testing.T) {
	o := newTestOrchestrator(AutoExecDefer, Plan{Steps: []Step{step(KindSearch, "s")}, Source: SourcePattern}, &stubExecutor{kind: KindSearch})

	rec := o.Run(context.Background(), "chat-1", "look this up")

	records := o.Memory.Records()
	require.Len(t, records, 1)
	assert.Equal(t, rec, records[0])
	assert.Equal(t, "task-1", records[0].ID)
	assert.Equal(t, "chat-1", records[0].ChatID)
	assert.Equal(t, "search done", records[0].FinalResult)
}

func TestOrchestrator_EmptyPlan(t *testing.T) {
	report := newTestOrchestrator(AutoExecDefer, Plan{}).RunTask(context.Background(), "nothing")
	assert.Equal(t, "No steps were executed.", report)
}

func TestParseAutoExecPolicy(t *testing.T) {
	for in, want := range map[string]AutoExecPolicy{"": AutoExecDefer, "DEFER": AutoExecDefer, " always ": AutoExecAlways, "never": AutoExecNever} {
		got, err := ParseAutoExecPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseAutoExecPolicy("sometimes")
	assert.Error(t, err)
}

type failingArchive struct{}

func (failingArchive) Archive(context.Context, TaskRecord) error { return errors.New("disk full") }

func TestOrchestrator_ArchiveFailureKeepsReport(t *testing.T) {
	o := newTestOrchestrator(AutoExecDefer, Plan{Steps: []Step{step(KindSearch, "s")}}, &stubExecutor{kind: KindSearch})
	o.Memory = NewMemory(2, failingArchive{})

	report := o.RunTask(context.Background(), "task")
	assert.Equal(t, "search done", report)
	assert.Equal(t, 1, o.Memory.Len())
	assert.False(t, strings.Contains(report, "disk full"))
}

func TestOrchestrator_FailedInstallDoesNotRun(t *testing.T) {
	src := writeSource(t, "gen.py", "import numpy")
	gen := &fakeGenerator{generated: codegen.Result{
		Status: codegen.StatusSuccess, Code: "import numpy", Language: "python", SavedPath: src,
		ExecuteRequested: true, RequiredPackages: []string{"numpy"},
	}}
	runner := &fakeRunner{installResult: failed("ERROR: No matching distribution found for numpy")}
	plan := Plan{Steps: []Step{step(KindCodeGeneration, "write it"), step(KindFileExecution, "run it")}}

	for _, policy := range []AutoExecPolicy{AutoExecDefer, AutoExecAlways} {
		runner.fileCalls = nil
		rec := newTestOrchestrator(policy, plan,
			&CodeGenExecutor{Generator: gen, Runner: runner},
			&FileExecutionExecutor{Runner: runner, Generator: gen},
		).Run(context.Background(), "", "write python code with numpy and run it")

		assert.Empty(t, runner.fileCalls, policy)
		require.Len(t, rec.Results, 2, policy)
		assert.False(t, rec.Results[1].Outcome.Success)
		assert.Contains(t, rec.Results[1].Outcome.Message, "no file to run")
	}
}
