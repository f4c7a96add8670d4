package agent

import (
	"fmt"
	"strings"
	"time"
)

// StepKind is the closed set of actions a plan can contain.
type StepKind string

const (
	KindSearch               StepKind = "search"
	KindCodeGeneration       StepKind = "code_generation"
	KindFileExecution        StepKind = "file_execution"
	KindCodeBlockExecution   StepKind = "code_block_execution"
	KindCompilation          StepKind = "compilation"
	KindCompiledRun          StepKind = "compiled_run"
	KindDirectoryExploration StepKind = "directory_exploration"
	KindFileManagement       StepKind = "file_management"
)

var AllKinds = []StepKind{
	KindSearch, KindCodeGeneration, KindFileExecution, KindCodeBlockExecution,
	KindCompilation, KindCompiledRun, KindDirectoryExploration, KindFileManagement,
}

// ParseStepKind accepts "file_execution", "FILE_EXECUTION" and "file-execution".
func ParseStepKind(s string) (StepKind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, k := range AllKinds {
		if string(k) == norm {
			return k, true
		}
	}
	return StepKind(norm), false
}

// Step is one planned action. Parameters stay a loose map until the executor decodes them.
type Step struct {
	Kind        StepKind       `json:"kind"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type PlanSource string

const (
	SourcePattern  PlanSource = "pattern"
	SourceLLM      PlanSource = "llm"
	SourceFallback PlanSource = "fallback"
)

// Plan is the ordered list of steps for one request.
type Plan struct {
	Steps  []Step     `json:"steps"`
	Source PlanSource `json:"source"`
}

// GeneratedFile is code written by a code generation step.
type GeneratedFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
}

// CompiledFile links a source file to the binary built from it.
type CompiledFile struct {
	OriginalPath string `json:"original_path"`
	OutputPath   string `json:"output_path"`
	Language     string `json:"language"`
}

// ExecutionContext is the state shared by the steps of one run. It belongs to
// the orchestrator; executors must not keep it after Execute returns.
type ExecutionContext struct {
	TaskID           string
	OriginalTask     string
	Plan             *Plan
	CurrentStepIndex int

	// PendingExecution is generated code the request asked to run and that has not run yet.
	// FILE_EXECUTION without a path runs only this, never LastGenerated.
	PendingExecution *GeneratedFile
	LastGenerated    *GeneratedFile
	SearchSummary    string

	// CorrectionAttempts never exceeds 1 for any path.
	CorrectionAttempts map[string]int
	CompiledFile       *CompiledFile
	ExecutionPerformed bool
}

func NewExecutionContext(taskID, task string, plan *Plan) *ExecutionContext {
	return &ExecutionContext{
		TaskID:             taskID,
		OriginalTask:       task,
		Plan:               plan,
		CorrectionAttempts: map[string]int{},
	}
}

// StepOutcome is what an executor reports. Data carries step specific
// details such as sources or the corrected flag.
type StepOutcome struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	Artifact       *GeneratedFile `json:"artifact,omitempty"`
	ExecuteRequest bool           `json:"execute_request,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func failure(format string, args ...any) StepOutcome {
	return StepOutcome{Success: false, Message: fmt.Sprintf(format, args...)}
}

// StepRecord is one executed step as it appears in the report and the archive.
type StepRecord struct {
	Index       int           `json:"index"`
	Kind        StepKind      `json:"kind"`
	Description string        `json:"description"`
	Synthetic   bool          `json:"synthetic,omitempty"`
	Outcome     StepOutcome   `json:"outcome"`
	Duration    time.Duration `json:"duration"`
}
