package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rahul/codemate/internal/metrics"
	"github.com/rahul/codemate/internal/observability"
	"github.com/rahul/codemate/internal/tools"
	"go.uber.org/zap"
)

// FileExecutionExecutor runs a source file. When the first run fails with a
// code defect it asks for one corrected version, swaps it in and runs again.
type FileExecutionExecutor struct {
	Runner    Runner
	Generator CodeGenerator
	Logger    *observability.Logger
	Metrics   *metrics.Metrics
}

type fileExecParams struct {
	FilePath string `mapstructure:"file_path"`
}

func (e *FileExecutionExecutor) Kind() StepKind { return KindFileExecution }

func (e *FileExecutionExecutor) Description() string {
	return "Run a source file, fixing it once if it fails with a code error"
}

func (e *FileExecutionExecutor) Parameters() map[string]any {
	return schema(nil, map[string]any{
		"file_path": str("File to run. Leave empty to run code generated by an earlier step of this request."),
	})
}

func (e *FileExecutionExecutor) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
	var p fileExecParams
	if err := decodeParams(params, &p); err != nil {
		return StepOutcome{}, err
	}

	path := p.FilePath
	switch {
	case path != "":
	case ec.PendingExecution != nil:
		path = ec.PendingExecution.Path
	default:
		return failure("no file to run: give file_path or generate code that asks to be run"), nil
	}
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return failure("file not found: %s", path), nil
	}

	first := e.Runner.ExecuteFile(ctx, path)
	ec.ExecutionPerformed = true
	if ec.PendingExecution != nil && filepath.Clean(ec.PendingExecution.Path) == filepath.Clean(path) {
		ec.PendingExecution = nil
	}

	data := map[string]any{"file_path": path, "corrected": false}
	firstRaw := first.Raw()
	if first.Success() || !tools.IsFixable(firstRaw) || ec.CorrectionAttempts[path] > 0 {
		return StepOutcome{Success: first.Success(), Message: tools.FormatResult(firstRaw, first.Success()), Data: data}, nil
	}

	ec.CorrectionAttempts[path] = 1
	log := orNop(e.Logger)
	initial := tools.FormatResult(firstRaw, false)

	source, err := os.ReadFile(path)
	if err != nil {
		return StepOutcome{Success: false, Data: data,
			Message: fmt.Sprintf("initial error:\n%s\n\nauto-correction skipped, cannot read the file: %v", initial, err)}, nil
	}

	language := ""
	if lang, ok := tools.LanguageForPath(path); ok {
		language = lang.Name
	}
	fixed := e.Generator.Correct(ctx, ec.OriginalTask, string(source), firstRaw, language)
	if !fixed.Success() || fixed.Code == "" {
		e.Metrics.Correction("no_code")
		log.LogCorrection(ec.TaskID, path, "no_code")
		return StepOutcome{Success: false, Data: data,
			Message: fmt.Sprintf("initial error:\n%s\n\nauto-correction failed (%s): %s", initial, fixed.Status, fixed.Message)}, nil
	}

	if err := tools.ReplaceFile(path, []byte(fixed.Code)); err != nil {
		e.Metrics.Correction("save_failed")
		log.Warn("failed to replace corrected file", zap.String("path", path), zap.Error(err))
		return StepOutcome{Success: false, Data: data,
			Message: fmt.Sprintf("initial error:\n%s\n\nfailed to save the corrected code: %v", initial, err)}, nil
	}
	data["corrected"] = true

	second := e.Runner.ExecuteFile(ctx, path)
	result := "fixed"
	if !second.Success() {
		result = "still_failing"
	}
	e.Metrics.Correction(result)
	log.LogCorrection(ec.TaskID, path, result)

	return StepOutcome{
		Success: second.Success(),
		Message: fmt.Sprintf("initial error:\n%s\n\nre-run after auto-correction:\n%s", initial, tools.FormatResult(second.Raw(), second.Success())),
		Data:    data,
	}, nil
}
