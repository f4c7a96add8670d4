package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/codemate/internal/tools"
)

type CompilationExecutor struct {
	Runner Runner
}

type compileParams struct {
	FilePath string `mapstructure:"file_path"`
}

func (e *CompilationExecutor) Kind() StepKind { return KindCompilation }

func (e *CompilationExecutor) Description() string {
	return "Compile a C, C++, C#, Rust or Go source file"
}

func (e *CompilationExecutor) Parameters() map[string]any {
	return schema([]string{"file_path"}, map[string]any{"file_path": str("Source file to compile.")})
}

func (e *CompilationExecutor) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
	var p compileParams
	if err := decodeParams(params, &p, "file_path"); err != nil {
		return StepOutcome{}, err
	}

	lang, ok := tools.LanguageForPath(p.FilePath)
	if !ok || !lang.Compiled() {
		return failure("compilation is not supported for %s files", filepath.Ext(p.FilePath)), nil
	}
	if _, err := os.Stat(p.FilePath); err != nil {
		return failure("file not found: %s", p.FilePath), nil
	}

	output, res := e.Runner.Compile(ctx, p.FilePath, lang)
	if !res.Success() {
		return failure("compilation of %s failed:\n%s", p.FilePath, tools.FormatResult(res.Raw(), false)), nil
	}

	ec.CompiledFile = &CompiledFile{OriginalPath: p.FilePath, OutputPath: output, Language: lang.Name}
	msg := "compiled " + p.FilePath + " -> " + output
	if out := strings.TrimSpace(res.Raw()); out != "" {
		msg += "\n" + out
	}
	return StepOutcome{Success: true, Message: msg, Data: map[string]any{"output_path": output}}, nil
}

type CompiledRunExecutor struct {
	Runner Runner
}

func (e *CompiledRunExecutor) Kind() StepKind { return KindCompiledRun }

func (e *CompiledRunExecutor) Description() string {
	return "Run the binary built from a source file by an earlier compilation step"
}

func (e *CompiledRunExecutor) Parameters() map[string]any {
	return schema(nil, map[string]any{"file_path": str("Original source file that was compiled.")})
}

func (e *CompiledRunExecutor) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
	var p compileParams
	if err := decodeParams(params, &p); err != nil {
		return StepOutcome{}, err
	}

	output, lang, ok := e.locate(p.FilePath, ec)
	if !ok {
		return failure("no compiled binary found for %s; compile it first", displayPath(p.FilePath)), nil
	}

	res := e.Runner.RunCompiled(ctx, output, lang)
	return StepOutcome{Success: res.Success(), Message: tools.FormatResult(res.Raw(), res.Success())}, nil
}

// locate prefers the binary recorded by the compilation step, then the
// deterministic build path, then the same name in the temp dir.
func (e *CompiledRunExecutor) locate(src string, ec *ExecutionContext) (string, tools.Language, bool) {
	if cf := ec.CompiledFile; cf != nil && (src == "" || filepath.Clean(cf.OriginalPath) == filepath.Clean(src)) {
		if lang, ok := tools.LanguageByName(cf.Language); ok && exists(cf.OutputPath) {
			return cf.OutputPath, lang, true
		}
	}
	if src == "" {
		return "", tools.Language{}, false
	}
	lang, ok := tools.LanguageForPath(src)
	if !ok || !lang.Compiled() {
		return "", tools.Language{}, false
	}
	output := e.Runner.OutputPathFor(src, lang)
	if exists(output) {
		return output, lang, true
	}
	fallback := filepath.Join(os.TempDir(), filepath.Base(output))
	if exists(fallback) {
		return fallback, lang, true
	}
	return "", tools.Language{}, false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func displayPath(p string) string {
	if p == "" {
		return "the requested file"
	}
	return p
}
