package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rahul/codemate/internal/codegen"
	"github.com/rahul/codemate/internal/governance"
	"github.com/rahul/codemate/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultRegistry_CoversEveryKind(t *testing.T) {
	reg := NewDefaultRegistry(Toolbox{})
	var got []StepKind
	for _, e := range reg.All() {
		got = append(got, e.Kind())
		assert.NotEmpty(t, e.Description())
		assert.Equal(t, "object", e.Parameters()["type"])
	}
	assert.Equal(t, AllKinds, got)
}

func TestDecodeParams(t *testing.T) {
	var p struct {
		Path  string `mapstructure:"path"`
		Count int    `mapstructure:"count"`
	}
	require.NoError(t, decodeParams(map[string]any{"path": "a.txt", "count": "3"}, &p, "path"))
	assert.Equal(t, "a.txt", p.Path)
	assert.Equal(t, 3, p.Count)

	err := decodeParams(map[string]any{"path": ""}, &p, "path")
	assert.True(t, errors.Is(err, ErrMissingParameter))

	err = decodeParams(nil, &p, "path")
	assert.True(t, errors.Is(err, ErrMissingParameter))
	assert.NoError(t, decodeParams(nil, &p))
}

func TestParameterSummary(t *testing.T) {
	assert.Equal(t, "none", ParameterSummary(schema(nil, nil)))
	assert.Equal(t, "file_path", ParameterSummary((&CompilationExecutor{}).Parameters()))
	assert.Equal(t, "language (optional), query (optional)", ParameterSummary((&SearchExecutor{}).Parameters()))
}

func TestSearchExecutor(t *testing.T) {
	r := &fakeResearcher{result: tools.ResearchResult{Success: true, Summary: "Go 1.22 added range over int.", Sources: []string{"https://go.dev/doc"}}}
	ec := newExecContext()

	out, err := (&SearchExecutor{Researcher: r}).Execute(context.Background(), map[string]any{}, ec)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"print the answer"}, r.queries)
	assert.Equal(t, "Go 1.22 added range over int.\n\nSources:\n- https://go.dev/doc", out.Message)
	assert.Equal(t, "Go 1.22 added range over int.", ec.SearchSummary)

	r.result = tools.ResearchResult{Success: false, Summary: "no results"}
	out, err = (&SearchExecutor{Researcher: r}).Execute(context.Background(), map[string]any{"query": "zzz"}, ec)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Go 1.22 added range over int.", ec.SearchSummary)
}

func TestCodeGenExecutor(t *testing.T) {
	gen := &fakeGenerator{generated: codegen.Result{
		Status:           codegen.StatusSuccess,
		Code:             "print('hi')",
		Language:         "python",
		SavedPath:        "/tmp/python_code.py",
		Message:          "saved to /tmp/python_code.py",
		ExecuteRequested: true,
		RequiredPackages: []string{"requests"},
	}}
	runner := &fakeRunner{installResult: ok("Successfully installed requests")}
	exec := &CodeGenExecutor{Generator: gen, Runner: runner}
	ec := newExecContext()
	ec.SearchSummary = "use requests.get"

	out, err := exec.Execute(context.Background(), map[string]any{}, ec)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.ExecuteRequest)
	assert.Equal(t, &GeneratedFile{Path: "/tmp/python_code.py", Language: "python"}, out.Artifact)
	assert.Equal(t, out.Artifact, ec.LastGenerated)
	assert.Equal(t, []string{"use requests.get"}, gen.generateArgs)
	assert.Equal(t, [][]string{{"requests"}}, runner.installed)
	assert.Contains(t, out.Message, "--- generated code (python) ---\nprint('hi')\n---")
	assert.Contains(t, out.Message, "installed packages: requests")

	_, err = exec.Execute(context.Background(), map[string]any{"use_search_context": "false"}, ec)
	require.NoError(t, err)
	assert.Equal(t, "", gen.generateArgs[1])
}

func TestCodeGenExecutor_InstallFailureSkipsRun(t *testing.T) {
	gen := &fakeGenerator{generated: codegen.Result{
		Status: codegen.StatusSuccess, Code: "import numpy", Language: "python", SavedPath: "/tmp/a.py",
		ExecuteRequested: true, RequiredPackages: []string{"numpy"},
	}}
	runner := &fakeRunner{installResult: failed("ERROR: Could not find a version that satisfies the requirement numpy")}

	out, err := (&CodeGenExecutor{Generator: gen, Runner: runner}).Execute(context.Background(), nil, newExecContext())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.ExecuteRequest)
	assert.Contains(t, out.Message, "package install failed, not running the code")
}

func TestCodeGenExecutor_Failure(t *testing.T) {
	gen := &fakeGenerator{generated: codegen.Result{Status: codegen.StatusFailedSafety, Message: "content matches restricted pattern"}}
	ec := newExecContext()

	out, err := (&CodeGenExecutor{Generator: gen, Runner: &fakeRunner{}}).Execute(context.Background(), nil, ec)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Nil(t, out.Artifact)
	assert.Nil(t, ec.LastGenerated)
	assert.Equal(t, "code generation failed (failed_safety): content matches restricted pattern", out.Message)
}

func TestCodeBlockExecutor(t *testing.T) {
	runner := &fakeRunner{codeResult: ok("42")}
	exec := &CodeBlockExecutor{Runner: runner, Policy: governance.NewCodeSafetyPolicy()}

	out, err := exec.Execute(context.Background(), map[string]any{"code": "print(6*7)"}, newExecContext())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "42", out.Message)
	assert.Equal(t, 1, runner.codeCalls)

	out, err = exec.Execute(context.Background(), map[string]any{"code": "import shutil\nshutil.rmtree('/')"}, newExecContext())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "rejected by the safety policy")
	assert.Equal(t, 1, runner.codeCalls)

	_, err = exec.Execute(context.Background(), map[string]any{}, newExecContext())
	assert.True(t, errors.Is(err, ErrMissingParameter))
}

func TestCompilation(t *testing.T) {
	src := writeSource(t, "main.c", "int main(void) { return 0; }")
	binary := writeSource(t, "main", "")
	runner := &fakeRunner{compileOutput: binary, runResult: ok("hello")}
	ec := newExecContext()

	out, err := (&CompilationExecutor{Runner: runner}).Execute(context.Background(), map[string]any{"file_path": src}, ec)
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, &CompiledFile{OriginalPath: src, OutputPath: binary, Language: "c"}, ec.CompiledFile)

	out, err = (&CompiledRunExecutor{Runner: runner}).Execute(context.Background(), map[string]any{}, ec)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "hello", out.Message)
	assert.Equal(t, []string{binary}, runner.runCalls)
}

func TestCompilation_Rejects(t *testing.T) {
	runner := &fakeRunner{}
	exec := &CompilationExecutor{Runner: runner}

	out, err := exec.Execute(context.Background(), map[string]any{"file_path": writeSource(t, "a.py", "")}, newExecContext())
	require.NoError(t, err)
	assert.Equal(t, "compilation is not supported for .py files", out.Message)

	out, err = exec.Execute(context.Background(), map[string]any{"file_path": filepath.Join(t.TempDir(), "gone.c")}, newExecContext())
	require.NoError(t, err)
	assert.Contains(t, out.Message, "file not found")

	_, err = exec.Execute(context.Background(), map[string]any{}, newExecContext())
	assert.True(t, errors.Is(err, ErrMissingParameter))
	assert.Zero(t, runner.compileCalls)
}

func TestCompilation_Failure(t *testing.T) {
	src := writeSource(t, "main.c", "int main(void) { return 0 }")
	runner := &fakeRunner{compileResult: failed("main.c:1:30: error: expected ';' before '}' token")}
	ec := newExecContext()

	out, err := (&CompilationExecutor{Runner: runner}).Execute(context.Background(), map[string]any{"file_path": src}, ec)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "compilation of "+src+" failed:")
	assert.Nil(t, ec.CompiledFile)
}

func TestCompiledRun_Locate(t *testing.T) {
	src := writeSource(t, "main.rs", "fn main() {}")
	built := writeSource(t, "main", "")

	runner := &fakeRunner{outputPath: built, runResult: ok("")}
	out, err := (&CompiledRunExecutor{Runner: runner}).Execute(context.Background(), map[string]any{"file_path": src}, newExecContext())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, []string{built}, runner.runCalls)

	runner = &fakeRunner{outputPath: filepath.Join(t.TempDir(), "codemate-missing-binary")}
	out, err = (&CompiledRunExecutor{Runner: runner}).Execute(context.Background(), map[string]any{"file_path": src}, newExecContext())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "compile it first")

	out, err = (&CompiledRunExecutor{Runner: runner}).Execute(context.Background(), nil, newExecContext())
	require.NoError(t, err)
	assert.Equal(t, "no compiled binary found for the requested file; compile it first", out.Message)
	assert.Empty(t, runner.runCalls)
}

func TestDirectoryExecutor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "x.txt"), make([]byte, 2000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes"), []byte("hi"), 0o644))

	exec := &DirectoryExecutor{Files: tools.NewFilesystem(root)}
	out, err := exec.Execute(context.Background(), nil, newExecContext())
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, "Directory: "+root+"\n"+
		"Total size: 2.0 kB, 3 items\n"+
		"[DIR]  pkg/ (2.0 kB)\n"+
		"[FILE] main.go (12 B, go)\n"+
		"[FILE] notes (2 B)", out.Message)

	out, err = exec.Execute(context.Background(), map[string]any{"dir_path": "missing"}, newExecContext())
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestFormatListing_Empty(t *testing.T) {
	assert.Equal(t, "Directory: /x\nTotal size: 0 B, 0 items\n(empty)", FormatListing(tools.Listing{Path: "/x"}))
}

func TestFileManagementExecutor(t *testing.T) {
	root := t.TempDir()
	exec := &FileManagementExecutor{Files: tools.NewFilesystem(root)}
	run := func(params map[string]any) (StepOutcome, error) {
		return exec.Execute(context.Background(), params, newExecContext())
	}

	out, err := run(map[string]any{"action": "생성", "path": "a.txt", "content": "hello"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)

	out, err = run(map[string]any{"action": "READ", "path": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Message)

	_, err = run(map[string]any{"action": "move", "path": "a.txt"})
	assert.True(t, errors.Is(err, ErrMissingParameter))

	out, err = run(map[string]any{"action": "rename", "path": "a.txt", "new_path": "b.txt"})
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
	assert.FileExists(t, filepath.Join(root, "b.txt"))

	out, err = run(map[string]any{"action": "remove", "path": "b.txt"})
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
	assert.NoFileExists(t, filepath.Join(root, "b.txt"))

	out, err = run(map[string]any{"action": "chmod", "path": "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, `unsupported file action "chmod"`, out.Message)

	_, err = run(map[string]any{"path": "b.txt"})
	assert.True(t, errors.Is(err, ErrMissingParameter))
}
