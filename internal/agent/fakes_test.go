package agent

import (
	"context"

	"github.com/rahul/codemate/internal/codegen"
	"github.com/rahul/codemate/internal/llm"
	"github.com/rahul/codemate/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

type scriptedLLM struct {
	reply string
	err   error
	last  []llms.MessageContent
	calls int
}

func (s *scriptedLLM) Complete(_ context.Context, _ llm.TaskType, messages []llms.MessageContent) (string, error) {
	s.calls++
	s.last = messages
	return s.reply, s.err
}

func (s *scriptedLLM) userText() string {
	if len(s.last) < 2 {
		return ""
	}
	return s.last[1].Parts[0].(llms.TextContent).Text
}

// fakeRunner replays scripted file results in order; the last one repeats.
type fakeRunner struct {
	fileResults []tools.CommandResult
	fileCalls   []string

	codeResult tools.CommandResult
	codeCalls  int

	compileOutput string
	compileResult tools.CommandResult
	compileCalls  int

	runResult tools.CommandResult
	runCalls  []string

	installResult tools.CommandResult
	installed     [][]string

	outputPath string
}

func (r *fakeRunner) ExecuteFile(_ context.Context, path string) tools.CommandResult {
	r.fileCalls = append(r.fileCalls, path)
	if len(r.fileResults) == 0 {
		return ok("")
	}
	i := len(r.fileCalls) - 1
	if i >= len(r.fileResults) {
		i = len(r.fileResults) - 1
	}
	return r.fileResults[i]
}

func (r *fakeRunner) ExecuteCode(_ context.Context, _, _ string) tools.CommandResult {
	r.codeCalls++
	return r.codeResult
}

func (r *fakeRunner) Compile(_ context.Context, _ string, _ tools.Language) (string, tools.CommandResult) {
	r.compileCalls++
	return r.compileOutput, r.compileResult
}

func (r *fakeRunner) RunCompiled(_ context.Context, output string, _ tools.Language) tools.CommandResult {
	r.runCalls = append(r.runCalls, output)
	return r.runResult
}

func (r *fakeRunner) InstallPackages(_ context.Context, pkgs []string) tools.CommandResult {
	r.installed = append(r.installed, pkgs)
	return r.installResult
}

func (r *fakeRunner) OutputPathFor(_ string, _ tools.Language) string {
	return r.outputPath
}

func ok(stdout string) tools.CommandResult {
	return tools.CommandResult{Stdout: stdout}
}

func failed(stderr string) tools.CommandResult {
	return tools.CommandResult{ExitCode: 1, Stderr: stderr}
}

type fakeGenerator struct {
	generated    codegen.Result
	corrected    codegen.Result
	generateArgs []string // search contexts
	correctCalls int
}

func (g *fakeGenerator) Generate(_ context.Context, _, searchContext string) codegen.Result {
	g.generateArgs = append(g.generateArgs, searchContext)
	return g.generated
}

func (g *fakeGenerator) Correct(_ context.Context, _, _, _, _ string) codegen.Result {
	g.correctCalls++
	return g.corrected
}

type fakeResearcher struct {
	result  tools.ResearchResult
	queries []string
}

func (f *fakeResearcher) Research(_ context.Context, query, _ string) tools.ResearchResult {
	f.queries = append(f.queries, query)
	return f.result
}

// stubExecutor records its calls and answers through run, or succeeds.
type stubExecutor struct {
	kind  StepKind
	run   func(params map[string]any, ec *ExecutionContext) (StepOutcome, error)
	calls []map[string]any
}

func (s *stubExecutor) Kind() StepKind             { return s.kind }
func (s *stubExecutor) Description() string        { return "stub " + string(s.kind) }
func (s *stubExecutor) Parameters() map[string]any { return schema(nil, map[string]any{}) }

func (s *stubExecutor) Execute(_ context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
	s.calls = append(s.calls, params)
	if s.run == nil {
		return StepOutcome{Success: true, Message: string(s.kind) + " done"}, nil
	}
	return s.run(params, ec)
}

type fixedPlanner struct {
	plan Plan
}

func (p fixedPlanner) Plan(context.Context, string) Plan {
	return p.plan
}
