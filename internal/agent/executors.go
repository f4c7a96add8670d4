package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"github.com/rahul/codemate/internal/codegen"
	"github.com/rahul/codemate/internal/governance"
	"github.com/rahul/codemate/internal/metrics"
	"github.com/rahul/codemate/internal/observability"
	"github.com/rahul/codemate/internal/tools"
)

var ErrMissingParameter = errors.New("missing required parameter")

// Executor performs one kind of step.
type Executor interface {
	Kind() StepKind
	Description() string
	Parameters() map[string]any // JSON Schema for the step's parameters
	Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error)
}

// Registry manages the executors available to plans.
type Registry struct {
	executors map[StepKind]Executor
	order     []StepKind
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[StepKind]Executor)}
}

func (r *Registry) Register(e Executor) {
	if _, ok := r.executors[e.Kind()]; !ok {
		r.order = append(r.order, e.Kind())
	}
	r.executors[e.Kind()] = e
}

func (r *Registry) Get(kind StepKind) (Executor, bool) {
	e, ok := r.executors[kind]
	return e, ok
}

// All returns the executors in registration order.
func (r *Registry) All() []Executor {
	out := make([]Executor, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.executors[k])
	}
	return out
}

// Researcher answers a query from web pages.
type Researcher interface {
	Research(ctx context.Context, query, languageHint string) tools.ResearchResult
}

// CodeGenerator writes and repairs code.
type CodeGenerator interface {
	Generate(ctx context.Context, task, searchContext string) codegen.Result
	Correct(ctx context.Context, task, previousCode, errMsg, language string) codegen.Result
}

// Runner runs code and toolchains.
type Runner interface {
	ExecuteFile(ctx context.Context, path string) tools.CommandResult
	ExecuteCode(ctx context.Context, code, language string) tools.CommandResult
	Compile(ctx context.Context, src string, lang tools.Language) (string, tools.CommandResult)
	RunCompiled(ctx context.Context, output string, lang tools.Language) tools.CommandResult
	InstallPackages(ctx context.Context, pkgs []string) tools.CommandResult
	OutputPathFor(src string, lang tools.Language) string
}

// Toolbox holds the collaborators the executors delegate to.
type Toolbox struct {
	Researcher Researcher
	Generator  CodeGenerator
	Runner     Runner
	Files      *tools.Filesystem
	Policy     governance.PolicyEngine
	Logger     *observability.Logger
	Metrics    *metrics.Metrics
}

// NewDefaultRegistry registers one executor per step kind.
func NewDefaultRegistry(tb Toolbox) *Registry {
	if tb.Logger == nil {
		tb.Logger = observability.NewNop()
	}
	r := NewRegistry()
	r.Register(&SearchExecutor{Researcher: tb.Researcher})
	r.Register(&CodeGenExecutor{Generator: tb.Generator, Runner: tb.Runner})
	r.Register(&FileExecutionExecutor{Runner: tb.Runner, Generator: tb.Generator, Logger: tb.Logger, Metrics: tb.Metrics})
	r.Register(&CodeBlockExecutor{Runner: tb.Runner, Policy: tb.Policy, Logger: tb.Logger})
	r.Register(&CompilationExecutor{Runner: tb.Runner})
	r.Register(&CompiledRunExecutor{Runner: tb.Runner})
	r.Register(&DirectoryExecutor{Files: tb.Files})
	r.Register(&FileManagementExecutor{Files: tb.Files})
	return r
}

func orNop(l *observability.Logger) *observability.Logger {
	if l == nil {
		return observability.NewNop()
	}
	return l
}

// decodeParams checks the required keys and weakly decodes params into out.
func decodeParams(params map[string]any, out any, required ...string) error {
	for _, key := range required {
		v, ok := params[key]
		if !ok || v == nil || v == "" {
			return fmt.Errorf("%w: %s", ErrMissingParameter, key)
		}
	}
	if params == nil {
		params = map[string]any{}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// ParameterSummary renders a schema as "a, b (optional)" for prompts.
func ParameterSummary(s map[string]any) string {
	props, _ := s["properties"].(map[string]any)
	if len(props) == 0 {
		return "none"
	}
	required := map[string]bool{}
	if req, ok := s["required"].([]string); ok {
		for _, r := range req {
			required[r] = true
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})
	for i, name := range names {
		if !required[name] {
			names[i] = name + " (optional)"
		}
	}
	return strings.Join(names, ", ")
}

type SearchExecutor struct {
	Researcher Researcher
}

type searchParams struct {
	Query    string `mapstructure:"query"`
	Language string `mapstructure:"language"`
}

func (e *SearchExecutor) Kind() StepKind { return KindSearch }

func (e *SearchExecutor) Description() string {
	return "Search the web and summarize the answer"
}

func (e *SearchExecutor) Parameters() map[string]any {
	return schema(nil, map[string]any{
		"query":    str("What to search for. Defaults to the request."),
		"language": str("Answer language: en or ko."),
	})
}

func (e *SearchExecutor) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
	var p searchParams
	if err := decodeParams(params, &p); err != nil {
		return StepOutcome{}, err
	}
	if p.Query == "" {
		p.Query = ec.OriginalTask
	}

	res := e.Researcher.Research(ctx, p.Query, p.Language)
	msg := res.Summary
	if len(res.Sources) > 0 {
		msg += "\n\nSources:\n- " + strings.Join(res.Sources, "\n- ")
	}
	if res.Success {
		ec.SearchSummary = res.Summary
	}
	return StepOutcome{Success: res.Success, Message: msg, Data: map[string]any{"sources": res.Sources}}, nil
}

type CodeGenExecutor struct {
	Generator CodeGenerator
	Runner    Runner
}

type codeGenParams struct {
	Task             string `mapstructure:"task"`
	UseSearchContext *bool  `mapstructure:"use_search_context"`
}

func (e *CodeGenExecutor) Kind() StepKind { return KindCodeGeneration }

func (e *CodeGenExecutor) Description() string {
	return "Generate a program and save it to a file"
}

func (e *CodeGenExecutor) Parameters() map[string]any {
	return schema(nil, map[string]any{
		"task":               str("What the program should do. Defaults to the request."),
		"use_search_context": map[string]any{"type": "boolean", "description": "Use the answer of an earlier search step."},
	})
}

func (e *CodeGenExecutor) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
	var p codeGenParams
	if err := decodeParams(params, &p); err != nil {
		return StepOutcome{}, err
	}
	if p.Task == "" {
		p.Task = ec.OriginalTask
	}
	searchContext := ""
	if p.UseSearchContext == nil || *p.UseSearchContext {
		searchContext = ec.SearchSummary
	}

	res := e.Generator.Generate(ctx, p.Task, searchContext)
	if !res.Success() {
		return StepOutcome{
			Success: false,
			Message: fmt.Sprintf("code generation failed (%s): %s", res.Status, res.Message),
			Data:    map[string]any{"status": string(res.Status)},
		}, nil
	}

	artifact := &GeneratedFile{Path: res.SavedPath, Language: res.Language}
	ec.LastGenerated = artifact

	var msg strings.Builder
	fmt.Fprintf(&msg, "--- generated code (%s) ---\n%s\n---\n%s", res.Language, res.Code, res.Message)

	execute := res.ExecuteRequested
	if execute && len(res.RequiredPackages) > 0 {
		install := e.Runner.InstallPackages(ctx, res.RequiredPackages)
		if install.Success() {
			fmt.Fprintf(&msg, "\ninstalled packages: %s", strings.Join(res.RequiredPackages, ", "))
		} else {
			execute = false
			fmt.Fprintf(&msg, "\npackage install failed, not running the code:\n%s", tools.FormatResult(install.Raw(), false))
		}
	}

	return StepOutcome{
		Success:        true,
		Message:        msg.String(),
		Artifact:       artifact,
		ExecuteRequest: execute,
		Data: map[string]any{
			"status":            string(res.Status),
			"required_packages": res.RequiredPackages,
		},
	}, nil
}

type CodeBlockExecutor struct {
	Runner Runner
	Policy governance.PolicyEngine
	Logger *observability.Logger
}

type codeBlockParams struct {
	Code     string `mapstructure:"code"`
	Language string `mapstructure:"language"`
}

func (e *CodeBlockExecutor) Kind() StepKind { return KindCodeBlockExecution }

func (e *CodeBlockExecutor) Description() string {
	return "Run a snippet of code directly"
}

func (e *CodeBlockExecutor) Parameters() map[string]any {
	return schema([]string{"code"}, map[string]any{
		"code":     str("Source code to run."),
		"language": str("Language of the code. Defaults to python."),
	})
}

func (e *CodeBlockExecutor) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) (StepOutcome, error) {
	var p codeBlockParams
	if err := decodeParams(params, &p, "code"); err != nil {
		return StepOutcome{}, err
	}
	if p.Language == "" {
		p.Language = "python"
	}

	if e.Policy != nil {
		verdict, err := e.Policy.Evaluate(ctx, governance.Request{Kind: string(KindCodeBlockExecution), Language: p.Language, Content: p.Code})
		if err != nil {
			return StepOutcome{}, fmt.Errorf("safety check failed: %w", err)
		}
		orNop(e.Logger).LogPolicyCheck(string(verdict.Effect), verdict.Reason)
		if !verdict.Allowed() {
			return failure("code was rejected by the safety policy: %s", verdict.Reason), nil
		}
	}

	res := e.Runner.ExecuteCode(ctx, p.Code, p.Language)
	return StepOutcome{Success: res.Success(), Message: tools.FormatResult(res.Raw(), res.Success())}, nil
}

type DirectoryExecutor struct {
	Files *tools.Filesystem
}

type directoryParams struct {
	DirPath string `mapstructure:"dir_path"`
}

func (e *DirectoryExecutor) Kind() StepKind { return KindDirectoryExploration }

func (e *DirectoryExecutor) Description() string {
	return "List the contents of a directory"
}

func (e *DirectoryExecutor) Parameters() map[string]any {
	return schema(nil, map[string]any{"dir_path": str("Directory to list. Defaults to the workspace.")})
}

func (e *DirectoryExecutor) Execute(_ context.Context, params map[string]any, _ *ExecutionContext) (StepOutcome, error) {
	var p directoryParams
	if err := decodeParams(params, &p); err != nil {
		return StepOutcome{}, err
	}
	if p.DirPath == "" {
		p.DirPath = "."
	}

	listing, err := e.Files.ListDirectory(p.DirPath)
	if err != nil {
		return failure("cannot list directory %s: %v", p.DirPath, err), nil
	}
	return StepOutcome{Success: true, Message: FormatListing(listing)}, nil
}

// FormatListing renders a directory listing for the report.
func FormatListing(l tools.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Directory: %s\n", l.Path)
	fmt.Fprintf(&b, "Total size: %s, %d items", humanize.Bytes(uint64(l.TotalSize)), len(l.Items))
	if len(l.Items) == 0 {
		b.WriteString("\n(empty)")
	}
	for _, it := range l.Items {
		switch {
		case it.IsDir:
			fmt.Fprintf(&b, "\n[DIR]  %s/ (%s)", it.Name, humanize.Bytes(uint64(it.Size)))
		case it.Language != "":
			fmt.Fprintf(&b, "\n[FILE] %s (%s, %s)", it.Name, humanize.Bytes(uint64(it.Size)), it.Language)
		default:
			fmt.Fprintf(&b, "\n[FILE] %s (%s)", it.Name, humanize.Bytes(uint64(it.Size)))
		}
	}
	return b.String()
}

type FileManagementExecutor struct {
	Files *tools.Filesystem
}

type fileParams struct {
	Action  string `mapstructure:"action"`
	Path    string `mapstructure:"path"`
	NewPath string `mapstructure:"new_path"`
	Content string `mapstructure:"content"`
}

var actionAliases = map[string]string{
	"생성": "create",
	"삭제": "delete",
	"이동": "move",
	"복사": "copy",
	"읽기": "read",
	"쓰기": "write",

	"remove": "delete",
	"rename": "move",
}

func (e *FileManagementExecutor) Kind() StepKind { return KindFileManagement }

func (e *FileManagementExecutor) Description() string {
	return "Create, delete, move, copy, read or write a file"
}

func (e *FileManagementExecutor) Parameters() map[string]any {
	return schema([]string{"action", "path"}, map[string]any{
		"action":   map[string]any{"type": "string", "enum": []string{"create", "delete", "move", "copy", "read", "write"}},
		"path":     str("Target file."),
		"new_path": str("Destination for move and copy."),
		"content":  str("Content for create and write."),
	})
}

func (e *FileManagementExecutor) Execute(_ context.Context, params map[string]any, _ *ExecutionContext) (StepOutcome, error) {
	var p fileParams
	if err := decodeParams(params, &p, "action", "path"); err != nil {
		return StepOutcome{}, err
	}
	action := strings.ToLower(strings.TrimSpace(p.Action))
	if alias, ok := actionAliases[action]; ok {
		action = alias
	}

	var res tools.OpResult
	switch action {
	case "create":
		res = e.Files.Create(p.Path, p.Content)
	case "delete":
		res = e.Files.Delete(p.Path)
	case "read":
		res = e.Files.Read(p.Path)
	case "write":
		res = e.Files.Write(p.Path, p.Content)
	case "move", "copy":
		if p.NewPath == "" {
			return StepOutcome{}, fmt.Errorf("%w: new_path (required for %s)", ErrMissingParameter, action)
		}
		if action == "move" {
			res = e.Files.Move(p.Path, p.NewPath)
		} else {
			res = e.Files.Copy(p.Path, p.NewPath)
		}
	default:
		return failure("unsupported file action %q", p.Action), nil
	}
	return StepOutcome{Success: res.Success, Message: res.Message}, nil
}
