package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rahul/codemate/internal/intent"
	"github.com/rahul/codemate/internal/llm"
	"github.com/rahul/codemate/internal/observability"
	"go.uber.org/zap"
)

// Renderer renders prompt templates and prefixes system prompts with the persona.
type Renderer interface {
	Render(name string, data any) (string, error)
	WithPersona(text string) (string, error)
}

// Planner turns a request into steps: fixed keyword patterns first, the model
// for everything else. Plan never fails.
type Planner struct {
	LLM      llm.Completer
	Prompts  Renderer
	Registry *Registry
	Logger   *observability.Logger
}

func NewPlanner(completer llm.Completer, prompts Renderer, registry *Registry, logger *observability.Logger) *Planner {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Planner{LLM: completer, Prompts: prompts, Registry: registry, Logger: logger}
}

func (p *Planner) Plan(ctx context.Context, task string) Plan {
	if steps, ok := PatternPlan(task); ok {
		return Plan{Steps: steps, Source: SourcePattern}
	}
	parsed := p.planWithLLM(ctx, task)
	if parsed.malformed {
		p.Logger.Warn("llm plan rejected, using fallback", zap.String("reason", parsed.reason), zap.String("raw", parsed.raw))
	}
	return repairPlan(parsed, task)
}

var (
	compileTarget = regexp.MustCompile(`([\w.\-/]+\.(?:cpp|cc|cxx|c|rs|cs|go))\b`)
	dirTarget     = regexp.MustCompile(`(?:디렉토리|폴더|directory|folder)\s+([\w.\-/~]+)`)
	createTarget  = regexp.MustCompile(`(?:생성|create)\s+([\w.\-/~]+)`)
	deleteTarget  = regexp.MustCompile(`(?:삭제|delete|remove)\s+([\w.\-/~]+)`)
	readTarget    = regexp.MustCompile(`(?:읽기|read)\s+([\w.\-/~]+)`)
)

// PatternPlan matches the request against the fixed decision table. The
// first matching row wins.
func PatternPlan(task string) ([]Step, bool) {
	f := intent.Detect(task)
	lower := strings.ToLower(task)

	switch {
	case f.Compile && f.Execute && !f.Codegen && !f.Search:
		params := map[string]any{}
		desc := "compile the source file"
		if m := compileTarget.FindStringSubmatch(task); m != nil {
			params["file_path"] = m[1]
			desc = fmt.Sprintf("compile '%s'", m[1])
		}
		runParams := map[string]any{}
		for k, v := range params {
			runParams[k] = v
		}
		return []Step{
			{Kind: KindCompilation, Description: desc, Parameters: params},
			{Kind: KindCompiledRun, Description: "run the compiled program", Parameters: runParams},
		}, true

	case f.Search && f.Codegen && f.Execute:
		return []Step{
			searchStep(task),
			codegenStep(task, true),
			{Kind: KindFileExecution, Description: "run the generated code", Parameters: map[string]any{}},
		}, true

	case f.Search && f.Codegen:
		return []Step{searchStep(task), codegenStep(task, true)}, true

	case f.Codegen && f.Execute:
		return []Step{
			codegenStep(task, false),
			{Kind: KindFileExecution, Description: "run the generated code", Parameters: map[string]any{}},
		}, true

	case f.Directory && !(f.Codegen || f.Search || f.Execute || f.File):
		dir := "."
		if m := dirTarget.FindStringSubmatch(lower); m != nil {
			dir = m[1]
		}
		return []Step{{
			Kind:        KindDirectoryExploration,
			Description: fmt.Sprintf("list directory '%s'", dir),
			Parameters:  map[string]any{"dir_path": dir},
		}}, true

	case f.File && !(f.Codegen || f.Search || f.Execute):
		for _, t := range []struct {
			action string
			re     *regexp.Regexp
		}{{"create", createTarget}, {"delete", deleteTarget}, {"read", readTarget}} {
			if m := t.re.FindStringSubmatch(lower); m != nil {
				return []Step{{
					Kind:        KindFileManagement,
					Description: fmt.Sprintf("file management: %s %s", t.action, m[1]),
					Parameters:  map[string]any{"action": t.action, "path": m[1]},
				}}, true
			}
		}
	}
	return nil, false
}

func searchStep(task string) Step {
	return Step{
		Kind:        KindSearch,
		Description: fmt.Sprintf("search the web for '%s'", task),
		Parameters:  map[string]any{"query": task},
	}
}

func codegenStep(task string, useSearch bool) Step {
	desc := fmt.Sprintf("generate code for '%s'", task)
	if useSearch {
		desc = fmt.Sprintf("generate code for '%s' using the search results", task)
	}
	return Step{
		Kind:        KindCodeGeneration,
		Description: desc,
		Parameters:  map[string]any{"task": task, "use_search_context": useSearch},
	}
}

// FallbackPlan is the single step plan used when planning fails.
func FallbackPlan(task string) Plan {
	lower := strings.ToLower(task)
	if intent.ContainsAny(lower, intent.CodegenKeywords) || intent.ContainsAny(lower, intent.AuthoringVerbs) {
		return Plan{Source: SourceFallback, Steps: []Step{{
			Kind:        KindCodeGeneration,
			Description: "generate code for the request",
			Parameters:  map[string]any{"task": task, "use_search_context": false},
		}}}
	}
	return Plan{Source: SourceFallback, Steps: []Step{{
		Kind:        KindSearch,
		Description: "search the web for the request",
		Parameters:  map[string]any{"query": task},
	}}}
}

type kindPrompt struct {
	Kind        StepKind
	Description string
	Parameters  string
}

const plannerSystem = "You are a planning assistant. Answer only with the JSON plan described by the user."

func (p *Planner) planWithLLM(ctx context.Context, task string) planParse {
	if p.LLM == nil {
		return malformed("no model configured", "")
	}
	var kinds []kindPrompt
	for _, e := range p.Registry.All() {
		kinds = append(kinds, kindPrompt{Kind: e.Kind(), Description: e.Description(), Parameters: ParameterSummary(e.Parameters())})
	}
	prompt, err := p.Prompts.Render("planner", map[string]any{"Kinds": kinds, "Task": task})
	if err != nil {
		return malformed(err.Error(), "")
	}

	system, err := p.Prompts.WithPersona(plannerSystem)
	if err != nil {
		return malformed(err.Error(), "")
	}
	raw, err := p.LLM.Complete(ctx, llm.TaskPlanning, llm.Messages(system, prompt))
	if err != nil {
		return malformed(err.Error(), "")
	}
	return parsePlan(raw)
}
