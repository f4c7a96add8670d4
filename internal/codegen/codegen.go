// Package codegen asks the model for source code, screens it with the safety
// policy and saves accepted code under the output directory.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rahul/codemate/internal/governance"
	"github.com/rahul/codemate/internal/intent"
	"github.com/rahul/codemate/internal/llm"
	"github.com/rahul/codemate/internal/metrics"
	"github.com/rahul/codemate/internal/observability"
	"github.com/rahul/codemate/internal/tools"
	"go.uber.org/zap"
)

type Status string

const (
	StatusSuccess      Status = "success"
	StatusFailedSafety Status = "failed_safety"
	StatusRefused      Status = "refused"
	StatusNoCode       Status = "failed_no_code"
	StatusFailedAPI    Status = "failed_api"
	StatusFailedSave   Status = "failed_save"
)

// Result of one generation or correction request.
type Result struct {
	Status           Status
	Message          string
	Code             string
	Language         string
	SavedPath        string
	ExecuteRequested bool
	RequiredPackages []string
}

func (r Result) Success() bool { return r.Status == StatusSuccess }

// Renderer renders a named system prompt template.
type Renderer interface {
	System(name string, data any) (string, error)
}

type Generator struct {
	LLM             llm.Completer
	Prompts         Renderer
	Policy          governance.PolicyEngine
	OutputDir       string
	DefaultLanguage string
	Logger          *observability.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

func NewGenerator(completer llm.Completer, prompts Renderer, policy governance.PolicyEngine, outputDir, defaultLanguage string, logger *observability.Logger) *Generator {
	if logger == nil {
		logger = observability.NewNop()
	}
	if defaultLanguage == "" {
		defaultLanguage = "python"
	}
	return &Generator{
		LLM:             completer,
		Prompts:         prompts,
		Policy:          policy,
		OutputDir:       outputDir,
		DefaultLanguage: defaultLanguage,
		Logger:          logger,
		Now:             time.Now,
	}
}

var (
	guiKeywords       = []string{"gui", "ui", "window", "tkinter", "pygame", "pyqt", "qt", "인터페이스", "화면", "윈도우"}
	animationKeywords = []string{"particle", "firework", "animation", "simulation", "파티클", "폭죽", "입자", "애니메이션"}
)

type codegenPrompt struct {
	Language      string
	GUI           bool
	Animation     bool
	SearchContext string
}

// Generate writes new code for task. searchContext, when set, is offered to the model as reference.
func (g *Generator) Generate(ctx context.Context, task, searchContext string) Result {
	lower := strings.ToLower(task)
	language := intent.DetectLanguage(lower)
	if language == "" {
		language = g.DefaultLanguage
	}

	system, err := g.Prompts.System("codegen", codegenPrompt{
		Language:      language,
		GUI:           intent.ContainsAny(lower, guiKeywords),
		Animation:     intent.ContainsAny(lower, animationKeywords),
		SearchContext: searchContext,
	})
	if err != nil {
		return Result{Status: StatusFailedAPI, Language: language, Message: err.Error()}
	}
	user := fmt.Sprintf("Generate %s code for the following request: %s", language, task)

	res := g.complete(ctx, llm.TaskCodeGen, system, user, language)
	if !res.Success() {
		return res
	}
	res.ExecuteRequested = intent.WantsExecution(task)
	return g.save(res)
}

// Correct asks for a fixed version of previousCode. The result is not saved;
// the caller decides where corrected code goes.
func (g *Generator) Correct(ctx context.Context, task, previousCode, errMsg, language string) Result {
	if language == "" {
		language = g.DefaultLanguage
	}
	system, err := g.Prompts.System("correction", codegenPrompt{Language: language})
	if err != nil {
		return Result{Status: StatusFailedAPI, Language: language, Message: err.Error()}
	}
	user := fmt.Sprintf("Original Request: %s\n\nPrevious %s code (with error):\n```\n%s\n```\n\nError Message:\n```\n%s\n```\n\nFix the code based on the error message and the original request.",
		task, language, previousCode, errMsg)

	return g.complete(ctx, llm.TaskCorrection, system, user, language)
}

func (g *Generator) complete(ctx context.Context, taskType llm.TaskType, system, user, language string) Result {
	resp, err := g.LLM.Complete(ctx, taskType, llm.Messages(system, user))
	if err != nil {
		return Result{Status: StatusFailedAPI, Language: language, Message: fmt.Sprintf("model call failed: %v", err)}
	}

	code, ok := ExtractCode(resp)
	if !ok {
		if IsRefusal(resp) {
			g.Logger.Warn("model refused to write code", zap.String("response", truncate(resp, 200)))
			return Result{Status: StatusRefused, Language: language, Message: fmt.Sprintf("the model declined to write this code:\n---\n%s\n---", resp)}
		}
		return Result{Status: StatusNoCode, Language: language, Message: fmt.Sprintf("the model returned no code:\n---\n%s\n---", resp)}
	}

	if g.Policy != nil {
		verdict, err := g.Policy.Evaluate(ctx, governance.Request{Kind: "generated_code", Language: language, Content: code})
		if err != nil {
			return Result{Status: StatusFailedSafety, Language: language, Message: fmt.Sprintf("safety check failed: %v", err)}
		}
		g.Logger.LogPolicyCheck(string(verdict.Effect), verdict.Reason)
		if !verdict.Allowed() {
			g.Metrics.SafetyRejection()
			return Result{Status: StatusFailedSafety, Language: language, Message: "generated code was rejected by the safety policy: " + verdict.Reason}
		}
	}

	res := Result{Status: StatusSuccess, Code: code, Language: language}
	if language == "python" {
		res.RequiredPackages = RequiredPackages(code)
	}
	return res
}

func (g *Generator) save(res Result) Result {
	ext := ".txt"
	if lang, ok := tools.LanguageByName(res.Language); ok {
		ext = lang.Ext()
	}
	base := fmt.Sprintf("%s_code_%s", fileSafe(res.Language), g.Now().Format("20060102_150405"))

	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return Result{Status: StatusFailedSave, Language: res.Language, Message: fmt.Sprintf("failed to create output dir: %v", err)}
	}
	path, err := createUnique(g.OutputDir, base, ext, []byte(res.Code))
	if err != nil {
		return Result{Status: StatusFailedSave, Language: res.Language, Message: fmt.Sprintf("failed to save generated code: %v", err)}
	}

	res.SavedPath = path
	res.Message = fmt.Sprintf("code saved to '%s'", path)
	g.Logger.Info("generated code saved", zap.String("path", path), zap.String("language", res.Language))
	return res
}

const maxNameAttempts = 100

// createUnique writes data to dir/base+ext, or dir/base_N+ext when that name is
// taken. Existing files are never overwritten.
func createUnique(dir, base, ext string, data []byte) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, werr := f.Write(data)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			_ = os.Remove(path)
			return "", werr
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s%s after %d attempts", base, ext, maxNameAttempts)
}

var fence = regexp.MustCompile("(?s)```[\\w+#.-]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```")

// ExtractCode returns the body of the first fenced block.
func ExtractCode(resp string) (string, bool) {
	m := fence.FindStringSubmatch(resp)
	if m == nil {
		return "", false
	}
	code := strings.TrimSpace(m[1])
	return code, code != ""
}

var (
	refusalWords = []string{
		"sorry", "cannot generate", "unable to", "unsafe", "malicious", "harmful", "destructive", "as an ai", "i cannot",
		"죄송합니다", "할 수 없습니다", "안전하지 않은", "악의적인", "해로운",
	}
	codeSymbols = []string{"{", "}", "(", ")", "=", ";", ":", "import", "def", "class", "function", "var", "let", "const"}
)

// IsRefusal reports whether an answer without code reads as the model declining.
func IsRefusal(resp string) bool {
	lower := strings.ToLower(resp)
	for _, w := range refusalWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	if len(resp) < 500 {
		for _, s := range codeSymbols {
			if strings.Contains(lower, s) {
				return false
			}
		}
		return true
	}
	return false
}

var (
	pythonImport = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([\w.]+)`)

	// import name -> pip package, for the packages worth installing automatically
	pipPackages = map[string]string{
		"requests":   "requests",
		"numpy":      "numpy",
		"pandas":     "pandas",
		"matplotlib": "matplotlib",
		"scipy":      "scipy",
		"pygame":     "pygame",
		"bs4":        "beautifulsoup4",
		"selenium":   "selenium",
		"PIL":        "Pillow",
		"flask":      "flask",
		"django":     "django",
		"sqlalchemy": "sqlalchemy",
		"fastapi":    "fastapi",
		"tensorflow": "tensorflow",
		"keras":      "keras",
		"torch":      "torch",
		"sklearn":    "scikit-learn",
	}
)

// RequiredPackages lists the third-party pip packages a python program imports.
func RequiredPackages(code string) []string {
	seen := map[string]bool{}
	var pkgs []string
	for _, m := range pythonImport.FindAllStringSubmatch(code, -1) {
		module := strings.SplitN(m[1], ".", 2)[0]
		pkg, ok := pipPackages[module]
		if !ok || seen[pkg] {
			continue
		}
		seen[pkg] = true
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

func fileSafe(language string) string {
	r := strings.NewReplacer("+", "p", "#", "sharp")
	return r.Replace(language)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
