package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

var (
	ErrTimeout             = errors.New("timed out")
	ErrCommandNotFound     = errors.New("required command not found")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrNotCompiled         = errors.New("language is not compiled")
)

// CommandResult is the outcome of one subprocess.
type CommandResult struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	Duration time.Duration
}

// Success means the process started and exited with status 0.
func (r CommandResult) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Raw renders the result as the text fed to Classify and shown to users.
func (r CommandResult) Raw() string {
	var b strings.Builder
	if r.Err != nil {
		switch {
		case errors.Is(r.Err, ErrCommandNotFound) && len(r.Argv) > 0:
			fmt.Fprintf(&b, "required command '%s' not found", r.Argv[0])
		default:
			b.WriteString(r.Err.Error())
		}
		b.WriteString("\n")
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		b.WriteString(s)
	}
	return strings.TrimSpace(b.String())
}

// Sandbox runs generated code and toolchains as local subprocesses with
// per-operation timeouts.
type Sandbox struct {
	Python         string
	BuildDir       string
	ExecTimeout    time.Duration
	CompileTimeout time.Duration
	InstallTimeout time.Duration
}

func NewSandbox(python, buildDir string, execTimeout, compileTimeout, installTimeout time.Duration) *Sandbox {
	if python == "" {
		python = "python3"
	}
	if buildDir == "" {
		buildDir = filepath.Join(os.TempDir(), "codemate-build")
	}
	return &Sandbox{
		Python:         python,
		BuildDir:       buildDir,
		ExecTimeout:    execTimeout,
		CompileTimeout: compileTimeout,
		InstallTimeout: installTimeout,
	}
}

// RunCommand executes argv and captures its output.
func (s *Sandbox) RunCommand(ctx context.Context, argv []string, timeout time.Duration) CommandResult {
	res := CommandResult{Argv: argv}
	if len(argv) == 0 {
		res.Err = errors.New("empty command")
		return res
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		res.Err = fmt.Errorf("%w: %s", ErrCommandNotFound, argv[0])
		return res
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.Err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// ExecuteFile runs a source file. Compiled languages are built into the
// build dir first.
func (s *Sandbox) ExecuteFile(ctx context.Context, path string) CommandResult {
	if _, err := os.Stat(path); err != nil {
		return CommandResult{ExitCode: -1, Err: fmt.Errorf("cannot find file %s: %w", path, err)}
	}
	lang, ok := LanguageForPath(path)
	if !ok {
		return CommandResult{ExitCode: -1, Err: fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filepath.Ext(path))}
	}
	if lang.Compiled() {
		output, res := s.Compile(ctx, path, lang)
		if !res.Success() {
			return res
		}
		return s.RunCompiled(ctx, output, lang)
	}
	return s.RunCommand(ctx, s.interpreterArgv(lang, path), s.ExecTimeout)
}

// ExecuteCode writes code to a scratch file and runs it.
func (s *Sandbox) ExecuteCode(ctx context.Context, code, language string) CommandResult {
	lang, ok := LanguageByName(language)
	if !ok {
		return CommandResult{ExitCode: -1, Err: fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)}
	}
	dir, err := os.MkdirTemp("", "codemate-snippet-")
	if err != nil {
		return CommandResult{ExitCode: -1, Err: err}
	}
	defer os.RemoveAll(dir)

	name := "snippet" + lang.Ext()
	if lang.Name == "java" {
		name = "Main.java"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return CommandResult{ExitCode: -1, Err: err}
	}
	return s.ExecuteFile(ctx, path)
}

// Compile builds src into OutputPathFor(src, lang).
func (s *Sandbox) Compile(ctx context.Context, src string, lang Language) (string, CommandResult) {
	if !lang.Compiled() {
		return "", CommandResult{ExitCode: -1, Err: fmt.Errorf("%w: %s", ErrNotCompiled, lang.Name)}
	}
	output := s.OutputPathFor(src, lang)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", CommandResult{ExitCode: -1, Err: err}
	}
	return output, s.RunCommand(ctx, lang.CompileCommand(src, output), s.CompileTimeout)
}

// RunCompiled executes a binary produced by Compile.
func (s *Sandbox) RunCompiled(ctx context.Context, output string, lang Language) CommandResult {
	return s.RunCommand(ctx, RunArgv(lang, output), s.ExecTimeout)
}

// InstallPackages installs python packages with pip.
func (s *Sandbox) InstallPackages(ctx context.Context, pkgs []string) CommandResult {
	argv := append([]string{s.Python, "-m", "pip", "install"}, pkgs...)
	return s.RunCommand(ctx, argv, s.InstallTimeout)
}

// OutputPathFor is the deterministic binary location for a source file.
func (s *Sandbox) OutputPathFor(src string, lang Language) string {
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if lang.Name == "c#" || runtime.GOOS == "windows" {
		stem += ".exe"
	}
	return filepath.Join(s.BuildDir, stem)
}

// RunArgv returns the argv that launches a compiled binary. C# assemblies
// need mono outside Windows.
func RunArgv(lang Language, output string) []string {
	if lang.Name == "c#" && runtime.GOOS != "windows" {
		return []string{"mono", output}
	}
	return []string{output}
}

func (s *Sandbox) interpreterArgv(lang Language, path string) []string {
	argv := append([]string{}, lang.Interpreter...)
	if lang.Name == "python" {
		argv[0] = s.Python
	}
	return append(argv, path)
}
