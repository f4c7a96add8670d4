package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is a piece of code (or command text) about to be persisted or run.
type Request struct {
	Kind     string // step kind or capability asking, e.g. "code_generation"
	Language string
	Content  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

func (r Result) Allowed() bool { return r.Effect == EffectAllow }

// PolicyEngine evaluates requests against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a denylist: kinds, content patterns, and shell
// commands launched from inside code.
type DefaultPolicyEngine struct {
	DeniedKinds    map[string]bool
	DeniedRegex    []*regexp.Regexp
	DeniedCommands []string
	// AllowedCommandRegex exempts specific shell invocations, e.g. removing a single /tmp file.
	AllowedCommandRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedKinds: make(map[string]bool),
	}
}

// shellCall captures the first string literal passed to os.system / subprocess.*.
var shellCall = regexp.MustCompile(`(?i)(?:os\.system|subprocess\.(?:run|call|check_call|check_output|Popen)|exec\.Command|child_process\.exec(?:Sync)?|Runtime\.getRuntime\(\)\.exec)\s*\(\s*\[?\s*['"\x60](.*?)['"\x60]`)

// NewCodeSafetyPolicy returns the engine applied to generated and user-supplied code.
func NewCodeSafetyPolicy() *DefaultPolicyEngine {
	e := NewDefaultPolicyEngine()
	for _, p := range []string{
		`rm\s+-(?:rf|fr|r)\b`,
		`\bdeltree\b`,
		`\bformat\s+[a-z]:`,
		`:\(\)\s*\{\s*:\|:&\s*\};:`,
		`os\.fork\(\)`,
		`shutil\.rmtree`,
		`\bmkfs(?:\.\w+)?\b`,
		`dd\s+if=.*\s+of=/dev/`,
		`>\s*/dev/sd[a-z]`,
		`chmod\s+-R\s+0?777\s+/`,
	} {
		e.mustDeny(p)
	}
	e.DeniedCommands = []string{"rm", "del", "format", "mkfs", "dd", "shutdown", "reboot", "wget", "curl"}
	e.mustAllow(`^rm\s+(?:-f\s+)?/tmp/[^\s*]+$`)
	return e
}

func (e *DefaultPolicyEngine) mustDeny(pattern string) {
	if err := e.DenyPattern(pattern); err != nil {
		panic("governance: bad deny pattern " + pattern + ": " + err.Error())
	}
}

func (e *DefaultPolicyEngine) mustAllow(pattern string) {
	if err := e.AllowCommand(pattern); err != nil {
		panic("governance: bad allow pattern " + pattern + ": " + err.Error())
	}
}

// DenyKind rejects every request of kind, e.g. "code_block_execution".
func (e *DefaultPolicyEngine) DenyKind(kind string) {
	e.DeniedKinds[kind] = true
}

// DenyPattern adds a case-insensitive content rule.
func (e *DefaultPolicyEngine) DenyPattern(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) AllowCommand(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.AllowedCommandRegex = append(e.AllowedCommandRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedKinds[req.Kind] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("'%s' is restricted by system policy", req.Kind),
		}, nil
	}

	for _, m := range shellCall.FindAllStringSubmatch(req.Content, -1) {
		if reason, denied := e.checkCommand(m[1]); denied {
			return Result{Effect: EffectDeny, Reason: reason}, nil
		}
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Content) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("content matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

func (e *DefaultPolicyEngine) checkCommand(cmd string) (string, bool) {
	cmd = strings.TrimSpace(cmd)
	for _, re := range e.AllowedCommandRegex {
		if re.MatchString(cmd) {
			return "", false
		}
	}
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", false
	}
	name := strings.ToLower(fields[0])
	for _, denied := range e.DeniedCommands {
		if name == denied || strings.HasSuffix(name, "/"+denied) {
			return fmt.Sprintf("code launches restricted command %q", denied), true
		}
	}
	return "", false
}
