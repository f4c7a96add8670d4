package tools

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrorClass separates problems the code author can fix from problems with
// the machine the code runs on.
type ErrorClass string

const (
	ClassNone        ErrorClass = "none"
	ClassEnvironment ErrorClass = "environment"
	ClassCodeDefect  ErrorClass = "code_defect"
	ClassUnknown     ErrorClass = "unknown"
)

// Diagnosis is the classification of one raw execution result.
type Diagnosis struct {
	Class ErrorClass
	// Kind is the matched signature, e.g. "SyntaxError" or "missing_module".
	Kind string
	// Subject is the missing module or command when one could be extracted.
	Subject string
}

var environmentSignatures = []struct {
	kind, needle string
}{
	{"missing_module", "ModuleNotFoundError"},
	{"missing_module", "No module named"},
	{"missing_module", "Cannot find module"},
	{"missing_command", "required command"},
	{"missing_command", "command not found"},
	{"missing_command", "executable file not found"},
	{"missing_command", "not recognized as an internal or external command"},
	{"missing_file", "No such file or directory"},
	{"missing_file", "cannot find file"},
}

var defectSignatures = []string{
	"SyntaxError", "IndentationError", "NameError", "TypeError", "ValueError", "IndexError",
	"AttributeError", "KeyError", "ZeroDivisionError", "ImportError", "UnboundLocalError",
	"ReferenceError", "RangeError", "Uncaught",
	"NullReferenceException", "InvalidOperationException", "IndexOutOfRange",
	"undeclared identifier", "was not declared", "expected ';'", "error[E", "error:",
	"panic:", "Traceback", "Exception",
}

var (
	moduleName  = regexp.MustCompile(`No module named '?([\w.\-]+)'?`)
	commandName = regexp.MustCompile(`required command '([^']+)'`)
)

// Classify sorts raw error text into the error taxonomy. Environment
// signatures are checked first so "ImportError: No module named x" stays an
// environment problem.
func Classify(raw string) Diagnosis {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Diagnosis{Class: ClassNone}
	}
	if strings.Contains(raw, "ImportError: cannot import name") {
		return Diagnosis{Class: ClassCodeDefect, Kind: "ImportError"}
	}
	for _, sig := range environmentSignatures {
		if strings.Contains(raw, sig.needle) {
			d := Diagnosis{Class: ClassEnvironment, Kind: sig.kind}
			if m := moduleName.FindStringSubmatch(raw); m != nil && sig.kind == "missing_module" {
				d.Subject = m[1]
			}
			if m := commandName.FindStringSubmatch(raw); m != nil && sig.kind == "missing_command" {
				d.Subject = m[1]
			}
			return d
		}
	}
	for _, sig := range defectSignatures {
		if strings.Contains(raw, sig) {
			return Diagnosis{Class: ClassCodeDefect, Kind: strings.TrimSuffix(sig, ":")}
		}
	}
	if strings.Contains(raw, ErrTimeout.Error()) {
		return Diagnosis{Class: ClassUnknown, Kind: "timeout"}
	}
	return Diagnosis{Class: ClassUnknown}
}

// IsFixable reports whether an automatic code correction could help.
func IsFixable(raw string) bool {
	return Classify(raw).Class == ClassCodeDefect
}

// FormatResult turns raw execution output into a message with an actionable
// hint. Successful output is returned unchanged.
func FormatResult(raw string, success bool) string {
	raw = strings.TrimSpace(raw)
	if success {
		if raw == "" {
			return "Execution finished with no output."
		}
		return raw
	}
	if raw == "" {
		return "[error] Execution failed with no output."
	}

	d := Classify(raw)
	switch d.Kind {
	case "missing_module":
		if d.Subject != "" {
			return fmt.Sprintf("[error] The code needs the '%s' package.\nInstall it with 'python3 -m pip install %s'.\n%s",
				d.Subject, d.Subject, raw)
		}
		return fmt.Sprintf("[error] A required package is missing:\n%s", raw)
	case "missing_command":
		if d.Subject != "" {
			return fmt.Sprintf("[error] The command '%s' is not available.\nInstall the language toolchain and check your PATH.", d.Subject)
		}
		return fmt.Sprintf("[error] A required command could not be found:\n%s", raw)
	case "SyntaxError", "IndentationError":
		return fmt.Sprintf("[error] The code has a syntax error:\n%s", raw)
	case "NameError", "ReferenceError":
		return fmt.Sprintf("[error] The code uses an undefined name:\n%s", raw)
	case "TypeError":
		return fmt.Sprintf("[error] A value of the wrong type was used:\n%s", raw)
	case "IndexError":
		return fmt.Sprintf("[error] An index is out of range:\n%s", raw)
	case "KeyError":
		return fmt.Sprintf("[error] A missing key was accessed:\n%s", raw)
	case "AttributeError":
		return fmt.Sprintf("[error] An attribute or method does not exist on the object:\n%s", raw)
	case "ImportError":
		return fmt.Sprintf("[error] An import failed:\n%s", raw)
	case "timeout":
		return fmt.Sprintf("[error] Execution did not finish in time:\n%s", raw)
	}

	lines := strings.Split(raw, "\n")
	if len(lines) > 5 {
		return "[error] Execution failed:\n" + strings.Join(append(append(lines[:2:2], "..."), lines[len(lines)-2:]...), "\n")
	}
	return "[error] Execution failed:\n" + raw
}
