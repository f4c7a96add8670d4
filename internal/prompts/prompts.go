// Package prompts loads the prompt templates sent to the model. A file named
// <name>.md in the configured directory overrides the built-in default.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

//go:embed defaults/*.md
var defaults embed.FS

// ErrUnknownPrompt is returned when neither the directory nor the defaults have the template.
var ErrUnknownPrompt = errors.New("unknown prompt")

// personaOrder fixes where the persona fragments go in the system prompt.
var personaOrder = map[string]int{
	"identity.md":     1,
	"soul.md":         2,
	"capabilities.md": 3,
	"user.md":         4,
}

type Manager struct {
	Directory string
}

func NewManager(dir string) *Manager {
	return &Manager{Directory: dir}
}

// Raw returns the template text for name, preferring the directory copy.
func (m *Manager) Raw(name string) (string, error) {
	file := name + ".md"
	if m.Directory != "" {
		data, err := os.ReadFile(filepath.Join(m.Directory, file))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	data, err := defaults.ReadFile("defaults/" + file)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownPrompt, name)
	}
	return string(data), nil
}

// Render executes the named template with data.
func (m *Manager) Render(name string, data any) (string, error) {
	raw, err := m.Raw(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// System renders the named template as a system prompt, preceded by the persona
// when the directory defines one.
func (m *Manager) System(name string, data any) (string, error) {
	body, err := m.Render(name, data)
	if err != nil {
		return "", err
	}
	return m.WithPersona(body)
}

// WithPersona prefixes text with the persona fragments, if any.
func (m *Manager) WithPersona(text string) (string, error) {
	persona, err := m.Persona()
	if err != nil {
		return "", err
	}
	if persona == "" {
		return text, nil
	}
	return persona + "\n\n---\n\n" + text, nil
}

// Persona concatenates the persona fragments of the directory (identity, soul,
// capabilities, user, then any other non-template .md file by name). It is
// empty when the directory has none.
func (m *Manager) Persona() (string, error) {
	if m.Directory == "" {
		return "", nil
	}
	entries, err := os.ReadDir(m.Directory)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	templates, _ := fs.Glob(defaults, "defaults/*.md")
	builtin := make(map[string]bool, len(templates))
	for _, t := range templates {
		builtin[filepath.Base(t)] = true
	}

	sort.Slice(entries, func(i, j int) bool {
		oi, okI := personaOrder[entries[i].Name()]
		oj, okJ := personaOrder[entries[j].Name()]
		switch {
		case okI && okJ:
			return oi < oj
		case okI:
			return true
		case okJ:
			return false
		}
		return entries[i].Name() < entries[j].Name()
	})

	var parts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || builtin[name] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.Directory, name))
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", name, err)
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}
