package tools

import (
	"path/filepath"
	"strings"
)

// Language describes how to run or build one source language.
type Language struct {
	Name       string
	Extensions []string
	// Interpreter is the argv prefix for interpreted languages; the source path is appended.
	Interpreter []string
	// CompileTemplate uses {input} and {output} placeholders. Empty for interpreted languages.
	CompileTemplate []string
}

func (l Language) Compiled() bool { return len(l.CompileTemplate) > 0 }

// Ext returns the canonical extension for generated files.
func (l Language) Ext() string {
	if len(l.Extensions) == 0 {
		return ".txt"
	}
	return l.Extensions[0]
}

var languages = []Language{
	{Name: "python", Extensions: []string{".py"}, Interpreter: []string{"python3"}},
	{Name: "javascript", Extensions: []string{".js", ".mjs"}, Interpreter: []string{"node"}},
	{Name: "typescript", Extensions: []string{".ts"}, Interpreter: []string{"npx", "ts-node"}},
	{Name: "ruby", Extensions: []string{".rb"}, Interpreter: []string{"ruby"}},
	{Name: "php", Extensions: []string{".php"}, Interpreter: []string{"php"}},
	{Name: "shell", Extensions: []string{".sh"}, Interpreter: []string{"bash"}},
	{Name: "java", Extensions: []string{".java"}, Interpreter: []string{"java"}},
	{Name: "kotlin", Extensions: []string{".kt"}, Interpreter: []string{"kotlinc", "-script"}},
	{Name: "swift", Extensions: []string{".swift"}, Interpreter: []string{"swift"}},
	{Name: "r", Extensions: []string{".r"}, Interpreter: []string{"Rscript"}},
	{Name: "c", Extensions: []string{".c"}, CompileTemplate: []string{"gcc", "{input}", "-o", "{output}"}},
	{Name: "c++", Extensions: []string{".cpp", ".cc", ".cxx"}, CompileTemplate: []string{"g++", "{input}", "-o", "{output}"}},
	{Name: "rust", Extensions: []string{".rs"}, CompileTemplate: []string{"rustc", "{input}"}},
	{Name: "c#", Extensions: []string{".cs"}, CompileTemplate: []string{"mcs", "{input}", "-out:{output}"}},
	{Name: "go", Extensions: []string{".go"}, CompileTemplate: []string{"go", "build", "-o", "{output}", "{input}"}},
}

// LanguageByName looks up a language by its canonical name.
func LanguageByName(name string) (Language, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, l := range languages {
		if l.Name == name {
			return l, true
		}
	}
	return Language{}, false
}

// LanguageForPath resolves the language of a source file from its extension.
func LanguageForPath(path string) (Language, bool) {
	ext := filepath.Ext(path)
	for _, l := range languages {
		for _, e := range l.Extensions {
			if strings.EqualFold(e, ext) {
				return l, true
			}
		}
	}
	return Language{}, false
}

// CompileCommand expands the template for a source/output pair. Templates
// without an {output} placeholder get a trailing "-o <output>".
func (l Language) CompileCommand(input, output string) []string {
	argv := make([]string, 0, len(l.CompileTemplate)+2)
	hasOutput := false
	for _, a := range l.CompileTemplate {
		if strings.Contains(a, "{output}") {
			hasOutput = true
		}
		a = strings.ReplaceAll(a, "{input}", input)
		a = strings.ReplaceAll(a, "{output}", output)
		argv = append(argv, a)
	}
	if !hasOutput {
		argv = append(argv, "-o", output)
	}
	return argv
}
