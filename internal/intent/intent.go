// Package intent detects what a free-text request asks for using fixed
// English and Korean keyword sets.
package intent

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Keyword sets. ASCII entries match on word boundaries, Hangul entries as
// substrings since Korean attaches particles and endings to the stem.
// Single-word English entries of the action sets also match their inflected
// forms ("searching", "compiled", "runs").
var (
	SearchKeywords    = []string{"검색", "찾아줘", "알아봐", "search", "look up", "google"}
	CodegenKeywords   = []string{"코드", "프로그램", "짜줘", "code", "program", "script", "generate", "develop", "implement"}
	AuthoringVerbs    = []string{"작성", "만들", "create", "write", "make"}
	ExecuteKeywords   = []string{"실행", "돌려", "run", "execute", "start"}
	CompileKeywords   = []string{"컴파일", "빌드", "compile", "build"}
	DirectoryKeywords = []string{"디렉토리", "폴더", "directory", "folder", "ls", "list files"}
	FileKeywords      = []string{"파일 관리", "file manage", "생성", "삭제", "이동", "복사", "읽기", "쓰기", "create", "delete", "remove", "move", "rename", "copy", "read", "write"}
)

// LanguageKeywords maps a canonical language name to the words that name it.
// Order matters: earlier entries win when several match.
var LanguageKeywords = []struct {
	Language string
	Words    []string
}{
	{"python", []string{"python", "파이썬"}},
	{"javascript", []string{"javascript", "node.js", "nodejs", "js", "자바스크립트"}},
	{"typescript", []string{"typescript", "ts", "타입스크립트"}},
	{"java", []string{"java", "자바"}},
	{"c++", []string{"c++", "cpp", "씨쁠쁠"}},
	{"c#", []string{"c#", "csharp", "씨샵"}},
	{"rust", []string{"rust", "러스트"}},
	{"go", []string{"golang", "go language", "go program", "in go"}},
	{"ruby", []string{"ruby", "루비"}},
	{"php", []string{"php"}},
	{"kotlin", []string{"kotlin", "코틀린"}},
	{"swift", []string{"swift", "스위프트"}},
	{"c", []string{"c language", "c program", "in c", "c언어", "씨언어"}},
}

// Flags is the keyword profile of one request.
type Flags struct {
	Search    bool
	Codegen   bool
	Execute   bool
	Compile   bool
	Directory bool
	File      bool
	Language  string
}

// Detect computes the keyword profile of task.
func Detect(task string) Flags {
	lower := strings.ToLower(task)
	f := Flags{
		Search:    ContainsAny(lower, SearchKeywords),
		Execute:   ContainsAny(lower, ExecuteKeywords),
		Compile:   ContainsAny(lower, CompileKeywords),
		Directory: ContainsAny(lower, DirectoryKeywords),
		File:      ContainsAny(lower, FileKeywords),
		Language:  DetectLanguage(lower),
	}
	// "create notes.txt" is file management; "create a python script" is code.
	f.Codegen = ContainsAny(lower, CodegenKeywords) ||
		(f.Language != "" && ContainsAny(lower, AuthoringVerbs))
	return f
}

// DetectLanguage returns the first language named in text, or "".
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	for _, l := range LanguageKeywords {
		if ContainsAny(lower, l.Words) {
			return l.Language
		}
	}
	return ""
}

// WantsExecution reports whether the phrasing asks for the result to be run.
func WantsExecution(task string) bool {
	return ContainsAny(strings.ToLower(task), ExecuteKeywords)
}

// IsKorean reports whether text contains Hangul.
func IsKorean(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// ContainsAny reports whether lower contains any of the keywords.
func ContainsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if Contains(lower, kw) {
			return true
		}
	}
	return false
}

var (
	boundaryCache sync.Map // keyword -> *regexp.Regexp
	verbs         = map[string]bool{}
	wordRE        = regexp.MustCompile(`^[a-z]{3,}$`)
)

func init() {
	for _, set := range [][]string{SearchKeywords, CodegenKeywords, AuthoringVerbs, ExecuteKeywords, CompileKeywords, FileKeywords} {
		for _, kw := range set {
			if wordRE.MatchString(kw) {
				verbs[kw] = true
			}
		}
	}
}

func boundary(keyword string) *regexp.Regexp {
	if re, ok := boundaryCache.Load(keyword); ok {
		return re.(*regexp.Regexp)
	}
	word := regexp.QuoteMeta(keyword)
	if verbs[keyword] {
		word = inflections(keyword)
	}
	// ASCII-only guards so "python으로" still matches; '+' and '#' keep c from matching c++.
	re := regexp.MustCompile(`(?:^|[^a-z0-9_])` + word + `(?:$|[^a-z0-9_+#])`)
	boundaryCache.Store(keyword, re)
	return re
}

// inflections returns a pattern for verb and its regular English forms.
func inflections(verb string) string {
	last := verb[len(verb)-1:]
	switch {
	case last == "e":
		return verb[:len(verb)-1] + `(?:e|es|ed|ing|er|ers)`
	case last == "y":
		return verb[:len(verb)-1] + `(?:y|ies|ied|ying|ier)`
	default:
		return verb + `(?:|s|es|ed|ing|er|ers|` + last + `ed|` + last + `ing|` + last + `er)`
	}
}

// Contains matches one keyword: Hangul by substring, everything else on word boundaries.
func Contains(lower, keyword string) bool {
	if IsKorean(keyword) {
		return strings.Contains(lower, keyword)
	}
	return boundary(keyword).MatchString(lower)
}
