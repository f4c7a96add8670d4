package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rahul/codemate/internal/intent"
	"github.com/rahul/codemate/internal/observability"
	"go.uber.org/zap"
)

// Summarizer answers a question from fetched page text.
type Summarizer interface {
	Summarize(ctx context.Context, query, pageText, language string) (string, error)
}

// ResearchResult is the outcome of one web research request.
type ResearchResult struct {
	Success bool
	Summary string
	Sources []string
	Pages   []string
}

// Researcher fetches result pages for a query and condenses them into an
// answer with the LLM.
type Researcher struct {
	Provider          URLProvider
	Fetcher           Fetcher
	Summarizer        Summarizer
	MaxResults        int
	ContextTokenLimit int
	Language          string
	Logger            *observability.Logger
}

const maxPageChars = 2000

var researchMessages = map[string]struct {
	noResults, summaryFailed string
}{
	"ko": {
		noResults:     "웹 검색 중 오류가 발생했거나 관련 정보를 찾을 수 없습니다.",
		summaryFailed: "검색 결과를 요약하는 데 실패했습니다. 첫 번째 결과 일부:",
	},
	"en": {
		noResults:     "An error occurred during web search or no relevant information was found.",
		summaryFailed: "Failed to summarize search results. Beginning of the first result:",
	},
}

// LanguageFor picks the response language: explicit hint, Hangul in the
// query, then the configured default.
func (r *Researcher) LanguageFor(query, hint string) string {
	switch {
	case hint == "ko" || hint == "en":
		return hint
	case intent.IsKorean(query):
		return "ko"
	case r.Language == "ko":
		return "ko"
	default:
		return "en"
	}
}

// Research never returns an error; failures come back as an unsuccessful
// result with a message in the response language.
func (r *Researcher) Research(ctx context.Context, query, languageHint string) ResearchResult {
	lang := r.LanguageFor(query, languageHint)
	msgs := researchMessages[lang]

	pages, sources := r.fetchPages(ctx, query)
	if len(pages) == 0 {
		return ResearchResult{Success: false, Summary: msgs.noResults}
	}

	corpus := strings.Join(pages, "\n\n---\n\n")
	if limit := r.ContextTokenLimit * 4; limit > 0 && len(corpus) > limit {
		corpus = truncateRunes(corpus, limit)
	}

	summary, err := r.Summarizer.Summarize(ctx, query, corpus, lang)
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			r.log().Warn("summarization failed", zap.Error(err))
		}
		return ResearchResult{
			Success: true,
			Summary: fmt.Sprintf("%s\n%s...", msgs.summaryFailed, truncateRunes(pages[0], 300)),
			Sources: sources,
			Pages:   pages,
		}
	}
	return ResearchResult{Success: true, Summary: strings.TrimSpace(summary), Sources: sources, Pages: pages}
}

func (r *Researcher) fetchPages(ctx context.Context, query string) ([]string, []string) {
	maxResults := r.MaxResults
	if maxResults <= 0 {
		maxResults = 2
	}
	urls, err := r.Provider.SearchURLs(ctx, query, maxResults+2)
	if err != nil {
		r.log().Warn("search provider failed", zap.String("query", query), zap.Error(err))
		return nil, nil
	}

	var pages, sources []string
	seen := make(map[string]bool)
	for _, u := range urls {
		if len(pages) >= maxResults {
			break
		}
		if seen[u] {
			continue
		}
		seen[u] = true

		text, err := r.Fetcher.Fetch(ctx, u)
		if err != nil {
			r.log().Warn("fetch failed", zap.String("url", u), zap.Error(err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, truncateRunes(text, maxPageChars))
		sources = append(sources, u)
	}
	return pages, sources
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func (r *Researcher) log() *observability.Logger {
	if r.Logger == nil {
		return observability.NewNop()
	}
	return r.Logger
}
