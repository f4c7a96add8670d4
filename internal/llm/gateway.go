// Package llm is the single door to the language model. Every call names a
// task type whose profile (model, temperature, token limit, JSON mode) comes
// from configuration.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/codemate/internal/observability"
	"github.com/rahul/codemate/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// TaskType selects a model profile.
type TaskType string

const (
	TaskPlanning      TaskType = "planning"
	TaskCodeGen       TaskType = "code_gen"
	TaskCorrection    TaskType = "correction"
	TaskSummarization TaskType = "summarization"
	TaskChat          TaskType = "default"
)

var ErrEmptyResponse = errors.New("empty response from model")

// Completer is what the rest of the agent depends on.
type Completer interface {
	Complete(ctx context.Context, task TaskType, messages []llms.MessageContent) (string, error)
}

type Gateway struct {
	Model    llms.Model
	Profiles map[string]config.ModelProfile
	Logger   *observability.Logger
	Observer func(task TaskType, d time.Duration, err error)
}

func NewGateway(model llms.Model, profiles map[string]config.ModelProfile, logger *observability.Logger) *Gateway {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Gateway{Model: model, Profiles: profiles, Logger: logger}
}

// NewOpenAI builds the provider model from config.
func NewOpenAI(p config.ProviderConfig) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(p.APIKey)}
	if p.Model != "" {
		opts = append(opts, openai.WithModel(p.Model))
	}
	if p.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(p.BaseURL))
	}
	return openai.New(opts...)
}

func (g *Gateway) profile(task TaskType) config.ModelProfile {
	if p, ok := g.Profiles[string(task)]; ok {
		return p
	}
	return g.Profiles["default"]
}

// CallOptions renders a profile as langchaingo call options.
func CallOptions(p config.ModelProfile) []llms.CallOption {
	var opts []llms.CallOption
	if p.Model != "" {
		opts = append(opts, llms.WithModel(p.Model))
	}
	opts = append(opts, llms.WithTemperature(p.Temperature))
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}
	if p.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

func (g *Gateway) Complete(ctx context.Context, task TaskType, messages []llms.MessageContent) (string, error) {
	p := g.profile(task)
	start := time.Now()

	resp, err := g.Model.GenerateContent(ctx, messages, CallOptions(p)...)
	content := ""
	if err == nil {
		if len(resp.Choices) == 0 {
			err = ErrEmptyResponse
		} else {
			content = strings.TrimSpace(resp.Choices[0].Content)
		}
	}
	if g.Observer != nil {
		g.Observer(task, time.Since(start), err)
	}
	g.Logger.LogLLM(string(task), p.Model, transcript(messages), content)

	if err != nil {
		g.Logger.Warn("llm call failed", zap.String("task_type", string(task)), zap.String("model", p.Model), zap.Error(err))
		return "", fmt.Errorf("%s call failed: %w", task, err)
	}
	return content, nil
}

// Messages builds a system + user exchange.
func Messages(system, user string) []llms.MessageContent {
	var msgs []llms.MessageContent
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, user))
}

func transcript(messages []llms.MessageContent) []map[string]string {
	out := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		var text strings.Builder
		for _, part := range m.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				text.WriteString(tc.Text)
			}
		}
		out = append(out, map[string]string{"role": string(m.Role), "content": text.String()})
	}
	return out
}

// Summarizer adapts the gateway to web research summaries.
type Summarizer struct {
	Completer Completer
	Prompts   interface {
		Render(name string, data any) (string, error)
	}
}

func (s Summarizer) Summarize(ctx context.Context, query, pageText, language string) (string, error) {
	languageName := "English"
	if language == "ko" {
		languageName = "Korean"
	}
	system, err := s.Prompts.Render("summarize", map[string]string{"Language": languageName})
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("Original Question: %s\n\nContext:\n%s", query, pageText)
	return s.Completer.Complete(ctx, TaskSummarization, Messages(system, user))
}
