package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/governance"
	"github.com/rahul/codemate/internal/metrics"
	"github.com/rahul/codemate/internal/store"
	"github.com/rahul/codemate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRunner struct {
	tasks []string
}

func (r *echoRunner) RunTask(_ context.Context, task string) string {
	r.tasks = append(r.tasks, task)
	return "report for " + task
}

type fixedHistory []agent.TaskRecord

func (h fixedHistory) Records() []agent.TaskRecord { return h }

func TestRepl(t *testing.T) {
	runner := &echoRunner{}
	in := strings.NewReader("\nlist files\nhelp\nhistory\n종료\nnever reached\n")
	var out bytes.Buffer

	err := repl(context.Background(), in, &out, runner, fixedHistory(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"list files"}, runner.tasks)
	assert.Contains(t, out.String(), "report for list files")
	assert.Contains(t, out.String(), "compile and run main.c")
	assert.Contains(t, out.String(), "No tasks yet.")
	assert.Contains(t, out.String(), "Bye.")
}

func TestRepl_EOF(t *testing.T) {
	runner := &echoRunner{}
	err := repl(context.Background(), strings.NewReader("search go generics"), &bytes.Buffer{}, runner, fixedHistory(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"search go generics"}, runner.tasks)
}

func TestRepl_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &echoRunner{}
	require.NoError(t, repl(ctx, strings.NewReader("list files\n"), &bytes.Buffer{}, runner, fixedHistory(nil)))
	assert.Empty(t, runner.tasks)
}

func TestFormatHistory(t *testing.T) {
	records := []agent.TaskRecord{{
		Task: "compile and run main.c",
		Plan: agent.Plan{Source: agent.SourcePattern, Steps: []agent.Step{
			{Kind: agent.KindCompilation}, {Kind: agent.KindCompiledRun},
		}},
		Results: []agent.StepRecord{
			{Kind: agent.KindCompilation, Outcome: agent.StepOutcome{Success: false}},
		},
		FinalResult: "compilation of main.c failed:\nmain.c:3: error",
		Timestamp:   time.Now().Add(-2 * time.Hour),
	}}

	got := formatHistory(records)
	assert.Equal(t, "[2 hours ago] compile and run main.c\n"+
		"  plan (pattern): compilation -> compiled_run\n"+
		"  steps run: 1, failed: 1\n"+
		"  result: compilation of main.c failed: ...", got)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "abc", firstLine("  abc  ", 10))
	assert.Equal(t, "abcdefg...", firstLine(strings.Repeat("abcdefghij", 3), 10))
}

func TestMetricsMux(t *testing.T) {
	a := &app{Metrics: metrics.New()}
	a.Metrics.PlanBuilt("pattern")
	srv := httptest.NewServer(metricsMux(a))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestModelProfiles_DoesNotAliasConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Search.SummaryMaxTokens = 77

	profiles := modelProfiles(cfg)
	assert.Equal(t, 77, profiles["summarization"].MaxTokens)
	assert.Equal(t, 200, cfg.Models["summarization"].MaxTokens)

	cfg.Models = nil
	profiles = modelProfiles(cfg)
	assert.Equal(t, 77, profiles["summarization"].MaxTokens)
}

func TestFormatMessages(t *testing.T) {
	assert.Equal(t, "No messages yet.", formatMessages(nil))

	msgs := []store.Message{
		{ChatID: "42", Role: "human", Content: "list files", CreatedAt: time.Now().Add(-3 * time.Minute)},
		{ChatID: "42", Role: "ai", Content: "Directory: .\nmain.go", CreatedAt: time.Now().Add(-3 * time.Minute)},
	}
	assert.Equal(t, "[3 minutes ago] human: list files\n[3 minutes ago] ai: Directory: . ...", formatMessages(msgs))
}

func TestNewPolicy_DeniedKinds(t *testing.T) {
	cfg := config.Default()
	cfg.Sandbox.DeniedKinds = []string{"code_block_execution"}
	policy := newPolicy(cfg)

	res, err := policy.Evaluate(context.Background(), governance.Request{Kind: "code_block_execution", Content: "print(1)"})
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	res, err = policy.Evaluate(context.Background(), governance.Request{Kind: "generated_code", Content: "print(1)"})
	require.NoError(t, err)
	assert.True(t, res.Allowed())
}
