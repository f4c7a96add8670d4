package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/store"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyChat  string
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of tasks or messages to show")
	historyCmd.Flags().StringVar(&historyChat, "chat", "", "show the conversation of a gateway chat id instead of tasks")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently archived tasks",
	Long: `Show the most recent tasks from the sqlite archive, oldest first.
With --chat, show the messages exchanged with one gateway chat instead.

Examples:
  codemate history
  codemate history -n 3
  codemate history --chat 123456789`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.History == nil {
			return fmt.Errorf("task archive is disabled (memory.type is %q)", a.Config.Memory.Type)
		}
		if historyChat != "" {
			msgs, err := a.History.GetHistory(cmd.Context(), historyChat, historyLimit)
			if err != nil {
				return fmt.Errorf("failed to read chat history: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatMessages(msgs))
			return nil
		}

		rows, err := a.History.RecentTasks(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}

		records := make([]agent.TaskRecord, 0, len(rows))
		for _, row := range rows {
			rec, err := agent.FromStoreTask(row)
			if err != nil {
				a.Logger.Warn(err.Error())
			}
			records = append(records, rec)
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatHistory(records))
		return nil
	},
}

const historyResultWidth = 100

// formatHistory renders task records for the terminal, one block per task.
func formatHistory(records []agent.TaskRecord) string {
	if len(records) == 0 {
		return "No tasks yet."
	}
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s\n", humanize.Time(rec.Timestamp), rec.Task)

		kinds := make([]string, 0, len(rec.Plan.Steps))
		for _, s := range rec.Plan.Steps {
			kinds = append(kinds, string(s.Kind))
		}
		failedSteps := 0
		for _, r := range rec.Results {
			if !r.Outcome.Success {
				failedSteps++
			}
		}
		fmt.Fprintf(&b, "  plan (%s): %s\n", rec.Plan.Source, strings.Join(kinds, " -> "))
		fmt.Fprintf(&b, "  steps run: %d, failed: %d\n", len(rec.Results), failedSteps)
		fmt.Fprintf(&b, "  result: %s\n", firstLine(rec.FinalResult, historyResultWidth))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMessages(msgs []store.Message) string {
	if len(msgs) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", humanize.Time(m.CreatedAt), m.Role, firstLine(m.Content, historyResultWidth))
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstLine(s string, width int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if r := []rune(s); len(r) > width {
		s = string(r[:width-3]) + "..."
	}
	return s
}
