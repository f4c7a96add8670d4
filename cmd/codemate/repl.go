package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/observability"
	"github.com/spf13/cobra"
)

var exitWords = map[string]bool{"exit": true, "quit": true, "q": true, "종료": true}

const replHelp = `Type a request in English or Korean, for example:
  search for the latest Go release notes
  write a python script that draws a spiral and run it
  compile and run main.c
  list files in folder src
  delete notes.txt

Commands:
  help      show this help
  history   show the requests of this session
  exit      leave (also quit, q, 종료)`

// taskRunner is the part of the orchestrator the REPL needs.
type taskRunner interface {
	RunTask(ctx context.Context, task string) string
}

type sessionHistory interface {
	Records() []agent.TaskRecord
}

func runInteractive(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if observability.IsInteractive() {
		observability.PrintBanner(a.Config.App.Name, "search, write, run and fix code from one request")
	}
	return repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), a.Orchestrator, a.Memory)
}

// repl reads one request per line until an exit word, EOF or cancellation.
func repl(ctx context.Context, in io.Reader, out io.Writer, runner taskRunner, history sessionHistory) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Type 'help' for examples, 'exit' to quit.")
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch lower := strings.ToLower(line); {
		case line == "":
			continue
		case exitWords[lower]:
			fmt.Fprintln(out, "Bye.")
			return nil
		case lower == "help":
			fmt.Fprintln(out, replHelp)
			continue
		case lower == "history":
			fmt.Fprintln(out, formatHistory(history.Records()))
			continue
		}

		fmt.Fprintln(out, runner.RunTask(ctx, line))
	}
}
