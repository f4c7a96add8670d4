// Package main implements the codemate CLI: an interactive task agent that
// plans requests into search, code generation and execution steps.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	version    = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "codemate",
	Short: "Task automation agent for search, code generation and execution",
	Long: `codemate turns natural language requests into plans of steps: web search,
code generation, running files, compiling, and managing files.

Without a subcommand it starts an interactive session.

Examples:
  # Interactive session
  codemate

  # One request
  codemate run "write a python script that prints primes below 100 and run it"

  # Chat gateways, metrics and the live dashboard
  codemate serve --config config.yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "config file (.json or .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level from the config")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run one request and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		task := strings.Join(args, " ")
		fmt.Fprintln(cmd.OutOrStdout(), a.Orchestrator.RunTask(cmd.Context(), task))
		return nil
	},
}
