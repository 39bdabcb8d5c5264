package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "tweaker",
	Short: "Tune named parameters of a running program live",
	Long: `tweaker keeps a set of named int, float and bool parameters, lets you
adjust them interactively, and pushes every change to a consumer connected
over a local TCP socket. Parameters are saved between sessions.

Running tweaker without a subcommand opens the interactive editor.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(true)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable coloured output")
	rootCmd.AddCommand(uiCmd, serveCmd, registerCmd, listCmd, setCmd, watchCmd, statusCmd, configCmd)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCmd.Execute()
}
