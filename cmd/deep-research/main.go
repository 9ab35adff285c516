// Command deep-research runs research and inspects configuration from the
// terminal, without an MCP client.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "deep-research",
		Short:         "Run deep research tasks from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("log-level", "", "Log level (DEBUG, INFO, WARNING, ERROR); defaults to LOGGING_LEVEL")
	root.AddCommand(
		newModelsCommand(),
		newConfigCommand(),
		newResearchCommand(),
		newStatusCommand(),
		newClarifyCommand(),
	)
	return root
}
