package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"agentloop/internal/di"
	"agentloop/internal/infrastructure/browser/rod"
	"agentloop/internal/infrastructure/logger"
	"agentloop/internal/infrastructure/snapshot"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var stateFormat string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect saved run snapshots",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <snapshot>",
	Short: "Print a snapshot as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := snapshot.ReadFile(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}
		out, err := snapshot.Render(state, stateFormat)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		browser := rod.NewBrowserAdapter(rod.DefaultConfig(), logger.NewNop())
		defer browser.Close()

		tools, err := di.NewTools(cfg, browser)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, def := range tools.Definitions() {
			fmt.Fprintf(w, "%s\t%s\n", def.Name, def.Description)
		}
		return w.Flush()
	},
}

func init() {
	stateShowCmd.Flags().StringVarP(&stateFormat, "format", "f", "json", "output format (json or yaml)")
	stateCmd.AddCommand(stateShowCmd)
}
