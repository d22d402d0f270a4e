package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/patchbay"
	"github.com/aretw0/patchbay/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [patch.yaml]",
	Short: "Summarize a patch",
	Long: `Prints the nodes and arcs of a patch as markdown tables, styled when
stdout is a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := readPatch(cmd.Context(), args)
		if err != nil {
			return err
		}
		styled := tui.IsTerminal(os.Stdout)
		if noColor, _ := cmd.Flags().GetBool("plain"); noColor {
			styled = false
		}
		out := cmd.OutOrStdout()
		if styled {
			tui.PrintBanner(out, strings.TrimSpace(patchbay.Version))
		}
		rendered, err := tui.NewRenderer(styled)(tui.Summarize(snap))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("plain", false, "Disable styling")
}
