package main

import (
	"fmt"

	"github.com/aretw0/patchbay"
	"github.com/aretw0/patchbay/internal/adapters/file"
	"github.com/aretw0/patchbay/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <patch.yaml>",
	Short: "Validate a patch file",
	Long:  `Applies the patch to a scratch graph and reports unknown node types and rejected arcs.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := file.ReadFile(args[0])
		if err != nil {
			return err
		}
		host, err := patchbay.New(patchbay.WithLogger(logger))
		if err != nil {
			return err
		}
		defer host.Close()

		report, err := validator.ValidatePatch(snap, host.Registry)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range report.Isolated {
			fmt.Fprintf(out, "warning: node %d has no connections\n", id)
		}
		if err := report.Err(); err != nil {
			fmt.Fprintln(out, err)
			return &exitError{code: 1}
		}
		fmt.Fprintf(out, "patch is valid (%d nodes)\n", report.Nodes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
