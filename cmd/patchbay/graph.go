package main

import (
	"fmt"

	"github.com/aretw0/patchbay/internal/presentation/graph"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [patch.yaml]",
	Short: "Export a patch as a Mermaid diagram",
	Long: `Prints the patch as a Mermaid flowchart. Without a file the configured
stored patch is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := readPatch(cmd.Context(), args)
		if err != nil {
			return err
		}
		ids, _ := cmd.Flags().GetUintSlice("highlight")
		var overlay *graph.Overlay
		if len(ids) > 0 {
			overlay = &graph.Overlay{}
			for _, id := range ids {
				overlay.Highlight = append(overlay.Highlight, domain.NodeID(id))
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(snap, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().UintSlice("highlight", nil, "Node ids to highlight")
}
