package main

import (
	"time"

	"github.com/aretw0/patchbay/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [patch.yaml]",
	Short: "Play a patch on a simulated audio clock",
	Long: `Runs the engine against a simulated device for the given duration (or
until interrupted) and prints the engine counters. Without a file the
configured stored patch is loaded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")
		watch, _ := cmd.Flags().GetBool("watch")
		save, _ := cmd.Flags().GetBool("save")
		debug, _ := cmd.Flags().GetBool("debug")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		stack, err := cli.NewStack(sc.Context, cfg, logger, debug)
		if err != nil {
			return err
		}
		defer stack.Close()

		opts := cli.RunOptions{
			Duration: duration,
			Watch:    watch,
			Save:     save,
			Inputs:   cfg.Audio.Inputs,
			Outputs:  cfg.Audio.Outputs,
			Out:      cmd.OutOrStdout(),
		}
		if len(args) > 0 {
			opts.PatchPath = args[0]
		}
		if err := cli.Run(sc.Context, stack.Host, opts, logger); err != nil {
			return err
		}
		if sig := sc.Signal(); sig != nil {
			logger.Info("interrupted", "signal", sig)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Duration("duration", 5*time.Second, "How long to run; 0 runs until interrupted")
	runCmd.Flags().BoolP("watch", "w", false, "Reload the patch file when it changes")
	runCmd.Flags().Bool("save", false, "Save the patch to the store on exit")
	runCmd.Flags().Bool("debug", false, "Log every node and sequence change")
}
