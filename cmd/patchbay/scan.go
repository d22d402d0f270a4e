package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/patchbay"
	"github.com/aretw0/patchbay/internal/cli"
	"github.com/aretw0/patchbay/pkg/adapters/process"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <identifier>...",
	Short: "Ask the configured workers to describe node types",
	Long: `Launches every worker listed in the workers file, sends it the
identifiers and prints what each one could describe. A worker that does not
connect within the timeout is killed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Worker.File
		if cmd.Flags().Changed("workers") {
			path, _ = cmd.Flags().GetString("workers")
		}
		results, err := cli.ScanWorkers(cmd.Context(), path, args, cfg.Worker.Timeout, cmd.ErrOrStderr(), logger)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintf(out, "no workers configured in %s\n", path)
			return nil
		}

		failed := 0
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "WORKER\tIDENTIFIER\tFORMAT\tPORTS")
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Fprintf(tw, "%s\t-\terror\t%v\n", res.Worker, res.Err)
				continue
			}
			for _, d := range res.Reply.Descriptions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", res.Worker, d.Identifier, d.Format, len(d.Ports))
			}
			if len(res.Reply.Unknown) > 0 {
				fmt.Fprintf(tw, "%s\t%s\tunknown\t-\n", res.Worker, strings.Join(res.Reply.Unknown, ","))
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if failed == len(results) {
			return &exitError{code: 1}
		}
		return nil
	},
}

// scanWorkerCmd is the child side of scan: the launcher starts it with
// --connect pointing at the host's socket.
var scanWorkerCmd = &cobra.Command{
	Use:    "scan-worker",
	Short:  "Answer scan requests from a host (started by scan)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString(strings.TrimPrefix(process.ConnectFlag, "--"))

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		host, err := patchbay.New(patchbay.WithLogger(logger))
		if err != nil {
			return err
		}
		defer host.Close()
		return cli.ServeWorker(sc.Context, addr, host.Registry, logger)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(scanWorkerCmd)
	scanCmd.Flags().String("workers", "", "Workers file (overrides worker.file)")
	scanWorkerCmd.Flags().String(strings.TrimPrefix(process.ConnectFlag, "--"), "", "Host socket address")
}
