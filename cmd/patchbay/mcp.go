package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aretw0/patchbay/internal/cli"
	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp [patch.yaml]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP Server so agents can inspect and edit the
patch through tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr := cfg.MCP.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		if transport == "" {
			transport = "stdio"
			if addr != "" {
				transport = "sse"
			}
		}

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		stack, err := cli.NewStack(sc.Context, cfg, logger, false)
		if err != nil {
			return err
		}
		defer stack.Close()
		host := stack.Host

		patchPath := ""
		if len(args) > 0 {
			patchPath = args[0]
		}
		if err := cli.LoadPatch(sc.Context, host, patchPath, logger); err != nil {
			return err
		}

		driver := host.NewDriver(
			runtime.WithChannels(cfg.Audio.Inputs, cfg.Audio.Outputs),
			runtime.WithDriverLogger(logger),
		)
		go func() { _ = driver.Run(sc.Context) }()

		srv := mcp.NewServer(host.Graph,
			mcp.WithCatalog(host.Registry),
			mcp.WithAutoCommit(true),
			mcp.WithLogger(logger),
		)

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting patchbay MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			if addr == "" {
				addr = ":8081"
			}
			if err := srv.ServeSSE(sc.Context, addr); err != nil {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "", "Transport protocol to use: 'stdio' or 'sse' (default stdio, sse when an address is set)")
	mcpCmd.Flags().String("addr", "", "Address to listen on (only for SSE, overrides mcp.addr)")
}
