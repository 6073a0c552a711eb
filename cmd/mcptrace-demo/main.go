package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mcptrace-demo",
		Short: "Demo MCP server and client with OpenTelemetry trace propagation",
		Long: `mcptrace-demo runs a small MCP tool server instrumented with the
mcptrace middleware, and a client that calls its tools with the current
trace context injected into _meta.`,
	}

	rootCmd.AddCommand(
		serveCmd(),
		callCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
