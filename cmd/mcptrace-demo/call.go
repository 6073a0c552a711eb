package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/longregen/mcptrace/internal/config"
	"github.com/longregen/mcptrace/pkg/mcpclient"
	"github.com/longregen/mcptrace/pkg/otelinit"
)

func callCmd() *cobra.Command {
	var (
		endpoint string
		argsJSON string
		argPairs []string
	)

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call a tool on a running demo server, propagating trace context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			toolName := cmdArgs[0]

			result, err := otelinit.Init(otelinit.Config{
				ServiceName:  config.GetEnv("SERVICE_NAME", "mcptrace-demo-client"),
				Environment:  config.GetEnv("ENVIRONMENT", ""),
				OTLPEndpoint: config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			})
			if err != nil {
				return fmt.Errorf("init otel: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = result.Shutdown(shutdownCtx)
			}()
			slog.SetDefault(result.Logger)

			args, err := parseArguments(argsJSON, argPairs)
			if err != nil {
				return err
			}

			client := mcpclient.New(endpoint, mcpclient.WithLogger(result.Logger))

			tracer := otel.Tracer("mcptrace-demo")
			ctx, span := tracer.Start(cmd.Context(), "demo.call")
			defer span.End()

			toolResult, err := client.CallTool(ctx, toolName, args)
			if err != nil {
				return fmt.Errorf("call %s: %w", toolName, err)
			}
			if toolResult.IsError {
				return fmt.Errorf("tool error: %s", toolResult.Text())
			}
			fmt.Println(toolResult.Text())
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost:8080/mcp", "MCP server endpoint URL")
	cmd.Flags().StringVar(&argsJSON, "json", "", "tool arguments as a JSON object")
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "tool argument as key=value (repeatable)")

	return cmd
}

func parseArguments(argsJSON string, pairs []string) (map[string]any, error) {
	args := make(map[string]any)
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("parse --json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --arg %q (want key=value)", pair)
		}
		args[key] = value
	}
	return args, nil
}
