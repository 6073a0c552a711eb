package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/longregen/mcptrace/internal/config"
	"github.com/longregen/mcptrace/pkg/mcp"
	"github.com/longregen/mcptrace/pkg/mcpserver"
	"github.com/longregen/mcptrace/pkg/mcptrace"
	"github.com/longregen/mcptrace/pkg/otelinit"
)

func serveCmd() *cobra.Command {
	var (
		transport   string
		listen      string
		prefix      string
		includeArgs bool
		langfuse    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the instrumented demo tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := otelinit.Init(otelinit.Config{
				ServiceName:  config.GetEnv("SERVICE_NAME", "mcptrace-demo"),
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

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				slog.Info("shutting down")
				cancel()
			}()

			server := mcpserver.New("mcptrace-demo", "1.0.0", mcpserver.WithLogger(result.Logger))
			registerDemoTools(server)

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector())
			server.Use(mcpserver.NewMetricsMiddleware(registry))

			if _, err := mcptrace.Instrument(server,
				mcptrace.WithSpanNamePrefix(prefix),
				mcptrace.WithIncludeArguments(includeArgs),
				mcptrace.WithLangfuseAttributes(langfuse),
				mcptrace.WithLogger(result.Logger),
			); err != nil {
				return err
			}

			switch transport {
			case "stdio":
				if err := server.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			case "http":
				httpServer := &http.Server{Addr: listen, Handler: server.Handler(registry)}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = httpServer.Shutdown(shutdownCtx)
				}()
				slog.Info("listening", "addr", listen)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "transport to serve on: stdio or http")
	cmd.Flags().StringVar(&listen, "listen", ":8080", "listen address for the http transport")
	cmd.Flags().StringVar(&prefix, "span-prefix", "tool.", "span name prefix for tool spans")
	cmd.Flags().BoolVar(&includeArgs, "include-arguments", false, "record tool arguments on spans")
	cmd.Flags().BoolVar(&langfuse, "langfuse", false, "mirror span attributes under langfuse.observation.*")

	return cmd
}

func registerDemoTools(server *mcpserver.Server) {
	server.RegisterTool(mcp.Tool{
		Name:        "get_temperature",
		Description: "Get the temperature for a city",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
	}, func(ctx context.Context, args map[string]any) (mcp.ToolCallResult, error) {
		city, _ := args["city"].(string)
		if city == "" {
			return mcp.ToolCallResult{}, fmt.Errorf("city is required")
		}
		return mcp.NewToolResult(fmt.Sprintf("The temperature in %s is 22°C", city)), nil
	})

	server.RegisterTool(mcp.Tool{
		Name:        "echo",
		Description: "Echo the given text back",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
	}, func(ctx context.Context, args map[string]any) (mcp.ToolCallResult, error) {
		text, _ := args["text"].(string)
		return mcp.NewToolResult(text), nil
	})
}
