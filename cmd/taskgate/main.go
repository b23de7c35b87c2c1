package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/coordinator"
	"github.com/zen-systems/taskgate/pkg/flags"
	"github.com/zen-systems/taskgate/pkg/health"
	"github.com/zen-systems/taskgate/pkg/router"
	"github.com/zen-systems/taskgate/pkg/schema"
	"github.com/zen-systems/taskgate/pkg/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskgate",
		Short: "Request routing coordinator with heuristic complexity scoring",
		Long: `Taskgate decides, per task request, whether to send it to the legacy
	handler or the alternative multi-agent path, based on a complexity and
	confidence score, feature flags, and a fallback policy.`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(flagsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			registry := flags.NewRegistry(logger)

			coord := coordinator.New(cfg, registry, coordinator.WithLogger(logger))
			if err := coord.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize coordinator: %w", err)
			}

			agg := health.NewAggregator(cfg, registry, coord)
			srv := server.New(coord, cfg, registry, agg, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func routeCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "route [prompt]",
		Short: "Print the routing decision for a prompt without dispatching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			registry := flags.NewRegistry(zap.NewNop())

			req := &schema.TaskRequest{Prompt: args[0], SessionID: sessionID}
			if err := req.Validate(); err != nil {
				return err
			}

			decision := router.NewEngine().Decide(req, cfg.Get(), registry.View())
			out, err := json.MarshalIndent(decision, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "cli", "session identifier")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and feature flag policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			violations := config.Validate(cfg.Get())
			for _, v := range violations {
				fmt.Fprintf(os.Stderr, "config: %s\n", v)
			}

			registry := flags.NewRegistry(zap.NewNop())
			validation := registry.ValidateConfiguration()
			critical := false
			for _, issue := range validation.Issues {
				fmt.Fprintf(os.Stderr, "flags: [%s] %s: %s\n", issue.Severity, issue.Flag, issue.Message)
				if issue.Severity == flags.SeverityCritical {
					critical = true
				}
			}

			if len(violations) > 0 || critical {
				return fmt.Errorf("validation failed")
			}
			fmt.Println("configuration valid")
			return nil
		},
	}
}

func flagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List feature flags and their effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := flags.NewRegistry(zap.NewNop())
			snapshot := registry.Snapshot()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FLAG\tENABLED")
			for _, name := range registry.Names() {
				fmt.Fprintf(w, "%s\t%t\n", name, snapshot[name])
			}
			return w.Flush()
		},
	}
}
