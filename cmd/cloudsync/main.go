// Command cloudsync is a thin CLI host over the three operations the
// core exposes to an embedding app: test-connectivity, sync, and
// cancel. Most embeddings call the orchestrator package directly;
// this binary exists for scripting and manual operation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudsync/cloudsync/internal/config"
	"github.com/cloudsync/cloudsync/internal/logger"
	"github.com/cloudsync/cloudsync/internal/orchestrator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	var vaultRoot string

	root := &cobra.Command{
		Use:   "cloudsync",
		Short: "Synchronize a local vault against S3, Azure Blob, or GCS",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "cloudsync.yaml", "path to the settings file")
	root.PersistentFlags().StringVar(&vaultRoot, "vault", ".", "path to the vault root")

	root.AddCommand(syncCmd(&configPath, &vaultRoot))
	root.AddCommand(testConnectivityCmd(&configPath, &vaultRoot))
	root.AddCommand(diagCmd(&configPath, &vaultRoot))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildOrchestrator(configPath, vaultRoot string) (*orchestrator.Orchestrator, *zap.Logger, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logger.New(settings.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return orchestrator.New(vaultRoot, settings, log), log, nil
}

func syncCmd(configPath, vaultRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a sync pass across every enabled provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, log, err := buildOrchestrator(*configPath, *vaultRoot)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				o.Cancel()
			}()

			results := o.RunSync(ctx)
			failed := false
			for _, r := range results {
				if r.Err != nil {
					failed = true
					fmt.Fprintf(os.Stderr, "%s: %v\n", r.Provider, r.Err)
					continue
				}
				fmt.Printf("%s: ok\n", r.Provider)
				for rule, counts := range r.Summary {
					if counts[1] > 0 {
						fmt.Printf("  %s: %d/%d\n", rule, counts[0], counts[1])
					}
				}
			}
			if failed {
				return fmt.Errorf("one or more providers failed")
			}
			return nil
		},
	}
}

func diagCmd(configPath, vaultRoot *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Serve /healthz and /metrics for this vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, log, err := buildOrchestrator(*configPath, *vaultRoot)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			log.Info("serving diagnostics", zap.String("addr", addr))
			return http.ListenAndServe(addr, o.Diag().Router())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9090", "address to serve /healthz and /metrics on")
	return cmd
}

func testConnectivityCmd(configPath, vaultRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connectivity <provider>",
		Short: "Verify a provider's credentials without syncing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, log, err := buildOrchestrator(*configPath, *vaultRoot)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := context.Background()
			if err := o.TestConnectivity(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", args[0])
			return nil
		},
	}
}
