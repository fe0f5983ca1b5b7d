// Command forumctl runs maintenance jobs against the forum item table.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lalith-99/echoforum/internal/config"
	"github.com/lalith-99/echoforum/internal/forum"
	"github.com/lalith-99/echoforum/internal/observ"
	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/lalith-99/echoforum/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// opener returns the table a command works on. backend overrides
// STORE_BACKEND when non-empty.
type opener func(ctx context.Context, backend string, logger *zap.Logger) (repository.ItemTable, error)

func main() {
	if err := newRootCmd(openFromEnv).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openFromEnv(ctx context.Context, backend string, logger *zap.Logger) (repository.ItemTable, error) {
	cfg, err := config.LoadConfig()
	if cfg != nil && backend != "" {
		cfg.StoreBackend = backend
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.Open(ctx, cfg, logger)
}

type app struct {
	open     opener
	backend  string
	logLevel string
	logger   *zap.Logger
}

// withService opens the table, runs fn and closes the table again.
func (a *app) withService(cmd *cobra.Command, fn func(*forum.Service, repository.ItemTable) error) error {
	table, err := a.open(cmd.Context(), a.backend, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := table.Close(); err != nil {
			a.logger.Warn("close table", zap.Error(err))
		}
	}()
	return fn(forum.New(table, a.logger), table)
}

func newRootCmd(open opener) *cobra.Command {
	a := &app{open: open, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "forumctl",
		Short:         "Maintenance tool for the EchoForum item table",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observ.NewLogger("development", a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "store backend, overrides STORE_BACKEND")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddCommand(newReconcileCmd(a), newPurgeCmd(a), newDumpCmd(a))
	return root
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile TENANT",
		Short: "Recompute reply and like counters from live items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *forum.Service, _ repository.ItemTable) error {
				report, err := svc.Reconcile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge-tenant TENANT",
		Short: "Delete every forum item of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge %q without --yes", args[0])
			}
			return a.withService(cmd, func(svc *forum.Service, _ repository.ItemTable) error {
				n, err := svc.DeleteAllForTenant(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d items of tenant %s\n", n, args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	var contextID string
	cmd := &cobra.Command{
		Use:   "dump TENANT",
		Short: "Print a tenant's raw items as JSON lines in sort key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if contextID != "" {
				prefix = forum.ContextPrefix(contextID)
			}
			return a.withService(cmd, func(_ *forum.Service, table repository.ItemTable) error {
				items, err := table.Query(cmd.Context(), forum.PartitionKey(args[0]), prefix)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, it := range items {
					if err := enc.Encode(it); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "only items of this context")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
