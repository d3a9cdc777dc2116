package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/watch-service/internal/config"
	"jobmate/watch-service/internal/db"
)

func newRunAllCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Run every non-expired watch once and print the batch report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), rt.cfg, rt.log)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			report, err := a.runner.RunAll(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newSweepCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired guest watches and prune old match events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), rt.cfg, rt.log)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			expired, err := a.runner.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			pruned, err := a.runner.PruneMatches(cmd.Context())
			if err != nil {
				return err
			}
			rt.log.Info("sweep finished", zap.Int64("expired_watches", expired), zap.Int64("pruned_events", pruned))
			return nil
		},
	}
}

func newMigrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.Store.Type != config.StorePostgres {
				return errors.New("migrate requires WATCH_STORE=postgres")
			}
			pg, err := db.NewPostgres(cmd.Context(), rt.cfg.Store.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close() //nolint:errcheck

			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			if direction == "down" {
				err = db.Rollback(pg)
			} else {
				err = db.Migrate(pg)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "migrate %s: done\n", direction)
			return nil
		},
	}
}
