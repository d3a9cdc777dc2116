package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/watch-service/internal/config"
	"jobmate/watch-service/internal/logger"
)

// runtime is what every subcommand gets after the root pre-run.
type runtime struct {
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}
	root := &cobra.Command{
		Use:           "watch-service",
		Short:         "Saved-search watches over a listing catalog",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load(rt.cfgFile)
			if err != nil {
				return err
			}
			log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
			if err != nil {
				return err
			}
			rt.cfg, rt.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&rt.cfgFile, "config", "", "config file (default ./watch-service.yaml or ./config/watch-service.yaml)")

	root.AddCommand(
		newServeCmd(rt),
		newRunAllCmd(rt),
		newSweepCmd(rt),
		newMigrateCmd(rt),
	)
	return root
}
