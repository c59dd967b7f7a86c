package main

import (
	"context"
	"fmt"
	"time"

	"doc-chat/internal/server"
	"doc-chat/internal/workers"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sweepCMD(cfgPath *string) *cobra.Command {
	var (
		idle time.Duration
		all  bool
	)
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete remote documents and stores left behind by stale sessions",
		Long: "Runs one janitor pass against the session store: every persisted session " +
			"record idle for longer than --idle has its remote files and stores deleted. " +
			"--all sweeps every record regardless of age, for recovery after a crash.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*cfgPath, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			components, err := server.BuildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()
			if components.Redis == nil {
				color.Yellow("No Redis session store reachable; only this process's sessions can be swept.")
			}

			swept, err := runSweep(cmd.Context(), components.Manager, sweepAge(idle, all, cfg.Session.IdleTTL), logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Swept %d session(s)", swept))
			return nil
		},
	}
	sweep.Flags().DurationVar(&idle, "idle", 0, "minimum idle time (default SESSION_IDLE_TTL)")
	sweep.Flags().BoolVar(&all, "all", false, "sweep every persisted session regardless of idle time")
	sweep.MarkFlagsMutuallyExclusive("idle", "all")
	return sweep
}

// sweepAge resolves the minimum idle time of the records to sweep
func sweepAge(idle time.Duration, all bool, defaultTTL time.Duration) time.Duration {
	switch {
	case all:
		return 0
	case idle > 0:
		return idle
	default:
		return defaultTTL
	}
}

func runSweep(ctx context.Context, sweeper workers.Sweeper, idle time.Duration, logger *zap.Logger) (int, error) {
	janitor := workers.NewJanitorWorker(workers.JanitorWorkerConfig{
		WorkerConfig: workers.DefaultWorkerConfig("session-sweep"),
		Sweeper:      sweeper,
		IdleTTL:      idle,
		Logger:       logger,
	})
	return janitor.RunOnce(ctx)
}
