package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecociel/escalator/api"
	"github.com/ecociel/escalator/runner"
	"github.com/ecociel/escalator/uc"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "escalator",
		Short: "Escalates work items whose deadline has passed",
		Long: `escalator scans the issues table for items whose deadline has passed,
marks each newly overdue item and increments its escalation level.
Configuration is read from the environment (DB_CONNECTION_URI, INTERVAL, ...).`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newRunOnceCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var immediate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run cycles on a fixed interval and serve the ops API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			restful.SetLogger(zap.NewStdLog(a.log.Desugar()))

			cycle := a.cycle()
			r := runner.NewRunner(cycle, a.cfg.Interval, a.log)
			r.RunImmediately = immediate
			runnerCtx, stopRunner := context.WithCancel(ctx)
			runnerDone := r.Start(runnerCtx)
			// Registered after a.close, so clients outlive the last cycle.
			defer func() {
				stopRunner()
				<-runnerDone
			}()

			srv := &http.Server{
				Addr:              a.cfg.ListenAddr,
				Handler:           api.NewContainer(api.NewResource(cycle, a.log), a.registry),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			a.log.Infow("listening", "addr", a.cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&immediate, "immediate", false, "run one cycle at startup before the first tick")
	return cmd
}

func newRunOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run a single cycle, for use behind an external timer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.cycle()(ctx)
			if errors.Is(err, uc.ErrCycleInProgress) {
				a.log.Infow("cycle skipped, another process holds the lock")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: scanned=%d escalated=%d skipped=%d conflicts=%d\n",
				report.CycleID, report.Scanned, report.Escalated, report.Skipped, report.Conflicts)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the issues table and its deadline index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.log.Infow("migration applied", "driver", a.cfg.DbDriver)
			return nil
		},
	}
}
