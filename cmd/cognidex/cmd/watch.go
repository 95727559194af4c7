package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/async"
	"github.com/cognidex/cognidex/internal/ui"
	"github.com/cognidex/cognidex/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var dir string
	var tenant int64

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and ingest dropped files",
		Long: `Watch a directory and ingest files dropped into it.

Each dropped file is ingested into the tenant as directory ingestion
with a fresh source id at version 1. Files are read after a short settle
window so half-written copies are not ingested. Runs until interrupted.

Examples:
  cognidex watch --tenant 1 --dir ./inbox
  cognidex watch    # uses ingest.watch_dir and ingest.watch_tenant from config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, dir, tenant)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to watch (default from config)")
	cmd.Flags().Int64Var(&tenant, "tenant", 0, "Tenant dropped files are ingested into (default from config)")

	return cmd
}

func runWatch(cmd *cobra.Command, dir string, tenant int64) error {
	out := ui.NewRenderer(cmd.OutOrStdout(), plainOutput)

	app, err := openApp(cfgPath)
	if err != nil {
		return err
	}
	defer app.Close()

	if dir == "" {
		dir = app.cfg.Ingest.WatchDir
	}
	if tenant == 0 {
		tenant = app.cfg.Ingest.WatchTenant
	}
	if dir == "" {
		return fmt.Errorf("no watch directory: pass --dir or set ingest.watch_dir")
	}
	if tenant <= 0 {
		return fmt.Errorf("no watch tenant: pass --tenant or set ingest.watch_tenant")
	}

	orch, err := app.orchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := async.NewRunner(orch.Ingest, async.RunnerConfig{
		Workers:   app.cfg.Ingest.Workers,
		QueueSize: app.cfg.Ingest.QueueSize,
	}, app.logger)
	runner.Start(ctx)

	watcher, err := watch.New(watch.Options{
		Dir:      dir,
		TenantID: tenant,
	}, runner, app.logger)
	if err != nil {
		runner.Stop()
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for tenant %d (ctrl-c to stop)\n", dir, tenant)
	watcher.Run(ctx)

	_ = watcher.Close()
	runner.Stop()

	stats := runner.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d files (%d succeeded, %d failed)\n",
		stats.Enqueued, stats.Succeeded, stats.Failed)
	if stats.Failed > 0 {
		out.Errorf("%d ingestions failed, see logs", stats.Failed)
	}
	return nil
}
