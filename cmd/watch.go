package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/congress-cli/internal/ingest"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-ingest the archive on a schedule",
	Long: "Runs a resume-mode ingestion on the configured cron schedule so artifacts the crawler adds or " +
		"rewrites are picked up once they settle. A run still in progress when the next tick fires is not overlapped. " +
		"With --port the query API runs alongside and /metrics includes the congress_ingest counters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if root, _ := cmd.Flags().GetString("root"); root != "" {
			cfg.Archive.Root = root
		}
		if schedule, _ := cmd.Flags().GetString("schedule"); schedule != "" {
			cfg.Watch.Schedule = schedule
		}
		if err := cfg.Validate("watch"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		coord, err := newCoordinator(st)
		if err != nil {
			return err
		}

		w := &watcher{coord: coord, log: zap.L().With(zap.String("component", "watch"))}
		c := cron.New()
		g, gctx := errgroup.WithContext(ctx)
		if _, err := c.AddFunc(cfg.Watch.Schedule, func() { w.tick(gctx) }); err != nil {
			return eris.Wrapf(err, "watch: schedule %q", cfg.Watch.Schedule)
		}

		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			g.Go(func() error {
				return listen(gctx, port, buildRouter(st, coord.Metrics().Registry()))
			})
		}
		g.Go(func() error {
			w.log.Info("watching archive", zap.String("root", cfg.Archive.Root), zap.String("schedule", cfg.Watch.Schedule))
			w.tick(gctx)
			c.Start()
			<-gctx.Done()
			<-c.Stop().Done()
			return nil
		})
		return g.Wait()
	},
}

func init() {
	watchCmd.Flags().String("root", "", "archive root (default from config)")
	watchCmd.Flags().String("schedule", "", "cron schedule (default from config)")
	watchCmd.Flags().Int("port", 0, "also serve the query API with live ingest metrics on this port")
	rootCmd.AddCommand(watchCmd)
}

// watcher runs one ingestion per tick and skips ticks that arrive while a
// run is still going.
type watcher struct {
	coord *ingest.Coordinator
	log   *zap.Logger
	mu    sync.Mutex
}

func (w *watcher) tick(ctx context.Context) {
	if !w.mu.TryLock() {
		w.log.Info("previous run still in progress, skipping tick")
		return
	}
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	sum, err := w.coord.Run(ctx, ingest.Options{Resume: true})
	if err != nil {
		w.log.Error("scheduled ingestion failed", zap.Error(err))
		return
	}
	w.log.Info("scheduled ingestion complete",
		zap.String("run_id", sum.RunID),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("skipped", sum.Skipped),
		zap.Int("not_ready", sum.NotReady),
	)
}
