package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mesflow/mesflow/internal/config"
	"github.com/mesflow/mesflow/internal/extract"
	"github.com/mesflow/mesflow/internal/mes"
	"github.com/mesflow/mesflow/internal/ops"
	"github.com/mesflow/mesflow/internal/pipeline"
	"github.com/mesflow/mesflow/internal/sink"
	"github.com/mesflow/mesflow/internal/state"
)

// --- bulk ---

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Scan a production-record id range with checkpointed resume",
	Long: `Scan production-record ids in batches, resuming from the saved
checkpoint. Records with a Success ledger entry are skipped; failures are
recorded and retried on the next run.

Examples:
  mesflow bulk
  mesflow bulk --start 101 --end 60000 --batch-size 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt64("start")
		end, _ := cmd.Flags().GetInt64("end")
		batchSize, _ := cmd.Flags().GetInt64("batch-size")

		return withPipeline(batchSize, func(ctx context.Context, cfg config.Config, p *pipeline.Pipeline) error {
			if end < 0 {
				end = cfg.Bulk.DefaultEndID
			}
			if start < 0 {
				start = 0
			}
			if err := p.RunBulk(ctx, start, end); err != nil {
				return err
			}
			printSuccess("bulk scan finished (run %s)", p.RunID())
			return nil
		})
	},
}

// --- incremental ---

var incrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Process the next eligible 6-hour discovery window",
	Long: `Process at most one discovery window. The window is only eligible
once its end lags far enough behind now for upstream data to be complete;
when no window is ready the command exits cleanly. Intended for periodic
scheduling (cron or similar).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(0, func(ctx context.Context, cfg config.Config, p *pipeline.Pipeline) error {
			processed, err := p.RunIncremental(ctx)
			if err != nil {
				return err
			}
			if !processed {
				printWarning("next window has not cleared the lag gate yet (run %s)", p.RunID())
				return nil
			}
			printSuccess("incremental scan finished (run %s)", p.RunID())
			return nil
		})
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint, window frontier, and ledger counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := state.Open(cfg.State.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		checkpoint := state.NewCheckpointStore(cfg.State.CheckpointFile)
		if cp, ok := checkpoint.Load(); ok {
			printStatus("Checkpoint", "record %d at %s", cp.LastProcessedID, cp.Timestamp.Format(time.RFC3339))
		} else {
			printStatus("Checkpoint", "none")
		}

		if win, found, err := store.LastWindow(); err != nil {
			return err
		} else if found {
			printStatus("Last window", "[%s, %s)", win.Start.Format(time.RFC3339), win.End.Format(time.RFC3339))
		} else {
			printStatus("Last window", "none")
		}

		success, fail, err := store.OutcomeCounts()
		if err != nil {
			return err
		}
		printStatus("Ledger", "%d succeeded, %d failed", success, fail)
		return nil
	},
}

func init() {
	bulkCmd.Flags().Int64("start", -1, "starting production record id (default: checkpoint+1)")
	bulkCmd.Flags().Int64("end", -1, "ending production record id (default: configured end)")
	bulkCmd.Flags().Int64("batch-size", 0, "checkpoint batch size (default: configured size)")
}

// withPipeline wires config, stores, client and sinks, then runs fn with a
// signal-cancellable context. The ops endpoint, when configured, serves for
// the lifetime of the run.
func withPipeline(batchSize int64, fn func(ctx context.Context, cfg config.Config, p *pipeline.Pipeline) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = cfg.Bulk.BatchSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(cfg.State.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	checkpoint := state.NewCheckpointStore(cfg.State.CheckpointFile)
	windows := state.NewWindowTracker(store, cfg.Windows.Duration, cfg.Windows.Lag, cfg.Windows.FirstStart)

	client := mes.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Cookie,
		mes.WithRetries(cfg.API.Retries),
		mes.WithBackoff(cfg.API.Backoff),
		mes.WithTimeout(cfg.API.Timeout),
	)
	extractor := extract.New(client)

	csvSink, err := sink.NewCSVSink(cfg.Output.Dir)
	if err != nil {
		return err
	}
	sinks := sink.Multi{csvSink}
	if cfg.Output.PostgresDSN != "" {
		pg, err := sink.NewPostgresSink(ctx, cfg.Output.PostgresDSN, cfg.Output.PostgresTable)
		if err != nil {
			return err
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	p := pipeline.New(extractor, store, checkpoint, windows, sinks, batchSize)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, done := context.WithCancel(gctx)
	defer done()

	if cfg.Ops.Addr != "" {
		handler := ops.NewHandler(store, checkpoint, p.RunID())
		g.Go(func() error {
			return ops.Serve(runCtx, cfg.Ops.Addr, handler)
		})
	}

	g.Go(func() error {
		defer done()
		return fn(runCtx, cfg, p)
	})

	return g.Wait()
}
