package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/booknest/booknest/internal/cache"
	"github.com/booknest/booknest/internal/lending"
	"github.com/booknest/booknest/internal/reconcile"
	"github.com/booknest/booknest/internal/repository"
)

type reconcileOutput struct {
	Batches    int             `json:"batches"`
	Totals     reconcile.Stats `json:"totals"`
	QueueDepth int64           `json:"queue_depth"`
}

func newReconcileCmd(opts *globalOptions) *cobra.Command {
	var (
		batchSize   int64
		maxAttempts int
		drain       bool
		maxBatches  int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair recorded lending drift",
		Long: "Reads entries from the drift stream and repairs them, the same way the " +
			"background reconciler does. With --drain it keeps going until a batch comes back empty.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireValue("--database-url", opts.databaseURL); err != nil {
				return err
			}
			if err := requireValue("--redis-url", opts.redisURL); err != nil {
				return err
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			logger := opts.logger(cmd)

			repo, err := repository.New(ctx, opts.databaseURL, repository.Options{MaxConns: 4})
			if err != nil {
				return err
			}
			defer repo.Close()

			cacheClient, err := cache.New(ctx, opts.redisURL)
			if err != nil {
				return err
			}
			defer cacheClient.Close()

			coord := lending.New(repo, repo, lending.Config{
				Drift:  reconcile.NewPublisher(cacheClient.Client(), logger, nil),
				Logger: logger,
			})
			worker := reconcile.NewWorker(cacheClient.Client(), coord, cacheClient, logger,
				reconcile.NewConsumerID(), nil, reconcile.Options{
					BatchSize:   batchSize,
					MaxAttempts: maxAttempts,
				})
			if err := worker.EnsureGroup(ctx); err != nil {
				return err
			}

			var out reconcileOutput
			for out.Batches < maxBatches {
				stats, err := worker.RunOnce(ctx)
				if err != nil {
					return err
				}
				out.Batches++
				addStats(&out.Totals, stats)
				if !drain || stats.Read == 0 {
					break
				}
			}

			depth, err := worker.QueueDepth(ctx)
			if err != nil {
				return err
			}
			out.QueueDepth = depth

			plain := fmt.Sprintf("read=%d repaired=%d consistent=%d skipped=%d dead_lettered=%d pending=%d queue_depth=%d",
				out.Totals.Read, out.Totals.Repaired, out.Totals.Consistent, out.Totals.Skipped,
				out.Totals.DeadLettered, out.Totals.Pending, out.QueueDepth)
			return opts.print(cmd, plain, out)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&batchSize, "batch-size", reconcile.DefaultBatchSize, "Entries read per batch")
	flags.IntVar(&maxAttempts, "max-attempts", 0, "Attempts before an entry is dead-lettered (0 uses the default)")
	flags.BoolVar(&drain, "drain", false, "Keep reading until the stream is empty")
	flags.IntVar(&maxBatches, "max-batches", 100, "Upper bound on batches when draining")
	return cmd
}

func addStats(total *reconcile.Stats, s reconcile.Stats) {
	total.Read += s.Read
	total.Repaired += s.Repaired
	total.Consistent += s.Consistent
	total.Skipped += s.Skipped
	total.DeadLettered += s.DeadLettered
	total.Pending = s.Pending
}
