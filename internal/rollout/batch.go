package rollout

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/actsched/internal/episode"
	"github.com/san-kum/actsched/internal/metrics"
	"github.com/san-kum/actsched/internal/sched"
)

// Job is one independent rollout. Schedulers and metrics must not be shared
// between jobs.
type Job struct {
	Scheduler *sched.Scheduler
	Source    episode.Source
	Metrics   []metrics.Metric
	Steps     int
}

// Batch runs jobs concurrently, at most limit at a time (limit <= 0 means
// unbounded). The first failure cancels the remaining jobs.
func Batch(ctx context.Context, jobs []Job, limit int, logger *slog.Logger) ([]*Result, error) {
	results := make([]*Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			var l *slog.Logger
			if logger != nil {
				l = logger.With("job", i)
			}
			r := New(job.Scheduler, l)
			for _, m := range job.Metrics {
				r.AddMetric(m)
			}
			res, err := r.Run(ctx, job.Source, job.Steps)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
