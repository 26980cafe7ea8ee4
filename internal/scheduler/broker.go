package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Broker schedules jobs as tasks on a Redis queue and executes them in a
// worker. Several processes may share one queue; only the worker side runs
// job code.
type Broker struct {
	redis asynq.RedisConnOpt
	queue string
	jobs  []Job
	log   *zap.Logger
}

// NewBroker connects the jobs to the broker at redisURL.
func NewBroker(redisURL, queue string, log *zap.Logger, jobs ...Job) (*Broker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if queue == "" {
		queue = "default"
	}
	return &Broker{redis: opt, queue: queue, jobs: jobs, log: log.Named("broker")}, nil
}

// Run schedules and works the queue until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Schedule(ctx) })
	g.Go(func() error { return b.Work(ctx) })
	return g.Wait()
}

// Schedule enqueues a task for every job tick.
func (b *Broker) Schedule(ctx context.Context) error {
	s := asynq.NewScheduler(b.redis, &asynq.SchedulerOpts{
		Logger: b.log.Sugar(),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				b.log.Error("enqueue failed", zap.Error(err))
				return
			}
			b.log.Debug("task enqueued", zap.String("task", info.Type), zap.String("id", info.ID))
		},
	})
	for _, job := range b.jobs {
		spec := Spec(job.Every)
		id, err := s.Register(spec, asynq.NewTask(job.Name, nil), b.taskOptions(job)...)
		if err != nil {
			return fmt.Errorf("register %s (%s): %w", job.Name, spec, err)
		}
		b.log.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", spec), zap.String("entry", id))
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("start broker scheduler: %w", err)
	}
	if err := b.enqueueStartJobs(); err != nil {
		b.log.Warn("initial enqueue failed", zap.Error(err))
	}
	<-ctx.Done()
	s.Shutdown()
	return ctx.Err()
}

func (b *Broker) enqueueStartJobs() error {
	client := asynq.NewClient(b.redis)
	defer client.Close()
	for _, job := range b.jobs {
		if !job.RunOnStart {
			continue
		}
		if _, err := client.Enqueue(asynq.NewTask(job.Name, nil), b.taskOptions(job)...); err != nil {
			return fmt.Errorf("enqueue %s: %w", job.Name, err)
		}
	}
	return nil
}

// Work executes queued tasks. A job error is handed back to the broker,
// which retries the task up to the job's retry budget.
func (b *Broker) Work(ctx context.Context) error {
	srv := asynq.NewServer(b.redis, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{b.queue: 1},
		Logger:      b.log.Sugar(),
	})
	if err := srv.Start(b.Mux()); err != nil {
		return fmt.Errorf("start broker worker: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return ctx.Err()
}

// Mux routes task types to their jobs.
func (b *Broker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, job := range b.jobs {
		mux.HandleFunc(job.Name, func(ctx context.Context, _ *asynq.Task) error {
			if err := job.Run(ctx); err != nil {
				b.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return mux
}

func (b *Broker) taskOptions(job Job) []asynq.Option {
	return []asynq.Option{asynq.Queue(b.queue), asynq.MaxRetry(job.Retries)}
}
