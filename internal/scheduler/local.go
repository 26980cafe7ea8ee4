package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Local runs jobs in-process on a cron timer.
type Local struct {
	cron *cron.Cron
	jobs []Job
	log  *zap.Logger
}

// NewLocal registers jobs on a cron scheduler. Overlapping runs of the same
// job are skipped.
func NewLocal(log *zap.Logger, jobs ...Job) *Local {
	log = log.Named("scheduler")
	cl := cronLogger{log.Sugar()}
	return &Local{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs: jobs,
		log:  log,
	}
}

// Run starts the timer and blocks until ctx is cancelled.
func (l *Local) Run(ctx context.Context) error {
	for _, job := range l.jobs {
		spec := Spec(job.Every)
		if _, err := l.cron.AddJob(spec, l.wrap(ctx, job)); err != nil {
			return fmt.Errorf("schedule %s (%s): %w", job.Name, spec, err)
		}
		l.log.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", spec))
	}

	for _, job := range l.jobs {
		if job.RunOnStart {
			l.wrap(ctx, job).Run()
		}
	}

	l.cron.Start()
	<-ctx.Done()
	<-l.cron.Stop().Done()
	l.log.Info("scheduler stopped")
	return ctx.Err()
}

func (l *Local) wrap(ctx context.Context, job Job) cron.Job {
	return cron.FuncJob(func() {
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			l.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			return
		}
		l.log.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	})
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.s.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
