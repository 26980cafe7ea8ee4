// Package scheduler triggers the periodic jobs: the uptime probe and the
// optional snapshot import. Jobs run either in-process on a cron timer or
// through a Redis-backed task queue shared by several processes.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/importer"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/uptime"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/alert"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

// Task names, also used as broker task types.
const (
	TaskProbe    = "uptime:probe"
	TaskSnapshot = "snapshot:import"
)

// Job is one periodic unit of work.
type Job struct {
	Name       string
	Every      time.Duration
	RunOnStart bool
	Retries    int // broker backend only
	Run        func(ctx context.Context) error
}

// Runner drives jobs until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Spec converts an interval into a cron spec. Whole minutes below an hour
// map to a minute step so probes line up with the wall clock.
func Spec(every time.Duration) string {
	if every%time.Minute == 0 {
		if m := int(every / time.Minute); m >= 1 && m < 60 {
			return fmt.Sprintf("*/%d * * * *", m)
		}
	}
	return "@every " + every.String()
}

// ProbeJob probes the website every frequency. A failed probe is reported
// to the alert manager and its error returned, so the backend can log or
// retry it.
func ProbeJob(p *uptime.Prober, frequency time.Duration, alerts *alert.Manager, log *zap.Logger) Job {
	log = log.Named("probe")
	return Job{
		Name:    TaskProbe,
		Every:   frequency,
		Retries: 1,
		Run: func(ctx context.Context) error {
			rec, err := p.Run(ctx)
			if err == nil && rec.Available {
				return nil
			}
			if alerts.HasNotifiers() {
				n := alert.ProbeFailure(p.URL(), rec.HTTPStatus, err, rec.Received)
				if aerr := alerts.Broadcast(ctx, n); aerr != nil {
					log.Error("alert delivery failed", zap.Error(aerr))
				}
			}
			return err
		},
	}
}

// SnapshotJob fetches pipelines.json and imports it every interval.
func SnapshotJob(f *nfcore.Fetcher, im *importer.Importer, interval time.Duration, log *zap.Logger) Job {
	log = log.Named("snapshot")
	return Job{
		Name:       TaskSnapshot,
		Every:      interval,
		RunOnStart: true,
		Retries:    3,
		Run: func(ctx context.Context) error {
			p, err := f.Fetch(ctx)
			if err != nil {
				return err
			}
			res, err := im.ImportPipelines(ctx, p)
			if err != nil {
				return err
			}
			log.Info("snapshot imported", zap.String("url", f.URL()), zap.String("summary", res.SummaryID))
			return nil
		},
	}
}
