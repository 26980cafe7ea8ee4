// Package uptime probes the monitored website and records one row per probe.
package uptime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/metrics"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
)

// StatusFailed is recorded when the request itself failed.
const StatusFailed = -1

// Recorder persists and reads probe results.
type Recorder interface {
	InsertUptime(ctx context.Context, rec store.UptimeRecord) error
	RecentUptime(ctx context.Context, url string, limit int) ([]store.UptimeRecord, error)
}

// Prober checks one URL.
type Prober struct {
	url     string
	client  *http.Client
	rec     Recorder
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a prober for url. Requests give up after timeout.
func New(url string, timeout time.Duration, rec Recorder, log *zap.Logger, m *metrics.Metrics) *Prober {
	return &Prober{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			// Redirects count as available; do not follow them.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		rec:     rec,
		log:     log.Named("uptime"),
		metrics: m,
		now:     time.Now,
	}
}

// URL returns the monitored URL.
func (p *Prober) URL() string { return p.url }

// Available reports whether status counts as the site being up.
func Available(status int) bool {
	return status >= 200 && status < 400
}

// Run sends one HEAD request and stores the outcome. A row is written even
// when the request fails; the request error is still returned, joined with
// any storage error.
func (p *Prober) Run(ctx context.Context) (rec store.UptimeRecord, err error) {
	rec = store.UptimeRecord{
		Received:   p.now().UTC(),
		URL:        p.url,
		HTTPStatus: StatusFailed,
	}

	defer func() {
		rec.Available = Available(rec.HTTPStatus)
		p.metrics.ObserveProbe(p.url, rec.HTTPStatus, rec.Available)
		if serr := p.rec.InsertUptime(context.WithoutCancel(ctx), rec); serr != nil {
			err = errors.Join(err, fmt.Errorf("store probe result: %w", serr))
		}
		if err != nil {
			p.log.Warn("probe failed", zap.String("url", p.url), zap.Int("status", rec.HTTPStatus), zap.Error(err))
			return
		}
		p.log.Debug("probe finished", zap.String("url", p.url), zap.Int("status", rec.HTTPStatus))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return rec, fmt.Errorf("create probe request: %w", err)
	}
	req.Header.Set("User-Agent", "nfstats-uptime/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return rec, fmt.Errorf("probe %s: %w", p.url, err)
	}
	resp.Body.Close()

	rec.HTTPStatus = resp.StatusCode
	return rec, nil
}

// Recent returns the latest limit records for the monitored URL, newest
// first, grouped by URL. The map is empty when nothing was recorded.
func (p *Prober) Recent(ctx context.Context, limit int) (map[string][]store.UptimeRecord, error) {
	recs, err := p.rec.RecentUptime(ctx, p.url, limit)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]store.UptimeRecord)
	for _, r := range recs {
		grouped[r.URL] = append(grouped[r.URL], r)
	}
	return grouped, nil
}
