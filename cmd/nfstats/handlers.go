package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/config"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/importer"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/logging"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/metrics"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/scheduler"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/uptime"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/alert"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/server"
)

// app holds the components shared by all commands.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *store.Store
	metrics  *metrics.Metrics
	importer *importer.Importer
	prober   *uptime.Prober
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log, cfg.Debug)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, cfg.Database.Driver(), cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.New()
	return &app{
		cfg:      cfg,
		log:      log,
		store:    db,
		metrics:  m,
		importer: importer.New(db, log, m),
		prober:   uptime.New(cfg.Monitor.WebsiteURL, cfg.Monitor.ParseTimeout(), db, log, m),
	}, nil
}

func (a *app) close() {
	a.store.Close()
	a.log.Sync()
}

func (a *app) server(port int) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(server.Deps{
		Project:      a.cfg.Project,
		Store:        a.store,
		Importer:     a.importer,
		Prober:       a.prober,
		Metrics:      a.metrics,
		Log:          a.log,
		MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
	}, port)
}

func (a *app) alerts() *alert.Manager {
	var notifiers []alert.Notifier

	if a.cfg.Alerts.Slack.Enabled && a.cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(a.cfg.Alerts.Slack.WebhookURL))
	}
	if a.cfg.Alerts.Webhook.Enabled && a.cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(a.cfg.Alerts.Webhook.URL, a.cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func (a *app) jobs() []scheduler.Job {
	frequency := time.Duration(a.cfg.Monitor.Frequency) * time.Minute
	jobs := []scheduler.Job{scheduler.ProbeJob(a.prober, frequency, a.alerts(), a.log)}
	if interval := a.cfg.Snapshot.ParseInterval(); interval > 0 {
		fetcher := nfcore.NewFetcher(a.cfg.Snapshot.URL)
		jobs = append(jobs, scheduler.SnapshotJob(fetcher, a.importer, interval, a.log))
	}
	return jobs
}

func (a *app) broker() (*scheduler.Broker, error) {
	return scheduler.NewBroker(a.cfg.Scheduler.BrokerURL, a.cfg.Scheduler.Queue, a.log, a.jobs()...)
}

func (a *app) runner() (scheduler.Runner, error) {
	if a.cfg.Scheduler.Backend == "broker" {
		return a.broker()
	}
	return scheduler.NewLocal(a.log, a.jobs()...), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(port int) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return a.server(port).ListenAndServe(ctx)
}

func runDaemon(port int) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.runner()
	if err != nil {
		return err
	}
	a.log.Info("starting daemon",
		zap.String("backend", a.cfg.Scheduler.Backend),
		zap.String("website", a.cfg.Monitor.WebsiteURL),
		zap.Int("frequency_minutes", a.cfg.Monitor.Frequency),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(sched.Run(ctx)) })
	g.Go(func() error { return a.server(port).ListenAndServe(ctx) })
	return g.Wait()
}

func runWorker() error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.broker()
	if err != nil {
		return err
	}
	return ignoreCanceled(b.Work(ctx))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readSnapshot loads a pipelines.json document from a URL or a local file.
// Files ending in .gz are decompressed.
func readSnapshot(ctx context.Context, src string) (nfcore.Payload, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return nfcore.NewFetcher(src).Fetch(ctx)
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	encoding := ""
	if strings.HasSuffix(src, ".gz") {
		encoding = "gzip"
	}
	body, err := nfcore.DecodeBody(f, encoding)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	return nfcore.DecodePayload(data)
}

func runImport(src string, jsonOutput bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := readSnapshot(ctx, src)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	res, err := a.importer.ImportPipelines(ctx, p)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s summary %s\n", color.GreenString("imported"), bold(res.SummaryID))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tCREATED\tPATCHED")
	fmt.Fprintf(w, "workflows\t%d\t%d\n", res.Workflows.Created, res.Workflows.Patched)
	fmt.Fprintf(w, "releases\t%d\t%d\n", res.Releases.Created, res.Releases.Patched)
	fmt.Fprintf(w, "topics\t%d\t%d\n", res.Topics.Created, res.Topics.Patched)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("links added: %d workflow, %d topic\n", res.WorkflowLinks, res.TopicLinks)
	return nil
}

func runValidate(src string) error {
	p, err := readSnapshot(context.Background(), src)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := importer.ValidatePipelines(p); err != nil {
		fmt.Printf("%s %v\n", color.RedString("invalid:"), err)
		return err
	}
	fmt.Println(color.GreenString("ok"))
	return nil
}

func runProbe() error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.prober.Run(ctx)
	printRecord(rec)
	return err
}

func runUptime(limit int, jsonOutput bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	grouped, err := a.prober.Recent(ctx, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(grouped)
	}

	recs := grouped[a.prober.URL()]
	if len(recs) == 0 {
		fmt.Println("no probes recorded yet (try: nfstats probe)")
		return nil
	}
	fmt.Println(color.New(color.Bold).Sprint(a.prober.URL()))
	for _, rec := range recs {
		printRecord(rec)
	}
	return nil
}

func printRecord(rec store.UptimeRecord) {
	status := "failed"
	if rec.HTTPStatus != uptime.StatusFailed {
		status = fmt.Sprintf("%d", rec.HTTPStatus)
	}
	mark := color.GreenString("up  ")
	if !rec.Available {
		mark = color.RedString("down")
	}
	fmt.Printf("%s  %s  %s\n", rec.Received.Local().Format(time.RFC3339), mark, status)
}
