// Package importer ingests nf-core statistics snapshots.
//
// A pipelines.json import runs in stages: the summary, then every workflow
// with its releases and topics, then the summary-workflow links. All stages
// share one transaction, so a failing stage leaves the store untouched.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/metrics"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/reconcile"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

// maxAttempts bounds retries after losing a create race to a concurrent
// import.
const maxAttempts = 2

// Importer writes snapshots into the store.
type Importer struct {
	store   *store.Store
	log     *zap.Logger
	metrics *metrics.Metrics

	// wrapTx, when set, wraps the transaction handed to each attempt.
	wrapTx func(sqlx.ExtContext) sqlx.ExtContext
}

// New creates an importer. m may be nil.
func New(s *store.Store, log *zap.Logger, m *metrics.Metrics) *Importer {
	return &Importer{store: s, log: log.Named("importer"), metrics: m}
}

// Counter tallies reconciled entities of one kind.
type Counter struct {
	Created int `json:"created"`
	Patched int `json:"patched"`
}

func (c *Counter) add(created bool) {
	if created {
		c.Created++
	} else {
		c.Patched++
	}
}

// Result summarizes one import.
type Result struct {
	SummaryID      string  `json:"summary_id"`
	SummaryCreated bool    `json:"summary_created"`
	Workflows      Counter `json:"workflows"`
	Releases       Counter `json:"releases"`
	Topics         Counter `json:"topics"`
	WorkflowLinks  int     `json:"workflow_links"`
	TopicLinks     int     `json:"topic_links"`
	Attempts       int     `json:"attempts"`
}

type workflowEntry struct {
	payload  nfcore.Payload
	releases []nfcore.Payload
	topics   []nfcore.Payload
}

// snapshot is a validated pipelines.json document.
type snapshot struct {
	summary   nfcore.Payload
	workflows []workflowEntry
}

// ValidatePipelines checks a pipelines.json document without writing
// anything. Errors wrap reconcile.ErrValidation.
func ValidatePipelines(p nfcore.Payload) error {
	_, err := parse(p)
	return err
}

func parse(p nfcore.Payload) (*snapshot, error) {
	if err := reconcile.Summaries.Validate(p); err != nil {
		return nil, err
	}
	if !p.Has("remote_workflows") {
		return nil, invalid("remote_workflows", "required")
	}
	wfs, err := p.Objects("remote_workflows")
	if err != nil {
		return nil, invalid("remote_workflows", err.Error())
	}

	snap := &snapshot{summary: p, workflows: make([]workflowEntry, 0, len(wfs))}
	for i, wf := range wfs {
		if err := reconcile.Workflows.Validate(wf); err != nil {
			return nil, fmt.Errorf("remote_workflows[%d]: %w", i, err)
		}
		releases, err := wf.Objects("releases")
		if err != nil {
			return nil, fmt.Errorf("remote_workflows[%d]: %w", i, invalid("releases", err.Error()))
		}
		for j, rel := range releases {
			if err := reconcile.Releases.Validate(rel); err != nil {
				return nil, fmt.Errorf("remote_workflows[%d].releases[%d]: %w", i, j, err)
			}
		}
		topics, err := wf.Labels("topics")
		if err != nil {
			return nil, fmt.Errorf("remote_workflows[%d]: %w", i, invalid("topics", err.Error()))
		}
		for j, topic := range topics {
			if err := reconcile.Topics.Validate(topic); err != nil {
				return nil, fmt.Errorf("remote_workflows[%d].topics[%d]: %w", i, j, err)
			}
		}
		snap.workflows = append(snap.workflows, workflowEntry{payload: wf, releases: releases, topics: topics})
	}
	return snap, nil
}

func invalid(field, msg string) error {
	return &reconcile.FieldError{Kind: "pipelines", Field: field, Err: errors.New(msg)}
}

// ImportPipelines validates and imports a pipelines.json document. An
// import that collides with a concurrent one on a natural key is retried
// from scratch once, and then resolves the row the other import created.
func (im *Importer) ImportPipelines(ctx context.Context, p nfcore.Payload) (*Result, error) {
	start := time.Now()
	res, err := im.importPipelines(ctx, p)
	im.metrics.ObserveImport("pipelines", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	im.metrics.AddEntities(reconcile.Workflows.Name, "created", res.Workflows.Created)
	im.metrics.AddEntities(reconcile.Workflows.Name, "patched", res.Workflows.Patched)
	im.metrics.AddEntities(reconcile.Releases.Name, "created", res.Releases.Created)
	im.metrics.AddEntities(reconcile.Releases.Name, "patched", res.Releases.Patched)
	im.metrics.AddEntities(reconcile.Topics.Name, "created", res.Topics.Created)
	im.metrics.AddEntities(reconcile.Topics.Name, "patched", res.Topics.Patched)

	im.log.Info("pipelines imported",
		zap.String("summary", res.SummaryID),
		zap.Bool("summary_created", res.SummaryCreated),
		zap.Int("workflows_created", res.Workflows.Created),
		zap.Int("workflows_patched", res.Workflows.Patched),
		zap.Int("releases_created", res.Releases.Created),
		zap.Int("topics_created", res.Topics.Created),
		zap.Int("attempts", res.Attempts),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (im *Importer) importPipelines(ctx context.Context, p nfcore.Payload) (*Result, error) {
	snap, err := parse(p)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		var res *Result
		err := im.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			var q sqlx.ExtContext = tx
			if im.wrapTx != nil {
				q = im.wrapTx(q)
			}
			var err error
			res, err = importSnapshot(ctx, q, snap)
			return err
		})
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		if attempt >= maxAttempts || !store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("import pipelines: %w", err)
		}
		im.log.Warn("import lost a create race, retrying", zap.Error(err), zap.Int("attempt", attempt))
	}
}

func importSnapshot(ctx context.Context, tx sqlx.ExtContext, snap *snapshot) (*Result, error) {
	res := &Result{}

	summary, created, err := reconcile.Upsert(ctx, tx, reconcile.Summaries, snap.summary)
	if err != nil {
		return nil, err
	}
	res.SummaryID = summary.ID
	res.SummaryCreated = created

	// Workflow ids in payload order, without duplicates.
	var linked []int64
	seen := make(map[int64]bool)

	for i, entry := range snap.workflows {
		wf, created, err := reconcile.Upsert(ctx, tx, reconcile.Workflows, entry.payload)
		if err != nil {
			return nil, fmt.Errorf("remote_workflows[%d]: %w", i, err)
		}
		res.Workflows.add(created)
		if !seen[wf.ID] {
			seen[wf.ID] = true
			linked = append(linked, wf.ID)
		}

		for j, rel := range entry.releases {
			stamped := rel.Clone()
			if err := stamped.Set("remote_workflow_id", wf.ID); err != nil {
				return nil, err
			}
			_, created, err := reconcile.Upsert(ctx, tx, reconcile.Releases, stamped)
			if err != nil {
				return nil, fmt.Errorf("remote_workflows[%d].releases[%d]: %w", i, j, err)
			}
			res.Releases.add(created)
		}

		for j, label := range entry.topics {
			topic, created, err := reconcile.Upsert(ctx, tx, reconcile.Topics, label)
			if err != nil {
				return nil, fmt.Errorf("remote_workflows[%d].topics[%d]: %w", i, j, err)
			}
			res.Topics.add(created)
			added, err := store.LinkWorkflowTopic(ctx, tx, wf.ID, topic.ID)
			if err != nil {
				return nil, err
			}
			if added {
				res.TopicLinks++
			}
		}
	}

	for _, id := range linked {
		added, err := store.LinkSummaryWorkflow(ctx, tx, summary.ID, id)
		if err != nil {
			return nil, err
		}
		if added {
			res.WorkflowLinks++
		}
	}
	return res, nil
}

// ImportIssueStats validates an nfcore_issue_stats.json document. The
// document is acknowledged but not stored.
func (im *Importer) ImportIssueStats(ctx context.Context, data []byte) (*nfcore.IssueStats, error) {
	start := time.Now()
	doc, err := nfcore.DecodeIssueStats(data)
	if err != nil {
		err = &reconcile.FieldError{Kind: "issue_stats", Field: fieldOf(err), Err: err}
	}
	im.metrics.ObserveImport("issue_stats", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	issues, prs := doc.Count()
	im.log.Info("issue stats received",
		zap.Time("updated", doc.Updated.Time),
		zap.Int("repos", len(doc.Repos)),
		zap.Int("issues", issues),
		zap.Int("prs", prs),
		zap.Int("authors", len(doc.Authors)),
	)
	return doc, nil
}

func fieldOf(err error) string {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return te.Field
	}
	return "document"
}
