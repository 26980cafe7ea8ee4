package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// LinkSummaryWorkflow attaches a workflow to a summary. It reports false when
// the pair was already linked.
func LinkSummaryWorkflow(ctx context.Context, q sqlx.ExtContext, summaryID string, workflowID int64) (bool, error) {
	return link(ctx, q, `
		INSERT INTO pipeline_summary_workflows (pipeline_summary_id, remote_workflow_id)
		VALUES (?, ?) ON CONFLICT DO NOTHING`, summaryID, workflowID)
}

// LinkWorkflowTopic adds a topic to a workflow's topic set. It reports false
// when the topic was already in the set.
func LinkWorkflowTopic(ctx context.Context, q sqlx.ExtContext, workflowID, topicID int64) (bool, error) {
	return link(ctx, q, `
		INSERT INTO workflow_topics (remote_workflow_id, topic_id)
		VALUES (?, ?) ON CONFLICT DO NOTHING`, workflowID, topicID)
}

func link(ctx context.Context, q sqlx.ExtContext, query string, left, right any) (bool, error) {
	res, err := q.ExecContext(ctx, q.Rebind(query), left, right)
	if err != nil {
		return false, fmt.Errorf("link %v -> %v: %w", left, right, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SummaryWorkflows lists the workflows linked to a summary, by name.
func (s *Store) SummaryWorkflows(ctx context.Context, summaryID string) ([]RemoteWorkflow, error) {
	wfs := []RemoteWorkflow{}
	err := sqlx.SelectContext(ctx, s.db, &wfs, s.db.Rebind(`
		SELECT w.* FROM remote_workflows w
		JOIN pipeline_summary_workflows l ON l.remote_workflow_id = w.id
		WHERE l.pipeline_summary_id = ?
		ORDER BY w.name`), summaryID)
	if err != nil {
		return nil, fmt.Errorf("summary workflows %s: %w", summaryID, err)
	}
	return wfs, nil
}

// WorkflowTopics lists the topic set of a workflow.
func (s *Store) WorkflowTopics(ctx context.Context, workflowID int64) ([]Topic, error) {
	topics := []Topic{}
	err := sqlx.SelectContext(ctx, s.db, &topics, s.db.Rebind(`
		SELECT t.* FROM topics t
		JOIN workflow_topics l ON l.topic_id = t.id
		WHERE l.remote_workflow_id = ?
		ORDER BY t.topic`), workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow topics %d: %w", workflowID, err)
	}
	return topics, nil
}

// WorkflowReleases lists the releases of a workflow, newest first.
func (s *Store) WorkflowReleases(ctx context.Context, workflowID int64) ([]Release, error) {
	releases := []Release{}
	err := sqlx.SelectContext(ctx, s.db, &releases, s.db.Rebind(`
		SELECT * FROM releases WHERE remote_workflow_id = ?
		ORDER BY published_at DESC, tag_name`), workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow releases %d: %w", workflowID, err)
	}
	return releases, nil
}

// Counts returns the number of rows per table. Used by tests and the CLI.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{
		"pipeline_summaries", "remote_workflows", "releases", "topics",
		"pipeline_summary_workflows", "workflow_topics", "uptime_records",
	} {
		var n int
		if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
