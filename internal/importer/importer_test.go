package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/metrics"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/reconcile"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

const scenario = `{
	"updated": 42,
	"pipeline_count": 1,
	"published_count": 1,
	"devel_count": 0,
	"archived_count": 0,
	"remote_workflows": [{
		"id": 1001,
		"name": "test",
		"full_name": "nf-core/test",
		"git_url": "https:\/\/github.com\/nf-core\/test",
		"stargazers_count": 10,
		"description": null,
		"topics": ["rna-seq"],
		"releases": [{"tag_sha": "abc123", "tag_name": "1.0", "published_at": "2022-01-01T00:00:00Z"}]
	}]
}`

func setup(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "import.db"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, zaptest.NewLogger(t), metrics.New()), s
}

func decode(t *testing.T, doc string) nfcore.Payload {
	t.Helper()
	p, err := nfcore.DecodePayload([]byte(doc))
	require.NoError(t, err)
	return p
}

func counts(t *testing.T, s *store.Store) map[string]int {
	t.Helper()
	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	return c
}

func TestImportScenario(t *testing.T) {
	im, s := setup(t)
	ctx := context.Background()

	res, err := im.ImportPipelines(ctx, decode(t, scenario))
	require.NoError(t, err)
	require.True(t, res.SummaryCreated)
	require.Equal(t, Counter{Created: 1}, res.Workflows)
	require.Equal(t, Counter{Created: 1}, res.Releases)
	require.Equal(t, Counter{Created: 1}, res.Topics)
	require.Equal(t, 1, res.WorkflowLinks)
	require.Equal(t, 1, res.TopicLinks)
	require.Equal(t, 1, res.Attempts)

	c := counts(t, s)
	require.Equal(t, 1, c["pipeline_summaries"])
	require.Equal(t, 1, c["remote_workflows"])
	require.Equal(t, 1, c["releases"])
	require.Equal(t, 1, c["topics"])
	require.Equal(t, 1, c["pipeline_summary_workflows"])
	require.Equal(t, 1, c["workflow_topics"])

	wfs, err := s.SummaryWorkflows(ctx, res.SummaryID)
	require.NoError(t, err)
	require.Len(t, wfs, 1)
	wf := wfs[0]
	require.Equal(t, "https://github.com/nf-core/test", wf.GitURL)
	require.Equal(t, int64(1001), wf.GithubID)
	require.Equal(t, "", wf.Description)

	rel, err := store.Releases.Get(ctx, s.DB(), "abc123")
	require.NoError(t, err)
	require.Equal(t, wf.ID, rel.RemoteWorkflowID)

	topics, err := s.WorkflowTopics(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	require.Equal(t, "rna-seq", topics[0].Topic)
}

func TestReimportIsIdempotent(t *testing.T) {
	im, s := setup(t)
	ctx := context.Background()

	first, err := im.ImportPipelines(ctx, decode(t, scenario))
	require.NoError(t, err)
	before := counts(t, s)

	second, err := im.ImportPipelines(ctx, decode(t, scenario))
	require.NoError(t, err)
	require.Equal(t, first.SummaryID, second.SummaryID)
	require.False(t, second.SummaryCreated)
	require.Equal(t, Counter{Patched: 1}, second.Workflows)
	require.Equal(t, Counter{Patched: 1}, second.Releases)
	require.Equal(t, Counter{Patched: 1}, second.Topics)
	require.Zero(t, second.WorkflowLinks)
	require.Zero(t, second.TopicLinks)

	require.Equal(t, before, counts(t, s))
}

func TestReimportPatchesWorkflowInPlace(t *testing.T) {
	im, s := setup(t)
	ctx := context.Background()

	_, err := im.ImportPipelines(ctx, decode(t, scenario))
	require.NoError(t, err)

	res, err := im.ImportPipelines(ctx, decode(t, `{
		"updated": 43,
		"remote_workflows": [{"git_url": "https://github.com/nf-core/test", "stargazers_count": 11}]
	}`))
	require.NoError(t, err)
	require.True(t, res.SummaryCreated)

	c := counts(t, s)
	require.Equal(t, 2, c["pipeline_summaries"])
	require.Equal(t, 1, c["remote_workflows"])
	require.Equal(t, 2, c["pipeline_summary_workflows"])

	wf, err := store.Workflows.Lookup(ctx, s.DB(), "git_url = ?", "https://github.com/nf-core/test")
	require.NoError(t, err)
	require.Equal(t, 11, wf.StargazersCount)
	require.Equal(t, "nf-core/test", wf.FullName)
	require.Equal(t, int64(1001), wf.GithubID)
}

func TestTopicsShareRowAcrossCasing(t *testing.T) {
	im, s := setup(t)

	res, err := im.ImportPipelines(context.Background(), decode(t, `{
		"updated": 7,
		"remote_workflows": [
			{"name": "a", "git_url": "git://github.com/nf-core/a.git", "topics": ["RNA-seq", "rna-seq"]},
			{"name": "b", "git_url": "git://github.com/nf-core/b.git", "topics": [{"topic": "rna-SEQ"}]}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, Counter{Created: 1, Patched: 2}, res.Topics)
	require.Equal(t, 2, res.TopicLinks)

	c := counts(t, s)
	require.Equal(t, 1, c["topics"])
	require.Equal(t, 2, c["workflow_topics"])
}

func TestDuplicateWorkflowInPayloadLinksOnce(t *testing.T) {
	im, s := setup(t)

	res, err := im.ImportPipelines(context.Background(), decode(t, `{
		"updated": 8,
		"remote_workflows": [
			{"name": "a", "git_url": "git://github.com/nf-core/a.git", "forks_count": 1},
			{"name": "a", "git_url": "git://github.com/nf-core/a.git", "forks_count": 2}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, Counter{Created: 1, Patched: 1}, res.Workflows)
	require.Equal(t, 1, res.WorkflowLinks)
	require.Equal(t, 1, counts(t, s)["remote_workflows"])
}

func TestInvalidPayloadWritesNothing(t *testing.T) {
	im, s := setup(t)
	ctx := context.Background()

	for name, doc := range map[string]string{
		"missing workflows":   `{"updated": 1}`,
		"workflows not array": `{"updated": 1, "remote_workflows": {}}`,
		"release without sha": `{"updated": 1, "remote_workflows": [{"name": "a", "releases": [{"tag_name": "1.0"}]}]}`,
		"bad counter":         `{"updated": "soon", "remote_workflows": []}`,
		"bad topic":           `{"updated": 1, "remote_workflows": [{"name": "a", "topics": [5]}]}`,
		"bad timestamp":       `{"updated": 1, "remote_workflows": [{"name": "a", "pushed_at": "last week"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := im.ImportPipelines(ctx, decode(t, doc))
			require.ErrorIs(t, err, reconcile.ErrValidation)
			require.Zero(t, counts(t, s)["pipeline_summaries"])
		})
	}
}

func TestFailedStageRollsBackImport(t *testing.T) {
	im, s := setup(t)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, `
		CREATE TRIGGER reject_release BEFORE INSERT ON releases
		WHEN NEW.tag_sha = 'boom'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	_, err = im.ImportPipelines(ctx, decode(t, `{
		"updated": 9,
		"remote_workflows": [
			{"name": "a", "git_url": "git://github.com/nf-core/a.git", "topics": ["x"]},
			{"name": "b", "git_url": "git://github.com/nf-core/b.git", "releases": [{"tag_sha": "boom"}]}
		]
	}`))
	require.ErrorContains(t, err, "rejected")
	require.NotErrorIs(t, err, reconcile.ErrValidation)

	for table, n := range counts(t, s) {
		require.Zero(t, n, table)
	}
}

func TestConcurrentImportsConverge(t *testing.T) {
	im, s := setup(t)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		p := decode(t, scenario)
		g.Go(func() error {
			_, err := im.ImportPipelines(context.Background(), p)
			return err
		})
	}
	require.NoError(t, g.Wait())

	c := counts(t, s)
	require.Equal(t, 1, c["pipeline_summaries"])
	require.Equal(t, 1, c["remote_workflows"])
	require.Equal(t, 1, c["releases"])
	require.Equal(t, 1, c["topics"])
	require.Equal(t, 1, c["pipeline_summary_workflows"])
	require.Equal(t, 1, c["workflow_topics"])
}

// rivalTopic inserts a topic row with the same name right before the
// first topic insert, so that insert fails on the unique index as if a
// concurrent import had created it first.
type rivalTopic struct {
	sqlx.ExtContext
	fired *bool
}

func (r rivalTopic) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	if !*r.fired && strings.HasPrefix(query, "INSERT INTO topics") {
		*r.fired = true
		if _, err := r.ExecContext(ctx, r.Rebind("INSERT INTO topics (topic) VALUES (?)"), "RNA-SEQ"); err != nil {
			panic(err)
		}
	}
	return r.ExtContext.QueryRowxContext(ctx, query, args...)
}

func TestLostCreateRaceIsRetried(t *testing.T) {
	im, s := setup(t)
	fired := false
	im.wrapTx = func(q sqlx.ExtContext) sqlx.ExtContext {
		return rivalTopic{ExtContext: q, fired: &fired}
	}

	res, err := im.ImportPipelines(context.Background(), decode(t, scenario))
	require.NoError(t, err)
	require.True(t, fired)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, Counter{Created: 1}, res.Topics)

	c := counts(t, s)
	require.Equal(t, 1, c["pipeline_summaries"])
	require.Equal(t, 1, c["topics"])
	require.Equal(t, 1, c["workflow_topics"])
}

func TestRetryIsBounded(t *testing.T) {
	im, s := setup(t)
	attempts := 0
	im.wrapTx = func(q sqlx.ExtContext) sqlx.ExtContext {
		attempts++
		fired := false
		return rivalTopic{ExtContext: q, fired: &fired}
	}

	_, err := im.ImportPipelines(context.Background(), decode(t, scenario))
	require.Error(t, err)
	require.True(t, store.IsUniqueViolation(err), "expected unique violation, got %v", err)
	require.Equal(t, maxAttempts, attempts)
	require.Zero(t, counts(t, s)["topics"])
}

func TestValidatePipelinesDoesNotWrite(t *testing.T) {
	_, s := setup(t)
	require.NoError(t, ValidatePipelines(decode(t, scenario)))
	require.Zero(t, counts(t, s)["pipeline_summaries"])
}

func TestImportIssueStats(t *testing.T) {
	im, _ := setup(t)
	ctx := context.Background()

	doc, err := im.ImportIssueStats(ctx, []byte(`{
		"updated": 1657800000,
		"stats": {},
		"repos": {"rnaseq": {"issues": {"1": {"url": "https:\\/\\/api.github.com", "created_by": "x"}}, "prs": {}}},
		"authors": {}
	}`))
	require.NoError(t, err)
	issues, prs := doc.Count()
	require.Equal(t, 1, issues)
	require.Zero(t, prs)

	_, err = im.ImportIssueStats(ctx, []byte(`{"stats": {}}`))
	require.ErrorIs(t, err, reconcile.ErrValidation)

	_, err = im.ImportIssueStats(ctx, []byte(`{"updated": "yesterday", "repos": {}}`))
	require.ErrorIs(t, err, reconcile.ErrValidation)
}
