package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "reconcile.db"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func payload(t *testing.T, doc string) nfcore.Payload {
	t.Helper()
	p, err := nfcore.DecodePayload([]byte(doc))
	require.NoError(t, err)
	return p
}

func TestResolveOutcomes(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, m, err := Resolve(ctx, s.DB(), Workflows, payload(t, `{"description": "no identity"}`))
	require.NoError(t, err)
	require.Equal(t, NoKey, m)

	_, m, err = Resolve(ctx, s.DB(), Workflows, payload(t, `{"git_url": ""}`))
	require.NoError(t, err)
	require.Equal(t, NoKey, m)

	_, m, err = Resolve(ctx, s.DB(), Workflows, payload(t, `{"git_url": "git://github.com/nf-core/rnaseq.git"}`))
	require.NoError(t, err)
	require.Equal(t, Missing, m)

	_, _, err = Upsert(ctx, s.DB(), Workflows, payload(t, `{"name": "rnaseq", "git_url": "git:\/\/github.com\/nf-core\/rnaseq.git"}`))
	require.NoError(t, err)

	wf, m, err := Resolve(ctx, s.DB(), Workflows, payload(t, `{"git_url": "git://github.com/nf-core/rnaseq.git"}`))
	require.NoError(t, err)
	require.Equal(t, Found, m)
	require.Equal(t, "rnaseq", wf.Name)
}

func TestWorkflowFallsBackToName(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	created, isNew, err := Upsert(ctx, s.DB(), Workflows, payload(t, `{"name": "sarek", "stargazers_count": 1}`))
	require.NoError(t, err)
	require.True(t, isNew)

	patched, isNew, err := Upsert(ctx, s.DB(), Workflows, payload(t, `{"name": "sarek", "stargazers_count": 2}`))
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, created.ID, patched.ID)
	require.Equal(t, 2, patched.StargazersCount)
}

func TestPatchKeepsOmittedFields(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, _, err := Upsert(ctx, s.DB(), Workflows, payload(t, `{
		"id": 123, "name": "rnaseq", "git_url": "git://github.com/nf-core/rnaseq.git",
		"description": "RNA sequencing", "stargazers_count": 500, "forks_count": 40,
		"created_at": "2018-07-04T10:00:00Z", "last_release": 3.0
	}`))
	require.NoError(t, err)

	second, isNew, err := Upsert(ctx, s.DB(), Workflows, payload(t, `{
		"git_url": "git://github.com/nf-core/rnaseq.git", "stargazers_count": 501, "not_a_column": true
	}`))
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 501, second.StargazersCount)
	require.Equal(t, 40, second.ForksCount)
	require.Equal(t, "RNA sequencing", second.Description)
	require.Equal(t, "3.0", second.LastRelease)
	require.Equal(t, int64(123), second.GithubID)
	require.NotNil(t, second.CreatedAt)

	stored, err := store.Workflows.Get(ctx, s.DB(), first.ID)
	require.NoError(t, err)
	require.Equal(t, 501, stored.StargazersCount)
	require.Equal(t, "RNA sequencing", stored.Description)
}

func TestNullDescriptionIsEmpty(t *testing.T) {
	s := openStore(t)

	wf, _, err := Upsert(context.Background(), s.DB(), Workflows, payload(t, `{"name": "demo", "description": null}`))
	require.NoError(t, err)
	require.Equal(t, "", wf.Description)
}

func TestSummaryGetsGeneratedIdentity(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	sum, isNew, err := Upsert(ctx, s.DB(), Summaries, payload(t, `{"updated": 42, "pipeline_count": 10}`))
	require.NoError(t, err)
	require.True(t, isNew)
	require.Len(t, sum.ID, 36)
	require.False(t, sum.Received.IsZero())

	again, isNew, err := Upsert(ctx, s.DB(), Summaries, payload(t, `{"updated": 42, "pipeline_count": 11}`))
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, sum.ID, again.ID)
	require.Equal(t, 11, again.PipelineCount)
}

func TestSummaryWithoutCounterIsAlwaysNew(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	a, _, err := Upsert(ctx, s.DB(), Summaries, payload(t, `{"pipeline_count": 1}`))
	require.NoError(t, err)
	b, _, err := Upsert(ctx, s.DB(), Summaries, payload(t, `{"pipeline_count": 1}`))
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestTopicMatchesIgnoringCase(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	a, _, err := Upsert(ctx, s.DB(), Topics, payload(t, `{"topic": "RNA-Seq"}`))
	require.NoError(t, err)
	b, isNew, err := Upsert(ctx, s.DB(), Topics, payload(t, `{"topic": "rna-seq"}`))
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, a.ID, b.ID)
	require.Equal(t, "rna-seq", b.Topic)
}

func TestValidateReportsField(t *testing.T) {
	err := Releases.Validate(payload(t, `{"tag_name": "1.0"}`))
	require.ErrorIs(t, err, ErrValidation)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, "tag_sha", fe.Field)

	err = Workflows.Validate(payload(t, `{"stargazers_count": "many"}`))
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "stargazers_count")

	err = Workflows.Validate(payload(t, `{"created_at": "yesterday"}`))
	require.ErrorContains(t, err, "created_at")

	require.NoError(t, Releases.Validate(payload(t, `{"tag_sha": "abc123", "draft": false}`)))
}

func TestReleaseURLsAreUnescaped(t *testing.T) {
	var r store.Release
	err := Releases.Apply(&r, payload(t, `{"tarball_url": "https:\\/\\/api.github.com\\/repos\\/nf-core\\/rnaseq\\/tarball\\/3.0"}`))
	require.NoError(t, err)
	require.Equal(t, "https://api.github.com/repos/nf-core/rnaseq/tarball/3.0", r.TarballURL)
}
