package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
)

// Summaries reconciles pipelines.json snapshots by their updated counter.
var Summaries = Kind[store.PipelineSummary]{
	Name:  "pipeline_summary",
	Table: store.Summaries,
	Keys: []NaturalKey[store.PipelineSummary]{{
		Field: "updated",
		Where: "updated = ?",
		Value: func(s *store.PipelineSummary) (any, bool) {
			if s.Updated == nil {
				return nil, false
			}
			return *s.Updated, true
		},
	}},
	Fields: map[string]Setter[store.PipelineSummary]{
		"updated":         counterField(func(s *store.PipelineSummary) **int64 { return &s.Updated }),
		"pipeline_count":  intField(func(s *store.PipelineSummary) *int { return &s.PipelineCount }),
		"published_count": intField(func(s *store.PipelineSummary) *int { return &s.PublishedCount }),
		"devel_count":     intField(func(s *store.PipelineSummary) *int { return &s.DevelCount }),
		"archived_count":  intField(func(s *store.PipelineSummary) *int { return &s.ArchivedCount }),
	},
	Init: func(s *store.PipelineSummary) {
		s.ID = uuid.NewString()
		s.Received = time.Now().UTC()
	},
}

// Workflows reconciles remote workflows by git URL, falling back to name.
// The upstream numeric "id" is stored as github_id and never used for
// identity.
var Workflows = Kind[store.RemoteWorkflow]{
	Name:  "remote_workflow",
	Table: store.Workflows,
	Keys: []NaturalKey[store.RemoteWorkflow]{
		{Field: "git_url", Where: "git_url = ?", Value: stringKey(func(w *store.RemoteWorkflow) *string { return &w.GitURL })},
		{Field: "name", Where: "name = ?", Value: stringKey(func(w *store.RemoteWorkflow) *string { return &w.Name })},
	},
	Fields: map[string]Setter[store.RemoteWorkflow]{
		"id":               int64Field(func(w *store.RemoteWorkflow) *int64 { return &w.GithubID }),
		"name":             stringField(func(w *store.RemoteWorkflow) *string { return &w.Name }),
		"full_name":        stringField(func(w *store.RemoteWorkflow) *string { return &w.FullName }),
		"private":          boolField(func(w *store.RemoteWorkflow) *bool { return &w.Private }),
		"html_url":         urlField(func(w *store.RemoteWorkflow) *string { return &w.HTMLURL }),
		"description":      stringField(func(w *store.RemoteWorkflow) *string { return &w.Description }),
		"created_at":       timeField(func(w *store.RemoteWorkflow) **time.Time { return &w.CreatedAt }),
		"updated_at":       timeField(func(w *store.RemoteWorkflow) **time.Time { return &w.UpdatedAt }),
		"pushed_at":        timeField(func(w *store.RemoteWorkflow) **time.Time { return &w.PushedAt }),
		"last_release":     versionField(func(w *store.RemoteWorkflow) *string { return &w.LastRelease }),
		"git_url":          urlField(func(w *store.RemoteWorkflow) *string { return &w.GitURL }),
		"ssh_url":          urlField(func(w *store.RemoteWorkflow) *string { return &w.SSHURL }),
		"clone_url":        urlField(func(w *store.RemoteWorkflow) *string { return &w.CloneURL }),
		"size":             int64Field(func(w *store.RemoteWorkflow) *int64 { return &w.Size }),
		"stargazers_count": intField(func(w *store.RemoteWorkflow) *int { return &w.StargazersCount }),
		"forks_count":      intField(func(w *store.RemoteWorkflow) *int { return &w.ForksCount }),
		"archived":         boolField(func(w *store.RemoteWorkflow) *bool { return &w.Archived }),
	},
}

// Releases reconciles releases by tag sha, which is also their primary key.
var Releases = Kind[store.Release]{
	Name:     "release",
	Table:    store.Releases,
	Required: []string{"tag_sha"},
	Keys: []NaturalKey[store.Release]{
		{Field: "tag_sha", Where: "tag_sha = ?", Value: stringKey(func(r *store.Release) *string { return &r.TagSHA })},
	},
	Fields: map[string]Setter[store.Release]{
		"tag_sha":            stringField(func(r *store.Release) *string { return &r.TagSHA }),
		"remote_workflow_id": int64Field(func(r *store.Release) *int64 { return &r.RemoteWorkflowID }),
		"name":               stringField(func(r *store.Release) *string { return &r.Name }),
		"published_at":       timeField(func(r *store.Release) **time.Time { return &r.PublishedAt }),
		"html_url":           urlField(func(r *store.Release) *string { return &r.HTMLURL }),
		"tag_name":           stringField(func(r *store.Release) *string { return &r.TagName }),
		"draft":              boolField(func(r *store.Release) *bool { return &r.Draft }),
		"prerelease":         boolField(func(r *store.Release) *bool { return &r.Prerelease }),
		"tarball_url":        urlField(func(r *store.Release) *string { return &r.TarballURL }),
		"zipball_url":        urlField(func(r *store.Release) *string { return &r.ZipballURL }),
	},
}

// Topics reconciles labels case-insensitively. A patch rewrites the stored
// text to the casing last seen.
var Topics = Kind[store.Topic]{
	Name:     "topic",
	Table:    store.Topics,
	Required: []string{"topic"},
	Keys: []NaturalKey[store.Topic]{
		{Field: "topic", Where: "LOWER(topic) = LOWER(?)", Value: stringKey(func(t *store.Topic) *string { return &t.Topic })},
	},
	Fields: map[string]Setter[store.Topic]{
		"topic": stringField(func(t *store.Topic) *string { return &t.Topic }),
	},
}
