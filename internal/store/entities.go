package store

import "time"

// PipelineSummary is one ingested pipelines.json snapshot.
type PipelineSummary struct {
	ID             string    `db:"id" json:"id"`
	Received       time.Time `db:"received" json:"received"`
	Updated        *int64    `db:"updated" json:"updated"`
	PipelineCount  int       `db:"pipeline_count" json:"pipeline_count"`
	PublishedCount int       `db:"published_count" json:"published_count"`
	DevelCount     int       `db:"devel_count" json:"devel_count"`
	ArchivedCount  int       `db:"archived_count" json:"archived_count"`
}

// RemoteWorkflow is one GitHub-backed pipeline repository. ID is local;
// GithubID carries the upstream numeric id.
type RemoteWorkflow struct {
	ID              int64      `db:"id" json:"id"`
	GithubID        int64      `db:"github_id" json:"github_id"`
	Name            string     `db:"name" json:"name"`
	FullName        string     `db:"full_name" json:"full_name"`
	Private         bool       `db:"private" json:"private"`
	HTMLURL         string     `db:"html_url" json:"html_url"`
	Description     string     `db:"description" json:"description"`
	CreatedAt       *time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updated_at"`
	PushedAt        *time.Time `db:"pushed_at" json:"pushed_at"`
	LastRelease     string     `db:"last_release" json:"last_release"`
	GitURL          string     `db:"git_url" json:"git_url"`
	SSHURL          string     `db:"ssh_url" json:"ssh_url"`
	CloneURL        string     `db:"clone_url" json:"clone_url"`
	Size            int64      `db:"size" json:"size"`
	StargazersCount int        `db:"stargazers_count" json:"stargazers_count"`
	ForksCount      int        `db:"forks_count" json:"forks_count"`
	Archived        bool       `db:"archived" json:"archived"`
}

// Release is one GitHub release, keyed by its tag sha.
type Release struct {
	TagSHA           string     `db:"tag_sha" json:"tag_sha"`
	RemoteWorkflowID int64      `db:"remote_workflow_id" json:"remote_workflow_id"`
	Name             string     `db:"name" json:"name"`
	PublishedAt      *time.Time `db:"published_at" json:"published_at"`
	HTMLURL          string     `db:"html_url" json:"html_url"`
	TagName          string     `db:"tag_name" json:"tag_name"`
	Draft            bool       `db:"draft" json:"draft"`
	Prerelease       bool       `db:"prerelease" json:"prerelease"`
	TarballURL       string     `db:"tarball_url" json:"tarball_url"`
	ZipballURL       string     `db:"zipball_url" json:"zipball_url"`
}

// Topic is a free-text workflow label.
type Topic struct {
	ID    int64  `db:"id" json:"id"`
	Topic string `db:"topic" json:"topic"`
}

// UptimeRecord is one immutable probe result.
type UptimeRecord struct {
	Received   time.Time `db:"received" json:"received"`
	URL        string    `db:"url" json:"url"`
	HTTPStatus int       `db:"http_status" json:"http_status"`
	Available  bool      `db:"available" json:"available"`
}

// Table bindings for the reconciled entity kinds.
var (
	Summaries = Table[PipelineSummary]{
		Name: "pipeline_summaries",
		Key:  "id",
		Columns: []string{
			"id", "received", "updated",
			"pipeline_count", "published_count", "devel_count", "archived_count",
		},
	}

	Workflows = Table[RemoteWorkflow]{
		Name:      "remote_workflows",
		Key:       "id",
		Generated: true,
		Columns: []string{
			"github_id", "name", "full_name", "private", "html_url", "description",
			"created_at", "updated_at", "pushed_at", "last_release",
			"git_url", "ssh_url", "clone_url", "size",
			"stargazers_count", "forks_count", "archived",
		},
	}

	Releases = Table[Release]{
		Name: "releases",
		Key:  "tag_sha",
		Columns: []string{
			"tag_sha", "remote_workflow_id", "name", "published_at", "html_url",
			"tag_name", "draft", "prerelease", "tarball_url", "zipball_url",
		},
	}

	Topics = Table[Topic]{
		Name:      "topics",
		Key:       "id",
		Generated: true,
		Columns:   []string{"topic"},
	}
)
