package nfcore

import (
	"encoding/json"
	"fmt"
	"time"
)

// IssueStats is the nfcore_issue_stats.json document. It is validated and
// acknowledged but not persisted.
type IssueStats struct {
	Updated UnixTime                   `json:"updated"`
	Stats   map[string]json.RawMessage `json:"stats"`
	Repos   map[string]RepoActivity    `json:"repos"`
	Authors map[string]AuthorStats     `json:"authors"`
}

// RepoActivity lists the issues and pull requests of one repository, keyed
// by their running number.
type RepoActivity struct {
	Issues map[string]Issue `json:"issues"`
	PRs    map[string]Issue `json:"prs"`
}

// Issue is one issue or pull request entry.
type Issue struct {
	URL            string    `json:"url"`
	CommentsURL    string    `json:"comments_url"`
	HTMLURL        string    `json:"html_url"`
	State          string    `json:"state"`
	NumComments    int       `json:"num_comments"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ClosedAt       *string   `json:"closed_at"`
	CreatedBy      string    `json:"created_by"`
	FirstReply     *string   `json:"first_reply"`
	FirstReplyWait *int64    `json:"first_reply_wait"`
	FirstReplyBy   *string   `json:"first_reply_by"`
	ClosedWait     *int64    `json:"closed_wait"`
}

// AuthorStats aggregates one author's contributions.
type AuthorStats struct {
	Issues            *AuthorCounts `json:"issues"`
	PRs               *AuthorCounts `json:"prs"`
	FirstContribution *UnixTime     `json:"first_contribution"`
}

// AuthorCounts counts created items and replies.
type AuthorCounts struct {
	NumCreated       int `json:"num_created"`
	NumReplies       int `json:"num_replies"`
	NumFirstResponse int `json:"num_first_response"`
}

// UnixTime decodes an epoch-seconds integer.
type UnixTime struct {
	time.Time
}

func (u *UnixTime) UnmarshalJSON(data []byte) error {
	var secs int64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("expected epoch seconds: %w", err)
	}
	u.Time = time.Unix(secs, 0).UTC()
	return nil
}

func (u UnixTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Unix())
}

// DecodeIssueStats parses and validates an issue statistics document. URL
// fields are unescaped in place.
func DecodeIssueStats(data []byte) (*IssueStats, error) {
	var doc IssueStats
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Updated.IsZero() {
		return nil, fmt.Errorf("updated: required")
	}
	if doc.Repos == nil {
		return nil, fmt.Errorf("repos: required")
	}
	for name, repo := range doc.Repos {
		for _, items := range []map[string]Issue{repo.Issues, repo.PRs} {
			for num, it := range items {
				if it.CreatedBy == "" {
					return nil, fmt.Errorf("repos.%s #%s: created_by: required", name, num)
				}
				it.URL = UnescapeURL(it.URL)
				it.CommentsURL = UnescapeURL(it.CommentsURL)
				it.HTMLURL = UnescapeURL(it.HTMLURL)
				items[num] = it
			}
		}
	}
	return &doc, nil
}

// Count returns the number of issues and pull requests across all repos.
func (d *IssueStats) Count() (issues, prs int) {
	for _, repo := range d.Repos {
		issues += len(repo.Issues)
		prs += len(repo.PRs)
	}
	return issues, prs
}
