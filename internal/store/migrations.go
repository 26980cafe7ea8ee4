package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pipeline_summaries (
    id              TEXT PRIMARY KEY,
    received        DATETIME NOT NULL,
    updated         INTEGER,
    pipeline_count  INTEGER NOT NULL DEFAULT 0,
    published_count INTEGER NOT NULL DEFAULT 0,
    devel_count     INTEGER NOT NULL DEFAULT 0,
    archived_count  INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_updated ON pipeline_summaries(updated);
CREATE INDEX IF NOT EXISTS idx_summaries_received ON pipeline_summaries(received);

CREATE TABLE IF NOT EXISTS remote_workflows (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    github_id        INTEGER NOT NULL DEFAULT 0,
    name             TEXT NOT NULL DEFAULT '',
    full_name        TEXT NOT NULL DEFAULT '',
    private          BOOLEAN NOT NULL DEFAULT 0,
    html_url         TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    created_at       DATETIME,
    updated_at       DATETIME,
    pushed_at        DATETIME,
    last_release     TEXT NOT NULL DEFAULT '',
    git_url          TEXT NOT NULL DEFAULT '',
    ssh_url          TEXT NOT NULL DEFAULT '',
    clone_url        TEXT NOT NULL DEFAULT '',
    size             INTEGER NOT NULL DEFAULT 0,
    stargazers_count INTEGER NOT NULL DEFAULT 0,
    forks_count      INTEGER NOT NULL DEFAULT 0,
    archived         BOOLEAN NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_workflows_git_url ON remote_workflows(git_url) WHERE git_url <> '';
CREATE INDEX IF NOT EXISTS idx_workflows_name ON remote_workflows(name);

CREATE TABLE IF NOT EXISTS releases (
    tag_sha            TEXT PRIMARY KEY,
    remote_workflow_id INTEGER NOT NULL REFERENCES remote_workflows(id) ON DELETE CASCADE,
    name               TEXT NOT NULL DEFAULT '',
    published_at       DATETIME,
    html_url           TEXT NOT NULL DEFAULT '',
    tag_name           TEXT NOT NULL DEFAULT '',
    draft              BOOLEAN NOT NULL DEFAULT 0,
    prerelease         BOOLEAN NOT NULL DEFAULT 0,
    tarball_url        TEXT NOT NULL DEFAULT '',
    zipball_url        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_releases_workflow ON releases(remote_workflow_id);

CREATE TABLE IF NOT EXISTS topics (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    topic TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_topics_topic ON topics(LOWER(topic));

CREATE TABLE IF NOT EXISTS pipeline_summary_workflows (
    pipeline_summary_id TEXT NOT NULL REFERENCES pipeline_summaries(id) ON DELETE CASCADE,
    remote_workflow_id  INTEGER NOT NULL REFERENCES remote_workflows(id) ON DELETE CASCADE,
    PRIMARY KEY (pipeline_summary_id, remote_workflow_id)
);

CREATE TABLE IF NOT EXISTS workflow_topics (
    remote_workflow_id INTEGER NOT NULL REFERENCES remote_workflows(id) ON DELETE CASCADE,
    topic_id           INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    PRIMARY KEY (remote_workflow_id, topic_id)
);

CREATE TABLE IF NOT EXISTS uptime_records (
    received    DATETIME PRIMARY KEY,
    url         TEXT NOT NULL,
    http_status INTEGER NOT NULL,
    available   BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_uptime_url_received ON uptime_records(url, received);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pipeline_summaries (
    id              TEXT PRIMARY KEY,
    received        TIMESTAMPTZ NOT NULL,
    updated         BIGINT,
    pipeline_count  INTEGER NOT NULL DEFAULT 0,
    published_count INTEGER NOT NULL DEFAULT 0,
    devel_count     INTEGER NOT NULL DEFAULT 0,
    archived_count  INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_updated ON pipeline_summaries(updated);
CREATE INDEX IF NOT EXISTS idx_summaries_received ON pipeline_summaries(received);

CREATE TABLE IF NOT EXISTS remote_workflows (
    id               BIGSERIAL PRIMARY KEY,
    github_id        BIGINT NOT NULL DEFAULT 0,
    name             TEXT NOT NULL DEFAULT '',
    full_name        TEXT NOT NULL DEFAULT '',
    private          BOOLEAN NOT NULL DEFAULT FALSE,
    html_url         TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ,
    updated_at       TIMESTAMPTZ,
    pushed_at        TIMESTAMPTZ,
    last_release     TEXT NOT NULL DEFAULT '',
    git_url          TEXT NOT NULL DEFAULT '',
    ssh_url          TEXT NOT NULL DEFAULT '',
    clone_url        TEXT NOT NULL DEFAULT '',
    size             BIGINT NOT NULL DEFAULT 0,
    stargazers_count INTEGER NOT NULL DEFAULT 0,
    forks_count      INTEGER NOT NULL DEFAULT 0,
    archived         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_workflows_git_url ON remote_workflows(git_url) WHERE git_url <> '';
CREATE INDEX IF NOT EXISTS idx_workflows_name ON remote_workflows(name);

CREATE TABLE IF NOT EXISTS releases (
    tag_sha            TEXT PRIMARY KEY,
    remote_workflow_id BIGINT NOT NULL REFERENCES remote_workflows(id) ON DELETE CASCADE,
    name               TEXT NOT NULL DEFAULT '',
    published_at       TIMESTAMPTZ,
    html_url           TEXT NOT NULL DEFAULT '',
    tag_name           TEXT NOT NULL DEFAULT '',
    draft              BOOLEAN NOT NULL DEFAULT FALSE,
    prerelease         BOOLEAN NOT NULL DEFAULT FALSE,
    tarball_url        TEXT NOT NULL DEFAULT '',
    zipball_url        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_releases_workflow ON releases(remote_workflow_id);

CREATE TABLE IF NOT EXISTS topics (
    id    BIGSERIAL PRIMARY KEY,
    topic TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_topics_topic ON topics(LOWER(topic));

CREATE TABLE IF NOT EXISTS pipeline_summary_workflows (
    pipeline_summary_id TEXT NOT NULL REFERENCES pipeline_summaries(id) ON DELETE CASCADE,
    remote_workflow_id  BIGINT NOT NULL REFERENCES remote_workflows(id) ON DELETE CASCADE,
    PRIMARY KEY (pipeline_summary_id, remote_workflow_id)
);

CREATE TABLE IF NOT EXISTS workflow_topics (
    remote_workflow_id BIGINT NOT NULL REFERENCES remote_workflows(id) ON DELETE CASCADE,
    topic_id           BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    PRIMARY KEY (remote_workflow_id, topic_id)
);

CREATE TABLE IF NOT EXISTS uptime_records (
    received    TIMESTAMPTZ PRIMARY KEY,
    url         TEXT NOT NULL,
    http_status INTEGER NOT NULL,
    available   BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_uptime_url_received ON uptime_records(url, received);
`
