package store

// Schema is executed on every open; all statements are idempotent.
// Timestamps are unix milliseconds, ids are TEXT UUIDs from idgen.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
	submission_id TEXT PRIMARY KEY,
	subject       TEXT NOT NULL,
	sender        TEXT NOT NULL DEFAULT '',
	received_at   INTEGER NOT NULL,
	content_type  TEXT NOT NULL DEFAULT '',
	cooperation   TEXT NOT NULL DEFAULT '',
	media         TEXT NOT NULL DEFAULT '',
	source_unit   TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	body_text     TEXT NOT NULL DEFAULT '',
	raw_html      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_subject ON submissions(subject);
CREATE INDEX IF NOT EXISTS idx_submissions_routing ON submissions(media, source_unit);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);

CREATE TABLE IF NOT EXISTS drafts (
	draft_id      TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL UNIQUE,
	text          TEXT NOT NULL,
	media_map     TEXT NOT NULL DEFAULT '{}',
	version       INTEGER NOT NULL DEFAULT 1,
	status        TEXT NOT NULL DEFAULT 'draft',
	site_id       TEXT NOT NULL DEFAULT '',
	post_id       INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	FOREIGN KEY (submission_id) REFERENCES submissions(submission_id)
);

CREATE TABLE IF NOT EXISTS draft_versions (
	version_id TEXT PRIMARY KEY,
	draft_id   TEXT NOT NULL,
	version    INTEGER NOT NULL,
	text       TEXT NOT NULL,
	media_map  TEXT NOT NULL DEFAULT '{}',
	author_id  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	FOREIGN KEY (draft_id) REFERENCES drafts(draft_id),
	UNIQUE (draft_id, version)
);

CREATE TABLE IF NOT EXISTS duplicate_logs (
	duplicate_id             TEXT PRIMARY KEY,
	kind                     TEXT NOT NULL,
	effective_submission_id  TEXT NOT NULL,
	superseded_submission_id TEXT NOT NULL DEFAULT '',
	subject                  TEXT NOT NULL DEFAULT '',
	source_unit              TEXT NOT NULL DEFAULT '',
	media                    TEXT NOT NULL DEFAULT '',
	created_at               INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_duplicate_logs_superseded
	ON duplicate_logs(superseded_submission_id);

CREATE TABLE IF NOT EXISTS task_log (
	task_id    TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	task_type  TEXT NOT NULL,
	ref_id     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_log_run ON task_log(run_id);
`
