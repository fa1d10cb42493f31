package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
//
// Timestamps are stored as unix milliseconds so that watermark comparisons
// happen on integers.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid         TEXT NOT NULL,
	owner_id     TEXT,
	title        TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL DEFAULT 'todo',
	status       TEXT NOT NULL DEFAULT 'undone',
	category     TEXT NOT NULL DEFAULT 'weekly',
	calendar     TEXT NOT NULL DEFAULT 'gregory',
	scheduled_at INTEGER NOT NULL,
	completed_at INTEGER,
	tz_offset    INTEGER NOT NULL DEFAULT 0,
	tz_name      TEXT NOT NULL DEFAULT '',
	parent_uuid  TEXT,
	ordering     TEXT NOT NULL DEFAULT '{}',
	deleted_at   INTEGER,
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   INTEGER NOT NULL,
	modified_at  INTEGER NOT NULL,
	synced_at    INTEGER,
	device_id    TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_uuid ON items(uuid);
CREATE INDEX IF NOT EXISTS idx_items_category_scheduled ON items(category, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_items_modified_at ON items(modified_at);
CREATE INDEX IF NOT EXISTS idx_items_synced_at ON items(synced_at);

CREATE TABLE IF NOT EXISTS drafts (
	slot       TEXT PRIMARY KEY CHECK(slot IN ('new', 'existing')),
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
