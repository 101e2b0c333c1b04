package suppression

type migration struct {
	version int
	sql     string
}

// migrations must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS suppressed (
	email      TEXT PRIMARY KEY,
	source     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE suppressed ADD COLUMN run_id TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_suppressed_run ON suppressed(run_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
