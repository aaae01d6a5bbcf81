package store

// sqliteSchema creates the SQLite tables.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS message (
    id         TEXT PRIMARY KEY,
    principal  TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    position   INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (principal, position)
);

CREATE TABLE IF NOT EXISTS error_record (
    principal   TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    message     TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
`

// surrealSchema defines the SurrealDB tables.
const surrealSchema = `
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS principal ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON message TYPE int;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS message_position ON message FIELDS principal, position UNIQUE;

    -- One record per principal, keyed by the principal itself
    DEFINE TABLE IF NOT EXISTS error_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON error_record TYPE string;
    DEFINE FIELD IF NOT EXISTS message ON error_record TYPE string;
    DEFINE FIELD IF NOT EXISTS recorded_at ON error_record TYPE datetime DEFAULT time::now();
`
