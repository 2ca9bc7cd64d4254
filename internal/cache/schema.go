package cache

// sqliteSchema creates the cache table. A key may hold several payloads;
// readers take the first usable one in insertion order. idx_cache_key was
// unique in earlier databases and is dropped on open.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    module TEXT NOT NULL,
    name TEXT NOT NULL,
    config_hash TEXT NOT NULL,
    config TEXT NOT NULL,
    input_hash TEXT NOT NULL,
    input TEXT NOT NULL,
    data TEXT NOT NULL,
    run_id TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

DROP INDEX IF EXISTS idx_cache_key;
CREATE INDEX IF NOT EXISTS idx_cache_lookup ON cache(module, name, config_hash, input_hash, id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cache (
    id BIGSERIAL PRIMARY KEY,
    module TEXT NOT NULL,
    name TEXT NOT NULL,
    config_hash TEXT NOT NULL,
    config TEXT NOT NULL,
    input_hash TEXT NOT NULL,
    input TEXT NOT NULL,
    data TEXT NOT NULL,
    run_id TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

DROP INDEX IF EXISTS idx_cache_key;
CREATE INDEX IF NOT EXISTS idx_cache_lookup ON cache(module, name, config_hash, input_hash, id);
`
