// Package postgres provides the PostgreSQL element store, which ranks with
// pgvector distance operators, and the shared PostgreSQL connection setup
// used by the fingerprint cache.
package postgres

// Schema creates the element collection tables. The embedding column has no
// fixed dimension so collections of different embedding models can share it.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS element_collections (
    key TEXT PRIMARY KEY,
    store TEXT NOT NULL,
    direction TEXT NOT NULL,
    metric TEXT NOT NULL,
    stage_fingerprint TEXT NOT NULL,
    element_count INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS collection_elements (
    collection_key TEXT NOT NULL REFERENCES element_collections(key) ON DELETE CASCADE,
    ordinal INTEGER NOT NULL,
    identifier TEXT NOT NULL,
    type TEXT NOT NULL,
    content TEXT NOT NULL,
    granularity INTEGER NOT NULL,
    parent_id TEXT,
    compare BOOLEAN NOT NULL,
    embedding vector NOT NULL,
    PRIMARY KEY (collection_key, identifier)
);

CREATE INDEX IF NOT EXISTS idx_collection_elements_ordinal ON collection_elements(collection_key, ordinal);
`
