package storage

// schema creates one table per namespace. Each row holds a JSON document.
const schema = `
-- Accounts keyed by lowercase login.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL
);

-- Per-user exam arrays used when the remote backend is unavailable.
CREATE TABLE IF NOT EXISTS exams (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL
);

-- Login sessions keyed by session id.
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL
);

-- Finished exam attempts keyed by attempt id.
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL
);
`
