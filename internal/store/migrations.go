package store

const schema = `
CREATE TABLE IF NOT EXISTS triage_activity (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id TEXT NOT NULL,
    message_id TEXT,
    sender TEXT,
    subject TEXT,
    action TEXT NOT NULL,
    detail TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_activity_thread ON triage_activity(thread_id);
CREATE INDEX IF NOT EXISTS idx_activity_action ON triage_activity(action);
`
